package actividades

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for attendance
type Handler struct {
	svc  *Service
	repo Repository
}

// NewHandler creates a new attendance handler
func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Routes registers the attendance routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/inscriptos", h.ListInscriptos)
	r.Post("/inscriptos", h.Inscribir)
	r.Route("/inscriptos/{inscriptoID}", func(r chi.Router) {
		r.Get("/", h.GetInscripto)
		r.Get("/historial", h.GetHistorial)
		r.Get("/asistencias", h.ListAsistencias)

		r.Post("/activar", h.ActivarInscripto)
		r.Post("/finalizar", h.FinalizarInscripto)
		r.Post("/abandono", h.RegistrarAbandono)
		r.Post("/asistencias", h.RegistrarAsistencia)
	})

	r.Get("/alertas", h.ListAlertas)
	r.Post("/alertas/{alertaID}/vista", h.MarcarAlertaVista)
	r.Post("/alertas/revisar-semanal", h.RevisarAusentismoSemanal)

	return r
}

func (h *Handler) Inscribir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActividadID   types.ID `json:"actividad_id"`
		CiudadanoID   types.ID `json:"ciudadano_id"`
		Observaciones string   `json:"observaciones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	i, err := h.svc.Inscribir(r.Context(), req.ActividadID, req.CiudadanoID, auth.GetUser(r.Context()), req.Observaciones)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

func (h *Handler) GetInscripto(w http.ResponseWriter, r *http.Request) {
	id, err := inscriptoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	i, err := h.repo.GetInscripto(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) ListInscriptos(w http.ResponseWriter, r *http.Request) {
	var filter InscriptoFilter

	if v := r.URL.Query().Get("actividad_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid actividad_id"))
			return
		}
		filter.ActividadID = &id
	}
	if v := r.URL.Query().Get("ciudadano_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid ciudadano_id"))
			return
		}
		filter.CiudadanoID = &id
	}
	if v := r.URL.Query().Get("estado"); v != "" {
		estado := EstadoInscripto(v)
		filter.Estado = &estado
	}

	inscriptos, err := h.repo.ListInscriptos(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": inscriptos, "total": len(inscriptos)})
}

func (h *Handler) GetHistorial(w http.ResponseWriter, r *http.Request) {
	id, err := inscriptoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	historial, err := h.repo.GetHistorialInscripto(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": historial, "total": len(historial)})
}

func (h *Handler) ActivarInscripto(w http.ResponseWriter, r *http.Request) {
	id, err := inscriptoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	i, err := h.svc.ActivarInscripto(r.Context(), id, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) FinalizarInscripto(w http.ResponseWriter, r *http.Request) {
	id, err := inscriptoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Descripcion string `json:"descripcion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	i, err := h.svc.FinalizarInscripto(r.Context(), id, auth.GetUser(r.Context()), req.Descripcion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) RegistrarAbandono(w http.ResponseWriter, r *http.Request) {
	id, err := inscriptoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Motivo string `json:"motivo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	i, err := h.svc.RegistrarAbandono(r.Context(), id, auth.GetUser(r.Context()), req.Motivo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) RegistrarAsistencia(w http.ResponseWriter, r *http.Request) {
	id, err := inscriptoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Fecha         time.Time        `json:"fecha"`
		Estado        EstadoAsistencia `json:"estado"`
		Observaciones string           `json:"observaciones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	a, err := h.svc.RegistrarAsistencia(r.Context(), id, req.Fecha, req.Estado, auth.GetUser(r.Context()), req.Observaciones)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) ListAsistencias(w http.ResponseWriter, r *http.Request) {
	id, err := inscriptoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limite := 30
	asistencias, err := h.repo.ListAsistenciasRecientes(r.Context(), id, limite)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": asistencias, "total": len(asistencias)})
}

func (h *Handler) ListAlertas(w http.ResponseWriter, r *http.Request) {
	var filter AlertaFilter

	if v := r.URL.Query().Get("inscripto_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid inscripto_id"))
			return
		}
		filter.InscriptoID = &id
	}
	if v := r.URL.Query().Get("tipo"); v != "" {
		tipo := TipoAlerta(v)
		filter.Tipo = &tipo
	}
	if r.URL.Query().Get("activas") == "true" {
		filter.SoloActivas = true
	}

	alertas, err := h.repo.ListAlertas(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": alertas, "total": len(alertas)})
}

func (h *Handler) MarcarAlertaVista(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "alertaID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid alerta ID"))
		return
	}

	a, err := h.svc.MarcarAlertaVista(r.Context(), id, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) RevisarAusentismoSemanal(w http.ResponseWriter, r *http.Request) {
	usuario := auth.GetUser(r.Context())
	if usuario == nil || !usuario.IsAdmin() {
		writeError(w, errors.PermissionDenied("only admins can trigger the weekly review"))
		return
	}

	generadas, err := h.svc.RevisarAusentismoSemanal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alertas_generadas": generadas})
}

func inscriptoID(r *http.Request) (types.ID, error) {
	id, err := types.ParseID(chi.URLParam(r, "inscriptoID"))
	if err != nil {
		return "", errors.BadRequest("invalid inscripto ID")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
