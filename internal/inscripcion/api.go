package inscripcion

import (
	"encoding/json"
	"net/http"

	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for enrollments and program referrals
type Handler struct {
	svc  *Service
	repo Repository
}

// NewHandler creates a new enrollment handler
func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Routes registers the enrollment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/inscripciones", func(r chi.Router) {
		r.Get("/", h.ListInscripciones)
		r.Post("/", h.Inscribir)
		r.Route("/{inscripcionID}", func(r chi.Router) {
			r.Get("/", h.GetInscripcion)
			r.Post("/activar", h.ActivarInscripcion)
			r.Post("/cerrar", h.CerrarInscripcion)
		})
	})

	r.Route("/derivaciones", func(r chi.Router) {
		r.Get("/", h.ListDerivaciones)
		r.Post("/", h.CreateDerivacion)
		r.Route("/{derivacionID}", func(r chi.Router) {
			r.Get("/", h.GetDerivacion)
			r.Post("/aceptar", h.AceptarDerivacion)
			r.Post("/rechazar", h.RechazarDerivacion)
			r.Post("/cancelar", h.CancelarDerivacion)
		})
	})

	return r
}

func (h *Handler) Inscribir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CiudadanoID types.ID   `json:"ciudadano_id"`
		ProgramaID  types.ID   `json:"programa_id"`
		Via         ViaIngreso `json:"via_ingreso"`
		Documento   string     `json:"documento"`
		Notas       string     `json:"notas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	i, err := h.svc.Inscribir(r.Context(), InscribirRequest{
		CiudadanoID: req.CiudadanoID,
		ProgramaID:  req.ProgramaID,
		Via:         req.Via,
		Documento:   req.Documento,
		Notas:       req.Notas,
	}, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

func (h *Handler) GetInscripcion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "inscripcionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid inscripcion ID"))
		return
	}

	i, err := h.repo.GetInscripcion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) ListInscripciones(w http.ResponseWriter, r *http.Request) {
	var filter InscripcionFilter

	if v := r.URL.Query().Get("ciudadano_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid ciudadano_id"))
			return
		}
		filter.CiudadanoID = &id
	}
	if v := r.URL.Query().Get("programa_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid programa_id"))
			return
		}
		filter.ProgramaID = &id
	}
	if v := r.URL.Query().Get("estado"); v != "" {
		estado := EstadoInscripcion(v)
		filter.Estado = &estado
	}

	inscripciones, err := h.repo.ListInscripciones(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": inscripciones, "total": len(inscripciones)})
}

func (h *Handler) ActivarInscripcion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "inscripcionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid inscripcion ID"))
		return
	}

	i, err := h.svc.ActivarInscripcion(r.Context(), id, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) CerrarInscripcion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "inscripcionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid inscripcion ID"))
		return
	}

	var req struct {
		Motivo string `json:"motivo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	i, err := h.svc.CerrarInscripcion(r.Context(), id, auth.GetUser(r.Context()), req.Motivo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) CreateDerivacion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CiudadanoID         types.ID  `json:"ciudadano_id"`
		ProgramaOrigenID    *types.ID `json:"programa_origen_id"`
		InscripcionOrigenID *types.ID `json:"inscripcion_origen_id"`
		ProgramaDestinoID   types.ID  `json:"programa_destino_id"`
		Motivo              string    `json:"motivo"`
		Urgencia            Urgencia  `json:"urgencia"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	d, err := h.svc.CrearDerivacion(r.Context(), CrearDerivacionRequest{
		CiudadanoID:         req.CiudadanoID,
		ProgramaOrigenID:    req.ProgramaOrigenID,
		InscripcionOrigenID: req.InscripcionOrigenID,
		ProgramaDestinoID:   req.ProgramaDestinoID,
		Motivo:              req.Motivo,
		Urgencia:            req.Urgencia,
	}, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) GetDerivacion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "derivacionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid derivacion ID"))
		return
	}

	d, err := h.repo.GetDerivacion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) ListDerivaciones(w http.ResponseWriter, r *http.Request) {
	var filter DerivacionFilter

	if v := r.URL.Query().Get("ciudadano_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid ciudadano_id"))
			return
		}
		filter.CiudadanoID = &id
	}
	if v := r.URL.Query().Get("programa_destino_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid programa_destino_id"))
			return
		}
		filter.ProgramaDestinoID = &id
	}
	if v := r.URL.Query().Get("estado"); v != "" {
		estado := EstadoDerivacion(v)
		filter.Estado = &estado
	}

	derivaciones, err := h.repo.ListDerivaciones(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": derivaciones, "total": len(derivaciones)})
}

func (h *Handler) AceptarDerivacion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "derivacionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid derivacion ID"))
		return
	}

	var req struct {
		Respuesta string `json:"respuesta"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.BadRequest("invalid request body"))
			return
		}
	}

	i, err := h.svc.AceptarDerivacion(r.Context(), id, auth.GetUser(r.Context()), req.Respuesta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) RechazarDerivacion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "derivacionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid derivacion ID"))
		return
	}

	var req struct {
		Motivo string `json:"motivo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	d, err := h.svc.RechazarDerivacion(r.Context(), id, auth.GetUser(r.Context()), req.Motivo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) CancelarDerivacion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "derivacionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid derivacion ID"))
		return
	}

	var req struct {
		Motivo string `json:"motivo"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.BadRequest("invalid request body"))
			return
		}
	}

	d, err := h.svc.CancelarDerivacion(r.Context(), id, auth.GetUser(r.Context()), req.Motivo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
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
