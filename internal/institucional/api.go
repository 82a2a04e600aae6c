package institucional

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for the institutional layer
type Handler struct {
	svc  *Service
	repo Repository
}

// NewHandler creates a new institutional handler
func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Routes registers the institutional routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/instituciones/{institucionID}", func(r chi.Router) {
		r.Get("/programas", h.ListInstitucionProgramas)
		r.Put("/estado-global", h.SetEstadoGlobal)
	})

	r.Route("/instituciones-programas", func(r chi.Router) {
		r.Post("/", h.CreateInstitucionPrograma)
		r.Route("/{linkID}", func(r chi.Router) {
			r.Get("/", h.GetInstitucionPrograma)
			r.Put("/", h.UpdateInstitucionPrograma)
			r.Get("/cupo", h.GetCupo)
		})
	})

	r.Route("/derivaciones", func(r chi.Router) {
		r.Get("/", h.ListDerivaciones)
		r.Post("/", h.CreateDerivacion)
		r.Route("/{derivacionID}", func(r chi.Router) {
			r.Get("/", h.GetDerivacion)
			r.Post("/aceptar", h.AceptarDerivacion)
			r.Post("/rechazar", h.RechazarDerivacion)
		})
	})

	r.Route("/casos", func(r chi.Router) {
		r.Get("/", h.ListCasos)
		r.Route("/{casoID}", func(r chi.Router) {
			r.Get("/", h.GetCaso)
			r.Get("/historial", h.GetHistorial)
			r.Post("/estado", h.CambiarEstadoCaso)
			r.Post("/reabrir", h.ReabrirCaso)
		})
	})

	return r
}

// --- Institution-program link handlers ---

// CreateInstitucionProgramaRequest is the payload for linking an
// institution to a program
type CreateInstitucionProgramaRequest struct {
	InstitucionID    types.ID `json:"institucion_id"`
	ProgramaID       types.ID `json:"programa_id"`
	CupoMaximo       *int     `json:"cupo_maximo"`
	ControlarCupo    bool     `json:"controlar_cupo"`
	PermiteSobrecupo bool     `json:"permite_sobrecupo"`
}

func (h *Handler) CreateInstitucionPrograma(w http.ResponseWriter, r *http.Request) {
	var req CreateInstitucionProgramaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.InstitucionID.IsZero() || req.ProgramaID.IsZero() {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"institucion_id": "institucion_id is required",
			"programa_id":    "programa_id is required",
		}))
		return
	}

	now := time.Now()
	ip := &InstitucionPrograma{
		ID:               types.NewID(),
		InstitucionID:    req.InstitucionID,
		ProgramaID:       req.ProgramaID,
		EstadoPrograma:   ProgramaActivo,
		Activo:           true,
		CupoMaximo:       req.CupoMaximo,
		ControlarCupo:    req.ControlarCupo,
		PermiteSobrecupo: req.PermiteSobrecupo,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.repo.CreateInstitucionPrograma(r.Context(), ip); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ip)
}

func (h *Handler) GetInstitucionPrograma(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "linkID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid link ID"))
		return
	}

	ip, err := h.repo.GetInstitucionPrograma(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ip)
}

func (h *Handler) UpdateInstitucionPrograma(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "linkID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid link ID"))
		return
	}

	ip, err := h.repo.GetInstitucionPrograma(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		EstadoPrograma   *EstadoPrograma `json:"estado_programa"`
		Activo           *bool           `json:"activo"`
		CupoMaximo       *int            `json:"cupo_maximo"`
		ControlarCupo    *bool           `json:"controlar_cupo"`
		PermiteSobrecupo *bool           `json:"permite_sobrecupo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.EstadoPrograma != nil {
		ip.EstadoPrograma = *req.EstadoPrograma
	}
	if req.Activo != nil {
		ip.Activo = *req.Activo
	}
	if req.CupoMaximo != nil {
		ip.CupoMaximo = req.CupoMaximo
	}
	if req.ControlarCupo != nil {
		ip.ControlarCupo = *req.ControlarCupo
	}
	if req.PermiteSobrecupo != nil {
		ip.PermiteSobrecupo = *req.PermiteSobrecupo
	}

	if err := h.repo.UpdateInstitucionPrograma(r.Context(), ip); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ip)
}

func (h *Handler) ListInstitucionProgramas(w http.ResponseWriter, r *http.Request) {
	institucionID, err := types.ParseID(chi.URLParam(r, "institucionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid institucion ID"))
		return
	}

	links, err := h.repo.ListInstitucionProgramas(r.Context(), institucionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": links, "total": len(links)})
}

func (h *Handler) SetEstadoGlobal(w http.ResponseWriter, r *http.Request) {
	institucionID, err := types.ParseID(chi.URLParam(r, "institucionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid institucion ID"))
		return
	}

	var req struct {
		EstadoGlobal EstadoGlobal `json:"estado_global"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	switch req.EstadoGlobal {
	case GlobalActivo, GlobalObservacion, GlobalSuspendido, GlobalCerrado:
	default:
		writeError(w, errors.Validation("validation failed", map[string]string{
			"estado_global": "unknown estado_global",
		}))
		return
	}

	if err := h.repo.SetEstadoGlobal(r.Context(), institucionID, req.EstadoGlobal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"institucion_id": institucionID,
		"estado_global":  req.EstadoGlobal,
	})
}

func (h *Handler) GetCupo(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "linkID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid link ID"))
		return
	}

	libre, err := h.svc.CupoDisponible(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cupo_disponible": libre})
}

// --- Referral handlers ---

func (h *Handler) CreateDerivacion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CiudadanoID           types.ID `json:"ciudadano_id"`
		InstitucionProgramaID types.ID `json:"institucion_programa_id"`
		Motivo                string   `json:"motivo"`
		Urgencia              Urgencia `json:"urgencia"`
		Observaciones         string   `json:"observaciones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	d, err := h.svc.CrearDerivacion(r.Context(), CrearDerivacionRequest{
		CiudadanoID:           req.CiudadanoID,
		InstitucionProgramaID: req.InstitucionProgramaID,
		Motivo:                req.Motivo,
		Urgencia:              req.Urgencia,
		Observaciones:         req.Observaciones,
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
	if v := r.URL.Query().Get("institucion_programa_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid institucion_programa_id"))
			return
		}
		filter.InstitucionProgramaID = &id
	}
	if v := r.URL.Query().Get("estado"); v != "" {
		estado := EstadoDerivacion(v)
		filter.Estado = &estado
	}
	if v := r.URL.Query().Get("urgencia"); v != "" {
		urgencia := Urgencia(v)
		filter.Urgencia = &urgencia
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
		Observacion   string    `json:"observacion"`
		ResponsableID *types.ID `json:"responsable_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.BadRequest("invalid request body"))
			return
		}
	}

	caso, creado, err := h.svc.AceptarDerivacion(r.Context(), id, auth.GetUser(r.Context()), req.Observacion, req.ResponsableID)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if creado {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"caso": caso, "creado": creado})
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

// --- Case handlers ---

func (h *Handler) ListCasos(w http.ResponseWriter, r *http.Request) {
	var filter CasoFilter

	if v := r.URL.Query().Get("ciudadano_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid ciudadano_id"))
			return
		}
		filter.CiudadanoID = &id
	}
	if v := r.URL.Query().Get("institucion_programa_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid institucion_programa_id"))
			return
		}
		filter.InstitucionProgramaID = &id
	}
	if v := r.URL.Query().Get("estado"); v != "" {
		estado := EstadoCaso(v)
		filter.Estado = &estado
	}

	casos, err := h.repo.ListCasos(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": casos, "total": len(casos)})
}

func (h *Handler) GetCaso(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "casoID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid caso ID"))
		return
	}

	c, err := h.repo.GetCaso(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetHistorial(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "casoID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid caso ID"))
		return
	}

	historial, err := h.repo.GetHistorial(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": historial, "total": len(historial)})
}

func (h *Handler) CambiarEstadoCaso(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "casoID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid caso ID"))
		return
	}

	var req struct {
		Estado       EstadoCaso `json:"estado"`
		Nota         string     `json:"nota"`
		MotivoCierre string     `json:"motivo_cierre"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	switch req.Estado {
	case CasoActivo, CasoEnSeguimiento, CasoSuspendido, CasoEgresado, CasoCerrado:
	default:
		writeError(w, errors.Validation("validation failed", map[string]string{"estado": "unknown estado"}))
		return
	}

	c, err := h.svc.CambiarEstadoCaso(r.Context(), id, req.Estado, auth.GetUser(r.Context()), req.Nota, req.MotivoCierre)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ReabrirCaso(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "casoID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid caso ID"))
		return
	}

	var req struct {
		Nota string `json:"nota"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.BadRequest("invalid request body"))
			return
		}
	}

	c, err := h.svc.ReabrirCaso(r.Context(), id, auth.GetUser(r.Context()), req.Nota)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
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
