package programa

import (
	"encoding/json"
	"net/http"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for the program catalog
type Handler struct {
	repo Repository
}

// NewHandler creates a new catalog handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the catalog routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{programaID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
	})

	return r
}

// CreateProgramaRequest is the payload for creating a catalog entry
type CreateProgramaRequest struct {
	Codigo               string `json:"codigo"`
	Nombre               string `json:"nombre"`
	Tipo                 string `json:"tipo"`
	Descripcion          string `json:"descripcion"`
	Icono                string `json:"icono"`
	Color                string `json:"color"`
	Orden                int    `json:"orden"`
	RequiereEvaluacion   *bool  `json:"requiere_evaluacion"`
	RequierePlan         *bool  `json:"requiere_plan"`
	RequiereSeguimientos *bool  `json:"requiere_seguimientos"`
}

// List lists catalog entries
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	soloActivos := r.URL.Query().Get("activos") == "true"

	programas, err := h.repo.List(r.Context(), soloActivos)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  programas,
		"total": len(programas),
	})
}

// Get gets a catalog entry by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "programaID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid programa ID"))
		return
	}

	p, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Create creates a catalog entry
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProgramaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.Codigo == "" {
		details["codigo"] = "codigo is required"
	}
	if req.Nombre == "" {
		details["nombre"] = "nombre is required"
	}
	if req.Tipo == "" {
		details["tipo"] = "tipo is required"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	p := NewPrograma(req.Codigo, req.Nombre, req.Tipo)
	p.Descripcion = req.Descripcion
	p.Orden = req.Orden
	if req.Icono != "" {
		p.Icono = req.Icono
	}
	if req.Color != "" {
		p.Color = req.Color
	}
	if req.RequiereEvaluacion != nil {
		p.RequiereEvaluacion = *req.RequiereEvaluacion
	}
	if req.RequierePlan != nil {
		p.RequierePlan = *req.RequierePlan
	}
	if req.RequiereSeguimientos != nil {
		p.RequiereSeguimientos = *req.RequiereSeguimientos
	}

	if err := h.repo.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// Update updates a catalog entry
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "programaID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid programa ID"))
		return
	}

	p, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Nombre      *string `json:"nombre"`
		Descripcion *string `json:"descripcion"`
		Icono       *string `json:"icono"`
		Color       *string `json:"color"`
		Orden       *int    `json:"orden"`
		Activo      *bool   `json:"activo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Nombre != nil {
		p.Nombre = *req.Nombre
	}
	if req.Descripcion != nil {
		p.Descripcion = *req.Descripcion
	}
	if req.Icono != nil {
		p.Icono = *req.Icono
	}
	if req.Color != nil {
		p.Color = *req.Color
	}
	if req.Orden != nil {
		p.Orden = *req.Orden
	}
	if req.Activo != nil {
		p.Activo = *req.Activo
	}

	if err := h.repo.Update(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
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
