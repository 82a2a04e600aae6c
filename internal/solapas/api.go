package solapas

import (
	"encoding/json"
	"net/http"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for record-view tabs
type Handler struct {
	svc *Service
}

// NewHandler creates a new tab handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers the tab routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{ciudadanoID}/solapas", h.GetSolapas)
	return r
}

func (h *Handler) GetSolapas(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "ciudadanoID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid ciudadano ID"))
		return
	}

	solapas, err := h.svc.Componer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": solapas, "total": len(solapas)})
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
