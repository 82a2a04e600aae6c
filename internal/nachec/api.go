package nachec

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for the workflow
type Handler struct {
	svc  *Service
	repo Repository
}

// NewHandler creates a new workflow handler
func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Routes registers the workflow routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/casos", h.ListCasos)
	r.Post("/casos", h.CreateCaso)
	r.Route("/casos/{casoID}", func(r chi.Router) {
		r.Get("/", h.GetCaso)
		r.Get("/historial", h.GetHistorial)
		r.Get("/prestaciones", h.ListPrestaciones)

		r.Post("/tomar", h.TomarCaso)
		r.Post("/doc-pendiente", h.MarcarDocPendiente)
		r.Post("/rechazar", h.RechazarCaso)
		r.Post("/enviar-a-asignacion", h.EnviarAAsignacion)
		r.Post("/asignar", h.AsignarTerritorial)
		r.Post("/iniciar-relevamiento", h.IniciarRelevamiento)
		r.Post("/relevamiento", h.RegistrarRelevamiento)
		r.Post("/finalizar-relevamiento", h.FinalizarRelevamiento)
		r.Post("/evaluacion", h.RegistrarEvaluacion)
		r.Post("/confirmar-evaluacion", h.ConfirmarEvaluacion)
		r.Post("/plan", h.DefinirPlan)
		r.Post("/activar-plan", h.ActivarPlan)
		r.Post("/prestaciones", h.ProgramarPrestacion)
		r.Post("/pasar-a-seguimiento", h.PasarASeguimiento)
		r.Post("/cerrar", h.CerrarCaso)
		r.Post("/suspender", h.SuspenderCaso)
		r.Post("/reactivar", h.ReactivarCaso)
	})

	r.Post("/prestaciones/{prestacionID}/entregar", h.RegistrarEntrega)
	r.Get("/tareas", h.ListTareas)

	return r
}

func (h *Handler) CreateCaso(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CiudadanoTitularID   types.ID  `json:"ciudadano_titular_id"`
		Prioridad            Prioridad `json:"prioridad"`
		Municipio            string    `json:"municipio"`
		Localidad            string    `json:"localidad"`
		Direccion            string    `json:"direccion"`
		ReferenciasDomicilio string    `json:"referencias_domicilio"`
		MotivoDerivacion     string    `json:"motivo_derivacion"`
		Observaciones        string    `json:"observaciones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.svc.CrearCaso(r.Context(), CrearCasoRequest{
		CiudadanoTitularID:   req.CiudadanoTitularID,
		Prioridad:            req.Prioridad,
		Municipio:            req.Municipio,
		Localidad:            req.Localidad,
		Direccion:            req.Direccion,
		ReferenciasDomicilio: req.ReferenciasDomicilio,
		MotivoDerivacion:     req.MotivoDerivacion,
		Observaciones:        req.Observaciones,
	}, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCaso(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.repo.GetCaso(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListCasos(w http.ResponseWriter, r *http.Request) {
	var filter CasoFilter

	if v := r.URL.Query().Get("ciudadano_titular_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid ciudadano_titular_id"))
			return
		}
		filter.CiudadanoTitularID = &id
	}
	if v := r.URL.Query().Get("territorial_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid territorial_id"))
			return
		}
		filter.TerritorialID = &id
	}
	if v := r.URL.Query().Get("estado"); v != "" {
		estado := EstadoNachec(v)
		filter.Estado = &estado
	}
	if v := r.URL.Query().Get("prioridad"); v != "" {
		prioridad := Prioridad(v)
		filter.Prioridad = &prioridad
	}
	if v := r.URL.Query().Get("municipio"); v != "" {
		filter.Municipio = &v
	}
	if r.URL.Query().Get("vencidos") == "true" {
		filter.SoloVencidos = true
		filter.Hoy = time.Now()
	}

	casos, err := h.repo.ListCasos(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": casos, "total": len(casos)})
}

func (h *Handler) GetHistorial(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	historial, err := h.repo.GetHistorial(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": historial, "total": len(historial)})
}

func (h *Handler) TomarCaso(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id types.ID, u *auth.User) (*CasoNachec, error) {
		return h.svc.TomarCaso(r.Context(), id, u)
	})
}

func (h *Handler) MarcarDocPendiente(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Pendiente bool `json:"pendiente"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.svc.MarcarDocPendiente(r.Context(), id, req.Pendiente, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) RechazarCaso(w http.ResponseWriter, r *http.Request) {
	h.conMotivo(w, r, func(id types.ID, u *auth.User, motivo string) (*CasoNachec, error) {
		return h.svc.RechazarCaso(r.Context(), id, u, motivo)
	})
}

func (h *Handler) EnviarAAsignacion(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id types.ID, u *auth.User) (*CasoNachec, error) {
		return h.svc.EnviarAAsignacion(r.Context(), id, u)
	})
}

func (h *Handler) AsignarTerritorial(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		TerritorialID types.ID `json:"territorial_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.svc.AsignarTerritorial(r.Context(), id, req.TerritorialID, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) IniciarRelevamiento(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id types.ID, u *auth.User) (*CasoNachec, error) {
		return h.svc.IniciarRelevamiento(r.Context(), id, u)
	})
}

func (h *Handler) RegistrarRelevamiento(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		CantidadConvivientes int    `json:"cantidad_convivientes"`
		HayEmbarazo          bool   `json:"hay_embarazo"`
		HayDiscapacidad      bool   `json:"hay_discapacidad"`
		IngresoMensualRango  string `json:"ingreso_mensual_rango"`
		SituacionLaboral     string `json:"situacion_laboral"`
		TipoVivienda         string `json:"tipo_vivienda"`
		AccesoAlimentos      string `json:"acceso_alimentos"`
		HayViolencia         bool   `json:"hay_violencia"`
		HaySituacionCalle    bool   `json:"hay_situacion_calle"`
		UrgenciaAlimentaria  bool   `json:"urgencia_alimentaria"`
		Completado           bool   `json:"completado"`
		Observaciones        string `json:"observaciones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rel, err := h.svc.RegistrarRelevamiento(r.Context(), id, RegistrarRelevamientoRequest{
		CantidadConvivientes: req.CantidadConvivientes,
		HayEmbarazo:          req.HayEmbarazo,
		HayDiscapacidad:      req.HayDiscapacidad,
		IngresoMensualRango:  req.IngresoMensualRango,
		SituacionLaboral:     req.SituacionLaboral,
		TipoVivienda:         req.TipoVivienda,
		AccesoAlimentos:      req.AccesoAlimentos,
		HayViolencia:         req.HayViolencia,
		HaySituacionCalle:    req.HaySituacionCalle,
		UrgenciaAlimentaria:  req.UrgenciaAlimentaria,
		Completado:           req.Completado,
		Observaciones:        req.Observaciones,
	}, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *Handler) FinalizarRelevamiento(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id types.ID, u *auth.User) (*CasoNachec, error) {
		return h.svc.FinalizarRelevamiento(r.Context(), id, u)
	})
}

func (h *Handler) RegistrarEvaluacion(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		ScoreTotal      float64                 `json:"score_total"`
		CategoriaFinal  CategoriaVulnerabilidad `json:"categoria_final"`
		Dictamen        string                  `json:"dictamen"`
		Recomendaciones string                  `json:"recomendaciones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	e, err := h.svc.RegistrarEvaluacion(r.Context(), id, RegistrarEvaluacionRequest{
		ScoreTotal:      req.ScoreTotal,
		CategoriaFinal:  req.CategoriaFinal,
		Dictamen:        req.Dictamen,
		Recomendaciones: req.Recomendaciones,
	}, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) ConfirmarEvaluacion(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id types.ID, u *auth.User) (*CasoNachec, error) {
		return h.svc.ConfirmarEvaluacion(r.Context(), id, u)
	})
}

func (h *Handler) DefinirPlan(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		ObjetivoGeneral string `json:"objetivo_general"`
		HorizonteDias   int    `json:"horizonte_dias"`
		Observaciones   string `json:"observaciones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p, err := h.svc.DefinirPlan(r.Context(), id, DefinirPlanRequest{
		ObjetivoGeneral: req.ObjetivoGeneral,
		HorizonteDias:   req.HorizonteDias,
		Observaciones:   req.Observaciones,
	}, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ActivarPlan(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id types.ID, u *auth.User) (*CasoNachec, error) {
		return h.svc.ActivarPlan(r.Context(), id, u)
	})
}

func (h *Handler) ProgramarPrestacion(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Tipo            TipoPrestacion       `json:"tipo"`
		Descripcion     string               `json:"descripcion"`
		Frecuencia      FrecuenciaPrestacion `json:"frecuencia"`
		FechaProgramada *time.Time           `json:"fecha_programada"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p, err := h.svc.ProgramarPrestacion(r.Context(), id, ProgramarPrestacionRequest{
		Tipo:            req.Tipo,
		Descripcion:     req.Descripcion,
		Frecuencia:      req.Frecuencia,
		FechaProgramada: req.FechaProgramada,
	}, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ListPrestaciones(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	prestaciones, err := h.repo.ListPrestaciones(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": prestaciones, "total": len(prestaciones)})
}

func (h *Handler) RegistrarEntrega(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "prestacionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid prestacion ID"))
		return
	}

	p, err := h.svc.RegistrarEntrega(r.Context(), id, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PasarASeguimiento(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, func(id types.ID, u *auth.User) (*CasoNachec, error) {
		return h.svc.PasarASeguimiento(r.Context(), id, u)
	})
}

func (h *Handler) CerrarCaso(w http.ResponseWriter, r *http.Request) {
	h.conMotivo(w, r, func(id types.ID, u *auth.User, motivo string) (*CasoNachec, error) {
		return h.svc.CerrarCaso(r.Context(), id, u, motivo)
	})
}

func (h *Handler) SuspenderCaso(w http.ResponseWriter, r *http.Request) {
	h.conMotivo(w, r, func(id types.ID, u *auth.User, motivo string) (*CasoNachec, error) {
		return h.svc.SuspenderCaso(r.Context(), id, u, motivo)
	})
}

func (h *Handler) ReactivarCaso(w http.ResponseWriter, r *http.Request) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Destino EstadoNachec `json:"destino"`
		Motivo  string       `json:"motivo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.svc.ReactivarCaso(r.Context(), id, req.Destino, auth.GetUser(r.Context()), req.Motivo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListTareas(w http.ResponseWriter, r *http.Request) {
	var filter TareaFilter

	if v := r.URL.Query().Get("caso_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid caso_id"))
			return
		}
		filter.CasoID = &id
	}
	if v := r.URL.Query().Get("asignado_a"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid asignado_a"))
			return
		}
		filter.AsignadoA = &id
	}
	if v := r.URL.Query().Get("estado"); v != "" {
		estado := EstadoTarea(v)
		filter.Estado = &estado
	}
	if v := r.URL.Query().Get("tipo"); v != "" {
		tipo := TipoTarea(v)
		filter.Tipo = &tipo
	}

	tareas, err := h.repo.ListTareas(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tareas, "total": len(tareas)})
}

func (h *Handler) simple(w http.ResponseWriter, r *http.Request, op func(id types.ID, u *auth.User) (*CasoNachec, error)) {
	id, err := casoID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := op(id, auth.GetUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) conMotivo(w http.ResponseWriter, r *http.Request, op func(id types.ID, u *auth.User, motivo string) (*CasoNachec, error)) {
	id, err := casoID(r)
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

	c, err := op(id, auth.GetUser(r.Context()), req.Motivo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func casoID(r *http.Request) (types.ID, error) {
	id, err := types.ParseID(chi.URLParam(r, "casoID"))
	if err != nil {
		return "", errors.BadRequest("invalid caso ID")
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
