package nachec

import (
	"time"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// EstadoNachec is the workflow state of a vulnerability-assessment case
type EstadoNachec string

const (
	EstadoDerivado       EstadoNachec = "DERIVADO"
	EstadoEnRevision     EstadoNachec = "EN_REVISION"
	EstadoAAsignar       EstadoNachec = "A_ASIGNAR"
	EstadoAsignado       EstadoNachec = "ASIGNADO"
	EstadoEnRelevamiento EstadoNachec = "EN_RELEVAMIENTO"
	EstadoEvaluado       EstadoNachec = "EVALUADO"
	EstadoPlanDefinido   EstadoNachec = "PLAN_DEFINIDO"
	EstadoEnEjecucion    EstadoNachec = "EN_EJECUCION"
	EstadoEnSeguimiento  EstadoNachec = "EN_SEGUIMIENTO"
	EstadoCerrado        EstadoNachec = "CERRADO"
	EstadoSuspendido     EstadoNachec = "SUSPENDIDO"
	EstadoRechazado      EstadoNachec = "RECHAZADO"
)

// Prioridad is the case priority
type Prioridad string

const (
	PrioridadBaja    Prioridad = "BAJA"
	PrioridadMedia   Prioridad = "MEDIA"
	PrioridadAlta    Prioridad = "ALTA"
	PrioridadUrgente Prioridad = "URGENTE"
)

// PrioridadValida reports whether p is a known priority
func PrioridadValida(p Prioridad) bool {
	switch p {
	case PrioridadBaja, PrioridadMedia, PrioridadAlta, PrioridadUrgente:
		return true
	}
	return false
}

// transiciones is the single transition table every state change is
// validated against. Absent sources are terminal.
var transiciones = map[EstadoNachec][]EstadoNachec{
	EstadoDerivado:       {EstadoEnRevision, EstadoRechazado},
	EstadoEnRevision:     {EstadoAAsignar, EstadoRechazado},
	EstadoAAsignar:       {EstadoAsignado},
	EstadoAsignado:       {EstadoEnRelevamiento, EstadoSuspendido},
	EstadoEnRelevamiento: {EstadoEvaluado, EstadoSuspendido},
	EstadoEvaluado:       {EstadoPlanDefinido, EstadoEnRelevamiento, EstadoSuspendido},
	EstadoPlanDefinido:   {EstadoEnEjecucion, EstadoSuspendido},
	EstadoEnEjecucion:    {EstadoEnSeguimiento, EstadoSuspendido},
	EstadoEnSeguimiento:  {EstadoCerrado, EstadoSuspendido},
	EstadoSuspendido: {
		EstadoAsignado, EstadoEnRelevamiento, EstadoEvaluado,
		EstadoPlanDefinido, EstadoEnEjecucion, EstadoEnSeguimiento,
	},
}

// PuedeTransicionar reports whether the table allows desde → hasta
func PuedeTransicionar(desde, hasta EstadoNachec) bool {
	for _, permitido := range transiciones[desde] {
		if permitido == hasta {
			return true
		}
	}
	return false
}

// ValidarTransicion returns an IllegalTransition error when the table
// forbids the pair
func ValidarTransicion(desde, hasta EstadoNachec) error {
	if !PuedeTransicionar(desde, hasta) {
		return errors.IllegalTransition(string(desde), string(hasta))
	}
	return nil
}

// EsTerminal reports whether the state admits no further transitions
func EsTerminal(estado EstadoNachec) bool {
	return len(transiciones[estado]) == 0
}

// Estados returns every workflow state in lifecycle order
func Estados() []EstadoNachec {
	return []EstadoNachec{
		EstadoDerivado, EstadoEnRevision, EstadoAAsignar, EstadoAsignado,
		EstadoEnRelevamiento, EstadoEvaluado, EstadoPlanDefinido,
		EstadoEnEjecucion, EstadoEnSeguimiento, EstadoCerrado,
		EstadoSuspendido, EstadoRechazado,
	}
}

// CasoNachec is a vulnerability-assessment case moving through the
// ordered intake-to-follow-up workflow
type CasoNachec struct {
	ID                 types.ID     `json:"id"`
	CiudadanoTitularID types.ID     `json:"ciudadano_titular_id"`
	Estado             EstadoNachec `json:"estado"`
	Prioridad          Prioridad    `json:"prioridad"`

	Municipio             string `json:"municipio"`
	Localidad             string `json:"localidad"`
	Direccion             string `json:"direccion"`
	ReferenciasDomicilio  string `json:"referencias_domicilio"`

	OperadorAdmisionID  *types.ID `json:"operador_admision_id,omitempty"`
	CoordinadorID       *types.ID `json:"coordinador_id,omitempty"`
	TerritorialID       *types.ID `json:"territorial_id,omitempty"`
	ReferenteProgramaID *types.ID `json:"referente_programa_id,omitempty"`

	FechaDerivacion   time.Time  `json:"fecha_derivacion"`
	FechaAsignacion   *time.Time `json:"fecha_asignacion,omitempty"`
	FechaRelevamiento *time.Time `json:"fecha_relevamiento,omitempty"`
	FechaEvaluacion   *time.Time `json:"fecha_evaluacion,omitempty"`
	FechaCierre       *time.Time `json:"fecha_cierre,omitempty"`

	MotivoDerivacion string `json:"motivo_derivacion"`
	MotivoRechazo    string `json:"motivo_rechazo"`
	MotivoSuspension string `json:"motivo_suspension"`
	MotivoCierre     string `json:"motivo_cierre"`

	SLARevision     *time.Time `json:"sla_revision,omitempty"`
	SLARelevamiento *time.Time `json:"sla_relevamiento,omitempty"`

	TieneDuplicado bool   `json:"tiene_duplicado"`
	DocPendiente   bool   `json:"doc_pendiente"`
	Observaciones  string `json:"observaciones"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstaAbierto reports whether the case blocks the citizen from being
// flagged as a duplicate elsewhere
func (c *CasoNachec) EstaAbierto() bool {
	return c.Estado != EstadoCerrado && c.Estado != EstadoRechazado
}

// RevisionVencida reports whether the review SLA has lapsed
func (c *CasoNachec) RevisionVencida(hoy time.Time) bool {
	return EstaVencido(c.SLARevision, hoy)
}

// RelevamientoVencido reports whether the field-survey SLA has lapsed
func (c *CasoNachec) RelevamientoVencido(hoy time.Time) bool {
	return EstaVencido(c.SLARelevamiento, hoy)
}

// Relevamiento is the sociofamiliar field survey for a case
type Relevamiento struct {
	ID            types.ID `json:"id"`
	CasoID        types.ID `json:"caso_id"`
	TerritorialID types.ID `json:"territorial_id"`

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

	Completado        bool       `json:"completado"`
	FechaFinalizacion *time.Time `json:"fecha_finalizacion,omitempty"`
	Observaciones     string     `json:"observaciones"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoriaVulnerabilidad classifies the evaluated household
type CategoriaVulnerabilidad string

const (
	CategoriaCritica  CategoriaVulnerabilidad = "CRITICA"
	CategoriaAlta     CategoriaVulnerabilidad = "ALTA"
	CategoriaMedia    CategoriaVulnerabilidad = "MEDIA"
	CategoriaBaja     CategoriaVulnerabilidad = "BAJA"
)

// Evaluacion is the vulnerability assessment derived from a survey
type Evaluacion struct {
	ID             types.ID `json:"id"`
	CasoID         types.ID `json:"caso_id"`
	RelevamientoID types.ID `json:"relevamiento_id"`
	EvaluadorID    types.ID `json:"evaluador_id"`

	ScoreTotal      float64                 `json:"score_total"`
	CategoriaFinal  CategoriaVulnerabilidad `json:"categoria_final"`
	Dictamen        string                  `json:"dictamen"`
	Recomendaciones string                  `json:"recomendaciones"`

	CreatedAt time.Time `json:"created_at"`
}

// PlanIntervencion is an intervention plan for a case. At most one plan
// is vigente at a time.
type PlanIntervencion struct {
	ID          types.ID `json:"id"`
	CasoID      types.ID `json:"caso_id"`
	ReferenteID types.ID `json:"referente_id"`

	ObjetivoGeneral string    `json:"objetivo_general"`
	FechaInicio     time.Time `json:"fecha_inicio"`
	HorizonteDias   int       `json:"horizonte_dias"`

	Vigente         bool       `json:"vigente"`
	FechaActivacion *time.Time `json:"fecha_activacion,omitempty"`
	Observaciones   string     `json:"observaciones"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TipoPrestacion classifies benefits delivered under a plan
type TipoPrestacion string

const (
	PrestacionAlimentaria TipoPrestacion = "ALIMENTARIA"
	PrestacionEconomica   TipoPrestacion = "ECONOMICA"
	PrestacionMaterial    TipoPrestacion = "MATERIAL"
	PrestacionServicio    TipoPrestacion = "SERVICIO"
)

// EstadoPrestacion is the delivery lifecycle of a benefit
type EstadoPrestacion string

const (
	PrestacionCreada     EstadoPrestacion = "CREADA"
	PrestacionProgramada EstadoPrestacion = "PROGRAMADA"
	PrestacionEntregada  EstadoPrestacion = "ENTREGADA"
	PrestacionSuspendida EstadoPrestacion = "SUSPENDIDA"
)

// FrecuenciaPrestacion is how often a benefit recurs
type FrecuenciaPrestacion string

const (
	FrecuenciaUnica     FrecuenciaPrestacion = "UNICA"
	FrecuenciaSemanal   FrecuenciaPrestacion = "SEMANAL"
	FrecuenciaQuincenal FrecuenciaPrestacion = "QUINCENAL"
	FrecuenciaMensual   FrecuenciaPrestacion = "MENSUAL"
)

// Prestacion is a concrete benefit scheduled under an intervention plan
type Prestacion struct {
	ID     types.ID `json:"id"`
	PlanID types.ID `json:"plan_id"`
	CasoID types.ID `json:"caso_id"`

	Tipo        TipoPrestacion       `json:"tipo"`
	Descripcion string               `json:"descripcion"`
	Estado      EstadoPrestacion     `json:"estado"`
	Frecuencia  FrecuenciaPrestacion `json:"frecuencia"`

	FechaProgramada *time.Time `json:"fecha_programada,omitempty"`
	FechaEntregada  *time.Time `json:"fecha_entregada,omitempty"`
	ResponsableID   types.ID   `json:"responsable_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TipoTarea classifies workflow tasks
type TipoTarea string

const (
	TareaRelevamiento TipoTarea = "RELEVAMIENTO"
	TareaEvaluacion   TipoTarea = "EVALUACION"
	TareaEntrega      TipoTarea = "ENTREGA"
	TareaSeguimiento  TipoTarea = "SEGUIMIENTO"
)

// EstadoTarea is the lifecycle of a workflow task
type EstadoTarea string

const (
	TareaPendiente  EstadoTarea = "PENDIENTE"
	TareaEnCurso    EstadoTarea = "EN_CURSO"
	TareaCompletada EstadoTarea = "COMPLETADA"
	TareaVencida    EstadoTarea = "VENCIDA"
)

// TareaNachec is an operational task attached to a case
type TareaNachec struct {
	ID           types.ID  `json:"id"`
	CasoID       types.ID  `json:"caso_id"`
	PrestacionID *types.ID `json:"prestacion_id,omitempty"`

	Tipo        TipoTarea `json:"tipo"`
	Titulo      string    `json:"titulo"`
	Descripcion string    `json:"descripcion"`

	AsignadoA types.ID    `json:"asignado_a"`
	CreadoPor types.ID    `json:"creado_por"`
	Estado    EstadoTarea `json:"estado"`
	Prioridad Prioridad   `json:"prioridad"`

	FechaVencimiento time.Time  `json:"fecha_vencimiento"`
	FechaCompletada  *time.Time `json:"fecha_completada,omitempty"`
	Resultado        string     `json:"resultado"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistorialEstado is an immutable record of one workflow transition
type HistorialEstado struct {
	ID             types.ID     `json:"id"`
	CasoID         types.ID     `json:"caso_id"`
	EstadoAnterior EstadoNachec `json:"estado_anterior"`
	EstadoNuevo    EstadoNachec `json:"estado_nuevo"`
	UsuarioID      types.ID     `json:"usuario_id"`
	Observacion    string       `json:"observacion"`
	RegistradoEn   time.Time    `json:"registrado_en"`
}
