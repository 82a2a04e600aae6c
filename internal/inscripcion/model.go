package inscripcion

import (
	"fmt"
	"strings"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// EstadoInscripcion is the lifecycle of a citizen-level enrollment
type EstadoInscripcion string

const (
	InscripcionPendiente     EstadoInscripcion = "PENDIENTE"
	InscripcionActiva        EstadoInscripcion = "ACTIVO"
	InscripcionEnSeguimiento EstadoInscripcion = "EN_SEGUIMIENTO"
	InscripcionSuspendida    EstadoInscripcion = "SUSPENDIDO"
	InscripcionCerrada       EstadoInscripcion = "CERRADO"
)

// ViaIngreso records how the citizen entered the program
type ViaIngreso string

const (
	ViaDirecto            ViaIngreso = "DIRECTO"
	ViaDerivacionInterna  ViaIngreso = "DERIVACION_INTERNA"
	ViaDerivacionExterna  ViaIngreso = "DERIVACION_EXTERNA"
	ViaEspontaneo         ViaIngreso = "ESPONTANEO"
)

// EstadoDerivacion is the lifecycle of a program-to-program referral
type EstadoDerivacion string

const (
	DerivacionPendiente EstadoDerivacion = "PENDIENTE"
	DerivacionAceptada  EstadoDerivacion = "ACEPTADA"
	DerivacionRechazada EstadoDerivacion = "RECHAZADA"
	DerivacionCancelada EstadoDerivacion = "CANCELADA"
)

// Urgencia is the referral priority
type Urgencia string

const (
	UrgenciaBaja  Urgencia = "BAJA"
	UrgenciaMedia Urgencia = "MEDIA"
	UrgenciaAlta  Urgencia = "ALTA"
)

// InscripcionPrograma is a citizen-level program enrollment. (Ciudadano,
// Programa) is unique: a citizen holds at most one enrollment row per
// program across its whole lifecycle.
type InscripcionPrograma struct {
	ID          types.ID `json:"id"`
	CiudadanoID types.ID `json:"ciudadano_id"`
	ProgramaID  types.ID `json:"programa_id"`

	Codigo     string            `json:"codigo"`
	Estado     EstadoInscripcion `json:"estado"`
	ViaIngreso ViaIngreso        `json:"via_ingreso"`

	FechaInscripcion time.Time  `json:"fecha_inscripcion"`
	FechaInicio      *time.Time `json:"fecha_inicio,omitempty"`
	FechaCierre      *time.Time `json:"fecha_cierre,omitempty"`

	ResponsableID *types.ID `json:"responsable_id,omitempty"`
	// LegajoExternoID links to the institutional case serving this
	// enrollment, when there is one
	LegajoExternoID *types.ID `json:"legajo_externo_id,omitempty"`

	Notas        string `json:"notas"`
	MotivoCierre string `json:"motivo_cierre"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstaActiva reports whether the enrollment currently counts as being
// served
func (i *InscripcionPrograma) EstaActiva() bool {
	return i.Estado == InscripcionActiva || i.Estado == InscripcionEnSeguimiento
}

// Activar moves the enrollment into ACTIVO and stamps the start date on
// first activation
func (i *InscripcionPrograma) Activar(now time.Time) error {
	if i.Estado == InscripcionCerrada {
		return errors.IllegalTransition(string(i.Estado), string(InscripcionActiva))
	}
	if i.Estado == InscripcionActiva {
		return nil
	}
	i.Estado = InscripcionActiva
	if i.FechaInicio == nil {
		fecha := now
		i.FechaInicio = &fecha
	}
	i.FechaCierre = nil
	i.UpdatedAt = now
	return nil
}

// Cerrar closes the enrollment with a reason and a dated note
func (i *InscripcionPrograma) Cerrar(motivo string, now time.Time) error {
	if strings.TrimSpace(motivo) == "" {
		return errors.MissingReason("motivo is required to close an inscripcion")
	}
	if i.Estado == InscripcionCerrada {
		return errors.AlreadyProcessed("inscripcion already closed")
	}
	i.Estado = InscripcionCerrada
	i.MotivoCierre = motivo
	fecha := now
	i.FechaCierre = &fecha
	i.AppendNota("Cierre: "+motivo, now)
	i.UpdatedAt = now
	return nil
}

// AppendNota appends a dated line to the free-text log
func (i *InscripcionPrograma) AppendNota(nota string, now time.Time) {
	linea := fmt.Sprintf("[%s] %s", now.Format("2006-01-02"), nota)
	if i.Notas == "" {
		i.Notas = linea
		return
	}
	i.Notas += "\n" + linea
}

// GenerarCodigoInscripcion builds the human-facing enrollment code from
// the program code, the enrollment date and the citizen document
func GenerarCodigoInscripcion(programaCodigo string, fecha time.Time, documento string) string {
	return fmt.Sprintf("%s-%s-%s", programaCodigo, fecha.Format("20060102"), documento)
}

// DerivacionPrograma is a request to move a citizen between programs
type DerivacionPrograma struct {
	ID          types.ID `json:"id"`
	CiudadanoID types.ID `json:"ciudadano_id"`

	ProgramaOrigenID    *types.ID `json:"programa_origen_id,omitempty"`
	InscripcionOrigenID *types.ID `json:"inscripcion_origen_id,omitempty"`
	ProgramaDestinoID   types.ID  `json:"programa_destino_id"`

	Motivo   string           `json:"motivo"`
	Urgencia Urgencia         `json:"urgencia"`
	Estado   EstadoDerivacion `json:"estado"`

	DerivadoPor *types.ID `json:"derivado_por,omitempty"`

	Respuesta           string     `json:"respuesta"`
	FechaRespuesta      *time.Time `json:"fecha_respuesta,omitempty"`
	RespondidoPor       *types.ID  `json:"respondido_por,omitempty"`
	InscripcionCreadaID *types.ID  `json:"inscripcion_creada_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstaPendiente reports whether the referral can still be responded
func (d *DerivacionPrograma) EstaPendiente() bool {
	return d.Estado == DerivacionPendiente
}
