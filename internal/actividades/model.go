package actividades

import (
	"time"

	"github.com/gob-chaco/nodo/internal/shared/types"
)

// EstadoInscripto is the lifecycle of an activity participant
type EstadoInscripto string

const (
	InscriptoInscrito   EstadoInscripto = "INSCRITO"
	InscriptoActivo     EstadoInscripto = "ACTIVO"
	InscriptoFinalizado EstadoInscripto = "FINALIZADO"
	InscriptoAbandonado EstadoInscripto = "ABANDONADO"
)

// InscriptoActividad enrolls a citizen into a course or activity.
// (Actividad, Ciudadano) is unique.
type InscriptoActividad struct {
	ID          types.ID `json:"id"`
	ActividadID types.ID `json:"actividad_id"`
	CiudadanoID types.ID `json:"ciudadano_id"`

	Estado            EstadoInscripto `json:"estado"`
	FechaInscripcion  time.Time       `json:"fecha_inscripcion"`
	FechaFinalizacion *time.Time      `json:"fecha_finalizacion,omitempty"`
	Observaciones     string          `json:"observaciones"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstaCursando reports whether the participant still attends sessions
func (i *InscriptoActividad) EstaCursando() bool {
	return i.Estado == InscriptoInscrito || i.Estado == InscriptoActivo
}

// AccionInscripto classifies participant history entries
type AccionInscripto string

const (
	AccionInscripcion  AccionInscripto = "INSCRIPCION"
	AccionActivacion   AccionInscripto = "ACTIVACION"
	AccionFinalizacion AccionInscripto = "FINALIZACION"
	AccionAbandono     AccionInscripto = "ABANDONO"
)

// HistorialInscripto is an immutable record of a participant change
type HistorialInscripto struct {
	ID             types.ID        `json:"id"`
	InscriptoID    types.ID        `json:"inscripto_id"`
	Accion         AccionInscripto `json:"accion"`
	EstadoAnterior EstadoInscripto `json:"estado_anterior"`
	UsuarioID      *types.ID       `json:"usuario_id,omitempty"`
	Descripcion    string          `json:"descripcion"`
	RegistradoEn   time.Time       `json:"registrado_en"`
}

// EstadoAsistencia is the attendance mark for one session day
type EstadoAsistencia string

const (
	AsistenciaPresente    EstadoAsistencia = "PRESENTE"
	AsistenciaAusente     EstadoAsistencia = "AUSENTE"
	AsistenciaJustificado EstadoAsistencia = "JUSTIFICADO"
	AsistenciaTardanza    EstadoAsistencia = "TARDANZA"
)

// EsAusencia reports whether the mark counts toward absence streaks.
// A justified absence breaks the streak.
func (e EstadoAsistencia) EsAusencia() bool {
	return e == AsistenciaAusente
}

// RegistroAsistencia is one attendance mark. (Inscripto, Fecha) is
// unique: one mark per participant per day.
type RegistroAsistencia struct {
	ID          types.ID `json:"id"`
	InscriptoID types.ID `json:"inscripto_id"`

	Fecha         time.Time        `json:"fecha"`
	Estado        EstadoAsistencia `json:"estado"`
	Observaciones string           `json:"observaciones"`
	RegistradoPor *types.ID        `json:"registrado_por,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TipoAlerta classifies absence alerts by severity
type TipoAlerta string

const (
	AlertaAusentismo3       TipoAlerta = "AUSENTISMO_3"
	AlertaAusentismo5       TipoAlerta = "AUSENTISMO_5"
	AlertaAusentismoSemanal TipoAlerta = "AUSENTISMO_SEMANAL"
)

// AlertaAusentismo flags a participant with consecutive unjustified
// absences. It stays active until an operator reviews it.
type AlertaAusentismo struct {
	ID          types.ID `json:"id"`
	InscriptoID types.ID `json:"inscripto_id"`

	Tipo                TipoAlerta `json:"tipo"`
	DiasAusente         int        `json:"dias_ausente"`
	FechaInicioAusencia time.Time  `json:"fecha_inicio_ausencia"`

	Activa   bool      `json:"activa"`
	VistaPor *types.ID `json:"vista_por,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
