package institucional

import (
	"fmt"
	"strings"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// EstadoGlobal is the institution-wide administrative state
type EstadoGlobal string

const (
	GlobalActivo      EstadoGlobal = "ACTIVO"
	GlobalObservacion EstadoGlobal = "OBSERVACION"
	GlobalSuspendido  EstadoGlobal = "SUSPENDIDO"
	GlobalCerrado     EstadoGlobal = "CERRADO"
)

// EstadoPrograma is the per-link operational state of a program inside
// an institution
type EstadoPrograma string

const (
	ProgramaActivo     EstadoPrograma = "ACTIVO"
	ProgramaSuspendido EstadoPrograma = "SUSPENDIDO"
	ProgramaCerrado    EstadoPrograma = "CERRADO"
)

// EstadoDerivacion is the lifecycle of an institutional referral
type EstadoDerivacion string

const (
	DerivacionPendiente         EstadoDerivacion = "PENDIENTE"
	DerivacionAceptada          EstadoDerivacion = "ACEPTADA"
	DerivacionRechazada         EstadoDerivacion = "RECHAZADA"
	DerivacionAceptadaUnificada EstadoDerivacion = "ACEPTADA_UNIFICADA"
)

// Urgencia is the referral priority
type Urgencia string

const (
	UrgenciaBaja  Urgencia = "BAJA"
	UrgenciaMedia Urgencia = "MEDIA"
	UrgenciaAlta  Urgencia = "ALTA"
)

// EstadoCaso is the lifecycle of an institutional case
type EstadoCaso string

const (
	CasoActivo        EstadoCaso = "ACTIVO"
	CasoEnSeguimiento EstadoCaso = "EN_SEGUIMIENTO"
	CasoSuspendido    EstadoCaso = "SUSPENDIDO"
	CasoEgresado      EstadoCaso = "EGRESADO"
	CasoCerrado       EstadoCaso = "CERRADO"
)

// LegajoInstitucional carries the institution-wide state that gates
// admission across every program link of that institution
type LegajoInstitucional struct {
	InstitucionID types.ID     `json:"institucion_id"`
	EstadoGlobal  EstadoGlobal `json:"estado_global"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// InstitucionPrograma links one institution to one program with its
// own operational state and capacity policy
type InstitucionPrograma struct {
	ID            types.ID       `json:"id"`
	InstitucionID types.ID       `json:"institucion_id"`
	ProgramaID    types.ID       `json:"programa_id"`

	EstadoPrograma EstadoPrograma `json:"estado_programa"`
	Activo         bool           `json:"activo"`

	// Capacity policy. CupoMaximo nil means unlimited.
	CupoMaximo       *int `json:"cupo_maximo"`
	ControlarCupo    bool `json:"controlar_cupo"`
	PermiteSobrecupo bool `json:"permite_sobrecupo"`

	ResponsableLocalID *types.ID  `json:"responsable_local_id,omitempty"`
	FechaInicio        *time.Time `json:"fecha_inicio,omitempty"`
	FechaFin           *time.Time `json:"fecha_fin,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PuedeAceptarDerivaciones is the single admission predicate: the
// institution must not be globally closed, the link must be ACTIVO and
// administratively enabled. Quota is checked separately because
// unification bypasses it.
func (ip *InstitucionPrograma) PuedeAceptarDerivaciones(global EstadoGlobal) bool {
	if global == GlobalCerrado {
		return false
	}
	return ip.EstadoPrograma == ProgramaActivo && ip.Activo
}

// CupoDisponible returns remaining capacity given the current open-case
// count, or nil when the link has no quota configured
func (ip *InstitucionPrograma) CupoDisponible(ocupados int) *int {
	if ip.CupoMaximo == nil {
		return nil
	}
	libre := *ip.CupoMaximo - ocupados
	if libre < 0 {
		libre = 0
	}
	return &libre
}

// DerivacionInstitucional is a request to admit a citizen into an
// institution-program. Institucion and Programa are denormalized from
// the link at creation time for listing without joins.
type DerivacionInstitucional struct {
	ID                    types.ID `json:"id"`
	CiudadanoID           types.ID `json:"ciudadano_id"`
	InstitucionID         types.ID `json:"institucion_id"`
	ProgramaID            types.ID `json:"programa_id"`
	InstitucionProgramaID types.ID `json:"institucion_programa_id"`

	Estado        EstadoDerivacion `json:"estado"`
	Urgencia      Urgencia         `json:"urgencia"`
	Motivo        string           `json:"motivo"`
	Observaciones string           `json:"observaciones"`
	DerivadoPor   *types.ID        `json:"derivado_por,omitempty"`

	Respuesta      string     `json:"respuesta"`
	FechaRespuesta *time.Time `json:"fecha_respuesta,omitempty"`
	RespondidoPor  *types.ID  `json:"respondido_por,omitempty"`
	CasoCreadoID   *types.ID  `json:"caso_creado_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstaPendiente reports whether the referral can still be responded
func (d *DerivacionInstitucional) EstaPendiente() bool {
	return d.Estado == DerivacionPendiente
}

// CasoInstitucional is the operative record of one citizen being served
// by one institution under one program. (CiudadanoID,
// InstitucionProgramaID, Version) is unique; each referral-driven
// reopen after closure creates a new row with a bumped version.
type CasoInstitucional struct {
	ID                    types.ID `json:"id"`
	CiudadanoID           types.ID `json:"ciudadano_id"`
	InstitucionProgramaID types.ID `json:"institucion_programa_id"`

	Codigo  string     `json:"codigo"`
	Version int        `json:"version"`
	Estado  EstadoCaso `json:"estado"`

	FechaApertura time.Time  `json:"fecha_apertura"`
	FechaCierre   *time.Time `json:"fecha_cierre,omitempty"`

	ResponsableID *types.ID `json:"responsable_id,omitempty"`
	MotivoCierre  string    `json:"motivo_cierre"`
	Observaciones string    `json:"observaciones"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstaAbierto reports whether the case consumes quota and is a
// unification target
func (c *CasoInstitucional) EstaAbierto() bool {
	return c.Estado == CasoActivo || c.Estado == CasoEnSeguimiento
}

// CambiarEstado applies a manual state change. No-op transitions are
// rejected; CERRADO and EGRESADO require a closure reason and stamp the
// closure date. Reopening from a terminal state goes through Reabrir.
func (c *CasoInstitucional) CambiarEstado(nuevo EstadoCaso, motivoCierre string, now time.Time) error {
	if nuevo == c.Estado {
		return errors.AlreadyProcessed(fmt.Sprintf("caso %s already in estado %s", c.Codigo, c.Estado))
	}
	if c.Estado == CasoCerrado || c.Estado == CasoEgresado {
		return errors.IllegalTransition(string(c.Estado), string(nuevo))
	}

	if nuevo == CasoCerrado || nuevo == CasoEgresado {
		if strings.TrimSpace(motivoCierre) == "" {
			return errors.MissingReason("motivo_cierre is required to close a caso")
		}
		c.MotivoCierre = motivoCierre
		fecha := now
		c.FechaCierre = &fecha
	}

	c.Estado = nuevo
	c.UpdatedAt = now
	return nil
}

// Reabrir reopens a closed case in place. Only legal from CERRADO or
// EGRESADO; the version is not bumped, version bumps happen only when a
// new referral is accepted after closure.
func (c *CasoInstitucional) Reabrir(nota string, now time.Time) error {
	if c.Estado != CasoCerrado && c.Estado != CasoEgresado {
		return errors.IllegalTransition(string(c.Estado), string(CasoActivo))
	}

	c.Estado = CasoActivo
	c.FechaCierre = nil
	c.MotivoCierre = ""
	if nota != "" {
		c.AppendObservacion("[REAPERTURA] "+nota, now)
	} else {
		c.AppendObservacion("[REAPERTURA]", now)
	}
	c.UpdatedAt = now
	return nil
}

// AppendObservacion appends a dated line to the free-text log
func (c *CasoInstitucional) AppendObservacion(nota string, now time.Time) {
	linea := fmt.Sprintf("[%s] %s", now.Format("2006-01-02"), nota)
	if c.Observaciones == "" {
		c.Observaciones = linea
		return
	}
	c.Observaciones += "\n" + linea
}

// GenerarCodigoCaso builds the human-facing case code from the program
// type, the opening date and a global sequence number
func GenerarCodigoCaso(tipoPrograma string, fecha time.Time, seq int64) string {
	prefijo := strings.ToUpper(tipoPrograma)
	if len(prefijo) > 3 {
		prefijo = prefijo[:3]
	}
	return fmt.Sprintf("CASO-%s-%s-%05d", prefijo, fecha.Format("20060102"), seq)
}

// HistorialCaso is an append-only record of every case state change
type HistorialCaso struct {
	ID             types.ID   `json:"id"`
	CasoID         types.ID   `json:"caso_id"`
	EstadoAnterior EstadoCaso `json:"estado_anterior"`
	EstadoNuevo    EstadoCaso `json:"estado_nuevo"`
	UsuarioID      types.ID   `json:"usuario_id"`
	Observacion    string     `json:"observacion"`
	RegistradoEn   time.Time  `json:"registrado_en"`
}
