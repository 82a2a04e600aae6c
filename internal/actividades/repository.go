package actividades

import (
	"context"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/types"
)

// InscriptoFilter narrows participant listings
type InscriptoFilter struct {
	ActividadID *types.ID
	CiudadanoID *types.ID
	Estado      *EstadoInscripto
}

// AlertaFilter narrows absence alert listings
type AlertaFilter struct {
	InscriptoID *types.ID
	Tipo        *TipoAlerta
	SoloActivas bool
}

// Repository provides persistence for participants, attendance and
// absence alerts
type Repository interface {
	CreateInscripto(ctx context.Context, i *InscriptoActividad) error
	GetInscripto(ctx context.Context, id types.ID) (*InscriptoActividad, error)
	UpdateInscripto(ctx context.Context, i *InscriptoActividad) error
	ListInscriptos(ctx context.Context, filter InscriptoFilter) ([]*InscriptoActividad, error)
	AppendHistorialInscripto(ctx context.Context, h *HistorialInscripto) error
	GetHistorialInscripto(ctx context.Context, inscriptoID types.ID) ([]*HistorialInscripto, error)

	CreateAsistencia(ctx context.Context, a *RegistroAsistencia) error
	// GetAsistenciaPorDia returns nil when no mark exists for the day
	GetAsistenciaPorDia(ctx context.Context, inscriptoID types.ID, fecha time.Time) (*RegistroAsistencia, error)
	// ListAsistenciasRecientes returns the participant's latest marks,
	// newest first
	ListAsistenciasRecientes(ctx context.Context, inscriptoID types.ID, limite int) ([]*RegistroAsistencia, error)

	CreateAlerta(ctx context.Context, a *AlertaAusentismo) error
	UpdateAlerta(ctx context.Context, a *AlertaAusentismo) error
	GetAlerta(ctx context.Context, id types.ID) (*AlertaAusentismo, error)
	ListAlertas(ctx context.Context, filter AlertaFilter) ([]*AlertaAusentismo, error)
	// ExisteAlertaActiva reports whether an unreviewed alert of the
	// given type already covers the participant
	ExisteAlertaActiva(ctx context.Context, inscriptoID types.ID, tipo TipoAlerta) (bool, error)
}
