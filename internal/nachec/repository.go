package nachec

import (
	"context"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/types"
)

// CasoFilter narrows workflow case listings
type CasoFilter struct {
	CiudadanoTitularID *types.ID
	Estado             *EstadoNachec
	Prioridad          *Prioridad
	TerritorialID      *types.ID
	Municipio          *string
	SoloVencidos       bool
	Hoy                time.Time
}

// TareaFilter narrows task listings
type TareaFilter struct {
	CasoID    *types.ID
	AsignadoA *types.ID
	Estado    *EstadoTarea
	Tipo      *TipoTarea
}

// Tx is the unit of work every state-changing workflow operation runs
// in. GetCasoForUpdate locks the case row, so the transition check and
// the write are atomic against concurrent operators.
type Tx interface {
	GetCasoForUpdate(ctx context.Context, id types.ID) (*CasoNachec, error)
	UpdateCaso(ctx context.Context, c *CasoNachec) error

	// ExisteOtroCasoAbierto reports whether the citizen has another
	// case outside the terminal states.
	ExisteOtroCasoAbierto(ctx context.Context, ciudadanoID, excluirCasoID types.ID) (bool, error)

	// GetRelevamientoPorCaso and friends return nil when no row exists.
	GetRelevamientoPorCaso(ctx context.Context, casoID types.ID) (*Relevamiento, error)
	GetEvaluacionPorCaso(ctx context.Context, casoID types.ID) (*Evaluacion, error)
	GetPlanVigente(ctx context.Context, casoID types.ID) (*PlanIntervencion, error)
	UpdatePlan(ctx context.Context, p *PlanIntervencion) error

	CreateTarea(ctx context.Context, t *TareaNachec) error
	AppendHistorial(ctx context.Context, h *HistorialEstado) error
}

// Repository is the persistence boundary for the workflow
type Repository interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	CreateCaso(ctx context.Context, c *CasoNachec) error
	GetCaso(ctx context.Context, id types.ID) (*CasoNachec, error)
	ListCasos(ctx context.Context, filter CasoFilter) ([]*CasoNachec, error)
	GetHistorial(ctx context.Context, casoID types.ID) ([]*HistorialEstado, error)

	ExisteOtroCasoAbierto(ctx context.Context, ciudadanoID, excluirCasoID types.ID) (bool, error)

	CreateRelevamiento(ctx context.Context, rel *Relevamiento) error
	UpdateRelevamiento(ctx context.Context, rel *Relevamiento) error
	GetRelevamientoPorCaso(ctx context.Context, casoID types.ID) (*Relevamiento, error)

	CreateEvaluacion(ctx context.Context, e *Evaluacion) error
	GetEvaluacionPorCaso(ctx context.Context, casoID types.ID) (*Evaluacion, error)

	CreatePlan(ctx context.Context, p *PlanIntervencion) error
	GetPlanVigente(ctx context.Context, casoID types.ID) (*PlanIntervencion, error)

	CreatePrestacion(ctx context.Context, p *Prestacion) error
	GetPrestacion(ctx context.Context, id types.ID) (*Prestacion, error)
	UpdatePrestacion(ctx context.Context, p *Prestacion) error
	ListPrestaciones(ctx context.Context, casoID types.ID) ([]*Prestacion, error)

	CreateTarea(ctx context.Context, t *TareaNachec) error
	ListTareas(ctx context.Context, filter TareaFilter) ([]*TareaNachec, error)
}
