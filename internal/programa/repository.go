package programa

import (
	"context"

	"github.com/gob-chaco/nodo/internal/shared/types"
)

// Repository provides persistence for the program catalog
type Repository interface {
	Create(ctx context.Context, p *Programa) error
	Get(ctx context.Context, id types.ID) (*Programa, error)
	GetByTipo(ctx context.Context, tipo string) (*Programa, error)
	// List returns catalog entries ordered by orden then nombre.
	// When soloActivos is true, inactive programs are excluded.
	List(ctx context.Context, soloActivos bool) ([]*Programa, error)
	Update(ctx context.Context, p *Programa) error
}
