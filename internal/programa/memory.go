package programa

import (
	"context"
	"sort"
	"sync"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// MemoryRepository is an in-memory catalog store used in tests
type MemoryRepository struct {
	mu        sync.RWMutex
	programas map[types.ID]*Programa
}

// NewMemoryRepository creates an empty in-memory catalog
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{programas: make(map[types.ID]*Programa)}
}

func (r *MemoryRepository) Create(ctx context.Context, p *Programa) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.programas {
		if existing.Codigo == p.Codigo || existing.Nombre == p.Nombre || existing.Tipo == p.Tipo {
			return errors.Conflict("programa with this codigo, nombre or tipo already exists")
		}
	}
	cp := *p
	r.programas[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id types.ID) (*Programa, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.programas[id]
	if !ok {
		return nil, errors.NotFound("programa", string(id))
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) GetByTipo(ctx context.Context, tipo string) (*Programa, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.programas {
		if p.Tipo == tipo {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.NotFound("programa", tipo)
}

func (r *MemoryRepository) List(ctx context.Context, soloActivos bool) ([]*Programa, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Programa
	for _, p := range r.programas {
		if soloActivos && !p.Activo {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Orden != out[j].Orden {
			return out[i].Orden < out[j].Orden
		}
		return out[i].Nombre < out[j].Nombre
	})
	return out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, p *Programa) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.programas[p.ID]; !ok {
		return errors.NotFound("programa", string(p.ID))
	}
	cp := *p
	r.programas[p.ID] = &cp
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
