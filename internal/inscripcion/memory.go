package inscripcion

import (
	"context"
	"sort"
	"sync"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// MemoryRepository is an in-memory enrollment store used in tests
type MemoryRepository struct {
	mu sync.Mutex

	inscripciones map[types.ID]*InscripcionPrograma
	derivaciones  map[types.ID]*DerivacionPrograma
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		inscripciones: make(map[types.ID]*InscripcionPrograma),
		derivaciones:  make(map[types.ID]*DerivacionPrograma),
	}
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn((*memoryTx)(r))
}

func (r *MemoryRepository) CreateInscripcion(ctx context.Context, i *InscripcionPrograma) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).CreateInscripcion(ctx, i)
}

func (r *MemoryRepository) GetInscripcion(ctx context.Context, id types.ID) (*InscripcionPrograma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.inscripciones[id]
	if !ok {
		return nil, errors.NotFound("inscripcion", string(id))
	}
	cp := *i
	return &cp, nil
}

func (r *MemoryRepository) GetInscripcionPorPar(ctx context.Context, ciudadanoID, programaID types.ID) (*InscripcionPrograma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).GetInscripcionPorPar(ctx, ciudadanoID, programaID)
}

func (r *MemoryRepository) ListInscripciones(ctx context.Context, filter InscripcionFilter) ([]*InscripcionPrograma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*InscripcionPrograma
	for _, i := range r.inscripciones {
		if filter.CiudadanoID != nil && i.CiudadanoID != *filter.CiudadanoID {
			continue
		}
		if filter.ProgramaID != nil && i.ProgramaID != *filter.ProgramaID {
			continue
		}
		if filter.Estado != nil && i.Estado != *filter.Estado {
			continue
		}
		cp := *i
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].FechaInscripcion.After(out[b].FechaInscripcion) })
	return out, nil
}

func (r *MemoryRepository) CreateDerivacion(ctx context.Context, d *DerivacionPrograma) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.derivaciones[d.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetDerivacion(ctx context.Context, id types.ID) (*DerivacionPrograma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.derivaciones[id]
	if !ok {
		return nil, errors.NotFound("derivacion", string(id))
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) ListDerivaciones(ctx context.Context, filter DerivacionFilter) ([]*DerivacionPrograma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*DerivacionPrograma
	for _, d := range r.derivaciones {
		if filter.CiudadanoID != nil && d.CiudadanoID != *filter.CiudadanoID {
			continue
		}
		if filter.ProgramaDestinoID != nil && d.ProgramaDestinoID != *filter.ProgramaDestinoID {
			continue
		}
		if filter.Estado != nil && d.Estado != *filter.Estado {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

// memoryTx reuses the repository maps under the already-held mutex
type memoryTx MemoryRepository

func (t *memoryTx) GetDerivacionForUpdate(ctx context.Context, id types.ID) (*DerivacionPrograma, error) {
	d, ok := t.derivaciones[id]
	if !ok {
		return nil, errors.NotFound("derivacion", string(id))
	}
	cp := *d
	return &cp, nil
}

func (t *memoryTx) UpdateDerivacion(ctx context.Context, d *DerivacionPrograma) error {
	if _, ok := t.derivaciones[d.ID]; !ok {
		return errors.NotFound("derivacion", string(d.ID))
	}
	cp := *d
	t.derivaciones[d.ID] = &cp
	return nil
}

func (t *memoryTx) GetInscripcionPorPar(ctx context.Context, ciudadanoID, programaID types.ID) (*InscripcionPrograma, error) {
	for _, i := range t.inscripciones {
		if i.CiudadanoID == ciudadanoID && i.ProgramaID == programaID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) CreateInscripcion(ctx context.Context, i *InscripcionPrograma) error {
	for _, existing := range t.inscripciones {
		if existing.CiudadanoID == i.CiudadanoID && existing.ProgramaID == i.ProgramaID {
			return errors.Conflict("ciudadano already enrolled in this programa")
		}
	}
	cp := *i
	t.inscripciones[i.ID] = &cp
	return nil
}

func (t *memoryTx) GetInscripcionForUpdate(ctx context.Context, id types.ID) (*InscripcionPrograma, error) {
	i, ok := t.inscripciones[id]
	if !ok {
		return nil, errors.NotFound("inscripcion", string(id))
	}
	cp := *i
	return &cp, nil
}

func (t *memoryTx) UpdateInscripcion(ctx context.Context, i *InscripcionPrograma) error {
	if _, ok := t.inscripciones[i.ID]; !ok {
		return errors.NotFound("inscripcion", string(i.ID))
	}
	cp := *i
	t.inscripciones[i.ID] = &cp
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
var _ Tx = (*memoryTx)(nil)
