package nachec

import (
	"context"
	"sort"
	"sync"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// MemoryRepository is an in-memory workflow store used in tests.
// RunInTx serializes on a single mutex, matching the isolation the row
// locks give the postgres implementation.
type MemoryRepository struct {
	mu sync.Mutex

	casos         map[types.ID]*CasoNachec
	relevamientos map[types.ID]*Relevamiento
	evaluaciones  map[types.ID]*Evaluacion
	planes        map[types.ID]*PlanIntervencion
	prestaciones  map[types.ID]*Prestacion
	tareas        map[types.ID]*TareaNachec
	historial     []*HistorialEstado
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		casos:         make(map[types.ID]*CasoNachec),
		relevamientos: make(map[types.ID]*Relevamiento),
		evaluaciones:  make(map[types.ID]*Evaluacion),
		planes:        make(map[types.ID]*PlanIntervencion),
		prestaciones:  make(map[types.ID]*Prestacion),
		tareas:        make(map[types.ID]*TareaNachec),
	}
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn((*memoryTx)(r))
}

func (r *MemoryRepository) CreateCaso(ctx context.Context, c *CasoNachec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.casos[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetCaso(ctx context.Context, id types.ID) (*CasoNachec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.casos[id]
	if !ok {
		return nil, errors.NotFound("caso nachec", string(id))
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) ListCasos(ctx context.Context, filter CasoFilter) ([]*CasoNachec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*CasoNachec
	for _, c := range r.casos {
		if filter.CiudadanoTitularID != nil && c.CiudadanoTitularID != *filter.CiudadanoTitularID {
			continue
		}
		if filter.Estado != nil && c.Estado != *filter.Estado {
			continue
		}
		if filter.Prioridad != nil && c.Prioridad != *filter.Prioridad {
			continue
		}
		if filter.TerritorialID != nil && (c.TerritorialID == nil || *c.TerritorialID != *filter.TerritorialID) {
			continue
		}
		if filter.Municipio != nil && c.Municipio != *filter.Municipio {
			continue
		}
		if filter.SoloVencidos && !c.RevisionVencida(filter.Hoy) && !c.RelevamientoVencido(filter.Hoy) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FechaDerivacion.After(out[j].FechaDerivacion) })
	return out, nil
}

func (r *MemoryRepository) GetHistorial(ctx context.Context, casoID types.ID) ([]*HistorialEstado, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*HistorialEstado
	for _, h := range r.historial {
		if h.CasoID == casoID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegistradoEn.Before(out[j].RegistradoEn) })
	return out, nil
}

func (r *MemoryRepository) ExisteOtroCasoAbierto(ctx context.Context, ciudadanoID, excluirCasoID types.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).existeOtroAbierto(ciudadanoID, excluirCasoID), nil
}

func (r *MemoryRepository) CreateRelevamiento(ctx context.Context, rel *Relevamiento) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.relevamientos {
		if existing.CasoID == rel.CasoID {
			return errors.Conflict("caso already has a relevamiento")
		}
	}
	cp := *rel
	r.relevamientos[rel.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateRelevamiento(ctx context.Context, rel *Relevamiento) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.relevamientos[rel.ID]; !ok {
		return errors.NotFound("relevamiento", string(rel.ID))
	}
	cp := *rel
	r.relevamientos[rel.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetRelevamientoPorCaso(ctx context.Context, casoID types.ID) (*Relevamiento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).relevamientoPorCaso(casoID), nil
}

func (r *MemoryRepository) CreateEvaluacion(ctx context.Context, e *Evaluacion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.evaluaciones {
		if existing.CasoID == e.CasoID {
			return errors.Conflict("caso already has an evaluacion")
		}
	}
	cp := *e
	r.evaluaciones[e.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetEvaluacionPorCaso(ctx context.Context, casoID types.ID) (*Evaluacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).evaluacionPorCaso(casoID), nil
}

func (r *MemoryRepository) CreatePlan(ctx context.Context, p *PlanIntervencion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Vigente {
		for _, existing := range r.planes {
			if existing.CasoID == p.CasoID && existing.Vigente {
				return errors.Conflict("caso already has a plan vigente")
			}
		}
	}
	cp := *p
	r.planes[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetPlanVigente(ctx context.Context, casoID types.ID) (*PlanIntervencion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).planVigente(casoID), nil
}

func (r *MemoryRepository) CreatePrestacion(ctx context.Context, p *Prestacion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.prestaciones[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetPrestacion(ctx context.Context, id types.ID) (*Prestacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prestaciones[id]
	if !ok {
		return nil, errors.NotFound("prestacion", string(id))
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) UpdatePrestacion(ctx context.Context, p *Prestacion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.prestaciones[p.ID]; !ok {
		return errors.NotFound("prestacion", string(p.ID))
	}
	cp := *p
	r.prestaciones[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListPrestaciones(ctx context.Context, casoID types.ID) ([]*Prestacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Prestacion
	for _, p := range r.prestaciones {
		if p.CasoID == casoID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CreateTarea(ctx context.Context, t *TareaNachec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tareas[t.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListTareas(ctx context.Context, filter TareaFilter) ([]*TareaNachec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*TareaNachec
	for _, t := range r.tareas {
		if filter.CasoID != nil && t.CasoID != *filter.CasoID {
			continue
		}
		if filter.AsignadoA != nil && t.AsignadoA != *filter.AsignadoA {
			continue
		}
		if filter.Estado != nil && t.Estado != *filter.Estado {
			continue
		}
		if filter.Tipo != nil && t.Tipo != *filter.Tipo {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FechaVencimiento.Before(out[j].FechaVencimiento) })
	return out, nil
}

// memoryTx reuses the repository maps under the already-held mutex
type memoryTx MemoryRepository

func (t *memoryTx) GetCasoForUpdate(ctx context.Context, id types.ID) (*CasoNachec, error) {
	c, ok := t.casos[id]
	if !ok {
		return nil, errors.NotFound("caso nachec", string(id))
	}
	cp := *c
	return &cp, nil
}

func (t *memoryTx) UpdateCaso(ctx context.Context, c *CasoNachec) error {
	if _, ok := t.casos[c.ID]; !ok {
		return errors.NotFound("caso nachec", string(c.ID))
	}
	cp := *c
	t.casos[c.ID] = &cp
	return nil
}

func (t *memoryTx) ExisteOtroCasoAbierto(ctx context.Context, ciudadanoID, excluirCasoID types.ID) (bool, error) {
	return t.existeOtroAbierto(ciudadanoID, excluirCasoID), nil
}

func (t *memoryTx) GetRelevamientoPorCaso(ctx context.Context, casoID types.ID) (*Relevamiento, error) {
	return t.relevamientoPorCaso(casoID), nil
}

func (t *memoryTx) GetEvaluacionPorCaso(ctx context.Context, casoID types.ID) (*Evaluacion, error) {
	return t.evaluacionPorCaso(casoID), nil
}

func (t *memoryTx) GetPlanVigente(ctx context.Context, casoID types.ID) (*PlanIntervencion, error) {
	return t.planVigente(casoID), nil
}

func (t *memoryTx) UpdatePlan(ctx context.Context, p *PlanIntervencion) error {
	if _, ok := t.planes[p.ID]; !ok {
		return errors.NotFound("plan", string(p.ID))
	}
	cp := *p
	t.planes[p.ID] = &cp
	return nil
}

func (t *memoryTx) CreateTarea(ctx context.Context, tarea *TareaNachec) error {
	cp := *tarea
	t.tareas[tarea.ID] = &cp
	return nil
}

func (t *memoryTx) AppendHistorial(ctx context.Context, h *HistorialEstado) error {
	cp := *h
	t.historial = append(t.historial, &cp)
	return nil
}

func (t *memoryTx) existeOtroAbierto(ciudadanoID, excluirCasoID types.ID) bool {
	for _, c := range t.casos {
		if c.ID != excluirCasoID && c.CiudadanoTitularID == ciudadanoID && c.EstaAbierto() {
			return true
		}
	}
	return false
}

func (t *memoryTx) relevamientoPorCaso(casoID types.ID) *Relevamiento {
	for _, rel := range t.relevamientos {
		if rel.CasoID == casoID {
			cp := *rel
			return &cp
		}
	}
	return nil
}

func (t *memoryTx) evaluacionPorCaso(casoID types.ID) *Evaluacion {
	for _, e := range t.evaluaciones {
		if e.CasoID == casoID {
			cp := *e
			return &cp
		}
	}
	return nil
}

func (t *memoryTx) planVigente(casoID types.ID) *PlanIntervencion {
	for _, p := range t.planes {
		if p.CasoID == casoID && p.Vigente {
			cp := *p
			return &cp
		}
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
var _ Tx = (*memoryTx)(nil)
