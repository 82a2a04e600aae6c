package institucional

import (
	"context"
	"sort"
	"sync"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// MemoryRepository is an in-memory institutional store used in tests.
// RunInTx serializes on a single mutex, so transactional callers get
// the same isolation the row locks give the postgres implementation.
type MemoryRepository struct {
	mu sync.Mutex

	derivaciones map[types.ID]*DerivacionInstitucional
	casos        map[types.ID]*CasoInstitucional
	links        map[types.ID]*InstitucionPrograma
	legajos      map[types.ID]EstadoGlobal
	historial    []*HistorialCaso
	codigoSeq    int64
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		derivaciones: make(map[types.ID]*DerivacionInstitucional),
		casos:        make(map[types.ID]*CasoInstitucional),
		links:        make(map[types.ID]*InstitucionPrograma),
		legajos:      make(map[types.ID]EstadoGlobal),
	}
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn((*memoryTx)(r))
}

func (r *MemoryRepository) CreateDerivacion(ctx context.Context, d *DerivacionInstitucional) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.derivaciones[d.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetDerivacion(ctx context.Context, id types.ID) (*DerivacionInstitucional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.derivaciones[id]
	if !ok {
		return nil, errors.NotFound("derivacion", string(id))
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) ListDerivaciones(ctx context.Context, filter DerivacionFilter) ([]*DerivacionInstitucional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*DerivacionInstitucional
	for _, d := range r.derivaciones {
		if filter.CiudadanoID != nil && d.CiudadanoID != *filter.CiudadanoID {
			continue
		}
		if filter.InstitucionProgramaID != nil && d.InstitucionProgramaID != *filter.InstitucionProgramaID {
			continue
		}
		if filter.Estado != nil && d.Estado != *filter.Estado {
			continue
		}
		if filter.Urgencia != nil && d.Urgencia != *filter.Urgencia {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) GetCaso(ctx context.Context, id types.ID) (*CasoInstitucional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.casos[id]
	if !ok {
		return nil, errors.NotFound("caso", string(id))
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) ListCasos(ctx context.Context, filter CasoFilter) ([]*CasoInstitucional, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*CasoInstitucional
	for _, c := range r.casos {
		if filter.CiudadanoID != nil && c.CiudadanoID != *filter.CiudadanoID {
			continue
		}
		if filter.InstitucionProgramaID != nil && c.InstitucionProgramaID != *filter.InstitucionProgramaID {
			continue
		}
		if filter.Estado != nil && c.Estado != *filter.Estado {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FechaApertura.Equal(out[j].FechaApertura) {
			return out[i].FechaApertura.After(out[j].FechaApertura)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func (r *MemoryRepository) GetHistorial(ctx context.Context, casoID types.ID) ([]*HistorialCaso, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*HistorialCaso
	for _, h := range r.historial {
		if h.CasoID == casoID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegistradoEn.After(out[j].RegistradoEn) })
	return out, nil
}

func (r *MemoryRepository) CreateInstitucionPrograma(ctx context.Context, ip *InstitucionPrograma) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.links {
		if existing.InstitucionID == ip.InstitucionID && existing.ProgramaID == ip.ProgramaID {
			return errors.Conflict("institucion already linked to this programa")
		}
	}
	cp := *ip
	r.links[ip.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetInstitucionPrograma(ctx context.Context, id types.ID) (*InstitucionPrograma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).getLink(id)
}

func (r *MemoryRepository) UpdateInstitucionPrograma(ctx context.Context, ip *InstitucionPrograma) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[ip.ID]; !ok {
		return errors.NotFound("institucion-programa", string(ip.ID))
	}
	cp := *ip
	r.links[ip.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListInstitucionProgramas(ctx context.Context, institucionID types.ID) ([]*InstitucionPrograma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*InstitucionPrograma
	for _, ip := range r.links {
		if ip.InstitucionID == institucionID {
			cp := *ip
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CountCasosAbiertos(ctx context.Context, institucionProgramaID types.ID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).countAbiertos(institucionProgramaID), nil
}

func (r *MemoryRepository) GetEstadoGlobal(ctx context.Context, institucionID types.ID) (EstadoGlobal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).estadoGlobal(institucionID), nil
}

func (r *MemoryRepository) SetEstadoGlobal(ctx context.Context, institucionID types.ID, estado EstadoGlobal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legajos[institucionID] = estado
	return nil
}

// memoryTx reuses the repository maps under the already-held mutex
type memoryTx MemoryRepository

func (t *memoryTx) GetDerivacionForUpdate(ctx context.Context, id types.ID) (*DerivacionInstitucional, error) {
	d, ok := t.derivaciones[id]
	if !ok {
		return nil, errors.NotFound("derivacion", string(id))
	}
	cp := *d
	return &cp, nil
}

func (t *memoryTx) UpdateDerivacion(ctx context.Context, d *DerivacionInstitucional) error {
	if _, ok := t.derivaciones[d.ID]; !ok {
		return errors.NotFound("derivacion", string(d.ID))
	}
	cp := *d
	t.derivaciones[d.ID] = &cp
	return nil
}

func (t *memoryTx) GetInstitucionPrograma(ctx context.Context, id types.ID) (*InstitucionPrograma, error) {
	return t.getLink(id)
}

func (t *memoryTx) GetEstadoGlobal(ctx context.Context, institucionID types.ID) (EstadoGlobal, error) {
	return t.estadoGlobal(institucionID), nil
}

func (t *memoryTx) CountCasosAbiertos(ctx context.Context, institucionProgramaID types.ID) (int, error) {
	return t.countAbiertos(institucionProgramaID), nil
}

func (t *memoryTx) GetCasoAbierto(ctx context.Context, ciudadanoID, institucionProgramaID types.ID) (*CasoInstitucional, error) {
	var found *CasoInstitucional
	for _, c := range t.casos {
		if c.CiudadanoID == ciudadanoID && c.InstitucionProgramaID == institucionProgramaID && c.EstaAbierto() {
			if found == nil || c.Version > found.Version {
				found = c
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (t *memoryTx) MaxVersionCaso(ctx context.Context, ciudadanoID, institucionProgramaID types.ID) (int, error) {
	max := 0
	for _, c := range t.casos {
		if c.CiudadanoID == ciudadanoID && c.InstitucionProgramaID == institucionProgramaID && c.Version > max {
			max = c.Version
		}
	}
	return max, nil
}

func (t *memoryTx) NextCodigoSeq(ctx context.Context) (int64, error) {
	t.codigoSeq++
	return t.codigoSeq, nil
}

func (t *memoryTx) CreateCaso(ctx context.Context, c *CasoInstitucional) error {
	for _, existing := range t.casos {
		if existing.CiudadanoID == c.CiudadanoID &&
			existing.InstitucionProgramaID == c.InstitucionProgramaID &&
			existing.Version == c.Version {
			return errors.Conflict("caso with this version already exists for the pair")
		}
	}
	cp := *c
	t.casos[c.ID] = &cp
	return nil
}

func (t *memoryTx) GetCasoForUpdate(ctx context.Context, id types.ID) (*CasoInstitucional, error) {
	c, ok := t.casos[id]
	if !ok {
		return nil, errors.NotFound("caso", string(id))
	}
	cp := *c
	return &cp, nil
}

func (t *memoryTx) UpdateCaso(ctx context.Context, c *CasoInstitucional) error {
	if _, ok := t.casos[c.ID]; !ok {
		return errors.NotFound("caso", string(c.ID))
	}
	cp := *c
	t.casos[c.ID] = &cp
	return nil
}

func (t *memoryTx) AppendHistorial(ctx context.Context, h *HistorialCaso) error {
	cp := *h
	t.historial = append(t.historial, &cp)
	return nil
}

func (t *memoryTx) getLink(id types.ID) (*InstitucionPrograma, error) {
	ip, ok := t.links[id]
	if !ok {
		return nil, errors.NotFound("institucion-programa", string(id))
	}
	cp := *ip
	return &cp, nil
}

func (t *memoryTx) estadoGlobal(institucionID types.ID) EstadoGlobal {
	if estado, ok := t.legajos[institucionID]; ok {
		return estado
	}
	return GlobalActivo
}

func (t *memoryTx) countAbiertos(institucionProgramaID types.ID) int {
	count := 0
	for _, c := range t.casos {
		if c.InstitucionProgramaID == institucionProgramaID && c.EstaAbierto() {
			count++
		}
	}
	return count
}

var _ Repository = (*MemoryRepository)(nil)
var _ Tx = (*memoryTx)(nil)
