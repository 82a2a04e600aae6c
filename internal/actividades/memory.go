package actividades

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// MemoryRepository is an in-memory attendance store used in tests
type MemoryRepository struct {
	mu sync.RWMutex

	inscriptos  map[types.ID]*InscriptoActividad
	historial   []*HistorialInscripto
	asistencias map[types.ID]*RegistroAsistencia
	alertas     map[types.ID]*AlertaAusentismo
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		inscriptos:  make(map[types.ID]*InscriptoActividad),
		asistencias: make(map[types.ID]*RegistroAsistencia),
		alertas:     make(map[types.ID]*AlertaAusentismo),
	}
}

func (r *MemoryRepository) CreateInscripto(ctx context.Context, i *InscriptoActividad) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.inscriptos {
		if existing.ActividadID == i.ActividadID && existing.CiudadanoID == i.CiudadanoID {
			return errors.Conflict("ciudadano already inscripto in this actividad")
		}
	}
	cp := *i
	r.inscriptos[i.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetInscripto(ctx context.Context, id types.ID) (*InscriptoActividad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.inscriptos[id]
	if !ok {
		return nil, errors.NotFound("inscripto", string(id))
	}
	cp := *i
	return &cp, nil
}

func (r *MemoryRepository) UpdateInscripto(ctx context.Context, i *InscriptoActividad) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inscriptos[i.ID]; !ok {
		return errors.NotFound("inscripto", string(i.ID))
	}
	cp := *i
	r.inscriptos[i.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListInscriptos(ctx context.Context, filter InscriptoFilter) ([]*InscriptoActividad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*InscriptoActividad
	for _, i := range r.inscriptos {
		if filter.ActividadID != nil && i.ActividadID != *filter.ActividadID {
			continue
		}
		if filter.CiudadanoID != nil && i.CiudadanoID != *filter.CiudadanoID {
			continue
		}
		if filter.Estado != nil && i.Estado != *filter.Estado {
			continue
		}
		cp := *i
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FechaInscripcion.Before(out[j].FechaInscripcion) })
	return out, nil
}

func (r *MemoryRepository) AppendHistorialInscripto(ctx context.Context, h *HistorialInscripto) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.historial = append(r.historial, &cp)
	return nil
}

func (r *MemoryRepository) GetHistorialInscripto(ctx context.Context, inscriptoID types.ID) ([]*HistorialInscripto, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*HistorialInscripto
	for _, h := range r.historial {
		if h.InscriptoID == inscriptoID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegistradoEn.Before(out[j].RegistradoEn) })
	return out, nil
}

func (r *MemoryRepository) CreateAsistencia(ctx context.Context, a *RegistroAsistencia) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.asistencias {
		if existing.InscriptoID == a.InscriptoID && mismaFecha(existing.Fecha, a.Fecha) {
			return errors.Conflict("asistencia already recorded for this day")
		}
	}
	cp := *a
	r.asistencias[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetAsistenciaPorDia(ctx context.Context, inscriptoID types.ID, fecha time.Time) (*RegistroAsistencia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.asistencias {
		if a.InscriptoID == inscriptoID && mismaFecha(a.Fecha, fecha) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListAsistenciasRecientes(ctx context.Context, inscriptoID types.ID, limite int) ([]*RegistroAsistencia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*RegistroAsistencia
	for _, a := range r.asistencias {
		if a.InscriptoID == inscriptoID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fecha.After(out[j].Fecha) })
	if limite > 0 && len(out) > limite {
		out = out[:limite]
	}
	return out, nil
}

func (r *MemoryRepository) CreateAlerta(ctx context.Context, a *AlertaAusentismo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.alertas[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateAlerta(ctx context.Context, a *AlertaAusentismo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alertas[a.ID]; !ok {
		return errors.NotFound("alerta", string(a.ID))
	}
	cp := *a
	r.alertas[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetAlerta(ctx context.Context, id types.ID) (*AlertaAusentismo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alertas[id]
	if !ok {
		return nil, errors.NotFound("alerta", string(id))
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListAlertas(ctx context.Context, filter AlertaFilter) ([]*AlertaAusentismo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*AlertaAusentismo
	for _, a := range r.alertas {
		if filter.InscriptoID != nil && a.InscriptoID != *filter.InscriptoID {
			continue
		}
		if filter.Tipo != nil && a.Tipo != *filter.Tipo {
			continue
		}
		if filter.SoloActivas && !a.Activa {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ExisteAlertaActiva(ctx context.Context, inscriptoID types.ID, tipo TipoAlerta) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.alertas {
		if a.InscriptoID == inscriptoID && a.Tipo == tipo && a.Activa {
			return true, nil
		}
	}
	return false, nil
}

func mismaFecha(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

var _ Repository = (*MemoryRepository)(nil)
