// Package solapas composes the tab strip of a citizen's record view:
// fixed tabs at reserved positions plus one tab per program the citizen
// is enrolled in, ordered by the program catalog.
package solapas

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gob-chaco/nodo/internal/inscripcion"
	"github.com/gob-chaco/nodo/internal/programa"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// Reserved orders for the fixed tabs. Program tabs land between the
// summary and the trailing fixed block.
const (
	ordenResumen           = 0
	ordenBasePrograma      = 100
	ordenCursosActividades = 900
	ordenRedFamiliar       = 998
	ordenArchivos          = 999
)

// Solapa is one tab in a citizen's record view
type Solapa struct {
	Clave      string    `json:"clave"`
	Titulo     string    `json:"titulo"`
	Orden      int       `json:"orden"`
	Icono      string    `json:"icono"`
	Color      string    `json:"color,omitempty"`
	ProgramaID *types.ID `json:"programa_id,omitempty"`

	// Badge counts the citizen's pending referrals into the tab's
	// program. Zero renders no badge.
	Badge int `json:"badge"`
}

// Service composes record-view tabs from the program catalog and the
// citizen's enrollments
type Service struct {
	programas     programa.Repository
	inscripciones inscripcion.Repository
	logger        *slog.Logger
}

// NewService creates the tab composition service
func NewService(programas programa.Repository, inscripciones inscripcion.Repository, logger *slog.Logger) *Service {
	return &Service{
		programas:     programas,
		inscripciones: inscripciones,
		logger:        logger,
	}
}

// Componer builds the full ordered tab strip for a citizen
func (s *Service) Componer(ctx context.Context, ciudadanoID types.ID) ([]Solapa, error) {
	solapas := []Solapa{
		{Clave: "resumen", Titulo: "Resumen", Orden: ordenResumen, Icono: "home"},
		{Clave: "cursos_actividades", Titulo: "Cursos y Actividades", Orden: ordenCursosActividades, Icono: "calendar"},
		{Clave: "red_familiar", Titulo: "Red Familiar", Orden: ordenRedFamiliar, Icono: "users"},
		{Clave: "archivos", Titulo: "Archivos", Orden: ordenArchivos, Icono: "paperclip"},
	}

	inscripciones, err := s.inscripciones.ListInscripciones(ctx, inscripcion.InscripcionFilter{
		CiudadanoID: &ciudadanoID,
	})
	if err != nil {
		return nil, err
	}

	pendiente := inscripcion.DerivacionPendiente
	pendientes, err := s.inscripciones.ListDerivaciones(ctx, inscripcion.DerivacionFilter{
		CiudadanoID: &ciudadanoID,
		Estado:      &pendiente,
	})
	if err != nil {
		return nil, err
	}
	badgePorPrograma := make(map[types.ID]int)
	for _, d := range pendientes {
		badgePorPrograma[d.ProgramaDestinoID]++
	}

	vistos := make(map[types.ID]bool)
	for _, i := range inscripciones {
		if vistos[i.ProgramaID] {
			continue
		}
		vistos[i.ProgramaID] = true

		p, err := s.programas.Get(ctx, i.ProgramaID)
		if err != nil {
			// A dangling enrollment must not break the whole strip
			s.logger.Warn("inscripcion sin programa en catalogo",
				"inscripcion_id", i.ID,
				"programa_id", i.ProgramaID,
			)
			continue
		}
		if !p.Activo {
			continue
		}

		programaID := p.ID
		solapas = append(solapas, Solapa{
			Clave:      p.Tipo,
			Titulo:     p.Nombre,
			Orden:      ordenBasePrograma + p.Orden,
			Icono:      p.Icono,
			Color:      p.Color,
			ProgramaID: &programaID,
			Badge:      badgePorPrograma[p.ID],
		})
	}

	// Referrals into programs the citizen is not yet enrolled in still
	// surface a tab, so the pending work is visible.
	for programaID, badge := range badgePorPrograma {
		if vistos[programaID] {
			continue
		}
		p, err := s.programas.Get(ctx, programaID)
		if err != nil || !p.Activo {
			continue
		}
		vistos[programaID] = true

		pid := p.ID
		solapas = append(solapas, Solapa{
			Clave:      p.Tipo,
			Titulo:     p.Nombre,
			Orden:      ordenBasePrograma + p.Orden,
			Icono:      p.Icono,
			Color:      p.Color,
			ProgramaID: &pid,
			Badge:      badge,
		})
	}

	sort.Slice(solapas, func(i, j int) bool {
		if solapas[i].Orden != solapas[j].Orden {
			return solapas[i].Orden < solapas[j].Orden
		}
		return solapas[i].Titulo < solapas[j].Titulo
	})
	return solapas, nil
}
