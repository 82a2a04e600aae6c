package solapas

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gob-chaco/nodo/internal/inscripcion"
	"github.com/gob-chaco/nodo/internal/programa"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc           *Service
	programas     *programa.MemoryRepository
	inscripciones *inscripcion.MemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	programas := programa.NewMemoryRepository()
	inscripciones := inscripcion.NewMemoryRepository()
	return &testEnv{
		svc:           NewService(programas, inscripciones, slog.New(slog.NewTextHandler(io.Discard, nil))),
		programas:     programas,
		inscripciones: inscripciones,
	}
}

func (env *testEnv) crearPrograma(t *testing.T, codigo, nombre, tipo string, orden int) *programa.Programa {
	t.Helper()
	p := programa.NewPrograma(codigo, nombre, tipo)
	p.Orden = orden
	require.NoError(t, env.programas.Create(context.Background(), p))
	return p
}

func (env *testEnv) inscribir(t *testing.T, ciudadanoID types.ID, p *programa.Programa, estado inscripcion.EstadoInscripcion) {
	t.Helper()
	now := time.Now()
	require.NoError(t, env.inscripciones.CreateInscripcion(context.Background(), &inscripcion.InscripcionPrograma{
		ID:               types.NewID(),
		CiudadanoID:      ciudadanoID,
		ProgramaID:       p.ID,
		Codigo:           inscripcion.GenerarCodigoInscripcion(p.Codigo, now, "12345678"),
		Estado:           estado,
		ViaIngreso:       inscripcion.ViaDirecto,
		FechaInscripcion: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}))
}

func (env *testEnv) derivarPendiente(t *testing.T, ciudadanoID types.ID, destino *programa.Programa) {
	t.Helper()
	now := time.Now()
	require.NoError(t, env.inscripciones.CreateDerivacion(context.Background(), &inscripcion.DerivacionPrograma{
		ID:                types.NewID(),
		CiudadanoID:       ciudadanoID,
		ProgramaDestinoID: destino.ID,
		Motivo:            "derivacion pendiente",
		Urgencia:          inscripcion.UrgenciaMedia,
		Estado:            inscripcion.DerivacionPendiente,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
}

func claves(solapas []Solapa) []string {
	out := make([]string, len(solapas))
	for i, s := range solapas {
		out[i] = s.Clave
	}
	return out
}

func TestComponerSoloFijas(t *testing.T) {
	env := newTestEnv(t)

	solapas, err := env.svc.Componer(context.Background(), types.NewID())
	require.NoError(t, err)

	assert.Equal(t, []string{"resumen", "cursos_actividades", "red_familiar", "archivos"}, claves(solapas))
	assert.Equal(t, 0, solapas[0].Orden)
	assert.Equal(t, 900, solapas[1].Orden)
	assert.Equal(t, 998, solapas[2].Orden)
	assert.Equal(t, 999, solapas[3].Orden)
}

func TestComponerIntercalaProgramas(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	alimentario := env.crearPrograma(t, "ALI-01", "Alimentario", "ALIMENTARIO", 1)
	habitat := env.crearPrograma(t, "HAB-01", "Habitat", "HABITAT", 5)
	env.inscribir(t, ciudadano, habitat, inscripcion.InscripcionActiva)
	env.inscribir(t, ciudadano, alimentario, inscripcion.InscripcionActiva)

	solapas, err := env.svc.Componer(context.Background(), ciudadano)
	require.NoError(t, err)

	// Catalog order decides tab position, not enrollment order
	assert.Equal(t, []string{"resumen", "ALIMENTARIO", "HABITAT", "cursos_actividades", "red_familiar", "archivos"}, claves(solapas))
	assert.Equal(t, 101, solapas[1].Orden)
	assert.Equal(t, 105, solapas[2].Orden)
	require.NotNil(t, solapas[1].ProgramaID)
	assert.Equal(t, alimentario.ID, *solapas[1].ProgramaID)
}

func TestComponerOmiteProgramasInactivos(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	p := env.crearPrograma(t, "ACO-01", "Acompanamiento", "ACOMPANAMIENTO", 2)
	env.inscribir(t, ciudadano, p, inscripcion.InscripcionActiva)

	p.Activo = false
	require.NoError(t, env.programas.Update(context.Background(), p))

	solapas, err := env.svc.Componer(context.Background(), ciudadano)
	require.NoError(t, err)
	assert.Equal(t, []string{"resumen", "cursos_actividades", "red_familiar", "archivos"}, claves(solapas))
}

func TestComponerBadgeDeDerivacionesPendientes(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	p := env.crearPrograma(t, "ALI-01", "Alimentario", "ALIMENTARIO", 1)
	env.inscribir(t, ciudadano, p, inscripcion.InscripcionActiva)
	env.derivarPendiente(t, ciudadano, p)
	env.derivarPendiente(t, ciudadano, p)

	solapas, err := env.svc.Componer(context.Background(), ciudadano)
	require.NoError(t, err)

	var tab *Solapa
	for i := range solapas {
		if solapas[i].Clave == "ALIMENTARIO" {
			tab = &solapas[i]
		}
	}
	require.NotNil(t, tab)
	assert.Equal(t, 2, tab.Badge)
}

func TestComponerMuestraProgramaSoloDerivado(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	destino := env.crearPrograma(t, "HAB-01", "Habitat", "HABITAT", 3)
	env.derivarPendiente(t, ciudadano, destino)

	solapas, err := env.svc.Componer(context.Background(), ciudadano)
	require.NoError(t, err)

	// Sin inscripcion, la derivacion pendiente igual genera la solapa
	assert.Contains(t, claves(solapas), "HABITAT")
	for _, s := range solapas {
		if s.Clave == "HABITAT" {
			assert.Equal(t, 1, s.Badge)
		}
	}
}
