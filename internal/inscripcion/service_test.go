package inscripcion

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/gob-chaco/nodo/internal/programa"
	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/events"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc      *Service
	repo     *MemoryRepository
	programa *programa.Programa
	destino  *programa.Programa
	operador *auth.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := NewMemoryRepository()
	programas := programa.NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	origen := programa.NewPrograma("ACO-01", "Acompanamiento Familiar", "ACOMPANAMIENTO")
	require.NoError(t, programas.Create(context.Background(), origen))
	destino := programa.NewPrograma("HAB-01", "Habitat y Vivienda", "HABITAT")
	require.NoError(t, programas.Create(context.Background(), destino))

	return &testEnv{
		svc:      NewService(repo, programas, events.NewBus(logger), logger),
		repo:     repo,
		programa: origen,
		destino:  destino,
		operador: &auth.User{ID: types.NewID(), Roles: []string{auth.RoleOperadorAdmision}},
	}
}

func TestInscribir(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	i, err := env.svc.Inscribir(context.Background(), InscribirRequest{
		CiudadanoID: ciudadano,
		ProgramaID:  env.programa.ID,
		Documento:   "30123456",
	}, env.operador)
	require.NoError(t, err)

	assert.Equal(t, InscripcionPendiente, i.Estado)
	assert.Equal(t, ViaDirecto, i.ViaIngreso)
	assert.True(t, strings.HasPrefix(i.Codigo, "ACO-01-"), "codigo %q", i.Codigo)
	assert.True(t, strings.HasSuffix(i.Codigo, "-30123456"), "codigo %q", i.Codigo)

	// The pair is unique
	_, err = env.svc.Inscribir(context.Background(), InscribirRequest{
		CiudadanoID: ciudadano,
		ProgramaID:  env.programa.ID,
	}, env.operador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "CONFLICT"))
}

func TestActivarYCerrarInscripcion(t *testing.T) {
	env := newTestEnv(t)

	i, err := env.svc.Inscribir(context.Background(), InscribirRequest{
		CiudadanoID: types.NewID(),
		ProgramaID:  env.programa.ID,
	}, env.operador)
	require.NoError(t, err)

	activa, err := env.svc.ActivarInscripcion(context.Background(), i.ID, env.operador)
	require.NoError(t, err)
	assert.Equal(t, InscripcionActiva, activa.Estado)
	assert.NotNil(t, activa.FechaInicio)
	assert.True(t, activa.EstaActiva())

	// Closing requires a reason
	_, err = env.svc.CerrarInscripcion(context.Background(), i.ID, env.operador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	cerrada, err := env.svc.CerrarInscripcion(context.Background(), i.ID, env.operador, "finalizacion del programa")
	require.NoError(t, err)
	assert.Equal(t, InscripcionCerrada, cerrada.Estado)
	assert.NotNil(t, cerrada.FechaCierre)
	assert.Contains(t, cerrada.Notas, "Cierre: finalizacion del programa")

	// A closed enrollment cannot be activated directly
	_, err = env.svc.ActivarInscripcion(context.Background(), i.ID, env.operador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeIllegalTransition))
}

func TestAceptarDerivacionCreaInscripcion(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	d, err := env.svc.CrearDerivacion(context.Background(), CrearDerivacionRequest{
		CiudadanoID:       ciudadano,
		ProgramaOrigenID:  &env.programa.ID,
		ProgramaDestinoID: env.destino.ID,
		Motivo:            "necesidad habitacional detectada",
	}, env.operador)
	require.NoError(t, err)
	assert.Equal(t, DerivacionPendiente, d.Estado)
	assert.Equal(t, UrgenciaMedia, d.Urgencia)

	i, err := env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "")
	require.NoError(t, err)
	assert.Equal(t, InscripcionActiva, i.Estado)
	assert.Equal(t, ViaDerivacionInterna, i.ViaIngreso)
	assert.Equal(t, env.destino.ID, i.ProgramaID)

	actualizada, err := env.repo.GetDerivacion(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DerivacionAceptada, actualizada.Estado)
	require.NotNil(t, actualizada.InscripcionCreadaID)
	assert.Equal(t, i.ID, *actualizada.InscripcionCreadaID)
}

func TestAceptarDerivacionEsIdempotenteSobreInscripcion(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	existente, err := env.svc.Inscribir(context.Background(), InscribirRequest{
		CiudadanoID: ciudadano,
		ProgramaID:  env.destino.ID,
	}, env.operador)
	require.NoError(t, err)
	_, err = env.svc.CerrarInscripcion(context.Background(), existente.ID, env.operador, "cierre previo")
	require.NoError(t, err)

	d, err := env.svc.CrearDerivacion(context.Background(), CrearDerivacionRequest{
		CiudadanoID:       ciudadano,
		ProgramaDestinoID: env.destino.ID,
		Motivo:            "nueva situacion",
	}, env.operador)
	require.NoError(t, err)

	i, err := env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "")
	require.NoError(t, err)

	// The dormant enrollment is reactivated, not duplicated
	assert.Equal(t, existente.ID, i.ID)
	assert.Equal(t, InscripcionActiva, i.Estado)
	assert.Contains(t, i.Notas, "Reactivada por derivacion")

	todas, err := env.repo.ListInscripciones(context.Background(), InscripcionFilter{CiudadanoID: &ciudadano})
	require.NoError(t, err)
	assert.Len(t, todas, 1)
}

func TestRechazarYCancelarDerivacion(t *testing.T) {
	env := newTestEnv(t)

	crear := func() *DerivacionPrograma {
		d, err := env.svc.CrearDerivacion(context.Background(), CrearDerivacionRequest{
			CiudadanoID:       types.NewID(),
			ProgramaDestinoID: env.destino.ID,
			Motivo:            "motivo de prueba",
		}, env.operador)
		require.NoError(t, err)
		return d
	}

	d := crear()
	_, err := env.svc.RechazarDerivacion(context.Background(), d.ID, env.operador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	rechazada, err := env.svc.RechazarDerivacion(context.Background(), d.ID, env.operador, "fuera de alcance")
	require.NoError(t, err)
	assert.Equal(t, DerivacionRechazada, rechazada.Estado)

	_, err = env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))

	d2 := crear()
	cancelada, err := env.svc.CancelarDerivacion(context.Background(), d2.ID, env.operador, "cargada por error")
	require.NoError(t, err)
	assert.Equal(t, DerivacionCancelada, cancelada.Estado)
}

func TestAsegurarInscripcionPorTipo(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	i, err := env.svc.AsegurarInscripcionPorTipo(context.Background(), ciudadano, "HABITAT", ViaDerivacionExterna)
	require.NoError(t, err)
	assert.Equal(t, InscripcionActiva, i.Estado)
	assert.Equal(t, ViaDerivacionExterna, i.ViaIngreso)

	// Idempotent on repeat
	otra, err := env.svc.AsegurarInscripcionPorTipo(context.Background(), ciudadano, "HABITAT", ViaDerivacionExterna)
	require.NoError(t, err)
	assert.Equal(t, i.ID, otra.ID)
}
