package institucional

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gob-chaco/nodo/internal/programa"
	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/events"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc       *Service
	repo      *MemoryRepository
	programas *programa.MemoryRepository
	programa  *programa.Programa
	link      *InstitucionPrograma
	operador  *auth.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := NewMemoryRepository()
	programas := programa.NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(logger)

	p := programa.NewPrograma("ALI-01", "Asistencia Alimentaria", "ALIMENTARIO")
	require.NoError(t, programas.Create(context.Background(), p))

	now := time.Now()
	link := &InstitucionPrograma{
		ID:             types.NewID(),
		InstitucionID:  types.NewID(),
		ProgramaID:     p.ID,
		EstadoPrograma: ProgramaActivo,
		Activo:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.CreateInstitucionPrograma(context.Background(), link))

	svc := NewService(repo, programas, bus, logger)

	return &testEnv{
		svc:       svc,
		repo:      repo,
		programas: programas,
		programa:  p,
		link:      link,
		operador: &auth.User{
			ID:    types.NewID(),
			Roles: []string{auth.RoleResponsableLocal},
		},
	}
}

func (e *testEnv) nuevaDerivacion(t *testing.T, ciudadanoID types.ID) *DerivacionInstitucional {
	t.Helper()
	d, err := e.svc.CrearDerivacion(context.Background(), CrearDerivacionRequest{
		CiudadanoID:           ciudadanoID,
		InstitucionProgramaID: e.link.ID,
		Motivo:                "situacion de vulnerabilidad alimentaria",
	}, e.operador)
	require.NoError(t, err)
	return d
}

func TestAceptarDerivacionCreaCaso(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()
	d := env.nuevaDerivacion(t, ciudadano)

	caso, creado, err := env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "", nil)
	require.NoError(t, err)

	assert.True(t, creado)
	assert.Equal(t, CasoActivo, caso.Estado)
	assert.Equal(t, 1, caso.Version)
	assert.Equal(t, ciudadano, caso.CiudadanoID)
	assert.True(t, strings.HasPrefix(caso.Codigo, "CASO-ALI-"), "codigo %q", caso.Codigo)

	actualizada, err := env.repo.GetDerivacion(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DerivacionAceptada, actualizada.Estado)
	require.NotNil(t, actualizada.CasoCreadoID)
	assert.Equal(t, caso.ID, *actualizada.CasoCreadoID)
	assert.Equal(t, "Caso creado: "+caso.Codigo, actualizada.Respuesta)
	assert.NotNil(t, actualizada.FechaRespuesta)

	historial, err := env.repo.GetHistorial(context.Background(), caso.ID)
	require.NoError(t, err)
	assert.Len(t, historial, 1)
}

func TestAceptarDerivacionResponsable(t *testing.T) {
	env := newTestEnv(t)

	// Without an explicit responsable the acting user is stamped
	caso, _, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", nil)
	require.NoError(t, err)
	require.NotNil(t, caso.ResponsableID)
	assert.Equal(t, env.operador.ID, *caso.ResponsableID)

	responsable := types.NewID()
	caso, _, err = env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", &responsable)
	require.NoError(t, err)
	require.NotNil(t, caso.ResponsableID)
	assert.Equal(t, responsable, *caso.ResponsableID)

	// The referral still records who answered it
	actualizada, err := env.repo.ListDerivaciones(context.Background(), DerivacionFilter{CiudadanoID: &caso.CiudadanoID})
	require.NoError(t, err)
	require.Len(t, actualizada, 1)
	require.NotNil(t, actualizada[0].RespondidoPor)
	assert.Equal(t, env.operador.ID, *actualizada[0].RespondidoPor)
}

func TestAceptarDerivacionUnificaConCasoAbierto(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	primera := env.nuevaDerivacion(t, ciudadano)
	existente, creado, err := env.svc.AceptarDerivacion(context.Background(), primera.ID, env.operador, "", nil)
	require.NoError(t, err)
	require.True(t, creado)

	segunda := env.nuevaDerivacion(t, ciudadano)
	caso, creado, err := env.svc.AceptarDerivacion(context.Background(), segunda.ID, env.operador, "", nil)
	require.NoError(t, err)

	assert.False(t, creado)
	assert.Equal(t, existente.ID, caso.ID)

	actualizada, err := env.repo.GetDerivacion(context.Background(), segunda.ID)
	require.NoError(t, err)
	assert.Equal(t, DerivacionAceptadaUnificada, actualizada.Estado)
	require.NotNil(t, actualizada.CasoCreadoID)
	assert.Equal(t, existente.ID, *actualizada.CasoCreadoID)
	assert.Equal(t, "Unificada con caso existente "+existente.Codigo, actualizada.Respuesta)

	// Still exactly one case for the pair
	casos, err := env.repo.ListCasos(context.Background(), CasoFilter{CiudadanoID: &ciudadano})
	require.NoError(t, err)
	assert.Len(t, casos, 1)
}

func TestAceptarDerivacionYaProcesada(t *testing.T) {
	env := newTestEnv(t)
	d := env.nuevaDerivacion(t, types.NewID())

	_, _, err := env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "", nil)
	require.NoError(t, err)

	_, _, err = env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))
}

func TestAceptarDerivacionInstitucionCerrada(t *testing.T) {
	env := newTestEnv(t)
	d := env.nuevaDerivacion(t, types.NewID())

	require.NoError(t, env.repo.SetEstadoGlobal(context.Background(), env.link.InstitucionID, GlobalCerrado))

	_, _, err := env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInstitutionClosed))

	// The referral stays pending
	pendiente, err := env.repo.GetDerivacion(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DerivacionPendiente, pendiente.Estado)
}

func TestAceptarDerivacionProgramaInactivo(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ip *InstitucionPrograma)
	}{
		{"estado suspendido", func(ip *InstitucionPrograma) { ip.EstadoPrograma = ProgramaSuspendido }},
		{"estado cerrado", func(ip *InstitucionPrograma) { ip.EstadoPrograma = ProgramaCerrado }},
		{"link deshabilitado", func(ip *InstitucionPrograma) { ip.Activo = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			d := env.nuevaDerivacion(t, types.NewID())

			tt.mutate(env.link)
			require.NoError(t, env.repo.UpdateInstitucionPrograma(context.Background(), env.link))

			_, _, err := env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "", nil)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeProgramNotActive))
		})
	}
}

func TestAceptarDerivacionCupoLleno(t *testing.T) {
	env := newTestEnv(t)

	cupo := 1
	env.link.ControlarCupo = true
	env.link.CupoMaximo = &cupo
	require.NoError(t, env.repo.UpdateInstitucionPrograma(context.Background(), env.link))

	ocupante := types.NewID()
	_, _, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, ocupante).ID, env.operador, "", nil)
	require.NoError(t, err)

	// A different citizen overflows the quota
	_, _, err = env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeQuotaExceeded))

	// The occupying citizen unifies without consuming new quota
	caso, creado, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, ocupante).ID, env.operador, "", nil)
	require.NoError(t, err)
	assert.False(t, creado)
	assert.Equal(t, ocupante, caso.CiudadanoID)
}

func TestAceptarDerivacionSobrecupoPermitido(t *testing.T) {
	env := newTestEnv(t)

	cupo := 1
	env.link.ControlarCupo = true
	env.link.CupoMaximo = &cupo
	env.link.PermiteSobrecupo = true
	require.NoError(t, env.repo.UpdateInstitucionPrograma(context.Background(), env.link))

	_, _, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", nil)
	require.NoError(t, err)

	_, creado, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", nil)
	require.NoError(t, err)
	assert.True(t, creado)
}

func TestVersionMonotonica(t *testing.T) {
	env := newTestEnv(t)
	ciudadano := types.NewID()

	caso1, _, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, ciudadano).ID, env.operador, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, caso1.Version)

	_, err = env.svc.CambiarEstadoCaso(context.Background(), caso1.ID, CasoCerrado, env.operador, "", "objetivos cumplidos")
	require.NoError(t, err)

	caso2, creado, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, ciudadano).ID, env.operador, "", nil)
	require.NoError(t, err)
	assert.True(t, creado)
	assert.NotEqual(t, caso1.ID, caso2.ID)
	assert.Equal(t, 2, caso2.Version)
}

func TestRechazarDerivacion(t *testing.T) {
	env := newTestEnv(t)
	d := env.nuevaDerivacion(t, types.NewID())

	_, err := env.svc.RechazarDerivacion(context.Background(), d.ID, env.operador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	rechazada, err := env.svc.RechazarDerivacion(context.Background(), d.ID, env.operador, "sin documentacion")
	require.NoError(t, err)
	assert.Equal(t, DerivacionRechazada, rechazada.Estado)
	assert.Equal(t, "sin documentacion", rechazada.Respuesta)
	assert.NotNil(t, rechazada.FechaRespuesta)

	// Rejection is terminal
	_, _, err = env.svc.AceptarDerivacion(context.Background(), d.ID, env.operador, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))
}

func TestCambiarEstadoCaso(t *testing.T) {
	env := newTestEnv(t)
	caso, _, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", nil)
	require.NoError(t, err)

	// No-op transition rejected
	_, err = env.svc.CambiarEstadoCaso(context.Background(), caso.ID, CasoActivo, env.operador, "", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))

	// Closure without reason rejected
	_, err = env.svc.CambiarEstadoCaso(context.Background(), caso.ID, CasoCerrado, env.operador, "", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	seguimiento, err := env.svc.CambiarEstadoCaso(context.Background(), caso.ID, CasoEnSeguimiento, env.operador, "inicio de acompanamiento", "")
	require.NoError(t, err)
	assert.Equal(t, CasoEnSeguimiento, seguimiento.Estado)
	assert.Nil(t, seguimiento.FechaCierre)

	cerrado, err := env.svc.CambiarEstadoCaso(context.Background(), caso.ID, CasoCerrado, env.operador, "", "egreso voluntario")
	require.NoError(t, err)
	assert.Equal(t, CasoCerrado, cerrado.Estado)
	assert.Equal(t, "egreso voluntario", cerrado.MotivoCierre)
	assert.NotNil(t, cerrado.FechaCierre)

	historial, err := env.repo.GetHistorial(context.Background(), caso.ID)
	require.NoError(t, err)
	assert.Len(t, historial, 3) // creation + two changes
}

func TestReabrirCaso(t *testing.T) {
	env := newTestEnv(t)
	caso, _, err := env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", nil)
	require.NoError(t, err)

	// Only closed or discharged cases can be reopened
	_, err = env.svc.ReabrirCaso(context.Background(), caso.ID, env.operador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeIllegalTransition))

	_, err = env.svc.CambiarEstadoCaso(context.Background(), caso.ID, CasoCerrado, env.operador, "", "cierre administrativo")
	require.NoError(t, err)

	reabierto, err := env.svc.ReabrirCaso(context.Background(), caso.ID, env.operador, "retoma el acompanamiento")
	require.NoError(t, err)
	assert.Equal(t, CasoActivo, reabierto.Estado)
	assert.Nil(t, reabierto.FechaCierre)
	assert.Equal(t, caso.Version, reabierto.Version)
	assert.Contains(t, reabierto.Observaciones, "[REAPERTURA]")
}

func TestPermisosParaResponder(t *testing.T) {
	env := newTestEnv(t)
	d := env.nuevaDerivacion(t, types.NewID())

	sinRol := &auth.User{ID: types.NewID(), Roles: []string{auth.RoleTerritorial}}

	_, _, err := env.svc.AceptarDerivacion(context.Background(), d.ID, sinRol, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePermissionDenied))

	_, err = env.svc.RechazarDerivacion(context.Background(), d.ID, nil, "motivo")
	require.Error(t, err)
}

func TestCupoDisponible(t *testing.T) {
	env := newTestEnv(t)

	// No quota configured: unlimited
	libre, err := env.svc.CupoDisponible(context.Background(), env.link.ID)
	require.NoError(t, err)
	assert.Nil(t, libre)

	cupo := 2
	env.link.ControlarCupo = true
	env.link.CupoMaximo = &cupo
	require.NoError(t, env.repo.UpdateInstitucionPrograma(context.Background(), env.link))

	_, _, err = env.svc.AceptarDerivacion(context.Background(), env.nuevaDerivacion(t, types.NewID()).ID, env.operador, "", nil)
	require.NoError(t, err)

	libre, err = env.svc.CupoDisponible(context.Background(), env.link.ID)
	require.NoError(t, err)
	require.NotNil(t, libre)
	assert.Equal(t, 1, *libre)
}
