package actividades

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/events"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc  *Service
	repo *MemoryRepository

	responsable *auth.User
	admin       *auth.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, events.NewBus(logger), logger)
	svc.now = func() time.Time { return fecha(2024, time.March, 15) }

	return &testEnv{
		svc:         svc,
		repo:        repo,
		responsable: &auth.User{ID: types.NewID(), Roles: []string{auth.RoleResponsableLocal}},
		admin:       &auth.User{ID: types.NewID(), Roles: []string{auth.RoleAdmin}},
	}
}

func fecha(anio int, mes time.Month, dia int) time.Time {
	return time.Date(anio, mes, dia, 0, 0, 0, 0, time.UTC)
}

func (env *testEnv) inscribir(t *testing.T) *InscriptoActividad {
	t.Helper()
	i, err := env.svc.Inscribir(context.Background(), types.NewID(), types.NewID(), env.responsable, "")
	require.NoError(t, err)
	return i
}

// marcar records one attendance mark per day starting at inicio
func (env *testEnv) marcar(t *testing.T, inscriptoID types.ID, inicio time.Time, estados ...EstadoAsistencia) {
	t.Helper()
	for n, estado := range estados {
		_, err := env.svc.RegistrarAsistencia(context.Background(), inscriptoID, inicio.AddDate(0, 0, n), estado, env.responsable, "")
		require.NoError(t, err)
	}
}

func (env *testEnv) alertasActivas(t *testing.T, inscriptoID types.ID) []*AlertaAusentismo {
	t.Helper()
	alertas, err := env.repo.ListAlertas(context.Background(), AlertaFilter{InscriptoID: &inscriptoID, SoloActivas: true})
	require.NoError(t, err)
	return alertas
}

func TestInscribir(t *testing.T) {
	env := newTestEnv(t)

	i := env.inscribir(t)
	assert.Equal(t, InscriptoInscrito, i.Estado)
	assert.True(t, i.EstaCursando())

	historial, err := env.repo.GetHistorialInscripto(context.Background(), i.ID)
	require.NoError(t, err)
	require.Len(t, historial, 1)
	assert.Equal(t, AccionInscripcion, historial[0].Accion)
}

func TestInscribirDuplicadoRechazado(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	actividadID := types.NewID()
	ciudadanoID := types.NewID()
	_, err := env.svc.Inscribir(ctx, actividadID, ciudadanoID, env.responsable, "")
	require.NoError(t, err)

	_, err = env.svc.Inscribir(ctx, actividadID, ciudadanoID, env.responsable, "")
	assert.True(t, errors.IsCode(err, "CONFLICT"))
}

func TestCicloDeVidaInscripto(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	i := env.inscribir(t)

	i, err := env.svc.ActivarInscripto(ctx, i.ID, env.responsable)
	require.NoError(t, err)
	assert.Equal(t, InscriptoActivo, i.Estado)

	// already active
	_, err = env.svc.ActivarInscripto(ctx, i.ID, env.responsable)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))

	i, err = env.svc.FinalizarInscripto(ctx, i.ID, env.responsable, "completo el ciclo")
	require.NoError(t, err)
	assert.Equal(t, InscriptoFinalizado, i.Estado)
	require.NotNil(t, i.FechaFinalizacion)

	// a closed participation cannot change state again
	_, err = env.svc.ActivarInscripto(ctx, i.ID, env.responsable)
	assert.True(t, errors.IsCode(err, errors.CodeIllegalTransition))
}

func TestAbandonoRequiereMotivo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	i := env.inscribir(t)

	_, err := env.svc.RegistrarAbandono(ctx, i.ID, env.responsable, "  ")
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	i, err = env.svc.RegistrarAbandono(ctx, i.ID, env.responsable, "se mudo de localidad")
	require.NoError(t, err)
	assert.Equal(t, InscriptoAbandonado, i.Estado)
	require.NotNil(t, i.FechaFinalizacion)
}

func TestRegistrarAsistencia(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	i := env.inscribir(t)
	dia := fecha(2024, time.March, 11)

	a, err := env.svc.RegistrarAsistencia(ctx, i.ID, dia, AsistenciaPresente, env.responsable, "")
	require.NoError(t, err)
	assert.Equal(t, AsistenciaPresente, a.Estado)
	require.NotNil(t, a.RegistradoPor)
	assert.Equal(t, env.responsable.ID, *a.RegistradoPor)

	// one mark per day
	_, err = env.svc.RegistrarAsistencia(ctx, i.ID, dia, AsistenciaAusente, env.responsable, "")
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))
}

func TestAsistenciaSoloMientrasCursa(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	i := env.inscribir(t)

	_, err := env.svc.RegistrarAbandono(ctx, i.ID, env.responsable, "abandono temprano")
	require.NoError(t, err)

	_, err = env.svc.RegistrarAsistencia(ctx, i.ID, fecha(2024, time.March, 11), AsistenciaPresente, env.responsable, "")
	assert.True(t, errors.IsCode(err, errors.CodeMissingPrecondition))
}

func TestRachaDeTresAusenciasGeneraAlerta(t *testing.T) {
	env := newTestEnv(t)
	i := env.inscribir(t)

	env.marcar(t, i.ID, fecha(2024, time.March, 11),
		AsistenciaPresente, AsistenciaAusente, AsistenciaAusente)
	assert.Empty(t, env.alertasActivas(t, i.ID))

	env.marcar(t, i.ID, fecha(2024, time.March, 14), AsistenciaAusente)

	alertas := env.alertasActivas(t, i.ID)
	require.Len(t, alertas, 1)
	assert.Equal(t, AlertaAusentismo3, alertas[0].Tipo)
	assert.Equal(t, 3, alertas[0].DiasAusente)
	assert.Equal(t, fecha(2024, time.March, 12), alertas[0].FechaInicioAusencia)
}

func TestRachaDeCincoAusenciasEscalaAlerta(t *testing.T) {
	env := newTestEnv(t)
	i := env.inscribir(t)

	env.marcar(t, i.ID, fecha(2024, time.March, 11),
		AsistenciaAusente, AsistenciaAusente, AsistenciaAusente,
		AsistenciaAusente, AsistenciaAusente)

	alertas := env.alertasActivas(t, i.ID)
	require.Len(t, alertas, 2)

	tipos := map[TipoAlerta]bool{}
	for _, a := range alertas {
		tipos[a.Tipo] = true
	}
	assert.True(t, tipos[AlertaAusentismo3])
	assert.True(t, tipos[AlertaAusentismo5])
}

func TestJustificadoCortaLaRacha(t *testing.T) {
	env := newTestEnv(t)
	i := env.inscribir(t)

	env.marcar(t, i.ID, fecha(2024, time.March, 11),
		AsistenciaAusente, AsistenciaAusente, AsistenciaJustificado, AsistenciaAusente)

	assert.Empty(t, env.alertasActivas(t, i.ID))
}

func TestAlertaNoSeDuplicaMientrasSigueActiva(t *testing.T) {
	env := newTestEnv(t)
	i := env.inscribir(t)

	env.marcar(t, i.ID, fecha(2024, time.March, 11),
		AsistenciaAusente, AsistenciaAusente, AsistenciaAusente, AsistenciaAusente)

	alertas := env.alertasActivas(t, i.ID)
	require.Len(t, alertas, 1)
	assert.Equal(t, AlertaAusentismo3, alertas[0].Tipo)
}

func TestRevisarAusentismoSemanal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// three absences inside the week, streak broken by a present day
	conAusencias := env.inscribir(t)
	env.marcar(t, conAusencias.ID, fecha(2024, time.March, 10),
		AsistenciaAusente, AsistenciaPresente, AsistenciaAusente,
		AsistenciaPresente, AsistenciaAusente)

	// absences too old to count
	fueraDeVentana := env.inscribir(t)
	env.marcar(t, fueraDeVentana.ID, fecha(2024, time.February, 1),
		AsistenciaAusente, AsistenciaPresente, AsistenciaAusente,
		AsistenciaPresente, AsistenciaAusente)

	generadas, err := env.svc.RevisarAusentismoSemanal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, generadas)

	alertas := env.alertasActivas(t, conAusencias.ID)
	require.Len(t, alertas, 1)
	assert.Equal(t, AlertaAusentismoSemanal, alertas[0].Tipo)
	assert.Equal(t, 3, alertas[0].DiasAusente)
	assert.Equal(t, fecha(2024, time.March, 10), alertas[0].FechaInicioAusencia)

	assert.Empty(t, env.alertasActivas(t, fueraDeVentana.ID))

	// a second run does not re-raise the same alert
	generadas, err = env.svc.RevisarAusentismoSemanal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, generadas)
}

func TestMarcarAlertaVista(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	i := env.inscribir(t)

	env.marcar(t, i.ID, fecha(2024, time.March, 11),
		AsistenciaAusente, AsistenciaAusente, AsistenciaAusente)

	alertas := env.alertasActivas(t, i.ID)
	require.Len(t, alertas, 1)

	a, err := env.svc.MarcarAlertaVista(ctx, alertas[0].ID, env.admin)
	require.NoError(t, err)
	assert.False(t, a.Activa)
	require.NotNil(t, a.VistaPor)
	assert.Equal(t, env.admin.ID, *a.VistaPor)

	_, err = env.svc.MarcarAlertaVista(ctx, a.ID, env.admin)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))

	assert.Empty(t, env.alertasActivas(t, i.ID))

	// a fresh absence re-raises the alert once the previous one is reviewed
	env.marcar(t, i.ID, fecha(2024, time.March, 14), AsistenciaAusente)
	assert.Len(t, env.alertasActivas(t, i.ID), 1)
}
