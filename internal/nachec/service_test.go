package nachec

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

	operador    *auth.User
	coordinador *auth.User
	territorial *auth.User
	referente   *auth.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, events.NewBus(logger), logger)
	svc.now = func() time.Time { return fecha(2024, time.January, 5) } // viernes

	return &testEnv{
		svc:         svc,
		repo:        repo,
		operador:    &auth.User{ID: types.NewID(), Roles: []string{auth.RoleOperadorAdmision}},
		coordinador: &auth.User{ID: types.NewID(), Roles: []string{auth.RoleCoordinador}},
		territorial: &auth.User{ID: types.NewID(), Roles: []string{auth.RoleTerritorial}},
		referente:   &auth.User{ID: types.NewID(), Roles: []string{auth.RoleReferentePrograma}},
	}
}

func (env *testEnv) crearCaso(t *testing.T) *CasoNachec {
	t.Helper()
	c, err := env.svc.CrearCaso(context.Background(), CrearCasoRequest{
		CiudadanoTitularID: types.NewID(),
		Municipio:          "Resistencia",
		Localidad:          "Centro",
		MotivoDerivacion:   "situacion de vulnerabilidad alimentaria",
	}, env.operador)
	require.NoError(t, err)
	return c
}

// hastaAsignado drives a fresh case through admission and assignment
func (env *testEnv) hastaAsignado(t *testing.T) *CasoNachec {
	t.Helper()
	ctx := context.Background()
	c := env.crearCaso(t)

	_, err := env.svc.TomarCaso(ctx, c.ID, env.operador)
	require.NoError(t, err)
	_, err = env.svc.EnviarAAsignacion(ctx, c.ID, env.operador)
	require.NoError(t, err)
	c, err = env.svc.AsignarTerritorial(ctx, c.ID, env.territorial.ID, env.coordinador)
	require.NoError(t, err)
	return c
}

// hastaEvaluado continues through the completed field survey
func (env *testEnv) hastaEvaluado(t *testing.T) *CasoNachec {
	t.Helper()
	ctx := context.Background()
	c := env.hastaAsignado(t)

	_, err := env.svc.IniciarRelevamiento(ctx, c.ID, env.territorial)
	require.NoError(t, err)
	_, err = env.svc.RegistrarRelevamiento(ctx, c.ID, RegistrarRelevamientoRequest{
		CantidadConvivientes: 4,
		UrgenciaAlimentaria:  true,
		Completado:           true,
	}, env.territorial)
	require.NoError(t, err)
	c, err = env.svc.FinalizarRelevamiento(ctx, c.ID, env.territorial)
	require.NoError(t, err)
	return c
}

// hastaEjecucion continues through evaluation and plan activation
func (env *testEnv) hastaEjecucion(t *testing.T) *CasoNachec {
	t.Helper()
	ctx := context.Background()
	c := env.hastaEvaluado(t)

	_, err := env.svc.RegistrarEvaluacion(ctx, c.ID, RegistrarEvaluacionRequest{
		ScoreTotal:     72.5,
		CategoriaFinal: CategoriaAlta,
	}, env.coordinador)
	require.NoError(t, err)
	_, err = env.svc.ConfirmarEvaluacion(ctx, c.ID, env.coordinador)
	require.NoError(t, err)
	_, err = env.svc.DefinirPlan(ctx, c.ID, DefinirPlanRequest{
		ObjetivoGeneral: "Estabilizar el acceso a alimentos del hogar",
		HorizonteDias:   90,
	}, env.coordinador)
	require.NoError(t, err)
	c, err = env.svc.ActivarPlan(ctx, c.ID, env.referente)
	require.NoError(t, err)
	return c
}

func TestCrearCaso(t *testing.T) {
	env := newTestEnv(t)
	c := env.crearCaso(t)

	assert.Equal(t, EstadoDerivado, c.Estado)
	assert.Equal(t, PrioridadMedia, c.Prioridad)
	assert.False(t, c.TieneDuplicado)
	require.NotNil(t, c.SLARevision)
	// Dos dias habiles desde el viernes 5 cae el martes 9
	assert.Equal(t, fecha(2024, time.January, 9), *c.SLARevision)

	_, err := env.svc.CrearCaso(context.Background(), CrearCasoRequest{
		CiudadanoTitularID: c.CiudadanoTitularID,
	}, env.operador)
	require.Error(t, err, "motivo is required")
}

func TestCrearCasoPrioridadUrgente(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.svc.CrearCaso(ctx, CrearCasoRequest{
		CiudadanoTitularID: types.NewID(),
		Prioridad:          PrioridadUrgente,
		Municipio:          "Resistencia",
		Localidad:          "Centro",
		MotivoDerivacion:   "situacion de calle con menores",
	}, env.operador)
	require.NoError(t, err)
	assert.Equal(t, PrioridadUrgente, c.Prioridad)

	// The survey task inherits the case priority
	_, err = env.svc.TomarCaso(ctx, c.ID, env.operador)
	require.NoError(t, err)
	_, err = env.svc.EnviarAAsignacion(ctx, c.ID, env.operador)
	require.NoError(t, err)
	_, err = env.svc.AsignarTerritorial(ctx, c.ID, env.territorial.ID, env.coordinador)
	require.NoError(t, err)

	tareas, err := env.repo.ListTareas(ctx, TareaFilter{CasoID: &c.ID})
	require.NoError(t, err)
	require.Len(t, tareas, 1)
	assert.Equal(t, PrioridadUrgente, tareas[0].Prioridad)

	_, err = env.svc.CrearCaso(ctx, CrearCasoRequest{
		CiudadanoTitularID: types.NewID(),
		Prioridad:          Prioridad("CRITICA"),
		MotivoDerivacion:   "prioridad desconocida",
	}, env.operador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "VALIDATION_ERROR"))
}

func TestCrearCasoDetectaDuplicado(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primero := env.crearCaso(t)

	segundo, err := env.svc.CrearCaso(ctx, CrearCasoRequest{
		CiudadanoTitularID: primero.CiudadanoTitularID,
		MotivoDerivacion:   "nueva derivacion del mismo titular",
	}, env.operador)
	require.NoError(t, err)
	assert.True(t, segundo.TieneDuplicado, "el segundo caso abierto queda marcado")

	// Un caso rechazado no cuenta como duplicado
	_, err = env.svc.TomarCaso(ctx, primero.ID, env.operador)
	require.NoError(t, err)
	_, err = env.svc.RechazarCaso(ctx, primero.ID, env.operador, "ya existe otro caso")
	require.NoError(t, err)
	_, err = env.svc.TomarCaso(ctx, segundo.ID, env.operador)
	require.NoError(t, err)
	_, err = env.svc.RechazarCaso(ctx, segundo.ID, env.operador, "cierre administrativo")
	require.NoError(t, err)

	tercero, err := env.svc.CrearCaso(ctx, CrearCasoRequest{
		CiudadanoTitularID: primero.CiudadanoTitularID,
		MotivoDerivacion:   "reingreso",
	}, env.operador)
	require.NoError(t, err)
	assert.False(t, tercero.TieneDuplicado)
}

func TestTomarCaso(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.crearCaso(t)

	_, err := env.svc.TomarCaso(ctx, c.ID, env.territorial)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePermissionDenied))

	tomado, err := env.svc.TomarCaso(ctx, c.ID, env.operador)
	require.NoError(t, err)
	assert.Equal(t, EstadoEnRevision, tomado.Estado)
	require.NotNil(t, tomado.OperadorAdmisionID)
	assert.Equal(t, env.operador.ID, *tomado.OperadorAdmisionID)

	historial, err := env.repo.GetHistorial(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, historial, 1)
	assert.Equal(t, EstadoDerivado, historial[0].EstadoAnterior)
	assert.Equal(t, EstadoEnRevision, historial[0].EstadoNuevo)
	assert.Equal(t, "Caso tomado por operador", historial[0].Observacion)
}

func TestMarcarDocPendiente(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.crearCaso(t)

	_, err := env.svc.MarcarDocPendiente(ctx, c.ID, true, env.territorial)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePermissionDenied))

	marcado, err := env.svc.MarcarDocPendiente(ctx, c.ID, true, env.operador)
	require.NoError(t, err)
	assert.True(t, marcado.DocPendiente)

	// Setting the same value again is a no-op conflict
	_, err = env.svc.MarcarDocPendiente(ctx, c.ID, true, env.operador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))

	limpio, err := env.svc.MarcarDocPendiente(ctx, c.ID, false, env.operador)
	require.NoError(t, err)
	assert.False(t, limpio.DocPendiente)

	// Terminal cases no longer take documentation flags
	_, err = env.svc.RechazarCaso(ctx, c.ID, env.operador, "documentacion nunca presentada")
	require.NoError(t, err)
	_, err = env.svc.MarcarDocPendiente(ctx, c.ID, true, env.operador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingPrecondition))
}

func TestRechazarCasoRequiereMotivo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.crearCaso(t)

	_, err := env.svc.RechazarCaso(ctx, c.ID, env.operador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	rechazado, err := env.svc.RechazarCaso(ctx, c.ID, env.operador, "no corresponde al programa")
	require.NoError(t, err)
	assert.Equal(t, EstadoRechazado, rechazado.Estado)
	assert.Equal(t, "no corresponde al programa", rechazado.MotivoRechazo)
	assert.NotNil(t, rechazado.FechaCierre)

	// Un estado terminal no admite mas operaciones
	_, err = env.svc.TomarCaso(ctx, c.ID, env.operador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeIllegalTransition))
}

func TestEnviarAAsignacionValidaDatos(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	incompleto, err := env.svc.CrearCaso(ctx, CrearCasoRequest{
		CiudadanoTitularID: types.NewID(),
		MotivoDerivacion:   "derivacion sin domicilio",
	}, env.operador)
	require.NoError(t, err)
	_, err = env.svc.TomarCaso(ctx, incompleto.ID, env.operador)
	require.NoError(t, err)

	_, err = env.svc.EnviarAAsignacion(ctx, incompleto.ID, env.operador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingPrecondition))

	completo := env.crearCaso(t)
	_, err = env.svc.TomarCaso(ctx, completo.ID, env.operador)
	require.NoError(t, err)
	enviado, err := env.svc.EnviarAAsignacion(ctx, completo.ID, env.operador)
	require.NoError(t, err)
	assert.Equal(t, EstadoAAsignar, enviado.Estado)
}

func TestAsignarTerritorialCreaTareaConSLA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaAsignado(t)

	assert.Equal(t, EstadoAsignado, c.Estado)
	require.NotNil(t, c.CoordinadorID)
	assert.Equal(t, env.coordinador.ID, *c.CoordinadorID)
	require.NotNil(t, c.TerritorialID)
	assert.Equal(t, env.territorial.ID, *c.TerritorialID)
	require.NotNil(t, c.SLARelevamiento)
	// Siete dias habiles desde el viernes 5 cae el martes 16
	assert.Equal(t, fecha(2024, time.January, 16), *c.SLARelevamiento)

	tareas, err := env.repo.ListTareas(ctx, TareaFilter{CasoID: &c.ID})
	require.NoError(t, err)
	require.Len(t, tareas, 1)
	assert.Equal(t, TareaRelevamiento, tareas[0].Tipo)
	assert.Equal(t, "Relevamiento sociofamiliar inicial", tareas[0].Titulo)
	assert.Equal(t, env.territorial.ID, tareas[0].AsignadoA)
	assert.Equal(t, env.coordinador.ID, tareas[0].CreadoPor)
	assert.Equal(t, TareaPendiente, tareas[0].Estado)
	assert.Equal(t, *c.SLARelevamiento, tareas[0].FechaVencimiento)
}

func TestIniciarRelevamientoSoloTerritorialAsignado(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaAsignado(t)

	otro := &auth.User{ID: types.NewID(), Roles: []string{auth.RoleTerritorial}}
	_, err := env.svc.IniciarRelevamiento(ctx, c.ID, otro)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePermissionDenied))

	iniciado, err := env.svc.IniciarRelevamiento(ctx, c.ID, env.territorial)
	require.NoError(t, err)
	assert.Equal(t, EstadoEnRelevamiento, iniciado.Estado)
	assert.NotNil(t, iniciado.FechaRelevamiento)
}

func TestFinalizarRelevamientoRequiereCompletado(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaAsignado(t)

	_, err := env.svc.IniciarRelevamiento(ctx, c.ID, env.territorial)
	require.NoError(t, err)

	// Sin relevamiento cargado
	_, err = env.svc.FinalizarRelevamiento(ctx, c.ID, env.territorial)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingPrecondition))

	// Cargado pero incompleto
	_, err = env.svc.RegistrarRelevamiento(ctx, c.ID, RegistrarRelevamientoRequest{
		CantidadConvivientes: 3,
	}, env.territorial)
	require.NoError(t, err)
	_, err = env.svc.FinalizarRelevamiento(ctx, c.ID, env.territorial)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingPrecondition))

	// Completado avanza a EVALUADO
	_, err = env.svc.RegistrarRelevamiento(ctx, c.ID, RegistrarRelevamientoRequest{
		CantidadConvivientes: 3,
		Completado:           true,
	}, env.territorial)
	require.NoError(t, err)
	finalizado, err := env.svc.FinalizarRelevamiento(ctx, c.ID, env.territorial)
	require.NoError(t, err)
	assert.Equal(t, EstadoEvaluado, finalizado.Estado)

	rel, err := env.repo.GetRelevamientoPorCaso(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, rel.Completado)
	assert.NotNil(t, rel.FechaFinalizacion)
}

func TestConfirmarEvaluacionRequiereCategoria(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaEvaluado(t)

	_, err := env.svc.ConfirmarEvaluacion(ctx, c.ID, env.coordinador)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingPrecondition))

	_, err = env.svc.RegistrarEvaluacion(ctx, c.ID, RegistrarEvaluacionRequest{
		ScoreTotal:     65,
		CategoriaFinal: CategoriaCritica,
		Dictamen:       "hogar en situacion critica",
	}, env.coordinador)
	require.NoError(t, err)

	confirmado, err := env.svc.ConfirmarEvaluacion(ctx, c.ID, env.coordinador)
	require.NoError(t, err)
	assert.Equal(t, EstadoPlanDefinido, confirmado.Estado)
	assert.NotNil(t, confirmado.FechaEvaluacion)
}

func TestActivarPlanRequierePlanVigente(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaEvaluado(t)

	_, err := env.svc.RegistrarEvaluacion(ctx, c.ID, RegistrarEvaluacionRequest{
		ScoreTotal:     50,
		CategoriaFinal: CategoriaMedia,
	}, env.coordinador)
	require.NoError(t, err)
	_, err = env.svc.ConfirmarEvaluacion(ctx, c.ID, env.coordinador)
	require.NoError(t, err)

	_, err = env.svc.ActivarPlan(ctx, c.ID, env.referente)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingPrecondition))

	_, err = env.svc.DefinirPlan(ctx, c.ID, DefinirPlanRequest{
		ObjetivoGeneral: "Acompanamiento alimentario",
		HorizonteDias:   60,
	}, env.coordinador)
	require.NoError(t, err)

	activado, err := env.svc.ActivarPlan(ctx, c.ID, env.referente)
	require.NoError(t, err)
	assert.Equal(t, EstadoEnEjecucion, activado.Estado)
	require.NotNil(t, activado.ReferenteProgramaID)
	assert.Equal(t, env.referente.ID, *activado.ReferenteProgramaID)

	plan, err := env.repo.GetPlanVigente(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, plan.FechaActivacion)
}

func TestPrestaciones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaEjecucion(t)

	programada := fecha(2024, time.January, 10)
	p, err := env.svc.ProgramarPrestacion(ctx, c.ID, ProgramarPrestacionRequest{
		Tipo:            PrestacionAlimentaria,
		Descripcion:     "Modulo alimentario mensual",
		Frecuencia:      FrecuenciaMensual,
		FechaProgramada: &programada,
	}, env.referente)
	require.NoError(t, err)
	assert.Equal(t, PrestacionProgramada, p.Estado)

	entregada, err := env.svc.RegistrarEntrega(ctx, p.ID, env.referente)
	require.NoError(t, err)
	assert.Equal(t, PrestacionEntregada, entregada.Estado)
	assert.NotNil(t, entregada.FechaEntregada)

	_, err = env.svc.RegistrarEntrega(ctx, p.ID, env.referente)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyProcessed))
}

func TestCierreDeCaso(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaEjecucion(t)

	// Cerrar desde EN_EJECUCION no esta permitido
	_, err := env.svc.CerrarCaso(ctx, c.ID, env.coordinador, "objetivos cumplidos")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeIllegalTransition))

	_, err = env.svc.PasarASeguimiento(ctx, c.ID, env.coordinador)
	require.NoError(t, err)

	_, err = env.svc.CerrarCaso(ctx, c.ID, env.coordinador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	cerrado, err := env.svc.CerrarCaso(ctx, c.ID, env.coordinador, "objetivos cumplidos")
	require.NoError(t, err)
	assert.Equal(t, EstadoCerrado, cerrado.Estado)
	assert.Equal(t, "objetivos cumplidos", cerrado.MotivoCierre)
	assert.NotNil(t, cerrado.FechaCierre)

	// La historia cubre todo el recorrido del caso
	historial, err := env.repo.GetHistorial(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, historial, 9)
	assert.Equal(t, EstadoDerivado, historial[0].EstadoAnterior)
	assert.Equal(t, EstadoCerrado, historial[len(historial)-1].EstadoNuevo)
}

func TestSuspensionYReactivacion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.hastaAsignado(t)

	_, err := env.svc.SuspenderCaso(ctx, c.ID, env.coordinador, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingReason))

	suspendido, err := env.svc.SuspenderCaso(ctx, c.ID, env.coordinador, "titular no ubicable")
	require.NoError(t, err)
	assert.Equal(t, EstadoSuspendido, suspendido.Estado)
	assert.Equal(t, "titular no ubicable", suspendido.MotivoSuspension)

	// Reactivar hacia un estado de admision no esta permitido
	_, err = env.svc.ReactivarCaso(ctx, c.ID, EstadoDerivado, env.coordinador, "contacto restablecido")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeIllegalTransition))

	reactivado, err := env.svc.ReactivarCaso(ctx, c.ID, EstadoAsignado, env.coordinador, "contacto restablecido")
	require.NoError(t, err)
	assert.Equal(t, EstadoAsignado, reactivado.Estado)
	assert.Empty(t, reactivado.MotivoSuspension)
}
