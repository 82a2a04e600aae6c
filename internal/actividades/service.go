package actividades

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/events"
	"github.com/gob-chaco/nodo/internal/shared/metrics"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// Absence streak thresholds
const (
	umbralAusentismo3 = 3
	umbralAusentismo5 = 5
	// umbralSemanal is the number of absences within a calendar week
	// that raises the weekly alert even when the streak is broken
	umbralSemanal = 3
)

// Service manages activity participants, daily attendance and the
// absence alerts derived from it
type Service struct {
	repo   Repository
	bus    events.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the attendance service
func NewService(repo Repository, bus events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Inscribir enrolls a citizen into an activity
func (s *Service) Inscribir(ctx context.Context, actividadID, ciudadanoID types.ID, usuario *auth.User, observaciones string) (*InscriptoActividad, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	now := s.now()
	i := &InscriptoActividad{
		ID:               types.NewID(),
		ActividadID:      actividadID,
		CiudadanoID:      ciudadanoID,
		Estado:           InscriptoInscrito,
		FechaInscripcion: now,
		Observaciones:    observaciones,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateInscripto(ctx, i); err != nil {
		return nil, err
	}

	if err := s.appendHistorial(ctx, i.ID, AccionInscripcion, "", usuario, "Inscripcion a la actividad"); err != nil {
		return nil, err
	}
	s.publish(ctx, "actividades.inscripto.creado", usuario, i)
	return i, nil
}

// ActivarInscripto confirms the participant started attending
func (s *Service) ActivarInscripto(ctx context.Context, inscriptoID types.ID, usuario *auth.User) (*InscriptoActividad, error) {
	return s.cambiarEstado(ctx, inscriptoID, InscriptoActivo, AccionActivacion, usuario, "")
}

// FinalizarInscripto closes the participation as completed
func (s *Service) FinalizarInscripto(ctx context.Context, inscriptoID types.ID, usuario *auth.User, descripcion string) (*InscriptoActividad, error) {
	return s.cambiarEstado(ctx, inscriptoID, InscriptoFinalizado, AccionFinalizacion, usuario, descripcion)
}

// RegistrarAbandono closes the participation as dropped, with a reason
func (s *Service) RegistrarAbandono(ctx context.Context, inscriptoID types.ID, usuario *auth.User, motivo string) (*InscriptoActividad, error) {
	if strings.TrimSpace(motivo) == "" {
		return nil, errors.MissingReason("motivo is required to register an abandono")
	}
	return s.cambiarEstado(ctx, inscriptoID, InscriptoAbandonado, AccionAbandono, usuario, motivo)
}

func (s *Service) cambiarEstado(ctx context.Context, inscriptoID types.ID, nuevo EstadoInscripto, accion AccionInscripto, usuario *auth.User, descripcion string) (*InscriptoActividad, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	i, err := s.repo.GetInscripto(ctx, inscriptoID)
	if err != nil {
		return nil, err
	}
	if i.Estado == nuevo {
		return nil, errors.AlreadyProcessed(fmt.Sprintf("inscripto already %s", nuevo))
	}
	if !i.EstaCursando() {
		return nil, errors.IllegalTransition(string(i.Estado), string(nuevo))
	}

	anterior := i.Estado
	now := s.now()
	i.Estado = nuevo
	i.UpdatedAt = now
	if nuevo == InscriptoFinalizado || nuevo == InscriptoAbandonado {
		fecha := now
		i.FechaFinalizacion = &fecha
	}
	if err := s.repo.UpdateInscripto(ctx, i); err != nil {
		return nil, err
	}
	if err := s.appendHistorial(ctx, i.ID, accion, anterior, usuario, descripcion); err != nil {
		return nil, err
	}
	return i, nil
}

// RegistrarAsistencia records one attendance mark for a session day and
// evaluates the participant's absence streak
func (s *Service) RegistrarAsistencia(ctx context.Context, inscriptoID types.ID, fecha time.Time, estado EstadoAsistencia, usuario *auth.User, observaciones string) (*RegistroAsistencia, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	i, err := s.repo.GetInscripto(ctx, inscriptoID)
	if err != nil {
		return nil, err
	}
	if !i.EstaCursando() {
		return nil, errors.MissingPrecondition(fmt.Sprintf("inscripto is %s, attendance is only recorded while cursando", i.Estado))
	}

	existente, err := s.repo.GetAsistenciaPorDia(ctx, inscriptoID, fecha)
	if err != nil {
		return nil, err
	}
	if existente != nil {
		return nil, errors.AlreadyProcessed("asistencia already recorded for this day")
	}

	registradoPor := usuario.ID
	a := &RegistroAsistencia{
		ID:            types.NewID(),
		InscriptoID:   inscriptoID,
		Fecha:         fecha,
		Estado:        estado,
		Observaciones: observaciones,
		RegistradoPor: &registradoPor,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateAsistencia(ctx, a); err != nil {
		return nil, err
	}

	if estado.EsAusencia() {
		if err := s.evaluarRacha(ctx, inscriptoID); err != nil {
			// Attendance is already recorded, an alerting failure must
			// not roll it back
			s.logger.Error("failed to evaluate absence streak",
				"inscripto_id", inscriptoID,
				"error", err,
			)
		}
	}
	return a, nil
}

// evaluarRacha counts the consecutive unjustified absences ending at
// the latest mark and raises the streak alerts that apply
func (s *Service) evaluarRacha(ctx context.Context, inscriptoID types.ID) error {
	recientes, err := s.repo.ListAsistenciasRecientes(ctx, inscriptoID, umbralAusentismo5+1)
	if err != nil {
		return err
	}

	racha := 0
	var inicio time.Time
	for _, a := range recientes {
		if !a.Estado.EsAusencia() {
			break
		}
		racha++
		inicio = a.Fecha
	}

	if racha >= umbralAusentismo3 {
		if err := s.emitirAlerta(ctx, inscriptoID, AlertaAusentismo3, racha, inicio); err != nil {
			return err
		}
	}
	if racha >= umbralAusentismo5 {
		if err := s.emitirAlerta(ctx, inscriptoID, AlertaAusentismo5, racha, inicio); err != nil {
			return err
		}
	}
	return nil
}

// RevisarAusentismoSemanal raises the weekly alert for every cursando
// participant with enough absences over the last seven days, streak or
// not. Meant to run from a scheduler.
func (s *Service) RevisarAusentismoSemanal(ctx context.Context) (int, error) {
	generadas := 0
	corte := s.now().AddDate(0, 0, -7)

	for _, estado := range []EstadoInscripto{InscriptoInscrito, InscriptoActivo} {
		filtro := estado
		inscriptos, err := s.repo.ListInscriptos(ctx, InscriptoFilter{Estado: &filtro})
		if err != nil {
			return generadas, err
		}

		for _, i := range inscriptos {
			recientes, err := s.repo.ListAsistenciasRecientes(ctx, i.ID, 7)
			if err != nil {
				return generadas, err
			}

			ausencias := 0
			var inicio time.Time
			for _, a := range recientes {
				if a.Fecha.Before(corte) || !a.Estado.EsAusencia() {
					continue
				}
				ausencias++
				if inicio.IsZero() || a.Fecha.Before(inicio) {
					inicio = a.Fecha
				}
			}
			if ausencias < umbralSemanal {
				continue
			}

			if err := s.emitirAlerta(ctx, i.ID, AlertaAusentismoSemanal, ausencias, inicio); err != nil {
				return generadas, err
			}
			generadas++
		}
	}
	return generadas, nil
}

func (s *Service) emitirAlerta(ctx context.Context, inscriptoID types.ID, tipo TipoAlerta, dias int, inicio time.Time) error {
	// One active alert per type per participant
	existe, err := s.repo.ExisteAlertaActiva(ctx, inscriptoID, tipo)
	if err != nil {
		return err
	}
	if existe {
		return nil
	}

	a := &AlertaAusentismo{
		ID:                  types.NewID(),
		InscriptoID:         inscriptoID,
		Tipo:                tipo,
		DiasAusente:         dias,
		FechaInicioAusencia: inicio,
		Activa:              true,
		CreatedAt:           s.now(),
	}
	if err := s.repo.CreateAlerta(ctx, a); err != nil {
		return err
	}

	metrics.RecordAlertaAusentismo(string(tipo))
	s.logger.Warn("alerta de ausentismo",
		"inscripto_id", inscriptoID,
		"tipo", tipo,
		"dias_ausente", dias,
	)
	s.publish(ctx, "actividades.alerta.creada", nil, a)
	return nil
}

// MarcarAlertaVista closes an alert after operator review
func (s *Service) MarcarAlertaVista(ctx context.Context, alertaID types.ID, usuario *auth.User) (*AlertaAusentismo, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	a, err := s.repo.GetAlerta(ctx, alertaID)
	if err != nil {
		return nil, err
	}
	if !a.Activa {
		return nil, errors.AlreadyProcessed("alerta already reviewed")
	}

	vistaPor := usuario.ID
	a.Activa = false
	a.VistaPor = &vistaPor
	if err := s.repo.UpdateAlerta(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) appendHistorial(ctx context.Context, inscriptoID types.ID, accion AccionInscripto, anterior EstadoInscripto, usuario *auth.User, descripcion string) error {
	usuarioID := usuario.ID
	return s.repo.AppendHistorialInscripto(ctx, &HistorialInscripto{
		ID:             types.NewID(),
		InscriptoID:    inscriptoID,
		Accion:         accion,
		EstadoAnterior: anterior,
		UsuarioID:      &usuarioID,
		Descripcion:    descripcion,
		RegistradoEn:   s.now(),
	})
}

func (s *Service) publish(ctx context.Context, eventType string, usuario *auth.User, data any) {
	event := events.NewEvent(eventType, "actividades", data)
	if usuario != nil {
		event.ActorID = usuario.ID
		event.ActorType = usuario.UserType
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}
