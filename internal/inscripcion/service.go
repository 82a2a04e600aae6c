package inscripcion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gob-chaco/nodo/internal/programa"
	"github.com/gob-chaco/nodo/internal/shared/auth"
	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/events"
	"github.com/gob-chaco/nodo/internal/shared/metrics"
	"github.com/gob-chaco/nodo/internal/shared/types"
)

// Service implements citizen-level enrollment and program referral
// resolution
type Service struct {
	repo      Repository
	programas programa.Repository
	bus       events.EventBus
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the enrollment service
func NewService(repo Repository, programas programa.Repository, bus events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		programas: programas,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// InscribirRequest is the payload for a direct enrollment
type InscribirRequest struct {
	CiudadanoID types.ID
	ProgramaID  types.ID
	Via         ViaIngreso
	// Documento is the citizen document used in the enrollment code.
	// Falls back to a short form of the citizen ID when absent.
	Documento string
	Notas     string
}

// Inscribir registers a citizen in a program. The (citizen, program)
// pair is unique; a second enrollment attempt conflicts.
func (s *Service) Inscribir(ctx context.Context, req InscribirRequest, usuario *auth.User) (*InscripcionPrograma, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	p, err := s.programas.Get(ctx, req.ProgramaID)
	if err != nil {
		return nil, err
	}
	if !p.Activo {
		return nil, errors.ProgramNotActive("programa is not active")
	}

	via := req.Via
	if via == "" {
		via = ViaDirecto
	}

	var inscripcion *InscripcionPrograma
	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		existente, err := tx.GetInscripcionPorPar(ctx, req.CiudadanoID, req.ProgramaID)
		if err != nil {
			return err
		}
		if existente != nil {
			return errors.Conflict(fmt.Sprintf("ciudadano already enrolled in programa %s", p.Codigo))
		}

		now := s.now()
		responsable := usuario.ID
		nueva := &InscripcionPrograma{
			ID:               types.NewID(),
			CiudadanoID:      req.CiudadanoID,
			ProgramaID:       req.ProgramaID,
			Codigo:           GenerarCodigoInscripcion(p.Codigo, now, documentoODefault(req.Documento, req.CiudadanoID)),
			Estado:           InscripcionPendiente,
			ViaIngreso:       via,
			FechaInscripcion: now,
			ResponsableID:    &responsable,
			Notas:            req.Notas,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreateInscripcion(ctx, nueva); err != nil {
			return err
		}
		inscripcion = nueva
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordInscripcionCreada(p.Codigo, string(via))
	s.publish(ctx, "inscripcion.creada", usuario, inscripcion)
	return inscripcion, nil
}

// ActivarInscripcion moves an enrollment to ACTIVO
func (s *Service) ActivarInscripcion(ctx context.Context, id types.ID, usuario *auth.User) (*InscripcionPrograma, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	var inscripcion *InscripcionPrograma
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		i, err := tx.GetInscripcionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := i.Activar(s.now()); err != nil {
			return err
		}
		if err := tx.UpdateInscripcion(ctx, i); err != nil {
			return err
		}
		inscripcion = i
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "inscripcion.activada", usuario, inscripcion)
	return inscripcion, nil
}

// CerrarInscripcion closes an enrollment with a required reason
func (s *Service) CerrarInscripcion(ctx context.Context, id types.ID, usuario *auth.User, motivo string) (*InscripcionPrograma, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	var inscripcion *InscripcionPrograma
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		i, err := tx.GetInscripcionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := i.Cerrar(motivo, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateInscripcion(ctx, i); err != nil {
			return err
		}
		inscripcion = i
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "inscripcion.cerrada", usuario, inscripcion)
	return inscripcion, nil
}

// CrearDerivacionRequest is the payload for a program referral
type CrearDerivacionRequest struct {
	CiudadanoID         types.ID
	ProgramaOrigenID    *types.ID
	InscripcionOrigenID *types.ID
	ProgramaDestinoID   types.ID
	Motivo              string
	Urgencia            Urgencia
}

// CrearDerivacion registers a pending program-to-program referral
func (s *Service) CrearDerivacion(ctx context.Context, req CrearDerivacionRequest, usuario *auth.User) (*DerivacionPrograma, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(req.Motivo) == "" {
		return nil, errors.Validation("validation failed", map[string]string{"motivo": "motivo is required"})
	}
	if _, err := s.programas.Get(ctx, req.ProgramaDestinoID); err != nil {
		return nil, err
	}

	urgencia := req.Urgencia
	if urgencia == "" {
		urgencia = UrgenciaMedia
	}

	now := s.now()
	derivadoPor := usuario.ID
	d := &DerivacionPrograma{
		ID:                  types.NewID(),
		CiudadanoID:         req.CiudadanoID,
		ProgramaOrigenID:    req.ProgramaOrigenID,
		InscripcionOrigenID: req.InscripcionOrigenID,
		ProgramaDestinoID:   req.ProgramaDestinoID,
		Motivo:              req.Motivo,
		Urgencia:            urgencia,
		Estado:              DerivacionPendiente,
		DerivadoPor:         &derivadoPor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.CreateDerivacion(ctx, d); err != nil {
		return nil, err
	}

	s.publish(ctx, "inscripcion.derivacion.creada", usuario, d)
	return d, nil
}

// AceptarDerivacion resolves a pending referral into an enrollment.
// Acceptance is idempotent with respect to the enrollment: if the
// citizen already holds an enrollment in the target program it is
// reused (and reactivated when dormant) instead of duplicated.
func (s *Service) AceptarDerivacion(ctx context.Context, derivacionID types.ID, usuario *auth.User, respuesta string) (*InscripcionPrograma, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	var (
		inscripcion *InscripcionPrograma
		creada      bool
	)
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		d, err := tx.GetDerivacionForUpdate(ctx, derivacionID)
		if err != nil {
			return err
		}
		if !d.EstaPendiente() {
			return errors.AlreadyProcessed(fmt.Sprintf("derivacion already %s", d.Estado))
		}

		p, err := s.programas.Get(ctx, d.ProgramaDestinoID)
		if err != nil {
			return err
		}

		now := s.now()
		i, nueva, err := s.asegurarInscripcion(ctx, tx, d.CiudadanoID, p, ViaDerivacionInterna, now, usuario)
		if err != nil {
			return err
		}

		respondidoPor := usuario.ID
		d.Estado = DerivacionAceptada
		d.InscripcionCreadaID = &i.ID
		if respuesta == "" {
			if nueva {
				respuesta = fmt.Sprintf("Inscripcion creada: %s", i.Codigo)
			} else {
				respuesta = fmt.Sprintf("Inscripcion existente reutilizada: %s", i.Codigo)
			}
		}
		d.Respuesta = respuesta
		d.FechaRespuesta = &now
		d.RespondidoPor = &respondidoPor
		d.UpdatedAt = now
		if err := tx.UpdateDerivacion(ctx, d); err != nil {
			return err
		}

		inscripcion, creada = i, nueva
		return nil
	})
	if err != nil {
		return nil, err
	}

	if creada {
		s.publish(ctx, "inscripcion.creada", usuario, inscripcion)
	}
	s.publish(ctx, "inscripcion.derivacion.aceptada", usuario, inscripcion)
	return inscripcion, nil
}

// RechazarDerivacion marks a pending referral rejected with a reason
func (s *Service) RechazarDerivacion(ctx context.Context, derivacionID types.ID, usuario *auth.User, motivo string) (*DerivacionPrograma, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(motivo) == "" {
		return nil, errors.MissingReason("motivo is required to reject a derivacion")
	}
	return s.responder(ctx, derivacionID, usuario, DerivacionRechazada, motivo)
}

// CancelarDerivacion withdraws a pending referral
func (s *Service) CancelarDerivacion(ctx context.Context, derivacionID types.ID, usuario *auth.User, motivo string) (*DerivacionPrograma, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	return s.responder(ctx, derivacionID, usuario, DerivacionCancelada, motivo)
}

func (s *Service) responder(ctx context.Context, derivacionID types.ID, usuario *auth.User, estado EstadoDerivacion, respuesta string) (*DerivacionPrograma, error) {
	var deriv *DerivacionPrograma
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		d, err := tx.GetDerivacionForUpdate(ctx, derivacionID)
		if err != nil {
			return err
		}
		if !d.EstaPendiente() {
			return errors.AlreadyProcessed(fmt.Sprintf("derivacion already %s", d.Estado))
		}

		now := s.now()
		respondidoPor := usuario.ID
		d.Estado = estado
		d.Respuesta = respuesta
		d.FechaRespuesta = &now
		d.RespondidoPor = &respondidoPor
		d.UpdatedAt = now
		if err := tx.UpdateDerivacion(ctx, d); err != nil {
			return err
		}
		deriv = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "inscripcion.derivacion."+strings.ToLower(string(estado)), usuario, deriv)
	return deriv, nil
}

// AsegurarInscripcionPorTipo guarantees the citizen holds an active
// enrollment in the program identified by its type. Used when an
// institutional case opens and the enrollment must follow.
func (s *Service) AsegurarInscripcionPorTipo(ctx context.Context, ciudadanoID types.ID, programaTipo string, via ViaIngreso) (*InscripcionPrograma, error) {
	p, err := s.programas.GetByTipo(ctx, programaTipo)
	if err != nil {
		return nil, err
	}

	var inscripcion *InscripcionPrograma
	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		i, _, err := s.asegurarInscripcion(ctx, tx, ciudadanoID, p, via, s.now(), nil)
		if err != nil {
			return err
		}
		inscripcion = i
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inscripcion, nil
}

// asegurarInscripcion reuses the pair's enrollment or creates one,
// active either way. Runs inside the caller's transaction.
func (s *Service) asegurarInscripcion(ctx context.Context, tx Tx, ciudadanoID types.ID, p *programa.Programa, via ViaIngreso, now time.Time, usuario *auth.User) (*InscripcionPrograma, bool, error) {
	existente, err := tx.GetInscripcionPorPar(ctx, ciudadanoID, p.ID)
	if err != nil {
		return nil, false, err
	}

	if existente != nil {
		if !existente.EstaActiva() {
			existente.Estado = InscripcionActiva
			if existente.FechaInicio == nil {
				fecha := now
				existente.FechaInicio = &fecha
			}
			existente.FechaCierre = nil
			existente.AppendNota("Reactivada por derivacion", now)
			existente.UpdatedAt = now
			if err := tx.UpdateInscripcion(ctx, existente); err != nil {
				return nil, false, err
			}
		}
		return existente, false, nil
	}

	var responsable *types.ID
	if usuario != nil {
		id := usuario.ID
		responsable = &id
	}
	fecha := now
	nueva := &InscripcionPrograma{
		ID:               types.NewID(),
		CiudadanoID:      ciudadanoID,
		ProgramaID:       p.ID,
		Codigo:           GenerarCodigoInscripcion(p.Codigo, now, documentoODefault("", ciudadanoID)),
		Estado:           InscripcionActiva,
		ViaIngreso:       via,
		FechaInscripcion: now,
		FechaInicio:      &fecha,
		ResponsableID:    responsable,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.CreateInscripcion(ctx, nueva); err != nil {
		return nil, false, err
	}

	metrics.RecordInscripcionCreada(p.Codigo, string(via))
	return nueva, true, nil
}

func (s *Service) publish(ctx context.Context, eventType string, usuario *auth.User, data any) {
	event := events.NewEvent(eventType, "inscripcion", data)
	if usuario != nil {
		event.ActorID = usuario.ID
		event.ActorType = usuario.UserType
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}

func documentoODefault(documento string, ciudadanoID types.ID) string {
	if documento != "" {
		return documento
	}
	id := string(ciudadanoID)
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
