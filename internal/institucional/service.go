package institucional

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

// Service implements referral resolution and the institutional case
// lifecycle. Every state-changing operation runs inside a single
// transaction with the referral or case row locked first.
type Service struct {
	repo      Repository
	programas programa.Repository
	bus       events.EventBus
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the institutional service
func NewService(repo Repository, programas programa.Repository, bus events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		programas: programas,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) puedeResponder(usuario *auth.User) error {
	if usuario == nil {
		return errors.Unauthorized("authentication required")
	}
	if usuario.IsAdmin() ||
		usuario.HasRole(auth.RoleResponsableLocal) ||
		usuario.HasRole(auth.RoleCoordinador) {
		return nil
	}
	return errors.PermissionDenied("user cannot respond to derivaciones")
}

// CrearDerivacionRequest is the payload for creating a referral
type CrearDerivacionRequest struct {
	CiudadanoID           types.ID
	InstitucionProgramaID types.ID
	Motivo                string
	Urgencia              Urgencia
	Observaciones         string
}

// CrearDerivacion registers a pending referral against an
// institution-program link, denormalizing institution and program
func (s *Service) CrearDerivacion(ctx context.Context, req CrearDerivacionRequest, usuario *auth.User) (*DerivacionInstitucional, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(req.Motivo) == "" {
		return nil, errors.Validation("validation failed", map[string]string{"motivo": "motivo is required"})
	}

	ip, err := s.repo.GetInstitucionPrograma(ctx, req.InstitucionProgramaID)
	if err != nil {
		return nil, err
	}

	urgencia := req.Urgencia
	if urgencia == "" {
		urgencia = UrgenciaMedia
	}

	now := s.now()
	derivadoPor := usuario.ID
	d := &DerivacionInstitucional{
		ID:                    types.NewID(),
		CiudadanoID:           req.CiudadanoID,
		InstitucionID:         ip.InstitucionID,
		ProgramaID:            ip.ProgramaID,
		InstitucionProgramaID: ip.ID,
		Estado:                DerivacionPendiente,
		Urgencia:              urgencia,
		Motivo:                req.Motivo,
		Observaciones:         req.Observaciones,
		DerivadoPor:           &derivadoPor,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.CreateDerivacion(ctx, d); err != nil {
		return nil, err
	}

	s.publish(ctx, "institucional.derivacion.creada", usuario, d)
	return d, nil
}

// AceptarDerivacion resolves a pending referral. It either creates a
// new case (returning created=true) or unifies the referral with the
// citizen's existing open case for the same link (created=false).
//
// Admission checks, quota counting and the unification lookup all run
// after the referral row is locked, so concurrent accepts for the same
// citizen and link serialize on the referral and cannot both create a
// case or overflow the quota.
// The optional responsable becomes the new case's responsible; when nil
// the acting user is stamped.
func (s *Service) AceptarDerivacion(ctx context.Context, derivacionID types.ID, usuario *auth.User, observacion string, responsable *types.ID) (*CasoInstitucional, bool, error) {
	if err := s.puedeResponder(usuario); err != nil {
		return nil, false, err
	}

	var (
		caso    *CasoInstitucional
		creado  bool
		deriv   *DerivacionInstitucional
	)

	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		d, err := tx.GetDerivacionForUpdate(ctx, derivacionID)
		if err != nil {
			return err
		}
		if !d.EstaPendiente() {
			return errors.AlreadyProcessed(fmt.Sprintf("derivacion already %s", d.Estado))
		}

		global, err := tx.GetEstadoGlobal(ctx, d.InstitucionID)
		if err != nil {
			return err
		}
		if global == GlobalCerrado {
			return errors.InstitutionClosed("institucion is globally closed")
		}

		ip, err := tx.GetInstitucionPrograma(ctx, d.InstitucionProgramaID)
		if err != nil {
			return err
		}
		if !ip.PuedeAceptarDerivaciones(global) {
			return errors.ProgramNotActive("programa is not active in this institucion")
		}

		// Unification first: an open case for the pair absorbs the
		// referral without consuming new quota.
		existente, err := tx.GetCasoAbierto(ctx, d.CiudadanoID, d.InstitucionProgramaID)
		if err != nil {
			return err
		}

		now := s.now()
		respondidoPor := usuario.ID
		responsableID := respondidoPor
		if responsable != nil && !responsable.IsZero() {
			responsableID = *responsable
		}

		if existente != nil {
			d.Estado = DerivacionAceptadaUnificada
			d.CasoCreadoID = &existente.ID
			d.Respuesta = fmt.Sprintf("Unificada con caso existente %s", existente.Codigo)
			d.FechaRespuesta = &now
			d.RespondidoPor = &respondidoPor
			d.UpdatedAt = now
			if observacion != "" {
				d.Observaciones = appendLinea(d.Observaciones, observacion, now)
			}
			if err := tx.UpdateDerivacion(ctx, d); err != nil {
				return err
			}
			if err := tx.AppendHistorial(ctx, &HistorialCaso{
				ID:             types.NewID(),
				CasoID:         existente.ID,
				EstadoAnterior: existente.Estado,
				EstadoNuevo:    existente.Estado,
				UsuarioID:      usuario.ID,
				Observacion:    fmt.Sprintf("Derivacion %s unificada", d.ID),
				RegistradoEn:   now,
			}); err != nil {
				return err
			}
			caso, creado, deriv = existente, false, d
			return nil
		}

		if ip.ControlarCupo && ip.CupoMaximo != nil && !ip.PermiteSobrecupo {
			ocupados, err := tx.CountCasosAbiertos(ctx, ip.ID)
			if err != nil {
				return err
			}
			if ocupados >= *ip.CupoMaximo {
				metrics.RecordRechazoPorCupo()
				return errors.QuotaExceeded(fmt.Sprintf("cupo maximo %d reached", *ip.CupoMaximo))
			}
		}

		maxVersion, err := tx.MaxVersionCaso(ctx, d.CiudadanoID, d.InstitucionProgramaID)
		if err != nil {
			return err
		}

		seq, err := tx.NextCodigoSeq(ctx)
		if err != nil {
			return err
		}
		tipo, err := s.tipoPrograma(ctx, ip.ProgramaID)
		if err != nil {
			return err
		}

		nuevo := &CasoInstitucional{
			ID:                    types.NewID(),
			CiudadanoID:           d.CiudadanoID,
			InstitucionProgramaID: d.InstitucionProgramaID,
			Codigo:                GenerarCodigoCaso(tipo, now, seq),
			Version:               maxVersion + 1,
			Estado:                CasoActivo,
			FechaApertura:         now,
			ResponsableID:         &responsableID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := tx.CreateCaso(ctx, nuevo); err != nil {
			return err
		}

		d.Estado = DerivacionAceptada
		d.CasoCreadoID = &nuevo.ID
		d.Respuesta = fmt.Sprintf("Caso creado: %s", nuevo.Codigo)
		d.FechaRespuesta = &now
		d.RespondidoPor = &respondidoPor
		d.UpdatedAt = now
		if observacion != "" {
			d.Observaciones = appendLinea(d.Observaciones, observacion, now)
		}
		if err := tx.UpdateDerivacion(ctx, d); err != nil {
			return err
		}

		if err := tx.AppendHistorial(ctx, &HistorialCaso{
			ID:             types.NewID(),
			CasoID:         nuevo.ID,
			EstadoAnterior: CasoActivo,
			EstadoNuevo:    CasoActivo,
			UsuarioID:      usuario.ID,
			Observacion:    fmt.Sprintf("Caso creado desde derivacion %s", d.ID),
			RegistradoEn:   now,
		}); err != nil {
			return err
		}

		caso, creado, deriv = nuevo, true, d
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	metrics.RecordDerivacionRespondida(string(deriv.Estado))
	s.logger.Info("derivacion aceptada",
		"derivacion_id", deriv.ID,
		"caso_id", caso.ID,
		"caso_codigo", caso.Codigo,
		"creado", creado,
	)
	if creado {
		s.publish(ctx, "institucional.caso.creado", usuario, map[string]any{
			"caso":       caso,
			"derivacion": deriv,
		})
	}
	s.publish(ctx, "institucional.derivacion.aceptada", usuario, deriv)
	return caso, creado, nil
}

// RechazarDerivacion marks a pending referral rejected with a reason
func (s *Service) RechazarDerivacion(ctx context.Context, derivacionID types.ID, usuario *auth.User, motivo string) (*DerivacionInstitucional, error) {
	if err := s.puedeResponder(usuario); err != nil {
		return nil, err
	}
	if strings.TrimSpace(motivo) == "" {
		return nil, errors.MissingReason("motivo is required to reject a derivacion")
	}

	var deriv *DerivacionInstitucional
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
		d.Estado = DerivacionRechazada
		d.Respuesta = motivo
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

	metrics.RecordDerivacionRespondida(string(DerivacionRechazada))
	s.publish(ctx, "institucional.derivacion.rechazada", usuario, deriv)
	return deriv, nil
}

// CambiarEstadoCaso applies a manual state change to a case and records
// it in the append-only history
func (s *Service) CambiarEstadoCaso(ctx context.Context, casoID types.ID, nuevo EstadoCaso, usuario *auth.User, nota, motivoCierre string) (*CasoInstitucional, error) {
	if err := s.puedeResponder(usuario); err != nil {
		return nil, err
	}

	var (
		caso     *CasoInstitucional
		anterior EstadoCaso
	)
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		c, err := tx.GetCasoForUpdate(ctx, casoID)
		if err != nil {
			return err
		}

		anterior = c.Estado
		now := s.now()
		if err := c.CambiarEstado(nuevo, motivoCierre, now); err != nil {
			return err
		}
		if nota != "" {
			c.AppendObservacion(nota, now)
		}

		if err := tx.UpdateCaso(ctx, c); err != nil {
			return err
		}
		if err := tx.AppendHistorial(ctx, &HistorialCaso{
			ID:             types.NewID(),
			CasoID:         c.ID,
			EstadoAnterior: anterior,
			EstadoNuevo:    nuevo,
			UsuarioID:      usuario.ID,
			Observacion:    nota,
			RegistradoEn:   now,
		}); err != nil {
			return err
		}
		caso = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCasoEstadoCambiado(string(anterior), string(nuevo))
	s.publish(ctx, "institucional.caso.estado_cambiado", usuario, caso)
	return caso, nil
}

// ReabrirCaso reopens a closed or discharged case in place
func (s *Service) ReabrirCaso(ctx context.Context, casoID types.ID, usuario *auth.User, nota string) (*CasoInstitucional, error) {
	if err := s.puedeResponder(usuario); err != nil {
		return nil, err
	}

	var (
		caso     *CasoInstitucional
		anterior EstadoCaso
	)
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		c, err := tx.GetCasoForUpdate(ctx, casoID)
		if err != nil {
			return err
		}

		anterior = c.Estado
		now := s.now()
		if err := c.Reabrir(nota, now); err != nil {
			return err
		}

		if err := tx.UpdateCaso(ctx, c); err != nil {
			return err
		}
		if err := tx.AppendHistorial(ctx, &HistorialCaso{
			ID:             types.NewID(),
			CasoID:         c.ID,
			EstadoAnterior: anterior,
			EstadoNuevo:    c.Estado,
			UsuarioID:      usuario.ID,
			Observacion:    nota,
			RegistradoEn:   now,
		}); err != nil {
			return err
		}
		caso = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCasoEstadoCambiado(string(anterior), string(caso.Estado))
	s.publish(ctx, "institucional.caso.reabierto", usuario, caso)
	return caso, nil
}

// CupoDisponible reports remaining capacity for a link, nil meaning
// unlimited
func (s *Service) CupoDisponible(ctx context.Context, institucionProgramaID types.ID) (*int, error) {
	ip, err := s.repo.GetInstitucionPrograma(ctx, institucionProgramaID)
	if err != nil {
		return nil, err
	}
	ocupados, err := s.repo.CountCasosAbiertos(ctx, ip.ID)
	if err != nil {
		return nil, err
	}
	return ip.CupoDisponible(ocupados), nil
}

func (s *Service) tipoPrograma(ctx context.Context, programaID types.ID) (string, error) {
	p, err := s.programas.Get(ctx, programaID)
	if err != nil {
		return "", err
	}
	return p.Tipo, nil
}

func (s *Service) publish(ctx context.Context, eventType string, usuario *auth.User, data any) {
	event := events.NewEvent(eventType, "institucional", data)
	if usuario != nil {
		event.ActorID = usuario.ID
		event.ActorType = usuario.UserType
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}

func appendLinea(texto, nota string, now time.Time) string {
	linea := fmt.Sprintf("[%s] %s", now.Format("2006-01-02"), nota)
	if texto == "" {
		return linea
	}
	return texto + "\n" + linea
}
