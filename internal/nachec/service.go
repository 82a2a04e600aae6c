package nachec

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

// Service drives cases through the intake-to-follow-up workflow. Every
// transition locks the case row, validates the pair against the
// transition table, checks the operation's preconditions and appends an
// immutable history record, all in one transaction.
type Service struct {
	repo   Repository
	bus    events.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the workflow service
func NewService(repo Repository, bus events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) puedeAdmitir(usuario *auth.User) error {
	if usuario == nil {
		return errors.Unauthorized("authentication required")
	}
	if usuario.IsAdmin() || usuario.HasRole(auth.RoleOperadorAdmision) {
		return nil
	}
	return errors.PermissionDenied("user cannot operate the admission stage")
}

func (s *Service) puedeCoordinar(usuario *auth.User) error {
	if usuario == nil {
		return errors.Unauthorized("authentication required")
	}
	if usuario.IsAdmin() || usuario.HasRole(auth.RoleCoordinador) {
		return nil
	}
	return errors.PermissionDenied("user cannot operate the coordination stage")
}

// CrearCasoRequest is the payload for opening a workflow case
type CrearCasoRequest struct {
	CiudadanoTitularID   types.ID
	Prioridad            Prioridad
	Municipio            string
	Localidad            string
	Direccion            string
	ReferenciasDomicilio string
	MotivoDerivacion     string
	Observaciones        string
}

// CrearCaso opens a case in DERIVADO with the review SLA running. If
// the citizen already has another open case the new one is flagged as a
// possible duplicate but still created.
func (s *Service) CrearCaso(ctx context.Context, req CrearCasoRequest, usuario *auth.User) (*CasoNachec, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(req.MotivoDerivacion) == "" {
		return nil, errors.Validation("validation failed", map[string]string{"motivo_derivacion": "motivo_derivacion is required"})
	}

	prioridad := req.Prioridad
	if prioridad == "" {
		prioridad = PrioridadMedia
	}
	if !PrioridadValida(prioridad) {
		return nil, errors.Validation("validation failed", map[string]string{"prioridad": fmt.Sprintf("unknown prioridad %q", prioridad)})
	}

	now := s.now()
	sla := CalcularSLARevision(now)
	c := &CasoNachec{
		ID:                   types.NewID(),
		CiudadanoTitularID:   req.CiudadanoTitularID,
		Estado:               EstadoDerivado,
		Prioridad:            prioridad,
		Municipio:            req.Municipio,
		Localidad:            req.Localidad,
		Direccion:            req.Direccion,
		ReferenciasDomicilio: req.ReferenciasDomicilio,
		FechaDerivacion:      now,
		MotivoDerivacion:     req.MotivoDerivacion,
		Observaciones:        req.Observaciones,
		SLARevision:          &sla,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	duplicado, err := s.repo.ExisteOtroCasoAbierto(ctx, req.CiudadanoTitularID, c.ID)
	if err != nil {
		return nil, err
	}
	c.TieneDuplicado = duplicado

	if err := s.repo.CreateCaso(ctx, c); err != nil {
		return nil, err
	}

	if duplicado {
		s.logger.Warn("caso creado con posible duplicado",
			"caso_id", c.ID,
			"ciudadano_id", c.CiudadanoTitularID,
		)
	}
	s.publish(ctx, "nachec.caso.creado", usuario, c)
	return c, nil
}

// TomarCaso moves DERIVADO to EN_REVISION and records the admission
// operator taking the case
func (s *Service) TomarCaso(ctx context.Context, casoID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if err := s.puedeAdmitir(usuario); err != nil {
		return nil, err
	}
	return s.transicionar(ctx, casoID, EstadoEnRevision, usuario, "Caso tomado por operador", func(c *CasoNachec, now time.Time) error {
		operador := usuario.ID
		c.OperadorAdmisionID = &operador
		return nil
	})
}

// RechazarCaso rejects the case terminally with a reason
func (s *Service) RechazarCaso(ctx context.Context, casoID types.ID, usuario *auth.User, motivo string) (*CasoNachec, error) {
	if err := s.puedeAdmitir(usuario); err != nil {
		return nil, err
	}
	if strings.TrimSpace(motivo) == "" {
		return nil, errors.MissingReason("motivo is required to reject a caso")
	}
	return s.transicionar(ctx, casoID, EstadoRechazado, usuario, motivo, func(c *CasoNachec, now time.Time) error {
		c.MotivoRechazo = motivo
		c.FechaCierre = &now
		return nil
	})
}

// MarcarDocPendiente flags or clears pending documentation on an open
// case without moving it through the workflow
func (s *Service) MarcarDocPendiente(ctx context.Context, casoID types.ID, pendiente bool, usuario *auth.User) (*CasoNachec, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if !usuario.IsAdmin() && !usuario.HasRole(auth.RoleOperadorAdmision) && !usuario.HasRole(auth.RoleCoordinador) {
		return nil, errors.PermissionDenied("user cannot flag pending documentation")
	}

	var caso *CasoNachec
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		c, err := tx.GetCasoForUpdate(ctx, casoID)
		if err != nil {
			return err
		}
		if !c.EstaAbierto() {
			return errors.MissingPrecondition(fmt.Sprintf("caso is %s, documentation flags only apply to open casos", c.Estado))
		}
		if c.DocPendiente == pendiente {
			return errors.AlreadyProcessed(fmt.Sprintf("doc_pendiente is already %t", pendiente))
		}
		c.DocPendiente = pendiente
		c.UpdatedAt = s.now()
		if err := tx.UpdateCaso(ctx, c); err != nil {
			return err
		}
		caso = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("documentacion pendiente actualizada",
		"caso_id", caso.ID,
		"doc_pendiente", pendiente,
	)
	return caso, nil
}

// EnviarAAsignacion moves EN_REVISION to A_ASIGNAR once the case has
// enough identifying data to assign
func (s *Service) EnviarAAsignacion(ctx context.Context, casoID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if err := s.puedeAdmitir(usuario); err != nil {
		return nil, err
	}
	return s.transicionar(ctx, casoID, EstadoAAsignar, usuario, "Enviado a asignacion", func(c *CasoNachec, now time.Time) error {
		if c.CiudadanoTitularID.IsZero() {
			return errors.MissingPrecondition("caso has no ciudadano titular")
		}
		if c.Municipio == "" || c.Localidad == "" {
			return errors.MissingPrecondition("caso has no municipio or localidad")
		}
		return nil
	})
}

// AsignarTerritorial moves A_ASIGNAR to ASIGNADO, records who assigned
// and who works the territory, starts the field-survey SLA and opens
// the initial survey task
func (s *Service) AsignarTerritorial(ctx context.Context, casoID, territorialID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}
	if territorialID.IsZero() {
		return nil, errors.Validation("validation failed", map[string]string{"territorial_id": "territorial_id is required"})
	}

	var tarea *TareaNachec
	caso, err := s.transicionarConTx(ctx, casoID, EstadoAsignado, usuario, "Territorial asignado", func(tx Tx, c *CasoNachec, now time.Time) error {
		coordinador := usuario.ID
		sla := CalcularSLARelevamiento(now)
		c.CoordinadorID = &coordinador
		c.TerritorialID = &territorialID
		c.FechaAsignacion = &now
		c.SLARelevamiento = &sla

		tarea = &TareaNachec{
			ID:               types.NewID(),
			CasoID:           c.ID,
			Tipo:             TareaRelevamiento,
			Titulo:           "Relevamiento sociofamiliar inicial",
			Descripcion:      "Realizar relevamiento completo de la situación sociofamiliar",
			AsignadoA:        territorialID,
			CreadoPor:        coordinador,
			Estado:           TareaPendiente,
			Prioridad:        c.Prioridad,
			FechaVencimiento: sla,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return tx.CreateTarea(ctx, tarea)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("territorial asignado",
		"caso_id", caso.ID,
		"territorial_id", territorialID,
		"tarea_id", tarea.ID,
		"vencimiento", tarea.FechaVencimiento,
	)
	return caso, nil
}

// IniciarRelevamiento moves ASIGNADO to EN_RELEVAMIENTO. Only the
// assigned territorial can start the survey.
func (s *Service) IniciarRelevamiento(ctx context.Context, casoID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	return s.transicionar(ctx, casoID, EstadoEnRelevamiento, usuario, "Relevamiento iniciado", func(c *CasoNachec, now time.Time) error {
		if !usuario.IsAdmin() && (c.TerritorialID == nil || *c.TerritorialID != usuario.ID) {
			return errors.PermissionDenied("only the assigned territorial can start the relevamiento")
		}
		c.FechaRelevamiento = &now
		return nil
	})
}

// RegistrarRelevamientoRequest is the survey payload
type RegistrarRelevamientoRequest struct {
	CantidadConvivientes int
	HayEmbarazo          bool
	HayDiscapacidad      bool
	IngresoMensualRango  string
	SituacionLaboral     string
	TipoVivienda         string
	AccesoAlimentos      string
	HayViolencia         bool
	HaySituacionCalle    bool
	UrgenciaAlimentaria  bool
	Completado           bool
	Observaciones        string
}

// RegistrarRelevamiento stores or updates the case's field survey while
// the case is EN_RELEVAMIENTO
func (s *Service) RegistrarRelevamiento(ctx context.Context, casoID types.ID, req RegistrarRelevamientoRequest, usuario *auth.User) (*Relevamiento, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	c, err := s.repo.GetCaso(ctx, casoID)
	if err != nil {
		return nil, err
	}
	if c.Estado != EstadoEnRelevamiento {
		return nil, errors.MissingPrecondition(fmt.Sprintf("caso is %s, relevamiento can only be recorded while EN_RELEVAMIENTO", c.Estado))
	}
	if !usuario.IsAdmin() && (c.TerritorialID == nil || *c.TerritorialID != usuario.ID) {
		return nil, errors.PermissionDenied("only the assigned territorial can record the relevamiento")
	}

	now := s.now()
	rel, err := s.repo.GetRelevamientoPorCaso(ctx, casoID)
	if err != nil {
		return nil, err
	}
	creando := rel == nil
	if creando {
		rel = &Relevamiento{
			ID:            types.NewID(),
			CasoID:        casoID,
			TerritorialID: usuario.ID,
			CreatedAt:     now,
		}
	}

	rel.CantidadConvivientes = req.CantidadConvivientes
	rel.HayEmbarazo = req.HayEmbarazo
	rel.HayDiscapacidad = req.HayDiscapacidad
	rel.IngresoMensualRango = req.IngresoMensualRango
	rel.SituacionLaboral = req.SituacionLaboral
	rel.TipoVivienda = req.TipoVivienda
	rel.AccesoAlimentos = req.AccesoAlimentos
	rel.HayViolencia = req.HayViolencia
	rel.HaySituacionCalle = req.HaySituacionCalle
	rel.UrgenciaAlimentaria = req.UrgenciaAlimentaria
	rel.Observaciones = req.Observaciones
	rel.UpdatedAt = now
	if req.Completado && !rel.Completado {
		rel.Completado = true
		rel.FechaFinalizacion = &now
	}

	if creando {
		err = s.repo.CreateRelevamiento(ctx, rel)
	} else {
		err = s.repo.UpdateRelevamiento(ctx, rel)
	}
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// FinalizarRelevamiento moves EN_RELEVAMIENTO to EVALUADO once the
// survey exists and is completed
func (s *Service) FinalizarRelevamiento(ctx context.Context, casoID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	return s.transicionarConTx(ctx, casoID, EstadoEvaluado, usuario, "Relevamiento finalizado", func(tx Tx, c *CasoNachec, now time.Time) error {
		rel, err := tx.GetRelevamientoPorCaso(ctx, c.ID)
		if err != nil {
			return err
		}
		if rel == nil {
			return errors.MissingPrecondition("caso has no relevamiento")
		}
		if !rel.Completado {
			return errors.MissingPrecondition("relevamiento is not completed")
		}
		return nil
	})
}

// RegistrarEvaluacionRequest is the assessment payload
type RegistrarEvaluacionRequest struct {
	ScoreTotal      float64
	CategoriaFinal  CategoriaVulnerabilidad
	Dictamen        string
	Recomendaciones string
}

// RegistrarEvaluacion stores the vulnerability assessment for an
// EVALUADO case backed by its completed survey
func (s *Service) RegistrarEvaluacion(ctx context.Context, casoID types.ID, req RegistrarEvaluacionRequest, usuario *auth.User) (*Evaluacion, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}

	c, err := s.repo.GetCaso(ctx, casoID)
	if err != nil {
		return nil, err
	}
	if c.Estado != EstadoEvaluado {
		return nil, errors.MissingPrecondition(fmt.Sprintf("caso is %s, evaluacion can only be recorded while EVALUADO", c.Estado))
	}

	rel, err := s.repo.GetRelevamientoPorCaso(ctx, casoID)
	if err != nil {
		return nil, err
	}
	if rel == nil || !rel.Completado {
		return nil, errors.MissingPrecondition("caso has no completed relevamiento")
	}

	e := &Evaluacion{
		ID:              types.NewID(),
		CasoID:          casoID,
		RelevamientoID:  rel.ID,
		EvaluadorID:     usuario.ID,
		ScoreTotal:      req.ScoreTotal,
		CategoriaFinal:  req.CategoriaFinal,
		Dictamen:        req.Dictamen,
		Recomendaciones: req.Recomendaciones,
		CreatedAt:       s.now(),
	}
	if err := s.repo.CreateEvaluacion(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ConfirmarEvaluacion moves EVALUADO to PLAN_DEFINIDO once an
// assessment with a final category exists, stamping the evaluation date
func (s *Service) ConfirmarEvaluacion(ctx context.Context, casoID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}
	return s.transicionarConTx(ctx, casoID, EstadoPlanDefinido, usuario, "Evaluacion confirmada", func(tx Tx, c *CasoNachec, now time.Time) error {
		e, err := tx.GetEvaluacionPorCaso(ctx, c.ID)
		if err != nil {
			return err
		}
		if e == nil || e.CategoriaFinal == "" {
			return errors.MissingPrecondition("caso has no evaluacion with a categoria final")
		}
		c.FechaEvaluacion = &now
		return nil
	})
}

// DefinirPlanRequest is the intervention plan payload
type DefinirPlanRequest struct {
	ObjetivoGeneral string
	HorizonteDias   int
	Observaciones   string
}

// DefinirPlan creates the vigente intervention plan for a
// PLAN_DEFINIDO case
func (s *Service) DefinirPlan(ctx context.Context, casoID types.ID, req DefinirPlanRequest, usuario *auth.User) (*PlanIntervencion, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ObjetivoGeneral) == "" {
		return nil, errors.Validation("validation failed", map[string]string{"objetivo_general": "objetivo_general is required"})
	}

	c, err := s.repo.GetCaso(ctx, casoID)
	if err != nil {
		return nil, err
	}
	if c.Estado != EstadoPlanDefinido {
		return nil, errors.MissingPrecondition(fmt.Sprintf("caso is %s, plan can only be defined while PLAN_DEFINIDO", c.Estado))
	}

	now := s.now()
	p := &PlanIntervencion{
		ID:              types.NewID(),
		CasoID:          casoID,
		ReferenteID:     usuario.ID,
		ObjetivoGeneral: req.ObjetivoGeneral,
		FechaInicio:     now,
		HorizonteDias:   req.HorizonteDias,
		Vigente:         true,
		Observaciones:   req.Observaciones,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreatePlan(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ActivarPlan moves PLAN_DEFINIDO to EN_EJECUCION, activating the
// vigente plan and recording the program referent
func (s *Service) ActivarPlan(ctx context.Context, casoID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if !usuario.IsAdmin() && !usuario.HasRole(auth.RoleCoordinador) && !usuario.HasRole(auth.RoleReferentePrograma) {
		return nil, errors.PermissionDenied("user cannot activate an intervention plan")
	}
	return s.transicionarConTx(ctx, casoID, EstadoEnEjecucion, usuario, "Plan de intervencion activado", func(tx Tx, c *CasoNachec, now time.Time) error {
		p, err := tx.GetPlanVigente(ctx, c.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.MissingPrecondition("caso has no plan vigente")
		}

		referente := usuario.ID
		c.ReferenteProgramaID = &referente

		p.FechaActivacion = &now
		p.UpdatedAt = now
		return tx.UpdatePlan(ctx, p)
	})
}

// ProgramarPrestacionRequest is the benefit scheduling payload
type ProgramarPrestacionRequest struct {
	Tipo            TipoPrestacion
	Descripcion     string
	Frecuencia      FrecuenciaPrestacion
	FechaProgramada *time.Time
}

// ProgramarPrestacion schedules a benefit under the vigente plan of an
// EN_EJECUCION case
func (s *Service) ProgramarPrestacion(ctx context.Context, casoID types.ID, req ProgramarPrestacionRequest, usuario *auth.User) (*Prestacion, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(req.Descripcion) == "" {
		return nil, errors.Validation("validation failed", map[string]string{"descripcion": "descripcion is required"})
	}

	c, err := s.repo.GetCaso(ctx, casoID)
	if err != nil {
		return nil, err
	}
	if c.Estado != EstadoEnEjecucion && c.Estado != EstadoEnSeguimiento {
		return nil, errors.MissingPrecondition(fmt.Sprintf("caso is %s, prestaciones require an executing plan", c.Estado))
	}
	plan, err := s.repo.GetPlanVigente(ctx, casoID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, errors.MissingPrecondition("caso has no plan vigente")
	}

	frecuencia := req.Frecuencia
	if frecuencia == "" {
		frecuencia = FrecuenciaUnica
	}
	estado := PrestacionCreada
	if req.FechaProgramada != nil {
		estado = PrestacionProgramada
	}

	now := s.now()
	p := &Prestacion{
		ID:              types.NewID(),
		PlanID:          plan.ID,
		CasoID:          casoID,
		Tipo:            req.Tipo,
		Descripcion:     req.Descripcion,
		Estado:          estado,
		Frecuencia:      frecuencia,
		FechaProgramada: req.FechaProgramada,
		ResponsableID:   usuario.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreatePrestacion(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RegistrarEntrega marks a scheduled benefit delivered
func (s *Service) RegistrarEntrega(ctx context.Context, prestacionID types.ID, usuario *auth.User) (*Prestacion, error) {
	if usuario == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	p, err := s.repo.GetPrestacion(ctx, prestacionID)
	if err != nil {
		return nil, err
	}
	if p.Estado == PrestacionEntregada {
		return nil, errors.AlreadyProcessed("prestacion already delivered")
	}

	now := s.now()
	p.Estado = PrestacionEntregada
	p.FechaEntregada = &now
	p.UpdatedAt = now
	if err := s.repo.UpdatePrestacion(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, "nachec.prestacion.entregada", usuario, p)
	return p, nil
}

// PasarASeguimiento moves EN_EJECUCION to EN_SEGUIMIENTO
func (s *Service) PasarASeguimiento(ctx context.Context, casoID types.ID, usuario *auth.User) (*CasoNachec, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}
	return s.transicionar(ctx, casoID, EstadoEnSeguimiento, usuario, "Caso en seguimiento", nil)
}

// CerrarCaso closes a case in follow-up, terminally, with a reason
func (s *Service) CerrarCaso(ctx context.Context, casoID types.ID, usuario *auth.User, motivo string) (*CasoNachec, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}
	if strings.TrimSpace(motivo) == "" {
		return nil, errors.MissingReason("motivo is required to close a caso")
	}
	return s.transicionar(ctx, casoID, EstadoCerrado, usuario, motivo, func(c *CasoNachec, now time.Time) error {
		c.MotivoCierre = motivo
		c.FechaCierre = &now
		return nil
	})
}

// SuspenderCaso parks any operational case in SUSPENDIDO with a reason
func (s *Service) SuspenderCaso(ctx context.Context, casoID types.ID, usuario *auth.User, motivo string) (*CasoNachec, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}
	if strings.TrimSpace(motivo) == "" {
		return nil, errors.MissingReason("motivo is required to suspend a caso")
	}
	return s.transicionar(ctx, casoID, EstadoSuspendido, usuario, motivo, func(c *CasoNachec, now time.Time) error {
		c.MotivoSuspension = motivo
		return nil
	})
}

// ReactivarCaso resumes a SUSPENDIDO case into the caller-chosen
// operational state, clearing the suspension reason
func (s *Service) ReactivarCaso(ctx context.Context, casoID types.ID, destino EstadoNachec, usuario *auth.User, motivo string) (*CasoNachec, error) {
	if err := s.puedeCoordinar(usuario); err != nil {
		return nil, err
	}
	if strings.TrimSpace(motivo) == "" {
		return nil, errors.MissingReason("motivo is required to reactivate a caso")
	}
	return s.transicionar(ctx, casoID, destino, usuario, motivo, func(c *CasoNachec, now time.Time) error {
		c.MotivoSuspension = ""
		return nil
	})
}

// transicionar applies one table-validated transition with an optional
// mutation, recording it in the history
func (s *Service) transicionar(ctx context.Context, casoID types.ID, destino EstadoNachec, usuario *auth.User, observacion string, mutar func(c *CasoNachec, now time.Time) error) (*CasoNachec, error) {
	var wrapped func(tx Tx, c *CasoNachec, now time.Time) error
	if mutar != nil {
		wrapped = func(tx Tx, c *CasoNachec, now time.Time) error { return mutar(c, now) }
	}
	return s.transicionarConTx(ctx, casoID, destino, usuario, observacion, wrapped)
}

func (s *Service) transicionarConTx(ctx context.Context, casoID types.ID, destino EstadoNachec, usuario *auth.User, observacion string, mutar func(tx Tx, c *CasoNachec, now time.Time) error) (*CasoNachec, error) {
	var (
		caso     *CasoNachec
		anterior EstadoNachec
	)
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		c, err := tx.GetCasoForUpdate(ctx, casoID)
		if err != nil {
			return err
		}
		if err := ValidarTransicion(c.Estado, destino); err != nil {
			return err
		}

		anterior = c.Estado
		now := s.now()
		if mutar != nil {
			if err := mutar(tx, c, now); err != nil {
				return err
			}
		}
		c.Estado = destino
		c.UpdatedAt = now

		if err := tx.UpdateCaso(ctx, c); err != nil {
			return err
		}
		if err := tx.AppendHistorial(ctx, &HistorialEstado{
			ID:             types.NewID(),
			CasoID:         c.ID,
			EstadoAnterior: anterior,
			EstadoNuevo:    destino,
			UsuarioID:      usuario.ID,
			Observacion:    observacion,
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

	metrics.RecordNachecTransicion(string(anterior), string(destino))
	s.logger.Info("transicion de caso",
		"caso_id", caso.ID,
		"estado_anterior", anterior,
		"estado_nuevo", destino,
	)
	s.publish(ctx, "nachec.caso.transicion", usuario, caso)
	return caso, nil
}

func (s *Service) publish(ctx context.Context, eventType string, usuario *auth.User, data any) {
	event := events.NewEvent(eventType, "nachec", data)
	if usuario != nil {
		event.ActorID = usuario.ID
		event.ActorType = usuario.UserType
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}
