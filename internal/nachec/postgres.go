package nachec

import (
	"context"
	"fmt"
	"strings"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides database operations for the workflow
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new workflow repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	pgxTx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	ptx := &postgresTx{tx: pgxTx}
	if err := fn(ptx); err != nil {
		_ = pgxTx.Rollback(ctx)
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

const casoColumns = `
	id, ciudadano_titular_id, estado, prioridad,
	municipio, localidad, direccion, referencias_domicilio,
	operador_admision_id, coordinador_id, territorial_id, referente_programa_id,
	fecha_derivacion, fecha_asignacion, fecha_relevamiento, fecha_evaluacion, fecha_cierre,
	motivo_derivacion, motivo_rechazo, motivo_suspension, motivo_cierre,
	sla_revision, sla_relevamiento, tiene_duplicado, doc_pendiente, observaciones,
	created_at, updated_at`

const relevamientoColumns = `
	id, caso_id, territorial_id, cantidad_convivientes,
	hay_embarazo, hay_discapacidad, ingreso_mensual_rango, situacion_laboral,
	tipo_vivienda, acceso_alimentos, hay_violencia, hay_situacion_calle,
	urgencia_alimentaria, completado, fecha_finalizacion, observaciones,
	created_at, updated_at`

const prestacionColumns = `
	id, plan_id, caso_id, tipo, descripcion, estado, frecuencia,
	fecha_programada, fecha_entregada, responsable_id, created_at, updated_at`

func (r *PostgresRepository) CreateCaso(ctx context.Context, c *CasoNachec) error {
	query := `
		INSERT INTO nachec.casos (` + casoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.CiudadanoTitularID, c.Estado, c.Prioridad,
		c.Municipio, c.Localidad, c.Direccion, c.ReferenciasDomicilio,
		c.OperadorAdmisionID, c.CoordinadorID, c.TerritorialID, c.ReferenteProgramaID,
		c.FechaDerivacion, c.FechaAsignacion, c.FechaRelevamiento, c.FechaEvaluacion, c.FechaCierre,
		c.MotivoDerivacion, c.MotivoRechazo, c.MotivoSuspension, c.MotivoCierre,
		c.SLARevision, c.SLARelevamiento, c.TieneDuplicado, c.DocPendiente, c.Observaciones,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create caso nachec")
	}
	return nil
}

func (r *PostgresRepository) GetCaso(ctx context.Context, id types.ID) (*CasoNachec, error) {
	query := `SELECT ` + casoColumns + ` FROM nachec.casos WHERE id = $1`
	c, err := scanCaso(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("caso nachec", string(id))
		}
		return nil, errors.Wrap(err, "failed to get caso nachec")
	}
	return c, nil
}

func (r *PostgresRepository) ListCasos(ctx context.Context, filter CasoFilter) ([]*CasoNachec, error) {
	query := `SELECT ` + casoColumns + ` FROM nachec.casos WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(clause string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", clause, argn)
		args = append(args, value)
	}

	if filter.CiudadanoTitularID != nil {
		addArg("ciudadano_titular_id", *filter.CiudadanoTitularID)
	}
	if filter.Estado != nil {
		addArg("estado", *filter.Estado)
	}
	if filter.Prioridad != nil {
		addArg("prioridad", *filter.Prioridad)
	}
	if filter.TerritorialID != nil {
		addArg("territorial_id", *filter.TerritorialID)
	}
	if filter.Municipio != nil {
		addArg("municipio", *filter.Municipio)
	}
	if filter.SoloVencidos {
		argn++
		query += fmt.Sprintf(" AND (sla_revision < $%d OR sla_relevamiento < $%d)", argn, argn)
		args = append(args, filter.Hoy)
	}
	query += ` ORDER BY fecha_derivacion DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list casos nachec")
	}
	defer rows.Close()

	var out []*CasoNachec
	for rows.Next() {
		c, err := scanCaso(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan caso nachec")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetHistorial(ctx context.Context, casoID types.ID) ([]*HistorialEstado, error) {
	query := `
		SELECT id, caso_id, estado_anterior, estado_nuevo, usuario_id, observacion, registrado_en
		FROM nachec.historial_estados
		WHERE caso_id = $1
		ORDER BY registrado_en`

	rows, err := r.pool.Query(ctx, query, casoID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list historial")
	}
	defer rows.Close()

	var out []*HistorialEstado
	for rows.Next() {
		var h HistorialEstado
		if err := rows.Scan(&h.ID, &h.CasoID, &h.EstadoAnterior, &h.EstadoNuevo, &h.UsuarioID, &h.Observacion, &h.RegistradoEn); err != nil {
			return nil, errors.Wrap(err, "failed to scan historial")
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ExisteOtroCasoAbierto(ctx context.Context, ciudadanoID, excluirCasoID types.ID) (bool, error) {
	return existeOtroCasoAbierto(ctx, r.pool, ciudadanoID, excluirCasoID)
}

func (r *PostgresRepository) CreateRelevamiento(ctx context.Context, rel *Relevamiento) error {
	query := `
		INSERT INTO nachec.relevamientos (` + relevamientoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.pool.Exec(ctx, query,
		rel.ID, rel.CasoID, rel.TerritorialID, rel.CantidadConvivientes,
		rel.HayEmbarazo, rel.HayDiscapacidad, rel.IngresoMensualRango, rel.SituacionLaboral,
		rel.TipoVivienda, rel.AccesoAlimentos, rel.HayViolencia, rel.HaySituacionCalle,
		rel.UrgenciaAlimentaria, rel.Completado, rel.FechaFinalizacion, rel.Observaciones,
		rel.CreatedAt, rel.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("caso already has a relevamiento")
		}
		return errors.Wrap(err, "failed to create relevamiento")
	}
	return nil
}

func (r *PostgresRepository) UpdateRelevamiento(ctx context.Context, rel *Relevamiento) error {
	query := `
		UPDATE nachec.relevamientos SET
			cantidad_convivientes = $2, hay_embarazo = $3, hay_discapacidad = $4,
			ingreso_mensual_rango = $5, situacion_laboral = $6, tipo_vivienda = $7,
			acceso_alimentos = $8, hay_violencia = $9, hay_situacion_calle = $10,
			urgencia_alimentaria = $11, completado = $12, fecha_finalizacion = $13,
			observaciones = $14, updated_at = $15
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		rel.ID, rel.CantidadConvivientes, rel.HayEmbarazo, rel.HayDiscapacidad,
		rel.IngresoMensualRango, rel.SituacionLaboral, rel.TipoVivienda,
		rel.AccesoAlimentos, rel.HayViolencia, rel.HaySituacionCalle,
		rel.UrgenciaAlimentaria, rel.Completado, rel.FechaFinalizacion,
		rel.Observaciones, rel.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update relevamiento")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("relevamiento", string(rel.ID))
	}
	return nil
}

func (r *PostgresRepository) GetRelevamientoPorCaso(ctx context.Context, casoID types.ID) (*Relevamiento, error) {
	return getRelevamientoPorCaso(ctx, r.pool, casoID)
}

func (r *PostgresRepository) CreateEvaluacion(ctx context.Context, e *Evaluacion) error {
	query := `
		INSERT INTO nachec.evaluaciones (
			id, caso_id, relevamiento_id, evaluador_id,
			score_total, categoria_final, dictamen, recomendaciones, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.CasoID, e.RelevamientoID, e.EvaluadorID,
		e.ScoreTotal, e.CategoriaFinal, e.Dictamen, e.Recomendaciones, e.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("caso already has an evaluacion")
		}
		return errors.Wrap(err, "failed to create evaluacion")
	}
	return nil
}

func (r *PostgresRepository) GetEvaluacionPorCaso(ctx context.Context, casoID types.ID) (*Evaluacion, error) {
	return getEvaluacionPorCaso(ctx, r.pool, casoID)
}

func (r *PostgresRepository) CreatePlan(ctx context.Context, p *PlanIntervencion) error {
	query := `
		INSERT INTO nachec.planes (
			id, caso_id, referente_id, objetivo_general, fecha_inicio,
			horizonte_dias, vigente, fecha_activacion, observaciones, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.CasoID, p.ReferenteID, p.ObjetivoGeneral, p.FechaInicio,
		p.HorizonteDias, p.Vigente, p.FechaActivacion, p.Observaciones, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create plan")
	}
	return nil
}

func (r *PostgresRepository) GetPlanVigente(ctx context.Context, casoID types.ID) (*PlanIntervencion, error) {
	return getPlanVigente(ctx, r.pool, casoID)
}

func (r *PostgresRepository) CreatePrestacion(ctx context.Context, p *Prestacion) error {
	query := `
		INSERT INTO nachec.prestaciones (` + prestacionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.PlanID, p.CasoID, p.Tipo, p.Descripcion, p.Estado, p.Frecuencia,
		p.FechaProgramada, p.FechaEntregada, p.ResponsableID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create prestacion")
	}
	return nil
}

func (r *PostgresRepository) GetPrestacion(ctx context.Context, id types.ID) (*Prestacion, error) {
	query := `SELECT ` + prestacionColumns + ` FROM nachec.prestaciones WHERE id = $1`
	p, err := scanPrestacion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("prestacion", string(id))
		}
		return nil, errors.Wrap(err, "failed to get prestacion")
	}
	return p, nil
}

func (r *PostgresRepository) UpdatePrestacion(ctx context.Context, p *Prestacion) error {
	query := `
		UPDATE nachec.prestaciones SET
			estado = $2, fecha_programada = $3, fecha_entregada = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.Estado, p.FechaProgramada, p.FechaEntregada, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update prestacion")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("prestacion", string(p.ID))
	}
	return nil
}

func (r *PostgresRepository) ListPrestaciones(ctx context.Context, casoID types.ID) ([]*Prestacion, error) {
	query := `SELECT ` + prestacionColumns + ` FROM nachec.prestaciones WHERE caso_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, casoID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list prestaciones")
	}
	defer rows.Close()

	var out []*Prestacion
	for rows.Next() {
		p, err := scanPrestacion(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan prestacion")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateTarea(ctx context.Context, t *TareaNachec) error {
	return createTarea(ctx, r.pool, t)
}

func (r *PostgresRepository) ListTareas(ctx context.Context, filter TareaFilter) ([]*TareaNachec, error) {
	query := `
		SELECT id, caso_id, prestacion_id, tipo, titulo, descripcion,
		       asignado_a, creado_por, estado, prioridad,
		       fecha_vencimiento, fecha_completada, resultado, created_at, updated_at
		FROM nachec.tareas WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(clause string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", clause, argn)
		args = append(args, value)
	}

	if filter.CasoID != nil {
		addArg("caso_id", *filter.CasoID)
	}
	if filter.AsignadoA != nil {
		addArg("asignado_a", *filter.AsignadoA)
	}
	if filter.Estado != nil {
		addArg("estado", *filter.Estado)
	}
	if filter.Tipo != nil {
		addArg("tipo", *filter.Tipo)
	}
	query += ` ORDER BY fecha_vencimiento`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tareas")
	}
	defer rows.Close()

	var out []*TareaNachec
	for rows.Next() {
		var t TareaNachec
		if err := rows.Scan(
			&t.ID, &t.CasoID, &t.PrestacionID, &t.Tipo, &t.Titulo, &t.Descripcion,
			&t.AsignadoA, &t.CreadoPor, &t.Estado, &t.Prioridad,
			&t.FechaVencimiento, &t.FechaCompletada, &t.Resultado, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan tarea")
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// --- transaction-scoped operations ---

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetCasoForUpdate(ctx context.Context, id types.ID) (*CasoNachec, error) {
	query := `SELECT ` + casoColumns + ` FROM nachec.casos WHERE id = $1 FOR UPDATE`
	c, err := scanCaso(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("caso nachec", string(id))
		}
		return nil, errors.Wrap(err, "failed to lock caso nachec")
	}
	return c, nil
}

func (t *postgresTx) UpdateCaso(ctx context.Context, c *CasoNachec) error {
	query := `
		UPDATE nachec.casos SET
			estado = $2, prioridad = $3,
			operador_admision_id = $4, coordinador_id = $5, territorial_id = $6,
			referente_programa_id = $7,
			fecha_asignacion = $8, fecha_relevamiento = $9, fecha_evaluacion = $10, fecha_cierre = $11,
			motivo_rechazo = $12, motivo_suspension = $13, motivo_cierre = $14,
			sla_revision = $15, sla_relevamiento = $16,
			tiene_duplicado = $17, doc_pendiente = $18, observaciones = $19,
			updated_at = $20
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query,
		c.ID, c.Estado, c.Prioridad,
		c.OperadorAdmisionID, c.CoordinadorID, c.TerritorialID,
		c.ReferenteProgramaID,
		c.FechaAsignacion, c.FechaRelevamiento, c.FechaEvaluacion, c.FechaCierre,
		c.MotivoRechazo, c.MotivoSuspension, c.MotivoCierre,
		c.SLARevision, c.SLARelevamiento,
		c.TieneDuplicado, c.DocPendiente, c.Observaciones,
		c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update caso nachec")
	}
	return nil
}

func (t *postgresTx) ExisteOtroCasoAbierto(ctx context.Context, ciudadanoID, excluirCasoID types.ID) (bool, error) {
	return existeOtroCasoAbierto(ctx, t.tx, ciudadanoID, excluirCasoID)
}

func (t *postgresTx) GetRelevamientoPorCaso(ctx context.Context, casoID types.ID) (*Relevamiento, error) {
	return getRelevamientoPorCaso(ctx, t.tx, casoID)
}

func (t *postgresTx) GetEvaluacionPorCaso(ctx context.Context, casoID types.ID) (*Evaluacion, error) {
	return getEvaluacionPorCaso(ctx, t.tx, casoID)
}

func (t *postgresTx) GetPlanVigente(ctx context.Context, casoID types.ID) (*PlanIntervencion, error) {
	return getPlanVigente(ctx, t.tx, casoID)
}

func (t *postgresTx) UpdatePlan(ctx context.Context, p *PlanIntervencion) error {
	query := `
		UPDATE nachec.planes SET
			vigente = $2, fecha_activacion = $3, observaciones = $4, updated_at = $5
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query,
		p.ID, p.Vigente, p.FechaActivacion, p.Observaciones, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update plan")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("plan", string(p.ID))
	}
	return nil
}

func (t *postgresTx) CreateTarea(ctx context.Context, tarea *TareaNachec) error {
	return createTarea(ctx, t.tx, tarea)
}

func (t *postgresTx) AppendHistorial(ctx context.Context, h *HistorialEstado) error {
	query := `
		INSERT INTO nachec.historial_estados (
			id, caso_id, estado_anterior, estado_nuevo, usuario_id, observacion, registrado_en
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.tx.Exec(ctx, query,
		h.ID, h.CasoID, h.EstadoAnterior, h.EstadoNuevo, h.UsuarioID, h.Observacion, h.RegistradoEn,
	)
	if err != nil {
		return errors.Wrap(err, "failed to append historial")
	}
	return nil
}

// --- shared helpers ---

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func existeOtroCasoAbierto(ctx context.Context, q pgxQuerier, ciudadanoID, excluirCasoID types.ID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM nachec.casos
			WHERE ciudadano_titular_id = $1 AND id <> $2
			  AND estado NOT IN ('CERRADO', 'RECHAZADO')
		)`

	var existe bool
	if err := q.QueryRow(ctx, query, ciudadanoID, excluirCasoID).Scan(&existe); err != nil {
		return false, errors.Wrap(err, "failed to check for open casos")
	}
	return existe, nil
}

func getRelevamientoPorCaso(ctx context.Context, q pgxQuerier, casoID types.ID) (*Relevamiento, error) {
	query := `SELECT ` + relevamientoColumns + ` FROM nachec.relevamientos WHERE caso_id = $1`
	rel, err := scanRelevamiento(q.QueryRow(ctx, query, casoID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get relevamiento")
	}
	return rel, nil
}

func getEvaluacionPorCaso(ctx context.Context, q pgxQuerier, casoID types.ID) (*Evaluacion, error) {
	query := `
		SELECT id, caso_id, relevamiento_id, evaluador_id,
		       score_total, categoria_final, dictamen, recomendaciones, created_at
		FROM nachec.evaluaciones WHERE caso_id = $1`

	var e Evaluacion
	err := q.QueryRow(ctx, query, casoID).Scan(
		&e.ID, &e.CasoID, &e.RelevamientoID, &e.EvaluadorID,
		&e.ScoreTotal, &e.CategoriaFinal, &e.Dictamen, &e.Recomendaciones, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get evaluacion")
	}
	return &e, nil
}

func getPlanVigente(ctx context.Context, q pgxQuerier, casoID types.ID) (*PlanIntervencion, error) {
	query := `
		SELECT id, caso_id, referente_id, objetivo_general, fecha_inicio,
		       horizonte_dias, vigente, fecha_activacion, observaciones, created_at, updated_at
		FROM nachec.planes
		WHERE caso_id = $1 AND vigente
		ORDER BY created_at DESC
		LIMIT 1`

	var p PlanIntervencion
	err := q.QueryRow(ctx, query, casoID).Scan(
		&p.ID, &p.CasoID, &p.ReferenteID, &p.ObjetivoGeneral, &p.FechaInicio,
		&p.HorizonteDias, &p.Vigente, &p.FechaActivacion, &p.Observaciones, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get plan vigente")
	}
	return &p, nil
}

type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func createTarea(ctx context.Context, q pgxExecutor, t *TareaNachec) error {
	query := `
		INSERT INTO nachec.tareas (
			id, caso_id, prestacion_id, tipo, titulo, descripcion,
			asignado_a, creado_por, estado, prioridad,
			fecha_vencimiento, fecha_completada, resultado, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := q.Exec(ctx, query,
		t.ID, t.CasoID, t.PrestacionID, t.Tipo, t.Titulo, t.Descripcion,
		t.AsignadoA, t.CreadoPor, t.Estado, t.Prioridad,
		t.FechaVencimiento, t.FechaCompletada, t.Resultado, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create tarea")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCaso(row rowScanner) (*CasoNachec, error) {
	var c CasoNachec
	err := row.Scan(
		&c.ID, &c.CiudadanoTitularID, &c.Estado, &c.Prioridad,
		&c.Municipio, &c.Localidad, &c.Direccion, &c.ReferenciasDomicilio,
		&c.OperadorAdmisionID, &c.CoordinadorID, &c.TerritorialID, &c.ReferenteProgramaID,
		&c.FechaDerivacion, &c.FechaAsignacion, &c.FechaRelevamiento, &c.FechaEvaluacion, &c.FechaCierre,
		&c.MotivoDerivacion, &c.MotivoRechazo, &c.MotivoSuspension, &c.MotivoCierre,
		&c.SLARevision, &c.SLARelevamiento, &c.TieneDuplicado, &c.DocPendiente, &c.Observaciones,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanRelevamiento(row rowScanner) (*Relevamiento, error) {
	var rel Relevamiento
	err := row.Scan(
		&rel.ID, &rel.CasoID, &rel.TerritorialID, &rel.CantidadConvivientes,
		&rel.HayEmbarazo, &rel.HayDiscapacidad, &rel.IngresoMensualRango, &rel.SituacionLaboral,
		&rel.TipoVivienda, &rel.AccesoAlimentos, &rel.HayViolencia, &rel.HaySituacionCalle,
		&rel.UrgenciaAlimentaria, &rel.Completado, &rel.FechaFinalizacion, &rel.Observaciones,
		&rel.CreatedAt, &rel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func scanPrestacion(row rowScanner) (*Prestacion, error) {
	var p Prestacion
	err := row.Scan(
		&p.ID, &p.PlanID, &p.CasoID, &p.Tipo, &p.Descripcion, &p.Estado, &p.Frecuencia,
		&p.FechaProgramada, &p.FechaEntregada, &p.ResponsableID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ Repository = (*PostgresRepository)(nil)
var _ Tx = (*postgresTx)(nil)
