package institucional

import (
	"context"
	"fmt"
	"strings"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides database operations for the institutional
// layer
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new institutional repository
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

const derivacionColumns = `
	id, ciudadano_id, institucion_id, programa_id, institucion_programa_id,
	estado, urgencia, motivo, observaciones, derivado_por,
	respuesta, fecha_respuesta, respondido_por, caso_creado_id,
	created_at, updated_at`

const casoColumns = `
	id, ciudadano_id, institucion_programa_id, codigo, version, estado,
	fecha_apertura, fecha_cierre, responsable_id, motivo_cierre, observaciones,
	created_at, updated_at`

const institucionProgramaColumns = `
	id, institucion_id, programa_id, estado_programa, activo,
	cupo_maximo, controlar_cupo, permite_sobrecupo,
	responsable_local_id, fecha_inicio, fecha_fin, created_at, updated_at`

func (r *PostgresRepository) CreateDerivacion(ctx context.Context, d *DerivacionInstitucional) error {
	query := `
		INSERT INTO institucional.derivaciones (` + derivacionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.CiudadanoID, d.InstitucionID, d.ProgramaID, d.InstitucionProgramaID,
		d.Estado, d.Urgencia, d.Motivo, d.Observaciones, d.DerivadoPor,
		d.Respuesta, d.FechaRespuesta, d.RespondidoPor, d.CasoCreadoID,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create derivacion")
	}
	return nil
}

func (r *PostgresRepository) GetDerivacion(ctx context.Context, id types.ID) (*DerivacionInstitucional, error) {
	query := `SELECT ` + derivacionColumns + ` FROM institucional.derivaciones WHERE id = $1`
	d, err := scanDerivacion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("derivacion", string(id))
		}
		return nil, errors.Wrap(err, "failed to get derivacion")
	}
	return d, nil
}

func (r *PostgresRepository) ListDerivaciones(ctx context.Context, filter DerivacionFilter) ([]*DerivacionInstitucional, error) {
	query := `SELECT ` + derivacionColumns + ` FROM institucional.derivaciones WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(clause string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", clause, argn)
		args = append(args, value)
	}

	if filter.CiudadanoID != nil {
		addArg("ciudadano_id", *filter.CiudadanoID)
	}
	if filter.InstitucionProgramaID != nil {
		addArg("institucion_programa_id", *filter.InstitucionProgramaID)
	}
	if filter.Estado != nil {
		addArg("estado", *filter.Estado)
	}
	if filter.Urgencia != nil {
		addArg("urgencia", *filter.Urgencia)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list derivaciones")
	}
	defer rows.Close()

	var out []*DerivacionInstitucional
	for rows.Next() {
		d, err := scanDerivacion(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan derivacion")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetCaso(ctx context.Context, id types.ID) (*CasoInstitucional, error) {
	query := `SELECT ` + casoColumns + ` FROM institucional.casos WHERE id = $1`
	c, err := scanCaso(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("caso", string(id))
		}
		return nil, errors.Wrap(err, "failed to get caso")
	}
	return c, nil
}

func (r *PostgresRepository) ListCasos(ctx context.Context, filter CasoFilter) ([]*CasoInstitucional, error) {
	query := `SELECT ` + casoColumns + ` FROM institucional.casos WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(clause string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", clause, argn)
		args = append(args, value)
	}

	if filter.CiudadanoID != nil {
		addArg("ciudadano_id", *filter.CiudadanoID)
	}
	if filter.InstitucionProgramaID != nil {
		addArg("institucion_programa_id", *filter.InstitucionProgramaID)
	}
	if filter.Estado != nil {
		addArg("estado", *filter.Estado)
	}
	query += ` ORDER BY fecha_apertura DESC, version DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list casos")
	}
	defer rows.Close()

	var out []*CasoInstitucional
	for rows.Next() {
		c, err := scanCaso(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan caso")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetHistorial(ctx context.Context, casoID types.ID) ([]*HistorialCaso, error) {
	query := `
		SELECT id, caso_id, estado_anterior, estado_nuevo, usuario_id, observacion, registrado_en
		FROM institucional.historial_casos
		WHERE caso_id = $1
		ORDER BY registrado_en DESC`

	rows, err := r.pool.Query(ctx, query, casoID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list historial")
	}
	defer rows.Close()

	var out []*HistorialCaso
	for rows.Next() {
		var h HistorialCaso
		if err := rows.Scan(&h.ID, &h.CasoID, &h.EstadoAnterior, &h.EstadoNuevo, &h.UsuarioID, &h.Observacion, &h.RegistradoEn); err != nil {
			return nil, errors.Wrap(err, "failed to scan historial")
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateInstitucionPrograma(ctx context.Context, ip *InstitucionPrograma) error {
	query := `
		INSERT INTO institucional.instituciones_programas (` + institucionProgramaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		ip.ID, ip.InstitucionID, ip.ProgramaID, ip.EstadoPrograma, ip.Activo,
		ip.CupoMaximo, ip.ControlarCupo, ip.PermiteSobrecupo,
		ip.ResponsableLocalID, ip.FechaInicio, ip.FechaFin, ip.CreatedAt, ip.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("institucion already linked to this programa")
		}
		return errors.Wrap(err, "failed to create institucion-programa")
	}
	return nil
}

func (r *PostgresRepository) GetInstitucionPrograma(ctx context.Context, id types.ID) (*InstitucionPrograma, error) {
	query := `SELECT ` + institucionProgramaColumns + ` FROM institucional.instituciones_programas WHERE id = $1`
	return getInstitucionPrograma(ctx, r.pool.QueryRow(ctx, query, id), id)
}

func (r *PostgresRepository) UpdateInstitucionPrograma(ctx context.Context, ip *InstitucionPrograma) error {
	query := `
		UPDATE institucional.instituciones_programas SET
			estado_programa = $2, activo = $3,
			cupo_maximo = $4, controlar_cupo = $5, permite_sobrecupo = $6,
			responsable_local_id = $7, fecha_inicio = $8, fecha_fin = $9,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		ip.ID, ip.EstadoPrograma, ip.Activo,
		ip.CupoMaximo, ip.ControlarCupo, ip.PermiteSobrecupo,
		ip.ResponsableLocalID, ip.FechaInicio, ip.FechaFin,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update institucion-programa")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("institucion-programa", string(ip.ID))
	}
	return nil
}

func (r *PostgresRepository) ListInstitucionProgramas(ctx context.Context, institucionID types.ID) ([]*InstitucionPrograma, error) {
	query := `SELECT ` + institucionProgramaColumns + `
		FROM institucional.instituciones_programas
		WHERE institucion_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, institucionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list institucion-programas")
	}
	defer rows.Close()

	var out []*InstitucionPrograma
	for rows.Next() {
		ip, err := scanInstitucionPrograma(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan institucion-programa")
		}
		out = append(out, ip)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountCasosAbiertos(ctx context.Context, institucionProgramaID types.ID) (int, error) {
	return countCasosAbiertos(ctx, r.pool, institucionProgramaID)
}

func (r *PostgresRepository) GetEstadoGlobal(ctx context.Context, institucionID types.ID) (EstadoGlobal, error) {
	return getEstadoGlobal(ctx, r.pool, institucionID)
}

func (r *PostgresRepository) SetEstadoGlobal(ctx context.Context, institucionID types.ID, estado EstadoGlobal) error {
	query := `
		INSERT INTO institucional.legajos_institucionales (institucion_id, estado_global, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (institucion_id) DO UPDATE SET estado_global = $2, updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, institucionID, estado)
	if err != nil {
		return errors.Wrap(err, "failed to set estado global")
	}
	return nil
}

// --- transaction-scoped operations ---

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetDerivacionForUpdate(ctx context.Context, id types.ID) (*DerivacionInstitucional, error) {
	query := `SELECT ` + derivacionColumns + ` FROM institucional.derivaciones WHERE id = $1 FOR UPDATE`
	d, err := scanDerivacion(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("derivacion", string(id))
		}
		return nil, errors.Wrap(err, "failed to lock derivacion")
	}
	return d, nil
}

func (t *postgresTx) UpdateDerivacion(ctx context.Context, d *DerivacionInstitucional) error {
	query := `
		UPDATE institucional.derivaciones SET
			estado = $2, observaciones = $3, respuesta = $4,
			fecha_respuesta = $5, respondido_por = $6, caso_creado_id = $7,
			updated_at = $8
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query,
		d.ID, d.Estado, d.Observaciones, d.Respuesta,
		d.FechaRespuesta, d.RespondidoPor, d.CasoCreadoID, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update derivacion")
	}
	return nil
}

func (t *postgresTx) GetInstitucionPrograma(ctx context.Context, id types.ID) (*InstitucionPrograma, error) {
	query := `SELECT ` + institucionProgramaColumns + ` FROM institucional.instituciones_programas WHERE id = $1`
	return getInstitucionPrograma(ctx, t.tx.QueryRow(ctx, query, id), id)
}

func (t *postgresTx) GetEstadoGlobal(ctx context.Context, institucionID types.ID) (EstadoGlobal, error) {
	return getEstadoGlobal(ctx, t.tx, institucionID)
}

func (t *postgresTx) CountCasosAbiertos(ctx context.Context, institucionProgramaID types.ID) (int, error) {
	return countCasosAbiertos(ctx, t.tx, institucionProgramaID)
}

func (t *postgresTx) GetCasoAbierto(ctx context.Context, ciudadanoID, institucionProgramaID types.ID) (*CasoInstitucional, error) {
	query := `SELECT ` + casoColumns + `
		FROM institucional.casos
		WHERE ciudadano_id = $1 AND institucion_programa_id = $2
		  AND estado IN ('ACTIVO', 'EN_SEGUIMIENTO')
		ORDER BY version DESC
		LIMIT 1`

	c, err := scanCaso(t.tx.QueryRow(ctx, query, ciudadanoID, institucionProgramaID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to lookup open caso")
	}
	return c, nil
}

func (t *postgresTx) MaxVersionCaso(ctx context.Context, ciudadanoID, institucionProgramaID types.ID) (int, error) {
	query := `
		SELECT COALESCE(MAX(version), 0)
		FROM institucional.casos
		WHERE ciudadano_id = $1 AND institucion_programa_id = $2`

	var max int
	if err := t.tx.QueryRow(ctx, query, ciudadanoID, institucionProgramaID).Scan(&max); err != nil {
		return 0, errors.Wrap(err, "failed to get max version")
	}
	return max, nil
}

func (t *postgresTx) NextCodigoSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('institucional.casos_codigo_seq')`).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "failed to get next codigo sequence")
	}
	return seq, nil
}

func (t *postgresTx) CreateCaso(ctx context.Context, c *CasoInstitucional) error {
	query := `
		INSERT INTO institucional.casos (` + casoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := t.tx.Exec(ctx, query,
		c.ID, c.CiudadanoID, c.InstitucionProgramaID, c.Codigo, c.Version, c.Estado,
		c.FechaApertura, c.FechaCierre, c.ResponsableID, c.MotivoCierre, c.Observaciones,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("caso with this version already exists for the pair")
		}
		return errors.Wrap(err, "failed to create caso")
	}
	return nil
}

func (t *postgresTx) GetCasoForUpdate(ctx context.Context, id types.ID) (*CasoInstitucional, error) {
	query := `SELECT ` + casoColumns + ` FROM institucional.casos WHERE id = $1 FOR UPDATE`
	c, err := scanCaso(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("caso", string(id))
		}
		return nil, errors.Wrap(err, "failed to lock caso")
	}
	return c, nil
}

func (t *postgresTx) UpdateCaso(ctx context.Context, c *CasoInstitucional) error {
	query := `
		UPDATE institucional.casos SET
			estado = $2, fecha_cierre = $3, responsable_id = $4,
			motivo_cierre = $5, observaciones = $6, updated_at = $7
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query,
		c.ID, c.Estado, c.FechaCierre, c.ResponsableID,
		c.MotivoCierre, c.Observaciones, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update caso")
	}
	return nil
}

func (t *postgresTx) AppendHistorial(ctx context.Context, h *HistorialCaso) error {
	query := `
		INSERT INTO institucional.historial_casos (
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

// --- shared scan helpers ---

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countCasosAbiertos(ctx context.Context, q pgxQuerier, institucionProgramaID types.ID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM institucional.casos
		WHERE institucion_programa_id = $1 AND estado IN ('ACTIVO', 'EN_SEGUIMIENTO')`

	var count int
	if err := q.QueryRow(ctx, query, institucionProgramaID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count open casos")
	}
	return count, nil
}

func getEstadoGlobal(ctx context.Context, q pgxQuerier, institucionID types.ID) (EstadoGlobal, error) {
	var estado EstadoGlobal
	err := q.QueryRow(ctx,
		`SELECT estado_global FROM institucional.legajos_institucionales WHERE institucion_id = $1`,
		institucionID,
	).Scan(&estado)
	if err != nil {
		if err == pgx.ErrNoRows {
			// No administrative record means the institution operates normally
			return GlobalActivo, nil
		}
		return "", errors.Wrap(err, "failed to get estado global")
	}
	return estado, nil
}

func getInstitucionPrograma(ctx context.Context, row pgx.Row, id types.ID) (*InstitucionPrograma, error) {
	ip, err := scanInstitucionPrograma(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("institucion-programa", string(id))
		}
		return nil, errors.Wrap(err, "failed to get institucion-programa")
	}
	return ip, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDerivacion(row rowScanner) (*DerivacionInstitucional, error) {
	var d DerivacionInstitucional
	err := row.Scan(
		&d.ID, &d.CiudadanoID, &d.InstitucionID, &d.ProgramaID, &d.InstitucionProgramaID,
		&d.Estado, &d.Urgencia, &d.Motivo, &d.Observaciones, &d.DerivadoPor,
		&d.Respuesta, &d.FechaRespuesta, &d.RespondidoPor, &d.CasoCreadoID,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanCaso(row rowScanner) (*CasoInstitucional, error) {
	var c CasoInstitucional
	err := row.Scan(
		&c.ID, &c.CiudadanoID, &c.InstitucionProgramaID, &c.Codigo, &c.Version, &c.Estado,
		&c.FechaApertura, &c.FechaCierre, &c.ResponsableID, &c.MotivoCierre, &c.Observaciones,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanInstitucionPrograma(row rowScanner) (*InstitucionPrograma, error) {
	var ip InstitucionPrograma
	err := row.Scan(
		&ip.ID, &ip.InstitucionID, &ip.ProgramaID, &ip.EstadoPrograma, &ip.Activo,
		&ip.CupoMaximo, &ip.ControlarCupo, &ip.PermiteSobrecupo,
		&ip.ResponsableLocalID, &ip.FechaInicio, &ip.FechaFin, &ip.CreatedAt, &ip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ip, nil
}

var _ Repository = (*PostgresRepository)(nil)
var _ Tx = (*postgresTx)(nil)
