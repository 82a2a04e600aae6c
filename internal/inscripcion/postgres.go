package inscripcion

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

// PostgresRepository provides database operations for enrollments and
// program referrals
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new enrollment repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const inscripcionColumns = `
	id, ciudadano_id, programa_id, codigo, estado, via_ingreso,
	fecha_inscripcion, fecha_inicio, fecha_cierre,
	responsable_id, legajo_externo_id, notas, motivo_cierre,
	created_at, updated_at`

const derivacionColumns = `
	id, ciudadano_id, programa_origen_id, inscripcion_origen_id, programa_destino_id,
	motivo, urgencia, estado, derivado_por,
	respuesta, fecha_respuesta, respondido_por, inscripcion_creada_id,
	created_at, updated_at`

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

func (r *PostgresRepository) CreateInscripcion(ctx context.Context, i *InscripcionPrograma) error {
	return createInscripcion(ctx, r.pool, i)
}

func (r *PostgresRepository) GetInscripcion(ctx context.Context, id types.ID) (*InscripcionPrograma, error) {
	query := `SELECT ` + inscripcionColumns + ` FROM programas.inscripciones WHERE id = $1`
	i, err := scanInscripcion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("inscripcion", string(id))
		}
		return nil, errors.Wrap(err, "failed to get inscripcion")
	}
	return i, nil
}

func (r *PostgresRepository) GetInscripcionPorPar(ctx context.Context, ciudadanoID, programaID types.ID) (*InscripcionPrograma, error) {
	query := `SELECT ` + inscripcionColumns + ` FROM programas.inscripciones
		WHERE ciudadano_id = $1 AND programa_id = $2`
	i, err := scanInscripcion(r.pool.QueryRow(ctx, query, ciudadanoID, programaID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get inscripcion for pair")
	}
	return i, nil
}

func (r *PostgresRepository) ListInscripciones(ctx context.Context, filter InscripcionFilter) ([]*InscripcionPrograma, error) {
	query := `SELECT ` + inscripcionColumns + ` FROM programas.inscripciones WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(column string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", column, argn)
		args = append(args, value)
	}

	if filter.CiudadanoID != nil {
		addArg("ciudadano_id", *filter.CiudadanoID)
	}
	if filter.ProgramaID != nil {
		addArg("programa_id", *filter.ProgramaID)
	}
	if filter.Estado != nil {
		addArg("estado", *filter.Estado)
	}
	query += ` ORDER BY fecha_inscripcion DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inscripciones")
	}
	defer rows.Close()

	var out []*InscripcionPrograma
	for rows.Next() {
		i, err := scanInscripcion(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan inscripcion")
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateDerivacion(ctx context.Context, d *DerivacionPrograma) error {
	query := `
		INSERT INTO programas.derivaciones (` + derivacionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.CiudadanoID, d.ProgramaOrigenID, d.InscripcionOrigenID, d.ProgramaDestinoID,
		d.Motivo, d.Urgencia, d.Estado, d.DerivadoPor,
		d.Respuesta, d.FechaRespuesta, d.RespondidoPor, d.InscripcionCreadaID,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create derivacion")
	}
	return nil
}

func (r *PostgresRepository) GetDerivacion(ctx context.Context, id types.ID) (*DerivacionPrograma, error) {
	query := `SELECT ` + derivacionColumns + ` FROM programas.derivaciones WHERE id = $1`
	d, err := scanDerivacion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("derivacion", string(id))
		}
		return nil, errors.Wrap(err, "failed to get derivacion")
	}
	return d, nil
}

func (r *PostgresRepository) ListDerivaciones(ctx context.Context, filter DerivacionFilter) ([]*DerivacionPrograma, error) {
	query := `SELECT ` + derivacionColumns + ` FROM programas.derivaciones WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(column string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", column, argn)
		args = append(args, value)
	}

	if filter.CiudadanoID != nil {
		addArg("ciudadano_id", *filter.CiudadanoID)
	}
	if filter.ProgramaDestinoID != nil {
		addArg("programa_destino_id", *filter.ProgramaDestinoID)
	}
	if filter.Estado != nil {
		addArg("estado", *filter.Estado)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list derivaciones")
	}
	defer rows.Close()

	var out []*DerivacionPrograma
	for rows.Next() {
		d, err := scanDerivacion(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan derivacion")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- transaction-scoped operations ---

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetDerivacionForUpdate(ctx context.Context, id types.ID) (*DerivacionPrograma, error) {
	query := `SELECT ` + derivacionColumns + ` FROM programas.derivaciones WHERE id = $1 FOR UPDATE`
	d, err := scanDerivacion(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("derivacion", string(id))
		}
		return nil, errors.Wrap(err, "failed to lock derivacion")
	}
	return d, nil
}

func (t *postgresTx) UpdateDerivacion(ctx context.Context, d *DerivacionPrograma) error {
	query := `
		UPDATE programas.derivaciones SET
			estado = $2, respuesta = $3, fecha_respuesta = $4,
			respondido_por = $5, inscripcion_creada_id = $6, updated_at = $7
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query,
		d.ID, d.Estado, d.Respuesta, d.FechaRespuesta,
		d.RespondidoPor, d.InscripcionCreadaID, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update derivacion")
	}
	return nil
}

func (t *postgresTx) GetInscripcionPorPar(ctx context.Context, ciudadanoID, programaID types.ID) (*InscripcionPrograma, error) {
	query := `SELECT ` + inscripcionColumns + ` FROM programas.inscripciones
		WHERE ciudadano_id = $1 AND programa_id = $2
		FOR UPDATE`
	i, err := scanInscripcion(t.tx.QueryRow(ctx, query, ciudadanoID, programaID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to lock inscripcion for pair")
	}
	return i, nil
}

func (t *postgresTx) CreateInscripcion(ctx context.Context, i *InscripcionPrograma) error {
	return createInscripcion(ctx, t.tx, i)
}

func (t *postgresTx) GetInscripcionForUpdate(ctx context.Context, id types.ID) (*InscripcionPrograma, error) {
	query := `SELECT ` + inscripcionColumns + ` FROM programas.inscripciones WHERE id = $1 FOR UPDATE`
	i, err := scanInscripcion(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("inscripcion", string(id))
		}
		return nil, errors.Wrap(err, "failed to lock inscripcion")
	}
	return i, nil
}

func (t *postgresTx) UpdateInscripcion(ctx context.Context, i *InscripcionPrograma) error {
	query := `
		UPDATE programas.inscripciones SET
			estado = $2, fecha_inicio = $3, fecha_cierre = $4,
			responsable_id = $5, legajo_externo_id = $6,
			notas = $7, motivo_cierre = $8, updated_at = $9
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query,
		i.ID, i.Estado, i.FechaInicio, i.FechaCierre,
		i.ResponsableID, i.LegajoExternoID,
		i.Notas, i.MotivoCierre, i.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update inscripcion")
	}
	return nil
}

// --- shared helpers ---

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func createInscripcion(ctx context.Context, q execer, i *InscripcionPrograma) error {
	query := `
		INSERT INTO programas.inscripciones (` + inscripcionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := q.Exec(ctx, query,
		i.ID, i.CiudadanoID, i.ProgramaID, i.Codigo, i.Estado, i.ViaIngreso,
		i.FechaInscripcion, i.FechaInicio, i.FechaCierre,
		i.ResponsableID, i.LegajoExternoID, i.Notas, i.MotivoCierre,
		i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("ciudadano already enrolled in this programa")
		}
		return errors.Wrap(err, "failed to create inscripcion")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInscripcion(row rowScanner) (*InscripcionPrograma, error) {
	var i InscripcionPrograma
	err := row.Scan(
		&i.ID, &i.CiudadanoID, &i.ProgramaID, &i.Codigo, &i.Estado, &i.ViaIngreso,
		&i.FechaInscripcion, &i.FechaInicio, &i.FechaCierre,
		&i.ResponsableID, &i.LegajoExternoID, &i.Notas, &i.MotivoCierre,
		&i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func scanDerivacion(row rowScanner) (*DerivacionPrograma, error) {
	var d DerivacionPrograma
	err := row.Scan(
		&d.ID, &d.CiudadanoID, &d.ProgramaOrigenID, &d.InscripcionOrigenID, &d.ProgramaDestinoID,
		&d.Motivo, &d.Urgencia, &d.Estado, &d.DerivadoPor,
		&d.Respuesta, &d.FechaRespuesta, &d.RespondidoPor, &d.InscripcionCreadaID,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ Repository = (*PostgresRepository)(nil)
var _ Tx = (*postgresTx)(nil)
