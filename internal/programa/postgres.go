package programa

import (
	"context"
	"strings"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides database operations for the program catalog
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new catalog repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const programaColumns = `
	id, codigo, nombre, tipo, descripcion, icono, color, orden, activo,
	requiere_evaluacion, requiere_plan, requiere_seguimientos,
	created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, p *Programa) error {
	query := `
		INSERT INTO programas.programas (
			id, codigo, nombre, tipo, descripcion, icono, color, orden, activo,
			requiere_evaluacion, requiere_plan, requiere_seguimientos,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Codigo, p.Nombre, p.Tipo, p.Descripcion, p.Icono, p.Color, p.Orden, p.Activo,
		p.RequiereEvaluacion, p.RequierePlan, p.RequiereSeguimientos,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("programa with this codigo, nombre or tipo already exists")
		}
		return errors.Wrap(err, "failed to create programa")
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id types.ID) (*Programa, error) {
	query := `SELECT ` + programaColumns + ` FROM programas.programas WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id), string(id))
}

func (r *PostgresRepository) GetByTipo(ctx context.Context, tipo string) (*Programa, error) {
	query := `SELECT ` + programaColumns + ` FROM programas.programas WHERE tipo = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, tipo), tipo)
}

func (r *PostgresRepository) List(ctx context.Context, soloActivos bool) ([]*Programa, error) {
	query := `SELECT ` + programaColumns + ` FROM programas.programas`
	if soloActivos {
		query += ` WHERE activo = TRUE`
	}
	query += ` ORDER BY orden, nombre`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list programas")
	}
	defer rows.Close()

	var programas []*Programa
	for rows.Next() {
		p, err := scanPrograma(rows)
		if err != nil {
			return nil, err
		}
		programas = append(programas, p)
	}
	return programas, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, p *Programa) error {
	query := `
		UPDATE programas.programas SET
			codigo = $2, nombre = $3, tipo = $4, descripcion = $5,
			icono = $6, color = $7, orden = $8, activo = $9,
			requiere_evaluacion = $10, requiere_plan = $11, requiere_seguimientos = $12,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.Codigo, p.Nombre, p.Tipo, p.Descripcion,
		p.Icono, p.Color, p.Orden, p.Activo,
		p.RequiereEvaluacion, p.RequierePlan, p.RequiereSeguimientos,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("programa with this codigo, nombre or tipo already exists")
		}
		return errors.Wrap(err, "failed to update programa")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("programa", string(p.ID))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanOne(row pgx.Row, key string) (*Programa, error) {
	p, err := scanPrograma(row)
	if err != nil {
		if err == pgx.ErrNoRows || strings.Contains(err.Error(), "no rows") {
			return nil, errors.NotFound("programa", key)
		}
		return nil, errors.Wrap(err, "failed to get programa")
	}
	return p, nil
}

func scanPrograma(row rowScanner) (*Programa, error) {
	var p Programa
	err := row.Scan(
		&p.ID, &p.Codigo, &p.Nombre, &p.Tipo, &p.Descripcion,
		&p.Icono, &p.Color, &p.Orden, &p.Activo,
		&p.RequiereEvaluacion, &p.RequierePlan, &p.RequiereSeguimientos,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ Repository = (*PostgresRepository)(nil)
