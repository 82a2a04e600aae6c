package actividades

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides database operations for attendance
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new attendance repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const inscriptoColumns = `
	id, actividad_id, ciudadano_id, estado,
	fecha_inscripcion, fecha_finalizacion, observaciones, created_at, updated_at`

const asistenciaColumns = `
	id, inscripto_id, fecha, estado, observaciones, registrado_por, created_at`

const alertaColumns = `
	id, inscripto_id, tipo, dias_ausente, fecha_inicio_ausencia, activa, vista_por, created_at`

func (r *PostgresRepository) CreateInscripto(ctx context.Context, i *InscriptoActividad) error {
	query := `
		INSERT INTO actividades.inscriptos (` + inscriptoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		i.ID, i.ActividadID, i.CiudadanoID, i.Estado,
		i.FechaInscripcion, i.FechaFinalizacion, i.Observaciones, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("ciudadano already inscripto in this actividad")
		}
		return errors.Wrap(err, "failed to create inscripto")
	}
	return nil
}

func (r *PostgresRepository) GetInscripto(ctx context.Context, id types.ID) (*InscriptoActividad, error) {
	query := `SELECT ` + inscriptoColumns + ` FROM actividades.inscriptos WHERE id = $1`
	i, err := scanInscripto(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("inscripto", string(id))
		}
		return nil, errors.Wrap(err, "failed to get inscripto")
	}
	return i, nil
}

func (r *PostgresRepository) UpdateInscripto(ctx context.Context, i *InscriptoActividad) error {
	query := `
		UPDATE actividades.inscriptos SET
			estado = $2, fecha_finalizacion = $3, observaciones = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		i.ID, i.Estado, i.FechaFinalizacion, i.Observaciones, i.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update inscripto")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("inscripto", string(i.ID))
	}
	return nil
}

func (r *PostgresRepository) ListInscriptos(ctx context.Context, filter InscriptoFilter) ([]*InscriptoActividad, error) {
	query := `SELECT ` + inscriptoColumns + ` FROM actividades.inscriptos WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(clause string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", clause, argn)
		args = append(args, value)
	}

	if filter.ActividadID != nil {
		addArg("actividad_id", *filter.ActividadID)
	}
	if filter.CiudadanoID != nil {
		addArg("ciudadano_id", *filter.CiudadanoID)
	}
	if filter.Estado != nil {
		addArg("estado", *filter.Estado)
	}
	query += ` ORDER BY fecha_inscripcion`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inscriptos")
	}
	defer rows.Close()

	var out []*InscriptoActividad
	for rows.Next() {
		i, err := scanInscripto(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan inscripto")
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendHistorialInscripto(ctx context.Context, h *HistorialInscripto) error {
	query := `
		INSERT INTO actividades.historial_inscriptos (
			id, inscripto_id, accion, estado_anterior, usuario_id, descripcion, registrado_en
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		h.ID, h.InscriptoID, h.Accion, h.EstadoAnterior, h.UsuarioID, h.Descripcion, h.RegistradoEn,
	)
	if err != nil {
		return errors.Wrap(err, "failed to append historial")
	}
	return nil
}

func (r *PostgresRepository) GetHistorialInscripto(ctx context.Context, inscriptoID types.ID) ([]*HistorialInscripto, error) {
	query := `
		SELECT id, inscripto_id, accion, estado_anterior, usuario_id, descripcion, registrado_en
		FROM actividades.historial_inscriptos
		WHERE inscripto_id = $1
		ORDER BY registrado_en`

	rows, err := r.pool.Query(ctx, query, inscriptoID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list historial")
	}
	defer rows.Close()

	var out []*HistorialInscripto
	for rows.Next() {
		var h HistorialInscripto
		if err := rows.Scan(&h.ID, &h.InscriptoID, &h.Accion, &h.EstadoAnterior, &h.UsuarioID, &h.Descripcion, &h.RegistradoEn); err != nil {
			return nil, errors.Wrap(err, "failed to scan historial")
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateAsistencia(ctx context.Context, a *RegistroAsistencia) error {
	query := `
		INSERT INTO actividades.asistencias (` + asistenciaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.InscriptoID, a.Fecha, a.Estado, a.Observaciones, a.RegistradoPor, a.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("asistencia already recorded for this day")
		}
		return errors.Wrap(err, "failed to create asistencia")
	}
	return nil
}

func (r *PostgresRepository) GetAsistenciaPorDia(ctx context.Context, inscriptoID types.ID, fecha time.Time) (*RegistroAsistencia, error) {
	query := `SELECT ` + asistenciaColumns + ` FROM actividades.asistencias WHERE inscripto_id = $1 AND fecha = $2`
	a, err := scanAsistencia(r.pool.QueryRow(ctx, query, inscriptoID, fecha))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get asistencia")
	}
	return a, nil
}

func (r *PostgresRepository) ListAsistenciasRecientes(ctx context.Context, inscriptoID types.ID, limite int) ([]*RegistroAsistencia, error) {
	query := `SELECT ` + asistenciaColumns + `
		FROM actividades.asistencias
		WHERE inscripto_id = $1
		ORDER BY fecha DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, inscriptoID, limite)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list asistencias")
	}
	defer rows.Close()

	var out []*RegistroAsistencia
	for rows.Next() {
		a, err := scanAsistencia(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan asistencia")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateAlerta(ctx context.Context, a *AlertaAusentismo) error {
	query := `
		INSERT INTO actividades.alertas_ausentismo (` + alertaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.InscriptoID, a.Tipo, a.DiasAusente, a.FechaInicioAusencia, a.Activa, a.VistaPor, a.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create alerta")
	}
	return nil
}

func (r *PostgresRepository) UpdateAlerta(ctx context.Context, a *AlertaAusentismo) error {
	query := `UPDATE actividades.alertas_ausentismo SET activa = $2, vista_por = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, a.ID, a.Activa, a.VistaPor)
	if err != nil {
		return errors.Wrap(err, "failed to update alerta")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("alerta", string(a.ID))
	}
	return nil
}

func (r *PostgresRepository) GetAlerta(ctx context.Context, id types.ID) (*AlertaAusentismo, error) {
	query := `SELECT ` + alertaColumns + ` FROM actividades.alertas_ausentismo WHERE id = $1`
	a, err := scanAlerta(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("alerta", string(id))
		}
		return nil, errors.Wrap(err, "failed to get alerta")
	}
	return a, nil
}

func (r *PostgresRepository) ListAlertas(ctx context.Context, filter AlertaFilter) ([]*AlertaAusentismo, error) {
	query := `SELECT ` + alertaColumns + ` FROM actividades.alertas_ausentismo WHERE 1=1`
	var args []any
	argn := 0

	addArg := func(clause string, value any) {
		argn++
		query += fmt.Sprintf(" AND %s = $%d", clause, argn)
		args = append(args, value)
	}

	if filter.InscriptoID != nil {
		addArg("inscripto_id", *filter.InscriptoID)
	}
	if filter.Tipo != nil {
		addArg("tipo", *filter.Tipo)
	}
	if filter.SoloActivas {
		query += ` AND activa`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list alertas")
	}
	defer rows.Close()

	var out []*AlertaAusentismo
	for rows.Next() {
		a, err := scanAlerta(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan alerta")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ExisteAlertaActiva(ctx context.Context, inscriptoID types.ID, tipo TipoAlerta) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM actividades.alertas_ausentismo
			WHERE inscripto_id = $1 AND tipo = $2 AND activa
		)`

	var existe bool
	if err := r.pool.QueryRow(ctx, query, inscriptoID, tipo).Scan(&existe); err != nil {
		return false, errors.Wrap(err, "failed to check active alerta")
	}
	return existe, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInscripto(row rowScanner) (*InscriptoActividad, error) {
	var i InscriptoActividad
	err := row.Scan(
		&i.ID, &i.ActividadID, &i.CiudadanoID, &i.Estado,
		&i.FechaInscripcion, &i.FechaFinalizacion, &i.Observaciones, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func scanAsistencia(row rowScanner) (*RegistroAsistencia, error) {
	var a RegistroAsistencia
	err := row.Scan(
		&a.ID, &a.InscriptoID, &a.Fecha, &a.Estado, &a.Observaciones, &a.RegistradoPor, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAlerta(row rowScanner) (*AlertaAusentismo, error) {
	var a AlertaAusentismo
	err := row.Scan(
		&a.ID, &a.InscriptoID, &a.Tipo, &a.DiasAusente, &a.FechaInicioAusencia, &a.Activa, &a.VistaPor, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

var _ Repository = (*PostgresRepository)(nil)
