package measure

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/measure-importer/internal/platform/db"
)

const pgUniqueViolation = "23505"

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type measureRepoPG struct{ pool *pgxpool.Pool }

func NewMeasureRepoPG(pool *pgxpool.Pool) MeasureRepository {
	return &measureRepoPG{pool: pool}
}

func (r *measureRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const measureCols = `id, name, description, definition, version_id, created_at, updated_at`

func (r *measureRepoPG) scanRow(row pgx.Row) (*Measure, error) {
	var m Measure
	var definition string
	err := row.Scan(&m.ID, &m.Name, &m.Description, &definition, &m.VersionID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if m.Definition, err = DecodeDefinition([]byte(definition)); err != nil {
		return nil, fmt.Errorf("measure: stored definition %s: %w", m.ID, err)
	}
	return &m, nil
}

func (r *measureRepoPG) Create(ctx context.Context, m *Measure) error {
	definition, err := encodeDefinition(m.Definition)
	if err != nil {
		return err
	}
	m.ID = uuid.New()
	m.VersionID = 1
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO measure_definition (id, name, description, definition, version_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Description, definition, m.VersionID,
	).Scan(&m.CreatedAt, &m.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateName, m.Name)
	}
	return err
}

func (r *measureRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Measure, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+measureCols+` FROM measure_definition WHERE id = $1`, id))
}

func (r *measureRepoPG) GetByName(ctx context.Context, name string) (*Measure, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+measureCols+` FROM measure_definition WHERE name = $1`, name))
}

func (r *measureRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM measure_definition WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *measureRepoPG) List(ctx context.Context, limit, offset int) ([]*Measure, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM measure_definition`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+measureCols+` FROM measure_definition ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Measure
	for rows.Next() {
		m, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
