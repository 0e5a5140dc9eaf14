package observation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/surveillance/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type observationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &observationRepoPG{pool: pool}
}

func (r *observationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const observationCols = `id, patient_age, disease_name, occasion, observed_on, hospital_name, created_at`

var copyCols = []string{"id", "patient_age", "disease_name", "occasion", "observed_on", "hospital_name"}

func (r *observationRepoPG) scanRow(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.PatientAge, &o.DiseaseName, &o.Occasion, &o.Date, &o.HospitalName, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Date = Day(o.Date)
	return &o, nil
}

func (r *observationRepoPG) Create(ctx context.Context, o *Observation) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO disease_observations (id, patient_age, disease_name, occasion, observed_on, hospital_name)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		o.ID, o.PatientAge, o.DiseaseName, o.Occasion, o.Date, o.HospitalName).Scan(&o.CreatedAt)
	return mapPGError(err)
}

func (r *observationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Observation, error) {
	o, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+observationCols+` FROM disease_observations WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return o, err
}

// buildWhere renders the filter as a parameterised WHERE clause.
func buildWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !f.Start.IsZero() {
		add("observed_on >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("observed_on <= $%d", f.End)
	}
	if f.Hospital != "" {
		add("hospital_name = $%d", f.Hospital)
	}
	if f.Occasion != "" {
		add("occasion = $%d", f.Occasion)
	}
	if f.Disease != "" {
		add("disease_name = $%d", f.Disease)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *observationRepoPG) Query(ctx context.Context, f Filter) ([]*Observation, error) {
	where, args := buildWhere(f)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+observationCols+` FROM disease_observations`+where+` ORDER BY observed_on, created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var items []*Observation
	for rows.Next() {
		o, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *observationRepoPG) BulkInsert(ctx context.Context, obs []*Observation) error {
	if len(obs) == 0 {
		return nil
	}
	_, err := r.conn(ctx).CopyFrom(ctx, pgx.Identifier{"disease_observations"}, copyCols,
		pgx.CopyFromSlice(len(obs), func(i int) ([]interface{}, error) {
			o := obs[i]
			if o.ID == uuid.Nil {
				o.ID = uuid.New()
			}
			return []interface{}{o.ID, o.PatientAge, o.DiseaseName, o.Occasion, o.Date, o.HospitalName}, nil
		}))
	return mapPGError(err)
}

func (r *observationRepoPG) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM disease_observations`)
	if err != nil {
		return 0, fmt.Errorf("delete observations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *observationRepoPG) Replace(ctx context.Context, obs []*Observation) (int64, error) {
	var deleted int64
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		n, err := r.DeleteAll(ctx)
		if err != nil {
			return err
		}
		deleted = n
		return r.BulkInsert(ctx, obs)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *observationRepoPG) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrStorageConflict, err)
	}
	return err
}
