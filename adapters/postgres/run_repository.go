package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"hydrocast/app"
	"hydrocast/domain/core"
	"hydrocast/internal/errors"
)

// RunRepository persists completed runs, their forecast tables and their
// metric tables in PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

// Connect opens the database and ensures the schema exists.
func Connect(ctx context.Context, url string) (*RunRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.StoreError("failed to connect to database", err)
	}
	repo := &RunRepository{db: db}
	if err := repo.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewRunRepository wraps an existing connection (tests, pooling).
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Close releases the underlying connection pool.
func (r *RunRepository) Close() error { return r.db.Close() }

func (r *RunRepository) ensureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		created_at  TIMESTAMPTZ NOT NULL,
		terms       JSONB NOT NULL,
		chains      INT NOT NULL,
		iterations  INT NOT NULL,
		converged   BOOLEAN NOT NULL,
		burn_in     INT NOT NULL,
		ratios      JSONB NOT NULL,
		failures    JSONB
	);
	CREATE TABLE IF NOT EXISTS forecast_points (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		t           INT NOT NULL,
		date        DATE,
		lower       DOUBLE PRECISION NOT NULL,
		median      DOUBLE PRECISION NOT NULL,
		upper       DOUBLE PRECISION NOT NULL,
		log_lower   DOUBLE PRECISION NOT NULL,
		log_median  DOUBLE PRECISION NOT NULL,
		log_upper   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, t)
	);
	CREATE TABLE IF NOT EXISTS run_metrics (
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name    TEXT NOT NULL,
		value   DOUBLE PRECISION,
		defined BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, name)
	);`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.StoreError("failed to ensure schema", err)
	}
	return nil
}

// SaveRun stores one run with its forecast and metric tables in a single
// transaction.
func (r *RunRepository) SaveRun(ctx context.Context, result *app.RunResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StoreError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	termsJSON, _ := json.Marshal(result.Terms)
	ratiosJSON, _ := json.Marshal(result.Verdict.Ratios)
	failuresJSON, _ := json.Marshal(result.Failures)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, terms, chains, iterations, converged, burn_in, ratios, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		result.RunID.String(), result.CreatedAt.Time(), termsJSON, result.Chains,
		result.Iterations, result.Verdict.Converged, result.Verdict.BurnIn, ratiosJSON, failuresJSON)
	if err != nil {
		return errors.StoreError("failed to insert run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_points (run_id, t, date, lower, median, upper, log_lower, log_median, log_upper)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return errors.StoreError("failed to prepare forecast insert", err)
	}
	defer stmt.Close()

	for i, band := range result.Forecast.Natural {
		logBand := result.Forecast.Log[i]
		var date interface{}
		if !band.Date.IsZero() {
			date = band.Date
		}
		if _, err := stmt.ExecContext(ctx, result.RunID.String(), band.T, date,
			band.Lower, band.Median, band.Upper,
			logBand.Lower, logBand.Median, logBand.Upper); err != nil {
			return errors.StoreError("failed to insert forecast point", err)
		}
	}

	if result.Metrics != nil {
		for _, row := range result.Metrics.Table() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_metrics (run_id, name, value, defined)
				VALUES ($1, $2, $3, $4)`,
				result.RunID.String(), row.Name, row.Value, row.Defined); err != nil {
				return errors.StoreError("failed to insert metric", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError("failed to commit run", err)
	}
	return nil
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID         string    `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	Chains     int       `db:"chains" json:"chains"`
	Iterations int       `db:"iterations" json:"iterations"`
	Converged  bool      `db:"converged" json:"converged"`
	BurnIn     int       `db:"burn_in" json:"burn_in"`
}

// ListRuns returns stored runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []RunSummary
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, created_at, chains, iterations, converged, burn_in
		FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.StoreError("failed to list runs", err)
	}
	return out, nil
}

// ForecastPoint is one stored row of the forecast table.
type ForecastPoint struct {
	T         int        `db:"t" json:"t"`
	Date      *time.Time `db:"date" json:"date,omitempty"`
	Lower     float64    `db:"lower" json:"lower"`
	Median    float64    `db:"median" json:"median"`
	Upper     float64    `db:"upper" json:"upper"`
	LogLower  float64    `db:"log_lower" json:"log_lower"`
	LogMedian float64    `db:"log_median" json:"log_median"`
	LogUpper  float64    `db:"log_upper" json:"log_upper"`
}

// GetForecast returns the stored forecast table for one run.
func (r *RunRepository) GetForecast(ctx context.Context, runID core.RunID) ([]ForecastPoint, error) {
	var out []ForecastPoint
	err := r.db.SelectContext(ctx, &out, `
		SELECT t, date, lower, median, upper, log_lower, log_median, log_upper
		FROM forecast_points WHERE run_id = $1 ORDER BY t`, runID.String())
	if err != nil {
		return nil, errors.StoreError("failed to load forecast", err)
	}
	if len(out) == 0 {
		return nil, errors.NotFound("forecast")
	}
	return out, nil
}

// MetricPoint is one stored metric row.
type MetricPoint struct {
	Name    string  `db:"name" json:"name"`
	Value   float64 `db:"value" json:"value"`
	Defined bool    `db:"defined" json:"defined"`
}

// GetMetrics returns the stored metric table for one run.
func (r *RunRepository) GetMetrics(ctx context.Context, runID core.RunID) ([]MetricPoint, error) {
	var out []MetricPoint
	err := r.db.SelectContext(ctx, &out, `
		SELECT name, value, defined FROM run_metrics WHERE run_id = $1 ORDER BY name`, runID.String())
	if err != nil {
		return nil, errors.StoreError("failed to load metrics", err)
	}
	return out, nil
}

// GetRun returns the stored summary for one run.
func (r *RunRepository) GetRun(ctx context.Context, runID core.RunID) (*RunSummary, error) {
	var out RunSummary
	err := r.db.GetContext(ctx, &out, `
		SELECT id, created_at, chains, iterations, converged, burn_in
		FROM runs WHERE id = $1`, runID.String())
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run")
	}
	if err != nil {
		return nil, errors.StoreError("failed to load run", err)
	}
	return &out, nil
}
