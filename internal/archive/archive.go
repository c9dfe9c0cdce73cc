// Package archive keeps a history of fusion runs: one summary row per run
// and its ranked anomalies. It stores to an embedded SQLite file by default
// or to PostgreSQL when given a postgres:// DSN.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/logging"
)

// ErrRunExists is returned when a run ID is saved twice.
var ErrRunExists = errors.New("run already archived")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store is an open archive.
type Store struct {
	db     *sql.DB
	driver string
}

// RunRecord is the archived summary of one run.
type RunRecord struct {
	RunID          string
	CreatedAt      time.Time
	Center         geo.Coordinate
	RadiusMeters   float64
	Rows, Cols     int
	Threshold      float64
	MaxProbability float64
	AnomalyCount   int
	SensorsUsed    int
	Confidence     string
	Digest         string
}

// AnomalyRecord is one archived ranked anomaly.
type AnomalyRecord struct {
	RunID       string
	Rank        int
	Row, Col    int
	Location    geo.Coordinate
	Probability float64
	Class       grid.Class
}

// DriverFor picks the database/sql driver for dsn.
func DriverFor(dsn string) string {
	l := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(l, "postgres://") || strings.HasPrefix(l, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to dsn and creates the schema if needed. Anything that is
// not a postgres:// URL is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("archive: empty DSN")
	}
	driver := DriverFor(dsn)
	if driver == DriverSQLite {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("archive: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if driver == DriverSQLite {
		// One physical connection; SQLite serializes writers anyway.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logf("", "archive open (%s)", driver)
	return s, nil
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string { return s.driver }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fusion_runs (
			run_id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			center_lat DOUBLE PRECISION NOT NULL,
			center_lon DOUBLE PRECISION NOT NULL,
			radius_m DOUBLE PRECISION NOT NULL,
			grid_rows INTEGER NOT NULL,
			grid_cols INTEGER NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			max_probability DOUBLE PRECISION NOT NULL,
			anomaly_count INTEGER NOT NULL,
			sensors_used INTEGER NOT NULL,
			confidence TEXT NOT NULL,
			digest TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fusion_anomalies (
			run_id TEXT NOT NULL,
			anomaly_rank INTEGER NOT NULL,
			row_idx INTEGER NOT NULL,
			col_idx INTEGER NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lon DOUBLE PRECISION NOT NULL,
			probability DOUBLE PRECISION NOT NULL,
			class TEXT NOT NULL,
			PRIMARY KEY (run_id, anomaly_rank)
		)`,
		`CREATE INDEX IF NOT EXISTS fusion_runs_created_idx ON fusion_runs (created_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("archive: migrate: %w", err)
		}
	}
	return nil
}

// placeholders returns a generator of bind placeholders for the driver.
func (s *Store) placeholders() func() string {
	if s.driver == DriverPostgres {
		n := 0
		return func() string {
			n++
			return fmt.Sprintf("$%d", n)
		}
	}
	return func() string { return "?" }
}

func (s *Store) insertSQL(table string, cols ...string) string {
	next := s.placeholders()
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = next()
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(ph, ", "))
}

// Save archives the run summary and every anomaly at or above threshold in
// one transaction.
func (s *Store) Save(ctx context.Context, g *grid.Grid, threshold float64, digest string) error {
	if g == nil || g.RunID == "" {
		return fmt.Errorf("archive: grid without run ID")
	}
	exists, err := s.hasRun(ctx, g.RunID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("archive: %s: %w", g.RunID, ErrRunExists)
	}

	sum := grid.Summarize(g, threshold)
	ranked := grid.ExtractRanked(g, threshold)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback()

	runSQL := s.insertSQL("fusion_runs",
		"run_id", "created_at", "center_lat", "center_lon", "radius_m", "grid_rows", "grid_cols",
		"threshold", "max_probability", "anomaly_count", "sensors_used", "confidence", "digest")
	if _, err := tx.ExecContext(ctx, runSQL,
		g.RunID, g.CreatedAt.UnixMilli(), g.Center.Lat, g.Center.Lon, g.RadiusMeters, g.Rows, g.Cols,
		threshold, sum.MaxProbability, sum.AboveThreshold, sum.Quality.SensorsUsed, string(sum.Quality.Confidence), digest,
	); err != nil {
		return fmt.Errorf("archive: insert run: %w", err)
	}

	anomalySQL := s.insertSQL("fusion_anomalies",
		"run_id", "anomaly_rank", "row_idx", "col_idx", "lat", "lon", "probability", "class")
	stmt, err := tx.PrepareContext(ctx, anomalySQL)
	if err != nil {
		return fmt.Errorf("archive: prepare: %w", err)
	}
	defer stmt.Close()
	for _, a := range ranked {
		if _, err := stmt.ExecContext(ctx,
			g.RunID, a.Rank, a.Row, a.Col, a.Center.Lat, a.Center.Lon, a.Probability, a.Class.String(),
		); err != nil {
			return fmt.Errorf("archive: insert anomaly %d: %w", a.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	logkv(g.RunID, "archived", logging.F("anomalies", len(ranked)))
	return nil
}

func (s *Store) hasRun(ctx context.Context, runID string) (bool, error) {
	q := "SELECT COUNT(*) FROM fusion_runs WHERE run_id = " + s.placeholders()()
	var n int
	if err := s.db.QueryRowContext(ctx, q, runID).Scan(&n); err != nil {
		return false, fmt.Errorf("archive: lookup run: %w", err)
	}
	return n > 0, nil
}

// Runs lists archived runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `SELECT run_id, created_at, center_lat, center_lon, radius_m, grid_rows, grid_cols,
		threshold, max_probability, anomaly_count, sensors_used, confidence, digest
		FROM fusion_runs ORDER BY created_at DESC, run_id`
	var args []any
	if limit > 0 {
		q += " LIMIT " + s.placeholders()()
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var created int64
		if err := rows.Scan(&r.RunID, &created, &r.Center.Lat, &r.Center.Lon, &r.RadiusMeters, &r.Rows, &r.Cols,
			&r.Threshold, &r.MaxProbability, &r.AnomalyCount, &r.SensorsUsed, &r.Confidence, &r.Digest); err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Anomalies returns the archived anomalies of a run by rank.
func (s *Store) Anomalies(ctx context.Context, runID string) ([]AnomalyRecord, error) {
	q := `SELECT run_id, anomaly_rank, row_idx, col_idx, lat, lon, probability, class
		FROM fusion_anomalies WHERE run_id = ` + s.placeholders()() + ` ORDER BY anomaly_rank`
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("archive: list anomalies: %w", err)
	}
	defer rows.Close()

	var out []AnomalyRecord
	for rows.Next() {
		var a AnomalyRecord
		var class string
		if err := rows.Scan(&a.RunID, &a.Rank, &a.Row, &a.Col, &a.Location.Lat, &a.Location.Lon, &a.Probability, &class); err != nil {
			return nil, fmt.Errorf("archive: scan anomaly: %w", err)
		}
		c, err := grid.ParseClass(class)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		a.Class = c
		out = append(out, a)
	}
	return out, rows.Err()
}
