package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// Connect establishes a connection to the database
func Connect(connectionString string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{DB: db, logger: logger}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		db.logger.Info("Running migration", zap.String("file", filename))

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	db.logger.Info("All migrations completed successfully", zap.Int("count", len(sqlFiles)))
	return nil
}

const upsertDailyResultQuery = `
	INSERT INTO daily_results (
		location_id, date, source, ok,
		fajr, dhuhr, asr, maghrib, isha,
		failure_kind, reason, run_id
	) VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (location_id, date, source) DO UPDATE
	SET ok = EXCLUDED.ok,
	    fajr = EXCLUDED.fajr,
	    dhuhr = EXCLUDED.dhuhr,
	    asr = EXCLUDED.asr,
	    maghrib = EXCLUDED.maghrib,
	    isha = EXCLUDED.isha,
	    failure_kind = EXCLUDED.failure_kind,
	    reason = EXCLUDED.reason,
	    run_id = EXCLUDED.run_id,
	    updated_at = CURRENT_TIMESTAMP
`

// UpsertDailyResults stores several results in one transaction
func (db *DB) UpsertDailyResults(results []*DailyResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertDailyResultQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(
			r.LocationID,
			r.Date.Format("2006-01-02"),
			r.Source,
			r.OK,
			r.Fajr,
			r.Dhuhr,
			r.Asr,
			r.Maghrib,
			r.Isha,
			r.FailureKind,
			r.Reason,
			r.RunID,
		); err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", r.Source, r.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetMonth retrieves the stored results of a location for one month
func (db *DB) GetMonth(locationID string, year int, month time.Month) ([]*DailyResult, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	query := `
		SELECT location_id, date, source, ok,
		       fajr, dhuhr, asr, maghrib, isha,
		       failure_kind, reason, run_id, updated_at
		FROM daily_results
		WHERE location_id = $1 AND date >= $2::date AND date < $3::date
		ORDER BY date, source
	`

	rows, err := db.Query(query, locationID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query month: %w", err)
	}
	defer rows.Close()

	var results []*DailyResult
	for rows.Next() {
		var r DailyResult
		if err := rows.Scan(
			&r.LocationID,
			&r.Date,
			&r.Source,
			&r.OK,
			&r.Fajr,
			&r.Dhuhr,
			&r.Asr,
			&r.Maghrib,
			&r.Isha,
			&r.FailureKind,
			&r.Reason,
			&r.RunID,
			&r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan daily result: %w", err)
		}
		results = append(results, &r)
	}

	return results, rows.Err()
}
