package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 2

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createPrecheckRunsTable(tx); err != nil {
			return err
		}
		if err := createRankingRunsTable(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Debug("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations brings an existing database up to currentSchemaVersion.
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}
	if version == currentSchemaVersion {
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	db.logger.Info("Running database migrations",
		"from_version", version,
		"to_version", currentSchemaVersion,
	)

	return db.WithTx(context.Background(), func(tx *sql.Tx) error {
		if version < 1 {
			if err := createSchemaVersionTable(tx); err != nil {
				return err
			}
			if err := createPrecheckRunsTable(tx); err != nil {
				return err
			}
		}
		if version < 2 {
			// v2 added ranking history.
			if err := createRankingRunsTable(tx); err != nil {
				return err
			}
		}
		return setSchemaVersion(tx, currentSchemaVersion)
	})
}

// getSchemaVersion returns 0 for a database without a version table.
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.conn.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createPrecheckRunsTable creates the precheck_runs table
func createPrecheckRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS precheck_runs (
			run_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			command TEXT NOT NULL,
			output_path TEXT NOT NULL,
			program_msg TEXT NOT NULL,
			thread_num INTEGER NOT NULL CHECK(thread_num >= 0),
			step_total INTEGER NOT NULL CHECK(step_total >= 0),
			over_long INTEGER NOT NULL CHECK(over_long IN (0, 1)),
			exceeding_count INTEGER NOT NULL CHECK(exceeding_count >= 0),
			boundary_errors INTEGER NOT NULL DEFAULT 0,
			degraded INTEGER NOT NULL DEFAULT 0 CHECK(degraded IN (0, 1)),
			duration_ms INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create precheck_runs table: %w", err)
	}
	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_precheck_runs_created_at ON precheck_runs(created_at)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// createRankingRunsTable creates the ranking_runs table
func createRankingRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS ranking_runs (
			run_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			trace_path TEXT NOT NULL,
			start_json TEXT NOT NULL,
			top_candidate TEXT,
			top_probability REAL CHECK(top_probability IS NULL OR (top_probability >= 0.0 AND top_probability <= 1.0)),
			candidates INTEGER NOT NULL CHECK(candidates >= 0),
			visits INTEGER NOT NULL CHECK(visits >= 0),
			duration_ms INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ranking_runs table: %w", err)
	}
	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_ranking_runs_created_at ON ranking_runs(created_at)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}
