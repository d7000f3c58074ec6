//go:build sqlite

package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, schema_version, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload = excluded.payload
	`, run.ID, run.SchemaVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return RunRecord{}, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT payload FROM runs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) AppendCycle(ctx context.Context, runID string, cycle CycleRecord) error {
	return s.appendBlob(ctx, runID, "cycles", func(existing []byte) ([]byte, error) {
		var cycles []CycleRecord
		if existing != nil {
			decoded, err := DecodeCycles(existing)
			if err != nil {
				return nil, err
			}
			cycles = decoded
		}
		return EncodeCycles(append(cycles, cycle))
	})
}

func (s *SQLiteStore) GetCycles(ctx context.Context, runID string) ([]CycleRecord, bool, error) {
	payload, ok, err := s.getBlob(ctx, runID, "cycles")
	if err != nil || !ok {
		return nil, ok, err
	}
	cycles, err := DecodeCycles(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode cycles for run %s: %w", runID, err)
	}
	return cycles, true, nil
}

func (s *SQLiteStore) AppendCommands(ctx context.Context, runID string, record CommandRecord) error {
	return s.appendBlob(ctx, runID, "commands", func(existing []byte) ([]byte, error) {
		var records []CommandRecord
		if existing != nil {
			decoded, err := DecodeCommands(existing)
			if err != nil {
				return nil, err
			}
			records = decoded
		}
		return EncodeCommands(append(records, record))
	})
}

func (s *SQLiteStore) GetCommands(ctx context.Context, runID string) ([]CommandRecord, bool, error) {
	payload, ok, err := s.getBlob(ctx, runID, "commands")
	if err != nil || !ok {
		return nil, ok, err
	}
	records, err := DecodeCommands(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode commands for run %s: %w", runID, err)
	}
	return records, true, nil
}

func (s *SQLiteStore) AppendReward(ctx context.Context, runID string, reward RewardRecord) error {
	return s.appendBlob(ctx, runID, "rewards", func(existing []byte) ([]byte, error) {
		var rewards []RewardRecord
		if existing != nil {
			decoded, err := DecodeRewards(existing)
			if err != nil {
				return nil, err
			}
			rewards = decoded
		}
		return EncodeRewards(append(rewards, reward))
	})
}

func (s *SQLiteStore) GetRewards(ctx context.Context, runID string) ([]RewardRecord, bool, error) {
	payload, ok, err := s.getBlob(ctx, runID, "rewards")
	if err != nil || !ok {
		return nil, ok, err
	}
	rewards, err := DecodeRewards(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode rewards for run %s: %w", runID, err)
	}
	return rewards, true, nil
}

func (s *SQLiteStore) SaveBaselines(ctx context.Context, runID string, baselines map[string][]float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := EncodeBaselines(baselines)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO baselines (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) GetBaselines(ctx context.Context, runID string) (map[string][]float64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM baselines WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	baselines, err := DecodeBaselines(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode baselines for run %s: %w", runID, err)
	}
	return baselines, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

// appendBlob rewrites one run's journal blob under a transaction so
// concurrent appends serialize instead of clobbering each other.
func (s *SQLiteStore) appendBlob(ctx context.Context, runID, table string, grow func(existing []byte) ([]byte, error)) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing []byte
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE run_id = ?`, table), runID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	payload, err := grow(existing)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload
	`, table), runID, payload)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) getBlob(ctx context.Context, runID, table string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE run_id = ?`, table), runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cycles (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS commands (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rewards (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS baselines (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
