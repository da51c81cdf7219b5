package storage

import (
	"context"
	"database/sql"
	"math"
	"sync"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/Noofbiz/locaz/evaluate"
	"github.com/Noofbiz/locaz/simple"
	"github.com/Noofbiz/locaz/split"
)

const (
	kindPartition = "partition"
	kindHistory   = "history"
	kindSummaries = "summaries"
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
		return errors.Wrapf(err, "open %s", s.path)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "ping %s", s.path)
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "create tables")
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SavePartition(ctx context.Context, run string, p split.Partition) error {
	return s.replace(ctx, run, kindPartition, `DELETE FROM partition_ids WHERE run = ?`,
		func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO partition_ids (run, part, id) VALUES (?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, part := range []struct {
				name string
				ids  []int
			}{{"train", p.Train}, {"validation", p.Validation}, {"test", p.Test}} {
				for _, id := range part.ids {
					if _, err := stmt.ExecContext(ctx, run, part.name, id); err != nil {
						return errors.Wrapf(err, "insert %s id %d", part.name, id)
					}
				}
			}
			return nil
		})
}

func (s *SQLiteStore) GetPartition(ctx context.Context, run string) (split.Partition, bool, error) {
	db, ok, err := s.runExists(ctx, run, kindPartition)
	if err != nil || !ok {
		return split.Partition{}, false, err
	}

	rows, err := db.QueryContext(ctx, `SELECT part, id FROM partition_ids WHERE run = ? ORDER BY id`, run)
	if err != nil {
		return split.Partition{}, false, err
	}
	defer rows.Close()

	p := split.Partition{Train: []int{}, Validation: []int{}, Test: []int{}}
	for rows.Next() {
		var part string
		var id int
		if err := rows.Scan(&part, &id); err != nil {
			return split.Partition{}, false, err
		}
		switch part {
		case "train":
			p.Train = append(p.Train, id)
		case "validation":
			p.Validation = append(p.Validation, id)
		case "test":
			p.Test = append(p.Test, id)
		default:
			return split.Partition{}, false, errors.Errorf("run %s: unknown partition %q", run, part)
		}
	}
	return p, true, rows.Err()
}

func (s *SQLiteStore) SaveHistory(ctx context.Context, run string, h simple.History) error {
	return s.replace(ctx, run, kindHistory, `DELETE FROM history WHERE run = ?`,
		func(tx *sql.Tx) error {
			for _, e := range h {
				_, err := tx.ExecContext(ctx, `INSERT INTO history (run, epoch, loss, val_loss) VALUES (?, ?, ?, ?)`,
					run, e.Epoch, nullable(e.Loss), nullable(e.ValLoss))
				if err != nil {
					return errors.Wrapf(err, "insert epoch %d", e.Epoch)
				}
			}
			return nil
		})
}

func (s *SQLiteStore) GetHistory(ctx context.Context, run string) (simple.History, bool, error) {
	db, ok, err := s.runExists(ctx, run, kindHistory)
	if err != nil || !ok {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `SELECT epoch, loss, val_loss FROM history WHERE run = ? ORDER BY epoch`, run)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	h := simple.History{}
	for rows.Next() {
		var e simple.EpochStats
		var loss, val sql.NullFloat64
		if err := rows.Scan(&e.Epoch, &loss, &val); err != nil {
			return nil, false, err
		}
		e.Loss = fromNullable(loss)
		e.ValLoss = fromNullable(val)
		h = append(h, e)
	}
	return h, true, rows.Err()
}

func (s *SQLiteStore) SaveSummaries(ctx context.Context, run string, sum []evaluate.PositionSummary) error {
	return s.replace(ctx, run, kindSummaries, `DELETE FROM summaries WHERE run = ?`,
		func(tx *sql.Tx) error {
			for i, ps := range sum {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO summaries (run, seq, position, trials, mean_error, mae, rmse, median_abs, p90_abs)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, run, i, ps.Position, ps.Trials, ps.MeanError, ps.MAE, ps.RMSE, ps.MedianAbs, ps.P90Abs)
				if err != nil {
					return errors.Wrapf(err, "insert position %d", ps.Position)
				}
			}
			return nil
		})
}

func (s *SQLiteStore) GetSummaries(ctx context.Context, run string) ([]evaluate.PositionSummary, bool, error) {
	db, ok, err := s.runExists(ctx, run, kindSummaries)
	if err != nil || !ok {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT position, trials, mean_error, mae, rmse, median_abs, p90_abs
		FROM summaries WHERE run = ? ORDER BY seq
	`, run)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	out := []evaluate.PositionSummary{}
	for rows.Next() {
		var ps evaluate.PositionSummary
		if err := rows.Scan(&ps.Position, &ps.Trials, &ps.MeanError, &ps.MAE, &ps.RMSE, &ps.MedianAbs, &ps.P90Abs); err != nil {
			return nil, false, err
		}
		out = append(out, ps)
	}
	return out, true, rows.Err()
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
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// replace registers run under kind and rewrites its rows in one transaction.
func (s *SQLiteStore) replace(ctx context.Context, run, kind, deleteQuery string, insert func(*sql.Tx) error) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO runs (run, kind) VALUES (?, ?)`, run, kind); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, run); err != nil {
		return err
	}
	if err := insert(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) runExists(ctx context.Context, run, kind string) (*sql.DB, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run = ? AND kind = ?`, run, kind).Scan(&n)
	if err != nil {
		return nil, false, err
	}
	return db, n > 0, nil
}

// nullable maps NaN onto NULL; SQLite has no NaN.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run TEXT NOT NULL,
			kind TEXT NOT NULL,
			PRIMARY KEY (run, kind)
		);
		CREATE TABLE IF NOT EXISTS partition_ids (
			run TEXT NOT NULL,
			part TEXT NOT NULL,
			id INTEGER NOT NULL,
			PRIMARY KEY (run, id)
		);
		CREATE TABLE IF NOT EXISTS history (
			run TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			loss REAL,
			val_loss REAL,
			PRIMARY KEY (run, epoch)
		);
		CREATE TABLE IF NOT EXISTS summaries (
			run TEXT NOT NULL,
			seq INTEGER NOT NULL,
			position INTEGER NOT NULL,
			trials INTEGER NOT NULL,
			mean_error REAL NOT NULL,
			mae REAL NOT NULL,
			rmse REAL NOT NULL,
			median_abs REAL NOT NULL,
			p90_abs REAL NOT NULL,
			PRIMARY KEY (run, seq)
		);
	`)
	return err
}
