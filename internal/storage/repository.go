package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	// Every column is overwritten: a record is replaced, never merged.
	upsertPerformanceSQL = `INSERT INTO performance_records (
        target_key,
        timeframe,
        model_type,
        mape,
        accuracy,
        comparison,
        future,
        generated_at,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,now()
    )
    ON CONFLICT (target_key, timeframe) DO UPDATE
    SET
        model_type   = EXCLUDED.model_type,
        mape         = EXCLUDED.mape,
        accuracy     = EXCLUDED.accuracy,
        comparison   = EXCLUDED.comparison,
        future       = EXCLUDED.future,
        generated_at = EXCLUDED.generated_at,
        updated_at   = now();`

	getPerformanceSQL = `SELECT
        target_key,
        timeframe,
        model_type,
        mape,
        accuracy,
        comparison,
        future,
        generated_at,
        updated_at
    FROM performance_records
    WHERE target_key = $1
      AND timeframe = $2;`

	deletePerformanceSQL = `DELETE FROM performance_records WHERE target_key = $1;`

	insertTrainingRunSQL = `INSERT INTO training_runs (
        target_key,
        models,
        model_type,
        status,
        error,
        started_at,
        finished_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id;`

	listRecentRunsSQL = `SELECT
        id,
        target_key,
        models,
        model_type,
        status,
        error,
        started_at,
        finished_at
    FROM training_runs
    ORDER BY finished_at DESC
    LIMIT $1;`

	deleteRunsBeforeSQL = `DELETE FROM training_runs WHERE finished_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PerformanceStore persists reconciled records.
type PerformanceStore interface {
	UpsertPerformance(ctx context.Context, snap PerformanceSnapshot) error
	GetPerformance(ctx context.Context, targetKey, timeframe string) (PerformanceSnapshot, error)
	DeletePerformance(ctx context.Context, targetKey string) error
}

// TrainingRunStore audits retrain attempts.
type TrainingRunStore interface {
	InsertTrainingRun(ctx context.Context, run TrainingRun) (int64, error)
	ListRecentRuns(ctx context.Context, limit int) ([]TrainingRun, error)
	DeleteRunsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshots and training runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertPerformance writes the snapshot for (target, timeframe), replacing any previous one.
func (s *Store) UpsertPerformance(ctx context.Context, snap PerformanceSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPerformanceSQL,
		snap.TargetKey,
		snap.Timeframe,
		snap.ModelType,
		snap.MAPE,
		snap.Accuracy,
		jsonOrEmpty(snap.Comparison),
		jsonOrEmpty(snap.Future),
		snap.GeneratedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert performance record: %w", execErr)
	}
	return nil
}

// GetPerformance loads one snapshot. Returns pgx.ErrNoRows when absent.
func (s *Store) GetPerformance(ctx context.Context, targetKey, timeframe string) (PerformanceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return PerformanceSnapshot{}, err
	}

	var snap PerformanceSnapshot
	scanErr := pool.QueryRow(ctx, getPerformanceSQL, targetKey, timeframe).Scan(
		&snap.TargetKey,
		&snap.Timeframe,
		&snap.ModelType,
		&snap.MAPE,
		&snap.Accuracy,
		&snap.Comparison,
		&snap.Future,
		&snap.GeneratedAt,
		&snap.UpdatedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return PerformanceSnapshot{}, scanErr
		}
		return PerformanceSnapshot{}, fmt.Errorf("get performance record: %w", scanErr)
	}
	return snap, nil
}

// DeletePerformance drops every snapshot of a target.
func (s *Store) DeletePerformance(ctx context.Context, targetKey string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deletePerformanceSQL, targetKey); execErr != nil {
		return fmt.Errorf("delete performance records: %w", execErr)
	}
	return nil
}

// InsertTrainingRun records a retrain attempt and returns its id.
func (s *Store) InsertTrainingRun(ctx context.Context, run TrainingRun) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	models := run.Models
	if models == nil {
		models = []string{}
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertTrainingRunSQL,
		run.TargetKey,
		models,
		run.ModelType,
		run.Status,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("insert training run: %w", scanErr)
	}
	return id, nil
}

// ListRecentRuns lists the latest training runs.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0, limit)
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(
			&run.ID,
			&run.TargetKey,
			&run.Models,
			&run.ModelType,
			&run.Status,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// DeleteRunsBefore prunes the audit trail.
func (s *Store) DeleteRunsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteRunsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete training runs: %w", execErr)
	}
	return nil
}

func jsonOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("[]")
	}
	return raw
}

var (
	_ PerformanceStore = (*Store)(nil)
	_ TrainingRunStore = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
