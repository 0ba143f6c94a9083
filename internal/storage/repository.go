package storage

import (
	"context"
	"database/sql"
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
	upsertObservationSQL = `INSERT INTO observations (
        currency,
        instrument_id,
        expiry_key,
        observed_at,
        tenor_days,
        reference_price,
        contract_price,
        basis_amount,
        yield_pct,
        provenance,
        z_score,
        classification
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (currency, instrument_id, observed_at) DO UPDATE
    SET
        expiry_key      = EXCLUDED.expiry_key,
        tenor_days      = EXCLUDED.tenor_days,
        reference_price = EXCLUDED.reference_price,
        contract_price  = EXCLUDED.contract_price,
        basis_amount    = EXCLUDED.basis_amount,
        yield_pct       = EXCLUDED.yield_pct,
        provenance      = EXCLUDED.provenance,
        z_score         = EXCLUDED.z_score,
        classification  = EXCLUDED.classification;`

	listObservationsBetweenSQL = `SELECT
        currency,
        instrument_id,
        expiry_key,
        observed_at,
        tenor_days,
        reference_price,
        contract_price,
        basis_amount,
        yield_pct,
        provenance,
        z_score,
        classification,
        created_at
    FROM observations
    WHERE currency = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY instrument_id, observed_at;`

	listLatestObservationsSQL = `SELECT DISTINCT ON (instrument_id)
        currency,
        instrument_id,
        expiry_key,
        observed_at,
        tenor_days,
        reference_price,
        contract_price,
        basis_amount,
        yield_pct,
        provenance,
        z_score,
        classification,
        created_at
    FROM observations
    WHERE currency = $1
    ORDER BY instrument_id, observed_at DESC;`

	countObservationsSQL = `SELECT COUNT(*) FROM observations WHERE currency = $1;`

	insertSignalSQL = `INSERT INTO signals (
        currency,
        instrument_id,
        observed_at,
        tenor_days,
        yield_pct,
        z_score,
        classification,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (instrument_id, observed_at) DO UPDATE
    SET yield_pct      = EXCLUDED.yield_pct,
        z_score        = EXCLUDED.z_score,
        classification = EXCLUDED.classification,
        channels       = EXCLUDED.channels
    RETURNING id, currency, instrument_id, observed_at, tenor_days, yield_pct, z_score, classification, channels, created_at;`

	listRecentSignalsSQL = `SELECT
        id,
        currency,
        instrument_id,
        observed_at,
        tenor_days,
        yield_pct,
        z_score,
        classification,
        channels,
        created_at
    FROM signals
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteSignalsBeforeSQL = `DELETE FROM signals WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines operations for yield-observation persistence.
type ObservationStore interface {
	UpsertObservation(ctx context.Context, rec ObservationRecord) error
	ListObservationsBetween(ctx context.Context, currency string, from, to time.Time) ([]ObservationRecord, error)
	ListLatestObservations(ctx context.Context, currency string) ([]ObservationRecord, error)
	CountObservations(ctx context.Context, currency string) (int64, error)
}

// SignalStore defines operations for signal auditing.
type SignalStore interface {
	InsertSignal(ctx context.Context, signal SignalRecord) (SignalRecord, error)
	ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error)
	DeleteSignalsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to observations and signals.
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

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func.
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
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

// UpsertObservation persists or updates one observation bucket.
func (s *Store) UpsertObservation(ctx context.Context, rec ObservationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var zScore interface{}
	if rec.ZScore != nil {
		zScore = *rec.ZScore
	}
	var classification interface{}
	if rec.Classification != nil {
		classification = *rec.Classification
	}

	_, execErr := pool.Exec(ctx, upsertObservationSQL,
		rec.Currency,
		rec.InstrumentID,
		rec.ExpiryKey,
		rec.ObservedAt,
		rec.TenorDays,
		rec.ReferencePrice,
		rec.ContractPrice,
		rec.BasisAmount,
		rec.YieldPct,
		string(rec.Provenance),
		zScore,
		classification,
	)
	if execErr != nil {
		return fmt.Errorf("upsert observation: %w", execErr)
	}
	return nil
}

// ListObservationsBetween lists a currency's observations within a window.
func (s *Store) ListObservationsBetween(ctx context.Context, currency string, from, to time.Time) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, currency, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// ListLatestObservations returns the most recent row per instrument for a
// currency.
func (s *Store) ListLatestObservations(ctx context.Context, currency string) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listLatestObservationsSQL, currency)
	if queryErr != nil {
		return nil, fmt.Errorf("list latest observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// CountObservations counts stored observations for a currency.
func (s *Store) CountObservations(ctx context.Context, currency string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL, currency).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// InsertSignal persists a signal emission.
func (s *Store) InsertSignal(ctx context.Context, signal SignalRecord) (SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SignalRecord{}, err
	}

	row := pool.QueryRow(ctx, insertSignalSQL,
		signal.Currency,
		signal.InstrumentID,
		signal.ObservedAt,
		signal.TenorDays,
		signal.YieldPct,
		signal.ZScore,
		signal.Classification,
		signal.Channels,
	)

	var rec SignalRecord
	if scanErr := row.Scan(
		&rec.ID,
		&rec.Currency,
		&rec.InstrumentID,
		&rec.ObservedAt,
		&rec.TenorDays,
		&rec.YieldPct,
		&rec.ZScore,
		&rec.Classification,
		&rec.Channels,
		&rec.CreatedAt,
	); scanErr != nil {
		return SignalRecord{}, fmt.Errorf("insert signal: %w", scanErr)
	}
	return rec, nil
}

// ListRecentSignals lists the most recent signals.
func (s *Store) ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSignalsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signals: %w", queryErr)
	}
	defer rows.Close()

	signals := make([]SignalRecord, 0, limit)
	for rows.Next() {
		var rec SignalRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Currency,
			&rec.InstrumentID,
			&rec.ObservedAt,
			&rec.TenorDays,
			&rec.YieldPct,
			&rec.ZScore,
			&rec.Classification,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		signals = append(signals, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return signals, nil
}

// DeleteSignalsBefore deletes historical signals.
func (s *Store) DeleteSignalsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSignalsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete signals before: %w", execErr)
	}
	return nil
}

func collectObservations(rows pgx.Rows) ([]ObservationRecord, error) {
	records := make([]ObservationRecord, 0)
	for rows.Next() {
		rec, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanObservation(rows pgx.Rows) (ObservationRecord, error) {
	var (
		rec            ObservationRecord
		provenance     string
		zScore         sql.NullFloat64
		classification sql.NullString
	)

	if err := rows.Scan(
		&rec.Currency,
		&rec.InstrumentID,
		&rec.ExpiryKey,
		&rec.ObservedAt,
		&rec.TenorDays,
		&rec.ReferencePrice,
		&rec.ContractPrice,
		&rec.BasisAmount,
		&rec.YieldPct,
		&provenance,
		&zScore,
		&classification,
		&rec.CreatedAt,
	); err != nil {
		return ObservationRecord{}, err
	}

	rec.Provenance = provenanceFromString(provenance)
	if zScore.Valid {
		value := zScore.Float64
		rec.ZScore = &value
	}
	if classification.Valid {
		value := classification.String
		rec.Classification = &value
	}
	return rec, nil
}
