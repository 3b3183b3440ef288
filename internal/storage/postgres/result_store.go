// Package postgres persists aggregation results. The input series stays with
// the external table engine; only aggregated windows are stored here, keyed
// by (series id, column, period, reducer, window start) so re-running an
// aggregation upserts in place.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hydrograph-lab/timegrid/internal/aggregate"
)

const (
	queryUpsertWindow = `
		INSERT INTO aggregated_windows (
			series_id, column_name, period_spec, reducer,
			window_start, window_end, anchor_at,
			member_count, expected_count, value, occurred_at, is_valid, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (series_id, column_name, period_spec, reducer, window_start)
		DO UPDATE SET
			window_end     = EXCLUDED.window_end,
			anchor_at      = EXCLUDED.anchor_at,
			member_count   = EXCLUDED.member_count,
			expected_count = EXCLUDED.expected_count,
			value          = EXCLUDED.value,
			occurred_at    = EXCLUDED.occurred_at,
			is_valid       = EXCLUDED.is_valid,
			updated_at     = EXCLUDED.updated_at
	`

	queryRangeWindows = `
		SELECT
			window_start, window_end, anchor_at,
			member_count, expected_count, value, occurred_at, is_valid, updated_at
		FROM aggregated_windows
		WHERE series_id = $1
		  AND column_name = $2
		  AND period_spec = $3
		  AND reducer = $4
		  AND window_start >= $5
		  AND window_start < $6
		ORDER BY window_start ASC
	`

	queryDeleteSeries = `DELETE FROM aggregated_windows WHERE series_id = $1`
)

// StoredWindow is one persisted aggregation window.
type StoredWindow struct {
	Start         time.Time
	End           time.Time
	Anchor        time.Time
	MemberCount   int64
	ExpectedCount int64
	// Value is nil for empty windows.
	Value *decimal.Decimal
	// OccurredAt is the extremum timestamp, set for min/max results.
	OccurredAt *time.Time
	Valid      bool
	UpdatedAt  time.Time
}

// ResultStore implements the aggregation result store on PostgreSQL.
type ResultStore struct {
	db *sql.DB
}

// NewResultStore creates a ResultStore sharing the given connection.
func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db}
}

// Save upserts every window of one aggregation result in a single
// transaction, so a re-run never leaves a half-written result behind.
func (s *ResultStore) Save(ctx context.Context, seriesID uuid.UUID, res *aggregate.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("result save: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryUpsertWindow)
	if err != nil {
		return fmt.Errorf("result save: prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	periodSpec := res.Period.String()
	for _, w := range res.Windows {
		var value interface{}
		if !w.Value.Null {
			// NUMERIC keeps the value exact through the round trip.
			value = decimal.NewFromFloat(w.Value.Float).String()
		}
		var occurredAt interface{}
		if w.At != nil {
			occurredAt = w.At.UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			seriesID,
			res.Column,
			periodSpec,
			res.Reducer,
			w.Start.UTC(),
			w.End.UTC(),
			w.Anchor.UTC(),
			w.MemberCount,
			w.ExpectedCount,
			value,
			occurredAt,
			w.Valid,
			now,
		); err != nil {
			return fmt.Errorf("result save: upsert window %s: %w", w.Start.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("result save: commit: %w", err)
	}

	slog.Info("Saved aggregation result",
		"series_id", seriesID.String(),
		"column", res.Column,
		"reducer", res.Reducer,
		"period", periodSpec,
		"windows", len(res.Windows),
	)
	return nil
}

// QueryRange fetches stored windows for a time range, ordered by window
// start.
func (s *ResultStore) QueryRange(
	ctx context.Context,
	seriesID uuid.UUID,
	column, periodSpec, reducer string,
	start, end time.Time,
) ([]StoredWindow, error) {
	rows, err := s.db.QueryContext(ctx, queryRangeWindows, seriesID, column, periodSpec, reducer, start, end)
	if err != nil {
		return nil, fmt.Errorf("query aggregated_windows: %w", err)
	}
	defer rows.Close()

	var results []StoredWindow
	for rows.Next() {
		var (
			w          StoredWindow
			valueStr   sql.NullString
			occurredAt sql.NullTime
		)
		if err := rows.Scan(
			&w.Start,
			&w.End,
			&w.Anchor,
			&w.MemberCount,
			&w.ExpectedCount,
			&valueStr,
			&occurredAt,
			&w.Valid,
			&w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if valueStr.Valid {
			value, err := decimal.NewFromString(valueStr.String)
			if err != nil {
				return nil, fmt.Errorf("parse value %q: %w", valueStr.String, err)
			}
			w.Value = &value
		}
		if occurredAt.Valid {
			t := occurredAt.Time
			w.OccurredAt = &t
		}
		results = append(results, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return results, nil
}

// DeleteSeries removes every stored window of one series.
func (s *ResultStore) DeleteSeries(ctx context.Context, seriesID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, queryDeleteSeries, seriesID)
	if err != nil {
		return 0, fmt.Errorf("delete aggregated_windows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete aggregated_windows: rows affected: %w", err)
	}
	return n, nil
}
