package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hydrograph-lab/timegrid/internal/aggregate"
	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
)

func sampleResult(t *testing.T) *aggregate.Result {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	occurred := start.Add(6 * time.Hour)
	return &aggregate.Result{
		Column:  "flow",
		Reducer: "max",
		Period:  period.MustParse("P1D"),
		Windows: []aggregate.WindowResult{
			{
				Ordinal:       0,
				Start:         start,
				End:           start.AddDate(0, 0, 1),
				Anchor:        start,
				MemberCount:   96,
				ExpectedCount: 96,
				Value:         series.Of(12.5),
				At:            &occurred,
				Valid:         true,
			},
			{
				Ordinal:       1,
				Start:         start.AddDate(0, 0, 1),
				End:           start.AddDate(0, 0, 2),
				Anchor:        start.AddDate(0, 0, 1),
				MemberCount:   0,
				ExpectedCount: 96,
				Value:         series.Null,
				Valid:         false,
			},
		},
	}
}

func TestResultStoreSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewResultStore(db)
	seriesID := uuid.New()
	res := sampleResult(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(queryUpsertWindow))
	prep.ExpectExec().WithArgs(
		seriesID, "flow", "P1D", "max",
		res.Windows[0].Start, res.Windows[0].End, res.Windows[0].Anchor,
		int64(96), int64(96), "12.5", res.Windows[0].At.UTC(), true, sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(
		seriesID, "flow", "P1D", "max",
		res.Windows[1].Start, res.Windows[1].End, res.Windows[1].Anchor,
		int64(0), int64(96), nil, nil, false, sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), seriesID, res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreSaveRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewResultStore(db)
	seriesID := uuid.New()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(queryUpsertWindow))
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = store.Save(context.Background(), seriesID, sampleResult(t))
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreQueryRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewResultStore(db)
	seriesID := uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	occurred := start.Add(3 * time.Hour)
	updated := start.Add(40 * 24 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"window_start", "window_end", "anchor_at",
		"member_count", "expected_count", "value", "occurred_at", "is_valid", "updated_at",
	}).
		AddRow(start, start.AddDate(0, 0, 1), start, int64(96), int64(96), "4560", occurred, true, updated).
		AddRow(start.AddDate(0, 0, 1), start.AddDate(0, 0, 2), start.AddDate(0, 0, 1), int64(0), int64(96), nil, nil, false, updated)

	mock.ExpectQuery(regexp.QuoteMeta(queryRangeWindows)).
		WithArgs(seriesID, "flow", "P1D", "sum", start, end).
		WillReturnRows(rows)

	got, err := store.QueryRange(context.Background(), seriesID, "flow", "P1D", "sum", start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NotNil(t, got[0].Value)
	require.Equal(t, "4560", got[0].Value.String())
	require.NotNil(t, got[0].OccurredAt)
	require.True(t, got[0].OccurredAt.Equal(occurred))
	require.True(t, got[0].Valid)

	require.Nil(t, got[1].Value)
	require.Nil(t, got[1].OccurredAt)
	require.False(t, got[1].Valid)
}

func TestResultStoreQueryRangeBadValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewResultStore(db)
	seriesID := uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"window_start", "window_end", "anchor_at",
		"member_count", "expected_count", "value", "occurred_at", "is_valid", "updated_at",
	}).AddRow(start, start.AddDate(0, 0, 1), start, int64(1), int64(1), "not-a-number", nil, true, start)

	mock.ExpectQuery(regexp.QuoteMeta(queryRangeWindows)).
		WillReturnRows(rows)

	_, err = store.QueryRange(context.Background(), seriesID, "flow", "P1D", "sum", start, start.AddDate(0, 0, 2))
	require.ErrorContains(t, err, "parse value")
}

func TestResultStoreDeleteSeries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewResultStore(db)
	seriesID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(queryDeleteSeries)).
		WithArgs(seriesID).
		WillReturnResult(sqlmock.NewResult(0, 31))

	n, err := store.DeleteSeries(context.Background(), seriesID)
	require.NoError(t, err)
	require.Equal(t, int64(31), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
