package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ts(min int) time.Time {
	return time.Date(2024, 1, 1, 0, min, 0, 0, time.UTC)
}

func TestWithColumn_LengthMismatch(t *testing.T) {
	s := New([]time.Time{ts(0), ts(1)})
	_, err := s.WithColumn("flow", []Value{Of(1)})
	require.Error(t, err)
}

func TestWithColumn_DoesNotMutateReceiver(t *testing.T) {
	s := New([]time.Time{ts(0), ts(1)})
	s2, err := s.WithColumn("flow", []Value{Of(1), Of(2)})
	require.NoError(t, err)

	require.False(t, s.HasColumn("flow"))
	require.True(t, s2.HasColumn("flow"))

	v, err := s2.Value("flow", 1)
	require.NoError(t, err)
	require.Equal(t, 2.0, v.Float)

	_, err = s.Value("flow", 0)
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func TestSorted_IsStable(t *testing.T) {
	s := New([]time.Time{ts(2), ts(0), ts(2), ts(1)})
	s, err := s.WithColumn("v", []Value{Of(10), Of(20), Of(30), Of(40)})
	require.NoError(t, err)

	require.False(t, s.IsSorted())
	sorted := s.Sorted()
	require.True(t, sorted.IsSorted())

	col, err := sorted.Column("v")
	require.NoError(t, err)
	// Duplicate ts(2) rows keep original relative order: 10 before 30.
	require.Equal(t, []Value{Of(20), Of(40), Of(10), Of(30)}, col)
}

func TestSelect(t *testing.T) {
	s := New([]time.Time{ts(0), ts(1), ts(2)})
	s, err := s.WithColumn("v", []Value{Of(1), Null, Of(3)})
	require.NoError(t, err)

	sub := s.Select([]int{2, 0})
	require.Equal(t, 2, sub.Len())
	require.Equal(t, ts(2), sub.Time(0))

	col, err := sub.Column("v")
	require.NoError(t, err)
	require.Equal(t, []Value{Of(3), Of(1)}, col)
}

func TestValue_NullHandling(t *testing.T) {
	require.True(t, Null.Null)
	require.False(t, Of(1.5).Null)
	require.False(t, Null.IsNaN())
}
