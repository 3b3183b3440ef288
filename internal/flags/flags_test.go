package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegister_AllocatesSequentialBits(t *testing.T) {
	r := NewRegistry("qc")

	a, err := r.Register("out_of_range")
	require.NoError(t, err)
	require.Equal(t, Mask(1), a)

	b, err := r.Register("spike")
	require.NoError(t, err)
	require.Equal(t, Mask(2), b)

	c, err := r.Register("low_battery")
	require.NoError(t, err)
	require.Equal(t, Mask(4), c)
}

func TestRegister_NameCollision(t *testing.T) {
	r := NewRegistry("qc")
	_, err := r.Register("spike")
	require.NoError(t, err)

	_, err = r.Register("spike")
	require.ErrorIs(t, err, ErrNameCollision)
}

func TestRegister_NeverReusesBits(t *testing.T) {
	r := NewRegistry("qc")
	_, err := r.Register("a")
	require.NoError(t, err)
	_, err = r.Register("b")
	require.NoError(t, err)

	// Simulate deprecation-and-replacement: the replacement gets a fresh
	// bit above everything allocated so far, and the original name stays
	// reserved.
	c, err := r.Register("b_deprecated_replacement")
	require.NoError(t, err)
	require.Equal(t, Mask(4), c)

	_, err = r.Register("b")
	require.ErrorIs(t, err, ErrNameCollision)
}

func TestCombineDecodeClear(t *testing.T) {
	r := NewRegistry("qc")
	for _, name := range []string{"A", "B", "C"} {
		_, err := r.Register(name)
		require.NoError(t, err)
	}

	m, err := r.Combine(0, "A")
	require.NoError(t, err)
	require.Contains(t, r.Decode(m), "A")

	m, err = r.Combine(m, "C")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C"}, r.Decode(m))

	set, err := r.IsSet(m, "A")
	require.NoError(t, err)
	require.True(t, set)
	set, err = r.IsSet(m, "B")
	require.NoError(t, err)
	require.False(t, set)

	m, err = r.Clear(m, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"C"}, r.Decode(m))

	// Clearing an unset flag is a no-op.
	m2, err := r.Clear(m, "A")
	require.NoError(t, err)
	require.Equal(t, m, m2)

	_, err = r.Combine(m, "nope")
	require.ErrorIs(t, err, ErrUnknownFlag)
}

func TestLoadSystems(t *testing.T) {
	def := []byte(`
systems:
  quality_control:
    out_of_range: 1
    spike: 2
    low_battery: 4
  provenance:
    infilled: 1
`)
	systems, err := LoadSystems(def)
	require.NoError(t, err)
	require.Len(t, systems, 2)

	qc := systems["quality_control"]
	bit, err := qc.Bit("spike")
	require.NoError(t, err)
	require.Equal(t, Mask(2), bit)
	require.Equal(t, []string{"out_of_range", "spike", "low_battery"}, qc.Names())

	// New registrations continue above the configured bits.
	next, err := qc.Register("icing")
	require.NoError(t, err)
	require.Equal(t, Mask(8), next)
}

func TestLoadSystems_RejectsNonBitValues(t *testing.T) {
	_, err := LoadSystems([]byte("systems:\n  bad:\n    combo: 3\n"))
	require.ErrorIs(t, err, ErrInvalidBit)

	_, err = LoadSystems([]byte("systems:\n  bad:\n    zero: 0\n"))
	require.ErrorIs(t, err, ErrInvalidBit)

	_, err = LoadSystems([]byte("systems:\n  bad:\n    a: 2\n    b: 2\n"))
	require.ErrorIs(t, err, ErrNameCollision)
}

func TestManager(t *testing.T) {
	m := NewManager()
	qc := NewRegistry("qc")
	_, err := qc.Register("suspect")
	require.NoError(t, err)

	require.NoError(t, m.RegisterSystem(qc))
	require.ErrorIs(t, m.RegisterSystem(qc), ErrNameCollision)

	require.NoError(t, m.RegisterColumn("flow_qc", "flow", "qc"))
	require.ErrorIs(t, m.RegisterColumn("flow_qc", "flow", "qc"), ErrColumnExists)
	require.ErrorIs(t, m.RegisterColumn("x", "flow", "missing"), ErrSystemNotFound)

	col, err := m.Column("flow_qc")
	require.NoError(t, err)
	require.Equal(t, "flow", col.Base)

	masks, err := col.AddFlag(make([]Mask, 3), "suspect", func(i int) bool { return i == 1 })
	require.NoError(t, err)
	require.Equal(t, []Mask{0, 1, 0}, masks)

	masks, err = col.RemoveFlag(masks, "suspect", nil)
	require.NoError(t, err)
	require.Equal(t, []Mask{0, 0, 0}, masks)
}
