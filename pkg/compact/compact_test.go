package compact_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/compact"
)

func TestLookupRoundTripPlain(t *testing.T) {
	values := []uint64{3, 17, 0, 255, 65536, 9, 42}
	buf, err := compact.BuildPlain(values, 3)
	require.NoError(t, err)

	tbl, err := compact.Open(buf)
	require.NoError(t, err)
	require.Equal(t, len(values), tbl.Len())

	for i, v := range values {
		got, err := tbl.Lookup(i)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

// S2 from the specification.
func TestS2CompactTableRoundTrip(t *testing.T) {
	values := []uint64{0, 10, 21, 35, 47, 60}
	buf, err := compact.BuildDelta(values, 4)
	require.NoError(t, err)

	tbl, err := compact.Open(buf)
	require.NoError(t, err)
	require.Equal(t, 6, tbl.Len())

	got, err := tbl.All()
	require.NoError(t, err)
	require.Equal(t, values, got)

	for i, v := range values {
		lv, err := tbl.Lookup(i)
		require.NoError(t, err)
		require.Equal(t, v, lv)
	}
}

func TestLookupOutOfRange(t *testing.T) {
	buf, err := compact.BuildPlain([]uint64{1, 2, 3}, 2)
	require.NoError(t, err)
	tbl, err := compact.Open(buf)
	require.NoError(t, err)

	_, err = tbl.Lookup(-1)
	require.Error(t, err)
	_, err = tbl.Lookup(3)
	require.Error(t, err)
}

func TestEmptyTable(t *testing.T) {
	buf, err := compact.BuildPlain(nil, 4)
	require.NoError(t, err)
	tbl, err := compact.Open(buf)
	require.NoError(t, err)
	require.Equal(t, 0, tbl.Len())
}

func TestOpenRejectsTruncatedHeader(t *testing.T) {
	_, err := compact.Open([]byte{1, 2, 3})
	require.Error(t, err)
	var se *compact.StructuralError
	require.ErrorAs(t, err, &se)
}

func TestDeltaAcrossManyBlocks(t *testing.T) {
	values := make([]uint64, 50)
	for i := range values {
		values[i] = uint64(i * 3)
	}
	buf, err := compact.BuildDelta(values, 5)
	require.NoError(t, err)
	tbl, err := compact.Open(buf)
	require.NoError(t, err)

	for i, v := range values {
		got, err := tbl.Lookup(i)
		require.NoError(t, err)
		require.Equalf(t, v, got, "index %d", i)
	}
}
