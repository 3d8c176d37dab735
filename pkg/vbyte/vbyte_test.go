package vbyte_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/vbyte"
)

func TestUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	for _, v := range values {
		buf := vbyte.AppendUint64(nil, v)
		got, n, err := vbyte.Uint64(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestReaderTruncated(t *testing.T) {
	buf := vbyte.AppendUint64(nil, 1<<20)
	_, _, err := vbyte.Uint64(buf[:len(buf)-1])
	require.ErrorIs(t, err, vbyte.ErrTruncated)
}

func TestDeltaRoundTrip(t *testing.T) {
	xs := []uint64{5, 9, 9, 20, 21, 1000}
	buf := vbyte.EncodeDelta(0, xs)
	got, err := vbyte.DecodeDelta(buf, 0, len(xs))
	require.NoError(t, err)
	require.Equal(t, xs, got)
}

func TestDeltaWithInitialValue(t *testing.T) {
	xs := []uint64{12, 15, 30}
	buf := vbyte.EncodeDelta(10, xs)
	got, err := vbyte.DecodeDelta(buf, 10, len(xs))
	require.NoError(t, err)
	require.Equal(t, xs, got)
}

func TestPlainRoundTrip(t *testing.T) {
	xs := []uint64{3, 1, 4, 1, 5, 9, 2, 6}
	buf := vbyte.EncodePlain(xs)
	got, err := vbyte.DecodePlain(buf, len(xs))
	require.NoError(t, err)
	require.Equal(t, xs, got)
}

func TestNextNErrorWraps(t *testing.T) {
	r := vbyte.NewReader(vbyte.AppendUint64(nil, 1))
	_, err := r.NextN(2, nil)
	require.Error(t, err)
}
