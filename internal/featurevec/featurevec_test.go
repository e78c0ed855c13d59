package featurevec

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T, dir string) (string, string) {
	t.Helper()
	path := filepath.Join(dir, "fv.bin")
	offPath := filepath.Join(dir, "fv.offsets")

	w, err := NewWriter(path)
	require.NoError(t, err)
	vecs := []*Vector{
		{DocID: 1, ExtID: "doc-one", Features: []FeaturePair{{ID: 1, Value: 1.0}, {ID: 3, Value: 2.0}}, Norm: float32(math.Sqrt(5))},
		{DocID: 2, ExtID: "doc-two", Features: []FeaturePair{{ID: 2, Value: 4.0}}, Norm: 4.0},
		{DocID: 3, ExtID: "doc-three", Features: nil, Norm: 0},
	}
	for _, v := range vecs {
		require.NoError(t, w.Append(v))
	}
	require.NoError(t, w.Close(offPath))
	return path, offPath
}

func TestWriterReaderRandomAccess(t *testing.T) {
	dir := t.TempDir()
	path, offPath := writeSample(t, dir)

	r, err := Open(path, offPath)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 3, r.NumDocs())

	v1, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v1.DocID)
	require.Equal(t, []FeaturePair{{ID: 1, Value: 1.0}, {ID: 3, Value: 2.0}}, v1.Features)

	v2, err := r.Get(2)
	require.NoError(t, err)
	require.Equal(t, float32(4.0), v2.Norm)
}

func TestExtIDRoundTripsWithIntID(t *testing.T) {
	dir := t.TempDir()
	path, offPath := writeSample(t, dir)

	r, err := Open(path, offPath)
	require.NoError(t, err)
	defer r.Close()

	intidByExtID := map[string]uint32{"doc-one": 1, "doc-two": 2, "doc-three": 3}
	for extid, intid := range intidByExtID {
		v, err := r.Get(intid)
		require.NoError(t, err)
		require.Equal(t, extid, v.ExtID, "decoded record's extid must map back to the intid it was fetched by")
		require.Equal(t, intid, v.DocID)
	}
}

func TestGetOutOfRangeDocid(t *testing.T) {
	dir := t.TempDir()
	path, offPath := writeSample(t, dir)
	r, err := Open(path, offPath)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Get(0)
	require.Error(t, err)
	_, err = r.Get(999)
	require.Error(t, err)
}

func TestScanVisitsAllInOrder(t *testing.T) {
	dir := t.TempDir()
	path, offPath := writeSample(t, dir)
	r, err := Open(path, offPath)
	require.NoError(t, err)
	defer r.Close()

	var seen []uint32
	err = r.Scan(func(v *Vector) (bool, error) {
		seen = append(seen, v.DocID)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, seen)
}

func TestScanStopsEarly(t *testing.T) {
	dir := t.TempDir()
	path, offPath := writeSample(t, dir)
	r, err := Open(path, offPath)
	require.NoError(t, err)
	defer r.Close()

	var seen []uint32
	err = r.Scan(func(v *Vector) (bool, error) {
		seen = append(seen, v.DocID)
		return v.DocID < 2, nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, seen)
}

func TestAppendRejectsOutOfSequenceDocid(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "fv.bin"))
	require.NoError(t, err)
	err = w.Append(&Vector{DocID: 2})
	require.Error(t, err)
}

func TestSquaredNorm(t *testing.T) {
	v := &Vector{Norm: 3.0}
	require.InDelta(t, 9.0, v.SquaredNorm(), 1e-9)
}
