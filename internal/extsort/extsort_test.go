package extsort

import (
	"encoding/binary"
	"io"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

var intCodec = Codec[int32]{
	Encode: func(w io.Writer, v int32) error {
		return binary.Write(w, binary.LittleEndian, v)
	},
	Decode: func(r io.Reader) (int32, error) {
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	},
}

func sliceSource(vals []int32) Source[int32] {
	i := 0
	return func() (int32, error) {
		if i >= len(vals) {
			return 0, io.EOF
		}
		v := vals[i]
		i++
		return v, nil
	}
}

func TestExternalSortSingleRun(t *testing.T) {
	in := []int32{5, 3, 1, 4, 2}
	var out []int32
	err := Run(sliceSource(in), func(v int32) error {
		out = append(out, v)
		return nil
	}, func(a, b int32) bool { return a < b }, intCodec, 100, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3, 4, 5}, out)
}

func TestExternalSortMultipleRuns(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	in := make([]int32, 10_000)
	for i := range in {
		in[i] = r.Int31n(1_000_000)
	}
	var out []int32
	err := Run(sliceSource(in), func(v int32) error {
		out = append(out, v)
		return nil
	}, func(a, b int32) bool { return a < b }, intCodec, 137, filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	require.Len(t, out, len(in))
	require.True(t, isSorted(out))

	expected := append([]int32(nil), in...)
	sort.Slice(expected, func(i, j int) bool { return expected[i] < expected[j] })
	require.Equal(t, expected, out)
}

func TestExternalSortEmptyInput(t *testing.T) {
	var out []int32
	err := Run(sliceSource(nil), func(v int32) error {
		out = append(out, v)
		return nil
	}, func(a, b int32) bool { return a < b }, intCodec, 10, t.TempDir())
	require.NoError(t, err)
	require.Empty(t, out)
}

func isSorted(vs []int32) bool {
	for i := 1; i < len(vs); i++ {
		if vs[i-1] > vs[i] {
			return false
		}
	}
	return true
}
