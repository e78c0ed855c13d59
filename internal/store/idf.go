package store

import (
	"bufio"
	"os"

	"calret/internal/calerr"
	"calret/internal/wire"
)

// LoadIDF reads a dense []float32 indexed by tokid (index 0 unused,
// spec.md §9.4), the SUPPLEMENTED FEATURES item 5 resolution of the
// original's sparse HashMap<u32,f32>.
func LoadIDF(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, calerr.NotFoundf(path, "idf table not found")
		}
		return nil, calerr.IOErr(path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	n, err := wire.ReadUint32(br)
	if err != nil {
		return nil, calerr.Corruptf(path, "reading idf count: %w", err)
	}
	idf := make([]float32, n)
	for i := range idf {
		v, err := wire.ReadFloat32(br)
		if err != nil {
			return nil, calerr.Corruptf(path, "reading idf[%d]: %w", i, err)
		}
		idf[i] = v
	}
	return idf, nil
}

// SaveIDF writes the dense idf table to path.
func SaveIDF(path string, idf []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return calerr.IOErr(path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := wire.WriteUint32(bw, uint32(len(idf))); err != nil {
		return calerr.IOErr(path, err)
	}
	for _, v := range idf {
		if err := wire.WriteFloat32(bw, v); err != nil {
			return calerr.IOErr(path, err)
		}
	}
	return bw.Flush()
}
