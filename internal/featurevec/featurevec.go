// Package featurevec implements the FeatureVector file (spec.md §4.5):
// one sparse per-document feature vector written sequentially during
// build, with a dense offsets table for random access and a Scan
// iterator for the full-scan scorer. Grounded on
// _examples/original_source/src/lib.rs's FeatureVec/FeaturePair and
// src/store.rs's save_fv/fv_offsets, using calret's wire framing
// instead of bincode.
package featurevec

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"calret/internal/calerr"
	"calret/internal/wire"
)

// FeaturePair is one (tokid, weight) component of a sparse feature
// vector.
type FeaturePair struct {
	ID    uint32
	Value float32
}

// Vector is one document's sparse bag-of-features representation.
// ExtID is the document's external id, carried in the record itself
// the way the original's FeatureVec{docid: String, ...} does (spec.md
// §3), so a decoded record's extid can be checked against its intid
// without a separate vocab lookup. Norm is the true L2 norm
// (sqrt(sum of squares)) of Features, per SPEC_FULL.md's resolution of
// the squared_norm/L2-norm naming question: this field is never the
// square.
type Vector struct {
	DocID    uint32
	ExtID    string
	Features []FeaturePair
	Norm     float32
}

// SquaredNorm returns Norm squared, the quantity the Pegasos update
// math actually needs.
func (v *Vector) SquaredNorm() float64 {
	n := float64(v.Norm)
	return n * n
}

func writeVector(w io.Writer, v *Vector) error {
	if err := wire.WriteUint32(w, v.DocID); err != nil {
		return err
	}
	if err := wire.WriteString(w, v.ExtID); err != nil {
		return err
	}
	if err := wire.WriteFloat32(w, v.Norm); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, uint32(len(v.Features))); err != nil {
		return err
	}
	for _, p := range v.Features {
		if err := wire.WriteUint32(w, p.ID); err != nil {
			return err
		}
		if err := wire.WriteFloat32(w, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func readVector(r io.Reader) (*Vector, error) {
	docid, err := wire.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	extid, err := wire.ReadString(r)
	if err != nil {
		return nil, err
	}
	norm, err := wire.ReadFloat32(r)
	if err != nil {
		return nil, err
	}
	n, err := wire.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	features := make([]FeaturePair, n)
	for i := range features {
		id, err := wire.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		val, err := wire.ReadFloat32(r)
		if err != nil {
			return nil, err
		}
		features[i] = FeaturePair{ID: id, Value: val}
	}
	return &Vector{DocID: docid, ExtID: extid, Features: features, Norm: norm}, nil
}

const offsetRecordSize = 8

// Writer appends Vectors sequentially to a file and records each
// doc's starting byte offset, dense-indexed by intid (spec.md §9.4:
// intid >= 1, index 0 reserved).
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	offsets []uint64
	pos     uint64
}

// NewWriter creates a FeatureVector file at path, truncating any
// existing contents.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, calerr.IOErr(path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriter(f), offsets: []uint64{0}}, nil
}

// Append writes v and records its offset at index v.DocID. Callers must
// append in increasing DocID order starting at 1.
func (w *Writer) Append(v *Vector) error {
	if v.DocID == 0 {
		return calerr.Invariantf("featurevec: docid must be >= 1")
	}
	if int(v.DocID) != len(w.offsets) {
		return calerr.Invariantf("featurevec: docid %d out of sequence (expected %d)", v.DocID, len(w.offsets))
	}
	w.offsets = append(w.offsets, w.pos)
	start := w.pos
	if err := writeVector(w.bw, v); err != nil {
		return calerr.IOErr("", err)
	}
	n := vectorByteLen(v)
	w.pos = start + uint64(n)
	return nil
}

func vectorByteLen(v *Vector) int {
	return 4 + 4 + len(v.ExtID) + 4 + 4 + len(v.Features)*8
}

// Close flushes the feature-vector data and writes the offsets table to
// offsetsPath.
func (w *Writer) Close(offsetsPath string) error {
	if err := w.bw.Flush(); err != nil {
		return calerr.IOErr("", err)
	}
	if err := w.f.Close(); err != nil {
		return calerr.IOErr("", err)
	}
	of, err := os.Create(offsetsPath)
	if err != nil {
		return calerr.IOErr(offsetsPath, err)
	}
	defer of.Close()
	buf := make([]byte, len(w.offsets)*offsetRecordSize)
	for i, off := range w.offsets {
		binary.LittleEndian.PutUint64(buf[i*offsetRecordSize:(i+1)*offsetRecordSize], off)
	}
	if _, err := of.Write(buf); err != nil {
		return calerr.IOErr(offsetsPath, err)
	}
	return nil
}

// Reader supports both random access (via the offsets table) and
// sequential Scan (for the full-scan scorer, spec.md §4.9).
type Reader struct {
	f       *os.File
	path    string
	offsets []uint64
}

// Open opens a FeatureVector file and its offsets table for reading.
func Open(path, offsetsPath string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, calerr.IOErr(path, err)
	}
	raw, err := os.ReadFile(offsetsPath)
	if err != nil {
		f.Close()
		return nil, calerr.IOErr(offsetsPath, err)
	}
	if len(raw)%offsetRecordSize != 0 {
		f.Close()
		return nil, calerr.Corruptf(offsetsPath, "offsets file size %d not a multiple of %d", len(raw), offsetRecordSize)
	}
	offsets := make([]uint64, len(raw)/offsetRecordSize)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(raw[i*offsetRecordSize : (i+1)*offsetRecordSize])
	}
	return &Reader{f: f, path: path, offsets: offsets}, nil
}

// Get returns the Vector for docid via random access.
func (r *Reader) Get(docid uint32) (*Vector, error) {
	if docid == 0 || int(docid) >= len(r.offsets) {
		return nil, calerr.NotFoundf(r.path, "docid %d out of range", docid)
	}
	if _, err := r.f.Seek(int64(r.offsets[docid]), io.SeekStart); err != nil {
		return nil, calerr.IOErr(r.path, err)
	}
	return readVector(r.f)
}

// NumDocs returns the number of vectors stored.
func (r *Reader) NumDocs() int { return len(r.offsets) - 1 }

// Scan sequentially reads every Vector in docid order, calling fn for
// each. Scan stops early if fn returns false or a non-nil error.
func (r *Reader) Scan(fn func(*Vector) (bool, error)) error {
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return calerr.IOErr(r.path, err)
	}
	br := bufio.NewReader(r.f)
	for {
		v, err := readVector(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return calerr.Corruptf(r.path, "reading feature vector: %w", err)
		}
		cont, err := fn(v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
