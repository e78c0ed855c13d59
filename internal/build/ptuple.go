package build

import (
	"io"

	"calret/internal/extsort"
	"calret/internal/wire"
)

// PTuple is the map-reduce build's spill record: one distinct
// (token, document) pair plus its term frequency, sortable by
// (Tok, DocID) so the reduce pass can group all postings for one
// token together. Grounded on
// _examples/original_source/src/ptuple.rs's PTuple{tok, docid, count}.
type PTuple struct {
	Tok   uint32
	DocID uint32
	Count uint32
}

func lessPTuple(a, b PTuple) bool {
	if a.Tok != b.Tok {
		return a.Tok < b.Tok
	}
	return a.DocID < b.DocID
}

var ptupleCodec = extsort.Codec[PTuple]{
	Encode: func(w io.Writer, v PTuple) error {
		if err := wire.WriteUint32(w, v.Tok); err != nil {
			return err
		}
		if err := wire.WriteUint32(w, v.DocID); err != nil {
			return err
		}
		return wire.WriteUint32(w, v.Count)
	},
	Decode: func(r io.Reader) (PTuple, error) {
		tok, err := wire.ReadUint32(r)
		if err != nil {
			return PTuple{}, err
		}
		docid, err := wire.ReadUint32(r)
		if err != nil {
			return PTuple{}, err
		}
		count, err := wire.ReadUint32(r)
		if err != nil {
			return PTuple{}, err
		}
		return PTuple{Tok: tok, DocID: docid, Count: count}, nil
	},
}
