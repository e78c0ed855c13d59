// Package postings implements PostingList and InvertedFile (spec.md
// §4.4): compressed per-token posting lists backed by a dense,
// mmap-read offsets table, with an LRU read cache in front of the
// posting-list file. Grounded on
// _examples/original_source/src/index.rs's PostingList/InvertedFile,
// generalizing its HashMap<usize,PostInfo> offsets to the dense array
// spec.md mandates, and its HashMap cache to internal/lru.
package postings

import (
	"sort"

	"calret/internal/calerr"
	"calret/internal/codec"
)

// Posting is one (docid, term frequency) pair within a token's posting
// list.
type Posting struct {
	DocID uint32
	TF    uint32
}

// PostingList accumulates Postings for a single token, in increasing
// docid order (spec.md §4.4 invariant: AddPosting must be called with
// strictly increasing docid).
type PostingList struct {
	Postings []Posting
}

// AddPosting appends a posting. docid must be strictly greater than the
// last docid added, and docid/tf must both be >= 1.
func (pl *PostingList) AddPosting(docid, tf uint32) error {
	if docid == 0 {
		return calerr.Invariantf("postings: docid must be >= 1")
	}
	if tf == 0 {
		return calerr.Invariantf("postings: tf must be >= 1")
	}
	if n := len(pl.Postings); n > 0 && docid <= pl.Postings[n-1].DocID {
		return calerr.Invariantf("postings: docid %d out of order (last %d)", docid, pl.Postings[n-1].DocID)
	}
	pl.Postings = append(pl.Postings, Posting{DocID: docid, TF: tf})
	return nil
}

// BytesRequired returns the serialized length in bytes, matching
// Serialize exactly.
func (pl *PostingList) BytesRequired() int {
	n := 0
	last := uint32(0)
	for _, p := range pl.Postings {
		n += codec.MagicBytesRequired(p.DocID-last, p.TF)
		last = p.DocID
	}
	return n
}

// Serialize encodes the posting list as a sequence of magic-encoded
// (docgap, tf) pairs.
func (pl *PostingList) Serialize() []byte {
	buf := make([]byte, 0, pl.BytesRequired())
	last := uint32(0)
	for _, p := range pl.Postings {
		buf = codec.EncodeMagic(buf, p.DocID-last, p.TF)
		last = p.DocID
	}
	return buf
}

// DeserializePostingList decodes a posting list previously produced by
// Serialize.
func DeserializePostingList(buf []byte) (*PostingList, error) {
	pl := &PostingList{}
	off := 0
	last := uint32(0)
	for off < len(buf) {
		gap, tf, next, err := codec.DecodeMagic(buf, off)
		if err != nil {
			return nil, calerr.Corruptf("", "decoding posting list: %w", err)
		}
		docid := last + gap
		pl.Postings = append(pl.Postings, Posting{DocID: docid, TF: tf})
		last = docid
		off = next
	}
	return pl, nil
}

// sortPostings puts Postings in ascending docid order before
// FlushPostings serializes them. AddPosting already rejects
// out-of-order docids, so lists built through it are left unchanged.
func (pl *PostingList) sortPostings() {
	sort.Slice(pl.Postings, func(i, j int) bool { return pl.Postings[i].DocID < pl.Postings[j].DocID })
}
