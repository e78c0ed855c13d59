// Package vocab implements IndexedVocab, the append-only string<->id
// bimap backing the token and docid tables (spec.md §4.5). The ordered
// forward index is a google/btree.BTreeG, generalized from the teacher's
// classic *btree.BTree in internal/index/BTreeIndex.go; persistence is
// LZ4-framed the way _examples/original_source/src/odch.rs frames its
// table with lz4_flex::frame.
package vocab

import (
	"bufio"
	"os"
	"sync"

	"github.com/google/btree"
	"github.com/pierrec/lz4/v4"

	"calret/internal/calerr"
	"calret/internal/wire"
)

// vocabItem is the btree element: token text ordered lexicographically,
// carrying the assigned id for fast forward lookup.
type vocabItem struct {
	token string
	id    uint32
}

func lessItem(a, b vocabItem) bool { return a.token < b.token }

// Vocab is an append-only bimap from string to a dense id starting at 1
// (id 0 is the reserved sentinel, spec.md §9.4). Once Finalize is
// called, GetOrInsert on an unknown token is a hard error rather than a
// silent insert (odch.rs's finalized flag).
type Vocab struct {
	mu        sync.RWMutex
	forward   *btree.BTreeG[vocabItem]
	reverse   []string // reverse[id-1] == token
	finalized bool
}

// New creates an empty, writable Vocab.
func New() *Vocab {
	return &Vocab{
		forward: btree.NewG(32, lessItem),
	}
}

// GetOrInsert returns the id for token, inserting it with the next
// sequential id if unseen. Returns an Invariant error if the vocab is
// finalized and token is unknown.
func (v *Vocab) GetOrInsert(token string) (uint32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if item, ok := v.forward.Get(vocabItem{token: token}); ok {
		return item.id, nil
	}
	if v.finalized {
		return 0, calerr.Invariantf("vocab: GetOrInsert(%q) on finalized vocab", token)
	}
	id := uint32(len(v.reverse) + 1)
	v.forward.ReplaceOrInsert(vocabItem{token: token, id: id})
	v.reverse = append(v.reverse, token)
	return id, nil
}

// Lookup returns the id for token without inserting, and whether it was
// found.
func (v *Vocab) Lookup(token string) (uint32, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	item, ok := v.forward.Get(vocabItem{token: token})
	if !ok {
		return 0, false
	}
	return item.id, true
}

// Token returns the string for id (1-based). Returns an error if id is
// out of range.
func (v *Vocab) Token(id uint32) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if id == 0 || int(id) > len(v.reverse) {
		return "", calerr.Invariantf("vocab: id %d out of range [1,%d]", id, len(v.reverse))
	}
	return v.reverse[id-1], nil
}

// Len returns the number of distinct tokens in the vocab.
func (v *Vocab) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.reverse)
}

// Finalize forbids further inserts; subsequent GetOrInsert calls on
// unknown tokens return an error instead of growing the table.
func (v *Vocab) Finalize() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finalized = true
}

// Finalized reports whether Finalize has been called.
func (v *Vocab) Finalized() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.finalized
}

// Ascend calls fn for every (token, id) pair in lexicographic token
// order, stopping early if fn returns false.
func (v *Vocab) Ascend(fn func(token string, id uint32) bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	v.forward.Ascend(func(it vocabItem) bool {
		return fn(it.token, it.id)
	})
}

// Save writes the vocab to path as an LZ4-framed sequence of
// length-prefixed strings in id order (1..Len()); ids are recovered on
// Load purely from table position, so the forward index is not
// persisted directly.
func (v *Vocab) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return calerr.IOErr(path, err)
	}
	defer f.Close()

	zw := lz4.NewWriter(f)
	bw := bufio.NewWriter(zw)

	if err := wire.WriteUint32(bw, uint32(len(v.reverse))); err != nil {
		return calerr.IOErr(path, err)
	}
	for _, tok := range v.reverse {
		if err := wire.WriteString(bw, tok); err != nil {
			return calerr.IOErr(path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return calerr.IOErr(path, err)
	}
	if err := zw.Close(); err != nil {
		return calerr.IOErr(path, err)
	}
	return nil
}

// Load reads a Vocab previously written by Save. The returned Vocab is
// not finalized; call Finalize explicitly if the caller wants the hard-
// error-on-unknown-token behavior.
func Load(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, calerr.NotFoundf(path, "vocab file not found")
		}
		return nil, calerr.IOErr(path, err)
	}
	defer f.Close()

	zr := lz4.NewReader(f)
	br := bufio.NewReader(zr)

	n, err := wire.ReadUint32(br)
	if err != nil {
		return nil, calerr.Corruptf(path, "reading vocab count: %w", err)
	}

	v := New()
	v.reverse = make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		tok, err := wire.ReadString(br)
		if err != nil {
			return nil, calerr.Corruptf(path, "reading vocab token %d: %w", i, err)
		}
		id := uint32(len(v.reverse) + 1)
		v.forward.ReplaceOrInsert(vocabItem{token: tok, id: id})
		v.reverse = append(v.reverse, tok)
	}
	return v, nil
}
