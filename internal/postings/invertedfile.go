package postings

import (
	"encoding/binary"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"calret/internal/calerr"
	"calret/internal/lru"
)

const offsetRecordSize = 12 // 8-byte file offset + 4-byte length

// InvertedFile is the on-disk posting-list store: a sequentially
// written file of serialized PostingLists plus a dense offsets table
// indexed by tokid, fronted by an LRU read cache that GetPostingList
// fills on a miss. Posting lists are written through Builder and
// FlushPostings, not through this cache.
type InvertedFile struct {
	postingsPath string
	offsetsPath  string

	cache *lru.Cache[uint32, *PostingList]

	// read-path state, populated by Open
	postingsFile *os.File
	offsetsMmap  []byte
	maxTokid     uint32
}

// Builder accumulates posting lists in memory keyed by tokid. It is
// intentionally not cache-bounded: both IndexBuilder variants (spec.md
// §4.6) either hold the whole index in memory (the in-memory variant)
// or checkpoint-and-reset a Builder before it grows unbounded (the
// map-reduce variant), so silently evicting postings here would lose
// data rather than merely slow a cache hit.
type Builder struct {
	entries  map[uint32]*PostingList
	postings int
}

// NewBuilder creates an empty posting-list accumulator.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[uint32]*PostingList)}
}

// AddPosting appends (docid, tf) to tokid's posting list, creating it
// if absent. docid must increase monotonically per tokid across calls
// (spec.md §4.4).
func (b *Builder) AddPosting(tokid, docid, tf uint32) error {
	pl, ok := b.entries[tokid]
	if !ok {
		pl = &PostingList{}
		b.entries[tokid] = pl
	}
	if err := pl.AddPosting(docid, tf); err != nil {
		return err
	}
	b.postings++
	return nil
}

// PostingCount returns the number of postings accumulated so far, the
// signal the map-reduce builder checkpoints on (spec.md §4.2).
func (b *Builder) PostingCount() int { return b.postings }

// DF returns the document frequency (posting-list length) accumulated
// so far for tokid, used to compute the dense idf table for builders
// that never checkpoint (the in-memory variant).
func (b *Builder) DF(tokid uint32) int {
	pl, ok := b.entries[tokid]
	if !ok {
		return 0
	}
	return len(pl.Postings)
}

// Reset clears the accumulator, keeping the allocated map so repeated
// checkpoint cycles don't re-grow from nothing (map-reduce builder).
func (b *Builder) Reset() {
	clear(b.entries)
	b.postings = 0
}

// OffsetTable is the dense, in-memory (offset, length) table for
// tokids [0, maxTokid], built up across one or more Builder checkpoint
// flushes and written to disk exactly once by WriteTo. Index 0 is the
// reserved sentinel and is never populated.
type OffsetTable struct {
	maxTokid uint32
	raw      []byte
}

// NewOffsetTable allocates a table sized to cover tokids [0, maxTokid].
func NewOffsetTable(maxTokid uint32) *OffsetTable {
	return &OffsetTable{maxTokid: maxTokid, raw: make([]byte, (int(maxTokid)+1)*offsetRecordSize)}
}

func (t *OffsetTable) set(tokid uint32, offset uint64, length uint32) {
	rec := t.raw[tokid*offsetRecordSize : (tokid+1)*offsetRecordSize]
	binary.LittleEndian.PutUint64(rec[0:8], offset)
	binary.LittleEndian.PutUint32(rec[8:12], length)
}

// WriteTo writes the accumulated table to path.
func (t *OffsetTable) WriteTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return calerr.IOErr(path, err)
	}
	defer f.Close()
	if _, err := f.Write(t.raw); err != nil {
		return calerr.IOErr(path, err)
	}
	return nil
}

// FlushPostings appends every accumulated posting list's serialized
// bytes to w (the postings file, written sequentially by the caller),
// records each tokid's (offset, length) into table using runningOffset
// as the base, and returns the updated running offset. Callers
// checkpoint by calling FlushPostings then Reset, so the postings file
// stays append-only across checkpoints while the offsets table is
// assembled once in memory and written after the last checkpoint.
func (b *Builder) FlushPostings(w io.Writer, table *OffsetTable, runningOffset uint64) (uint64, error) {
	for tokid := uint32(1); tokid <= table.maxTokid; tokid++ {
		pl, ok := b.entries[tokid]
		if !ok {
			continue
		}
		pl.sortPostings()
		data := pl.Serialize()
		if _, err := w.Write(data); err != nil {
			return runningOffset, calerr.IOErr("", err)
		}
		table.set(tokid, runningOffset, uint32(len(data)))
		runningOffset += uint64(len(data))
	}
	return runningOffset, nil
}

// Open opens an InvertedFile for reading, mmapping the dense offsets
// table the way the teacher mmaps its BTreeIndex file
// (internal/index/BTreeIndex.go) for random access without a syscall
// per lookup.
func Open(postingsPath, offsetsPath string, cacheCapacity int) (*InvertedFile, error) {
	pf, err := os.Open(postingsPath)
	if err != nil {
		return nil, calerr.IOErr(postingsPath, err)
	}

	of, err := os.Open(offsetsPath)
	if err != nil {
		pf.Close()
		return nil, calerr.IOErr(offsetsPath, err)
	}
	defer of.Close()

	info, err := of.Stat()
	if err != nil {
		pf.Close()
		return nil, calerr.IOErr(offsetsPath, err)
	}
	size := info.Size()
	if size%offsetRecordSize != 0 {
		pf.Close()
		return nil, calerr.Corruptf(offsetsPath, "offsets file size %d not a multiple of %d", size, offsetRecordSize)
	}

	data, err := unix.Mmap(int(of.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		pf.Close()
		return nil, calerr.IOErr(offsetsPath, err)
	}

	return &InvertedFile{
		postingsPath: postingsPath,
		offsetsPath:  offsetsPath,
		cache:        lru.New[uint32, *PostingList](cacheCapacity),
		postingsFile: pf,
		offsetsMmap:  data,
		maxTokid:     uint32(size/offsetRecordSize) - 1,
	}, nil
}

// GetPostingList returns the posting list for tokid, reading through
// the LRU cache to the mmapped offsets table and the postings file on
// a miss.
func (f *InvertedFile) GetPostingList(tokid uint32) (*PostingList, error) {
	if pl, ok := f.cache.Get(tokid); ok {
		return pl, nil
	}
	if tokid == 0 || tokid > f.maxTokid {
		return &PostingList{}, nil
	}
	rec := f.offsetsMmap[tokid*offsetRecordSize : (tokid+1)*offsetRecordSize]
	offset := binary.LittleEndian.Uint64(rec[0:8])
	length := binary.LittleEndian.Uint32(rec[8:12])
	if length == 0 {
		return &PostingList{}, nil
	}
	buf := make([]byte, length)
	if _, err := f.postingsFile.ReadAt(buf, int64(offset)); err != nil {
		return nil, calerr.IOErr(f.postingsPath, err)
	}
	pl, err := DeserializePostingList(buf)
	if err != nil {
		return nil, err
	}
	f.cache.Put(tokid, pl)
	return pl, nil
}

// Close releases the mmap and file handles.
func (f *InvertedFile) Close() error {
	var firstErr error
	if f.offsetsMmap != nil {
		if err := unix.Munmap(f.offsetsMmap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.postingsFile != nil {
		if err := f.postingsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
