// Package build implements IndexBuilder (spec.md §4.6): an in-memory
// single-pass variant for small collections, and a map-reduce variant
// backed by internal/extsort for collections too large to hold their
// full inverted file in memory at once. Grounded on
// _examples/original_source/src/bin/build_index.rs (in-memory) and
// src/bin/build_mapred.rs (map-reduce), keeping both rather than
// picking one, since spec.md §4.6 requires both as named IndexBuilder
// variants.
package build

import (
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"calret/internal/calerr"
	"calret/internal/extsort"
	"calret/internal/featurevec"
	"calret/internal/ingest"
	"calret/internal/postings"
	"calret/internal/store"
	"calret/internal/tok"
)

// Options configures a build run common to both IndexBuilder variants.
type Options struct {
	Tokenizer  tok.Tokenizer
	DocIDField string
	BodyField  string
	Bundles    []string
	OutPrefix  string
}

// MapReduceOptions extends Options with the map-reduce variant's
// external-sort tuning knobs (spec.md §4.2).
type MapReduceOptions struct {
	Options
	CheckpointPostings int // 0 disables checkpointing (never reset the in-memory builder)
	ExtsortBufferSize  int
	TempDir            string
}

func tokenizeDoc(s *store.Store, tokenizer tok.Tokenizer, body string) (map[uint32]uint32, error) {
	counts := make(map[uint32]uint32)
	for _, token := range tokenizer.Tokenize(body) {
		tokid, err := s.GetTokID(token)
		if err != nil {
			return nil, err
		}
		counts[tokid]++
	}
	return counts, nil
}

func featureVectorFor(docIntID uint32, extID string, counts map[uint32]uint32) *featurevec.Vector {
	tokids := make([]uint32, 0, len(counts))
	for tokid := range counts {
		tokids = append(tokids, tokid)
	}
	sort.Slice(tokids, func(i, j int) bool { return tokids[i] < tokids[j] })

	pairs := make([]featurevec.FeaturePair, len(tokids))
	var sumSq float64
	for i, tokid := range tokids {
		count := counts[tokid]
		pairs[i] = featurevec.FeaturePair{ID: tokid, Value: float32(count)}
		sumSq += float64(count) * float64(count)
	}
	return &featurevec.Vector{DocID: docIntID, ExtID: extID, Features: pairs, Norm: float32(math.Sqrt(sumSq))}
}

// BuildInMemory runs the in-memory IndexBuilder variant: a single pass
// over the input bundles, holding every posting list in memory until
// the final Save (spec.md §4.6). Appropriate for collections whose
// full inverted file fits in memory.
func BuildInMemory(opts Options) error {
	if err := os.MkdirAll(opts.OutPrefix, 0o755); err != nil {
		return calerr.IOErr(opts.OutPrefix, err)
	}
	s := store.New(opts.OutPrefix)
	b := postings.NewBuilder()

	fw, err := featurevec.NewWriter(s.FVPath())
	if err != nil {
		return err
	}

	reader := ingest.NewReader(opts.DocIDField, opts.BodyField)
	numDocs := 0
	log.Printf("build: map phase starting (%d bundles)", len(opts.Bundles))

	err = reader.Each(opts.Bundles, func(d ingest.Document) error {
		docIntID, err := s.GetDocIntID(d.DocID)
		if err != nil {
			return err
		}
		counts, err := tokenizeDoc(s, opts.Tokenizer, d.Body)
		if err != nil {
			return err
		}
		for tokid, count := range counts {
			if err := b.AddPosting(tokid, docIntID, count); err != nil {
				return err
			}
		}
		if err := fw.Append(featureVectorFor(docIntID, d.DocID, counts)); err != nil {
			return err
		}
		numDocs++
		if numDocs%100000 == 0 {
			log.Printf("build: tokenized %d documents", numDocs)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if numDocs != s.DocIDs.Len() {
		return calerr.Invariantf("build: num_docs mismatch: tokenized %d, docid vocab has %d", numDocs, s.DocIDs.Len())
	}

	s.Tokens.Finalize()
	s.DocIDs.Finalize()
	if err := s.Tokens.Save(s.TokenVocabPath()); err != nil {
		return err
	}
	if err := s.DocIDs.Save(s.DocidVocabPath()); err != nil {
		return err
	}
	if err := fw.Close(s.FVOffsetsPath()); err != nil {
		return err
	}

	maxTokid := uint32(s.Tokens.Len())
	table := postings.NewOffsetTable(maxTokid)
	pf, err := os.Create(s.PostingsPath())
	if err != nil {
		return calerr.IOErr(s.PostingsPath(), err)
	}
	if _, err := b.FlushPostings(pf, table, 0); err != nil {
		pf.Close()
		return err
	}
	if err := pf.Close(); err != nil {
		return calerr.IOErr(s.PostingsPath(), err)
	}
	if err := table.WriteTo(s.OffsetsPath()); err != nil {
		return err
	}

	idf := make([]float32, maxTokid+1)
	for tokid := uint32(1); tokid <= maxTokid; tokid++ {
		if df := b.DF(tokid); df > 0 {
			idf[tokid] = float32(math.Log10(float64(numDocs) / float64(df)))
		}
	}
	if err := store.SaveIDF(s.IDFPath(), idf); err != nil {
		return err
	}

	log.Printf("build: done, %d documents, %d tokens", numDocs, maxTokid)
	return store.SaveConfig(s.ConfigPath(), store.Config{
		NumDocs:     numDocs,
		NumFeatures: int(maxTokid),
		Tokenizer:   opts.Tokenizer.Name(),
	})
}

// BuildMapReduce runs the map-reduce IndexBuilder variant: a map pass
// spills (token, docid, count) tuples to disk, an external sort groups
// them by token, and a reduce pass builds posting lists, checkpointing
// to disk whenever the in-memory posting count crosses
// CheckpointPostings (spec.md §4.2/§4.6). Appropriate for collections
// whose full inverted file would not fit in memory.
func BuildMapReduce(opts MapReduceOptions) error {
	if err := os.MkdirAll(opts.OutPrefix, 0o755); err != nil {
		return calerr.IOErr(opts.OutPrefix, err)
	}
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return calerr.IOErr(opts.TempDir, err)
	}

	s := store.New(opts.OutPrefix)
	fw, err := featurevec.NewWriter(s.FVPath())
	if err != nil {
		return err
	}

	spillPath := filepath.Join(opts.TempDir, "tuples.spill")
	spillFile, err := os.Create(spillPath)
	if err != nil {
		return calerr.IOErr(spillPath, err)
	}
	defer os.Remove(spillPath)

	reader := ingest.NewReader(opts.DocIDField, opts.BodyField)
	numDocs := 0
	log.Printf("build: map phase starting (%d bundles)", len(opts.Bundles))

	err = reader.Each(opts.Bundles, func(d ingest.Document) error {
		docIntID, err := s.GetDocIntID(d.DocID)
		if err != nil {
			return err
		}
		counts, err := tokenizeDoc(s, opts.Tokenizer, d.Body)
		if err != nil {
			return err
		}
		for tokid, count := range counts {
			if err := ptupleCodec.Encode(spillFile, PTuple{Tok: tokid, DocID: docIntID, Count: count}); err != nil {
				return calerr.IOErr(spillPath, err)
			}
		}
		if err := fw.Append(featureVectorFor(docIntID, d.DocID, counts)); err != nil {
			return err
		}
		numDocs++
		if numDocs%100000 == 0 {
			log.Printf("build: tokenized %d documents", numDocs)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := spillFile.Close(); err != nil {
		return calerr.IOErr(spillPath, err)
	}
	if numDocs != s.DocIDs.Len() {
		return calerr.Invariantf("build: num_docs mismatch: tokenized %d, docid vocab has %d", numDocs, s.DocIDs.Len())
	}

	s.Tokens.Finalize()
	s.DocIDs.Finalize()
	if err := s.Tokens.Save(s.TokenVocabPath()); err != nil {
		return err
	}
	if err := s.DocIDs.Save(s.DocidVocabPath()); err != nil {
		return err
	}
	if err := fw.Close(s.FVOffsetsPath()); err != nil {
		return err
	}

	maxTokid := uint32(s.Tokens.Len())
	log.Printf("build: sort phase starting")

	spillReader, err := os.Open(spillPath)
	if err != nil {
		return calerr.IOErr(spillPath, err)
	}
	defer spillReader.Close()

	table := postings.NewOffsetTable(maxTokid)
	pf, err := os.Create(s.PostingsPath())
	if err != nil {
		return calerr.IOErr(s.PostingsPath(), err)
	}
	defer pf.Close()

	df := make([]uint32, maxTokid+1)
	b := postings.NewBuilder()
	var runningOffset uint64
	var lastTok uint32
	checkpoints := 0

	src := func() (PTuple, error) { return ptupleCodec.Decode(spillReader) }
	sink := func(pt PTuple) error {
		if pt.Tok != lastTok && opts.CheckpointPostings > 0 && b.PostingCount() >= opts.CheckpointPostings {
			var err error
			runningOffset, err = b.FlushPostings(pf, table, runningOffset)
			if err != nil {
				return err
			}
			b.Reset()
			checkpoints++
		}
		lastTok = pt.Tok
		df[pt.Tok]++
		return b.AddPosting(pt.Tok, pt.DocID, pt.Count)
	}

	runDir := filepath.Join(opts.TempDir, "runs")
	if err := extsort.Run(src, sink, lessPTuple, ptupleCodec, opts.ExtsortBufferSize, runDir); err != nil {
		return err
	}

	if _, err := b.FlushPostings(pf, table, runningOffset); err != nil {
		return err
	}
	if err := pf.Close(); err != nil {
		return calerr.IOErr(s.PostingsPath(), err)
	}
	if err := table.WriteTo(s.OffsetsPath()); err != nil {
		return err
	}
	log.Printf("build: reduce phase done, %d checkpoints", checkpoints)

	idf := make([]float32, maxTokid+1)
	for tokid := uint32(1); tokid <= maxTokid; tokid++ {
		if df[tokid] > 0 {
			idf[tokid] = float32(math.Log10(float64(numDocs) / float64(df[tokid])))
		}
	}
	if err := store.SaveIDF(s.IDFPath(), idf); err != nil {
		return err
	}

	log.Printf("build: done, %d documents, %d tokens", numDocs, maxTokid)
	return store.SaveConfig(s.ConfigPath(), store.Config{
		NumDocs:     numDocs,
		NumFeatures: int(maxTokid),
		Tokenizer:   opts.Tokenizer.Name(),
	})
}
