// Package scorer implements the two interchangeable ranking strategies
// named in spec.md §4.9: a full feature-vector scan and an
// index-traversal walk seeded from the classifier's non-zero weights.
// Grounded on _examples/original_source/src/bin/score-index.rs
// (score_using_index, the exclude-by-docid CLI flag) and spec.md §4.9's
// description of the scan variant, which the original never wires up
// as a separate binary but spec.md names as an equally valid strategy.
package scorer

import (
	"math"
	"sort"

	"calret/internal/calerr"
	"calret/internal/classifier"
	"calret/internal/featurevec"
	"calret/internal/store"
)

// DocScore is one ranked result: the external docid, its dense
// internal id, and its score under the classifier.
type DocScore struct {
	ExtID string
	IntID uint32
	Score float64
}

// Options configures a scoring run common to both strategies.
type Options struct {
	NumResults int // 0 means "all"
	Exclude    map[string]struct{}
	// WithIDF enables idf-weighted scoring in IndexScore (spec.md §9.2
	// Open Question; default off so the two strategies agree exactly,
	// testable property 9). FullScan is never idf-weighted: the stored
	// feature values are raw term frequencies either way, so FullScan's
	// score already matches IndexScore with WithIDF=false.
	WithIDF bool
}

// rank sorts candidates descending by score, ties broken by ascending
// IntID (spec.md §4.9 "Tie-breaking"), and trims to opts.NumResults.
func rank(candidates []DocScore, numResults int) []DocScore {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].IntID < candidates[j].IntID
	})
	if numResults > 0 && len(candidates) > numResults {
		candidates = candidates[:numResults]
	}
	return candidates
}

// FullScan scores every document by a sequential scan of the
// feature-vector file, the way spec.md §4.9 describes the scan
// strategy: score(v) = classifier inner product, independent of idf.
func FullScan(s *store.Store, c *classifier.Classifier, opts Options) ([]DocScore, error) {
	var candidates []DocScore
	err := s.ScanFeatureVectors(func(v *featurevec.Vector) (bool, error) {
		extid, err := s.GetDocID(v.DocID)
		if err != nil {
			return false, err
		}
		if _, excluded := opts.Exclude[extid]; excluded {
			return true, nil
		}
		candidates = append(candidates, DocScore{
			ExtID: extid,
			IntID: v.DocID,
			Score: c.Score(v),
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return rank(candidates, opts.NumResults), nil
}

// IndexScore scores documents by walking posting lists for every
// tokid with a non-zero classifier weight, in descending order of
// |weight| (spec.md §4.9 "Index scorer"). Only documents that appear
// in at least one walked posting list receive a score; this matches
// the original's score_using_index, which never visits documents with
// zero inner product.
func IndexScore(s *store.Store, c *classifier.Classifier, opts Options) ([]DocScore, error) {
	terms := c.NonZeroWeights()
	sort.Slice(terms, func(i, j int) bool {
		return math.Abs(terms[i].Weight) > math.Abs(terms[j].Weight)
	})

	results := make(map[uint32]float64)
	for _, term := range terms {
		pl, err := s.PostingList(term.Tokid)
		if err != nil {
			return nil, err
		}
		w := term.Weight
		if opts.WithIDF {
			if int(term.Tokid) >= len(s.IDF) {
				return nil, calerr.Invariantf("scorer: tokid %d out of range of idf table", term.Tokid)
			}
			w *= float64(s.IDF[term.Tokid])
		}
		for _, p := range pl.Postings {
			results[p.DocID] += w * float64(p.TF)
		}
	}

	candidates := make([]DocScore, 0, len(results))
	for intid, score := range results {
		extid, err := s.GetDocID(intid)
		if err != nil {
			return nil, err
		}
		if _, excluded := opts.Exclude[extid]; excluded {
			continue
		}
		candidates = append(candidates, DocScore{ExtID: extid, IntID: intid, Score: score})
	}
	return rank(candidates, opts.NumResults), nil
}

// ScoreOne returns the score of a single document under c, used by the
// `score_one` CLI subcommand (spec.md §6).
func ScoreOne(s *store.Store, c *classifier.Classifier, extid string) (float64, error) {
	intid, err := s.GetDocIntID(extid)
	if err != nil {
		return 0, err
	}
	v, err := s.FeatureVector(intid)
	if err != nil {
		return 0, err
	}
	return c.Score(v), nil
}
