package scorer

import (
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"calret/internal/classifier"
	"calret/internal/featurevec"
	"calret/internal/postings"
	"calret/internal/store"
)

// buildTestStore builds a tiny three-document, two-token collection
// directly through the Store/Builder/Writer primitives, the way
// internal/store's own round-trip test does, and opens it read-only.
func buildTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s := store.New(dir)

	tokCat, err := s.GetTokID("cat")
	require.NoError(t, err)
	tokDog, err := s.GetTokID("dog")
	require.NoError(t, err)

	docA, err := s.GetDocIntID("docA") // two "cat"
	require.NoError(t, err)
	docB, err := s.GetDocIntID("docB") // two "dog"
	require.NoError(t, err)
	docC, err := s.GetDocIntID("docC") // one "cat", one "dog"
	require.NoError(t, err)

	s.Tokens.Finalize()
	s.DocIDs.Finalize()
	require.NoError(t, s.Tokens.Save(s.TokenVocabPath()))
	require.NoError(t, s.DocIDs.Save(s.DocidVocabPath()))

	b := postings.NewBuilder()
	require.NoError(t, b.AddPosting(tokCat, docA, 2))
	require.NoError(t, b.AddPosting(tokCat, docC, 1))
	require.NoError(t, b.AddPosting(tokDog, docB, 2))
	require.NoError(t, b.AddPosting(tokDog, docC, 1))

	table := postings.NewOffsetTable(tokDog)
	pf, err := os.Create(s.PostingsPath())
	require.NoError(t, err)
	_, err = b.FlushPostings(pf, table, 0)
	require.NoError(t, err)
	require.NoError(t, pf.Close())
	require.NoError(t, table.WriteTo(s.OffsetsPath()))

	fw, err := featurevec.NewWriter(s.FVPath())
	require.NoError(t, err)
	require.NoError(t, fw.Append(&featurevec.Vector{
		DocID: docA, ExtID: "docA", Features: []featurevec.FeaturePair{{ID: tokCat, Value: 2}}, Norm: 2,
	}))
	require.NoError(t, fw.Append(&featurevec.Vector{
		DocID: docB, ExtID: "docB", Features: []featurevec.FeaturePair{{ID: tokDog, Value: 2}}, Norm: 2,
	}))
	require.NoError(t, fw.Append(&featurevec.Vector{
		DocID: docC, ExtID: "docC", Features: []featurevec.FeaturePair{{ID: tokCat, Value: 1}, {ID: tokDog, Value: 1}}, Norm: 1.41,
	}))
	require.NoError(t, fw.Close(s.FVOffsetsPath()))

	idf := []float32{0, 1.5, 0.5} // [sentinel, idf(cat), idf(dog)]
	require.NoError(t, store.SaveIDF(s.IDFPath(), idf))
	require.NoError(t, store.SaveConfig(s.ConfigPath(), store.Config{
		NumDocs: 3, NumFeatures: int(tokDog), Tokenizer: "englishstemlower",
	}))

	opened, err := store.Open(dir, 0)
	require.NoError(t, err)
	t.Cleanup(func() { opened.Close() })
	return opened
}

func trainedClassifier(t *testing.T, s *store.Store) *classifier.Classifier {
	t.Helper()
	tokCat, ok := s.Tokens.Lookup("cat")
	require.True(t, ok)

	c := classifier.New(0.01, 500)
	docA, err := s.GetDocIntID("docA")
	require.NoError(t, err)
	docB, err := s.GetDocIntID("docB")
	require.NoError(t, err)
	va, err := s.FeatureVector(docA)
	require.NoError(t, err)
	vb, err := s.FeatureVector(docB)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	require.NoError(t, c.Train([]*featurevec.Vector{va}, []*featurevec.Vector{vb}, rng))
	require.NotZero(t, c.Weight(tokCat))
	return c
}

func TestFullScanRanksByScore(t *testing.T) {
	s := buildTestStore(t)
	c := trainedClassifier(t, s)

	results, err := FullScan(s, c, Options{NumResults: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestFullScanExcludesDocids(t *testing.T) {
	s := buildTestStore(t)
	c := trainedClassifier(t, s)

	results, err := FullScan(s, c, Options{NumResults: 10, Exclude: map[string]struct{}{"docA": {}}})
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, "docA", r.ExtID)
	}
	require.Len(t, results, 2)
}

func TestFullScanRespectsNumResults(t *testing.T) {
	s := buildTestStore(t)
	c := trainedClassifier(t, s)

	results, err := FullScan(s, c, Options{NumResults: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestIndexScoreMatchesFullScanWithoutIDF(t *testing.T) {
	s := buildTestStore(t)
	c := trainedClassifier(t, s)

	full, err := FullScan(s, c, Options{NumResults: 10})
	require.NoError(t, err)
	idx, err := IndexScore(s, c, Options{NumResults: 10})
	require.NoError(t, err)

	require.Len(t, idx, len(full))
	for i := range full {
		require.Equal(t, full[i].ExtID, idx[i].ExtID)
		require.InDelta(t, full[i].Score, idx[i].Score, 1e-9)
	}
}

func TestIndexScoreWithIDFWeightsDiffer(t *testing.T) {
	s := buildTestStore(t)
	c := trainedClassifier(t, s)

	plain, err := IndexScore(s, c, Options{NumResults: 10})
	require.NoError(t, err)
	weighted, err := IndexScore(s, c, Options{NumResults: 10, WithIDF: true})
	require.NoError(t, err)

	require.Len(t, weighted, len(plain))
	var anyDiffer bool
	byExtID := make(map[string]float64)
	for _, r := range plain {
		byExtID[r.ExtID] = r.Score
	}
	for _, r := range weighted {
		if r.Score != byExtID[r.ExtID] {
			anyDiffer = true
		}
	}
	require.True(t, anyDiffer)
}

func TestScoreOneMatchesFullScan(t *testing.T) {
	s := buildTestStore(t)
	c := trainedClassifier(t, s)

	full, err := FullScan(s, c, Options{NumResults: 10})
	require.NoError(t, err)

	for _, r := range full {
		score, err := ScoreOne(s, c, r.ExtID)
		require.NoError(t, err)
		require.InDelta(t, r.Score, score, 1e-9)
	}
}

func TestTieBreakIsAscendingIntID(t *testing.T) {
	candidates := []DocScore{
		{ExtID: "z", IntID: 5, Score: 1.0},
		{ExtID: "a", IntID: 2, Score: 1.0},
		{ExtID: "m", IntID: 3, Score: 2.0},
	}
	ranked := rank(candidates, 0)
	require.Equal(t, []uint32{3, 2, 5}, []uint32{ranked[0].IntID, ranked[1].IntID, ranked[2].IntID})
}

func TestScoreOneUnknownDocid(t *testing.T) {
	s := buildTestStore(t)
	c := classifier.New(0.01, 10)
	_, err := ScoreOne(s, c, "does-not-exist")
	require.Error(t, err)
}
