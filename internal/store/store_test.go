package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"calret/internal/featurevec"
	"calret/internal/postings"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Config{NumDocs: 42, NumFeatures: 7, Tokenizer: "englishstemlower"}
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestIDFRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idf.bin")
	idf := []float32{0, 1.5, 2.25, 0.75}
	require.NoError(t, SaveIDF(path, idf))

	loaded, err := LoadIDF(path)
	require.NoError(t, err)
	require.Equal(t, idf, loaded)
}

func TestStoreBuildAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	tok1, err := s.GetTokID("hello")
	require.NoError(t, err)
	tok2, err := s.GetTokID("world")
	require.NoError(t, err)

	doc1, err := s.GetDocIntID("docA")
	require.NoError(t, err)
	doc2, err := s.GetDocIntID("docB")
	require.NoError(t, err)

	s.Tokens.Finalize()
	s.DocIDs.Finalize()
	require.NoError(t, s.Tokens.Save(s.TokenVocabPath()))
	require.NoError(t, s.DocIDs.Save(s.DocidVocabPath()))

	b := postings.NewBuilder()
	require.NoError(t, b.AddPosting(tok1, doc1, 2))
	require.NoError(t, b.AddPosting(tok1, doc2, 1))
	require.NoError(t, b.AddPosting(tok2, doc2, 3))
	table := postings.NewOffsetTable(tok2)
	pf, err := os.Create(s.PostingsPath())
	require.NoError(t, err)
	_, err = b.FlushPostings(pf, table, 0)
	require.NoError(t, err)
	require.NoError(t, pf.Close())
	require.NoError(t, table.WriteTo(s.OffsetsPath()))

	fw, err := featurevec.NewWriter(s.FVPath())
	require.NoError(t, err)
	require.NoError(t, fw.Append(&featurevec.Vector{DocID: doc1, ExtID: "docA", Features: []featurevec.FeaturePair{{ID: tok1, Value: 2}}, Norm: 2}))
	require.NoError(t, fw.Append(&featurevec.Vector{DocID: doc2, ExtID: "docB", Features: []featurevec.FeaturePair{{ID: tok1, Value: 1}, {ID: tok2, Value: 3}}, Norm: 3.16}))
	require.NoError(t, fw.Close(s.FVOffsetsPath()))

	require.NoError(t, SaveIDF(s.IDFPath(), make([]float32, tok2+1)))
	require.NoError(t, SaveConfig(s.ConfigPath(), Config{NumDocs: 2, NumFeatures: int(tok2), Tokenizer: "englishstemlower"}))

	opened, err := Open(dir, 0)
	require.NoError(t, err)
	defer opened.Close()

	require.Equal(t, 2, opened.NumDocs())

	gotID, err := opened.GetDocID(doc1)
	require.NoError(t, err)
	require.Equal(t, "docA", gotID)

	pl, err := opened.PostingList(tok1)
	require.NoError(t, err)
	require.Len(t, pl.Postings, 2)

	vec, err := opened.FeatureVector(doc2)
	require.NoError(t, err)
	require.Len(t, vec.Features, 2)

	var scanned int
	err = opened.ScanFeatureVectors(func(*featurevec.Vector) (bool, error) {
		scanned++
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, scanned)
}
