package store

import (
	"path/filepath"

	"calret/internal/calerr"
	"calret/internal/featurevec"
	"calret/internal/postings"
	"calret/internal/vocab"
)

const (
	tokenVocabFile = "vocab.lz4"
	docidVocabFile = "docids.lz4"
	postingsFile   = "postings.bin"
	offsetsFile    = "offsets.bin"
	fvFile         = "fv.bin"
	fvOffsetsFile  = "fv.offsets"
	idfFile        = "idf.bin"
	configFile     = "config.toml"
)

// Store is the façade over every persistent artifact of a built
// collection: the token vocabulary, the docid vocabulary, the
// inverted file, the feature-vector file, the dense idf table, and
// Config. All paths live under one directory, Prefix.
type Store struct {
	Prefix string
	Config Config

	Tokens *vocab.Vocab
	DocIDs *vocab.Vocab
	IDF    []float32

	inv *postings.InvertedFile
	fv  *featurevec.Reader
}

func (s *Store) path(name string) string { return filepath.Join(s.Prefix, name) }

// New creates an empty, writable Store rooted at prefix, for use by
// the IndexBuilder during a build.
func New(prefix string) *Store {
	return &Store{
		Prefix: prefix,
		Tokens: vocab.New(),
		DocIDs: vocab.New(),
	}
}

// Open loads a previously built Store from prefix for training and
// scoring. The inverted file is opened with a cacheCapacity-sized LRU
// posting-list read cache (0 = unbounded); the feature-vector file has
// no cache.
func Open(prefix string, cacheCapacity int) (*Store, error) {
	s := &Store{Prefix: prefix}

	cfg, err := LoadConfig(s.path(configFile))
	if err != nil {
		return nil, err
	}
	s.Config = cfg

	s.Tokens, err = vocab.Load(s.path(tokenVocabFile))
	if err != nil {
		return nil, err
	}
	s.Tokens.Finalize()

	s.DocIDs, err = vocab.Load(s.path(docidVocabFile))
	if err != nil {
		return nil, err
	}
	s.DocIDs.Finalize()

	s.IDF, err = LoadIDF(s.path(idfFile))
	if err != nil {
		return nil, err
	}

	s.inv, err = postings.Open(s.path(postingsFile), s.path(offsetsFile), cacheCapacity)
	if err != nil {
		return nil, err
	}

	s.fv, err = featurevec.Open(s.path(fvFile), s.path(fvOffsetsFile))
	if err != nil {
		s.inv.Close()
		return nil, err
	}

	return s, nil
}

// GetTokID returns the id for a token, inserting it if this Store's
// vocab is still open for writing.
func (s *Store) GetTokID(token string) (uint32, error) {
	return s.Tokens.GetOrInsert(token)
}

// GetDocIntID returns the dense internal id for a docid string,
// inserting it if this Store's docid vocab is still open for writing.
func (s *Store) GetDocIntID(docid string) (uint32, error) {
	return s.DocIDs.GetOrInsert(docid)
}

// GetDocID returns the external docid string for a dense internal id.
func (s *Store) GetDocID(intid uint32) (string, error) {
	return s.DocIDs.Token(intid)
}

// PostingList returns the posting list for tokid.
func (s *Store) PostingList(tokid uint32) (*postings.PostingList, error) {
	if s.inv == nil {
		return nil, calerr.Invariantf("store: inverted file not open")
	}
	return s.inv.GetPostingList(tokid)
}

// FeatureVector returns the feature vector for intid.
func (s *Store) FeatureVector(intid uint32) (*featurevec.Vector, error) {
	if s.fv == nil {
		return nil, calerr.Invariantf("store: feature vector file not open")
	}
	return s.fv.Get(intid)
}

// ScanFeatureVectors sequentially visits every feature vector, used by
// the full-scan scorer (spec.md §4.9).
func (s *Store) ScanFeatureVectors(fn func(*featurevec.Vector) (bool, error)) error {
	if s.fv == nil {
		return calerr.Invariantf("store: feature vector file not open")
	}
	return s.fv.Scan(fn)
}

// NumDocs returns the document count from Config.
func (s *Store) NumDocs() int { return s.Config.NumDocs }

// Close releases any open file handles and mmaps.
func (s *Store) Close() error {
	var firstErr error
	if s.inv != nil {
		if err := s.inv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.fv != nil {
		if err := s.fv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Paths used by IndexBuilder to write each artifact directly, kept
// here so the build package and Store agree on the on-disk layout
// without duplicating filenames.
func (s *Store) TokenVocabPath() string { return s.path(tokenVocabFile) }
func (s *Store) DocidVocabPath() string { return s.path(docidVocabFile) }
func (s *Store) PostingsPath() string   { return s.path(postingsFile) }
func (s *Store) OffsetsPath() string    { return s.path(offsetsFile) }
func (s *Store) FVPath() string         { return s.path(fvFile) }
func (s *Store) FVOffsetsPath() string  { return s.path(fvOffsetsFile) }
func (s *Store) IDFPath() string        { return s.path(idfFile) }
func (s *Store) ConfigPath() string     { return s.path(configFile) }
