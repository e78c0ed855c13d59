// Package tok implements the closed set of tokenizer variants named in
// spec.md §9: englishStemLower, nGram(n), nGramHashed(n, modulus), and
// an xlmrSentencepiece stub reserved for an external collaborator.
// Grounded on _examples/original_source/src/tok.rs's Tokenizer trait
// and its EnglishStemLowercase/NGrams/NGramsHashed/XLMR variants, with
// the hand-rolled djb-style hash in NGramsHashed replaced by
// github.com/cespare/xxhash/v2, the maintained hash library
// _examples/standardbeagle-lci already depends on for this exact kind
// of bucket hashing (internal/core/file_content_store.go).
package tok

import (
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/surgebase/porter2"

	"calret/internal/calerr"
)

// Tokenizer turns document text into a stream of tokens.
type Tokenizer interface {
	Name() string
	Tokenize(text string) []string
}

// Get resolves a tokenizer by name, matching the CLI's -t flag.
func Get(name string) (Tokenizer, error) {
	switch name {
	case "englishstemlower":
		return EnglishStemLower{}, nil
	case "ngram2":
		return NGram{N: 2}, nil
	case "ngram3":
		return NGram{N: 3}, nil
	case "ngramhashed2":
		return NGramHashed{N: 2, Modulus: defaultHashModulus}, nil
	case "ngramhashed3":
		return NGramHashed{N: 3, Modulus: defaultHashModulus}, nil
	case "xlmrsentencepiece":
		return XLMRSentencepiece{}, nil
	default:
		return nil, calerr.ConfigBadf("", "unknown tokenizer %q", name)
	}
}

// defaultHashModulus matches a commonly used bucket count for hashed
// n-gram vocabularies; callers that need a different modulus construct
// NGramHashed directly.
const defaultHashModulus = 999_983 // largest prime below 1,000,000

// EnglishStemLower lowercases, splits on non-alphanumeric runs, drops
// tokens shorter than 2 runes, and Porter2-stems alphabetic tokens.
type EnglishStemLower struct{}

func (EnglishStemLower) Name() string { return "englishstemlower" }

func (EnglishStemLower) Tokenize(text string) []string {
	var out []string
	for _, raw := range splitNonAlphanumeric(strings.ToLower(text)) {
		if len([]rune(raw)) < 2 {
			continue
		}
		if isAllAlpha(raw) {
			out = append(out, porter2.Stem(raw))
		} else {
			out = append(out, raw)
		}
	}
	return out
}

func splitNonAlphanumeric(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isAllAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// NGram emits overlapping windows of N runes over the NFKC-ish
// (lowercased) text, sliding one rune at a time.
type NGram struct{ N int }

func (g NGram) Name() string { return "ngram" }

func (g NGram) Tokenize(text string) []string {
	runes := []rune(strings.ToLower(text))
	if len(runes) < g.N {
		return nil
	}
	out := make([]string, 0, len(runes)-g.N+1)
	for i := 0; i+g.N <= len(runes); i++ {
		out = append(out, string(runes[i:i+g.N]))
	}
	return out
}

// NGramHashed is NGram followed by hashing each gram into one of
// Modulus buckets via xxhash, represented as the decimal bucket number
// so it can still flow through the string-keyed vocab.
type NGramHashed struct {
	N       int
	Modulus uint64
}

func (g NGramHashed) Name() string { return "ngramhashed" }

func (g NGramHashed) Tokenize(text string) []string {
	grams := NGram{N: g.N}.Tokenize(text)
	out := make([]string, len(grams))
	for i, gram := range grams {
		bucket := xxhash.Sum64String(gram) % g.Modulus
		out[i] = bucketToken(bucket)
	}
	return out
}

func bucketToken(bucket uint64) string {
	const digits = "0123456789"
	if bucket == 0 {
		return "h0"
	}
	var b []byte
	for bucket > 0 {
		b = append([]byte{digits[bucket%10]}, b...)
		bucket /= 10
	}
	return "h" + string(b)
}

// XLMRSentencepiece is a placeholder for the sentencepiece-backed
// multilingual tokenizer; spec.md §1 names its implementation as an
// external collaborator's concern. Calling Tokenize is a programming
// error until that model is wired in.
type XLMRSentencepiece struct{}

func (XLMRSentencepiece) Name() string { return "xlmrsentencepiece" }

func (XLMRSentencepiece) Tokenize(string) []string {
	panic("tok: xlmrsentencepiece requires an external sentencepiece model, not implemented")
}
