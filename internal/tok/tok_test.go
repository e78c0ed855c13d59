package tok

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnglishStemLowerBasic(t *testing.T) {
	tz := EnglishStemLower{}
	got := tz.Tokenize("The Running Dogs, jumped!")
	require.Equal(t, []string{"the", "run", "dog", "jump"}, got)
}

func TestEnglishStemLowerDropsShortTokens(t *testing.T) {
	tz := EnglishStemLower{}
	got := tz.Tokenize("a I be ok")
	require.Equal(t, []string{"be", "ok"}, got)
}

func TestNGramBasic(t *testing.T) {
	tz := NGram{N: 3}
	got := tz.Tokenize("abcd")
	require.Equal(t, []string{"abc", "bcd"}, got)
}

func TestNGramShorterThanN(t *testing.T) {
	tz := NGram{N: 5}
	got := tz.Tokenize("ab")
	require.Nil(t, got)
}

func TestNGramHashedIsDeterministic(t *testing.T) {
	tz := NGramHashed{N: 3, Modulus: 97}
	a := tz.Tokenize("hello world")
	b := tz.Tokenize("hello world")
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestNGramHashedBucketsInRange(t *testing.T) {
	tz := NGramHashed{N: 2, Modulus: 11}
	for _, gram := range tz.Tokenize("abcdefghij") {
		require.True(t, len(gram) > 1 && gram[0] == 'h')
		bucket, err := strconv.ParseUint(gram[1:], 10, 64)
		require.NoError(t, err)
		require.Less(t, bucket, uint64(11))
	}
}

func TestGetUnknownTokenizer(t *testing.T) {
	_, err := Get("nonexistent")
	require.Error(t, err)
}

func TestGetKnownTokenizers(t *testing.T) {
	for _, name := range []string{"englishstemlower", "ngram2", "ngram3", "ngramhashed2", "ngramhashed3", "xlmrsentencepiece"} {
		tzr, err := Get(name)
		require.NoError(t, err)
		require.NotNil(t, tzr)
	}
}
