package vocab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetOrInsertAssignsSequentialIdsStartingAtOne(t *testing.T) {
	v := New()
	id1, err := v.GetOrInsert("apple")
	require.NoError(t, err)
	require.Equal(t, uint32(1), id1)

	id2, err := v.GetOrInsert("banana")
	require.NoError(t, err)
	require.Equal(t, uint32(2), id2)

	// repeat insert returns the same id
	again, err := v.GetOrInsert("apple")
	require.NoError(t, err)
	require.Equal(t, id1, again)
}

func TestTokenRoundTrip(t *testing.T) {
	v := New()
	id, err := v.GetOrInsert("hello")
	require.NoError(t, err)

	tok, err := v.Token(id)
	require.NoError(t, err)
	require.Equal(t, "hello", tok)
}

func TestTokenOutOfRangeIsError(t *testing.T) {
	v := New()
	_, err := v.Token(0)
	require.Error(t, err)
	_, err = v.Token(1)
	require.Error(t, err)
}

func TestFinalizeRejectsNewTokens(t *testing.T) {
	v := New()
	_, err := v.GetOrInsert("known")
	require.NoError(t, err)
	v.Finalize()

	// known token still resolves
	id, err := v.GetOrInsert("known")
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)

	// unknown token is now a hard error
	_, err = v.GetOrInsert("unknown")
	require.Error(t, err)
}

func TestAscendIsLexicographic(t *testing.T) {
	v := New()
	for _, tok := range []string{"banana", "apple", "cherry"} {
		_, err := v.GetOrInsert(tok)
		require.NoError(t, err)
	}
	var seen []string
	v.Ascend(func(token string, id uint32) bool {
		seen = append(seen, token)
		return true
	})
	require.Equal(t, []string{"apple", "banana", "cherry"}, seen)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v := New()
	for _, tok := range []string{"one", "two", "three"} {
		_, err := v.GetOrInsert(tok)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "vocab.lz4")
	require.NoError(t, v.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, v.Len(), loaded.Len())

	for i := uint32(1); i <= uint32(v.Len()); i++ {
		want, err := v.Token(i)
		require.NoError(t, err)
		got, err := loaded.Token(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	id, ok := loaded.Lookup("two")
	require.True(t, ok)
	require.Equal(t, uint32(2), id)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.lz4"))
	require.Error(t, err)
}
