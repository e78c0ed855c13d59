package postings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostingListSerializeRoundTrip(t *testing.T) {
	pl := &PostingList{}
	require.NoError(t, pl.AddPosting(3, 2))
	require.NoError(t, pl.AddPosting(7, 1))
	require.NoError(t, pl.AddPosting(100, 9))

	data := pl.Serialize()
	require.Len(t, data, pl.BytesRequired())

	got, err := DeserializePostingList(data)
	require.NoError(t, err)
	require.Equal(t, pl.Postings, got.Postings)
}

func TestPostingListRejectsNonIncreasingDocid(t *testing.T) {
	pl := &PostingList{}
	require.NoError(t, pl.AddPosting(5, 1))
	err := pl.AddPosting(5, 1)
	require.Error(t, err)
	err = pl.AddPosting(4, 1)
	require.Error(t, err)
}

func TestPostingListRejectsZeroDocidOrTf(t *testing.T) {
	pl := &PostingList{}
	require.Error(t, pl.AddPosting(0, 1))
	require.Error(t, pl.AddPosting(1, 0))
}

func TestBuilderSaveAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	postingsPath := filepath.Join(dir, "postings.bin")
	offsetsPath := filepath.Join(dir, "offsets.bin")

	b := NewBuilder()
	require.NoError(t, b.AddPosting(1, 10, 2))
	require.NoError(t, b.AddPosting(1, 20, 1))
	require.NoError(t, b.AddPosting(2, 5, 3))

	table := NewOffsetTable(2)
	pf, err := os.Create(postingsPath)
	require.NoError(t, err)
	_, err = b.FlushPostings(pf, table, 0)
	require.NoError(t, err)
	require.NoError(t, pf.Close())
	require.NoError(t, table.WriteTo(offsetsPath))

	inv, err := Open(postingsPath, offsetsPath, 0)
	require.NoError(t, err)
	defer inv.Close()

	pl1, err := inv.GetPostingList(1)
	require.NoError(t, err)
	require.Equal(t, []Posting{{DocID: 10, TF: 2}, {DocID: 20, TF: 1}}, pl1.Postings)

	pl2, err := inv.GetPostingList(2)
	require.NoError(t, err)
	require.Equal(t, []Posting{{DocID: 5, TF: 3}}, pl2.Postings)
}

func TestOpenUnknownTokidReturnsEmptyList(t *testing.T) {
	dir := t.TempDir()
	postingsPath := filepath.Join(dir, "postings.bin")
	offsetsPath := filepath.Join(dir, "offsets.bin")

	b := NewBuilder()
	require.NoError(t, b.AddPosting(1, 10, 2))
	table := NewOffsetTable(1)
	pf, err := os.Create(postingsPath)
	require.NoError(t, err)
	_, err = b.FlushPostings(pf, table, 0)
	require.NoError(t, err)
	require.NoError(t, pf.Close())
	require.NoError(t, table.WriteTo(offsetsPath))

	inv, err := Open(postingsPath, offsetsPath, 0)
	require.NoError(t, err)
	defer inv.Close()

	pl, err := inv.GetPostingList(999)
	require.NoError(t, err)
	require.Empty(t, pl.Postings)
}

func TestBuilderCheckpointAcrossFlushes(t *testing.T) {
	dir := t.TempDir()
	postingsPath := filepath.Join(dir, "postings.bin")
	offsetsPath := filepath.Join(dir, "offsets.bin")

	table := NewOffsetTable(3)
	pf, err := os.Create(postingsPath)
	require.NoError(t, err)

	b := NewBuilder()
	require.NoError(t, b.AddPosting(1, 1, 1))
	running, err := b.FlushPostings(pf, table, 0)
	require.NoError(t, err)
	b.Reset()

	require.NoError(t, b.AddPosting(2, 2, 2))
	require.NoError(t, b.AddPosting(3, 3, 3))
	_, err = b.FlushPostings(pf, table, running)
	require.NoError(t, err)
	require.NoError(t, pf.Close())
	require.NoError(t, table.WriteTo(offsetsPath))

	inv, err := Open(postingsPath, offsetsPath, 0)
	require.NoError(t, err)
	defer inv.Close()

	for tokid, want := range map[uint32]Posting{1: {DocID: 1, TF: 1}, 2: {DocID: 2, TF: 2}, 3: {DocID: 3, TF: 3}} {
		pl, err := inv.GetPostingList(tokid)
		require.NoError(t, err)
		require.Equal(t, []Posting{want}, pl.Postings)
	}
}
