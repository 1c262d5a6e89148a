package storage

import (
	"path/filepath"
	"testing"

	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/stretchr/testify/require"
)

func testBlock(index uint64, prevHash string) block.Block {
	b := block.Block{Index: index, PreviousHash: prevHash, BlockCreator: "node-1", OwnerAddress: "owner-1", Data: block.GenesisData("g")}
	hash, err := b.ComputeHash()
	if err != nil {
		panic(err)
	}
	b.Hash = hash
	return b
}

func TestLoadChainOnMissingFileReturnsErrEmpty(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing.log"))
	_, err := f.LoadChain()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "chain.log"))

	b0 := testBlock(0, "0")
	b1 := testBlock(1, b0.Hash)
	require.NoError(t, f.AppendBlock(b0))
	require.NoError(t, f.AppendBlock(b1))

	loaded, err := f.LoadChain()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, b0.Hash, loaded[0].Hash)
	require.Equal(t, b1.Hash, loaded[1].Hash)
}

func TestRewriteChainReplacesContents(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "chain.log"))
	require.NoError(t, f.AppendBlock(testBlock(0, "0")))

	b0 := testBlock(0, "0")
	b1 := testBlock(1, b0.Hash)
	b2 := testBlock(2, b1.Hash)
	require.NoError(t, f.RewriteChain([]block.Block{b0, b1, b2}))

	loaded, err := f.LoadChain()
	require.NoError(t, err)
	require.Len(t, loaded, 3)
}

func TestExportProducesIndentedJSON(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "chain.log"))
	require.NoError(t, f.AppendBlock(testBlock(0, "0")))

	raw, err := f.Export()
	require.NoError(t, err)
	require.Contains(t, string(raw), "\"index\": 0")
}
