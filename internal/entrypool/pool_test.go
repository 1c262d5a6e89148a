package entrypool

import (
	"testing"
	"time"

	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/entry"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	inProgress bool
	added      [][]entry.Entry
}

func (f *fakeChain) BlockCreationInProgress() bool { return f.inProgress }

func (f *fakeChain) AddBlock(data []entry.Entry) {
	f.added = append(f.added, data)
}

func sentinelEntry(id string) entry.Entry {
	e := entry.Entry{EntryID: id, From: entry.SenderICO, To: "x", Amount: 1, Type: "crypto", InitiationTimestamp: time.Now().UnixMilli()}
	_ = e.Finalize()
	return e
}

func TestSubmitAcceptsValidEntryAndAssignsID(t *testing.T) {
	p := New(Config{MinEntriesPerBlock: 10})
	chain := &fakeChain{}
	p.Bind(chain)

	e := entry.Entry{From: entry.SenderICO, To: "x", Amount: 1, Type: "crypto", InitiationTimestamp: time.Now().UnixMilli()}
	accepted, err := p.Submit(e)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Equal(t, 1, p.Len())
	require.NotEmpty(t, p.Pending()[0].EntryID)
}

func TestSubmitRejectsDuplicateEntryID(t *testing.T) {
	p := New(Config{MinEntriesPerBlock: 10})
	p.Bind(&fakeChain{})

	e := sentinelEntry("dup-1")
	accepted, err := p.Submit(e)
	require.NoError(t, err)
	require.True(t, accepted)

	accepted, err = p.Submit(e)
	require.NoError(t, err)
	require.False(t, accepted)
	require.Equal(t, 1, p.Len())
}

func TestSubmitRejectsStaleTimestamp(t *testing.T) {
	p := New(Config{MinEntriesPerBlock: 10})
	p.Bind(&fakeChain{})

	e := entry.Entry{From: entry.SenderICO, To: "x", Amount: 1, Type: "crypto", InitiationTimestamp: time.Now().Add(-time.Hour).UnixMilli()}
	accepted, err := p.Submit(e)
	require.NoError(t, err)
	require.False(t, accepted)
	require.Equal(t, 0, p.Len())
}

func TestSubmitTriggersMiningAtThreshold(t *testing.T) {
	p := New(Config{MinEntriesPerBlock: 2})
	chain := &fakeChain{}
	p.Bind(chain)

	require.NoError(t, exactlySubmit(p, sentinelEntry("a")))
	require.Empty(t, chain.added)
	require.NoError(t, exactlySubmit(p, sentinelEntry("b")))
	require.Len(t, chain.added, 1)
	require.Len(t, chain.added[0], 2)
}

func exactlySubmit(p *Pool, e entry.Entry) error {
	_, err := p.Submit(e)
	return err
}

func TestSubmitDoesNotTriggerMiningWhileInProgress(t *testing.T) {
	p := New(Config{MinEntriesPerBlock: 1})
	chain := &fakeChain{inProgress: true}
	p.Bind(chain)

	_, err := p.Submit(sentinelEntry("a"))
	require.NoError(t, err)
	require.Empty(t, chain.added)
}

func TestPruneRemovesMinedEntries(t *testing.T) {
	p := New(Config{MinEntriesPerBlock: 10})
	p.Bind(&fakeChain{})

	e1 := sentinelEntry("a")
	e2 := sentinelEntry("b")
	_, _ = p.Submit(e1)
	_, _ = p.Submit(e2)
	require.Equal(t, 2, p.Len())

	b := &block.Block{Data: block.EntriesData([]entry.Entry{e1})}
	p.Prune(b)
	require.Equal(t, 1, p.Len())
	require.Equal(t, e2.EntryID, p.Pending()[0].EntryID)
}

func TestPruneIgnoresGenesisBlock(t *testing.T) {
	p := New(Config{MinEntriesPerBlock: 10})
	p.Bind(&fakeChain{})
	_, _ = p.Submit(sentinelEntry("a"))

	p.Prune(&block.Block{Data: block.GenesisData("Genesis Block")})
	require.Equal(t, 1, p.Len())
}
