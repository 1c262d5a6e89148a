package chain

import (
	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/entry"
)

// QueryAPI is the read-only accessor surface of §4.6's final bullet,
// grounded on the teacher's consensus/dpos/api.go API type: a struct
// holding only a chain back-reference, exposing query methods and never
// mutating state.
type QueryAPI struct {
	chain *Blockchain
}

// NewQueryAPI wraps chain in a read-only query surface.
func NewQueryAPI(chain *Blockchain) *QueryAPI {
	return &QueryAPI{chain: chain}
}

// BlockByIndex returns the block at the given height.
func (q *QueryAPI) BlockByIndex(index uint64) (block.Block, bool) {
	return q.chain.BlockAt(index)
}

// BlockByHash returns the block with the given hash.
func (q *QueryAPI) BlockByHash(hash string) (block.Block, bool) {
	for _, b := range q.chain.Chain() {
		if b.Hash == hash {
			return b, true
		}
	}
	return block.Block{}, false
}

// LatestBlocks returns up to n blocks ending at the tip, newest first.
func (q *QueryAPI) LatestBlocks(n int) []block.Block {
	full := q.chain.Chain()
	if n <= 0 || len(full) == 0 {
		return nil
	}
	if n > len(full) {
		n = len(full)
	}
	out := make([]block.Block, n)
	for i := 0; i < n; i++ {
		out[i] = full[len(full)-1-i]
	}
	return out
}

// BlockRange returns blocks in [start, start+limit).
func (q *QueryAPI) BlockRange(start, limit uint64) []block.Block {
	full := q.chain.Chain()
	if start >= uint64(len(full)) || limit == 0 {
		return nil
	}
	end := start + limit
	if end > uint64(len(full)) {
		end = uint64(len(full))
	}
	return append([]block.Block(nil), full[start:end]...)
}

// EntriesSentBy returns every confirmed entry with From == publicKey, in
// chain order.
func (q *QueryAPI) EntriesSentBy(publicKey string) []entry.View {
	return q.confirmedEntriesWhere(func(e entry.Entry) bool { return e.From == publicKey })
}

// EntriesReceivedBy returns every confirmed entry with To == publicKey,
// in chain order.
func (q *QueryAPI) EntriesReceivedBy(publicKey string) []entry.View {
	return q.confirmedEntriesWhere(func(e entry.Entry) bool { return e.To == publicKey })
}

func (q *QueryAPI) confirmedEntriesWhere(pred func(entry.Entry) bool) []entry.View {
	var out []entry.View
	for _, b := range q.chain.Chain() {
		if b.Data.IsGenesis() {
			continue
		}
		for _, e := range b.Data.Entries() {
			if !pred(e) {
				continue
			}
			valid, _ := entry.Verify(&e)
			out = append(out, entry.View{Entry: e, Location: entry.LocationConfirmed, BlockIndex: b.Index, Valid: valid})
		}
	}
	return out
}

// EntryByID looks up an entry by id, first in the pending pool, then
// across confirmed blocks.
func (q *QueryAPI) EntryByID(id string) (entry.View, bool) {
	for _, e := range q.chain.pool.Pending() {
		if e.EntryID == id {
			valid, _ := entry.Verify(&e)
			return entry.View{Entry: e, Location: entry.LocationPending, Valid: valid}, true
		}
	}
	for _, b := range q.chain.Chain() {
		if b.Data.IsGenesis() {
			continue
		}
		for _, e := range b.Data.Entries() {
			if e.EntryID == id {
				valid, _ := entry.Verify(&e)
				return entry.View{Entry: e, Location: entry.LocationConfirmed, BlockIndex: b.Index, Valid: valid}, true
			}
		}
	}
	return entry.View{}, false
}

// ValidateEntry validates an entry on demand without inserting it.
func (q *QueryAPI) ValidateEntry(e entry.Entry) (bool, error) {
	return q.chain.pool.Validate(e)
}
