// Package entrypool implements the deduplicating, validating buffer of
// pending entries described in §4.3.
package entrypool

import (
	"sync"
	"time"

	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/entry"
)

// ChainHooks is the narrow surface Pool needs from Blockchain: whether a
// block creation is already running, and how to start one. Injected
// rather than sharing the mutable aggregate (design notes §9).
type ChainHooks interface {
	BlockCreationInProgress() bool
	AddBlock(data []entry.Entry)
}

// Config configures the pool.
type Config struct {
	MinEntriesPerBlock int
	Now                func() time.Time
}

// Pool is the pending-entry buffer (§4.3). Insertion order is preserved
// for deterministic block construction.
type Pool struct {
	cfg   Config
	chain ChainHooks

	mu    sync.Mutex
	order []string
	byID  map[string]entry.Entry
}

// New constructs a Pool. Bind must be called once, before any entries are
// submitted, to wire it to the Blockchain that owns it — the two are
// constructed in sequence (Pool first, since Blockchain needs one to hold),
// so the back-reference cannot be supplied at construction time.
func New(cfg Config) *Pool {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MinEntriesPerBlock <= 0 {
		cfg.MinEntriesPerBlock = 1
	}
	return &Pool{cfg: cfg, byID: make(map[string]entry.Entry)}
}

// Bind wires the pool to the Blockchain that owns it.
func (p *Pool) Bind(chain ChainHooks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain = chain
}

// Validate implements §4.3's three-step validation: hash recomputation,
// signature verification for non-sentinel senders, and clock-skew
// tolerance.
func (p *Pool) Validate(e entry.Entry) (bool, error) {
	valid, err := entry.Verify(&e)
	if err != nil || !valid {
		return false, err
	}
	if !entry.WithinClockSkew(e.InitiationTimestamp, p.cfg.Now()) {
		return false, nil
	}
	return true, nil
}

// Submit assigns an entryId if absent, skips entries already present,
// validates otherwise-new entries, and inserts valid ones, triggering the
// mining-threshold check.
func (p *Pool) Submit(e entry.Entry) (bool, error) {
	e.AssignID()

	if p.contains(e.EntryID) {
		return false, nil
	}

	valid, err := p.Validate(e)
	if err != nil {
		return false, err
	}
	if !valid {
		return false, nil
	}

	if !p.insert(e) {
		return false, nil
	}

	p.maybeTriggerMining()
	return true, nil
}

func (p *Pool) contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byID[id]
	return ok
}

// insert adds e if not already present, returning whether it was added.
func (p *Pool) insert(e entry.Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[e.EntryID]; ok {
		return false
	}
	p.byID[e.EntryID] = e
	p.order = append(p.order, e.EntryID)
	return true
}

func (p *Pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Pending returns a snapshot of the pool's entries in insertion order.
func (p *Pool) Pending() []entry.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entry.Entry, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}

// Len reports the current pool size.
func (p *Pool) Len() int {
	return p.size()
}

// Prune removes every entry whose entryId appears in b's data. Genesis
// blocks carry no entries and are a no-op.
func (p *Pool) Prune(b *block.Block) {
	if b.Data.IsGenesis() {
		return
	}
	ids := make(map[string]struct{}, len(b.Data.Entries()))
	for _, e := range b.Data.Entries() {
		ids[e.EntryID] = struct{}{}
	}
	if len(ids) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.order[:0:0]
	for _, id := range p.order {
		if _, remove := ids[id]; remove {
			delete(p.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
}

// OnNewPeerChain prunes the pool against every block in newChain (§4.3).
func (p *Pool) OnNewPeerChain(newChain []block.Block) {
	for i := range newChain {
		p.Prune(&newChain[i])
	}
}

// maybeTriggerMining implements §4.3's mining-trigger rule: whenever the
// pool reaches the configured threshold and no block creation is already
// running, start one with a snapshot of the pool.
func (p *Pool) maybeTriggerMining() {
	p.mu.Lock()
	chain := p.chain
	p.mu.Unlock()

	if chain == nil {
		return
	}
	if p.size() < p.cfg.MinEntriesPerBlock {
		return
	}
	if chain.BlockCreationInProgress() {
		return
	}
	chain.AddBlock(p.Pending())
}
