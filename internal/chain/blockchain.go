// Package chain implements the Blockchain orchestrator: the component
// that owns the chain and entry pool, mediates the four pluggable
// services through an event bus, and enforces the coordination
// invariants of §4.6.1.
package chain

import (
	"fmt"
	"sync"

	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/consensus"
	"github.com/ledgerforge/ledgerforge/internal/entry"
	"github.com/ledgerforge/ledgerforge/internal/entrypool"
	"github.com/ledgerforge/ledgerforge/internal/incentive"
	"github.com/ledgerforge/ledgerforge/internal/storage"
	"go.uber.org/zap"
)

// Blockchain is the orchestrator of §4.6. It exclusively owns the chain
// slice and delegates to Consensus, Incentive, EntryPool, and Storage,
// each of which holds only the narrow back-reference it needs.
type Blockchain struct {
	consensus consensus.Consensus
	incentive incentive.Incentive
	pool      *entrypool.Pool
	storage   storage.Storage
	bus       *EventBus
	log       *zap.SugaredLogger

	genesisCfg consensus.GenesisConfig

	mu         sync.Mutex
	chainSlice []block.Block
	state      coordinationState
}

// Deps bundles Blockchain's collaborators for construction.
type Deps struct {
	Consensus consensus.Consensus
	Incentive incentive.Incentive
	Pool      *entrypool.Pool
	Storage   storage.Storage
	Logger    *zap.SugaredLogger
	Genesis   consensus.GenesisConfig
}

// New constructs a Blockchain wired to deps. New itself subscribes the
// entry pool's pruning and the consensus engine's mining cancellation;
// callers subscribe any other collaborators to Events() after
// construction (the teacher's wiring-at-composition-time convention).
func New(deps Deps) *Blockchain {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	bc := &Blockchain{
		consensus:  deps.Consensus,
		incentive:  deps.Incentive,
		pool:       deps.Pool,
		storage:    deps.Storage,
		bus:        NewEventBus(),
		log:        logger,
		genesisCfg: deps.Genesis,
	}
	bc.bus.Subscribe(EventPeerBlockAccepted, func(any) { bc.consensus.CancelMining() })
	bc.bus.Subscribe(EventPeerChainAccepted, func(any) { bc.consensus.CancelMining() })
	bc.bus.Subscribe(EventBlockCreated, func(payload any) {
		if b, ok := payload.(block.Block); ok {
			bc.pool.Prune(&b)
		}
	})
	bc.bus.Subscribe(EventPeerBlockAccepted, func(payload any) {
		if b, ok := payload.(block.Block); ok {
			bc.pool.Prune(&b)
		}
	})
	bc.bus.Subscribe(EventPeerChainAccepted, func(payload any) {
		if chain, ok := payload.([]block.Block); ok {
			bc.pool.OnNewPeerChain(chain)
		}
	})
	return bc
}

// Events exposes the subscribe side of the event bus for external wiring
// (Node rebroadcasting entries/blocks).
func (bc *Blockchain) Events() *EventBus { return bc.bus }

// Start implements §4.6's start(): load the persisted chain, or create
// and persist a genesis block if none exists.
func (bc *Blockchain) Start() error {
	loaded, err := bc.storage.LoadChain()
	if err == nil {
		bc.mu.Lock()
		bc.chainSlice = loaded
		bc.mu.Unlock()
		bc.log.Infow("chain loaded from storage", "blocks", len(loaded))
		bc.bus.Publish(EventChainLoaded, loaded)
		return nil
	}

	bc.log.Infow("no persisted chain found, creating genesis", "err", err)
	genesis, err := bc.consensus.CreateGenesis(bc.genesisCfg)
	if err != nil {
		return fmt.Errorf("chain: create genesis: %w", err)
	}
	if err := bc.storage.AppendBlock(*genesis); err != nil {
		return fmt.Errorf("chain: persist genesis: %w", err)
	}
	bc.mu.Lock()
	bc.chainSlice = []block.Block{*genesis}
	bc.mu.Unlock()
	bc.bus.Publish(EventGenesisCreated, *genesis)
	return nil
}

// SubmitEntry implements §4.6's submitEntry(): forward to the pool and
// emit entryAdded on acceptance.
func (bc *Blockchain) SubmitEntry(e entry.Entry) error {
	accepted, err := bc.pool.Submit(e)
	if err != nil {
		return err
	}
	if accepted {
		bc.bus.Publish(EventEntryAdded, e)
	}
	return nil
}

// BlockCreationInProgress implements entrypool.ChainHooks.
func (bc *Blockchain) BlockCreationInProgress() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.state.blockCreationInProgress
}

// AddBlock implements §4.6's addBlock(data) and entrypool.ChainHooks.
// It is non-blocking: mining runs on its own goroutine so the caller
// (typically the entry pool, on its own submit path) is never blocked by
// proof-of-work.
func (bc *Blockchain) AddBlock(data []entry.Entry) {
	bc.mu.Lock()
	if bc.state.blockCreationInProgress {
		bc.mu.Unlock()
		return
	}
	bc.state.blockCreationInProgress = true
	bc.mu.Unlock()

	go bc.createAndCommit(data)
}

func (bc *Blockchain) createAndCommit(data []entry.Entry) {
	bc.bus.Publish(EventBlockCreationStarted, nil)

	var committed *block.Block
	tip := bc.Tip()

	newBlock, err := bc.consensus.CreateBlock(tip.Index+1, block.EntriesData(data), tip.Hash)
	if err != nil {
		bc.log.Errorw("consensus create block failed", "err", err)
	} else if newBlock != nil {
		bc.mu.Lock()
		proceed := !bc.state.processingPeerBlock && !bc.state.processingPeerChain
		if proceed {
			bc.state.processingOwnBlock = true
		}
		bc.mu.Unlock()

		if proceed {
			if err := bc.storage.AppendBlock(*newBlock); err != nil {
				bc.log.Errorw("append own block failed", "err", err)
			} else {
				bc.mu.Lock()
				bc.chainSlice = append(bc.chainSlice, *newBlock)
				height := newBlock.Index
				bc.mu.Unlock()

				committed = newBlock
				bc.bus.Publish(EventBlockCreated, *newBlock)

				if err := bc.incentive.Process(height); err != nil {
					bc.log.Errorw("incentive processing failed", "err", err)
				}
				bc.bus.Publish(EventIncentiveProcessed, nil)
			}

			bc.mu.Lock()
			bc.state.processingOwnBlock = false
			bc.mu.Unlock()
		}
	}

	bc.mu.Lock()
	bc.state.blockCreationInProgress = false
	bc.mu.Unlock()

	bc.bus.Publish(EventBlockCreationEnded, committed)
}

// AddPeerBlock implements §4.6's addPeerBlock(block).
func (bc *Blockchain) AddPeerBlock(b block.Block) (bool, error) {
	bc.mu.Lock()
	if bc.state.processingPeerBlock {
		bc.mu.Unlock()
		return false, nil
	}
	bc.state.processingPeerBlock = true
	bc.mu.Unlock()
	defer func() {
		bc.mu.Lock()
		bc.state.processingPeerBlock = false
		bc.mu.Unlock()
	}()

	valid, err := bc.ValidateBlock(b)
	if err != nil {
		return false, err
	}
	if !valid {
		return false, nil
	}

	bc.mu.Lock()
	proceed := !bc.state.processingOwnBlock && !bc.state.processingPeerChain
	bc.mu.Unlock()
	if !proceed {
		return false, nil
	}

	if err := bc.storage.AppendBlock(b); err != nil {
		return false, err
	}
	bc.mu.Lock()
	bc.chainSlice = append(bc.chainSlice, b)
	bc.mu.Unlock()

	bc.bus.Publish(EventPeerBlockAccepted, b)
	return true, nil
}

// ReplaceChain implements §4.6's replaceChain(newChain).
func (bc *Blockchain) ReplaceChain(newChain []block.Block) (bool, error) {
	bc.mu.Lock()
	if bc.state.processingPeerChain {
		bc.mu.Unlock()
		return false, nil
	}
	bc.state.processingPeerChain = true
	bc.mu.Unlock()
	defer func() {
		bc.mu.Lock()
		bc.state.processingPeerChain = false
		bc.mu.Unlock()
	}()

	if len(newChain) <= len(bc.Chain()) {
		return false, nil
	}
	report := bc.ValidateChain(newChain)
	if !report.IsValid {
		return false, nil
	}

	bc.consensus.CancelMining()

	if err := bc.storage.RewriteChain(newChain); err != nil {
		return false, err
	}

	replaced := append([]block.Block(nil), newChain...)
	bc.mu.Lock()
	bc.chainSlice = replaced
	bc.mu.Unlock()

	bc.bus.Publish(EventPeerChainAccepted, replaced)
	return true, nil
}

// timestampMonotonic implements the loose monotonicity tolerance of §3:
// up to 60s of backward clock drift is tolerated.
func timestampMonotonic(prevMs, curMs int64) bool {
	return curMs > prevMs-60_000
}

// ValidateBlock implements §4.6's validateBlock(block).
func (bc *Blockchain) ValidateBlock(b block.Block) (bool, error) {
	tip := bc.Tip()
	if b.Index != tip.Index+1 {
		return false, nil
	}
	if b.PreviousHash != tip.Hash {
		return false, nil
	}
	if !timestampMonotonic(tip.Timestamp, b.Timestamp) {
		return false, nil
	}
	return bc.consensus.ValidateBlockConsensus(&b)
}

// ValidationError describes one failure found by ValidateChain.
type ValidationError struct {
	ErrorType   string
	BlockNumber uint64
	Message     string
}

// ChainReport is ValidateChain's structured result (§4.6).
type ChainReport struct {
	IsValid                 bool
	BlockCount              int
	AreHashesValid          bool
	ArePreviousHashesValid  bool
	AreIndexesValid         bool
	AreTimestampsValid      bool
	Errors                  []ValidationError
}

// ValidateChain independently re-checks every block at index i>=1 against
// previousHash linkage, index equality, hash self-consistency, and
// timestamp tolerance. A nil chain validates the current in-memory chain.
func (bc *Blockchain) ValidateChain(chain []block.Block) ChainReport {
	if chain == nil {
		chain = bc.Chain()
	}

	report := ChainReport{
		BlockCount:             len(chain),
		AreHashesValid:         true,
		ArePreviousHashesValid: true,
		AreIndexesValid:        true,
		AreTimestampsValid:     true,
	}

	for i, b := range chain {
		_, hashOK, err := b.RecomputeHash()
		if err != nil || !hashOK {
			report.AreHashesValid = false
			report.Errors = append(report.Errors, ValidationError{"hash", b.Index, "block hash does not match its recomputed hash"})
		}
		if i == 0 {
			continue
		}
		prev := chain[i-1]
		if b.Index != prev.Index+1 {
			report.AreIndexesValid = false
			report.Errors = append(report.Errors, ValidationError{"index", b.Index, "block index is not the predecessor's index + 1"})
		}
		if b.PreviousHash != prev.Hash {
			report.ArePreviousHashesValid = false
			report.Errors = append(report.Errors, ValidationError{"previousHash", b.Index, "previousHash does not match predecessor's hash"})
		}
		if !timestampMonotonic(prev.Timestamp, b.Timestamp) {
			report.AreTimestampsValid = false
			report.Errors = append(report.Errors, ValidationError{"timestamp", b.Index, "timestamp precedes predecessor by more than the tolerance"})
		}
	}

	report.IsValid = report.AreHashesValid && report.ArePreviousHashesValid && report.AreIndexesValid && report.AreTimestampsValid
	return report
}

// Tip returns the highest-index block in the local chain.
func (bc *Blockchain) Tip() block.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.chainSlice[len(bc.chainSlice)-1]
}

// Chain returns a snapshot of the current chain.
func (bc *Blockchain) Chain() []block.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return append([]block.Block(nil), bc.chainSlice...)
}

// BlockAt implements incentive.ChainReader: returns the block at the
// given height, assuming the §3 invariant chain[i].Index == i.
func (bc *Blockchain) BlockAt(height uint64) (block.Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if height >= uint64(len(bc.chainSlice)) {
		return block.Block{}, false
	}
	return bc.chainSlice[height], true
}

// Pool exposes the entry pool for query operations and peer-side
// submission.
func (bc *Blockchain) Pool() *entrypool.Pool { return bc.pool }
