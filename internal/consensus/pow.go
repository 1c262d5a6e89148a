package consensus

import (
	"sync"
	"time"

	"github.com/ledgerforge/ledgerforge/internal/block"
)

// cancelToken is a one-way, idempotent cancellation signal, modeled on the
// teacher's quitCh-close pattern in miner/worker.go.
type cancelToken struct {
	ch   chan struct{}
	once sync.Once
}

func newCancelToken() *cancelToken {
	return &cancelToken{ch: make(chan struct{})}
}

func (c *cancelToken) cancel() {
	c.once.Do(func() { close(c.ch) })
}

// PoWConfig configures the proof-of-work engine.
type PoWConfig struct {
	Difficulty    int // required leading hex zeros
	MinDifficulty int // network-agreed floor a peer block's declared difficulty must meet
	NodeID        string
	OwnerAddress  string
	// Now returns the current time; defaults to time.Now. Overridable for
	// deterministic tests.
	Now func() time.Time
}

// PoW is the proof-of-work Consensus variant (§4.2).
type PoW struct {
	cfg PoWConfig

	mu      sync.Mutex
	current *cancelToken
}

// NewPoW constructs a PoW engine from cfg.
func NewPoW(cfg PoWConfig) *PoW {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MinDifficulty <= 0 {
		cfg.MinDifficulty = cfg.Difficulty
	}
	return &PoW{cfg: cfg}
}

func (p *PoW) now() int64 { return p.cfg.Now().UnixMilli() }

// CreateGenesis implements Consensus. Every node with identical cfg
// produces a byte-identical genesis block (§3).
func (p *PoW) CreateGenesis(cfg GenesisConfig) (*block.Block, error) {
	b := &block.Block{
		Index:        0,
		Timestamp:    cfg.GenesisTimestamp,
		PreviousHash: "0",
		BlockCreator: "Genesis Block",
		OwnerAddress: "Genesis Block",
		Data:         block.GenesisData(cfg.GenesisEntries),
		Difficulty:   p.cfg.Difficulty,
	}
	if _, err := block.Mine(b, nil); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateBlock implements Consensus. It constructs a fresh block tagged
// with this node's identity, records its cancellation token as the
// engine's in-flight token (p.current, which CancelMining closes), mines
// it, and clears the reference on return.
func (p *PoW) CreateBlock(index uint64, data block.Data, previousHash string) (*block.Block, error) {
	token := newCancelToken()

	p.mu.Lock()
	p.current = token
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == token {
			p.current = nil
		}
		p.mu.Unlock()
	}()

	b := &block.Block{
		Index:        index,
		Timestamp:    p.now(),
		PreviousHash: previousHash,
		BlockCreator: p.cfg.NodeID,
		OwnerAddress: p.cfg.OwnerAddress,
		Data:         data,
		Difficulty:   p.cfg.Difficulty,
	}

	ok, err := block.Mine(b, token.ch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return b, nil
}

// ValidateBlockHash implements Consensus.
func (p *PoW) ValidateBlockHash(b *block.Block) (bool, error) {
	_, valid, err := b.RecomputeHash()
	return valid, err
}

// ValidateBlockConsensus implements Consensus. Beyond hash
// self-consistency it explicitly re-checks the declared-difficulty prefix
// and a network-agreed minimum, rejecting a block that spoofs a low
// declared difficulty with a hash that happens to be self-consistent
// (§4.2, §9 open question).
func (p *PoW) ValidateBlockConsensus(b *block.Block) (bool, error) {
	validHash, err := p.ValidateBlockHash(b)
	if err != nil || !validHash {
		return false, err
	}
	if b.Difficulty < p.cfg.MinDifficulty {
		return false, nil
	}
	return block.HasDifficultyPrefix(b.Hash, b.Difficulty), nil
}

// CancelMining implements Consensus.
func (p *PoW) CancelMining() {
	p.mu.Lock()
	token := p.current
	p.mu.Unlock()
	if token != nil {
		token.cancel()
	}
}
