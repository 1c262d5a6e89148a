// Package consensus defines the pluggable consensus contract and its sole
// provided implementation, proof-of-work.
package consensus

import (
	"github.com/ledgerforge/ledgerforge/internal/block"
)

// GenesisConfig carries the configuration determinants a genesis block
// must derive from deterministically across every peer (§3, §6.4).
type GenesisConfig struct {
	BlockchainName   string
	GenesisTimestamp int64
	GenesisEntries   string // literal genesis note, e.g. "Genesis Block"
}

// Consensus is the pluggable contract §4.2 describes. Proof of work is the
// sole provided variant; the interface exists so a future engine can be
// substituted without touching Blockchain.
type Consensus interface {
	// CreateGenesis deterministically builds the block at index 0.
	CreateGenesis(cfg GenesisConfig) (*block.Block, error)

	// CreateBlock builds and seals a new block at index atop
	// previousHash, carrying data. It blocks until sealed or cancelled;
	// a cancelled attempt returns (nil, nil).
	CreateBlock(index uint64, data block.Data, previousHash string) (*block.Block, error)

	// ValidateBlockHash reports whether b.Hash matches its recomputed
	// hash.
	ValidateBlockHash(b *block.Block) (bool, error)

	// ValidateBlockConsensus additionally enforces engine-specific
	// rules (for PoW, the declared-difficulty prefix).
	ValidateBlockConsensus(b *block.Block) (bool, error)

	// CancelMining cooperatively stops any in-flight CreateBlock call.
	// Called by Blockchain when a peer block or peer chain is accepted
	// (§4.6.1).
	CancelMining()
}
