// Package storage defines the persistence contract and its file-backed
// implementation (§4.5, §6.1).
package storage

import "github.com/ledgerforge/ledgerforge/internal/block"

// Storage is the pluggable persistence contract.
type Storage interface {
	// AppendBlock atomically appends b to the persisted stream.
	AppendBlock(b block.Block) error
	// LoadChain returns the persisted chain, or an error if it is empty
	// or absent — that failure is the genesis-creation signal.
	LoadChain() ([]block.Block, error)
	// RewriteChain atomically replaces the persisted stream with chain,
	// used when a longer peer chain is accepted.
	RewriteChain(chain []block.Block) error
	// Export returns a pretty-printed JSON dump of the persisted chain.
	Export() ([]byte, error)
}
