// Package node is the composition root: it wires Consensus, Incentive,
// EntryPool, Storage, Blockchain, and the peer mesh into a single running
// node (§6.4), adapted from the teacher's node/defaults.go default-config
// and home-directory resolution.
package node

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ledgerforge/ledgerforge/internal/consensus"
)

// Default tuning constants (§6.4).
const (
	DefaultDifficulty         = 4
	DefaultFixedReward        = 50
	DefaultMinEntriesPerBlock = 1
	DefaultPort               = 30303
	DefaultBlockchainName     = "ledgerforge"
)

// Config describes a single node's identity and tuning (§6.4).
type Config struct {
	ID           string
	Label        string
	IP           string
	URL          string
	OwnerAddress string

	Difficulty         int
	FixedReward        uint64
	MinEntriesPerBlock int
	StoragePath        string

	BlockchainName   string
	GenesisTimestamp int64
	GenesisNote      string

	Port      int
	SeedPeers []string
	AutoStart bool
}

// DefaultConfig contains reasonable standalone-node settings, grounded on
// the teacher's DefaultConfig (same role, new fields for our domain).
var DefaultConfig = Config{
	Difficulty:         DefaultDifficulty,
	FixedReward:        DefaultFixedReward,
	MinEntriesPerBlock: DefaultMinEntriesPerBlock,
	StoragePath:        filepath.Join(DefaultDataDir(), "chain.log"),
	BlockchainName:     DefaultBlockchainName,
	Port:               DefaultPort,
	AutoStart:          true,
}

// DefaultDataDir resolves the default data directory for chain storage,
// following the teacher's per-OS layout.
func DefaultDataDir() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "LedgerForge")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "LedgerForge")
	default:
		return filepath.Join(home, ".ledgerforge")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// genesisConfig derives the consensus genesis configuration from cfg.
func (c Config) genesisConfig() consensus.GenesisConfig {
	ts := c.GenesisTimestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	note := c.GenesisNote
	if note == "" {
		note = "Genesis Block"
	}
	return consensus.GenesisConfig{
		BlockchainName:   c.BlockchainName,
		GenesisTimestamp: ts,
		GenesisEntries:   note,
	}
}

func (c Config) validate() error {
	if c.ID == "" {
		return fmt.Errorf("node: config requires a non-empty ID")
	}
	if c.OwnerAddress == "" {
		return fmt.Errorf("node: config requires a non-empty OwnerAddress")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("node: config requires a non-empty StoragePath")
	}
	return nil
}
