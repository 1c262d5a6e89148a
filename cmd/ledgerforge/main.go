// Command ledgerforge runs a single node of the permissionless, replicated
// ledger: proof-of-work block creation, gossiped entries and blocks, and
// file-backed persistence (§6.6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerforge/ledgerforge/internal/node"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := node.DefaultConfig

	cmd := &cobra.Command{
		Use:   "ledgerforge",
		Short: "Run a ledgerforge node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ID, "id", cfg.ID, "node id, propagated in handshakes and stamped into mined blocks")
	flags.StringVar(&cfg.Label, "label", cfg.Label, "human-readable node label")
	flags.StringVar(&cfg.IP, "ip", cfg.IP, "advertised IP address")
	flags.StringVar(&cfg.URL, "url", cfg.URL, "advertised WebSocket URL")
	flags.StringVar(&cfg.OwnerAddress, "owner-address", cfg.OwnerAddress, "compressed public key credited for mined blocks")

	flags.IntVar(&cfg.Difficulty, "difficulty", cfg.Difficulty, "required leading hex zeros in mined block hashes")
	flags.Uint64Var(&cfg.FixedReward, "fixed-reward", cfg.FixedReward, "incentive reward amount")
	flags.IntVar(&cfg.MinEntriesPerBlock, "min-entries-per-block", cfg.MinEntriesPerBlock, "entry pool threshold that triggers mining")
	flags.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "file backing chain persistence")

	flags.StringVar(&cfg.BlockchainName, "blockchain-name", cfg.BlockchainName, "genesis determinant: network name")
	flags.Int64Var(&cfg.GenesisTimestamp, "genesis-timestamp", cfg.GenesisTimestamp, "genesis determinant: timestamp in milliseconds")
	flags.StringVar(&cfg.GenesisNote, "genesis-note", cfg.GenesisNote, "genesis determinant: literal note stored as the genesis block's data")

	flags.IntVar(&cfg.Port, "port", cfg.Port, "peer service listen port")
	flags.StringSliceVar(&cfg.SeedPeers, "seed-peers", cfg.SeedPeers, "comma-separated ws:// seed peer URLs to dial at startup")

	return cmd
}

func runNode(ctx context.Context, cfg node.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("ledgerforge: build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	n, err := node.New(cfg, sugar)
	if err != nil {
		return fmt.Errorf("ledgerforge: construct node: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("starting node", "id", cfg.ID, "port", cfg.Port)
	return n.Run(ctx)
}
