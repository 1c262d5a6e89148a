package node

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/chain"
	"github.com/ledgerforge/ledgerforge/internal/consensus"
	"github.com/ledgerforge/ledgerforge/internal/entry"
	"github.com/ledgerforge/ledgerforge/internal/entrypool"
	"github.com/ledgerforge/ledgerforge/internal/incentive"
	"github.com/ledgerforge/ledgerforge/internal/peer"
	"github.com/ledgerforge/ledgerforge/internal/storage"
	"go.uber.org/zap"
)

// Node is the composition root of §4.8: it owns one blockchain, its
// consensus/incentive/pool/storage collaborators, and the peer mesh, and
// wires the Blockchain's events to gossip broadcast.
type Node struct {
	cfg   Config
	log   *zap.SugaredLogger
	chain *chain.Blockchain
	query *chain.QueryAPI
	peers *peer.Service
}

// New constructs a Node from cfg without starting it. Logger may be nil,
// in which case a no-op logger is used.
func New(cfg Config, logger *zap.SugaredLogger) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	pow := consensus.NewPoW(consensus.PoWConfig{
		Difficulty:   cfg.Difficulty,
		NodeID:       cfg.ID,
		OwnerAddress: cfg.OwnerAddress,
	})

	pool := entrypool.New(entrypool.Config{MinEntriesPerBlock: cfg.MinEntriesPerBlock})
	reward := incentive.NewDelayed(incentive.Config{FixedReward: cfg.FixedReward})
	store := storage.NewFile(cfg.StoragePath)

	bc := chain.New(chain.Deps{
		Consensus: pow,
		Incentive: reward,
		Pool:      pool,
		Storage:   store,
		Logger:    logger,
		Genesis:   cfg.genesisConfig(),
	})

	// Two-phase construction breaks the Blockchain/Pool/Incentive
	// construction cycle: Pool and Incentive are built first, handed to
	// Blockchain, then bound back to it once it exists.
	pool.Bind(bc)
	reward.Bind(bc)

	self := peer.SenderConfig{
		ID:             cfg.ID,
		Label:          cfg.Label,
		IP:             cfg.IP,
		URL:            cfg.URL,
		P2PPort:        cfg.Port,
		WebServicePort: cfg.Port,
	}
	peers := peer.NewService(self, bc, logger)

	n := &Node{
		cfg:   cfg,
		log:   logger,
		chain: bc,
		query: chain.NewQueryAPI(bc),
		peers: peers,
	}

	// §4.8: entryAdded -> broadcastEntry, blockCreated -> broadcastBlock.
	bc.Events().Subscribe(chain.EventEntryAdded, func(payload any) {
		e, ok := payload.(entry.Entry)
		if !ok {
			return
		}
		if err := n.peers.BroadcastEntry(e); err != nil {
			n.log.Warnw("broadcast entry failed", "err", err)
		}
	})
	bc.Events().Subscribe(chain.EventBlockCreated, func(payload any) {
		b, ok := payload.(block.Block)
		if !ok {
			return
		}
		if err := n.peers.BroadcastBlock(b); err != nil {
			n.log.Warnw("broadcast block failed", "err", err)
		}
	})

	return n, nil
}

// Start loads or creates the genesis block, dials configured seed peers,
// and begins listening for inbound peer connections on cfg.Port.
func (n *Node) Start() error {
	if err := n.chain.Start(); err != nil {
		return fmt.Errorf("node: start chain: %w", err)
	}
	n.peers.DialSeeds(n.cfg.SeedPeers)

	mux := http.NewServeMux()
	mux.HandleFunc("/", n.peers.HandleWS)
	addr := fmt.Sprintf(":%d", n.cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		n.log.Infow("peer service listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.log.Errorw("peer listener stopped", "err", err)
		}
	}()
	return nil
}

// Run starts the node and blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Chain exposes the blockchain orchestrator for submission and inspection.
func (n *Node) Chain() *chain.Blockchain { return n.chain }

// Query exposes the read-only query surface.
func (n *Node) Query() *chain.QueryAPI { return n.query }

// Peers exposes the peer mesh, chiefly for PeerCount in health checks.
func (n *Node) Peers() *peer.Service { return n.peers }
