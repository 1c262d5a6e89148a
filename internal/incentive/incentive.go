// Package incentive implements the reward bookkeeping that credits block
// creators once their block reaches a confirmation depth (§4.4), modeled
// on the teacher's confirmed-block reward bookkeeping in
// consensus/dpos (confirmedBlockHeader) generalized from
// validator-confirmation counting to a fixed lag.
package incentive

import (
	"time"

	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/entry"
)

// ConfirmationDepth is the fixed number of blocks a creator must wait
// before their reward is credited (§4.4).
const ConfirmationDepth = 6

// MinHeight is the minimum commit height at which a reward can first be
// processed (§4.4): at height 7 the block at height 1 becomes eligible.
const MinHeight = 7

// ChainReader is the narrow surface Incentive needs from Blockchain,
// injected rather than sharing the full mutable aggregate (design notes
// §9).
type ChainReader interface {
	BlockAt(height uint64) (block.Block, bool)
	SubmitEntry(e entry.Entry) error
}

// Incentive is the pluggable reward contract (§4.4).
type Incentive interface {
	// Process is called after a local block commit at the given height.
	Process(height uint64) error
}

// Config configures the delayed-reward variant.
type Config struct {
	FixedReward uint64
	Now         func() time.Time
}

// Delayed is the provided Incentive variant: it credits fixedReward to
// the creator of the block ConfirmationDepth blocks behind the tip, once
// the tip reaches MinHeight.
type Delayed struct {
	cfg   Config
	chain ChainReader
}

// NewDelayed constructs a Delayed incentive. Bind must be called once,
// before Process is invoked, with the Blockchain it rewards against (see
// entrypool.Pool's Bind for why the reference can't be supplied here).
func NewDelayed(cfg Config) *Delayed {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Delayed{cfg: cfg}
}

// Bind wires the incentive to the Blockchain it rewards against.
func (d *Delayed) Bind(chain ChainReader) {
	d.chain = chain
}

// Process implements Incentive.
func (d *Delayed) Process(height uint64) error {
	if height < MinHeight {
		return nil
	}
	target := height - ConfirmationDepth
	rewarded, ok := d.chain.BlockAt(target)
	if !ok {
		return nil
	}

	reward := entry.Entry{
		From:                entry.SenderIncentive,
		To:                  rewarded.OwnerAddress,
		Amount:              d.cfg.FixedReward,
		Type:                "incentive",
		InitiationTimestamp: d.cfg.Now().UnixMilli(),
	}
	reward.AssignID()
	if err := reward.Finalize(); err != nil {
		return err
	}
	return d.chain.SubmitEntry(reward)
}
