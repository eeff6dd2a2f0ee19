package liquidation

import (
	"math/big"

	"tribecore/crypto"
)

// Entry records a liquidation flag raised against an account. It is created
// by Flag, destroyed on resolution and never partially updated.
type Entry struct {
	// Deadline is the timestamp after which forced liquidation is permitted.
	Deadline int64
	// Caller is the flagging address, rewarded at execution time.
	Caller crypto.Address
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// EscrowEntry describes one escrowed collateral tranche. Entries are returned
// oldest-first by the collateral subsystem.
type EscrowEntry struct {
	ID       uint64
	Amount   *big.Int
	Maturity int64
}

// Params groups the governance-controlled liquidation settings. Ratios and
// penalties are 18-decimal fractions; rewards are denominated in collateral
// units. A missing ratio, target or delay is a configuration gap and causes
// hard rejections, never defaults.
type Params struct {
	// LiquidationRatio is the debt/collateral threshold above which an
	// account may be flagged.
	LiquidationRatio *big.Int
	// TargetRatio is the issuance ratio a liquidation restores.
	TargetRatio *big.Int
	// Delay is the number of seconds between flagging and forced
	// liquidation becoming permitted.
	Delay int64
	// Penalty is the extra collateral fraction seized on third-party
	// liquidation.
	Penalty *big.Int
	// SelfPenalty is the reduced fraction applied on self-liquidation.
	SelfPenalty *big.Int
	// FlagReward is paid to the flagger when the liquidation executes.
	FlagReward *big.Int
	// LiquidateReward is paid to the executing caller.
	LiquidateReward *big.Int
	// RewardsPool receives the redeemed collateral remainder for
	// distribution to other stakers.
	RewardsPool crypto.Address
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := Params{Delay: p.Delay, RewardsPool: p.RewardsPool}
	if p.LiquidationRatio != nil {
		clone.LiquidationRatio = new(big.Int).Set(p.LiquidationRatio)
	}
	if p.TargetRatio != nil {
		clone.TargetRatio = new(big.Int).Set(p.TargetRatio)
	}
	if p.Penalty != nil {
		clone.Penalty = new(big.Int).Set(p.Penalty)
	}
	if p.SelfPenalty != nil {
		clone.SelfPenalty = new(big.Int).Set(p.SelfPenalty)
	}
	if p.FlagReward != nil {
		clone.FlagReward = new(big.Int).Set(p.FlagReward)
	}
	if p.LiquidateReward != nil {
		clone.LiquidateReward = new(big.Int).Set(p.LiquidateReward)
	}
	return clone
}
