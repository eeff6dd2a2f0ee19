package config

// Ledger controls the debt-share ledger retention window.
type Ledger struct {
	// RetainedPeriods is the number of fee periods the ledger keeps
	// checkpoint history for. Older checkpoints are pruned on snapshot.
	RetainedPeriods uint64 `toml:"RetainedPeriods"`
}

// Cache controls the debt cache freshness policy.
type Cache struct {
	// StableAsset is the symbol of the stable synth whose supply maps
	// one-to-one onto debt.
	StableAsset string `toml:"StableAsset"`
	// StaleSeconds is the age beyond which a cached snapshot is reported
	// stale.
	StaleSeconds int64 `toml:"StaleSeconds"`
}

// Liquidation carries the governance-controlled liquidation settings.
// Ratios and penalties are decimal strings with up to 18 fractional digits.
type Liquidation struct {
	CollateralAsset  string `toml:"CollateralAsset"`
	LiquidationRatio string `toml:"LiquidationRatio"`
	TargetRatio      string `toml:"TargetRatio"`
	DelaySeconds     int64  `toml:"DelaySeconds"`
	Penalty          string `toml:"Penalty"`
	SelfPenalty      string `toml:"SelfPenalty"`
	FlagReward       string `toml:"FlagReward"`
	LiquidateReward  string `toml:"LiquidateReward"`
	RewardsPool      string `toml:"RewardsPool"`
}
