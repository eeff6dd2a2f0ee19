package config

import (
	"fmt"
	"strings"
)

// MinRetainedPeriods bounds the ledger retention window from below. One
// retained period would make every historic share query unanswerable the
// moment a snapshot lands.
var MinRetainedPeriods = uint64(2)

// ValidateConfig checks the structural consistency of a loaded configuration.
// Liquidation ratios are permitted to be absent, but present values must
// parse and must be ordered sensibly.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if cfg.Ledger.RetainedPeriods < MinRetainedPeriods {
		return fmt.Errorf("ledger: RetainedPeriods < %d", MinRetainedPeriods)
	}
	if strings.TrimSpace(cfg.Cache.StableAsset) == "" {
		return fmt.Errorf("cache: StableAsset empty")
	}
	if cfg.Cache.StaleSeconds <= 0 {
		return fmt.Errorf("cache: StaleSeconds <= 0")
	}
	if cfg.Liquidation.DelaySeconds < 0 {
		return fmt.Errorf("liquidation: DelaySeconds < 0")
	}

	params, err := cfg.LiquidationParams()
	if err != nil {
		return err
	}
	if params.LiquidationRatio != nil && params.TargetRatio != nil {
		if params.LiquidationRatio.Cmp(params.TargetRatio) <= 0 {
			return fmt.Errorf("liquidation: LiquidationRatio <= TargetRatio")
		}
	}
	if params.LiquidationRatio != nil && params.RewardsPool.IsZero() {
		return fmt.Errorf("liquidation: RewardsPool required when LiquidationRatio set")
	}
	return nil
}
