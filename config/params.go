package config

import (
	"fmt"
	"math/big"
	"strings"

	"tribecore/core/fixedpoint"
	"tribecore/crypto"
	"tribecore/native/liquidation"
)

// LiquidationParams parses the configured liquidation settings into runtime
// values. Fields left blank stay unset, so the engine can reject the gap
// instead of running on an invented default.
func (c Config) LiquidationParams() (liquidation.Params, error) {
	params := liquidation.Params{Delay: c.Liquidation.DelaySeconds}

	ratio, err := parseFraction(c.Liquidation.LiquidationRatio)
	if err != nil {
		return params, fmt.Errorf("invalid liquidation.LiquidationRatio: %w", err)
	}
	params.LiquidationRatio = ratio

	target, err := parseFraction(c.Liquidation.TargetRatio)
	if err != nil {
		return params, fmt.Errorf("invalid liquidation.TargetRatio: %w", err)
	}
	params.TargetRatio = target

	penalty, err := parseFraction(c.Liquidation.Penalty)
	if err != nil {
		return params, fmt.Errorf("invalid liquidation.Penalty: %w", err)
	}
	params.Penalty = penalty

	selfPenalty, err := parseFraction(c.Liquidation.SelfPenalty)
	if err != nil {
		return params, fmt.Errorf("invalid liquidation.SelfPenalty: %w", err)
	}
	params.SelfPenalty = selfPenalty

	flagReward, err := parseFraction(c.Liquidation.FlagReward)
	if err != nil {
		return params, fmt.Errorf("invalid liquidation.FlagReward: %w", err)
	}
	params.FlagReward = flagReward

	liqReward, err := parseFraction(c.Liquidation.LiquidateReward)
	if err != nil {
		return params, fmt.Errorf("invalid liquidation.LiquidateReward: %w", err)
	}
	params.LiquidateReward = liqReward

	if pool := strings.TrimSpace(c.Liquidation.RewardsPool); pool != "" {
		addr, err := crypto.DecodeAddress(pool)
		if err != nil {
			return params, fmt.Errorf("invalid liquidation.RewardsPool: %w", err)
		}
		params.RewardsPool = addr
	}

	return params, nil
}

func parseFraction(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := fixedpoint.ParseDecimal(trimmed)
	if err != nil {
		return nil, err
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("value must not be negative")
	}
	return parsed, nil
}
