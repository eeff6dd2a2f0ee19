package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config bundles the runtime settings for the three protocol engines.
type Config struct {
	Ledger      Ledger      `toml:"ledger"`
	Cache       Cache       `toml:"cache"`
	Liquidation Liquidation `toml:"liquidation"`
}

// Load loads the configuration from the given path. A missing file is
// replaced with a default configuration that is also written back, so a
// fresh deployment starts from a reviewable file on disk.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills ambient settings a file may omit. Liquidation values
// are deliberately left alone: a missing ratio must surface as a hard
// rejection downstream, never as a silent default.
func applyDefaults(cfg *Config) {
	if cfg.Ledger.RetainedPeriods == 0 {
		cfg.Ledger.RetainedPeriods = 256
	}
	if strings.TrimSpace(cfg.Cache.StableAsset) == "" {
		cfg.Cache.StableAsset = "tUSD"
	}
	if cfg.Cache.StaleSeconds == 0 {
		cfg.Cache.StaleSeconds = 3600
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Ledger: Ledger{RetainedPeriods: 256},
		Cache:  Cache{StableAsset: "tUSD", StaleSeconds: 3600},
		Liquidation: Liquidation{
			CollateralAsset:  "TRB",
			LiquidationRatio: "0.5",
			TargetRatio:      "0.2",
			DelaySeconds:     28800,
			Penalty:          "0.1",
			SelfPenalty:      "0.02",
			FlagReward:       "10",
			LiquidateReward:  "20",
			RewardsPool:      "trb1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc544s4ej",
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
