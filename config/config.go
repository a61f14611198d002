package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Defaults applied when a field is absent from the file
const (
	DefaultPort            = 8080
	DefaultCacheMB         = 32
	DefaultMaxLockDuration = 5 * 365 * 24 * time.Hour
)

// Config holds all configurable parameters for the ledger daemon
type Config struct {
	Port          int    `json:"port"`
	StorageDir    string `json:"storage_dir"` // empty keeps state in memory
	Administrator string `json:"administrator"`
	AutoUnlock    bool   `json:"auto_unlock"`
	// MaxLockDurationSec caps release times relative to now; 0 keeps the default
	MaxLockDurationSec int64 `json:"max_lock_duration_sec"`
	SnapshotIntervalMs int64 `json:"snapshot_interval_ms"`
	CacheMB            int   `json:"cache_mb"`
}

// Load reads and parses a config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{AutoUnlock: true}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads config/config.json relative to the working directory
func LoadDefault() (*Config, error) {
	return Load("config/config.json")
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{AutoUnlock: true}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.CacheMB == 0 {
		c.CacheMB = DefaultCacheMB
	}
	if c.MaxLockDurationSec == 0 {
		c.MaxLockDurationSec = int64(DefaultMaxLockDuration / time.Second)
	}
}

// Validate rejects values the daemon cannot start with
func (c *Config) Validate() error {
	if c.Administrator != "" && !common.IsHexAddress(c.Administrator) {
		return fmt.Errorf("administrator %q is not an address", c.Administrator)
	}
	if c.MaxLockDurationSec < 0 || c.SnapshotIntervalMs < 0 || c.CacheMB < 0 {
		return fmt.Errorf("max_lock_duration_sec, snapshot_interval_ms and cache_mb must not be negative")
	}
	return nil
}

// AdministratorAddress returns the configured administrator (zero if unset)
func (c *Config) AdministratorAddress() common.Address {
	return common.HexToAddress(c.Administrator)
}

// MaxLockDuration returns the lock duration ceiling
func (c *Config) MaxLockDuration() time.Duration {
	return time.Duration(c.MaxLockDurationSec) * time.Second
}

// SnapshotInterval returns the periodic snapshot interval (0 = disabled)
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMs) * time.Millisecond
}
