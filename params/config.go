// Copyright 2019 The go-zilpool Authors
// This file is part of the go-zilpool library.
//
// The go-zilpool library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-zilpool library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-zilpool library. If not, see <http://www.gnu.org/licenses/>.

// Package params holds the proxy configuration and protocol constants.
package params

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/naoina/toml"
)

// APIServerConfig configures the HTTP JSON-RPC listener.
type APIServerConfig struct {
	Host    string
	Port    int
	Path    string
	Enabled bool

	Zil ZilAPIConfig
}

// ZilAPIConfig tunes the node-facing surface.
type ZilAPIConfig struct {
	// VerifySign disables Schnorr checks when false; test deployments
	// only.
	VerifySign bool
}

// StratumServerConfig configures the TCP push listener.
type StratumServerConfig struct {
	Host    string
	Port    int
	Enabled bool

	// DummyWorkInterval fabricates keep-alive jobs this many seconds
	// apart between real PoW windows; zero disables the pump.
	DummyWorkInterval int
}

// DatabaseConfig locates the document store.
type DatabaseConfig struct {
	// URI is the store location; "memory:" opens a transient in-memory
	// store.
	URI string
}

// MiningConfig carries the dispatch policy defaults.
type MiningConfig struct {
	MinFee      float64
	MaxDispatch int
	IncExpire   int

	DefaultMiner string
}

// ZilliqaConfig controls chain integration.
type ZilliqaConfig struct {
	Enabled        bool
	APIEndpoint    string
	UpdateInterval int

	BlockPerPoW              int `toml:"BLOCK_PER_POW"`
	PoWWindowInSeconds       int `toml:"POW_WINDOW_IN_SECONDS"`
	PoWBoundaryNDivided      int `toml:"POW_BOUNDARY_N_DIVIDED"`
	PoWBoundaryNDividedStart int `toml:"POW_BOUNDARY_N_DIVIDED_START"`

	// AllowDSPoW admits work at the DS difficulty, not only the shard
	// difficulty.
	AllowDSPoW bool

	// AvgBlockTime anchors the next-window estimate, in seconds.
	AvgBlockTime float64
}

// PoolConfig lists administrative identities.
type PoolConfig struct {
	Admins []string
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level        string
	File         string
	RotatingSize int
	BackupCount  int
}

// Config is the full recognized option tree.
type Config struct {
	// Datadir anchors every relative path the proxy touches: the store
	// directory, key files and log files.
	Datadir string

	APIServer     APIServerConfig     `toml:"api_server"`
	StratumServer StratumServerConfig `toml:"stratum_server"`
	Database      DatabaseConfig
	Mining        MiningConfig
	Zilliqa       ZilliqaConfig
	Pool          PoolConfig
	Logging       LoggingConfig
}

// ResolvePath anchors a relative path at the data directory. Absolute
// paths and the "memory:" store URI pass through untouched.
func (c *Config) ResolvePath(path string) string {
	if path == "" || path == MemoryURI || filepath.IsAbs(path) {
		return path
	}
	if c.Datadir == "" {
		return path
	}
	return filepath.Join(c.Datadir, path)
}

// MemoryURI is the transient in-memory store location; never resolved
// against the data directory.
const MemoryURI = "memory:"

// DefaultConfig returns the options used when the config file leaves them
// unset.
func DefaultConfig() *Config {
	return &Config{
		APIServer: APIServerConfig{
			Host:    "0.0.0.0",
			Port:    4202,
			Path:    "/api",
			Enabled: true,
			Zil: ZilAPIConfig{
				VerifySign: true,
			},
		},
		StratumServer: StratumServerConfig{
			Host:    "0.0.0.0",
			Port:    4203,
			Enabled: true,
		},
		Database: DatabaseConfig{
			URI: "zilpool.db",
		},
		Mining: MiningConfig{
			MinFee:       0.0,
			MaxDispatch:  10,
			IncExpire:    0,
			DefaultMiner: DefaultMiner,
		},
		Zilliqa: ZilliqaConfig{
			Enabled:                  false,
			APIEndpoint:              "https://api.zilliqa.com/",
			UpdateInterval:           30,
			BlockPerPoW:              100,
			PoWWindowInSeconds:       300,
			PoWBoundaryNDivided:      8,
			PoWBoundaryNDividedStart: 32,
			AllowDSPoW:               false,
			AvgBlockTime:             60,
		},
		Logging: LoggingConfig{
			Level:        "info",
			RotatingSize: 8,
			BackupCount:  5,
		},
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
