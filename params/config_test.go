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

package params

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "/api", cfg.APIServer.Path)
	assert.True(t, cfg.APIServer.Zil.VerifySign)
	assert.Equal(t, 10, cfg.Mining.MaxDispatch)
	assert.Equal(t, 8, cfg.Zilliqa.PoWBoundaryNDivided)
	assert.Equal(t, 32, cfg.Zilliqa.PoWBoundaryNDividedStart)
	assert.False(t, cfg.Zilliqa.Enabled)
}

func TestLoadConfig(t *testing.T) {
	content := `
[api_server]
host = "127.0.0.1"
port = 8080

[api_server.zil]
verify_sign = false

[database]
uri = "memory:"

[mining]
min_fee = 0.5
max_dispatch = 3
inc_expire = 30

[zilliqa]
enabled = true
BLOCK_PER_POW = 50

[logging]
level = "debug"
`
	path := filepath.Join(t.TempDir(), "pool.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.APIServer.Host)
	assert.Equal(t, 8080, cfg.APIServer.Port)
	assert.False(t, cfg.APIServer.Zil.VerifySign)
	assert.Equal(t, "memory:", cfg.Database.URI)
	assert.Equal(t, 0.5, cfg.Mining.MinFee)
	assert.Equal(t, 3, cfg.Mining.MaxDispatch)
	assert.True(t, cfg.Zilliqa.Enabled)
	assert.Equal(t, 50, cfg.Zilliqa.BlockPerPoW)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// unset options keep their defaults
	assert.Equal(t, "/api", cfg.APIServer.Path)
	assert.Equal(t, 300, cfg.Zilliqa.PoWWindowInSeconds)
}

func TestResolvePath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "zilpool.db", cfg.ResolvePath("zilpool.db"))

	cfg.Datadir = "/var/lib/zilpool"
	assert.Equal(t, filepath.Join("/var/lib/zilpool", "zilpool.db"), cfg.ResolvePath("zilpool.db"))
	assert.Equal(t, filepath.Join("/var/lib/zilpool", "mykey.txt"), cfg.ResolvePath("mykey.txt"))

	// absolute paths and the transient store bypass the data directory
	assert.Equal(t, "/tmp/other.db", cfg.ResolvePath("/tmp/other.db"))
	assert.Equal(t, MemoryURI, cfg.ResolvePath(MemoryURI))
	assert.Equal(t, "", cfg.ResolvePath(""))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/pool.toml")
	assert.Error(t, err)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
