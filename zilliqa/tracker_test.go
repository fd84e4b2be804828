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

package zilliqa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durianstall/go-zilpool/params"
)

// fakeChain serves the subset of the Zilliqa API the tracker polls.
type fakeChain struct {
	txBlock atomic.Uint64
	dsBlock atomic.Uint64
	fail    atomic.Bool
}

func (f *fakeChain) handler(w http.ResponseWriter, r *http.Request) {
	if f.fail.Load() {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	var result any
	switch req.Method {
	case "GetCurrentMiniEpoch":
		// block numbers arrive as quoted decimal strings
		result = strconv.FormatUint(f.txBlock.Load(), 10)
	case "GetCurrentDSEpoch":
		result = strconv.FormatUint(f.dsBlock.Load(), 10)
	case "GetPrevDifficulty":
		result = 33
	case "GetPrevDSDifficulty":
		result = 40
	case "GetBalance":
		result = map[string]any{"balance": "2000000000000", "nonce": 1}
	default:
		http.Error(w, "unknown method", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"id": 1, "jsonrpc": "2.0", "result": result})
}

func newTestTracker(t *testing.T, chain *fakeChain) *Tracker {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(chain.handler))
	t.Cleanup(srv.Close)

	cfg := params.DefaultConfig().Zilliqa
	cfg.Enabled = true
	cfg.APIEndpoint = srv.URL
	cfg.BlockPerPoW = 100
	cfg.AvgBlockTime = 10
	return NewTracker(cfg)
}

func TestTrackerUpdate(t *testing.T) {
	chain := &fakeChain{}
	chain.txBlock.Store(500)
	chain.dsBlock.Store(5)
	tracker := newTestTracker(t, chain)

	tracker.Update(context.Background())
	assert.Equal(t, uint64(500), tracker.CurrentTxBlock())
	assert.Equal(t, uint64(5), tracker.CurrentDSBlock())
	shard, ds := tracker.Difficulties()
	assert.Equal(t, uint64(33), shard)
	assert.Equal(t, uint64(40), ds)
}

func TestTrackerSurvivesAPIFailures(t *testing.T) {
	chain := &fakeChain{}
	chain.txBlock.Store(500)
	tracker := newTestTracker(t, chain)
	tracker.Update(context.Background())

	// failures leave the previous state standing
	chain.fail.Store(true)
	tracker.Update(context.Background())
	assert.Equal(t, uint64(500), tracker.CurrentTxBlock())

	// stale blocks never rewind the tracker
	chain.fail.Store(false)
	chain.txBlock.Store(400)
	tracker.Update(context.Background())
	assert.Equal(t, uint64(500), tracker.CurrentTxBlock())
}

func TestIsPoWWindow(t *testing.T) {
	for _, tc := range []struct {
		txBlock uint64
		want    bool
	}{
		{100, true},  // first block of the DS epoch
		{199, true},  // last block before the next PoW
		{150, false}, // middle of the epoch
	} {
		chain := &fakeChain{}
		tracker := newTestTracker(t, chain)
		assert.False(t, tracker.IsPoWWindow(), "no chain state yet")

		chain.txBlock.Store(tc.txBlock)
		tracker.Update(context.Background())
		assert.Equal(t, tc.want, tracker.IsPoWWindow(), "tx block %d", tc.txBlock)
	}
}

func TestSecsToNextPoW(t *testing.T) {
	chain := &fakeChain{}
	chain.txBlock.Store(150)
	tracker := newTestTracker(t, chain)
	tracker.Update(context.Background())

	// 50 blocks to go at 10s each
	secs := tracker.SecsToNextPoW()
	assert.InDelta(t, 500, secs, 5)
}

func TestTrackerCallbacks(t *testing.T) {
	chain := &fakeChain{}
	chain.txBlock.Store(100)
	tracker := newTestTracker(t, chain)

	seen := make(chan uint64, 1)
	tracker.RegisterCallback(func(b uint64) { seen <- b })
	tracker.Update(context.Background())

	select {
	case b := <-seen:
		assert.Equal(t, uint64(100), b)
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestBalance(t *testing.T) {
	chain := &fakeChain{}
	tracker := newTestTracker(t, chain)

	balance, err := tracker.Balance(context.Background(), "0x"+"12"+"34")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, balance, 1e-9)
}
