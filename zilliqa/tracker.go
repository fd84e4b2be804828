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
	"sync"
	"time"

	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/params"
)

// Tracker polls the chain on an interval and answers PoW-window timing
// questions from the cached state. Poll failures are logged and swallowed;
// the tracker never takes the server down.
type Tracker struct {
	cfg    params.ZilliqaConfig
	client *Client
	logger log.Logger

	mu               sync.Mutex
	curTxBlock       uint64
	curDSBlock       uint64
	shardDifficulty  uint64
	dsDifficulty     uint64
	estimatedPoWTime time.Time

	callbacks []func(txBlock uint64)

	now func() time.Time
}

// NewTracker creates a tracker over the configured API endpoint.
func NewTracker(cfg params.ZilliqaConfig) *Tracker {
	return &Tracker{
		cfg:    cfg,
		client: NewClient(cfg.APIEndpoint),
		logger: log.New("pkg", "zilliqa"),
		now:    time.Now,
	}
}

// Enabled reports whether chain integration is on.
func (t *Tracker) Enabled() bool {
	return t.cfg.Enabled
}

// RegisterCallback subscribes to TX-block advances; the dummy-work pump
// uses this to ride the chain cadence.
func (t *Tracker) RegisterCallback(cb func(txBlock uint64)) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// Run polls the chain every update_interval seconds until the context is
// cancelled.
func (t *Tracker) Run(ctx context.Context) {
	interval := time.Duration(t.cfg.UpdateInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t.Update(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Update(ctx)
		}
	}
}

// Update refreshes every tracked value once. Each call failure is logged
// and leaves the previous value standing.
func (t *Tracker) Update(ctx context.Context) {
	if txBlock, err := t.client.GetCurrentMiniEpoch(ctx); err != nil {
		t.logger.Warn("Failed to fetch tx block", "err", err)
	} else {
		t.advanceTxBlock(txBlock)
	}
	if dsBlock, err := t.client.GetCurrentDSEpoch(ctx); err != nil {
		t.logger.Warn("Failed to fetch ds block", "err", err)
	} else {
		t.mu.Lock()
		if dsBlock > t.curDSBlock {
			t.curDSBlock = dsBlock
		}
		t.mu.Unlock()
	}
	if diff, err := t.client.GetPrevDifficulty(ctx); err != nil {
		t.logger.Warn("Failed to fetch shard difficulty", "err", err)
	} else if diff > 0 {
		t.mu.Lock()
		t.shardDifficulty = diff
		t.mu.Unlock()
	}
	if diff, err := t.client.GetPrevDSDifficulty(ctx); err != nil {
		t.logger.Warn("Failed to fetch ds difficulty", "err", err)
	} else if diff > 0 {
		t.mu.Lock()
		t.dsDifficulty = diff
		t.mu.Unlock()
	}
}

// advanceTxBlock records a newer TX block, re-anchors the next-PoW
// estimate and fires the block callbacks.
func (t *Tracker) advanceTxBlock(txBlock uint64) {
	t.mu.Lock()
	if txBlock <= t.curTxBlock {
		t.mu.Unlock()
		return
	}
	t.curTxBlock = txBlock
	t.estimatedPoWTime = t.now().Add(t.calcSecsToPoW(txBlock))
	callbacks := append([]func(uint64){}, t.callbacks...)
	t.mu.Unlock()

	for _, cb := range callbacks {
		go cb(txBlock)
	}
}

// calcSecsToPoW estimates the distance to the next PoW window from the
// position of a TX block inside its DS epoch. Caller holds t.mu.
func (t *Tracker) calcSecsToPoW(txBlock uint64) time.Duration {
	blockPerPoW := uint64(t.cfg.BlockPerPoW)
	if blockPerPoW == 0 {
		return 0
	}
	blockInEpoch := txBlock % blockPerPoW
	if blockInEpoch == 0 {
		return 0
	}
	secs := float64(blockPerPoW-blockInEpoch) * t.cfg.AvgBlockTime
	return time.Duration(secs * float64(time.Second))
}

// CurrentTxBlock returns the last observed TX block.
func (t *Tracker) CurrentTxBlock() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.curTxBlock
}

// CurrentDSBlock returns the last observed DS block.
func (t *Tracker) CurrentDSBlock() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.curDSBlock
}

// Difficulties returns the (shard, DS) difficulty pair.
func (t *Tracker) Difficulties() (uint64, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shardDifficulty, t.dsDifficulty
}

// IsPoWWindow reports whether the chain is inside a PoW window: the first
// or last TX block of a DS epoch.
func (t *Tracker) IsPoWWindow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.curTxBlock == 0 {
		return false
	}
	blockPerPoW := uint64(t.cfg.BlockPerPoW)
	if blockPerPoW == 0 {
		return false
	}
	blockInEpoch := t.curTxBlock % blockPerPoW
	return blockInEpoch == 0 || blockInEpoch == blockPerPoW-1
}

// SecsToNextPoW returns the estimated seconds until the next PoW window,
// re-anchoring a stale estimate first.
func (t *Tracker) SecsToNextPoW() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.curTxBlock == 0 || t.estimatedPoWTime.IsZero() {
		return 0
	}
	now := t.now()
	if now.After(t.estimatedPoWTime) {
		t.estimatedPoWTime = now.Add(t.calcSecsToPoW(t.curTxBlock))
	}
	return t.estimatedPoWTime.Sub(now).Seconds()
}

// Balance fetches an account balance in whole coins.
func (t *Tracker) Balance(ctx context.Context, address string) (float64, error) {
	qa, err := t.client.GetBalance(ctx, address)
	if err != nil {
		return 0, err
	}
	return float64(qa) / params.QaPerZil, nil
}
