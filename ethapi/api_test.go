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

package ethapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/consensus/ethash"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/pool"
	"github.com/durianstall/go-zilpool/storage"
)

// proof of concept nine testnet fixture, epoch 0
const (
	powHeader = "0x372eca2454ead349c3df0ab5d00b0b706b23e49d469387db91811cee0358fc6d"
	powNonce  = "0x495732e0ed7a801c"
	powMix    = "0x2f74cdeb198af0b9abe65d22d372e22fb2d474371774a9583c1cc427a07939f5"
	powBlock  = uint64(22)
)

var (
	boundary20 = common.BytesToHex0x(ethash.DifficultyToBoundary(20))
	testWallet = "0x" + strings.Repeat("12", 20)
)

var sharedVerifier = ethash.NewVerifier()

type testEnv struct {
	api  *API
	pool *pool.Pool
	db   *storage.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(storage.MemoryURI)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := params.DefaultConfig()
	p := pool.New(db, cfg)
	return &testEnv{
		api:  New(p, sharedVerifier, cfg),
		pool: p,
		db:   db,
	}
}

func rawParams(t *testing.T, vals ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		enc, err := json.Marshal(v)
		require.NoError(t, err)
		out[i] = enc
	}
	return out
}

func TestGetWorkEmptyPool(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.api.getWork(context.Background(), nil)
	require.NoError(t, err)
	fields := got.([]any)
	assert.Equal(t, "", fields[0])
	assert.Equal(t, false, fields[3])
}

func TestGetWorkDispatches(t *testing.T) {
	env := newTestEnv(t)

	work, ok := env.pool.NewWork(powHeader, powBlock, boundary20, "", "", 120, 0)
	require.True(t, ok)

	got, err := env.api.getWork(context.Background(), nil)
	require.NoError(t, err)
	fields := got.([]any)
	assert.Equal(t, powHeader, fields[0])
	assert.Equal(t, work.Seed, fields[1])
	assert.Equal(t, boundary20, fields[2])
	assert.Equal(t, true, fields[3])
	assert.Equal(t, 0, fields[4])

	// the dispatch was counted
	updated, ok := env.pool.FindWorkByHeaderBoundary(powHeader, boundary20, true)
	require.True(t, ok)
	assert.Equal(t, 1, updated.Dispatched)
}

func TestSubmitWorkHappyPath(t *testing.T) {
	env := newTestEnv(t)

	_, ok := env.pool.NewWork(powHeader, powBlock, boundary20, "", "", 120, 0.5)
	require.True(t, ok)

	got, err := env.api.submitWork(context.Background(),
		rawParams(t, powNonce, powHeader, powMix, boundary20, testWallet, "rig0"))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	// result persisted with the actual hash output
	result, ok := env.db.LatestResult(powHeader, boundary20, "")
	require.True(t, ok)
	assert.Equal(t, powNonce, result.Nonce)
	assert.Equal(t, powMix, result.MixDigest)
	assert.Equal(t, "0x00000b184f1fdd88bfd94c86c39e65db0c36144d5e43f745f722196e730cb614", result.HashResult)
	assert.Equal(t, 0.5, result.PoWFee)

	worker, ok := env.db.GetWorker(testWallet, "rig0")
	require.True(t, ok)
	assert.Equal(t, 1, worker.WorkSubmitted)
	assert.Equal(t, 1, worker.WorkFinished)
	assert.Equal(t, 0, worker.WorkFailed)

	// the same solution again is not strictly better
	got, err = env.api.submitWork(context.Background(),
		rawParams(t, powNonce, powHeader, powMix, boundary20, testWallet, "rig0"))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	worker, _ = env.db.GetWorker(testWallet, "rig0")
	assert.Equal(t, 2, worker.WorkSubmitted)
	assert.Equal(t, 1, worker.WorkFailed)
}

func TestSubmitWorkTooHardBoundary(t *testing.T) {
	env := newTestEnv(t)

	// the fixture result has exactly 20 leading zero bits
	boundary21 := common.BytesToHex0x(ethash.DifficultyToBoundary(21))
	_, ok := env.pool.NewWork(powHeader, powBlock, boundary21, "", "", 120, 0)
	require.True(t, ok)

	got, err := env.api.submitWork(context.Background(),
		rawParams(t, powNonce, powHeader, powMix, boundary21, testWallet, "rig0"))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	worker, ok := env.db.GetWorker(testWallet, "rig0")
	require.True(t, ok)
	assert.Equal(t, 1, worker.WorkFailed)
}

func TestSubmitWorkWrongMixDigest(t *testing.T) {
	env := newTestEnv(t)

	_, ok := env.pool.NewWork(powHeader, powBlock, boundary20, "", "", 120, 0)
	require.True(t, ok)

	badMix := "0x" + strings.Repeat("00", 32)
	got, err := env.api.submitWork(context.Background(),
		rawParams(t, powNonce, powHeader, badMix, boundary20, testWallet, "rig0"))
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestSubmitWorkExpired(t *testing.T) {
	env := newTestEnv(t)

	work := &storage.WorkItem{
		Header:     powHeader,
		Seed:       "0x" + strings.Repeat("0", 64),
		Boundary:   boundary20,
		StartTime:  time.Now().Add(-2 * time.Minute),
		ExpireTime: time.Now().Add(-time.Minute),
	}
	require.True(t, env.db.CreateWork(work))

	got, err := env.api.submitWork(context.Background(),
		rawParams(t, powNonce, powHeader, powMix, boundary20, testWallet, "rig0"))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	worker, ok := env.db.GetWorker(testWallet, "rig0")
	require.True(t, ok)
	assert.Equal(t, 1, worker.WorkFailed)
}

func TestSubmitWorkAnonymousMiner(t *testing.T) {
	env := newTestEnv(t)

	_, ok := env.pool.NewWork(powHeader, powBlock, boundary20, "", "", 120, 0)
	require.True(t, ok)

	// no boundary, wallet or worker given
	got, err := env.api.submitWork(context.Background(),
		rawParams(t, powNonce, powHeader, powMix))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	// the default miner took the credit under the default worker name
	worker, ok := env.db.GetWorker(params.DefaultMiner, params.DefaultWorkerName)
	require.True(t, ok)
	assert.Equal(t, 1, worker.WorkFinished)
}

func TestSubmitWorkBadWorkerName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.api.submitWork(context.Background(),
		rawParams(t, powNonce, powHeader, powMix, boundary20, testWallet, "rig zero!"))
	assert.Error(t, err)
}

func TestSubmitHashrate(t *testing.T) {
	env := newTestEnv(t)

	// miner unknown yet
	got, err := env.api.submitHashrate(context.Background(),
		rawParams(t, "0x2fbf0", testWallet, "rig0"))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	_, ok := env.db.GetOrCreateMiner(testWallet, time.Now())
	require.True(t, ok)

	got, err = env.api.submitHashrate(context.Background(),
		rawParams(t, "0x2fbf0", testWallet, "rig0"))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	hr, ok := env.db.LatestHashRate(testWallet, "rig0")
	require.True(t, ok)
	assert.Equal(t, uint64(0x2fbf0), hr.HashRate)
}
