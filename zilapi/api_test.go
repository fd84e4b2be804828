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

package zilapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/crypto"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/pool"
	"github.com/durianstall/go-zilpool/storage"
)

var testBoundary20 = "0x00000" + strings.Repeat("f", 59)

type testEnv struct {
	api  *API
	pool *pool.Pool
	db   *storage.DB
	key  *crypto.Key
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(storage.MemoryURI)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := params.DefaultConfig()
	cfg.Zilliqa.Enabled = false

	p := pool.New(db, cfg)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.True(t, db.CreateNode(&storage.Node{
		PubKey:     key.PublicHex(),
		PoWFee:     0.25,
		Authorized: true,
	}))

	return &testEnv{
		api:  New(p, nil, cfg),
		pool: p,
		db:   db,
		key:  key,
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

// signFields signs the concatenated raw byte forms of the hex fields.
func signFields(t *testing.T, key *crypto.Key, fields ...string) string {
	t.Helper()
	var msg []byte
	for _, f := range fields {
		b, err := common.HexToBytes(f)
		require.NoError(t, err)
		msg = append(msg, b...)
	}
	sig, err := key.Sign(msg)
	require.NoError(t, err)
	return common.BytesToHex0x(sig)
}

func requestWorkParams(t *testing.T, env *testEnv, header string, blockNum uint64, timeout uint64) []json.RawMessage {
	pubKey := env.key.PublicHex()
	blockNumHex := common.Uint64ToHex0x(blockNum, common.BlockNumBytes)
	timeoutHex := common.Uint64ToHex0x(timeout, common.TimeoutBytes)
	sig := signFields(t, env.key, pubKey, header, blockNumHex, testBoundary20, timeoutHex)
	return rawParams(t, pubKey, header, blockNumHex, testBoundary20, timeoutHex, sig)
}

func TestRequestWorkHappyPath(t *testing.T) {
	env := newTestEnv(t)
	header := common.RandHex0x(common.HashHexLen)

	got, err := env.api.requestWork(context.Background(), requestWorkParams(t, env, header, 42, 120))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	work, ok := env.pool.FindWorkByHeaderBoundary(header, testBoundary20, true)
	require.True(t, ok)
	assert.Equal(t, uint64(42), work.BlockNum)
	assert.Equal(t, 0.25, work.PoWFee) // fee copied from the node record
}

func TestRequestWorkBadSignature(t *testing.T) {
	env := newTestEnv(t)
	header := common.RandHex0x(common.HashHexLen)

	p := requestWorkParams(t, env, header, 42, 120)
	// flip one bit of the signature
	var sig string
	require.NoError(t, json.Unmarshal(p[5], &sig))
	flipped := []byte(sig)
	if flipped[10] == 'a' {
		flipped[10] = 'b'
	} else {
		flipped[10] = 'a'
	}
	p[5], _ = json.Marshal(string(flipped))

	got, err := env.api.requestWork(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	// nothing persisted
	_, ok := env.pool.FindWorkByHeaderBoundary(header, "", false)
	assert.False(t, ok)
}

func TestRequestWorkLegacyTimeoutFallback(t *testing.T) {
	env := newTestEnv(t)
	header := common.RandHex0x(common.HashHexLen)

	// old firmware signs a fixed 60s timeout but declares another value
	pubKey := env.key.PublicHex()
	blockNumHex := common.Uint64ToHex0x(7, common.BlockNumBytes)
	declaredTimeout := common.Uint64ToHex0x(300, common.TimeoutBytes)
	legacyTimeout := common.Uint64ToHex0x(params.LegacyWorkTimeout, common.TimeoutBytes)
	sig := signFields(t, env.key, pubKey, header, blockNumHex, testBoundary20, legacyTimeout)

	got, err := env.api.requestWork(context.Background(),
		rawParams(t, pubKey, header, blockNumHex, testBoundary20, declaredTimeout, sig))
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestRequestWorkUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)

	header := common.RandHex0x(common.HashHexLen)
	pubKey := stranger.PublicHex()
	blockNumHex := common.Uint64ToHex0x(42, common.BlockNumBytes)
	timeoutHex := common.Uint64ToHex0x(120, common.TimeoutBytes)
	var msg []byte
	for _, f := range []string{pubKey, header, blockNumHex, testBoundary20, timeoutHex} {
		b, err := common.HexToBytes(f)
		require.NoError(t, err)
		msg = append(msg, b...)
	}
	sig, err := stranger.Sign(msg)
	require.NoError(t, err)

	got, err := env.api.requestWork(context.Background(),
		rawParams(t, pubKey, header, blockNumHex, testBoundary20, timeoutHex, common.BytesToHex0x(sig)))
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestRequestWorkRateCap(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		header := common.RandHex0x(common.HashHexLen)
		got, err := env.api.requestWork(context.Background(), requestWorkParams(t, env, header, 99, 120))
		require.NoError(t, err)
		require.Equal(t, true, got, "request %d", i)
	}
	// the third request for the same (pub_key, block_num) is rejected
	header := common.RandHex0x(common.HashHexLen)
	got, err := env.api.requestWork(context.Background(), requestWorkParams(t, env, header, 99, 120))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	// a different block is fine
	header = common.RandHex0x(common.HashHexLen)
	got, err = env.api.requestWork(context.Background(), requestWorkParams(t, env, header, 100, 120))
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestRequestWorkBadLengths(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.api.requestWork(context.Background(),
		rawParams(t, env.key.PublicHex(), "0xdeadbeef",
			common.Uint64ToHex0x(1, 8), testBoundary20,
			common.Uint64ToHex0x(60, 4), "0x"+strings.Repeat("0", 128)))
	assert.Error(t, err)
}

func TestCheckWorkStatus(t *testing.T) {
	env := newTestEnv(t)
	header := common.RandHex0x(common.HashHexLen)
	pubKey := env.key.PublicHex()

	sig := signFields(t, env.key, pubKey, header, testBoundary20)
	got, err := env.api.checkWorkStatus(context.Background(),
		rawParams(t, pubKey, header, testBoundary20, sig))
	require.NoError(t, err)
	assert.Equal(t, workNotDone, got)

	// seed a finished result
	require.True(t, env.db.CreateResult(&storage.Result{
		Header: header, Boundary: testBoundary20, PubKey: pubKey,
		Nonce: "0x0000000000000001", MixDigest: "0x" + strings.Repeat("ab", 32),
		FinishedTime: time.Now(),
	}))

	got, err = env.api.checkWorkStatus(context.Background(),
		rawParams(t, pubKey, header, testBoundary20, sig))
	require.NoError(t, err)
	require.IsType(t, []any{}, got)
	fields := got.([]any)
	assert.Equal(t, true, fields[0])
	assert.Equal(t, "0x0000000000000001", fields[1])
	assert.Equal(t, header, fields[2])
}

func TestVerifyResult(t *testing.T) {
	env := newTestEnv(t)
	header := common.RandHex0x(common.HashHexLen)
	pubKey := env.key.PublicHex()

	require.True(t, env.db.CreateResult(&storage.Result{
		Header: header, Boundary: testBoundary20, PubKey: pubKey,
		Nonce: "0x01", MinerWallet: "0x" + strings.Repeat("12", 20),
		WorkerName: "rig0", FinishedTime: time.Now(),
	}))

	sig := signFields(t, env.key, pubKey, "0x01", header, testBoundary20)
	got, err := env.api.verifyResult(context.Background(),
		rawParams(t, pubKey, "0x01", header, testBoundary20, sig))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	result, ok := env.db.LatestResult(header, testBoundary20, pubKey)
	require.True(t, ok)
	assert.True(t, result.Verified)
	assert.False(t, result.VerifiedTime.IsZero())

	worker, ok := env.db.GetWorker("0x"+strings.Repeat("12", 20), "rig0")
	require.True(t, ok)
	assert.Equal(t, 1, worker.WorkVerified)
}
