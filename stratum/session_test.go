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

package stratum

import (
	"bufio"
	"encoding/json"
	"net"
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
	powMix    = "0x2f74cdeb198af0b9abe65d22d372e22fb2d474371774a9583c1cc427a07939f5"
	powBlock  = uint64(22)

	// the fixture nonce 0x495732e0ed7a801c split for the extra-nonce test
	noncePrefix = "4957"
	nonceSuffix = "32e0ed7a801c"
)

var (
	boundary20 = common.BytesToHex0x(ethash.DifficultyToBoundary(20))
	testWallet = "0x" + strings.Repeat("12", 20)
)

var sharedVerifier = ethash.NewVerifier()

type testEnv struct {
	server *Server
	pool   *pool.Pool
	db     *storage.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(storage.MemoryURI)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := params.DefaultConfig()
	p := pool.New(db, cfg)
	server := NewServer(cfg, p, sharedVerifier, nil)
	return &testEnv{server: server, pool: p, db: db}
}

// miner is the client half of a net.Pipe stratum conversation.
type miner struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader
	sess *Session
}

func connect(t *testing.T, env *testEnv) *miner {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	sess := newSession(env.server, serverSide)
	env.server.sessions.Add(sess)
	go func() {
		sess.serve()
		env.server.sessions.Remove(sess)
	}()
	return &miner{
		t:    t,
		conn: clientSide,
		rd:   bufio.NewReader(clientSide),
		sess: sess,
	}
}

func (m *miner) send(v any) {
	m.t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(m.t, err)
	m.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	_, err = m.conn.Write(append(payload, '\n'))
	require.NoError(m.t, err)
}

func (m *miner) recv() map[string]any {
	m.t.Helper()
	m.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	line, err := m.rd.ReadString('\n')
	require.NoError(m.t, err)
	var out map[string]any
	require.NoError(m.t, json.Unmarshal([]byte(line), &out))
	return out
}

// subscribe drives the handshake and returns the extra-nonce prefix.
func (m *miner) subscribe(niceHash bool) string {
	m.t.Helper()
	subParams := []any{"testminer/1.0"}
	if niceHash {
		subParams = append(subParams, niceHashProtocol)
	}
	m.send(map[string]any{"id": 1, "method": "mining.subscribe", "params": subParams})
	resp := m.recv()
	result, ok := resp["result"].([]any)
	require.True(m.t, ok, "subscribe reply: %v", resp)
	require.Len(m.t, result, 2)
	extraNonce, ok := result[1].(string)
	require.True(m.t, ok)
	return extraNonce
}

func (m *miner) authorize(user string) {
	m.t.Helper()
	m.send(map[string]any{"id": 2, "method": "mining.authorize", "params": []any{user, "x"}})
	resp := m.recv()
	require.Equal(m.t, true, resp["result"])
}

func TestNiceHashFullFlow(t *testing.T) {
	env := newTestEnv(t)
	m := connect(t, env)
	defer m.conn.Close()

	extraNonce := m.subscribe(true)
	assert.NotEmpty(t, extraNonce)
	m.authorize(testWallet + ".rig0")

	// a node posts work; the dispatcher pushes it
	_, ok := env.pool.NewWork(powHeader, powBlock, boundary20, "", "", 120, 0)
	require.True(t, ok)
	go env.server.WorkArrived(true)

	diffMsg := m.recv()
	require.Equal(t, "mining.set_difficulty", diffMsg["method"])
	diffParams := diffMsg["params"].([]any)
	require.Len(t, diffParams, 1)
	assert.Greater(t, diffParams[0].(float64), 0.0)

	notifyMsg := m.recv()
	require.Equal(t, "mining.notify", notifyMsg["method"])
	notifyParams := notifyMsg["params"].([]any)
	require.Len(t, notifyParams, 4)
	jobID := notifyParams[0].(string)
	assert.Equal(t, strings.Repeat("0", 64), notifyParams[1]) // seed, epoch 0
	assert.Equal(t, common.StripHexPrefix(powHeader), notifyParams[2])
	assert.Equal(t, true, notifyParams[3]) // clean_jobs

	// pin the extra-nonce prefix so the fixture nonce round-trips
	m.sess.mu.Lock()
	m.sess.extraNonce = noncePrefix
	m.sess.mu.Unlock()

	m.send(map[string]any{
		"id": 4, "method": "mining.submit",
		"params": []any{"rig0", jobID, nonceSuffix},
	})
	resp := m.recv()
	assert.Equal(t, true, resp["result"])

	// the share landed: mix digest recomputed server-side
	result, ok := env.db.LatestResult(powHeader, boundary20, "")
	require.True(t, ok)
	assert.Equal(t, powMix, result.MixDigest)
	assert.Equal(t, testWallet, result.MinerWallet)
	assert.Equal(t, "rig0", result.WorkerName)

	worker, ok := env.db.GetWorker(testWallet, "rig0")
	require.True(t, ok)
	assert.Equal(t, 1, worker.WorkFinished)
}

func TestBasicFlow(t *testing.T) {
	env := newTestEnv(t)
	m := connect(t, env)
	defer m.conn.Close()

	m.subscribe(false)
	m.authorize(testWallet + ".rig1")

	_, ok := env.pool.NewWork(powHeader, powBlock, boundary20, "", "", 120, 0)
	require.True(t, ok)
	go env.server.WorkArrived(true)

	// basic flavor: no set_difficulty, boundary rides in the notify
	notifyMsg := m.recv()
	require.Equal(t, "mining.notify", notifyMsg["method"])
	notifyParams := notifyMsg["params"].([]any)
	require.Len(t, notifyParams, 4)
	jobID := notifyParams[0].(string)
	assert.Equal(t, common.StripHexPrefix(powHeader), notifyParams[1])
	assert.Equal(t, boundary20, notifyParams[3])

	m.send(map[string]any{
		"id": 4, "method": "mining.submit",
		"params": []any{testWallet, jobID, "0x495732e0ed7a801c", powHeader, powMix},
	})
	resp := m.recv()
	assert.Equal(t, true, resp["result"])

	result, ok := env.db.LatestResult(powHeader, boundary20, "")
	require.True(t, ok)
	assert.Equal(t, testWallet, result.MinerWallet)
}

func TestExtraNonceSubscribe(t *testing.T) {
	env := newTestEnv(t)
	m := connect(t, env)
	defer m.conn.Close()

	first := m.subscribe(true)
	assert.NotEmpty(t, first)

	m.send(map[string]any{"id": 3, "method": "mining.extranonce.subscribe", "params": []any{}})
	ack := m.recv()
	assert.Equal(t, true, ack["result"])

	extraMsg := m.recv()
	require.Equal(t, "mining.set_extranonce", extraMsg["method"])
	fresh := extraMsg["params"].([]any)[0].(string)
	assert.NotEmpty(t, fresh)
}

func TestReconnectGetsFreshState(t *testing.T) {
	env := newTestEnv(t)

	m1 := connect(t, env)
	m1.subscribe(true)
	require.Equal(t, 1, env.server.sessions.Cardinality())

	// connection drops: the session leaves the connected set
	m1.conn.Close()
	require.Eventually(t, func() bool {
		return env.server.sessions.Cardinality() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// resubscribe on a fresh connection
	m2 := connect(t, env)
	defer m2.conn.Close()
	extraNonce := m2.subscribe(true)
	assert.NotEmpty(t, extraNonce)
	assert.True(t, m2.sess.subscribed())
}

func TestBadSubmitRejected(t *testing.T) {
	env := newTestEnv(t)
	m := connect(t, env)
	defer m.conn.Close()

	m.subscribe(true)
	m.authorize(testWallet + ".rig0")

	// no such job
	m.send(map[string]any{
		"id": 4, "method": "mining.submit",
		"params": []any{"rig0", "999", nonceSuffix},
	})
	resp := m.recv()
	assert.Equal(t, false, resp["result"])

	worker, ok := env.db.GetWorker(testWallet, "rig0")
	require.True(t, ok)
	assert.Equal(t, 1, worker.WorkFailed)
}
