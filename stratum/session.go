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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/storage"
)

// Protocol flavors. NiceHash mode is negotiated by the second subscribe
// parameter.
const (
	flavorBasic = iota
	flavorNiceHash
)

const niceHashProtocol = "EthereumStratum/1.0.0"

// niceHashDiffBase is the difficulty-1 target NiceHash miners normalize
// against.
var niceHashDiffBase = func() *uint256.Int {
	base := new(uint256.Int).Lsh(uint256.NewInt(0xffff), 208)
	return base
}()

// message is one line of the stratum dialogue.
type message struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method,omitempty"`
	Params []json.RawMessage `json:"params,omitempty"`
	Worker string            `json:"worker,omitempty"`
}

type reply struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
	Error  any             `json:"error"`
}

type notification struct {
	ID     any    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Session is one miner connection. It is owned by its connection
// goroutine; the dispatcher only calls notifyWork, which serializes
// writes through the session lock.
type Session struct {
	server *Server
	conn   net.Conn
	logger log.Logger

	writeMu sync.Mutex

	mu             sync.Mutex
	flavor         int
	isSubscribed   bool
	subscriptionID string
	extraNonce     string
	minerWallet    string
	workerName     string

	lastBoundary     string
	targetDifficulty float64
	miningAtBlock    map[uint64]bool
	miningRealJob    bool
}

func newSession(s *Server, conn net.Conn) *Session {
	return &Session{
		server:        s,
		conn:          conn,
		logger:        s.logger.New("peer", conn.RemoteAddr().String()),
		miningAtBlock: make(map[uint64]bool),
	}
}

func (s *Session) subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isSubscribed
}

func (s *Session) close() {
	s.conn.Close()
}

// serve runs the read loop until the connection drops.
func (s *Session) serve() {
	s.logger.Info("Miner connected")
	defer func() {
		s.conn.Close()
		s.logger.Info("Miner disconnected")
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			s.logger.Warn("Failed to parse stratum message", "line", line)
			continue
		}
		s.handle(&msg)
	}
}

func (s *Session) handle(msg *message) {
	switch msg.Method {
	case "mining.subscribe":
		s.processSubscribe(msg)
	case "mining.authorize":
		s.processAuthorize(msg)
	case "mining.extranonce.subscribe":
		s.processExtraNonceSubscribe(msg)
	case "mining.submit":
		s.processSubmit(msg)
	default:
		s.logger.Debug("Unhandled stratum method", "method", msg.Method)
	}
}

// newExtraNonce rolls a fresh 2-byte extra-nonce prefix.
func newExtraNonce() string {
	return common.RandHex(4)
}

func (s *Session) processSubscribe(msg *message) {
	flavor := flavorBasic
	if len(msg.Params) >= 2 {
		var proto string
		if json.Unmarshal(msg.Params[1], &proto) == nil && proto == niceHashProtocol {
			flavor = flavorNiceHash
		}
	}
	s.mu.Lock()
	s.flavor = flavor
	s.isSubscribed = true
	s.subscriptionID = strings.ReplaceAll(uuid.NewString(), "-", "")
	s.extraNonce = newExtraNonce()
	subscription := s.subscriptionID
	extraNonce := s.extraNonce
	s.mu.Unlock()

	s.logger.Info("Miner subscribed", "nicehash", flavor == flavorNiceHash)
	s.sendReply(msg.ID, []any{
		[]any{"mining.notify", subscription, niceHashProtocol},
		extraNonce,
	})
}

func (s *Session) processAuthorize(msg *message) {
	if len(msg.Params) < 1 {
		s.sendReply(msg.ID, false)
		return
	}
	var user string
	if err := json.Unmarshal(msg.Params[0], &user); err != nil {
		s.sendReply(msg.ID, false)
		return
	}
	wallet, worker := splitUserWorker(user)
	s.mu.Lock()
	s.minerWallet = wallet
	s.workerName = worker
	s.mu.Unlock()

	s.logger.Info("Miner authorized", "wallet", wallet, "worker", worker)
	s.sendReply(msg.ID, true)
}

func (s *Session) processExtraNonceSubscribe(msg *message) {
	s.mu.Lock()
	s.extraNonce = newExtraNonce()
	extraNonce := s.extraNonce
	s.mu.Unlock()

	s.sendReply(msg.ID, true)
	s.sendNotification("mining.set_extranonce", []any{extraNonce})
}

// notifyWork pushes a job at the miner: set_difficulty first (only when
// changed), then mining.notify. A miner already on a real job for the
// same block is left alone.
func (s *Session) notifyWork(work *storage.WorkItem, realJob bool) {
	s.mu.Lock()
	if s.miningRealJob && s.miningAtBlock[work.BlockNum] {
		s.mu.Unlock()
		s.logger.Debug("Miner busy on real job, notify suppressed", "block", work.BlockNum)
		return
	}
	flavor := s.flavor
	s.miningRealJob = realJob
	s.miningAtBlock[work.BlockNum] = true
	s.mu.Unlock()

	s.notifyDifficulty(work.Boundary)

	jobID := strconv.FormatUint(work.ID, 10)
	header := common.StripHexPrefix(work.Header)
	seed := common.StripHexPrefix(work.Seed)
	var jobParams []any
	if flavor == flavorNiceHash {
		jobParams = []any{jobID, seed, header, true}
	} else {
		jobParams = []any{jobID, header, seed, work.Boundary}
	}
	s.sendNotification("mining.notify", jobParams)
}

// notifyDifficulty emits mining.set_difficulty when the NiceHash target
// changed since the last push. Basic miners take the raw boundary from
// mining.notify instead.
func (s *Session) notifyDifficulty(boundary string) {
	s.mu.Lock()
	s.lastBoundary = boundary
	flavor := s.flavor
	prev := s.targetDifficulty
	s.mu.Unlock()

	if flavor == flavorBasic {
		return
	}
	boundaryBytes, err := common.HexToBytes(boundary)
	if err != nil {
		return
	}
	val := new(uint256.Int)
	val.SetBytes(boundaryBytes)
	if val.IsZero() {
		return
	}
	target := niceHashDiffBase.Float64() / val.Float64()
	if target == prev {
		s.logger.Debug("The difficulty is the same, no need send again")
		return
	}
	s.mu.Lock()
	s.targetDifficulty = target
	s.mu.Unlock()
	s.sendNotification("mining.set_difficulty", []any{target})
}

// setWorkDone clears the mining flag once the block's job is solved.
func (s *Session) setWorkDone(work *storage.WorkItem) {
	s.mu.Lock()
	s.miningAtBlock[work.BlockNum] = false
	s.mu.Unlock()
}

func (s *Session) processSubmit(msg *message) {
	if len(msg.ID) == 0 || string(msg.ID) == "null" {
		s.logger.Warn("Submitted result message without id")
		return
	}
	s.mu.Lock()
	flavor := s.flavor
	wallet := s.minerWallet
	worker := s.workerName
	extraNonce := s.extraNonce
	lastBoundary := s.lastBoundary
	s.mu.Unlock()

	if wallet == "" {
		wallet = s.server.cfg.Mining.DefaultMiner
	}
	if worker == "" {
		worker = params.DefaultWorkerName
	}

	var (
		work     *storage.WorkItem
		nonceInt uint64
		mix      []byte
		found    bool
	)
	switch flavor {
	case flavorBasic:
		// params: [user, job_id, nonce, header, mix_digest]
		if len(msg.Params) < 5 {
			s.sendReply(msg.ID, false)
			return
		}
		var nonce, header, mixDigest string
		json.Unmarshal(msg.Params[2], &nonce)
		json.Unmarshal(msg.Params[3], &header)
		json.Unmarshal(msg.Params[4], &mixDigest)
		if msg.Worker != "" {
			worker = msg.Worker
		}

		var err error
		nonceInt, err = common.HexToUint64(nonce)
		if err != nil {
			s.sendReply(msg.ID, false)
			return
		}
		mix, err = common.HexToBytes(mixDigest)
		if err != nil {
			s.sendReply(msg.ID, false)
			return
		}
		work, found = s.server.pool.FindWorkByHeaderBoundary(strings.ToLower(header), lastBoundary, true)

	case flavorNiceHash:
		// params: [worker, job_id, nonce_suffix]
		if len(msg.Params) < 3 {
			s.sendReply(msg.ID, false)
			return
		}
		var workerParam, jobID, nonceSuffix string
		json.Unmarshal(msg.Params[0], &workerParam)
		json.Unmarshal(msg.Params[1], &jobID)
		json.Unmarshal(msg.Params[2], &nonceSuffix)
		if workerParam != "" {
			if _, w := splitUserWorker(workerParam); w != "" {
				worker = w
			}
		}

		id, err := strconv.ParseUint(jobID, 10, 64)
		if err != nil {
			s.logger.Warn("Bad job id in submit", "job", jobID)
			s.sendReply(msg.ID, false)
			return
		}
		nonceInt, err = common.HexToUint64(extraNonce + common.StripHexPrefix(nonceSuffix))
		if err != nil {
			s.sendReply(msg.ID, false)
			return
		}
		mix = nil // recomputed by the verifier
		work, found = s.server.pool.FindWorkByID(id, true)
	}

	db := s.server.pool.DB()
	db.GetOrCreateMiner(wallet, time.Now())
	db.UpdateWorkerStats(wallet, worker, 1, 0, 0, 0)

	if !found {
		s.logger.Warn("Work not found or expired")
		db.UpdateWorkerStats(wallet, worker, 0, 1, 0, 0)
		s.sendReply(msg.ID, false)
		return
	}

	s.setWorkDone(work)

	if _, err := s.server.pool.SubmitSolution(s.server.verifier, work, nonceInt, mix, wallet, worker); err != nil {
		s.sendReply(msg.ID, false)
		return
	}
	s.logger.Info("Work submitted", "header", work.Header, "boundary", work.Boundary)
	s.sendReply(msg.ID, true)
}

func (s *Session) sendReply(id json.RawMessage, result any) {
	s.writeLine(reply{ID: id, Result: result, Error: nil})
}

func (s *Session) sendNotification(method string, respParams []any) {
	s.writeLine(notification{ID: nil, Method: method, Params: respParams})
}

// writeLine marshals and writes one newline-terminated message. Writes
// are serialized so server-to-miner ordering holds.
func (s *Session) writeLine(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode stratum message", "err", err)
		return
	}
	payload = append(payload, '\n')
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(payload); err != nil {
		s.logger.Debug("Write failed, dropping connection", "err", err)
		s.conn.Close()
	}
}

// splitUserWorker parses the "wallet.worker" authorize login.
func splitUserWorker(user string) (string, string) {
	parts := strings.SplitN(user, ".", 2)
	wallet := strings.ToLower(parts[0])
	worker := ""
	if len(parts) == 2 {
		worker = parts[1]
	}
	return wallet, worker
}
