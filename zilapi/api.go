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

// Package zilapi exposes the signed node-facing JSON-RPC surface:
// zil_requestWork, zil_checkWorkStatus and zil_verifyResult.
package zilapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/consensus/ethash"
	"github.com/durianstall/go-zilpool/crypto/schnorr"
	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/pool"
	"github.com/durianstall/go-zilpool/rpc"
	"github.com/durianstall/go-zilpool/storage"
	"github.com/durianstall/go-zilpool/zilliqa"
)

// API serves the node-facing methods.
type API struct {
	pool    *pool.Pool
	tracker *zilliqa.Tracker
	cfg     *params.Config
	logger  log.Logger
}

// New wires the node-facing surface.
func New(p *pool.Pool, tracker *zilliqa.Tracker, cfg *params.Config) *API {
	return &API{
		pool:    p,
		tracker: tracker,
		cfg:     cfg,
		logger:  log.New("pkg", "zilapi"),
	}
}

// Register adds the zil_* methods to the RPC server.
func (api *API) Register(server *rpc.Server) {
	server.Register("zil_requestWork", api.requestWork)
	server.Register("zil_checkWorkStatus", api.checkWorkStatus)
	server.Register("zil_verifyResult", api.verifyResult)
}

// workNotDone is the checkWorkStatus miss reply.
var workNotDone = []any{false, "", "", ""}

func (api *API) requestWork(ctx context.Context, raw []json.RawMessage) (any, error) {
	var fields [6]string
	for i := range fields {
		s, err := rpc.StringParam(raw, i, false)
		if err != nil {
			return nil, err
		}
		fields[i] = s
	}
	pubKey, header, blockNumHex, boundary, timeoutHex, signature :=
		fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

	if !common.IsHexString(pubKey, common.PubKeyHexLen) ||
		!common.IsHexString(header, common.HashHexLen) ||
		!common.IsHexString(blockNumHex, common.BlockNumHexLen) ||
		!common.IsHexString(boundary, common.HashHexLen) ||
		!common.IsHexString(timeoutHex, common.TimeoutHexLen) ||
		!common.IsHexString(signature, common.SignatureHexLen) {
		return nil, rpc.ErrBadParams
	}

	blockNum, err := common.HexToUint64(blockNumHex)
	if err != nil {
		return nil, rpc.ErrBadParams
	}
	timeout, err := common.HexToUint64(timeoutHex)
	if err != nil {
		return nil, rpc.ErrBadParams
	}

	if api.cfg.Zilliqa.Enabled {
		if !api.checkNetworkInfo(blockNum, boundary, timeout) {
			api.logger.Warn("Invalid PoW request", "pubkey", pubKey)
			return false, nil
		}
	}

	if !api.verifySignature(signature, pubKey, pubKey, header, blockNumHex, boundary, timeoutHex) {
		// hotfix for Zilliqa v4.2.0 firmware signing a fixed 60s timeout
		legacyTimeout := common.Uint64ToHex0x(params.LegacyWorkTimeout, common.TimeoutBytes)
		if !api.verifySignature(signature, pubKey, pubKey, header, blockNumHex, boundary, legacyTimeout) {
			api.logger.Warn("Failed to verify signature", "pubkey", pubKey)
			return false, nil
		}
	}

	node, ok := api.pool.DB().GetNodeByPubKey(pubKey, true)
	if !ok {
		api.logger.Warn("Unauthorized public key", "pubkey", pubKey)
		return false, nil
	}

	if api.pool.DB().CountNodeWorks(pubKey, blockNum) >= params.MaxWorksPerNodeBlock {
		api.logger.Warn("Too many PoW requests", "block", blockNum, "pubkey", pubKey)
		return false, nil
	}

	work, ok := api.pool.NewWork(header, blockNum, boundary, pubKey, signature, int(timeout), node.PoWFee)
	if !ok {
		return false, nil
	}
	api.pool.AnnounceWork(true)

	api.logger.Info("PoW work requested", "block", blockNum, "header", header, "pubkey", pubKey)
	return work != nil, nil
}

func (api *API) checkWorkStatus(ctx context.Context, raw []json.RawMessage) (any, error) {
	var fields [4]string
	for i := range fields {
		s, err := rpc.StringParam(raw, i, false)
		if err != nil {
			return nil, err
		}
		fields[i] = s
	}
	pubKey, header, boundary, signature := fields[0], fields[1], fields[2], fields[3]

	if !common.IsHexString(pubKey, common.PubKeyHexLen) ||
		!common.IsHexString(header, common.HashHexLen) ||
		!common.IsHexString(boundary, common.HashHexLen) ||
		!common.IsHexString(signature, common.SignatureHexLen) {
		return nil, rpc.ErrBadParams
	}

	if !api.verifySignature(signature, pubKey, pubKey, header, boundary) {
		api.logger.Warn("Failed to verify signature", "pubkey", pubKey)
		return false, nil
	}

	result, ok := api.pool.DB().LatestResult(header, boundary, pubKey)
	if !ok {
		api.logger.Debug("Result not found", "pubkey", pubKey, "header", header, "boundary", boundary)
		return workNotDone, nil
	}

	api.logger.Info("PoW result found", "header", header, "boundary", boundary)
	return []any{true, result.Nonce, result.Header, result.MixDigest}, nil
}

func (api *API) verifyResult(ctx context.Context, raw []json.RawMessage) (any, error) {
	var fields [5]string
	for i := range fields {
		s, err := rpc.StringParam(raw, i, false)
		if err != nil {
			return nil, err
		}
		fields[i] = s
	}
	pubKey, verifiedHex, header, boundary, signature :=
		fields[0], fields[1], fields[2], fields[3], fields[4]

	if !common.IsHexString(pubKey, common.PubKeyHexLen) ||
		!common.IsHexString(verifiedHex, 2) ||
		!common.IsHexString(header, common.HashHexLen) ||
		!common.IsHexString(boundary, common.HashHexLen) ||
		!common.IsHexString(signature, common.SignatureHexLen) {
		return nil, rpc.ErrBadParams
	}

	if !api.verifySignature(signature, pubKey, pubKey, verifiedHex, header, boundary) {
		api.logger.Warn("Failed to verify signature", "pubkey", pubKey)
		return false, nil
	}

	result, ok := api.pool.DB().LatestResult(header, boundary, pubKey)
	if !ok {
		api.logger.Warn("Result not found", "pubkey", pubKey, "header", header, "boundary", boundary)
		return false, nil
	}

	verified := verifiedHex == "0x01" || verifiedHex == "01"
	now := time.Now()
	updated, ok := api.pool.DB().UpdateResult(result.ID, func(r *storage.Result) bool {
		r.Verified = verified
		r.VerifiedTime = now
		return true
	})
	if !ok {
		api.logger.Warn("Failed to update pow result", "header", header, "boundary", boundary)
		return false, nil
	}

	if verified {
		if !api.pool.DB().UpdateWorkerStats(updated.MinerWallet, updated.WorkerName, 0, 0, 0, 1) {
			api.logger.Warn("Worker not found", "worker", updated.WorkerName, "wallet", updated.MinerWallet)
		}
	}

	api.logger.Info("PoW result verified", "pubkey", pubKey, "header", header, "boundary", boundary)
	return true, nil
}

// checkNetworkInfo gates requestWork on the live chain state: inside a
// PoW window, at the current or next DS block, at a network difficulty
// (divided mapping preferred, plain as fallback), within the window
// timeout.
func (api *API) checkNetworkInfo(blockNum uint64, boundary string, timeout uint64) bool {
	if api.tracker == nil || !api.tracker.IsPoWWindow() {
		api.logger.Warn("The network is not in pow window")
		return false
	}
	dsBlock := api.tracker.CurrentDSBlock()
	if blockNum < dsBlock {
		api.logger.Warn("Got wrong block number", "declared", blockNum, "network", dsBlock)
		return false
	}
	if blockNum > dsBlock+1 {
		api.logger.Warn("Got wrong block number", "declared", blockNum, "network", dsBlock)
		return false
	}

	shardDifficulty, dsDifficulty := api.tracker.Difficulties()
	allowed := []int{int(shardDifficulty)}
	if api.pool.Settings().AllowDSPoW {
		allowed = append(allowed, int(dsDifficulty))
	}

	boundaryBytes, err := common.HexToBytes(boundary)
	if err != nil {
		return false
	}
	difficulty := ethash.BoundaryToDifficultyDivided(boundaryBytes,
		api.cfg.Zilliqa.PoWBoundaryNDivided, api.cfg.Zilliqa.PoWBoundaryNDividedStart)
	if !containsInt(allowed, difficulty) {
		plain := ethash.BoundaryToDifficulty(boundaryBytes)
		if !containsInt(allowed, plain) {
			api.logger.Warn("Got wrong difficulty", "divided", difficulty, "plain", plain)
			return false
		}
	}

	if timeout > uint64(api.cfg.Zilliqa.PoWWindowInSeconds) {
		api.logger.Warn("Got wrong timeout", "timeout", timeout)
		return false
	}
	return true
}

// verifySignature checks the Schnorr signature over the concatenation of
// the raw byte forms of the given hex parameters.
func (api *API) verifySignature(signature string, pubKey string, parts ...string) bool {
	if !api.cfg.APIServer.Zil.VerifySign {
		return true
	}
	sig, err := common.HexToBytes(signature)
	if err != nil {
		return false
	}
	key, err := common.HexToBytes(pubKey)
	if err != nil {
		return false
	}
	var msg []byte
	for _, part := range parts {
		b, err := common.HexToBytes(part)
		if err != nil {
			api.logger.Warn("Wrong data type in signed message")
			return false
		}
		msg = append(msg, b...)
	}
	return schnorr.Verify(key, msg, sig)
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
