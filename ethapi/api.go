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

// Package ethapi exposes the miner-facing HTTP pull surface:
// eth_getWork, eth_submitWork and eth_submitHashrate.
package ethapi

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/consensus/ethash"
	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/pool"
	"github.com/durianstall/go-zilpool/rpc"
)

var workerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// API serves the pulling miner methods.
type API struct {
	pool     *pool.Pool
	verifier *ethash.Verifier
	cfg      *params.Config
	logger   log.Logger
}

// New wires the miner-facing pull surface.
func New(p *pool.Pool, verifier *ethash.Verifier, cfg *params.Config) *API {
	return &API{
		pool:     p,
		verifier: verifier,
		cfg:      cfg,
		logger:   log.New("pkg", "ethapi"),
	}
}

// Register adds the eth_* methods to the RPC server.
func (api *API) Register(server *rpc.Server) {
	server.Register("eth_getWork", api.getWork)
	server.Register("eth_submitWork", api.submitWork)
	server.Register("eth_submitHashrate", api.submitHashrate)
}

// noWork is the getWork miss reply, carrying the sleep hint.
func (api *API) noWork() []any {
	return []any{"", "", "", false, api.pool.SecondsToNextPoW()}
}

func (api *API) getWork(ctx context.Context, raw []json.RawMessage) (any, error) {
	work, ok := api.pool.NextWorkForDispatch()
	if !ok {
		return api.noWork(), nil
	}
	return []any{work.Header, work.Seed, work.Boundary, true, 0}, nil
}

func (api *API) submitWork(ctx context.Context, raw []json.RawMessage) (any, error) {
	nonce, err := rpc.StringParam(raw, 0, false)
	if err != nil {
		return nil, err
	}
	header, err := rpc.StringParam(raw, 1, false)
	if err != nil {
		return nil, err
	}
	mixDigest, err := rpc.StringParam(raw, 2, false)
	if err != nil {
		return nil, err
	}
	boundary, err := rpc.StringParam(raw, 3, true)
	if err != nil {
		return nil, err
	}
	minerWallet, err := rpc.StringParam(raw, 4, true)
	if err != nil {
		return nil, err
	}
	workerName, err := rpc.StringParam(raw, 5, true)
	if err != nil {
		return nil, err
	}

	// lenient validation: boundary and wallet may be absent
	if !common.IsHexString(nonce, common.NonceHexLen) ||
		!common.IsHexString(header, common.HashHexLen) ||
		!common.IsHexString(mixDigest, common.HashHexLen) ||
		(boundary != "" && !common.IsHexString(boundary, common.HashHexLen)) ||
		(minerWallet != "" && !common.IsHexString(minerWallet, common.AddressHexLen)) ||
		len(workerName) >= 64 {
		return nil, rpc.ErrBadParams
	}
	if minerWallet == "" {
		minerWallet = api.cfg.Mining.DefaultMiner
	}
	workerName, err = canonicalWorkerName(workerName)
	if err != nil {
		return nil, err
	}

	nonceInt, err := common.HexToUint64(nonce)
	if err != nil {
		return nil, rpc.ErrBadParams
	}
	mixBytes, err := common.HexToBytes(mixDigest)
	if err != nil {
		return nil, rpc.ErrBadParams
	}

	db := api.pool.DB()
	if _, ok := db.GetOrCreateMiner(minerWallet, time.Now()); !ok {
		api.logger.Warn("Miner upsert failed", "wallet", minerWallet)
		return false, nil
	}
	db.UpdateWorkerStats(minerWallet, workerName, 1, 0, 0, 0)

	work, ok := api.pool.FindWorkByHeaderBoundary(header, boundary, true)
	if !ok {
		api.logger.Warn("Work not found or expired", "header", header, "boundary", boundary)
		db.UpdateWorkerStats(minerWallet, workerName, 0, 1, 0, 0)
		return false, nil
	}

	if _, err := api.pool.SubmitSolution(api.verifier, work, nonceInt, mixBytes, minerWallet, workerName); err != nil {
		return false, nil
	}
	return true, nil
}

func (api *API) submitHashrate(ctx context.Context, raw []json.RawMessage) (any, error) {
	hashrate, err := rpc.StringParam(raw, 0, false)
	if err != nil {
		return nil, err
	}
	minerWallet, err := rpc.StringParam(raw, 1, false)
	if err != nil {
		return nil, err
	}
	workerName, err := rpc.StringParam(raw, 2, true)
	if err != nil {
		return nil, err
	}

	rate, err := common.HexToUint64(hashrate)
	if err != nil {
		return nil, rpc.ErrBadParams
	}
	if !common.IsHexString(minerWallet, common.AddressHexLen) {
		return nil, rpc.ErrBadParams
	}
	workerName, err = canonicalWorkerName(workerName)
	if err != nil {
		return nil, err
	}

	if !api.pool.DB().RecordHashRate(rate, minerWallet, workerName, time.Now()) {
		return false, nil
	}
	return true, nil
}

// canonicalWorkerName strips and defaults the worker name, restricting it
// to the safe charset.
func canonicalWorkerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return params.DefaultWorkerName, nil
	}
	if !workerNamePattern.MatchString(name) {
		return "", rpc.ErrBadParams
	}
	return name, nil
}
