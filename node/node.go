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

// Package node assembles the proxy: storage, chain tracker, verifier,
// work pool and the two miner/node servers, in that order.
package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/durianstall/go-zilpool/consensus/ethash"
	"github.com/durianstall/go-zilpool/ethapi"
	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/pool"
	"github.com/durianstall/go-zilpool/rpc"
	"github.com/durianstall/go-zilpool/storage"
	"github.com/durianstall/go-zilpool/stratum"
	"github.com/durianstall/go-zilpool/zilapi"
	"github.com/durianstall/go-zilpool/zilliqa"
)

// Node is one running proxy instance.
type Node struct {
	cfg    *params.Config
	logger log.Logger

	db       *storage.DB
	tracker  *zilliqa.Tracker
	verifier *ethash.Verifier
	pool     *pool.Pool

	rpcServer     *rpc.Server
	httpServer    *http.Server
	stratumServer *stratum.Server

	cancelTracker context.CancelFunc
}

// New builds the proxy from its config. Components come up in dependency
// order; nothing listens yet.
func New(cfg *params.Config) (*Node, error) {
	db, err := storage.Open(cfg.ResolvePath(cfg.Database.URI))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var tracker *zilliqa.Tracker
	if cfg.Zilliqa.Enabled {
		tracker = zilliqa.NewTracker(cfg.Zilliqa)
	}
	verifier := ethash.NewVerifier()
	p := pool.New(db, cfg)

	n := &Node{
		cfg:      cfg,
		logger:   log.New("pkg", "node"),
		db:       db,
		tracker:  tracker,
		verifier: verifier,
		pool:     p,
	}

	n.rpcServer = rpc.NewServer()
	zilapi.New(p, tracker, cfg).Register(n.rpcServer)
	ethapi.New(p, verifier, cfg).Register(n.rpcServer)

	if cfg.StratumServer.Enabled {
		n.stratumServer = stratum.NewServer(cfg, p, verifier, tracker)
	}
	return n, nil
}

// Pool exposes the work pool, mainly for tests and tooling.
func (n *Node) Pool() *pool.Pool {
	return n.pool
}

// RPC exposes the method registry, mainly for tests and tooling.
func (n *Node) RPC() *rpc.Server {
	return n.rpcServer
}

// Start brings the servers up and begins chain polling.
func (n *Node) Start() error {
	n.pool.InitSettings()

	if n.tracker != nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancelTracker = cancel
		go n.tracker.Run(ctx)
	}

	if n.cfg.APIServer.Enabled {
		mux := http.NewServeMux()
		path := n.cfg.APIServer.Path
		if path == "" {
			path = "/api"
		}
		mux.Handle(path, n.rpcServer.HTTPHandler())

		addr := fmt.Sprintf("%s:%d", n.cfg.APIServer.Host, n.cfg.APIServer.Port)
		n.httpServer = &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			n.logger.Info("API server listening", "addr", addr, "path", path)
			if err := n.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				n.logger.Error("API server failed", "err", err)
			}
		}()
	}

	if n.stratumServer != nil {
		if err := n.stratumServer.Start(); err != nil {
			return fmt.Errorf("start stratum server: %w", err)
		}
	}
	return nil
}

// Stop shuts the proxy down: stratum sessions drop first, in-flight node
// RPCs get to finish, then polling stops and the store closes.
func (n *Node) Stop() {
	if n.stratumServer != nil {
		n.stratumServer.Stop()
	}
	if n.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n.httpServer.Shutdown(ctx)
	}
	if n.cancelTracker != nil {
		n.cancelTracker()
	}
	if err := n.db.Close(); err != nil {
		n.logger.Warn("Store close failed", "err", err)
	}
	n.logger.Info("Proxy stopped")
}
