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

// Package stratum implements the push-mode miner protocol: a TCP server
// speaking newline-delimited JSON with mining.subscribe / authorize /
// notify / submit in both the basic and the NiceHash
// (EthereumStratum/1.0.0) flavors.
package stratum

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/consensus/ethash"
	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/pool"
	"github.com/durianstall/go-zilpool/zilliqa"
)

// Server accepts miner connections and pushes work at them.
type Server struct {
	cfg      *params.Config
	pool     *pool.Pool
	verifier *ethash.Verifier
	tracker  *zilliqa.Tracker
	logger   log.Logger

	listener net.Listener
	sessions mapset.Set[*Session]

	quit   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// NewServer wires the stratum endpoint. It registers itself as the pool's
// push notifier.
func NewServer(cfg *params.Config, p *pool.Pool, verifier *ethash.Verifier, tracker *zilliqa.Tracker) *Server {
	s := &Server{
		cfg:      cfg,
		pool:     p,
		verifier: verifier,
		tracker:  tracker,
		logger:   log.New("pkg", "stratum"),
		sessions: mapset.NewSet[*Session](),
		quit:     make(chan struct{}),
	}
	p.SetNotifier(s)
	return s
}

// Start begins listening and, when configured, starts the dummy-work
// pump.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.StratumServer.Host, s.cfg.StratumServer.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("Stratum server listening", "addr", addr)

	s.wg.Add(1)
	go s.acceptLoop()

	if interval := s.cfg.StratumServer.DummyWorkInterval; interval > 0 {
		s.wg.Add(1)
		go s.dummyWorkLoop(time.Duration(interval) * time.Second)
		if s.tracker != nil {
			// ride the chain cadence too, so fresh DS blocks reach idle
			// miners before the next tick
			s.tracker.RegisterCallback(func(uint64) { s.pumpDummyWork() })
		}
	}
	return nil
}

// Stop closes the listener and drops every session.
func (s *Server) Stop() {
	s.closed.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		for session := range s.sessions.Iter() {
			session.close()
		}
		s.wg.Wait()
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.logger.Warn("Accept failed", "err", err)
				continue
			}
		}
		session := newSession(s, conn)
		s.sessions.Add(session)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			session.serve()
			s.sessions.Remove(session)
		}()
	}
}

// WorkArrived implements pool.Notifier: each connected miner gets its own
// dispatch-stamped work item.
func (s *Server) WorkArrived(realJob bool) {
	for session := range s.sessions.Iter() {
		if !session.subscribed() {
			continue
		}
		work, ok := s.pool.NextWorkForDispatch()
		if !ok {
			return
		}
		session.notifyWork(work, realJob)
	}
}

// dummyWorkLoop keeps miners warm between PoW windows by fabricating
// synthetic jobs at the network boundary. Their results are saved but
// never surfaced to any node.
func (s *Server) dummyWorkLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.pumpDummyWork()
		}
	}
}

func (s *Server) pumpDummyWork() {
	if s.sessions.Cardinality() == 0 {
		return
	}
	if s.tracker == nil || !s.tracker.Enabled() {
		return
	}
	shardDifficulty, _ := s.tracker.Difficulties()
	if shardDifficulty == 0 {
		return
	}
	blockNum := s.tracker.CurrentDSBlock()
	if latest, ok := s.pool.DB().LatestWorkBlockNum(); ok && blockNum < latest {
		// a dummy job must not rewind the window ledger
		return
	}
	boundary := ethash.DifficultyToBoundaryDivided(int(shardDifficulty),
		s.cfg.Zilliqa.PoWBoundaryNDivided, s.cfg.Zilliqa.PoWBoundaryNDividedStart)

	header := common.RandHex0x(common.HashHexLen)
	timeout := s.cfg.StratumServer.DummyWorkInterval * 2
	work, ok := s.pool.NewWork(header, blockNum, common.BytesToHex0x(boundary), "", "", timeout, 0)
	if !ok {
		return
	}
	s.logger.Debug("Fabricated dummy work", "header", work.Header, "block", blockNum)
	s.WorkArrived(false)
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}
