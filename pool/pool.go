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

// Package pool implements the work-dispatch and result-lifecycle core:
// the PoW work pool with dispatch accounting and expiry, the best-solution
// rule, and the per-epoch PoW-window ledger.
package pool

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/consensus/ethash"
	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/storage"
)

var (
	// ErrWorkNotFound means no active work matches the submission.
	ErrWorkNotFound = errors.New("pool: work not found or expired")

	// ErrVerifyFailed means the Ethash recompute rejected the solution.
	ErrVerifyFailed = errors.New("pool: solution failed verification")

	// ErrAlreadyVerified means the node confirmed the previous result;
	// late submissions are final losers.
	ErrAlreadyVerified = errors.New("pool: work already verified")

	// ErrWorseSolution means a previous result with a smaller hash holds
	// the work.
	ErrWorseSolution = errors.New("pool: better solution already recorded")

	// ErrStoreFailed means the persistence layer reported no change.
	ErrStoreFailed = errors.New("pool: store update failed")
)

// Notifier receives dispatch events; the stratum server implements it to
// push fresh work at connected miners.
type Notifier interface {
	// WorkArrived signals that new work entered the pool. realJob is
	// false for fabricated keep-alive work.
	WorkArrived(realJob bool)
}

// Pool owns the outstanding work set and its dispatch policy.
type Pool struct {
	db     *storage.DB
	cfg    *params.Config
	logger log.Logger

	// read-through cell for the mutable dispatch settings
	settingsMu  sync.Mutex
	settings    *storage.SiteSettings
	settingsExp time.Time

	notifierMu sync.Mutex
	notifier   Notifier

	now func() time.Time
}

// New creates the pool on top of the given store.
func New(db *storage.DB, cfg *params.Config) *Pool {
	return &Pool{
		db:     db,
		cfg:    cfg,
		logger: log.New("pkg", "pool"),
		now:    time.Now,
	}
}

// DB exposes the backing store to the API surfaces.
func (p *Pool) DB() *storage.DB {
	return p.db
}

// SetNotifier registers the push-side dispatcher.
func (p *Pool) SetNotifier(n Notifier) {
	p.notifierMu.Lock()
	p.notifier = n
	p.notifierMu.Unlock()
}

// AnnounceWork wakes the push-side dispatcher, if any.
func (p *Pool) AnnounceWork(realJob bool) {
	p.notifierMu.Lock()
	n := p.notifier
	p.notifierMu.Unlock()
	if n != nil {
		n.WorkArrived(realJob)
	}
}

// NewWork registers a work item. The seed is derived from the block
// number; expiry is timeout seconds from now. The PoW-window ledger is
// updated as a side effect.
func (p *Pool) NewWork(header string, blockNum uint64, boundary string, pubKey, signature string, timeout int, powFee float64) (*storage.WorkItem, bool) {
	if timeout <= 0 {
		timeout = params.DefaultWorkTimeout
	}
	now := p.now()
	work := &storage.WorkItem{
		Header:     header,
		Seed:       common.BytesToHex0x(ethash.SeedHash(blockNum)),
		Boundary:   boundary,
		PubKey:     pubKey,
		Signature:  signature,
		BlockNum:   blockNum,
		StartTime:  now,
		ExpireTime: now.Add(time.Duration(timeout) * time.Second),
		PoWFee:     powFee,
	}
	if !p.db.CreateWork(work) {
		p.logger.Warn("Failed to persist work", "header", header)
		return nil, false
	}
	p.updatePoWWindow(work)
	return work, true
}

// GetNewWorks returns up to count dispatchable work items under the given
// policy, in dispatch order (easiest boundary first, then fee, age and
// dispatch count).
func (p *Pool) GetNewWorks(count int, minFee float64, maxDispatch int) []*storage.WorkItem {
	return p.db.GetNewWorks(count, minFee, maxDispatch, p.now())
}

// GetOneWork returns the single best dispatchable work item, or nil.
func (p *Pool) GetOneWork(minFee float64, maxDispatch int) (*storage.WorkItem, bool) {
	works := p.GetNewWorks(1, minFee, maxDispatch)
	if len(works) == 0 {
		return nil, false
	}
	return works[0], true
}

// FindWorkByHeaderBoundary returns the oldest work matching header (and
// boundary when non-empty); checkExpired filters expired items.
func (p *Pool) FindWorkByHeaderBoundary(header, boundary string, checkExpired bool) (*storage.WorkItem, bool) {
	return p.db.FindWorkByHeaderBoundary(header, boundary, checkExpired, p.now())
}

// FindWorkByID resolves a stratum job id.
func (p *Pool) FindWorkByID(id uint64, checkExpired bool) (*storage.WorkItem, bool) {
	return p.db.FindWorkByID(id, checkExpired, p.now())
}

// IncreaseDispatched counts a dispatch against the work item. When the
// counter reaches maxDispatch the item is re-armed: its start time moves
// forward by incSeconds (or to now, if that would pass the still-unexpired
// deadline) and the counter resets to one. This deliberately re-offers
// work that every dispatched miner has gone quiet on; the same miner may
// see the same job twice.
func (p *Pool) IncreaseDispatched(work *storage.WorkItem, maxDispatch, count, incSeconds int) (*storage.WorkItem, bool) {
	if count <= 0 {
		count = 1
	}
	now := p.now()
	updated, ok := p.db.UpdateWork(work.ID, func(w *storage.WorkItem) bool {
		w.Dispatched += count
		if w.Dispatched == count && w.Dispatched == 1 {
			p.logger.Info("Work dispatched", "header", w.Header, "boundary", w.Boundary)
			return true
		}
		if maxDispatch > 0 && w.Dispatched >= maxDispatch {
			candidate := w.StartTime.Add(time.Duration(incSeconds) * time.Second)
			if !candidate.Before(w.ExpireTime) {
				if now.Before(w.ExpireTime) {
					p.logger.Error("Reset start_time to retry", "header", w.Header, "boundary", w.Boundary)
					w.Dispatched = 1
					w.StartTime = now
				}
			} else {
				p.logger.Warn("Reset dispatched to retry", "header", w.Header, "boundary", w.Boundary)
				w.Dispatched = 1
				w.StartTime = candidate
			}
		}
		return true
	})
	if !ok {
		return nil, false
	}
	*work = *updated
	return updated, true
}

// NextWorkForDispatch picks the best dispatchable work under the current
// site settings and stamps one dispatch on it. Both the HTTP pull path
// and the per-session stratum push use this.
func (p *Pool) NextWorkForDispatch() (*storage.WorkItem, bool) {
	st := p.Settings()
	work, ok := p.GetOneWork(st.MinFee, st.MaxDispatch)
	if !ok {
		return nil, false
	}
	if _, ok := p.IncreaseDispatched(work, st.MaxDispatch, 1, st.IncExpire); !ok {
		p.logger.Warn("Dispatch accounting failed", "header", work.Header)
		return nil, false
	}
	return work, true
}

// SaveResult records a verified solution and marks the work finished. On
// a store failure the work stays unfinished and ok is false.
func (p *Pool) SaveResult(work *storage.WorkItem, nonce, mixDigest, hashResult, minerWallet, workerName string) (*storage.Result, bool) {
	now := p.now()
	result := &storage.Result{
		Header:       work.Header,
		Seed:         work.Seed,
		Boundary:     work.Boundary,
		PubKey:       work.PubKey,
		MixDigest:    mixDigest,
		Nonce:        nonce,
		HashResult:   hashResult,
		BlockNum:     work.BlockNum,
		PoWFee:       work.PoWFee,
		FinishedTime: now,
		MinerWallet:  minerWallet,
		WorkerName:   workerName,
	}
	if !p.db.CreateResult(result) {
		return nil, false
	}
	if _, ok := p.db.UpdateWork(work.ID, func(w *storage.WorkItem) bool {
		w.Finished = true
		w.MinerWallet = minerWallet
		return true
	}); !ok {
		return nil, false
	}
	work.Finished = true
	work.MinerWallet = minerWallet
	return result, true
}

// checkBestSolution applies the best-solution rule for a finished work:
// the newcomer must strictly beat the unverified current result.
func (p *Pool) checkBestSolution(work *storage.WorkItem, hashResult []byte) error {
	if !work.Finished {
		return nil
	}
	prev, ok := p.db.LatestResult(work.Header, work.Boundary, "")
	if !ok {
		return nil
	}
	if prev.Verified {
		return ErrAlreadyVerified
	}
	prevHash, err := common.HexToBytes(prev.HashResult)
	if err != nil {
		return nil
	}
	if ethash.IsLessOrEqual(prevHash, hashResult) {
		return ErrWorseSolution
	}
	return nil
}

// SubmitSolution runs the shared submission pipeline: recompute Ethash,
// apply the best-solution rule and save the result. A non-nil mixDigest
// is the miner's claim and must match the recompute; the NiceHash path
// passes nil and trusts the recomputed digest. Worker counters are bumped
// on a mix or boundary failure, on a best-solution rejection and on
// success; header, boundary or seed decode errors and a failed save leave
// them unchanged. It returns the saved result, or an error naming the
// rejection.
func (p *Pool) SubmitSolution(verifier *ethash.Verifier, work *storage.WorkItem, nonce uint64, mixDigest []byte, minerWallet, workerName string) (*storage.Result, error) {
	header, err := common.HexToBytes(work.Header)
	if err != nil {
		return nil, ErrVerifyFailed
	}
	boundary, err := common.HexToBytes(work.Boundary)
	if err != nil {
		return nil, ErrVerifyFailed
	}
	seed, err := common.HexToBytes(work.Seed)
	if err != nil {
		return nil, ErrVerifyFailed
	}
	blockNum, ok := ethash.SeedToBlockNum(seed)
	if !ok {
		p.logger.Warn("Work seed out of epoch range", "seed", work.Seed)
		return nil, ErrVerifyFailed
	}

	digest, result := verifier.PoWHash(blockNum, header, nonce)
	if mixDigest != nil && !bytes.Equal(digest, mixDigest) {
		p.db.UpdateWorkerStats(minerWallet, workerName, 0, 1, 0, 0)
		p.logger.Warn("Mix digest mismatch from miner", "wallet", minerWallet, "worker", workerName, "header", work.Header)
		return nil, ErrVerifyFailed
	}
	if !ethash.IsLessOrEqual(result, boundary) {
		p.db.UpdateWorkerStats(minerWallet, workerName, 0, 1, 0, 0)
		p.logger.Warn("Wrong result from miner", "wallet", minerWallet, "worker", workerName, "header", work.Header)
		return nil, ErrVerifyFailed
	}

	if err := p.checkBestSolution(work, result); err != nil {
		p.db.UpdateWorkerStats(minerWallet, workerName, 0, 1, 0, 0)
		p.logger.Warn("Submission rejected", "reason", err, "header", work.Header, "boundary", work.Boundary)
		return nil, err
	}

	saved, ok := p.SaveResult(work,
		common.BytesToHex0x(common.Uint64ToBytes(nonce, common.NonceBytes)),
		common.BytesToHex0x(digest),
		common.BytesToHex0x(result),
		minerWallet, workerName)
	if !ok {
		p.logger.Warn("Failed to save result", "wallet", minerWallet, "worker", workerName, "header", work.Header)
		return nil, ErrStoreFailed
	}
	p.db.UpdateWorkerStats(minerWallet, workerName, 0, 0, 1, 0)
	return saved, nil
}
