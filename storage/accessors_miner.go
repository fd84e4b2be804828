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

package storage

import "time"

// GetMiner looks a miner up by wallet address.
func (db *DB) GetMiner(wallet string) (*Miner, bool) {
	id, ok := db.lookupIndex(uniqueKey(minerWalletIndex, wallet))
	if !ok {
		return nil, false
	}
	m := new(Miner)
	if !db.getJSON(docKey(minerPrefix, id), m) {
		return nil, false
	}
	return m, true
}

// GetOrCreateMiner upserts the miner document for a wallet.
func (db *DB) GetOrCreateMiner(wallet string, now time.Time) (*Miner, bool) {
	if m, ok := db.GetMiner(wallet); ok {
		return m, true
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	// re-check under the lock; a concurrent upsert may have won
	if id, ok := db.lookupIndex(uniqueKey(minerWalletIndex, wallet)); ok {
		m := new(Miner)
		if db.getJSON(docKey(minerPrefix, id), m) {
			return m, true
		}
	}
	m := &Miner{
		WalletAddress: wallet,
		Authorized:    true,
		JoinDate:      now,
	}
	m.ID = db.nextID(minerPrefix)
	if !db.putJSON(docKey(minerPrefix, m.ID), m) {
		return nil, false
	}
	if !db.putIndex(uniqueKey(minerWalletIndex, wallet), m.ID) {
		return nil, false
	}
	return m, true
}

// UpdateMiner applies mutate to a miner document under the store lock.
func (db *DB) UpdateMiner(id uint64, mutate func(*Miner) bool) (*Miner, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m := new(Miner)
	if !db.getJSON(docKey(minerPrefix, id), m) {
		return nil, false
	}
	if !mutate(m) {
		return nil, false
	}
	if !db.putJSON(docKey(minerPrefix, id), m) {
		return nil, false
	}
	return m, true
}

// GetWorker looks a worker up by its (wallet, name) pair.
func (db *DB) GetWorker(wallet, name string) (*Worker, bool) {
	id, ok := db.lookupIndex(uniqueKey(workerNameIndex, wallet, name))
	if !ok {
		return nil, false
	}
	w := new(Worker)
	if !db.getJSON(docKey(workerPrefix, id), w) {
		return nil, false
	}
	return w, true
}

// GetOrCreateWorker upserts the worker document for a (wallet, name)
// pair.
func (db *DB) GetOrCreateWorker(wallet, name string) (*Worker, bool) {
	if w, ok := db.GetWorker(wallet, name); ok {
		return w, true
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if id, ok := db.lookupIndex(uniqueKey(workerNameIndex, wallet, name)); ok {
		w := new(Worker)
		if db.getJSON(docKey(workerPrefix, id), w) {
			return w, true
		}
	}
	w := &Worker{
		WalletAddress: wallet,
		WorkerName:    name,
	}
	w.ID = db.nextID(workerPrefix)
	if !db.putJSON(docKey(workerPrefix, w.ID), w) {
		return nil, false
	}
	if !db.putIndex(uniqueKey(workerNameIndex, wallet, name), w.ID) {
		return nil, false
	}
	return w, true
}

// UpdateWorkerStats bumps a worker's counters. Negative increments are
// ignored.
func (db *DB) UpdateWorkerStats(wallet, name string, submitted, failed, finished, verified int) bool {
	w, ok := db.GetOrCreateWorker(wallet, name)
	if !ok {
		return false
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	cur := new(Worker)
	if !db.getJSON(docKey(workerPrefix, w.ID), cur) {
		return false
	}
	if submitted > 0 {
		cur.WorkSubmitted += submitted
	}
	if failed > 0 {
		cur.WorkFailed += failed
	}
	if finished > 0 {
		cur.WorkFinished += finished
	}
	if verified > 0 {
		cur.WorkVerified += verified
	}
	return db.putJSON(docKey(workerPrefix, w.ID), cur)
}

// MinerWorkers lists the workers of a miner.
func (db *DB) MinerWorkers(wallet string) []*Worker {
	var out []*Worker
	scan(db, workerPrefix, func(w *Worker) bool {
		if w.WalletAddress == wallet {
			out = append(out, w)
		}
		return true
	})
	return out
}

// DeleteMiner removes a miner and, cascading, its workers.
func (db *DB) DeleteMiner(wallet string) bool {
	m, ok := db.GetMiner(wallet)
	if !ok {
		return false
	}
	workers := db.MinerWorkers(wallet)
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, w := range workers {
		db.ldb.Delete(docKey(workerPrefix, w.ID), nil)
		db.ldb.Delete(uniqueKey(workerNameIndex, w.WalletAddress, w.WorkerName), nil)
	}
	db.ldb.Delete(docKey(minerPrefix, m.ID), nil)
	if err := db.ldb.Delete(uniqueKey(minerWalletIndex, wallet), nil); err != nil {
		db.logger.Warn("Miner delete failed", "wallet", wallet, "err", err)
		return false
	}
	return true
}

// RecordHashRate stores one hashrate sample. The miner must exist; the
// worker is upserted.
func (db *DB) RecordHashRate(hashrate uint64, wallet, name string, now time.Time) bool {
	if _, ok := db.GetMiner(wallet); !ok {
		return false
	}
	if _, ok := db.GetOrCreateWorker(wallet, name); !ok {
		return false
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	hr := &HashRate{
		WalletAddress: wallet,
		WorkerName:    name,
		HashRate:      hashrate,
		UpdatedTime:   now,
	}
	hr.ID = db.nextID(hashRatePrefix)
	return db.putJSON(docKey(hashRatePrefix, hr.ID), hr)
}

// LatestHashRate returns the newest sample for a (wallet, name) pair.
func (db *DB) LatestHashRate(wallet, name string) (*HashRate, bool) {
	var best *HashRate
	scan(db, hashRatePrefix, func(hr *HashRate) bool {
		if hr.WalletAddress != wallet || hr.WorkerName != name {
			return true
		}
		if best == nil || hr.UpdatedTime.After(best.UpdatedTime) {
			best = hr
		}
		return true
	})
	return best, best != nil
}
