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

import (
	"sort"
	"time"
)

// CreateResult persists a solution, maintaining the (header, boundary)
// and block_num indices.
func (db *DB) CreateResult(r *Result) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	r.ID = db.nextID(resultPrefix)
	if !db.putJSON(docKey(resultPrefix, r.ID), r) {
		return false
	}
	db.putIndex(indexKey(resultHeaderIndex, r.ID, r.Header, r.Boundary), r.ID)
	db.putIndex(indexKey(resultBlockIndex, r.ID, string(encodeID(r.BlockNum))), r.ID)
	return true
}

// UpdateResult applies mutate to a stored result under the store lock.
func (db *DB) UpdateResult(id uint64, mutate func(*Result) bool) (*Result, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	r := new(Result)
	if !db.getJSON(docKey(resultPrefix, id), r) {
		db.logger.Warn("Result update on missing document", "id", id)
		return nil, false
	}
	if !mutate(r) {
		return nil, false
	}
	if !db.putJSON(docKey(resultPrefix, id), r) {
		return nil, false
	}
	return r, true
}

// LatestResult returns the newest (by finished_time) result for a
// (header, boundary) pair, optionally restricted to one node key.
func (db *DB) LatestResult(header, boundary, pubKey string) (*Result, bool) {
	var results []*Result
	prefix := uniqueKey(resultHeaderIndex, header, boundary)
	scanIndex(db, append(prefix, '|'), resultPrefix, func(r *Result) bool {
		if pubKey != "" && r.PubKey != pubKey {
			return true
		}
		results = append(results, r)
		return true
	})
	if len(results) == 0 {
		return nil, false
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinishedTime.After(results[j].FinishedTime)
	})
	return results[0], true
}

// RewardStats is the aggregate of a reward query.
type RewardStats struct {
	Rewards     float64   `json:"rewards"`
	Count       int       `json:"count"`
	Verified    int       `json:"verified"`
	FirstWorkAt time.Time `json:"first_work_at"`
	LastWorkAt  time.Time `json:"last_work_at"`
}

// EpochRewards aggregates result fees, optionally filtered by block range
// and miner/worker. Zero blockEnd means blockStart only; both zero means
// all blocks.
func (db *DB) EpochRewards(blockStart, blockEnd uint64, minerWallet, workerName string) RewardStats {
	var stats RewardStats
	scan(db, resultPrefix, func(r *Result) bool {
		if blockStart != 0 || blockEnd != 0 {
			end := blockEnd
			if end == 0 {
				end = blockStart
			}
			if r.BlockNum < blockStart || r.BlockNum > end {
				return true
			}
		}
		if minerWallet != "" && r.MinerWallet != minerWallet {
			return true
		}
		if workerName != "" && r.WorkerName != workerName {
			return true
		}
		stats.Rewards += r.PoWFee
		stats.Count++
		if r.Verified {
			stats.Verified++
		}
		if stats.FirstWorkAt.IsZero() || r.FinishedTime.Before(stats.FirstWorkAt) {
			stats.FirstWorkAt = r.FinishedTime
		}
		if r.FinishedTime.After(stats.LastWorkAt) {
			stats.LastWorkAt = r.FinishedTime
		}
		return true
	})
	return stats
}

// MinerRewards is the per-miner aggregate of a block's results.
type MinerRewards struct {
	MinerWallet string    `json:"miner_wallet"`
	BlockNum    uint64    `json:"block_num"`
	DateTime    time.Time `json:"date_time"`
	Rewards     float64   `json:"rewards"`
	Finished    int       `json:"finished"`
	Verified    int       `json:"verified"`
}

// RewardsByMiners groups one block's results by miner wallet.
func (db *DB) RewardsByMiners(blockNum uint64) []MinerRewards {
	byWallet := make(map[string]*MinerRewards)
	var order []string
	scan(db, resultPrefix, func(r *Result) bool {
		if r.BlockNum != blockNum {
			return true
		}
		agg, ok := byWallet[r.MinerWallet]
		if !ok {
			agg = &MinerRewards{
				MinerWallet: r.MinerWallet,
				BlockNum:    r.BlockNum,
				DateTime:    r.FinishedTime,
			}
			byWallet[r.MinerWallet] = agg
			order = append(order, r.MinerWallet)
		}
		agg.Rewards += r.PoWFee
		agg.Finished++
		if r.Verified {
			agg.Verified++
		}
		return true
	})
	out := make([]MinerRewards, 0, len(order))
	for _, wallet := range order {
		out = append(out, *byWallet[wallet])
	}
	return out
}
