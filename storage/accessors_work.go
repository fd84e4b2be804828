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

// CreateWork persists a new work item, assigning its id and maintaining
// the (header, boundary) and block_num indices.
func (db *DB) CreateWork(w *WorkItem) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	w.ID = db.nextID(workPrefix)
	if !db.putJSON(docKey(workPrefix, w.ID), w) {
		return false
	}
	db.putIndex(indexKey(workHeaderIndex, w.ID, w.Header, w.Boundary), w.ID)
	db.putIndex(indexKey(workBlockNumIndex, w.ID, string(encodeID(w.BlockNum))), w.ID)
	return true
}

// GetWork loads a work item by id.
func (db *DB) GetWork(id uint64) (*WorkItem, bool) {
	w := new(WorkItem)
	if !db.getJSON(docKey(workPrefix, id), w) {
		return nil, false
	}
	return w, true
}

// UpdateWork applies mutate to the stored work item under the store lock.
// mutate returning false aborts without writing. The updated document is
// returned; (nil, false) on a missing document or an engine failure.
func (db *DB) UpdateWork(id uint64, mutate func(*WorkItem) bool) (*WorkItem, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	w := new(WorkItem)
	if !db.getJSON(docKey(workPrefix, id), w) {
		db.logger.Warn("Work update on missing document", "id", id)
		return nil, false
	}
	if !mutate(w) {
		return nil, false
	}
	if !db.putJSON(docKey(workPrefix, id), w) {
		return nil, false
	}
	return w, true
}

// GetNewWorks returns up to count unfinished, unexpired work items with
// pow_fee ≥ minFee and, when maxDispatch > 0, dispatched < maxDispatch.
// An item re-armed after hitting the fan-out cap carries a future start
// time and stays hidden until its cooldown passes. Ordering: descending
// boundary (easiest first), descending pow_fee, ascending start_time,
// ascending dispatched.
func (db *DB) GetNewWorks(count int, minFee float64, maxDispatch int, now time.Time) []*WorkItem {
	var works []*WorkItem
	scan(db, workPrefix, func(w *WorkItem) bool {
		if w.Finished || w.Expired(now) || w.PoWFee < minFee {
			return true
		}
		if w.StartTime.After(now) {
			return true
		}
		if maxDispatch > 0 && w.Dispatched >= maxDispatch {
			return true
		}
		works = append(works, w)
		return true
	})
	sort.SliceStable(works, func(i, j int) bool {
		a, b := works[i], works[j]
		if a.Boundary != b.Boundary {
			return a.Boundary > b.Boundary
		}
		if a.PoWFee != b.PoWFee {
			return a.PoWFee > b.PoWFee
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.Dispatched < b.Dispatched
	})
	if count > 0 && len(works) > count {
		works = works[:count]
	}
	return works
}

// FindWorkByHeaderBoundary returns the oldest work item matching the
// header (and boundary, when non-empty). checkExpired filters out items
// already past their expiry.
func (db *DB) FindWorkByHeaderBoundary(header, boundary string, checkExpired bool, now time.Time) (*WorkItem, bool) {
	var works []*WorkItem
	prefix := uniqueKey(workHeaderIndex, header)
	scanIndex(db, append(prefix, '|'), workPrefix, func(w *WorkItem) bool {
		if boundary != "" && w.Boundary != boundary {
			return true
		}
		if checkExpired && w.Expired(now) {
			return true
		}
		works = append(works, w)
		return true
	})
	if len(works) == 0 {
		return nil, false
	}
	sort.SliceStable(works, func(i, j int) bool {
		return works[i].StartTime.Before(works[j].StartTime)
	})
	return works[0], true
}

// FindWorkByID resolves a stratum job id back to its work item.
func (db *DB) FindWorkByID(id uint64, checkExpired bool, now time.Time) (*WorkItem, bool) {
	w, ok := db.GetWork(id)
	if !ok {
		return nil, false
	}
	if checkExpired && w.Expired(now) {
		return nil, false
	}
	return w, true
}

// CountNodeWorks counts work items registered by a node for one block.
func (db *DB) CountNodeWorks(pubKey string, blockNum uint64) int {
	count := 0
	scan(db, workPrefix, func(w *WorkItem) bool {
		if w.PubKey == pubKey && w.BlockNum == blockNum {
			count++
		}
		return true
	})
	return count
}

// LatestWorkByBlock returns the newest (by start_time) work item of a
// block. Pass allBlocks=true to search the whole pool instead.
func (db *DB) LatestWorkByBlock(blockNum uint64, allBlocks bool) (*WorkItem, bool) {
	var best *WorkItem
	scan(db, workPrefix, func(w *WorkItem) bool {
		if !allBlocks && w.BlockNum != blockNum {
			return true
		}
		if best == nil || w.StartTime.After(best.StartTime) {
			best = w
		}
		return true
	})
	return best, best != nil
}

// FirstWorkByBlock returns the oldest work item of a block.
func (db *DB) FirstWorkByBlock(blockNum uint64) (*WorkItem, bool) {
	var best *WorkItem
	scan(db, workPrefix, func(w *WorkItem) bool {
		if w.BlockNum != blockNum {
			return true
		}
		if best == nil || w.StartTime.Before(best.StartTime) {
			best = w
		}
		return true
	})
	return best, best != nil
}

// LatestWorkBlockNum returns the block of the most recently started work
// item (latest start_time), not necessarily the highest block number;
// ok=false on an empty pool.
func (db *DB) LatestWorkBlockNum() (uint64, bool) {
	w, ok := db.LatestWorkByBlock(0, true)
	if !ok {
		return 0, false
	}
	return w.BlockNum, true
}

// DistinctWorkBoundaries lists the distinct boundaries of a block's work.
func (db *DB) DistinctWorkBoundaries(blockNum uint64) []string {
	seen := make(map[string]struct{})
	var out []string
	scan(db, workPrefix, func(w *WorkItem) bool {
		if w.BlockNum != blockNum {
			return true
		}
		if _, ok := seen[w.Boundary]; !ok {
			seen[w.Boundary] = struct{}{}
			out = append(out, w.Boundary)
		}
		return true
	})
	return out
}

// NodeWorkStats aggregates a node's work counters.
type NodeWorkStats struct {
	All      int `json:"all"`
	Working  int `json:"working"`
	Finished int `json:"finished"`
	Verified int `json:"verified"`
}

// CountNodeWorkStats aggregates the lifetime work counters of a node.
func (db *DB) CountNodeWorkStats(pubKey string, now time.Time) NodeWorkStats {
	var stats NodeWorkStats
	scan(db, workPrefix, func(w *WorkItem) bool {
		if w.PubKey != pubKey {
			return true
		}
		stats.All++
		if !w.Finished && !w.Expired(now) {
			stats.Working++
		}
		if w.Finished {
			stats.Finished++
		}
		return true
	})
	scan(db, resultPrefix, func(r *Result) bool {
		if r.PubKey == pubKey && r.Verified {
			stats.Verified++
		}
		return true
	})
	return stats
}

// ActiveNodeCount counts distinct node keys that registered work within
// the last day.
func (db *DB) ActiveNodeCount(now time.Time) int {
	cutoff := now.Add(-24 * time.Hour)
	seen := make(map[string]struct{})
	scan(db, workPrefix, func(w *WorkItem) bool {
		if w.StartTime.After(cutoff) {
			seen[w.PubKey] = struct{}{}
		}
		return true
	})
	return len(seen)
}
