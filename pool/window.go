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

package pool

import (
	"sort"
	"time"

	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/storage"
)

// CalcPoWWindow derives (pow_start, pow_end) of a block from its recorded
// work: first start_time to last expire_time.
func (p *Pool) CalcPoWWindow(blockNum uint64) (time.Time, time.Time, bool) {
	last, ok := p.db.LatestWorkByBlock(blockNum, false)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	first, ok := p.db.FirstWorkByBlock(blockNum)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return first.StartTime, last.ExpireTime, true
}

// avgPoWTime estimates the PoW window length from recent records. The
// extremes are trimmed once enough samples exist.
func (p *Pool) avgPoWTime() float64 {
	return trimmedAvg(p.db.RecentPoWWindows(params.PoWWindowHistory), func(r *storage.PoWWindow) float64 {
		return r.PoWWindow
	})
}

// avgEpochTime estimates the PoW-inclusive epoch length from recent
// records.
func (p *Pool) avgEpochTime() float64 {
	return trimmedAvg(p.db.RecentPoWWindows(params.PoWWindowHistory), func(r *storage.PoWWindow) float64 {
		return r.EpochWindow
	})
}

func trimmedAvg(records []*storage.PoWWindow, value func(*storage.PoWWindow) float64) float64 {
	var samples []float64
	for _, r := range records {
		if v := value(r); v > 0 {
			samples = append(samples, v)
		}
	}
	sort.Float64s(samples)
	if len(samples) > 4 {
		samples = samples[1 : len(samples)-1]
	}
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// updatePoWWindow advances the epoch ledger for a newly registered work
// item: same block is a no-op, block+1 closes the previous record and
// opens a new one with a fresh next-window estimate, and anything older
// is a corrupted ledger.
func (p *Pool) updatePoWWindow(work *storage.WorkItem) {
	if work == nil {
		return
	}
	last, haveLast := p.db.LatestPoWWindow()

	if haveLast {
		switch {
		case work.BlockNum < last.BlockNum:
			p.logger.Error("Old record found in pow windows, pls clean the database", "block", work.BlockNum, "latest", last.BlockNum)
			return
		case work.BlockNum == last.BlockNum:
			// pow is ongoing, do nothing
			return
		case work.BlockNum == last.BlockNum+1:
			// close out the finished epoch
			powStart, powEnd, ok := p.CalcPoWWindow(last.BlockNum)
			if ok {
				p.db.UpdatePoWWindow(last.ID, func(r *storage.PoWWindow) bool {
					r.PoWStart = powStart
					r.PoWEnd = powEnd
					r.PoWWindow = powEnd.Sub(powStart).Seconds()
					r.EpochWindow = work.StartTime.Sub(powStart).Seconds()
					return true
				})
			}
		}
	}

	powWindow := p.avgPoWTime()
	if haveLast && last.PoWWindow > 0 {
		powWindow = last.PoWWindow
	}
	record := &storage.PoWWindow{
		BlockNum:         work.BlockNum,
		CreateTime:       p.now(),
		PoWStart:         work.StartTime,
		PoWWindow:        powWindow,
		EstimatedNextPoW: work.StartTime.Add(time.Duration(p.avgEpochTime() * float64(time.Second))),
	}
	if !p.db.CreatePoWWindow(record) {
		p.logger.Warn("Failed to persist pow window record", "block", work.BlockNum)
	}
}

// SecondsToNextPoW tells pulling miners how long to sleep: zero inside
// the current window or when the ledger has no usable estimate.
func (p *Pool) SecondsToNextPoW() int {
	last, ok := p.db.LatestPoWWindow()
	if !ok || last.EstimatedNextPoW.IsZero() {
		return 0
	}
	now := p.now()
	if now.After(last.EstimatedNextPoW) {
		p.logger.Warn("Missing pow window records, estimate in the past")
		return 0
	}
	if now.Before(last.PoWStart.Add(time.Duration(last.PoWWindow * float64(time.Second)))) {
		// still inside the current pow window, keep polling
		return 0
	}
	return int(last.EstimatedNextPoW.Sub(now).Seconds())
}
