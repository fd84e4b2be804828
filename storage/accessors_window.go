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

import "sort"

// CreatePoWWindow persists a new epoch record.
func (db *DB) CreatePoWWindow(p *PoWWindow) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	p.ID = db.nextID(powWindowPrefix)
	return db.putJSON(docKey(powWindowPrefix, p.ID), p)
}

// UpdatePoWWindow applies mutate to an epoch record under the store lock.
func (db *DB) UpdatePoWWindow(id uint64, mutate func(*PoWWindow) bool) (*PoWWindow, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p := new(PoWWindow)
	if !db.getJSON(docKey(powWindowPrefix, id), p) {
		return nil, false
	}
	if !mutate(p) {
		return nil, false
	}
	if !db.putJSON(docKey(powWindowPrefix, id), p) {
		return nil, false
	}
	return p, true
}

// LatestPoWWindow returns the newest (by create_time) epoch record.
func (db *DB) LatestPoWWindow() (*PoWWindow, bool) {
	var best *PoWWindow
	scan(db, powWindowPrefix, func(p *PoWWindow) bool {
		if best == nil || p.CreateTime.After(best.CreateTime) {
			best = p
		}
		return true
	})
	return best, best != nil
}

// RecentPoWWindows returns up to n epoch records, newest first.
func (db *DB) RecentPoWWindows(n int) []*PoWWindow {
	var out []*PoWWindow
	scan(db, powWindowPrefix, func(p *PoWWindow) bool {
		out = append(out, p)
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreateTime.After(out[j].CreateTime)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// GetSiteSettings loads the dispatch-policy document.
func (db *DB) GetSiteSettings() (*SiteSettings, bool) {
	s := new(SiteSettings)
	if !db.getJSON(settingsKey, s) {
		return nil, false
	}
	return s, true
}

// PutSiteSettings stores the dispatch-policy document.
func (db *DB) PutSiteSettings(s *SiteSettings) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.putJSON(settingsKey, s)
}
