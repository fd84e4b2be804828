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
	"time"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/consensus/ethash"
	"github.com/durianstall/go-zilpool/params"
	"github.com/durianstall/go-zilpool/storage"
)

// Settings reads the dispatch policy through a short-lived cache cell, so
// the hot get-work path does not hit the store on every poll while admin
// edits still land within a second.
func (p *Pool) Settings() *storage.SiteSettings {
	p.settingsMu.Lock()
	defer p.settingsMu.Unlock()
	now := p.now()
	if p.settings != nil && now.Before(p.settingsExp) {
		return p.settings
	}
	s, ok := p.db.GetSiteSettings()
	if !ok {
		s = p.defaultSettings()
	}
	p.settings = s
	p.settingsExp = now.Add(params.SiteSettingsTTL * time.Second)
	return s
}

// InitSettings seeds the settings document from the config when the store
// has none yet.
func (p *Pool) InitSettings() {
	if _, ok := p.db.GetSiteSettings(); ok {
		return
	}
	p.logger.Info("No site settings in database, creating defaults")
	if !p.db.PutSiteSettings(p.defaultSettings()) {
		p.logger.Error("Cannot save default settings to database")
	}
}

func (p *Pool) defaultSettings() *storage.SiteSettings {
	return &storage.SiteSettings{
		Admin:        "default",
		MinFee:       p.cfg.Mining.MinFee,
		MaxDispatch:  p.cfg.Mining.MaxDispatch,
		IncExpire:    p.cfg.Mining.IncExpire,
		AvgBlockTime: p.cfg.Zilliqa.AvgBlockTime,
		AllowDSPoW:   p.cfg.Zilliqa.AllowDSPoW,
	}
}

// EpochDifficulty lists the distinct hashpower equivalents of a block's
// work boundaries.
func (p *Pool) EpochDifficulty(blockNum uint64) []uint64 {
	var out []uint64
	for _, boundary := range p.db.DistinctWorkBoundaries(blockNum) {
		b, err := common.HexToBytes(boundary)
		if err != nil {
			continue
		}
		out = append(out, ethash.BoundaryToHashPower(b))
	}
	return out
}
