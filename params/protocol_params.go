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

package params

const (
	// MaxWorksPerNodeBlock caps the work items a node may register for one
	// DS block; finished and expired items count toward the cap.
	MaxWorksPerNodeBlock = 2

	// DefaultWorkTimeout is the work expiry used when a node does not
	// declare one, in seconds.
	DefaultWorkTimeout = 120

	// LegacyWorkTimeout is the fixed timeout some v4.2.0 node firmware
	// signs regardless of the declared value, in seconds.
	LegacyWorkTimeout = 60

	// PoWWindowHistory is how many epoch records feed the next-window
	// estimate.
	PoWWindowHistory = 10

	// SiteSettingsTTL is the lifetime of the cached dispatch settings,
	// in seconds.
	SiteSettingsTTL = 1

	// QaPerZil converts the chain's base units into whole coins.
	QaPerZil = 1e12
)

// DefaultMiner receives anonymous HTTP submissions.
const DefaultMiner = "0x0123456789012345678901234567890123456789"

// DefaultWorkerName is assigned when a miner does not name its worker.
const DefaultWorkerName = "default_worker"
