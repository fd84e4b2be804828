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

import "encoding/binary"

// Key layout. Documents live under a one-letter collection prefix keyed by
// an 8-byte big-endian id; index entries map a secondary key back to that
// id. Big-endian ids keep prefix iteration in insertion order.
var (
	seqPrefix = []byte("seq-") // seq-<collection> -> last assigned id

	nodePrefix       = []byte("n-")  // n-<id> -> JSON(Node)
	nodePubKeyIndex  = []byte("in-") // in-<pub_key> -> id
	minerPrefix      = []byte("m-")  // m-<id> -> JSON(Miner)
	minerWalletIndex = []byte("im-") // im-<wallet> -> id
	workerPrefix     = []byte("k-")  // k-<id> -> JSON(Worker)
	workerNameIndex  = []byte("ik-") // ik-<wallet>|<name> -> id

	workPrefix         = []byte("w-")   // w-<id> -> JSON(WorkItem)
	workHeaderIndex    = []byte("iwh-") // iwh-<header>|<boundary>|<id> -> id
	workBlockNumIndex  = []byte("iwb-") // iwb-<block_num>|<id> -> id
	resultPrefix       = []byte("r-")   // r-<id> -> JSON(Result)
	resultHeaderIndex  = []byte("irh-") // irh-<header>|<boundary>|<id> -> id
	resultBlockIndex   = []byte("irb-") // irb-<block_num>|<id> -> id
	powWindowPrefix    = []byte("p-")   // p-<id> -> JSON(PoWWindow)
	hashRatePrefix     = []byte("h-")   // h-<id> -> JSON(HashRate)

	settingsKey = []byte("site-settings") // JSON(SiteSettings)
)

func encodeID(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func decodeID(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b[len(b)-8:])
}

func docKey(prefix []byte, id uint64) []byte {
	return append(append([]byte{}, prefix...), encodeID(id)...)
}

// indexKey builds <prefix><part>|<part>…|<id>. The trailing id keeps keys
// unique for non-unique indices.
func indexKey(prefix []byte, id uint64, parts ...string) []byte {
	key := append([]byte{}, prefix...)
	for _, p := range parts {
		key = append(key, p...)
		key = append(key, '|')
	}
	return append(key, encodeID(id)...)
}

// uniqueKey builds <prefix><part>|<part>… for unique indices whose value
// is the document id.
func uniqueKey(prefix []byte, parts ...string) []byte {
	key := append([]byte{}, prefix...)
	for i, p := range parts {
		if i > 0 {
			key = append(key, '|')
		}
		key = append(key, p...)
	}
	return key
}
