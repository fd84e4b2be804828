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

// WorkItem is one unit of PoW offered by a node. Hex fields are lowercase
// "0x"-prefixed strings exactly as they arrived on the wire.
type WorkItem struct {
	ID uint64 `json:"id"`

	Header    string `json:"header"`
	Seed      string `json:"seed"`
	Boundary  string `json:"boundary"`
	PubKey    string `json:"pub_key"`
	Signature string `json:"signature"`

	BlockNum   uint64    `json:"block_num"`
	StartTime  time.Time `json:"start_time"`
	ExpireTime time.Time `json:"expire_time"`

	Finished    bool    `json:"finished"`
	MinerWallet string  `json:"miner_wallet"`
	PoWFee      float64 `json:"pow_fee"`
	Dispatched  int     `json:"dispatched"`
}

// Expired reports whether the work is past its expiry at the given time.
func (w *WorkItem) Expired(now time.Time) bool {
	return w.ExpireTime.Before(now)
}

// Result is a verified solution attempt.
type Result struct {
	ID uint64 `json:"id"`

	Header   string `json:"header"`
	Seed     string `json:"seed"`
	Boundary string `json:"boundary"`
	PubKey   string `json:"pub_key"`

	MixDigest  string `json:"mix_digest"`
	Nonce      string `json:"nonce"`
	HashResult string `json:"hash_result"`

	BlockNum     uint64    `json:"block_num"`
	PoWFee       float64   `json:"pow_fee"`
	FinishedTime time.Time `json:"finished_time"`
	VerifiedTime time.Time `json:"verified_time"`

	Verified    bool   `json:"verified"`
	MinerWallet string `json:"miner_wallet"`
	WorkerName  string `json:"worker_name"`
}

// Miner is a wallet that submits solutions.
type Miner struct {
	ID uint64 `json:"id"`

	WalletAddress string  `json:"wallet_address"`
	Rewards       float64 `json:"rewards"`
	Paid          float64 `json:"paid"`
	Authorized    bool    `json:"authorized"`

	NickName      string    `json:"nick_name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	JoinDate      time.Time `json:"join_date"`
}

// Worker is one named GPU of a Miner.
type Worker struct {
	ID uint64 `json:"id"`

	WalletAddress string `json:"wallet_address"`
	WorkerName    string `json:"worker_name"`

	WorkSubmitted int `json:"work_submitted"`
	WorkFailed    int `json:"work_failed"`
	WorkFinished  int `json:"work_finished"`
	WorkVerified  int `json:"work_verified"`
}

// Node is an authorized PoW source.
type Node struct {
	ID uint64 `json:"id"`

	PubKey     string  `json:"pub_key"`
	PoWFee     float64 `json:"pow_fee"`
	Authorized bool    `json:"authorized"`
	Email      string  `json:"email"`
}

// PoWWindow records one observed epoch's PoW timing.
type PoWWindow struct {
	ID uint64 `json:"id"`

	BlockNum   uint64    `json:"block_num"`
	CreateTime time.Time `json:"create_time"`

	PoWStart    time.Time `json:"pow_start"`
	PoWEnd      time.Time `json:"pow_end"`
	PoWWindow   float64   `json:"pow_window"`   // seconds
	EpochWindow float64   `json:"epoch_window"` // seconds, PoW inclusive

	EstimatedNextPoW time.Time `json:"estimated_next_pow"`
}

// HashRate is one self-reported hashrate sample.
type HashRate struct {
	ID uint64 `json:"id"`

	WalletAddress string    `json:"wallet_address"`
	WorkerName    string    `json:"worker_name"`
	HashRate      uint64    `json:"hashrate"`
	UpdatedTime   time.Time `json:"updated_time"`
}

// SiteSettings is the single mutable dispatch-policy document.
type SiteSettings struct {
	Admin        string  `json:"admin"`
	MinFee       float64 `json:"min_fee"`
	MaxDispatch  int     `json:"max_dispatch"`
	IncExpire    int     `json:"inc_expire"`
	Notification string  `json:"notification"`
	AvgBlockTime float64 `json:"avg_block_time"`
	AllowDSPoW   bool    `json:"allow_ds_pow"`
}
