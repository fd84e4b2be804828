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

package ethash

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// BoundaryBytes is the width of a PoW target.
const BoundaryBytes = 32

// hashPowerBase is 0xffff << 240, the difficulty-1 reference target used
// for hashpower equivalence.
var hashPowerBase = new(uint256.Int).Lsh(uint256.NewInt(0xffff), 240)

// DifficultyToBoundary maps a leading-zero-bit difficulty to its 32-byte
// target: difficulty zero bits, then ones.
func DifficultyToBoundary(difficulty int) []byte {
	if difficulty < 0 {
		difficulty = 0
	}
	if difficulty > 255 {
		difficulty = 255
	}
	boundary := make([]byte, BoundaryBytes)
	for i := range boundary {
		boundary[i] = 0xff
	}
	zeroBytes := difficulty / 8
	zeroBits := difficulty % 8
	for i := 0; i < zeroBytes; i++ {
		boundary[i] = 0
	}
	boundary[zeroBytes] = 0xff >> zeroBits
	return boundary
}

// BoundaryToDifficulty counts the leading zero bits of a 32-byte target.
func BoundaryToDifficulty(boundary []byte) int {
	difficulty := 0
	for _, b := range boundary {
		if b == 0 {
			difficulty += 8
			continue
		}
		difficulty += bits.LeadingZeros8(b)
		break
	}
	return difficulty
}

// difficultyToBoundaryInt is the integer form of the plain mapping.
func difficultyToBoundaryInt(difficulty int) *uint256.Int {
	out := new(uint256.Int)
	out.SetBytes(DifficultyToBoundary(difficulty))
	return out
}

// DifficultyToBoundaryDivided maps a difficulty to a target under the
// divided scheme: below nDividedStart it equals the plain mapping; above,
// each whole difficulty level is split into nDivided linear sub-steps.
func DifficultyToBoundaryDivided(difficulty, nDivided, nDividedStart int) []byte {
	if difficulty < nDividedStart {
		return DifficultyToBoundary(difficulty)
	}
	nLevel := (difficulty - nDividedStart) / nDivided
	mSubLevel := (difficulty - nDividedStart) % nDivided
	level := nDividedStart + nLevel

	cur := difficultyToBoundaryInt(level)
	next := difficultyToBoundaryInt(level + 1)
	step := new(uint256.Int).Sub(cur, next)
	step.Div(step, uint256.NewInt(uint64(nDivided)))

	out := new(uint256.Int).Mul(step, uint256.NewInt(uint64(mSubLevel)))
	out.Sub(cur, out)

	b := out.Bytes32()
	return b[:]
}

// BoundaryToDifficultyDivided inverts the divided mapping. For targets
// below the divided region it degrades to the plain leading-zero count.
func BoundaryToDifficultyDivided(boundary []byte, nDivided, nDividedStart int) int {
	level := BoundaryToDifficulty(boundary)
	if level < nDividedStart {
		return level
	}
	cur := difficultyToBoundaryInt(level)
	next := difficultyToBoundaryInt(level + 1)
	step := new(uint256.Int).Sub(cur, next)
	step.Div(step, uint256.NewInt(uint64(nDivided)))
	if step.IsZero() {
		return nDividedStart + (level-nDividedStart)*nDivided
	}

	val := new(uint256.Int)
	val.SetBytes(boundary)
	sub := new(uint256.Int).Sub(cur, val)
	sub.Div(sub, step)
	return nDividedStart + (level-nDividedStart)*nDivided + int(sub.Uint64())
}

// BoundaryToHashPower returns the hashpower equivalent of a target,
// 0xffff0000…0 divided by the target as an integer.
func BoundaryToHashPower(boundary []byte) uint64 {
	val := new(uint256.Int)
	val.SetBytes(boundary)
	if val.IsZero() {
		return 0
	}
	return new(uint256.Int).Div(hashPowerBase, val).Uint64()
}

// IsLessOrEqual compares two hashes as big-endian integers.
func IsLessOrEqual(hash, boundary []byte) bool {
	a := new(uint256.Int)
	a.SetBytes(hash)
	b := new(uint256.Int)
	b.SetBytes(boundary)
	return a.Cmp(b) <= 0
}

// IsLess compares two hashes as big-endian integers, strictly.
func IsLess(hash, other []byte) bool {
	a := new(uint256.Int)
	a.SetBytes(hash)
	b := new(uint256.Int)
	b.SetBytes(other)
	return a.Cmp(b) < 0
}
