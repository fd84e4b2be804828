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

package common

import (
	"crypto/rand"
	mrand "math/rand"
)

// RandBytes returns n cryptographically random bytes.
func RandBytes(n int) []byte {
	if n <= 0 {
		panic(errNegativeLength)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandHex returns a random plain hex string of n characters.
func RandHex(n int) string {
	if n <= 0 {
		panic(errNegativeLength)
	}
	s := BytesToHex(RandBytes(n/2 + 1))
	return s[:n]
}

// RandHex0x returns a random "0x"-prefixed hex string of n characters.
func RandHex0x(n int) string {
	return "0x" + RandHex(n)
}

const randStringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandString returns a random alphanumeric string of n characters. Not for
// key material; used for worker defaults and test fixtures.
func RandString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randStringAlphabet[mrand.Intn(len(randStringAlphabet))]
	}
	return string(b)
}
