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

// Package common contains the hex/int/bytes codec shared by every wire
// surface of the proxy. All hex strings on the wire are lowercase and may
// carry a "0x" prefix; raw field sizes are fixed per protocol message.
package common

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// Wire field sizes in bytes and in hex characters (without the 0x prefix).
const (
	PubKeyBytes    = 33
	HashBytes      = 32
	NonceBytes     = 8
	BlockNumBytes  = 8
	TimeoutBytes   = 4
	SignatureBytes = 64
	AddressBytes   = 20

	PubKeyHexLen    = PubKeyBytes * 2
	HashHexLen      = HashBytes * 2
	NonceHexLen     = NonceBytes * 2
	BlockNumHexLen  = BlockNumBytes * 2
	TimeoutHexLen   = TimeoutBytes * 2
	SignatureHexLen = SignatureBytes * 2
	AddressHexLen   = AddressBytes * 2
)

var errNegativeLength = errors.New("0 and negative length not allowed")

// HasHexPrefix reports whether s starts with "0x" or "0X".
func HasHexPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// StripHexPrefix removes a leading "0x" from s if present.
func StripHexPrefix(s string) string {
	if HasHexPrefix(s) {
		return s[2:]
	}
	return s
}

// HexToBytes decodes a hex string into bytes. The string is lowercased
// first, a "0x" prefix is accepted and odd-length input is left-padded
// with a single zero nibble.
func HexToBytes(s string) ([]byte, error) {
	s = StripHexPrefix(strings.ToLower(s))
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// BytesToHex encodes b as a plain lowercase hex string.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// BytesToHex0x encodes b as a "0x"-prefixed lowercase hex string.
func BytesToHex0x(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// IntToBytes encodes i as size big-endian bytes. A size of zero derives
// the minimal length from the value itself.
func IntToBytes(i *big.Int, size int) []byte {
	if size <= 0 {
		size = (i.BitLen() + 7) / 8
		if size == 0 {
			size = 1
		}
	}
	return i.FillBytes(make([]byte, size))
}

// Uint64ToBytes encodes i as size big-endian bytes.
func Uint64ToBytes(i uint64, size int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], i)
	if size >= 8 {
		out := make([]byte, size)
		copy(out[size-8:], buf[:])
		return out
	}
	return buf[8-size:]
}

// BytesToInt interprets b as a big-endian unsigned integer.
func BytesToInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// BytesToUint64 interprets up to the last 8 bytes of b as a big-endian
// unsigned integer.
func BytesToUint64(b []byte) uint64 {
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:])
}

// IntToHex encodes i as a plain hex string of size bytes.
func IntToHex(i *big.Int, size int) string {
	return BytesToHex(IntToBytes(i, size))
}

// Uint64ToHex0x encodes i as a "0x"-prefixed hex string of size bytes.
func Uint64ToHex0x(i uint64, size int) string {
	return BytesToHex0x(Uint64ToBytes(i, size))
}

// HexToInt decodes a hex string into a big integer.
func HexToInt(s string) (*big.Int, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return nil, err
	}
	return BytesToInt(b), nil
}

// HexToUint64 decodes a hex string of at most 8 bytes into a uint64.
func HexToUint64(s string) (uint64, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return 0, err
	}
	return BytesToUint64(b), nil
}

// IsHexString reports whether s (after prefix stripping) is valid hex of
// exactly hexLen characters.
func IsHexString(s string, hexLen int) bool {
	s = StripHexPrefix(s)
	if len(s) != hexLen {
		return false
	}
	_, err := hex.DecodeString(strings.ToLower(s))
	return err == nil
}
