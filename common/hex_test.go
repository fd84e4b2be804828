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
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexToBytes(t *testing.T) {
	want := []byte{0xde, 0xad, 0xbe, 0xef}

	for _, input := range []string{"DEADBEEF", "deadbeef", "0xdeadbeef", "0XdeadBEEF"} {
		got, err := HexToBytes(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}
	// odd length input is left-padded with a zero nibble
	got, err := HexToBytes("deadbee")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0d, 0xea, 0xdb, 0xee}, got)

	_, err = HexToBytes("not-hex")
	assert.Error(t, err)
}

func TestBytesToHex(t *testing.T) {
	b := []byte{0xde, 0xad, 0xbe, 0xef}
	assert.Equal(t, "deadbeef", BytesToHex(b))
	assert.Equal(t, "0xdeadbeef", BytesToHex0x(b))
}

func TestHexRoundTrip(t *testing.T) {
	for i := 0; i < 64; i++ {
		b := RandBytes(32)
		decoded, err := HexToBytes(BytesToHex(b))
		require.NoError(t, err)
		assert.Equal(t, b, decoded)

		decoded, err = HexToBytes(BytesToHex0x(b))
		require.NoError(t, err)
		assert.Equal(t, b, decoded)
	}
}

func TestIntRoundTrip(t *testing.T) {
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(0xdeadbeef),
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
	}
	for i := 0; i < 32; i++ {
		values = append(values, new(big.Int).SetBytes(RandBytes(32)))
	}
	for _, v := range values {
		got, err := HexToInt(IntToHex(v, 32))
		require.NoError(t, err)
		assert.Zero(t, v.Cmp(got), "value %s", v)
	}
}

func TestUint64Codec(t *testing.T) {
	assert.Equal(t, "0x0000003c", Uint64ToHex0x(60, 4))
	assert.Equal(t, []byte{0, 0, 0, 0x3c}, Uint64ToBytes(60, 4))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0x3c}, Uint64ToBytes(60, 8))

	n, err := HexToUint64("0x0000003c")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), n)

	n, err = HexToUint64("0x495732e0ed7a801c")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x495732e0ed7a801c), n)
}

func TestIsHexString(t *testing.T) {
	assert.True(t, IsHexString("0x"+RandHex(64), 64))
	assert.True(t, IsHexString(RandHex(64), 64))
	assert.False(t, IsHexString(RandHex(63), 64))
	assert.False(t, IsHexString(RandHex(66), 64))
	assert.False(t, IsHexString("0x"+RandHex(62)+"zz", 64))
}

func TestRand(t *testing.T) {
	assert.Len(t, RandBytes(11), 11)
	assert.Len(t, RandBytes(999), 999)
	assert.NotEqual(t, RandBytes(8), RandBytes(8))

	assert.Len(t, RandHex(11), 11)
	assert.Len(t, RandHex(1000), 1000)
	assert.Len(t, RandHex0x(64), 66)

	assert.Panics(t, func() { RandBytes(0) })
	assert.Panics(t, func() { RandHex(-1) })
}
