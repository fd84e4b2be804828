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

package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durianstall/go-zilpool/common"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, key.PublicBytes(), common.PubKeyBytes)
	assert.Len(t, key.Address(), common.AddressHexLen)
	assert.NotEmpty(t, key.PrivateHex())
}

func TestKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	// rebuild from the private part alone
	fromPriv, err := NewKeyFromPrivate(key.PrivateHex())
	require.NoError(t, err)
	assert.Equal(t, key.PublicHex(), fromPriv.PublicHex())
	assert.Equal(t, key.Address(), fromPriv.Address())

	// verify-only key from the public part
	fromPub, err := NewKeyFromPublic(key.PublicHex())
	require.NoError(t, err)
	assert.Equal(t, key.Address(), fromPub.Address())
	assert.Empty(t, fromPub.PrivateHex())
	_, err = fromPub.Sign([]byte("msg"))
	assert.Error(t, err)
}

func TestKeyPairMismatch(t *testing.T) {
	key1, err := GenerateKey()
	require.NoError(t, err)
	key2, err := GenerateKey()
	require.NoError(t, err)

	_, err = NewKey(key1.PublicHex(), key2.PrivateHex())
	assert.Error(t, err)

	_, err = NewKey(key1.PublicHex(), key1.PrivateHex())
	assert.NoError(t, err)

	_, err = NewKey("", "")
	assert.Error(t, err)
}

func TestKeySignVerify(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	msg := common.RandBytes(128)

	sig, err := key.Sign(msg)
	require.NoError(t, err)
	assert.True(t, key.Verify(msg, sig))

	sig[3] ^= 0x40
	assert.False(t, key.Verify(msg, sig))
}

func TestKeyFile(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mykey.txt")
	require.NoError(t, key.SaveKeyFile(path))

	loaded, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicHex(), loaded.PublicHex())
	assert.Equal(t, key.PrivateHex(), loaded.PrivateHex())
}
