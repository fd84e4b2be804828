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

// Package crypto wraps the proxy's key handling: Zilliqa keypairs, address
// derivation and Schnorr sign/verify over them.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/durianstall/go-zilpool/common"
	"github.com/durianstall/go-zilpool/crypto/schnorr"
)

var (
	errNoKeyMaterial   = errors.New("crypto: no key material given")
	errNoPrivateKey    = errors.New("crypto: no private key")
	errPubKeyMismatch  = errors.New("crypto: public key does not match private key")
	errMalformedKeyTxt = errors.New("crypto: malformed key file")
)

// Key is a Zilliqa keypair. The private part is optional; a verify-only
// key holds just the public point.
type Key struct {
	pub  *secp256k1.PublicKey
	priv *secp256k1.PrivateKey
}

// NewKeyFromPublic parses a hex-encoded SEC1 public key.
func NewKeyFromPublic(pubHex string) (*Key, error) {
	b, err := common.HexToBytes(pubHex)
	if err != nil {
		return nil, err
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, schnorr.ErrInvalidPubKey
	}
	return &Key{pub: pub}, nil
}

// NewKeyFromPrivate parses a hex-encoded 32-byte private key and derives
// the public point.
func NewKeyFromPrivate(privHex string) (*Key, error) {
	b, err := common.HexToBytes(privHex)
	if err != nil {
		return nil, err
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, errNoKeyMaterial
	}
	return &Key{pub: priv.PubKey(), priv: priv}, nil
}

// NewKey builds a key from public and/or private hex strings. When both
// are given they must agree.
func NewKey(pubHex, privHex string) (*Key, error) {
	if privHex == "" && pubHex == "" {
		return nil, errNoKeyMaterial
	}
	if privHex == "" {
		return NewKeyFromPublic(pubHex)
	}
	key, err := NewKeyFromPrivate(privHex)
	if err != nil {
		return nil, err
	}
	if pubHex != "" {
		declared, err := common.HexToBytes(pubHex)
		if err != nil {
			return nil, err
		}
		if common.BytesToHex(declared) != common.BytesToHex(key.pub.SerializeCompressed()) {
			return nil, errPubKeyMismatch
		}
	}
	return key, nil
}

// GenerateKey creates a fresh random keypair.
func GenerateKey() (*Key, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Key{pub: priv.PubKey(), priv: priv}, nil
}

// PublicBytes returns the 33-byte compressed public key.
func (k *Key) PublicBytes() []byte {
	return k.pub.SerializeCompressed()
}

// PublicHex returns the "0x"-prefixed compressed public key.
func (k *Key) PublicHex() string {
	return common.BytesToHex0x(k.PublicBytes())
}

// PrivateHex returns the "0x"-prefixed private scalar, or "" for a
// verify-only key.
func (k *Key) PrivateHex() string {
	if k.priv == nil {
		return ""
	}
	return common.BytesToHex0x(k.priv.Serialize())
}

// Address derives the wallet address: the last 20 bytes of the SHA-256
// digest of the compressed public key.
func (k *Key) Address() string {
	digest := sha256.Sum256(k.PublicBytes())
	return common.BytesToHex(digest[common.HashBytes-common.AddressBytes:])
}

// Sign produces a Schnorr signature of msg.
func (k *Key) Sign(msg []byte) ([]byte, error) {
	if k.priv == nil {
		return nil, errNoPrivateKey
	}
	return schnorr.Sign(k.priv, msg)
}

// Verify checks a Schnorr signature of msg under this key.
func (k *Key) Verify(msg, sig []byte) bool {
	return schnorr.Verify(k.PublicBytes(), msg, sig)
}

// LoadKeyFile reads a "pubhex privhex" key file (mykey.txt format).
func LoadKeyFile(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return nil, errMalformedKeyTxt
	}
	return NewKey(fields[0], fields[1])
}

// SaveKeyFile writes the keypair in the key file format.
func (k *Key) SaveKeyFile(path string) error {
	if k.priv == nil {
		return errNoPrivateKey
	}
	line := fmt.Sprintf("%s %s\n",
		common.BytesToHex(k.PublicBytes()),
		common.BytesToHex(k.priv.Serialize()))
	return os.WriteFile(path, []byte(line), 0600)
}
