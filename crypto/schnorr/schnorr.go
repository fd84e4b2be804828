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

// Package schnorr implements the Zilliqa variant of Schnorr signatures
// over secp256k1.
//
// The commitment hash binds both the ephemeral point and the signer's
// public key, each in 33-byte SEC1 compressed form:
//
//	r = SHA-256(enc(k*G) || enc(d*G) || message) mod q
//	s = (k - r*d) mod q
//
// Signatures are the 64-byte big-endian concatenation r || s.
package schnorr

import (
	"crypto/sha256"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SignatureSize is the byte length of an encoded signature.
const SignatureSize = 64

// maxSignRetries bounds the ephemeral nonce sampling loop.
const maxSignRetries = 10

var (
	// ErrSignRetriesExceeded means no usable nonce was found.
	ErrSignRetriesExceeded = errors.New("schnorr: signing retries exceeded")

	// ErrInvalidSignature covers malformed or out-of-range r/s encodings.
	ErrInvalidSignature = errors.New("schnorr: invalid signature encoding")

	// ErrInvalidPubKey means the public key could not be parsed as a
	// point on the curve.
	ErrInvalidPubKey = errors.New("schnorr: invalid public key")
)

// Sign produces a signature of msg under priv. The nonce is sampled fresh
// on each attempt, so two signatures of the same message differ.
func Sign(priv *secp256k1.PrivateKey, msg []byte) ([]byte, error) {
	for i := 0; i < maxSignRetries; i++ {
		k, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		if k.Key.IsZero() {
			continue
		}
		sig, ok := signWithNonce(priv, &k.Key, msg)
		if ok {
			return sig, nil
		}
	}
	return nil, ErrSignRetriesExceeded
}

// signWithNonce runs one signing attempt with the given nonce scalar. It
// reports failure when r or s degenerates to zero.
func signWithNonce(priv *secp256k1.PrivateKey, k *secp256k1.ModNScalar, msg []byte) ([]byte, bool) {
	// Q = k*G
	var q secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &q)
	q.ToAffine()
	encQ := secp256k1.NewPublicKey(&q.X, &q.Y).SerializeCompressed()
	encP := priv.PubKey().SerializeCompressed()

	r := challenge(encQ, encP, msg)
	if r.IsZero() {
		return nil, false
	}

	// s = k - r*d mod q
	var s secp256k1.ModNScalar
	s.Mul2(r, &priv.Key).Negate().Add(k)
	if s.IsZero() {
		return nil, false
	}

	sig := make([]byte, SignatureSize)
	rb := r.Bytes()
	sb := s.Bytes()
	copy(sig[:32], rb[:])
	copy(sig[32:], sb[:])
	return sig, true
}

// Verify checks a 64-byte signature of msg under the serialized public key
// (SEC1 compressed or uncompressed).
func Verify(pubKey, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	pub, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}

	var r, s secp256k1.ModNScalar
	rOverflow := r.SetByteSlice(sig[:32])
	sOverflow := s.SetByteSlice(sig[32:])
	// s must be a canonical non-zero scalar; r must be non-zero. An r at
	// or above the group order can never equal the reduced challenge, so
	// the final comparison rejects it via the overflow flag.
	if sOverflow || s.IsZero() || r.IsZero() {
		return false
	}

	// Q = s*G + r*W
	var sG, rW, q secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &sG)
	var w secp256k1.JacobianPoint
	pub.AsJacobian(&w)
	secp256k1.ScalarMultNonConst(&r, &w, &rW)
	secp256k1.AddNonConst(&sG, &rW, &q)
	if (q.X.IsZero() && q.Y.IsZero()) || q.Z.IsZero() {
		return false
	}
	q.ToAffine()

	encQ := secp256k1.NewPublicKey(&q.X, &q.Y).SerializeCompressed()
	encW := pub.SerializeCompressed()

	v := challenge(encQ, encW, msg)
	return !rOverflow && v.Equals(&r)
}

// challenge hashes enc(Q) || enc(W) || msg into a scalar mod the group
// order.
func challenge(encQ, encW, msg []byte) *secp256k1.ModNScalar {
	h := sha256.New()
	h.Write(encQ)
	h.Write(encW)
	h.Write(msg)
	var out secp256k1.ModNScalar
	out.SetByteSlice(h.Sum(nil))
	return &out
}
