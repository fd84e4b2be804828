// Copyright 2017 The go-zilpool Authors
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

// Package ethash implements light verification of the Ethash proof-of-work
// algorithm together with the boundary/difficulty mappings used by the
// Zilliqa network.
package ethash

import (
	"encoding/binary"
	"hash"
	"math/big"

	"golang.org/x/crypto/sha3"
)

const (
	datasetInitBytes   = 1 << 30 // bytes in dataset at genesis
	datasetGrowthBytes = 1 << 23 // dataset growth per epoch
	cacheInitBytes     = 1 << 24 // bytes in cache at genesis
	cacheGrowthBytes   = 1 << 17 // cache growth per epoch
	epochLength        = 30000   // blocks per epoch
	mixBytes           = 128     // width of mix
	hashBytes          = 64      // hash length in bytes
	hashWords          = 16      // number of 32 bit ints in a hash
	datasetParents     = 256     // number of parents of each dataset element
	cacheRounds        = 3       // number of rounds in cache production
	loopAccesses       = 64      // number of accesses in hashimoto loop

	// maxEpoch bounds the seed-to-block reverse scan.
	maxEpoch = 2048
)

// EpochLength is the number of blocks per Ethash epoch.
const EpochLength = epochLength

// hasher is a repetitive hasher allowing the same hash data structures to
// be reused between hash runs instead of requiring new ones to be created.
type hasher func(dest []byte, data []byte)

// makeHasher creates a repetitive hasher, allowing the same hash data
// structures to be reused between hash runs instead of requiring new ones
// to be created. The returned function is not thread safe.
func makeHasher(h hash.Hash) hasher {
	// sha3.state supports Read to get the sum, use it to avoid the
	// overhead of Sum. Read alters the state but we reset on every call.
	type readerHash interface {
		hash.Hash
		Read([]byte) (int, error)
	}
	rh, ok := h.(readerHash)
	if !ok {
		panic("can't find Read method on hash")
	}
	outputLen := rh.Size()
	return func(dest []byte, data []byte) {
		rh.Reset()
		rh.Write(data)
		rh.Read(dest[:outputLen])
	}
}

// keccak256 computes a legacy Keccak-256 digest.
func keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// SeedHash is the seed to use for generating a verification cache and the
// mining dataset covering the given block number.
func SeedHash(block uint64) []byte {
	seed := make([]byte, 32)
	if block < epochLength {
		return seed
	}
	keccak := makeHasher(sha3.NewLegacyKeccak256())
	for i := 0; i < int(block/epochLength); i++ {
		keccak(seed, seed)
	}
	return seed
}

// SeedToBlockNum scans epochs for the one whose seed matches, returning the
// first block of that epoch. It reports false past maxEpoch.
func SeedToBlockNum(seed []byte) (uint64, bool) {
	current := make([]byte, 32)
	keccak := makeHasher(sha3.NewLegacyKeccak256())
	for epoch := uint64(0); epoch < maxEpoch; epoch++ {
		if string(current) == string(seed) {
			return epoch * epochLength, true
		}
		keccak(current, current)
	}
	return 0, false
}

// calcCacheSize returns the verification cache size for the given epoch:
// the highest prime row count below a linearly growing threshold.
func calcCacheSize(epoch uint64) uint64 {
	size := cacheInitBytes + cacheGrowthBytes*epoch - hashBytes
	for !new(big.Int).SetUint64(size / hashBytes).ProbablyPrime(1) { // always accurate for n < 2^64
		size -= 2 * hashBytes
	}
	return size
}

// calcDatasetSize returns the full dataset size for the given epoch.
func calcDatasetSize(epoch uint64) uint64 {
	size := datasetInitBytes + datasetGrowthBytes*epoch - mixBytes
	for !new(big.Int).SetUint64(size / mixBytes).ProbablyPrime(1) { // always accurate for n < 2^64
		size -= 2 * mixBytes
	}
	return size
}

// xorBytes sets dst = a ^ b over hashBytes-sized rows.
func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// generateCache creates a verification cache for the epoch containing the
// given seed. Rows are produced by a keccak512 chain and then strengthened
// with cacheRounds of the RandMemoHash construction.
func generateCache(epoch uint64, seed []byte) []uint32 {
	size := calcCacheSize(epoch)
	rows := int(size / hashBytes)

	cache := make([]byte, size)
	keccak512 := makeHasher(sha3.NewLegacyKeccak512())

	// Sequentially produce the initial dataset
	keccak512(cache[:hashBytes], seed)
	for offset := uint64(hashBytes); offset < size; offset += hashBytes {
		keccak512(cache[offset:offset+hashBytes], cache[offset-hashBytes:offset])
	}
	// Use a low-round version of randmemohash
	temp := make([]byte, hashBytes)
	for i := 0; i < cacheRounds; i++ {
		for j := 0; j < rows; j++ {
			var (
				srcOff = ((j - 1 + rows) % rows) * hashBytes
				dstOff = j * hashBytes
				xorOff = int(binary.LittleEndian.Uint32(cache[dstOff:])%uint32(rows)) * hashBytes
			)
			xorBytes(temp, cache[srcOff:srcOff+hashBytes], cache[xorOff:xorOff+hashBytes])
			keccak512(cache[dstOff:dstOff+hashBytes], temp)
		}
	}
	// Convert to the uint32 view hashimoto operates on
	out := make([]uint32, size/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(cache[i*4:])
	}
	return out
}

const (
	// fnvPrime is the prime constant of the FNV hash.
	fnvPrime = 0x01000193
)

// fnv is an algorithm inspired by the FNV hash, which in some cases is
// used as a non-associative substitute for XOR.
func fnv(a, b uint32) uint32 {
	return a*fnvPrime ^ b
}

// fnvHash mixes in data into mix using the ethash fnv method.
func fnvHash(mix []uint32, data []uint32) {
	for i := 0; i < len(mix); i++ {
		mix[i] = mix[i]*fnvPrime ^ data[i]
	}
}

// generateDatasetItem combines data from 256 pseudorandomly selected cache
// nodes, and hashes that to compute a single dataset node.
func generateDatasetItem(cache []uint32, index uint32, keccak512 hasher) []byte {
	rows := uint32(len(cache) / hashWords)

	// Initialize the mix
	mix := make([]byte, hashBytes)
	binary.LittleEndian.PutUint32(mix, cache[(index%rows)*hashWords]^index)
	for i := 1; i < hashWords; i++ {
		binary.LittleEndian.PutUint32(mix[i*4:], cache[(index%rows)*hashWords+uint32(i)])
	}
	keccak512(mix, mix)

	// Convert the mix to uint32s to avoid constant bit shifting
	intMix := make([]uint32, hashWords)
	for i := range intMix {
		intMix[i] = binary.LittleEndian.Uint32(mix[i*4:])
	}
	// fnv it with a lot of random cache nodes based on index
	for i := uint32(0); i < datasetParents; i++ {
		parent := fnv(index^i, intMix[i%16]) % rows
		fnvHash(intMix, cache[parent*hashWords:])
	}
	// Flatten the uint32 mix into a binary one and return
	for i, val := range intMix {
		binary.LittleEndian.PutUint32(mix[i*4:], val)
	}
	keccak512(mix, mix)
	return mix
}

// hashimoto aggregates data from the full dataset in order to produce the
// final value for a particular header hash and nonce.
func hashimoto(hash []byte, nonce uint64, size uint64, lookup func(index uint32) []uint32) ([]byte, []byte) {
	// Calculate the number of theoretical rows (we use one buffer nonetheless)
	rows := uint32(size / mixBytes)

	// Combine header+nonce into a 40 byte seed
	seed := make([]byte, 40)
	copy(seed, hash)
	binary.LittleEndian.PutUint64(seed[32:], nonce)

	seed512 := make([]byte, hashBytes)
	makeHasher(sha3.NewLegacyKeccak512())(seed512, seed)
	seedHead := binary.LittleEndian.Uint32(seed512)

	// Start the mix with replicated seed
	mix := make([]uint32, mixBytes/4)
	for i := 0; i < len(mix); i++ {
		mix[i] = binary.LittleEndian.Uint32(seed512[i%16*4:])
	}
	// Mix in random dataset nodes
	temp := make([]uint32, len(mix))
	for i := 0; i < loopAccesses; i++ {
		parent := fnv(uint32(i)^seedHead, mix[i%len(mix)]) % rows
		for j := uint32(0); j < mixBytes/hashBytes; j++ {
			copy(temp[j*hashWords:], lookup(2*parent+j))
		}
		fnvHash(mix, temp)
	}
	// Compress mix
	for i := 0; i < len(mix); i += 4 {
		mix[i/4] = fnv(fnv(fnv(mix[i], mix[i+1]), mix[i+2]), mix[i+3])
	}
	mix = mix[:len(mix)/4]

	digest := make([]byte, 32)
	for i, val := range mix {
		binary.LittleEndian.PutUint32(digest[i*4:], val)
	}
	return digest, keccak256(seed512, digest)
}

// hashimotoLight aggregates data from the full dataset (using only a small
// in-memory cache) in order to produce the final value for a particular
// header hash and nonce.
func hashimotoLight(size uint64, cache []uint32, hash []byte, nonce uint64) ([]byte, []byte) {
	keccak512 := makeHasher(sha3.NewLegacyKeccak512())

	lookup := func(index uint32) []uint32 {
		rawData := generateDatasetItem(cache, index, keccak512)

		data := make([]uint32, len(rawData)/4)
		for i := 0; i < len(data); i++ {
			data[i] = binary.LittleEndian.Uint32(rawData[i*4:])
		}
		return data
	}
	return hashimoto(hash, nonce, size, lookup)
}
