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

package ethash

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/durianstall/go-zilpool/common/lru"
	"github.com/durianstall/go-zilpool/log"
)

// cachesInMem is the number of verification caches kept resident. One
// cache covers one epoch (30000 blocks); ten cover every PoW window the
// proxy will realistically see in flight.
const cachesInMem = 10

// Verifier recomputes Ethash results for submitted solutions. It keeps a
// bounded LRU of per-epoch verification caches; concurrent verifications
// of the same fresh epoch share a single cache build.
type Verifier struct {
	mu     sync.Mutex
	caches *lru.Cache[uint64, []uint32]
	single singleflight.Group

	logger log.Logger
}

// NewVerifier creates a verifier with an empty cache set.
func NewVerifier() *Verifier {
	return &Verifier{
		caches: lru.NewCache[uint64, []uint32](cachesInMem),
		logger: log.New("pkg", "ethash"),
	}
}

// cache returns the verification cache for the epoch of the given block,
// generating it on a miss. Generation takes seconds; singleflight folds
// concurrent misses of the same epoch into one build.
func (v *Verifier) cache(blockNum uint64) []uint32 {
	epoch := blockNum / epochLength

	v.mu.Lock()
	c, ok := v.caches.Get(epoch)
	v.mu.Unlock()
	if ok {
		return c
	}

	built, _, _ := v.single.Do(fmt.Sprintf("epoch-%d", epoch), func() (interface{}, error) {
		v.logger.Info("Generating ethash verification cache", "epoch", epoch)
		seed := SeedHash(epoch*epochLength + 1)
		c := generateCache(epoch, seed)

		v.mu.Lock()
		evicted := v.caches.Add(epoch, c)
		v.mu.Unlock()
		if evicted {
			v.logger.Debug("Evicted old ethash cache", "kept", cachesInMem)
		}
		return c, nil
	})
	return built.([]uint32)
}

// PoWHash runs hashimoto-light for the given block epoch, header and nonce
// and returns (mix digest, result hash).
func (v *Verifier) PoWHash(blockNum uint64, header []byte, nonce uint64) ([]byte, []byte) {
	cache := v.cache(blockNum)
	size := calcDatasetSize(blockNum / epochLength)
	return hashimotoLight(size, cache, header, nonce)
}

// VerifyWork recomputes the Ethash output for a submitted solution and
// checks it against the claimed mix digest and the work boundary. On
// success it returns the result hash; otherwise nil.
func (v *Verifier) VerifyWork(blockNum uint64, header, mixDigest []byte, nonce uint64, boundary []byte) []byte {
	digest, result := v.PoWHash(blockNum, header, nonce)
	if !bytes.Equal(digest, mixDigest) {
		v.logger.Warn("Mix digest mismatch", "block", blockNum, "nonce", fmt.Sprintf("%#x", nonce))
		return nil
	}
	if !IsLessOrEqual(result, boundary) {
		v.logger.Warn("Result above boundary", "block", blockNum, "nonce", fmt.Sprintf("%#x", nonce))
		return nil
	}
	return result
}
