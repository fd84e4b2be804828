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

// Package storage implements the proxy's persistent document store on top
// of leveldb: typed collections with secondary indices and semantic
// accessors. Update failures surface as "no change" returns, never as
// errors to RPC callers.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/durianstall/go-zilpool/log"
)

// MemoryURI opens a transient in-memory store; tests and dry runs.
const MemoryURI = "memory:"

// DB is the proxy document store. A single mutex serializes every
// read-modify-write so counter updates (dispatch accounting, worker
// stats) behave as atomic compare-and-increments.
type DB struct {
	ldb    *leveldb.DB
	mu     sync.Mutex
	logger log.Logger
}

// Open opens the store at the given URI. "memory:" yields an in-memory
// store, anything else is a leveldb directory path.
func Open(uri string) (*DB, error) {
	var (
		ldb *leveldb.DB
		err error
	)
	if strings.HasPrefix(uri, MemoryURI) {
		ldb, err = leveldb.Open(ldbstorage.NewMemStorage(), nil)
	} else {
		ldb, err = leveldb.OpenFile(uri, nil)
	}
	if err != nil {
		return nil, err
	}
	return &DB{
		ldb:    ldb,
		logger: log.New("pkg", "storage"),
	}, nil
}

// Close flushes and closes the underlying store.
func (db *DB) Close() error {
	return db.ldb.Close()
}

// nextID assigns the next document id for a collection. Caller holds
// db.mu.
func (db *DB) nextID(collection []byte) uint64 {
	key := append(append([]byte{}, seqPrefix...), collection...)
	var id uint64
	if data, err := db.ldb.Get(key, nil); err == nil && len(data) == 8 {
		id = binary.BigEndian.Uint64(data)
	}
	id++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	if err := db.ldb.Put(key, buf[:], nil); err != nil {
		db.logger.Warn("Sequence update failed", "collection", string(collection), "err", err)
	}
	return id
}

// putJSON marshals and stores a document. Caller holds db.mu.
func (db *DB) putJSON(key []byte, doc any) bool {
	data, err := json.Marshal(doc)
	if err != nil {
		db.logger.Warn("Document encode failed", "err", err)
		return false
	}
	if err := db.ldb.Put(key, data, nil); err != nil {
		db.logger.Warn("Document store failed", "err", err)
		return false
	}
	return true
}

// getJSON loads and unmarshals a document.
func (db *DB) getJSON(key []byte, doc any) bool {
	data, err := db.ldb.Get(key, nil)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, doc); err != nil {
		db.logger.Warn("Document decode failed", "err", err)
		return false
	}
	return true
}

// putIndex writes an index entry pointing at a document id.
func (db *DB) putIndex(key []byte, id uint64) bool {
	if err := db.ldb.Put(key, encodeID(id), nil); err != nil {
		db.logger.Warn("Index store failed", "err", err)
		return false
	}
	return true
}

// lookupIndex resolves a unique index entry to a document id.
func (db *DB) lookupIndex(key []byte) (uint64, bool) {
	data, err := db.ldb.Get(key, nil)
	if err != nil || len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// scan iterates every document under a collection prefix in id order,
// stopping when fn returns false.
func scan[T any](db *DB, prefix []byte, fn func(*T) bool) {
	it := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		doc := new(T)
		if err := json.Unmarshal(it.Value(), doc); err != nil {
			db.logger.Warn("Document decode failed during scan", "err", err)
			continue
		}
		if !fn(doc) {
			return
		}
	}
}

// scanIndex iterates index entries under a prefix, resolving each to its
// document, stopping when fn returns false.
func scanIndex[T any](db *DB, indexPrefix, docPrefix []byte, fn func(*T) bool) {
	it := db.ldb.NewIterator(util.BytesPrefix(indexPrefix), nil)
	defer it.Release()
	for it.Next() {
		id := decodeID(it.Value())
		doc := new(T)
		if !db.getJSON(docKey(docPrefix, id), doc) {
			continue
		}
		if !fn(doc) {
			return
		}
	}
}

// paginate collects one page of a collection in id order.
func paginate[T any](db *DB, prefix []byte, page, perPage int) []*T {
	if perPage <= 0 {
		perPage = 50
	}
	skip := page * perPage
	var out []*T
	scan(db, prefix, func(doc *T) bool {
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, doc)
		return len(out) < perPage
	})
	return out
}

// WorksPage returns one page of work items in creation order.
func (db *DB) WorksPage(page, perPage int) []*WorkItem {
	return paginate[WorkItem](db, workPrefix, page, perPage)
}

// ResultsPage returns one page of results in creation order.
func (db *DB) ResultsPage(page, perPage int) []*Result {
	return paginate[Result](db, resultPrefix, page, perPage)
}

// MinersPage returns one page of miners in creation order.
func (db *DB) MinersPage(page, perPage int) []*Miner {
	return paginate[Miner](db, minerPrefix, page, perPage)
}

// DropAll wipes every key; test helper.
func (db *DB) DropAll() {
	db.mu.Lock()
	defer db.mu.Unlock()
	it := db.ldb.NewIterator(nil, nil)
	defer it.Release()
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte{}, it.Key()...))
	}
	if err := db.ldb.Write(batch, nil); err != nil {
		db.logger.Warn("Drop failed", "err", err)
	}
}
