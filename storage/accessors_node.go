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

package storage

// GetNodeByPubKey looks a node up by its public key. authorizedOnly
// restricts the match to authorized nodes.
func (db *DB) GetNodeByPubKey(pubKey string, authorizedOnly bool) (*Node, bool) {
	id, ok := db.lookupIndex(uniqueKey(nodePubKeyIndex, pubKey))
	if !ok {
		return nil, false
	}
	n := new(Node)
	if !db.getJSON(docKey(nodePrefix, id), n) {
		return nil, false
	}
	if authorizedOnly && !n.Authorized {
		return nil, false
	}
	return n, true
}

// CreateNode registers a node; the pub key must be unused.
func (db *DB) CreateNode(n *Node) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.lookupIndex(uniqueKey(nodePubKeyIndex, n.PubKey)); exists {
		db.logger.Warn("Node already registered", "pubkey", n.PubKey)
		return false
	}
	n.ID = db.nextID(nodePrefix)
	if !db.putJSON(docKey(nodePrefix, n.ID), n) {
		return false
	}
	return db.putIndex(uniqueKey(nodePubKeyIndex, n.PubKey), n.ID)
}

// UpdateNode applies mutate to a node document under the store lock.
func (db *DB) UpdateNode(id uint64, mutate func(*Node) bool) (*Node, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := new(Node)
	if !db.getJSON(docKey(nodePrefix, id), n) {
		return nil, false
	}
	if !mutate(n) {
		return nil, false
	}
	if !db.putJSON(docKey(nodePrefix, id), n) {
		return nil, false
	}
	return n, true
}

// Nodes lists every registered node.
func (db *DB) Nodes() []*Node {
	var out []*Node
	scan(db, nodePrefix, func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}
