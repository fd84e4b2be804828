// Copyright 2022 The go-zilpool Authors
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

package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheBasics(t *testing.T) {
	c := NewCache[int, string](3)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Add(1, "one")
	c.Add(2, "two")
	c.Add(3, "three")
	assert.Equal(t, 3, c.Len())

	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)
}

func TestCacheEviction(t *testing.T) {
	c := NewCache[int, int](10)
	for i := 0; i < 10; i++ {
		assert.False(t, c.Add(i, i))
	}
	// touch 0 so it is most recently used
	_, ok := c.Get(0)
	assert.True(t, ok)

	// adding one more evicts the oldest untouched entry
	assert.True(t, c.Add(10, 10))
	assert.Equal(t, 10, c.Len())
	assert.True(t, c.Contains(0))
	assert.False(t, c.Contains(1))
}

func TestCacheUpdateExisting(t *testing.T) {
	c := NewCache[string, int](2)
	c.Add("a", 1)
	c.Add("a", 2)
	assert.Equal(t, 1, c.Len())
	v, _ := c.Get("a")
	assert.Equal(t, 2, v)
}
