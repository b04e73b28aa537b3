// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabled(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			c, err := New[string](capacity)
			require.NoError(t, err)
			assert.False(t, c.Enabled())

			v, ok := c.Insert("abc", "url")
			assert.False(t, ok)
			assert.Empty(t, v)

			v, ok = c.Get("abc")
			assert.False(t, ok)
			assert.Empty(t, v)
			assert.Zero(t, c.Len())
		})
	}
}

func TestGetOnEmpty(t *testing.T) {
	c, err := New[string](4)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestInsertGet(t *testing.T) {
	c, err := New[string](2)
	require.NoError(t, err)

	v, ok := c.Insert("a", "1")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestExistingKeyKeepsValue(t *testing.T) {
	c, err := New[string](2)
	require.NoError(t, err)

	c.Insert("a", "1")
	c.Insert("b", "2")

	v, ok := c.Insert("a", "other")
	assert.True(t, ok)
	assert.Equal(t, "other", v)

	stored, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", stored)
	assert.Equal(t, 2, c.Len())

	// Re-inserting must not have evicted anything.
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestEvictsInInsertionOrder(t *testing.T) {
	c, err := New[int](3)
	require.NoError(t, err)

	for i := range 3 {
		c.Insert(fmt.Sprintf("k%d", i), i)
	}

	// Reads must not refresh entries.
	_, ok := c.Get("k0")
	require.True(t, ok)

	c.Insert("k3", 3)
	_, ok = c.Get("k0")
	assert.False(t, ok, "oldest entry should have been evicted")
	for _, key := range []string{"k1", "k2", "k3"} {
		_, ok = c.Get(key)
		assert.True(t, ok, key)
	}

	c.Insert("k4", 4)
	_, ok = c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 7, 16} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			c, err := New[int](capacity)
			require.NoError(t, err)

			for i := range 100 {
				c.Insert(fmt.Sprintf("key-%d", i), i)
				assert.LessOrEqual(t, c.Len(), capacity)
			}

			// Only the last `capacity` keys survive.
			for i := range 100 {
				_, ok := c.Get(fmt.Sprintf("key-%d", i))
				assert.Equal(t, i >= 100-capacity, ok, "key-%d", i)
			}
		})
	}
}

func TestStatistics(t *testing.T) {
	c, err := New[string](1)
	require.NoError(t, err)

	c.Insert("a", "1")
	c.Insert("b", "2")
	c.Get("b")
	c.Get("a")

	stats := c.GetAndResetStatistics()
	assert.Equal(t, Statistics{Hit: 1, Miss: 1, Added: 2, Evicted: 1}, stats)
	assert.Equal(t, Statistics{}, c.GetAndResetStatistics())
}
