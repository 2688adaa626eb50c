// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(time.Hour, false, zerolog.Nop())
	fp := map[string]fileFingerprint{"a.jsonl": {size: 10}}
	c.Put("/proj", []Record{{UUID: "a"}}, fp)

	records, ok := c.Get("/proj", fp)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].UUID)
}

func TestCacheMissForUnknownDir(t *testing.T) {
	c := NewCache(time.Hour, false, zerolog.Nop())
	_, ok := c.Get("/never-put", nil)
	assert.False(t, ok)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := NewCache(time.Millisecond, false, zerolog.Nop())
	fp := map[string]fileFingerprint{"a.jsonl": {size: 10}}
	c.Put("/proj", []Record{{UUID: "a"}}, fp)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("/proj", fp)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCacheZeroTTLNeverExpiresOnTimeAlone(t *testing.T) {
	c := NewCache(0, false, zerolog.Nop())
	fp := map[string]fileFingerprint{"a.jsonl": {size: 10}}
	c.Put("/proj", []Record{{UUID: "a"}}, fp)

	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("/proj", fp)
	assert.True(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Hour, false, zerolog.Nop())
	fp := map[string]fileFingerprint{"a.jsonl": {size: 10}}
	c.Put("/proj", []Record{{UUID: "a"}}, fp)

	c.Invalidate("/proj")

	_, ok := c.Get("/proj", fp)
	assert.False(t, ok)
}

func TestCompactionDetectedOnSizeDecrease(t *testing.T) {
	before := map[string]fileFingerprint{"a.jsonl": {size: 100, modTime: time.Now()}}
	after := map[string]fileFingerprint{"a.jsonl": {size: 40, modTime: time.Now()}}
	assert.True(t, compactionDetected(before, after))
}

func TestCompactionNotDetectedOnGrowthOrNewFile(t *testing.T) {
	before := map[string]fileFingerprint{"a.jsonl": {size: 100}}
	grown := map[string]fileFingerprint{"a.jsonl": {size: 200}}
	assert.False(t, compactionDetected(before, grown))

	withNewFile := map[string]fileFingerprint{"a.jsonl": {size: 100}, "b.jsonl": {size: 5}}
	assert.False(t, compactionDetected(before, withNewFile))
}

func TestParentDir(t *testing.T) {
	assert.Equal(t, "/a/b", parentDir("/a/b/c.jsonl"))
	assert.Equal(t, "/c.jsonl", parentDir("/c.jsonl"))
}

func TestCacheWatchInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	c := NewCache(time.Hour, true, zerolog.Nop())
	defer c.Close()

	fp := map[string]fileFingerprint{path: {size: 2}}
	c.Put(dir, []Record{{UUID: "a"}}, fp)

	require.NoError(t, os.WriteFile(path, []byte("{}{}{}{}{}"), 0644))

	assert.Eventually(t, func() bool {
		_, ok := c.Get(dir, fp)
		return !ok
	}, time.Second, 10*time.Millisecond)
}
