// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// cacheEntry holds one project directory's merged, linked record list
// plus the file-stat fingerprint it was built from.
type cacheEntry struct {
	records  []Record
	fileInfo map[string]fileFingerprint
	loadedAt time.Time
}

type fileFingerprint struct {
	size    int64
	modTime time.Time
}

// Cache memoizes the Resolver's merged record list per project directory, invalidated
// either by a TTL or proactively by an fsnotify watch on the directory
// (spec §4.4 caching guidance; watch adapted from the teacher's
// debounced BinaryWatcher, generalized from binary-rebuild watching to
// session-transcript-change watching).
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry

	watchEnabled bool
	watcher      *fsnotify.Watcher
	watchedDirs  map[string]struct{}
	log          zerolog.Logger

	closeCh chan struct{}
	closeOnce sync.Once
}

// NewCache constructs a Cache with the given TTL. If watch is true, an
// fsnotify watcher proactively drops cache entries for directories that
// receive a write or create event, independent of the TTL.
func NewCache(ttl time.Duration, watch bool, log zerolog.Logger) *Cache {
	c := &Cache{
		ttl:         ttl,
		entries:     make(map[string]*cacheEntry),
		watchedDirs: make(map[string]struct{}),
		log:         log.With().Str("component", "history").Logger(),
		closeCh:     make(chan struct{}),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			c.log.Warn().Err(err).Msg("history cache watch disabled: fsnotify unavailable")
		} else {
			c.watcher = w
			c.watchEnabled = true
			go c.processEvents()
		}
	}
	return c
}

// Close releases the fsnotify watcher, if any.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if c.watcher != nil {
			c.watcher.Close()
		}
	})
}

// Get returns the cached, merged record list for dir if it is still
// fresh: not past its TTL and not invalidated by a detected compaction
// (a tracked file shrinking in size).
func (c *Cache) Get(dir string, current map[string]fileFingerprint) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[dir]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.loadedAt) > c.ttl {
		delete(c.entries, dir)
		return nil, false
	}
	if compactionDetected(entry.fileInfo, current) {
		delete(c.entries, dir)
		return nil, false
	}
	return entry.records, true
}

// Put stores a freshly computed merged record list for dir.
func (c *Cache) Put(dir string, records []Record, info map[string]fileFingerprint) {
	c.mu.Lock()
	c.entries[dir] = &cacheEntry{records: records, fileInfo: info, loadedAt: time.Now()}
	c.mu.Unlock()

	if c.watchEnabled {
		c.ensureWatch(dir)
	}
}

// Invalidate drops any cached entry for dir.
func (c *Cache) Invalidate(dir string) {
	c.mu.Lock()
	delete(c.entries, dir)
	c.mu.Unlock()
}

func (c *Cache) ensureWatch(dir string) {
	c.mu.Lock()
	_, already := c.watchedDirs[dir]
	if !already {
		c.watchedDirs[dir] = struct{}{}
	}
	c.mu.Unlock()

	if already {
		return
	}
	if err := c.watcher.Add(dir); err != nil {
		c.log.Warn().Err(err).Str("dir", dir).Msg("failed to watch history directory")
	}
}

func (c *Cache) processEvents() {
	for {
		select {
		case <-c.closeCh:
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				c.Invalidate(parentDir(ev.Name))
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn().Err(err).Msg("history watch error")
		}
	}
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return path
	}
	return path[:i]
}

// compactionDetected reports whether any previously tracked file shrank
// — a transcript's size decreasing, whether or not mtime moved forward,
// signals the CLI compacted/rewrote it out from under the cache (spec
// §4.4).
func compactionDetected(prev, current map[string]fileFingerprint) bool {
	for path, before := range prev {
		after, ok := current[path]
		if !ok {
			continue
		}
		if after.size < before.size {
			return true
		}
	}
	return false
}
