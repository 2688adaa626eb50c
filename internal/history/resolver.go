// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

// Resolver is the gateway's History Resolver (spec §4.4): it locates a
// project's transcript files, links them across file boundaries via
// leafUuid, and serves paged/metadata/truncate operations over the
// merged record list.
type Resolver struct {
	cache *Cache
	log   zerolog.Logger
}

// NewResolver constructs a Resolver backed by cache.
func NewResolver(cache *Cache, log zerolog.Logger) *Resolver {
	return &Resolver{cache: cache, log: log.With().Str("component", "history").Logger()}
}

// Metadata summarizes a project's history without loading every record.
type Metadata struct {
	SessionCount int
	RecordCount  int
	LatestActivity time.Time
}

// SessionSummary is one entry of GetHistorySessions.
type SessionSummary struct {
	SessionID string
	ModTime   time.Time
	Size      int64
}

// GetHistorySessions lists every discovered session file for a project,
// most recently active first (spec §4.3 `getHistorySessions`).
func (r *Resolver) GetHistorySessions(projectPath string) ([]SessionSummary, error) {
	dir, err := ProjectDir(projectPath)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, "resolve project dir", err)
	}
	files, err := DiscoverSessions(dir)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, "discover sessions", err)
	}
	out := make([]SessionSummary, 0, len(files))
	for _, f := range files {
		out = append(out, SessionSummary{SessionID: f.SessionID, ModTime: f.ModTime, Size: f.Size})
	}
	return out, nil
}

// GetHistoryMetadata reports counts for a project's merged history
// without returning every record (spec §4.3 `getHistoryMetadata`).
func (r *Resolver) GetHistoryMetadata(projectPath string) (Metadata, error) {
	records, files, err := r.mergedRecords(projectPath)
	if err != nil {
		return Metadata{}, err
	}
	var latest time.Time
	for _, f := range files {
		if f.ModTime.After(latest) {
			latest = f.ModTime
		}
	}
	return Metadata{SessionCount: len(files), RecordCount: len(records), LatestActivity: latest}, nil
}

// LoadHistory returns the full, linked, emission-ordered record set for
// a project (spec §4.3 `loadHistory`).
func (r *Resolver) LoadHistory(projectPath string) ([]Record, error) {
	records, _, err := r.mergedRecords(projectPath)
	return records, err
}

// GetHistory pages over the merged record list: cursor is an opaque
// offset (0 for the first page), limit bounds the page size. total is
// the merged record count across every linked file, re-derived on each
// call so a compaction that shrinks the backing file is never served
// from stale cached data (spec §4.3 `loadHistory`, spec §8 boundary:
// `offset >= total` returns an empty page with total still reported).
func (r *Resolver) GetHistory(projectPath string, cursor, limit int) (page []Record, nextCursor int, hasMore bool, total int, err error) {
	records, _, err := r.mergedRecords(projectPath)
	if err != nil {
		return nil, 0, false, 0, err
	}
	total = len(records)
	if limit <= 0 {
		limit = 100
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= total {
		return nil, cursor, false, total, nil
	}
	end := cursor + limit
	if end >= total {
		end = total
		return records[cursor:end], end, false, total, nil
	}
	return records[cursor:end], end, true, total, nil
}

// TruncateHistory drops the record identified by messageUUID and every
// record after it in the session file identified by sessionID (spec
// §4.3/§4.4 `truncateHistory`), returning the file's remaining line
// count.
func (r *Resolver) TruncateHistory(projectPath, sessionID, messageUUID string) (int, error) {
	dir, err := ProjectDir(projectPath)
	if err != nil {
		return 0, gwerrors.Wrap(gwerrors.KindInternal, "resolve project dir", err)
	}
	path := dir + "/" + sessionID + ".jsonl"
	remaining, err := TruncateHistory(path, messageUUID)
	if err != nil {
		return 0, err
	}
	r.cache.Invalidate(dir)
	return remaining, nil
}

// mergedRecords loads every session file in a project's directory,
// links them across file boundaries via leafUuid, and returns the
// combined list in emission order along with the file listing used to
// build it (for metadata/latest-activity reporting).
func (r *Resolver) mergedRecords(projectPath string) ([]Record, []SessionFile, error) {
	dir, err := ProjectDir(projectPath)
	if err != nil {
		return nil, nil, gwerrors.Wrap(gwerrors.KindInternal, "resolve project dir", err)
	}

	files, err := DiscoverSessions(dir)
	if err != nil {
		return nil, nil, gwerrors.Wrap(gwerrors.KindInternal, "discover sessions", err)
	}
	if len(files) == 0 {
		return nil, nil, gwerrors.New(gwerrors.KindHistoryFileNotFound, "no session history for project: "+projectPath)
	}

	fingerprint := make(map[string]fileFingerprint, len(files))
	for _, f := range files {
		fingerprint[f.Path] = fileFingerprint{size: f.Size, modTime: f.ModTime}
	}

	if cached, ok := r.cache.Get(dir, fingerprint); ok {
		return cached, files, nil
	}

	byID := make(map[string][]Record, len(files))
	for _, f := range files {
		records, err := ParseJSONLFile(f.Path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, gwerrors.Wrap(gwerrors.KindInternal, "parse session file "+f.Path, err)
		}
		byID[f.SessionID] = records
	}

	merged := r.linkAcrossFiles(files, byID)

	r.cache.Put(dir, merged, fingerprint)
	return merged, files, nil
}

// linkAcrossFiles performs a recursive, depth-first walk over session
// files, following each file's leafUuid back-reference (see leafParent)
// to the file it continues from and emitting that file first, and
// concatenating the results in chronological emission order. A visited
// set keyed by session id prevents infinite loops should two files
// reference each other.
func (r *Resolver) linkAcrossFiles(files []SessionFile, byID map[string][]Record) []Record {
	order := make([]string, len(files))
	for i, f := range files {
		order[i] = f.SessionID
	}

	visited := make(map[string]bool, len(files))
	var merged []Record

	var visit func(sessionID string)
	visit = func(sessionID string) {
		if visited[sessionID] {
			return
		}
		visited[sessionID] = true

		records, ok := byID[sessionID]
		if !ok || len(records) == 0 {
			return
		}

		if parent := leafParent(records, byID); parent != "" && parent != sessionID {
			visit(parent)
		}

		merged = append(merged, records...)
	}

	// Walk oldest file first so a continuation's parent content lands
	// before it in the merged, emission-ordered list.
	for i := len(order) - 1; i >= 0; i-- {
		visit(order[i])
	}
	return merged
}

// leafParent returns the session id of the known file containing the
// uuid named by the first of records' leafUuids that any known file
// contains; leafUuids no known file contains are skipped.
func leafParent(records []Record, byID map[string][]Record) string {
	for _, rec := range records {
		if rec.LeafUUID == "" {
			continue
		}
		for sid, other := range byID {
			for _, r := range other {
				if r.UUID == rec.LeafUUID {
					return sid
				}
			}
		}
	}
	return ""
}
