// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Record is one line of a session's JSONL transcript file.
type Record struct {
	Type           string          `json:"type"`
	SessionID      string          `json:"sessionId"`
	UUID           string          `json:"uuid"`
	ParentUUID     string          `json:"parentUuid,omitempty"`
	// LeafUUID, when present, names the uuid of the message in another
	// session file that this file's conversation continues from —
	// the cross-file link the BFS walk in resolver.go follows.
	LeafUUID       string          `json:"leafUuid,omitempty"`
	Message        json.RawMessage `json:"message"`
	CWD            string          `json:"cwd,omitempty"`
	GitBranch      string          `json:"gitBranch,omitempty"`
	Version        string          `json:"version,omitempty"`
	Timestamp      string          `json:"timestamp"`
	IsSidechain    bool            `json:"isSidechain,omitempty"`
	UserType       string          `json:"userType,omitempty"`
	PermissionMode string          `json:"permissionMode,omitempty"`

	// sourceFile is not part of the wire format; it tracks which file a
	// record was read from so callers can resolve cross-file links.
	sourceFile string
}

// SourceFile returns the session id of the JSONL file a record came
// from (the file's base name minus extension).
func (r Record) SourceFile() string { return r.sourceFile }

// ParsedTime parses Timestamp, returning the zero time on failure.
func (r Record) ParsedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

const maxJSONLLineSize = 16 * 1024 * 1024

// ParseJSONLFile reads every record from a session transcript file. A
// truncated/partial trailing line (e.g. from a crash mid-write) is
// tolerated and simply dropped rather than failing the whole read.
func ParseJSONLFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sessionID := sessionIDFromPath(path)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLineSize)

	var records []Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Tolerate a partial last line written mid-crash.
			break
		}
		rec.sourceFile = sessionID
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return records, nil
}

func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// SessionFile describes one discovered transcript file.
type SessionFile struct {
	SessionID string
	Path      string
	Size      int64
	ModTime   time.Time
}

// DiscoverSessions lists every *.jsonl transcript file in dir, sorted by
// modification time descending (most recently active session first).
func DiscoverSessions(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []SessionFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, SessionFile{
			SessionID: sessionIDFromPath(e.Name()),
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}
