// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

func TestTruncateHistoryDropsMatchedRecordAndEverythingAfter(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s1.jsonl",
		`{"type":"user","sessionId":"s1","uuid":"a","timestamp":"2026-01-01T00:00:00Z"}`+"\n"+
			`{"type":"assistant","sessionId":"s1","uuid":"b","timestamp":"2026-01-01T00:00:01Z"}`+"\n"+
			`{"type":"user","sessionId":"s1","uuid":"c","timestamp":"2026-01-01T00:00:02Z"}`+"\n")

	remaining, err := TruncateHistory(path, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	records, err := ParseJSONLFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].UUID)
}

func TestTruncateHistoryUnknownUUID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s1.jsonl",
		`{"type":"user","sessionId":"s1","uuid":"a","timestamp":"2026-01-01T00:00:00Z"}`+"\n")

	_, err := TruncateHistory(path, "does-not-exist")
	assert.True(t, gwerrors.Is(err, gwerrors.KindHistoryUUIDNotFound))
}

func TestTruncateHistoryMissingFile(t *testing.T) {
	_, err := TruncateHistory(filepath.Join(t.TempDir(), "missing.jsonl"), "a")
	assert.True(t, gwerrors.Is(err, gwerrors.KindHistoryFileNotFound))
}
