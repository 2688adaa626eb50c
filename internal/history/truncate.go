// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

// TruncateHistory rewrites a session's transcript file so that the
// record identified by messageUUID and every record after it are
// dropped, keeping only what came strictly before (the `truncateHistory`
// RPC, spec §4.3/§4.4: "removes the line containing messageUuid and all
// subsequent lines"). It returns the remaining line count. The rewrite
// is atomic: a crash or concurrent read never observes a half-written
// file, using renameio in place of the teacher's hand-rolled
// temp-file-plus-rename.
func TruncateHistory(path, messageUUID string) (int, error) {
	records, err := ParseJSONLFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, gwerrors.New(gwerrors.KindHistoryFileNotFound, "history file not found: "+path)
		}
		return 0, gwerrors.Wrap(gwerrors.KindInternal, "read history file", err)
	}

	idx := -1
	for i, r := range records {
		if r.UUID == messageUUID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return 0, gwerrors.New(gwerrors.KindHistoryUUIDNotFound, "uuid not found in history: "+messageUUID)
	}

	kept := records[:idx]
	if err := rewriteJSONL(path, kept); err != nil {
		return 0, err
	}
	return len(kept), nil
}

func rewriteJSONL(path string, records []Record) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, "open temp history file", err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode history record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, "flush temp history file", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, "commit history rewrite", err)
	}
	return nil
}
