// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package history implements the History Resolver (spec §4.4): locating
// a project's session transcript files under ~/.claude/projects, parsing
// and linking them, paging over the merged record list, and detecting
// compaction.
package history

import (
	"os"
	"path/filepath"
	"strings"
)

// EncodeProjectPath reproduces the CLI's own lossy, idempotent encoding
// of an absolute project path into a directory name under
// ~/.claude/projects (spec §4.4/§9, canonical "second form"): a leading
// Windows drive colon is dropped, then '/', '\\', '.', and '_' are all
// replaced with '-', and a trailing '-' is trimmed.
//
// This is wider than the CLI's own narrower first-generation replacer
// (which only substitutes '/' and '.'); spec §9 resolves the ambiguity
// in favor of this canonical form.
func EncodeProjectPath(projectPath string) string {
	p := projectPath
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		p = p[:1] + p[2:]
	}

	replacer := strings.NewReplacer("/", "-", "\\", "-", ".", "-", "_", "-")
	encoded := replacer.Replace(p)
	encoded = strings.TrimSuffix(encoded, "-")
	return encoded
}

func isDriveLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// ProjectDir returns the absolute directory under ~/.claude/projects
// that holds the given project's session transcript files.
func ProjectDir(projectPath string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "projects", EncodeProjectPath(projectPath)), nil
}
