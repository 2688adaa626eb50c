// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeProjectPathBasic(t *testing.T) {
	assert.Equal(t, "-Users-alice-src-myapp", EncodeProjectPath("/Users/alice/src/myapp"))
}

func TestEncodeProjectPathReplacesDotsAndUnderscores(t *testing.T) {
	assert.Equal(t, "-Users-alice-src-groups-io", EncodeProjectPath("/Users/alice/src/groups.io"))
	assert.Equal(t, "-Users-alice-my-repo", EncodeProjectPath("/Users/alice/my_repo"))
}

func TestEncodeProjectPathWindowsDrive(t *testing.T) {
	assert.Equal(t, "C-Users-alice-src-app", EncodeProjectPath(`C:\Users\alice\src\app`))
}

func TestEncodeProjectPathTrimsTrailingDash(t *testing.T) {
	assert.Equal(t, "-Users-alice-app", EncodeProjectPath("/Users/alice/app/"))
}

func TestEncodeProjectPathIdempotent(t *testing.T) {
	once := EncodeProjectPath("/Users/alice/src/my_app.io")
	twice := EncodeProjectPath(once)
	assert.Equal(t, once, twice)
}
