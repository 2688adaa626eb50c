// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"

	"github.com/wingedpig/sessiongate/internal/gwerrors"
)

// errorParts reduces err to the stable wire code and message pair (spec
// §7): a *gwerrors.Error surfaces its own Kind and Message, anything
// else collapses to Internal rather than leaking an implementation
// detail onto the wire.
func errorParts(err error) (code, message string) {
	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		return gwErr.Code(), gwErr.Message
	}
	return string(gwerrors.KindInternal), "internal error"
}
