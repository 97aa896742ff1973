package ipc

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated means the calling window has no session bound. Raised
// by the session middleware before the handler runs.
var ErrUnauthenticated = errors.New("unauthenticated: no session bound to window")

// ErrUnknownChannel means a dispatch named a channel nothing registered.
var ErrUnknownChannel = errors.New("unknown channel")

// DuplicateRouteError is a registration-time channel collision. Channel
// names are unique by invariant; a collision aborts startup rather than
// silently overwriting the earlier handler.
type DuplicateRouteError struct {
	Channel string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("duplicate route registration for channel %q", e.Channel)
}
