// Package reasoner wraps the external reasoning service used for narrative
// synthesis. Callers must hold a governor permit before invoking Complete.
package reasoner

import (
	"context"
	"errors"
)

// ErrService signals a reasoning service failure (transport, quota, or an
// empty response). The core never retries these; retry policy belongs to the
// caller.
var ErrService = errors.New("reasoning service error")

// Client is the minimal completion surface the investigation graph needs.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Func adapts a function to the Client interface, used by tests and the
// localdev stub wiring.
type Func func(ctx context.Context, system, user string) (string, error)

// Complete implements Client.
func (f Func) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}
