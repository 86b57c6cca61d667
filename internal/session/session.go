// Package session provides the request/response model for talking to an
// Integrity server and a Session implementation that drives the si/im CLI.
package session

import "context"

// Session executes remote commands against one server connection.
type Session interface {
	// Ping verifies that the server is reachable and the session is usable.
	Ping(ctx context.Context) error
	// Run executes cmd and returns the server response.
	Run(ctx context.Context, cmd *Command) (*Response, error)
}

// Factory opens a fresh session. Callers open one session per top-level
// operation.
type Factory func(ctx context.Context) (Session, error)
