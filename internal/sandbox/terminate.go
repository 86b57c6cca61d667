package sandbox

import (
	"context"
	"errors"

	"github.com/schaermu/sandboxsync/internal/session"
)

// terminationResult distinguishes a clean shutdown from a swallowed failure.
type terminationResult struct {
	code int
	err  error
}

func (r terminationResult) terminated() bool {
	return r.err == nil
}

// TerminateCommand asks the client to exit once running commands finish.
func TerminateCommand() *session.Command {
	return session.NewCommand(session.AppIM, "exit").AddFlag("noabort")
}

func (c *Client) terminate(ctx context.Context) terminationResult {
	s, log, err := c.begin(ctx, "terminate")
	if err != nil {
		return terminationResult{err: err}
	}
	log.Info("terminating client instances")
	resp, err := run(ctx, s, log, TerminateCommand())
	if err != nil {
		return terminationResult{err: err}
	}
	if resp == nil {
		return terminationResult{err: errors.New("im exit returned no response")}
	}
	return terminationResult{code: resp.ExitCode}
}

// Terminate shuts down the client on a best effort basis. Failures are
// logged and reported as 0.
func (c *Client) Terminate(ctx context.Context) int {
	r := c.terminate(ctx)
	if !r.terminated() {
		c.logger.Warn("failed to terminate client", "error", r.err)
		return 0
	}
	return r.code
}
