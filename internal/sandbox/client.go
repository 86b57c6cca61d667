package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/schaermu/sandboxsync/internal/metrics"
	"github.com/schaermu/sandboxsync/internal/session"
	"github.com/schaermu/sandboxsync/internal/workspace"
)

// ExitNoResponse is the completion code reported when the server returned
// no response at all.
const ExitNoResponse = -1

// Client runs sandbox operations. Every public operation opens its own
// session and pings it before issuing commands.
type Client struct {
	open     session.Factory
	mode     MatchMode
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewClient creates a Client. recorder may be nil.
func NewClient(open session.Factory, mode MatchMode, recorder *metrics.Recorder, logger *slog.Logger) *Client {
	if mode == "" {
		mode = MatchIdentity
	}
	return &Client{
		open:     recorder.InstrumentFactory(open),
		mode:     mode,
		recorder: recorder,
		logger:   logger,
	}
}

// begin opens and pings a session for one operation and returns a logger
// tagged with a fresh operation id.
func (c *Client) begin(ctx context.Context, op string) (session.Session, *slog.Logger, error) {
	log := c.logger.With("op", op, "op_id", uuid.NewString())

	s, err := c.open(ctx)
	if err != nil {
		return nil, log, fmt.Errorf("failed to open session: %w", err)
	}
	if err := s.Ping(ctx); err != nil {
		return nil, log, err
	}
	return s, log, nil
}

// run executes cmd and logs the completion code. A nil response is returned
// as is.
func run(ctx context.Context, s session.Session, log *slog.Logger, cmd *session.Command) (*session.Response, error) {
	log.Info("executing remote command", "command", cmd.String())
	resp, err := s.Run(ctx, cmd)
	if err != nil {
		log.Error("remote command failed", "verb", cmd.Verb, "error", err)
		return nil, err
	}
	if resp == nil {
		log.Warn("remote command returned no response", "verb", cmd.Verb)
		return nil, nil
	}
	log.Info("remote command completed", "verb", cmd.Verb, "exit_code", resp.ExitCode)
	return resp, nil
}

func exitCode(resp *session.Response) int {
	if resp == nil {
		return ExitNoResponse
	}
	return resp.ExitCode
}

func desiredIdentity(project Project, ws string) Identity {
	return Identity{WorkspacePath: filepath.Clean(ws), Project: project}
}

func (c *Client) scan(ctx context.Context, s session.Session, log *slog.Logger, desired Identity) (Decision, error) {
	d, err := Scan(ctx, s, desired, c.mode, log)
	if err != nil {
		return Decision{}, err
	}
	c.recorder.ObserveDecision(d.Kind.String())
	return d, nil
}

// CreateSandbox makes sure ws holds a sandbox of project. An existing
// matching sandbox is reused; a conflicting one at the same path is dropped
// first. It reports whether the sandbox is ready to be resynced.
func (c *Client) CreateSandbox(ctx context.Context, project Project, ws, lineTerminator string) (bool, error) {
	if err := project.Validate(); err != nil {
		return false, err
	}
	s, log, err := c.begin(ctx, "create")
	if err != nil {
		return false, err
	}
	desired := desiredIdentity(project, ws)

	d, err := c.scan(ctx, s, log, desired)
	if err != nil {
		return false, err
	}

	switch d.Kind {
	case Reuse:
		return true, nil
	case DropThenCreate:
		code, err := dropSandbox(ctx, s, log, workspace.DropTarget(d.Conflict.SandboxName))
		if err != nil {
			return false, err
		}
		if code != 0 {
			log.Error("failed to drop conflicting sandbox", "sandbox", d.Conflict.SandboxName, "exit_code", code)
			return false, nil
		}
		log.Info("sandbox dropped", "sandbox", d.Conflict.SandboxName, "project", d.Conflict.ProjectName)
	}

	code, err := createSandbox(ctx, s, log, desired, lineTerminator)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// CreateCommand builds the createsandbox request for desired. Population is
// deferred to the first resync.
func CreateCommand(desired Identity, lineTerminator string) *session.Command {
	cmd := session.NewCommand(session.AppSI, "createsandbox").
		AddOption("project", desired.Name).
		AddOption("lineTerminator", lineTerminator).
		AddFlag("nopopulate")
	switch desired.Kind {
	case Variant:
		cmd.AddOption("devpath", desired.Variant)
	case Build:
		cmd.AddOption("projectRevision", desired.Revision)
	}
	return cmd.Select(workspace.Normalize(desired.WorkspacePath))
}

func createSandbox(ctx context.Context, s session.Session, log *slog.Logger, desired Identity, lineTerminator string) (int, error) {
	log.Info("creating sandbox", "workspace", desired.WorkspacePath, "project", desired.Name)
	resp, err := run(ctx, s, log, CreateCommand(desired, lineTerminator))
	if err != nil {
		return ExitNoResponse, err
	}
	return exitCode(resp), nil
}

// VerifySandbox reports whether ws already holds a sandbox of project, so
// that no reconciliation is needed. It does not change server state.
func (c *Client) VerifySandbox(ctx context.Context, project Project, ws string) (bool, error) {
	if err := project.Validate(); err != nil {
		return false, err
	}
	s, log, err := c.begin(ctx, "verify")
	if err != nil {
		return false, err
	}
	d, err := c.scan(ctx, s, log, desiredIdentity(project, ws))
	if err != nil {
		return false, err
	}
	return d.Kind == Reuse, nil
}

// DropCommand builds the dropsandbox request for the sandbox project file
// target. All sandbox content is deleted without confirmation.
func DropCommand(target string) *session.Command {
	return session.NewCommand(session.AppSI, "dropsandbox").
		AddOption("delete", "all").
		AddOption("forceConfirm", "yes").
		Select(target)
}

func dropSandbox(ctx context.Context, s session.Session, log *slog.Logger, target string) (int, error) {
	log.Info("dropping sandbox", "sandbox", target)
	resp, err := run(ctx, s, log, DropCommand(target))
	if err != nil {
		return ExitNoResponse, err
	}
	return exitCode(resp), nil
}

// DropSandbox drops the sandbox rooted at ws and returns the completion
// code, or ExitNoResponse.
func (c *Client) DropSandbox(ctx context.Context, ws string, project Project) (int, error) {
	s, log, err := c.begin(ctx, "drop")
	if err != nil {
		return ExitNoResponse, err
	}
	code, err := dropSandbox(ctx, s, log, workspace.DropTarget(filepath.Clean(ws)))
	if err != nil {
		return ExitNoResponse, err
	}
	if code == 0 {
		log.Info("sandbox dropped", "workspace", ws, "project", project.Name)
	}
	return code, nil
}
