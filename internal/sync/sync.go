package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schaermu/sandboxsync/internal/changelog"
	"github.com/schaermu/sandboxsync/internal/config"
	"github.com/schaermu/sandboxsync/internal/faults"
	"github.com/schaermu/sandboxsync/internal/metrics"
	"github.com/schaermu/sandboxsync/internal/sandbox"
)

// Sandboxes is the subset of sandbox.Client the engine drives
type Sandboxes interface {
	CreateSandbox(ctx context.Context, project sandbox.Project, ws, lineTerminator string) (bool, error)
	VerifySandbox(ctx context.Context, project sandbox.Project, ws string) (bool, error)
	ResyncSandbox(ctx context.Context, ws string, policy sandbox.ResyncPolicy, changeLogPath, includeList, excludeList string) (bool, error)
	HasSandboxChanges(ctx context.Context, ws string) (bool, error)
}

// Engine orchestrates the checkout process
type Engine struct {
	cfg       *config.Config
	sandboxes Sandboxes
	recorder  *metrics.Recorder
	logger    *slog.Logger
	dryRun    bool
}

// NewEngine creates a new checkout engine. recorder may be nil.
func NewEngine(cfg *config.Config, sandboxes Sandboxes, recorder *metrics.Recorder, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		cfg:       cfg,
		sandboxes: sandboxes,
		recorder:  recorder,
		logger:    logger,
		dryRun:    dryRun,
	}
}

// Run reconciles the sandbox and resyncs its content
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	res, err := e.run(ctx)
	switch {
	case err != nil:
		e.recorder.ObserveSync(ResultFailed)
	case e.dryRun:
		e.recorder.ObserveSync(ResultDryRun)
	default:
		e.recorder.ObserveSync(ResultSuccess)
	}
	return res, err
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	project := e.cfg.Project()
	dir, err := e.cfg.CheckoutDir()
	if err != nil {
		return nil, faults.Wrap(faults.Config, err, "failed to resolve checkout directory")
	}

	e.logger.Info("starting checkout",
		"server", e.cfg.Server.Hostname,
		"project", project.Name,
		"kind", project.Kind,
		"dir", dir,
		"dry_run", e.dryRun)

	if e.dryRun {
		return e.plan(ctx, project, dir)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, faults.Wrap(faults.IO, err, "failed to create checkout directory")
	}
	if err := os.MkdirAll(filepath.Dir(e.cfg.Resync.ChangeLog), 0755); err != nil {
		return nil, faults.Wrap(faults.IO, err, "failed to create change log directory")
	}

	ready, err := e.sandboxes.CreateSandbox(ctx, project, dir, e.cfg.Sandbox.LineTerminator)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile sandbox: %w", err)
	}
	if !ready {
		return nil, faults.New(faults.Remote, "sandbox %s could not be reconciled", dir)
	}

	ok, err := e.sandboxes.ResyncSandbox(ctx, dir, e.cfg.ResyncPolicy(),
		e.cfg.Resync.ChangeLog, e.cfg.Resync.Include, e.cfg.Resync.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to resync sandbox: %w", err)
	}
	if !ok {
		return nil, faults.New(faults.Remote, "resync of sandbox %s failed", dir)
	}

	changes, err := changelog.Read(e.cfg.Resync.ChangeLog)
	if err != nil {
		return nil, faults.Wrap(faults.IO, err, "failed to read change log")
	}

	e.logger.Info("checkout completed successfully", "dir", dir, "changes", len(changes))
	return &Result{Dir: dir, Changes: changes}, nil
}

// plan reports what a checkout would do without changing anything
func (e *Engine) plan(ctx context.Context, project sandbox.Project, dir string) (*Result, error) {
	reuse, err := e.sandboxes.VerifySandbox(ctx, project, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to verify sandbox: %w", err)
	}
	res := &Result{Dir: dir, DryRun: true, Reused: reuse}

	if !reuse {
		e.logger.Info("dry-run plan", "action", "reconcile", "then", "resync")
		e.logger.Info("dry-run complete, no changes applied")
		return res, nil
	}

	pending, err := e.sandboxes.HasSandboxChanges(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to probe sandbox: %w", err)
	}
	res.Pending = pending
	e.logger.Info("dry-run plan", "action", "reuse", "pending_changes", pending)
	e.logger.Info("dry-run complete, no changes applied")
	return res, nil
}

// HasChanges reports whether the configured sandbox has changed members on
// the server
func (e *Engine) HasChanges(ctx context.Context) (bool, error) {
	dir, err := e.cfg.CheckoutDir()
	if err != nil {
		return false, faults.Wrap(faults.Config, err, "failed to resolve checkout directory")
	}
	return e.sandboxes.HasSandboxChanges(ctx, dir)
}
