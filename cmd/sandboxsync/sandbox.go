package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/schaermu/sandboxsync/internal/changelog"
	"github.com/schaermu/sandboxsync/internal/config"
	"github.com/schaermu/sandboxsync/internal/faults"
	"github.com/schaermu/sandboxsync/internal/sandbox"
)

// sandboxOp runs one sandbox operation against the configured checkout
// directory and writes its result to out
type sandboxOp func(ctx context.Context, cfg *config.Config, client *sandbox.Client, dir string, out io.Writer) error

func runSandboxOp(op sandboxOp) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		logger := setupLogger()

		cfg, err := loadConfig(logger)
		if err != nil {
			return err
		}
		dir, err := cfg.CheckoutDir()
		if err != nil {
			return faults.Wrap(faults.Config, err, "failed to resolve checkout directory")
		}
		client, err := newSandboxClient(cfg, nil, logger)
		if err != nil {
			return err
		}

		if err := op(ctx, cfg, client, dir, cmd.OutOrStdout()); err != nil {
			logger.Error(cmd.Name()+" failed", "error", err)
			return err
		}
		return nil
	}
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Create the sandbox, reusing or replacing an existing one",
	RunE: runSandboxOp(func(ctx context.Context, cfg *config.Config, client *sandbox.Client, dir string, out io.Writer) error {
		ready, err := client.CreateSandbox(ctx, cfg.Project(), dir, cfg.Sandbox.LineTerminator)
		if err != nil {
			return err
		}
		if !ready {
			return fmt.Errorf("sandbox %s is not ready", dir)
		}
		_, _ = fmt.Fprintf(out, "ready %s\n", dir)
		return nil
	}),
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check whether the existing sandbox can be reused",
	RunE: runSandboxOp(func(ctx context.Context, cfg *config.Config, client *sandbox.Client, dir string, out io.Writer) error {
		reuse, err := client.VerifySandbox(ctx, cfg.Project(), dir)
		if err != nil {
			return err
		}
		if reuse {
			_, _ = fmt.Fprintln(out, "reuse")
		} else {
			_, _ = fmt.Fprintln(out, "reconcile-needed")
		}
		return nil
	}),
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Resync the sandbox and write the change log",
	RunE: runSandboxOp(func(ctx context.Context, cfg *config.Config, client *sandbox.Client, dir string, out io.Writer) error {
		ok, err := client.ResyncSandbox(ctx, dir, cfg.ResyncPolicy(), cfg.Resync.ChangeLog, cfg.Resync.Include, cfg.Resync.Exclude)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("resync of sandbox %s failed", dir)
		}
		_, _ = fmt.Fprintf(out, "resynced %s\n", dir)
		return nil
	}),
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Report whether sandbox members changed on the server",
	RunE: runSandboxOp(func(ctx context.Context, _ *config.Config, client *sandbox.Client, dir string, out io.Writer) error {
		changed, err := client.HasSandboxChanges(ctx, dir)
		if err != nil {
			return err
		}
		if changed {
			_, _ = fmt.Fprintln(out, "changed")
		} else {
			_, _ = fmt.Fprintln(out, "unchanged")
		}
		return nil
	}),
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the sandbox and delete its content",
	RunE: runSandboxOp(func(ctx context.Context, cfg *config.Config, client *sandbox.Client, dir string, out io.Writer) error {
		code, err := client.DropSandbox(ctx, dir, cfg.Project())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "%d\n", code)
		if code != 0 {
			return fmt.Errorf("dropsandbox exited with %d", code)
		}
		return nil
	}),
}

var terminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "Shut down the local Integrity client",
	RunE: runSandboxOp(func(ctx context.Context, _ *config.Config, client *sandbox.Client, _ string, out io.Writer) error {
		_, _ = fmt.Fprintf(out, "%d\n", client.Terminate(ctx))
		return nil
	}),
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Print the change log of the last resync",
	RunE:  runChanges,
}

func runChanges(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	records, err := changelog.Read(cfg.Resync.ChangeLog)
	if err != nil {
		return faults.Wrap(faults.IO, err, "failed to read change log")
	}
	return printChanges(cmd.OutOrStdout(), records, jsonOut)
}

func printChanges(out io.Writer, records []changelog.Record, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []changelog.Record{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", r.FileID, r.Context, r.Message); err != nil {
			return err
		}
	}
	return nil
}
