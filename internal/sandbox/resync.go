package sandbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/schaermu/sandboxsync/internal/changelog"
	"github.com/schaermu/sandboxsync/internal/faults"
	"github.com/schaermu/sandboxsync/internal/session"
	"github.com/schaermu/sandboxsync/internal/workspace"
)

// ResyncPolicy controls how local content is brought in line with the
// sandbox.
type ResyncPolicy struct {
	// CleanCopy rewrites every member, changed or not.
	CleanCopy bool
	// DeleteNonMembers removes local files that are no longer members.
	DeleteNonMembers bool
	// RestoreTimestamp keeps the member timestamps from the server.
	RestoreTimestamp bool
}

// ResyncCommand builds a recursive, forced resync of the sandbox rooted at
// ws.
func ResyncCommand(ws string, policy ResyncPolicy, includeList, excludeList string) *session.Command {
	cmd := session.NewCommand(session.AppSI, "resync").
		AddFlag("recurse").
		AddFlag("f")
	cmd.Options = append(cmd.Options, BuildFilter(includeList, excludeList)...)

	if policy.CleanCopy {
		cmd.AddFlag("overwriteUnchanged")
	} else {
		cmd.AddOption(optFilter, "changed:all")
	}
	if policy.DeleteNonMembers {
		cmd.AddFlag("removeOutOfScope")
	}
	if policy.RestoreTimestamp {
		cmd.AddFlag("restoreTimestamp")
	}
	return cmd.AddOption("sandbox", workspace.SandboxFile(ws))
}

// ChangeRecords maps resync work items to change log records in the order
// the server returned them.
func ChangeRecords(resp *session.Response) []changelog.Record {
	records := make([]changelog.Record, 0, len(resp.WorkItems))
	for _, wi := range resp.WorkItems {
		records = append(records, changelog.Record{
			Message: strings.TrimSpace(wi.Message()),
			FileID:  wi.ID,
			Context: wi.Context,
		})
	}
	return records
}

// ResyncSandbox resyncs the sandbox rooted at ws and writes the reported
// changes to changeLogPath. A failed resync writes no change log and
// reports false. A change log that cannot be written fails the call even
// though the server side resync succeeded.
func (c *Client) ResyncSandbox(ctx context.Context, ws string, policy ResyncPolicy, changeLogPath, includeList, excludeList string) (bool, error) {
	s, log, err := c.begin(ctx, "resync")
	if err != nil {
		return false, err
	}
	code, err := resyncSandbox(ctx, s, log, filepath.Clean(ws), policy, changeLogPath, includeList, excludeList)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

func resyncSandbox(ctx context.Context, s session.Session, log *slog.Logger, ws string, policy ResyncPolicy,
	changeLogPath, includeList, excludeList string) (int, error) {
	log.Info("resyncing sandbox",
		"workspace", ws,
		"clean_copy", policy.CleanCopy,
		"delete_non_members", policy.DeleteNonMembers,
		"restore_timestamp", policy.RestoreTimestamp)

	resp, err := run(ctx, s, log, ResyncCommand(ws, policy, includeList, excludeList))
	if err != nil {
		return ExitNoResponse, err
	}
	if resp == nil {
		return ExitNoResponse, nil
	}
	if resp.ExitCode != 0 {
		log.Error("resync failed, no change log written", "exit_code", resp.ExitCode, "exception", resp.Exception)
		return resp.ExitCode, nil
	}

	records := ChangeRecords(resp)
	if err := changelog.Write(changeLogPath, records); err != nil {
		return resp.ExitCode, faults.Wrap(faults.IO, err, "resync succeeded but the change log could not be written")
	}
	log.Info("change log generated", "path", changeLogPath, "changes", len(records))
	return resp.ExitCode, nil
}
