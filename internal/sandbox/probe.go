package sandbox

import (
	"context"
	"path/filepath"

	"github.com/schaermu/sandboxsync/internal/faults"
	"github.com/schaermu/sandboxsync/internal/session"
	"github.com/schaermu/sandboxsync/internal/workspace"
)

const fieldType = "type"

// subsandboxTypes are viewsandbox entry types that denote nested sandboxes
// rather than members.
var subsandboxTypes = map[string]bool{
	"subsandbox":                true,
	"variant-subsandbox":        true,
	"build-subsandbox":          true,
	"shared-subsandbox":         true,
	"shared-variant-subsandbox": true,
	"shared-build-subsandbox":   true,
}

// IsSubsandbox reports whether a viewsandbox entry type denotes a nested
// sandbox.
func IsSubsandbox(entryType string) bool {
	return subsandboxTypes[entryType]
}

// ViewCommand builds a recursive view of changed entries in the sandbox
// rooted at ws. The server ignores --filterSubs through the API, so
// sub-sandboxes must still be filtered by the caller.
func ViewCommand(ws string) *session.Command {
	return session.NewCommand(session.AppSI, "viewsandbox").
		AddFlag("recurse").
		AddFlag("filterSubs").
		AddOption(optFilter, "changed:all").
		AddOption("sandbox", workspace.SandboxFile(ws))
}

// HasMemberChanges reports whether any work item is a changed member. It
// stops at the first member found.
func HasMemberChanges(items []session.WorkItem) (bool, error) {
	for _, wi := range items {
		entryType, ok := wi.StringField(fieldType)
		if !ok {
			return false, faults.New(faults.Malformed, "viewsandbox entry %q has no %s", wi.ID, fieldType)
		}
		if !IsSubsandbox(entryType) {
			return true, nil
		}
	}
	return false, nil
}

// HasSandboxChanges reports whether the sandbox rooted at ws has changed
// members on the server. It never mutates state and is safe to call from a
// polling loop.
func (c *Client) HasSandboxChanges(ctx context.Context, ws string) (bool, error) {
	s, log, err := c.begin(ctx, "probe")
	if err != nil {
		return false, err
	}

	resp, err := run(ctx, s, log, ViewCommand(filepath.Clean(ws)))
	if err != nil {
		return false, err
	}
	if resp == nil {
		return false, faults.New(faults.Remote, "si viewsandbox returned no response")
	}
	if resp.ExitCode != 0 {
		return false, faults.New(faults.Remote, "si viewsandbox exited with %d: %s", resp.ExitCode, resp.Exception)
	}

	changed, err := HasMemberChanges(resp.WorkItems)
	if err != nil {
		return false, err
	}
	log.Info("sandbox change probe", "workspace", ws, "changed", changed, "entries", len(resp.WorkItems))
	return changed, nil
}
