package sandbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/sandboxsync/internal/faults"
	"github.com/schaermu/sandboxsync/internal/session"
)

// Registry field names reported by si sandboxes
const (
	fieldSandboxName     = "SandboxName"
	fieldProjectName     = "ProjectName"
	fieldDevelopmentPath = "DevelopmentPath"
	fieldBuildRevision   = "BuildRevision"
)

// Record is one sandbox known to the server.
type Record struct {
	// SandboxName is the sandbox project file path as reported by the server.
	SandboxName string
	ProjectName string
	// DevelopmentPath is empty for sandboxes not bound to a variant.
	DevelopmentPath string
	// BuildRevision is empty for sandboxes not bound to a checkpoint.
	BuildRevision string
}

// RecordFromWorkItem converts a registry work item. SandboxName and
// ProjectName are required.
func RecordFromWorkItem(wi session.WorkItem) (Record, error) {
	var rec Record
	var ok bool

	if rec.SandboxName, ok = wi.StringField(fieldSandboxName); !ok || rec.SandboxName == "" {
		return Record{}, faults.New(faults.Malformed, "registry entry %q has no %s", wi.ID, fieldSandboxName)
	}
	if rec.ProjectName, ok = wi.StringField(fieldProjectName); !ok || rec.ProjectName == "" {
		return Record{}, faults.New(faults.Malformed, "sandbox %s has no %s", rec.SandboxName, fieldProjectName)
	}
	rec.DevelopmentPath, _ = wi.StringField(fieldDevelopmentPath)
	rec.BuildRevision, _ = wi.StringField(fieldBuildRevision)
	return rec, nil
}

// DecisionKind is the action a reconciliation takes.
type DecisionKind int

const (
	Reuse DecisionKind = iota
	DropThenCreate
	CreateFresh
)

func (k DecisionKind) String() string {
	switch k {
	case Reuse:
		return "reuse"
	case DropThenCreate:
		return "drop_then_create"
	case CreateFresh:
		return "create_fresh"
	default:
		return fmt.Sprintf("decision(%d)", int(k))
	}
}

// Decision is the result of a registry scan. Conflict is set only for
// DropThenCreate and names the record that must be dropped.
type Decision struct {
	Kind     DecisionKind
	Conflict *Record
}

func (d Decision) String() string {
	if d.Conflict != nil {
		return d.Kind.String() + "(" + d.Conflict.SandboxName + ")"
	}
	return d.Kind.String()
}

// Decide returns Reuse at the first matching record, otherwise
// DropThenCreate for the last conflicting record, otherwise CreateFresh.
func Decide(records []Record, desired Identity, mode MatchMode) Decision {
	var conflict *Record
	for i := range records {
		switch MatchRecord(records[i], desired, mode) {
		case Match:
			return Decision{Kind: Reuse}
		case Conflict:
			conflict = &records[i]
		}
	}
	if conflict != nil {
		c := *conflict
		return Decision{Kind: DropThenCreate, Conflict: &c}
	}
	return Decision{Kind: CreateFresh}
}

// ListSandboxes runs si sandboxes and returns every registry record. All
// records are validated before any is returned.
func ListSandboxes(ctx context.Context, s session.Session) ([]Record, error) {
	resp, err := s.Run(ctx, session.NewCommand(session.AppSI, "sandboxes"))
	if err != nil {
		return nil, fmt.Errorf("failed to list sandboxes: %w", err)
	}
	if resp == nil {
		return nil, faults.New(faults.Remote, "si sandboxes returned no response")
	}
	if resp.ExitCode != 0 {
		return nil, faults.New(faults.Remote, "si sandboxes exited with %d: %s", resp.ExitCode, resp.Exception)
	}

	records := make([]Record, 0, len(resp.WorkItems))
	for _, wi := range resp.WorkItems {
		rec, err := RecordFromWorkItem(wi)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Scan lists the registry and decides how to reconcile desired. It never
// mutates server state.
func Scan(ctx context.Context, s session.Session, desired Identity, mode MatchMode, logger *slog.Logger) (Decision, error) {
	logger.Info("searching sandbox",
		"workspace", desired.WorkspacePath,
		"project", desired.Name,
		"kind", desired.Kind,
		"variant", desired.Variant,
		"revision", desired.Revision)

	records, err := ListSandboxes(ctx, s)
	if err != nil {
		return Decision{}, err
	}
	for _, rec := range records {
		logger.Debug("evaluating sandbox",
			"sandbox", rec.SandboxName,
			"project", rec.ProjectName,
			"devpath", rec.DevelopmentPath,
			"revision", rec.BuildRevision,
			"verdict", MatchRecord(rec, desired, mode))
	}

	d := Decide(records, desired, mode)
	switch d.Kind {
	case Reuse:
		logger.Info("found existing sandbox", "workspace", desired.WorkspacePath)
	case DropThenCreate:
		logger.Info("sandbox marked for deletion", "sandbox", d.Conflict.SandboxName)
	case CreateFresh:
		logger.Info("sandbox not found", "workspace", desired.WorkspacePath)
	}
	return d, nil
}
