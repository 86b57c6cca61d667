package sandbox

import (
	"fmt"

	"github.com/schaermu/sandboxsync/internal/workspace"
)

// Verdict is the outcome of comparing a registry record to a desired
// identity.
type Verdict int

const (
	// Unrelated records live at a different path.
	Unrelated Verdict = iota
	// Conflict records occupy the desired path with a different identity.
	Conflict
	// Match records are exactly the desired sandbox.
	Match
)

func (v Verdict) String() string {
	switch v {
	case Unrelated:
		return "unrelated"
	case Conflict:
		return "conflict"
	case Match:
		return "match"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// MatchMode selects how a record at the desired path is judged.
type MatchMode string

const (
	// MatchIdentity compares project and the kind specific field. A trunk
	// identity has no kind specific constraint.
	MatchIdentity MatchMode = "identity"
	// MatchLegacy never reports a match, so every sandbox at the desired
	// path is dropped and recreated.
	MatchLegacy MatchMode = "legacy"
)

// ParseMatchMode parses a configured match mode. The empty string selects
// MatchIdentity.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case "", MatchIdentity:
		return MatchIdentity, nil
	case MatchLegacy:
		return MatchLegacy, nil
	default:
		return "", fmt.Errorf("invalid match mode %q (must be identity or legacy)", s)
	}
}

// MatchRecord judges rec against desired.
func MatchRecord(rec Record, desired Identity, mode MatchMode) Verdict {
	if !workspace.SamePath(rec.SandboxName, desired.WorkspacePath) {
		return Unrelated
	}
	if mode == MatchLegacy {
		return Conflict
	}
	if rec.ProjectName != desired.Name {
		return Conflict
	}

	switch desired.Kind {
	case Variant:
		if rec.DevelopmentPath != desired.Variant {
			return Conflict
		}
	case Build:
		if rec.BuildRevision != desired.Revision {
			return Conflict
		}
	}
	return Match
}
