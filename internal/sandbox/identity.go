// Package sandbox reconciles local sandboxes against the server registry and
// keeps their content in sync.
package sandbox

import (
	"fmt"

	"github.com/schaermu/sandboxsync/internal/faults"
)

// Kind is the kind of project configuration a sandbox is bound to.
type Kind int

const (
	Trunk Kind = iota
	Variant
	Build
)

func (k Kind) String() string {
	switch k {
	case Trunk:
		return "trunk"
	case Variant:
		return "variant"
	case Build:
		return "build"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Project is a project configuration: a project path and, depending on the
// kind, a development path or a checkpoint revision.
type Project struct {
	Name     string
	Kind     Kind
	Variant  string
	Revision string
}

// TrunkProject returns the mainline configuration of name.
func TrunkProject(name string) Project {
	return Project{Name: name, Kind: Trunk}
}

// VariantProject returns the configuration of name on a development path.
func VariantProject(name, devpath string) Project {
	return Project{Name: name, Kind: Variant, Variant: devpath}
}

// BuildProject returns the configuration of name at a fixed revision.
func BuildProject(name, revision string) Project {
	return Project{Name: name, Kind: Build, Revision: revision}
}

// Validate checks that exactly the field required by the kind is set.
func (p Project) Validate() error {
	if p.Name == "" {
		return faults.New(faults.Validation, "project name is required")
	}
	switch p.Kind {
	case Trunk:
		if p.Variant != "" || p.Revision != "" {
			return faults.New(faults.Validation, "trunk project %s must not set a variant or revision", p.Name)
		}
	case Variant:
		if p.Variant == "" {
			return faults.New(faults.Validation, "variant project %s requires a development path", p.Name)
		}
		if p.Revision != "" {
			return faults.New(faults.Validation, "variant project %s must not set a revision", p.Name)
		}
	case Build:
		if p.Revision == "" {
			return faults.New(faults.Validation, "build project %s requires a revision", p.Name)
		}
		if p.Variant != "" {
			return faults.New(faults.Validation, "build project %s must not set a variant", p.Name)
		}
	default:
		return faults.New(faults.Validation, "project %s has unknown kind %s", p.Name, p.Kind)
	}
	return nil
}

// Identity is the desired binding of a workspace directory to a project
// configuration.
type Identity struct {
	WorkspacePath string
	Project
}
