// Package workspace resolves sandbox directories and normalizes sandbox
// paths for comparison against the server registry.
package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ProjectFile is the name of the project file at the root of every sandbox.
const ProjectFile = "project.pj"

// ProjectSuffix is the project file appended to a sandbox directory using the
// platform path separator.
var ProjectSuffix = string(filepath.Separator) + ProjectFile

// Resolve returns the checkout directory for a workspace. An absolute
// alternate directory wins; a relative one is joined onto base.
func Resolve(base, alternate string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("workspace base directory is empty")
	}
	if alternate == "" {
		return filepath.Clean(base), nil
	}
	if filepath.IsAbs(alternate) {
		return filepath.Clean(alternate), nil
	}
	return filepath.Join(base, alternate), nil
}

// ResolveContained is like Resolve, but a relative alternate directory is
// confined to base: ".." components stop at base and symlinks below base
// are resolved as if base were the filesystem root.
func ResolveContained(base, alternate string) (string, error) {
	if base == "" || alternate == "" || filepath.IsAbs(alternate) {
		return Resolve(base, alternate)
	}

	dir, err := securejoin.SecureJoin(base, alternate)
	if err != nil {
		return "", fmt.Errorf("failed to resolve alternate directory %q under %s: %w", alternate, base, err)
	}
	return dir, nil
}

// Normalize converts a sandbox or workspace path into a separator-agnostic
// form without the trailing project file, suitable for case-insensitive
// comparison.
func Normalize(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	if len(p) >= len(ProjectFile)+1 && strings.EqualFold(p[len(p)-len(ProjectFile)-1:], "/"+ProjectFile) {
		p = p[:len(p)-len(ProjectFile)-1]
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// SamePath reports whether two sandbox paths name the same directory.
func SamePath(a, b string) bool {
	return strings.EqualFold(Normalize(a), Normalize(b))
}

// SandboxFile returns the project file of the sandbox rooted at dir, using
// the platform separator.
func SandboxFile(dir string) string {
	return dir + ProjectSuffix
}

// DropTarget returns the project file of the sandbox rooted at dir in the
// forward-slash form expected by dropsandbox.
func DropTarget(dir string) string {
	return Normalize(dir) + "/" + ProjectFile
}
