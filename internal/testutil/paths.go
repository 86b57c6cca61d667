package testutil

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// MainPackage is the import-relative path of the sandboxsync command.
const MainPackage = "./cmd/sandboxsync"

// ErrNoModuleRoot is returned when no go.mod exists above the caller.
var ErrNoModuleRoot = errors.New("go.mod not found in any parent directory")

// FindProjectRoot returns the directory holding the module's go.mod,
// searching upwards from the caller's source file.
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	return moduleRoot(filepath.Dir(filename))
}

func moduleRoot(dir string) (string, error) {
	for ; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", ErrNoModuleRoot
		}
	}
}

// BuildBinary compiles the sandboxsync command into dir and returns the
// binary path. Build output is forwarded to the test log.
func BuildBinary(ctx context.Context, t *testing.T, dir string) string {
	t.Helper()

	_, filename, _, _ := runtime.Caller(0)
	root, err := moduleRoot(filepath.Dir(filename))
	if err != nil {
		t.Fatalf("locate module root: %v", err)
	}

	binary := filepath.Join(dir, "sandboxsync")
	build := exec.CommandContext(ctx, "go", "build", "-o", binary, MainPackage)
	build.Dir = root
	out, err := build.CombinedOutput()
	if len(out) > 0 {
		t.Logf("[build] %s", out)
	}
	if err != nil {
		t.Fatalf("go build %s: %v", MainPackage, err)
	}
	return binary
}
