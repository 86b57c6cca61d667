//go:build integration

package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/sandboxsync/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the sandboxsync binary once per test and runs it against
// fake si and im executables.
type Harness struct {
	t         *testing.T
	dir       string
	binary    string
	cfgPath   string
	Workspace string
	ChangeLog string
	SI        *testutil.FakeCLI
	IM        *testutil.FakeCLI
}

// NewHarness builds the binary and writes a config pointing at the fakes
func NewHarness(ctx context.Context, t *testing.T) *Harness {
	t.Helper()

	dir := t.TempDir()
	h := &Harness{
		t:         t,
		dir:       dir,
		binary:    testutil.BuildBinary(ctx, t, dir),
		cfgPath:   filepath.Join(dir, "config.yaml"),
		Workspace: filepath.Join(dir, "workspace"),
		ChangeLog: filepath.Join(dir, "logs", "changes.log"),
		SI:        testutil.NewFakeCLI(t, dir, "si", nil),
		IM:        testutil.NewFakeCLI(t, dir, "im", nil),
	}

	h.WriteConfig(h.SI.Path)
	return h
}

// WriteConfig (re)writes the config using siPath as the si executable
func (h *Harness) WriteConfig(siPath string) {
	h.t.Helper()
	content := fmt.Sprintf(`server:
  hostname: integrity.example.com
  user: ci
  si_path: %q
  im_path: %q
sandbox:
  workspace: %q
  project: /Projects/App/project.pj
  variant: Release_1
resync:
  delete_non_members: true
  exclude: "*.tmp;build/*"
  changelog: %q
`, siPath, h.IM.Path, h.Workspace, h.ChangeLog)
	if err := os.WriteFile(h.cfgPath, []byte(content), 0600); err != nil {
		h.t.Fatalf("write config: %v", err)
	}
}

// Run executes the binary and returns stdout and the exit code
func (h *Harness) Run(ctx context.Context, args ...string) (string, int) {
	h.t.Helper()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, h.binary, append([]string{"--config", h.cfgPath}, args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &testWriter{t: h.t, prefix: "[sandboxsync] "}

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), 0
	case errors.As(err, &exitErr):
		return stdout.String(), exitErr.ExitCode()
	default:
		h.t.Fatalf("run sandboxsync: %v", err)
		return "", -1
	}
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
