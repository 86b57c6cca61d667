package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Reply is the canned output of a fake CLI verb.
type Reply struct {
	Stdout string
	Stderr string
	Exit   int
}

// FakeCLI is a shell script standing in for the si or im executable. It
// records every invocation and answers each verb with a canned Reply.
type FakeCLI struct {
	Path    string
	dir     string
	name    string
	replies map[string]Reply
}

// NewFakeCLI writes an executable named name into dir. Verbs without a
// reply exit 0 with no output.
func NewFakeCLI(t *testing.T, dir, name string, replies map[string]Reply) *FakeCLI {
	t.Helper()
	f := &FakeCLI{
		Path:    filepath.Join(dir, name),
		dir:     dir,
		name:    name,
		replies: replies,
	}
	f.write(t)
	return f
}

// SetReply replaces the reply for verb and rewrites the script.
func (f *FakeCLI) SetReply(t *testing.T, verb string, reply Reply) {
	t.Helper()
	if f.replies == nil {
		f.replies = make(map[string]Reply)
	}
	f.replies[verb] = reply
	f.write(t)
}

// Calls returns the recorded argument lines, one per invocation.
func (f *FakeCLI) Calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.callsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read fake cli calls: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// CallsFor returns the recorded argument lines whose verb matches.
func (f *FakeCLI) CallsFor(t *testing.T, verb string) []string {
	t.Helper()
	var matched []string
	for _, line := range f.Calls(t) {
		if line == verb || strings.HasPrefix(line, verb+" ") {
			matched = append(matched, line)
		}
	}
	return matched
}

func (f *FakeCLI) callsPath() string {
	return filepath.Join(f.dir, f.name+".calls")
}

func (f *FakeCLI) write(t *testing.T) {
	t.Helper()

	verbs := make([]string, 0, len(f.replies))
	for verb := range f.replies {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&script, "echo \"$*\" >> '%s'\n", f.callsPath())
	script.WriteString("case \"$1\" in\n")
	for _, verb := range verbs {
		reply := f.replies[verb]
		stdoutPath := filepath.Join(f.dir, fmt.Sprintf("%s-%s.out", f.name, verb))
		stderrPath := filepath.Join(f.dir, fmt.Sprintf("%s-%s.err", f.name, verb))
		if err := os.WriteFile(stdoutPath, []byte(reply.Stdout), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(stderrPath, []byte(reply.Stderr), 0644); err != nil {
			t.Fatal(err)
		}
		fmt.Fprintf(&script, "  %s)\n    cat '%s'\n    cat '%s' >&2\n    exit %d\n    ;;\n",
			verb, stdoutPath, stderrPath, reply.Exit)
	}
	script.WriteString("esac\nexit 0\n")

	if err := os.WriteFile(f.Path, []byte(script.String()), 0755); err != nil {
		t.Fatal(err)
	}
}
