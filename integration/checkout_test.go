//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/schaermu/sandboxsync/internal/changelog"
	"github.com/schaermu/sandboxsync/internal/faults"
	"github.com/schaermu/sandboxsync/internal/testutil"
)

func registryXML(workspace, project, devpath string) string {
	return fmt.Sprintf(`<Response app="si" command="sandboxes"><WorkItems>
<WorkItem id="%[1]s/project.pj" modelType="si.Sandbox">
<Field name="SandboxName"><Value dataType="string">%[1]s/project.pj</Value></Field>
<Field name="ProjectName"><Value dataType="string">%[2]s</Value></Field>
<Field name="DevelopmentPath"><Value dataType="string">%[3]s</Value></Field>
</WorkItem></WorkItems></Response>`, workspace, project, devpath)
}

const resyncXML = `<Response app="si" command="resync"><WorkItems>
<WorkItem id="src/main.c" context="/Projects/App/project.pj"><Result><Message>Updated src/main.c</Message></Result></WorkItem>
<WorkItem id="docs/old.txt" context="/Projects/App/project.pj"><Result><Message>Dropped, no longer a member</Message></Result></WorkItem>
</WorkItems></Response>`

func TestCheckout_ReplacesConflictingSandbox(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(ctx, t)
	h.SI.SetReply(t, "sandboxes", testutil.Reply{Stdout: registryXML(h.Workspace, "/Projects/App/project.pj", "Release_0")})
	h.SI.SetReply(t, "resync", testutil.Reply{Stdout: resyncXML})

	out, code := h.Run(ctx, "checkout")
	if code != 0 {
		t.Fatalf("checkout exited with %d", code)
	}
	if !strings.Contains(out, "changes=2") {
		t.Errorf("unexpected output %q", out)
	}

	drops := h.SI.CallsFor(t, "dropsandbox")
	if len(drops) != 1 || !strings.HasSuffix(drops[0], "--delete=all --forceConfirm=yes "+h.Workspace+"/project.pj") {
		t.Errorf("unexpected drops %v", drops)
	}
	creates := h.SI.CallsFor(t, "createsandbox")
	if len(creates) != 1 || !strings.Contains(creates[0], "--devpath=Release_1") || !strings.Contains(creates[0], "--nopopulate") {
		t.Errorf("unexpected creates %v", creates)
	}
	resyncs := h.SI.CallsFor(t, "resync")
	if len(resyncs) != 1 {
		t.Fatalf("unexpected resyncs %v", resyncs)
	}
	for _, want := range []string{"--filter=!file:*.tmp", "--filter=!file:build/*", "--removeOutOfScope", "--filter=changed:all"} {
		if !strings.Contains(resyncs[0], want) {
			t.Errorf("resync %q missing %s", resyncs[0], want)
		}
	}

	records, err := changelog.Read(h.ChangeLog)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Message != "Dropped, no longer a member" {
		t.Errorf("unexpected change log %+v", records)
	}
}

func TestCheckout_ReusesMatchingSandbox(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(ctx, t)
	h.SI.SetReply(t, "sandboxes", testutil.Reply{Stdout: registryXML(h.Workspace, "/Projects/App/project.pj", "Release_1")})

	if _, code := h.Run(ctx, "checkout"); code != 0 {
		t.Fatalf("checkout exited with %d", code)
	}
	if calls := h.SI.CallsFor(t, "createsandbox"); len(calls) != 0 {
		t.Errorf("matching sandbox must be reused, got %v", calls)
	}
	if calls := h.SI.CallsFor(t, "dropsandbox"); len(calls) != 0 {
		t.Errorf("matching sandbox must not be dropped, got %v", calls)
	}
}

func TestCheckout_FailedResyncWritesNoChangeLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(ctx, t)
	h.SI.SetReply(t, "resync", testutil.Reply{Stdout: `<Response app="si" command="resync"></Response>`, Exit: 1})

	if _, code := h.Run(ctx, "checkout"); code != faults.ExitRemote {
		t.Errorf("exit code = %d, want %d", code, faults.ExitRemote)
	}
	if _, err := os.Stat(h.ChangeLog); !os.IsNotExist(err) {
		t.Errorf("change log must not exist, stat err = %v", err)
	}
}

func TestExitCodes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(ctx, t)

	h.WriteConfig(h.SI.Path + "-missing")
	if _, code := h.Run(ctx, "poll"); code != faults.ExitTransport {
		t.Errorf("missing si: exit code = %d, want %d", code, faults.ExitTransport)
	}
	if out, code := h.Run(ctx, "terminate"); code != 0 || strings.TrimSpace(out) != "0" {
		t.Errorf("terminate: code=%d out=%q, want 0", code, out)
	}

	h.WriteConfig(h.SI.Path)
	h.SI.SetReply(t, "viewsandbox", testutil.Reply{Stdout: `<Response app="si" command="viewsandbox"><WorkItems>
<WorkItem id="broken"></WorkItem></WorkItems></Response>`})
	if _, code := h.Run(ctx, "poll"); code != faults.ExitMalformed {
		t.Errorf("untyped entry: exit code = %d, want %d", code, faults.ExitMalformed)
	}

	if _, code := h.Run(ctx, "--config", h.dir+"/missing.yaml", "verify"); code != faults.ExitConfigError {
		t.Errorf("missing config: exit code = %d, want %d", code, faults.ExitConfigError)
	}
}
