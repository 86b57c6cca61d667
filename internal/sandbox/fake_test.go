package sandbox

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/schaermu/sandboxsync/internal/metrics"
	"github.com/schaermu/sandboxsync/internal/session"
	"github.com/schaermu/sandboxsync/internal/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeServer is an in-memory registry that answers sandbox commands and
// records every command it receives.
type fakeServer struct {
	registry []session.WorkItem
	view     []session.WorkItem
	changes  []session.WorkItem

	pingErr error
	exit    map[string]int
	noResp  map[string]bool
	errs    map[string]error

	opens int
	calls []*session.Command
}

func newFakeServer(registry ...session.WorkItem) *fakeServer {
	return &fakeServer{
		registry: registry,
		exit:     make(map[string]int),
		noResp:   make(map[string]bool),
		errs:     make(map[string]error),
	}
}

func (f *fakeServer) factory() session.Factory {
	return func(context.Context) (session.Session, error) {
		f.opens++
		return f, nil
	}
}

func (f *fakeServer) client() *Client {
	return NewClient(f.factory(), MatchIdentity, nil, testLogger())
}

func (f *fakeServer) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeServer) Run(_ context.Context, cmd *session.Command) (*session.Response, error) {
	f.calls = append(f.calls, cmd)
	if err := f.errs[cmd.Verb]; err != nil {
		return nil, err
	}
	if f.noResp[cmd.Verb] {
		return nil, nil
	}

	resp := &session.Response{App: cmd.App, Command: cmd.Verb, ExitCode: f.exit[cmd.Verb]}
	if resp.ExitCode != 0 {
		resp.Exception = cmd.Verb + " failed"
		return resp, nil
	}

	switch cmd.Verb {
	case "sandboxes":
		resp.WorkItems = append([]session.WorkItem(nil), f.registry...)
	case "createsandbox":
		project, _ := cmd.Option("project")
		devpath, _ := cmd.Option("devpath")
		revision, _ := cmd.Option("projectRevision")
		f.registry = append(f.registry, sandboxItem(workspace.SandboxFile(cmd.Selection[0]), project, devpath, revision))
	case "dropsandbox":
		kept := f.registry[:0]
		for _, wi := range f.registry {
			name, _ := wi.StringField("SandboxName")
			if !workspace.SamePath(name, cmd.Selection[0]) {
				kept = append(kept, wi)
			}
		}
		f.registry = kept
	case "viewsandbox":
		resp.WorkItems = f.view
	case "resync":
		resp.WorkItems = f.changes
	}
	return resp, nil
}

func (f *fakeServer) count(verb string) int {
	n := 0
	for _, c := range f.calls {
		if c.Verb == verb {
			n++
		}
	}
	return n
}

func (f *fakeServer) verbs() []string {
	verbs := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		verbs = append(verbs, c.Verb)
	}
	return verbs
}

func (f *fakeServer) last(verb string) *session.Command {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Verb == verb {
			return f.calls[i]
		}
	}
	return nil
}

func sandboxItem(name, project, devpath, revision string) session.WorkItem {
	fields := map[string]session.Field{
		"SandboxName": {Name: "SandboxName", Value: name},
		"ProjectName": {Name: "ProjectName", Value: project},
	}
	if devpath != "" {
		fields["DevelopmentPath"] = session.Field{Name: "DevelopmentPath", Value: devpath}
	} else {
		fields["DevelopmentPath"] = session.Field{Name: "DevelopmentPath", Null: true}
	}
	if revision != "" {
		fields["BuildRevision"] = session.Field{Name: "BuildRevision", Item: &session.Item{ID: revision, ModelType: "si.Revision"}}
	}
	return session.WorkItem{ID: name, ModelType: "si.Sandbox", Fields: fields}
}

func viewItem(id, entryType string) session.WorkItem {
	return session.WorkItem{
		ID:     id,
		Fields: map[string]session.Field{"type": {Name: "type", Value: entryType}},
	}
}

func changeItem(id, context, message string) session.WorkItem {
	return session.WorkItem{ID: id, Context: context, Result: &session.Result{Message: message}}
}

func scrape(t *testing.T, rec *metrics.Recorder) string {
	t.Helper()
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	return w.Body.String()
}

func contains(body, want string) bool {
	return strings.Contains(body, want)
}
