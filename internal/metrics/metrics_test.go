package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/schaermu/sandboxsync/internal/session"
)

type stubSession struct {
	pingErr error
	resp    *session.Response
	err     error
}

func (s *stubSession) Ping(context.Context) error { return s.pingErr }

func (s *stubSession) Run(context.Context, *session.Command) (*session.Response, error) {
	return s.resp, s.err
}

func TestInstrumentFactory(t *testing.T) {
	rec := NewRecorder()
	stub := &stubSession{resp: &session.Response{ExitCode: 0}}
	factory := rec.InstrumentFactory(func(context.Context) (session.Session, error) { return stub, nil })

	ctx := context.Background()
	s, err := factory(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, session.NewCommand(session.AppSI, "sandboxes")); err != nil {
		t.Fatal(err)
	}
	stub.resp = &session.Response{ExitCode: 1}
	_, _ = s.Run(ctx, session.NewCommand(session.AppSI, "resync"))
	stub.resp = nil
	_, _ = s.Run(ctx, session.NewCommand(session.AppSI, "resync"))
	stub.err = errors.New("boom")
	_, _ = s.Run(ctx, session.NewCommand(session.AppSI, "resync"))

	tests := []struct {
		verb, outcome string
		want          float64
	}{
		{"connect", OutcomeOK, 1},
		{"sandboxes", OutcomeOK, 1},
		{"resync", OutcomeFailed, 1},
		{"resync", OutcomeNoResponse, 1},
		{"resync", OutcomeError, 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(rec.remoteCommands.WithLabelValues(session.AppSI, tt.verb, tt.outcome))
		if got != tt.want {
			t.Errorf("%s/%s = %v, want %v", tt.verb, tt.outcome, got, tt.want)
		}
	}
}

func TestInstrumentFactoryPropagatesOpenError(t *testing.T) {
	rec := NewRecorder()
	want := errors.New("cannot open")
	factory := rec.InstrumentFactory(func(context.Context) (session.Session, error) { return nil, want })
	if _, err := factory(context.Background()); !errors.Is(err, want) {
		t.Errorf("expected open error, got %v", err)
	}
}

func TestNilRecorder(t *testing.T) {
	var rec *Recorder
	rec.ObserveDecision("reuse")
	rec.ObserveSync("success")
	rec.ObserveCommand("si", "resync", OutcomeOK, 0)

	called := false
	f := func(context.Context) (session.Session, error) { called = true; return &stubSession{}, nil }
	if _, err := rec.InstrumentFactory(f)(context.Background()); err != nil || !called {
		t.Error("nil recorder should pass the factory through")
	}
}

func TestHandler(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveDecision("create_fresh")
	rec.ObserveSync("success")

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	for _, want := range []string{
		`sandboxsync_reconcile_decisions_total{decision="create_fresh"} 1`,
		`sandboxsync_syncs_total{result="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
