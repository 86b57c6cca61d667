package poller

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/schaermu/sandboxsync/internal/activation"
	"github.com/schaermu/sandboxsync/internal/config"
	"github.com/schaermu/sandboxsync/internal/metrics"
	checkout "github.com/schaermu/sandboxsync/internal/sync"
)

// SignatureHeader carries the HMAC-SHA256 of the trigger request body
const SignatureHeader = "X-Sandboxsync-Signature-256"

// Runner runs checkouts and probes for server side changes
type Runner interface {
	Run(ctx context.Context) (*checkout.Result, error)
	HasChanges(ctx context.Context) (bool, error)
}

// TriggerRequest is the optional JSON body of a trigger request
type TriggerRequest struct {
	Reason string `json:"reason"`
}

// Server polls the sandbox for changes and serves the trigger, health and
// metrics endpoints
type Server struct {
	cfg         *config.Config
	runner      Runner
	recorder    *metrics.Recorder
	logger      *slog.Logger
	secret      []byte
	syncMu      sync.Mutex      // guards syncRunning, syncPending and serveCtx
	syncRunning bool            // whether a sync is currently in progress
	syncPending bool            // whether another sync is needed after the current one
	serveCtx    context.Context // context of the running Start call
	debounce    *debouncer

	statusMu  sync.Mutex
	lastSync  time.Time
	lastError error
}

// debouncer implements debouncing for trigger requests
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
	stopped  bool
}

// NewServer creates a new polling server. recorder may be nil, in which case
// /metrics is not served.
func NewServer(cfg *config.Config, runner Runner, recorder *metrics.Recorder, logger *slog.Logger) (*Server, error) {
	secret, err := os.ReadFile(cfg.Serve.TriggerSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger secret: %w", err)
	}

	secret = []byte(strings.TrimSpace(string(secret)))
	if len(secret) == 0 {
		return nil, fmt.Errorf("trigger secret file %s is empty", cfg.Serve.TriggerSecretFile)
	}

	return &Server{
		cfg:      cfg,
		runner:   runner,
		recorder: recorder,
		logger:   logger,
		secret:   secret,
		serveCtx: context.Background(),
		debounce: &debouncer{delay: 2 * time.Second},
	}, nil
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger", s.handleTrigger)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.recorder != nil {
		mux.Handle("/metrics", s.recorder.Handler())
	}
	return mux
}

// Start performs an initial sync, then serves HTTP and polls until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.syncMu.Lock()
	s.serveCtx = ctx
	s.syncMu.Unlock()
	defer s.debounce.stop()

	s.logger.Info("performing initial sync before starting server")
	s.performSync(ctx)

	listener, activated, err := activation.Listener(s.cfg.Serve.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to open listener: %w", err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", listener.Addr().String(), "socket_activated", activated)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		s.poll(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		<-pollDone
		return err
	case err := <-errCh:
		return err
	}
}

// poll asks the server for sandbox changes every poll interval and syncs
// when members changed
func (s *Server) poll(ctx context.Context) {
	interval := s.cfg.Serve.PollInterval
	if interval <= 0 {
		s.logger.Info("polling disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Server) pollOnce(ctx context.Context) {
	changed, err := s.runner.HasChanges(ctx)
	if err != nil {
		s.logger.Warn("change probe failed", "error", err)
		return
	}
	if !changed {
		s.logger.Debug("no sandbox changes")
		return
	}
	s.logger.Info("sandbox changes detected, syncing")
	s.performSync(ctx)
}

// handleTrigger handles signed sync requests
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if !s.verifySignature(body, r.Header.Get(SignatureHeader)) {
		s.logger.Warn("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	var req TriggerRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.logger.Error("failed to parse trigger payload", "error", err)
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
	}

	s.logger.Info("trigger accepted", "reason", req.Reason)

	s.debounce.trigger(func() {
		ctx := s.syncContext()
		if ctx.Err() != nil {
			s.logger.Info("server shutting down, skipping triggered sync")
			return
		}
		s.performSync(ctx)
	})

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "Sync triggered\n")
}

type healthStatus struct {
	Status    string     `json:"status"`
	Running   bool       `json:"running"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// handleHealth reports whether the last sync succeeded
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.syncMu.Lock()
	running := s.syncRunning
	s.syncMu.Unlock()

	s.statusMu.Lock()
	status := healthStatus{Status: "ok", Running: running}
	if !s.lastSync.IsZero() {
		last := s.lastSync
		status.LastSync = &last
	}
	if s.lastError != nil {
		status.Status = "failing"
		status.LastError = s.lastError.Error()
	}
	s.statusMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// verifySignature verifies the trigger signature
func (s *Server) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	// Signature format: sha256=<hex>
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// performSync executes the checkout with single-flight semantics.
// If a sync is already in progress, at most one additional run is queued;
// further concurrent requests are dropped.
func (s *Server) performSync(ctx context.Context) {
	s.syncMu.Lock()
	if s.syncRunning {
		s.syncPending = true
		s.syncMu.Unlock()
		s.logger.Info("sync already in progress, queuing pending re-run")
		return
	}
	s.syncRunning = true
	s.syncMu.Unlock()

	for {
		s.logger.Info("performing sync operation")

		res, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error("sync failed", "error", err)
		} else {
			s.logger.Info("sync completed successfully", "dir", res.Dir, "changes", len(res.Changes))
		}
		s.recordStatus(err)

		s.syncMu.Lock()
		if !s.syncPending {
			s.syncRunning = false
			s.syncMu.Unlock()
			break
		}
		s.syncPending = false
		s.syncMu.Unlock()

		s.logger.Info("re-running sync due to pending request")
	}
}

func (s *Server) syncContext() context.Context {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.serveCtx
}

func (s *Server) recordStatus(err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.lastSync = time.Now()
	s.lastError = err
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// stop cancels a scheduled callback and ignores later triggers
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.callback = nil
	if d.timer != nil {
		d.timer.Stop()
	}
}
