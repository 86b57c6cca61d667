package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/schaermu/sandboxsync/internal/faults"
)

// ShellConfig configures a ShellSession.
type ShellConfig struct {
	SIPath       string
	IMPath       string
	Hostname     string
	Port         int
	User         string
	PasswordFile string
	// ExtraArgs are appended to every command after the connection options.
	ExtraArgs []string
	// Timeout bounds each command. Zero means no timeout.
	Timeout time.Duration
}

// ShellSession implements Session by shelling out to the si and im
// executables with --xmlapi output.
type ShellSession struct {
	cfg      ShellConfig
	password string
	logger   *slog.Logger
}

// NewShellSession creates a session for the configured server. The password
// file, when set, is read once here.
func NewShellSession(cfg ShellConfig, logger *slog.Logger) (*ShellSession, error) {
	if cfg.SIPath == "" {
		cfg.SIPath = AppSI
	}
	if cfg.IMPath == "" {
		cfg.IMPath = AppIM
	}

	s := &ShellSession{cfg: cfg, logger: logger}
	if cfg.PasswordFile != "" {
		data, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, faults.Wrap(faults.Config, err, "failed to read password file")
		}
		s.password = strings.TrimSpace(string(data))
	}
	return s, nil
}

// ShellFactory returns a Factory that opens a new ShellSession per call.
func ShellFactory(cfg ShellConfig, logger *slog.Logger) Factory {
	return func(context.Context) (Session, error) {
		return NewShellSession(cfg, logger)
	}
}

// Ping runs si connect against the configured server.
func (s *ShellSession) Ping(ctx context.Context) error {
	resp, err := s.Run(ctx, NewCommand(AppSI, "connect"))
	if err != nil {
		return faults.Wrap(faults.Transport, err, "failed to connect to %s", s.server())
	}
	if resp.ExitCode != 0 {
		return faults.New(faults.Transport, "failed to connect to %s: si connect exited with %d: %s",
			s.server(), resp.ExitCode, resp.Exception)
	}
	return nil
}

// Run executes cmd and decodes the XML response. A non-zero exit status is
// reported through Response.ExitCode as long as the CLI produced a response
// document; otherwise it is returned as a remote error.
func (s *ShellSession) Run(ctx context.Context, cmd *Command) (*Response, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	bin := s.binary(cmd.App)
	args := s.buildArgs(cmd)
	s.logger.Debug("running remote command", "command", RenderCommandLine(bin, args))

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, bin, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	exitCode := 0
	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return nil, faults.Wrap(faults.Transport, err, "%s %s", cmd.App, cmd.Verb)
		}
		exitCode = exitErr.ExitCode()
	}

	payload := bytes.TrimSpace(stdout.Bytes())
	if len(payload) == 0 {
		if exitCode != 0 {
			return nil, faults.New(faults.Remote, "%s %s exited with %d: %s",
				cmd.App, cmd.Verb, exitCode, strings.TrimSpace(stderr.String()))
		}
		return &Response{App: cmd.App, Command: cmd.Verb}, nil
	}

	resp, err := DecodeResponse(payload)
	if err != nil {
		if exitCode != 0 {
			return nil, faults.New(faults.Remote, "%s %s exited with %d: %s",
				cmd.App, cmd.Verb, exitCode, strings.TrimSpace(stderr.String()))
		}
		return nil, faults.Wrap(faults.Malformed, err, "%s %s", cmd.App, cmd.Verb)
	}
	if resp.App == "" {
		resp.App = cmd.App
	}
	if resp.Command == "" {
		resp.Command = cmd.Verb
	}
	resp.ExitCode = exitCode

	s.logger.Debug("remote command finished",
		"command", cmd.App+" "+cmd.Verb,
		"exit_code", exitCode,
		"work_items", len(resp.WorkItems))
	return resp, nil
}

// buildArgs places connection options between the verb and the command's
// own options.
func (s *ShellSession) buildArgs(cmd *Command) []string {
	all := cmd.Args()
	args := make([]string, 0, len(all)+6+len(s.cfg.ExtraArgs))
	args = append(args, all[0])
	if s.cfg.Hostname != "" {
		args = append(args, "--hostname="+s.cfg.Hostname)
	}
	if s.cfg.Port > 0 {
		args = append(args, "--port="+strconv.Itoa(s.cfg.Port))
	}
	if s.cfg.User != "" {
		args = append(args, "--user="+s.cfg.User)
	}
	if s.password != "" {
		args = append(args, "--password="+s.password)
	}
	args = append(args, "--xmlapi")
	args = append(args, s.cfg.ExtraArgs...)
	return append(args, all[1:]...)
}

func (s *ShellSession) binary(app string) string {
	if app == AppIM {
		return s.cfg.IMPath
	}
	return s.cfg.SIPath
}

func (s *ShellSession) server() string {
	if s.cfg.Port > 0 {
		return fmt.Sprintf("%s:%d", s.cfg.Hostname, s.cfg.Port)
	}
	return s.cfg.Hostname
}
