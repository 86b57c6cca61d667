package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/sandboxsync/internal/sandbox"
	"github.com/schaermu/sandboxsync/internal/session"
	"github.com/schaermu/sandboxsync/internal/workspace"
)

// Line terminators accepted by createsandbox
const (
	LineTerminatorNative = "native"
	LineTerminatorLF     = "lf"
	LineTerminatorCRLF   = "crlf"
)

// Defaults
const (
	DefaultPort         = 7001
	DefaultListenAddr   = ":8099"
	DefaultPollInterval = 5 * time.Minute
)

// Config represents the complete sandboxsync configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Resync  ResyncConfig  `yaml:"resync"`
	Serve   ServeConfig   `yaml:"serve"`
}

// ServerConfig configures the connection to the Integrity server
type ServerConfig struct {
	Hostname     string        `yaml:"hostname"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	PasswordFile string        `yaml:"password_file"`
	SIPath       string        `yaml:"si_path"`
	IMPath       string        `yaml:"im_path"`
	Timeout      time.Duration `yaml:"timeout"`
	// ExtraArgs is a shell-quoted string of arguments appended to every
	// remote command.
	ExtraArgs string `yaml:"extra_args"`
}

// SandboxConfig configures the sandbox to check out
type SandboxConfig struct {
	Workspace    string `yaml:"workspace"`
	AlternateDir string `yaml:"alternate_dir"`
	// ContainAlternateDir keeps a relative alternate_dir inside workspace.
	ContainAlternateDir bool   `yaml:"contain_alternate_dir"`
	Project             string `yaml:"project"`
	Variant             string `yaml:"variant"`
	Revision            string `yaml:"revision"`
	LineTerminator      string `yaml:"line_terminator"`
	MatchMode           string `yaml:"match_mode"`
}

// ResyncConfig configures resync behavior
type ResyncConfig struct {
	CleanCopy        bool   `yaml:"clean_copy"`
	DeleteNonMembers bool   `yaml:"delete_non_members"`
	RestoreTimestamp bool   `yaml:"restore_timestamp"`
	Include          string `yaml:"include"`
	Exclude          string `yaml:"exclude"`
	ChangeLog        string `yaml:"changelog"`
}

// ServeConfig configures the polling daemon
type ServeConfig struct {
	Enabled           bool          `yaml:"enabled"`
	ListenAddr        string        `yaml:"listen_addr"`
	TriggerSecretFile string        `yaml:"trigger_secret_file"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Server.Hostname = os.ExpandEnv(c.Server.Hostname)
	c.Server.User = os.ExpandEnv(c.Server.User)
	c.Server.PasswordFile = os.ExpandEnv(c.Server.PasswordFile)
	c.Server.SIPath = os.ExpandEnv(c.Server.SIPath)
	c.Server.IMPath = os.ExpandEnv(c.Server.IMPath)
	c.Sandbox.Workspace = os.ExpandEnv(c.Sandbox.Workspace)
	c.Sandbox.AlternateDir = os.ExpandEnv(c.Sandbox.AlternateDir)
	c.Sandbox.Project = os.ExpandEnv(c.Sandbox.Project)
	c.Sandbox.Variant = os.ExpandEnv(c.Sandbox.Variant)
	c.Sandbox.Revision = os.ExpandEnv(c.Sandbox.Revision)
	c.Resync.ChangeLog = os.ExpandEnv(c.Resync.ChangeLog)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.TriggerSecretFile = os.ExpandEnv(c.Serve.TriggerSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.SIPath == "" {
		c.Server.SIPath = session.AppSI
	}
	if c.Server.IMPath == "" {
		c.Server.IMPath = session.AppIM
	}
	if c.Sandbox.LineTerminator == "" {
		c.Sandbox.LineTerminator = LineTerminatorNative
	}
	if c.Sandbox.MatchMode == "" {
		c.Sandbox.MatchMode = string(sandbox.MatchIdentity)
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = DefaultListenAddr
	}
	if c.Serve.PollInterval == 0 {
		c.Serve.PollInterval = DefaultPollInterval
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Hostname == "" {
		return fmt.Errorf("server.hostname is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535: %d", c.Server.Port)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative: %s", c.Server.Timeout)
	}
	if _, err := shellquote.Split(c.Server.ExtraArgs); err != nil {
		return fmt.Errorf("server.extra_args cannot be parsed: %w", err)
	}

	if c.Sandbox.Workspace == "" {
		return fmt.Errorf("sandbox.workspace is required")
	}
	if !filepath.IsAbs(c.Sandbox.Workspace) {
		return fmt.Errorf("sandbox.workspace must be an absolute path: %s", c.Sandbox.Workspace)
	}
	if c.Sandbox.Project == "" {
		return fmt.Errorf("sandbox.project is required")
	}
	if c.Sandbox.Variant != "" && c.Sandbox.Revision != "" {
		return fmt.Errorf("sandbox: only one of variant or revision may be set")
	}
	switch c.Sandbox.LineTerminator {
	case LineTerminatorNative, LineTerminatorLF, LineTerminatorCRLF:
		// valid
	default:
		return fmt.Errorf("invalid sandbox.line_terminator: %s (must be native, lf, or crlf)", c.Sandbox.LineTerminator)
	}
	if _, err := sandbox.ParseMatchMode(c.Sandbox.MatchMode); err != nil {
		return fmt.Errorf("sandbox.match_mode: %w", err)
	}

	if c.Resync.ChangeLog == "" {
		return fmt.Errorf("resync.changelog is required")
	}
	if !filepath.IsAbs(c.Resync.ChangeLog) {
		return fmt.Errorf("resync.changelog must be an absolute path: %s", c.Resync.ChangeLog)
	}

	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.TriggerSecretFile == "" {
			return fmt.Errorf("serve.trigger_secret_file is required when serve is enabled")
		}
		if c.Serve.PollInterval < 0 {
			return fmt.Errorf("serve.poll_interval must not be negative: %s", c.Serve.PollInterval)
		}
	}

	return nil
}

// Project returns the configured project as a sandbox project.
func (c *Config) Project() sandbox.Project {
	switch {
	case c.Sandbox.Variant != "":
		return sandbox.VariantProject(c.Sandbox.Project, c.Sandbox.Variant)
	case c.Sandbox.Revision != "":
		return sandbox.BuildProject(c.Sandbox.Project, c.Sandbox.Revision)
	default:
		return sandbox.TrunkProject(c.Sandbox.Project)
	}
}

// MatchMode returns the parsed match mode. Invalid values fall back to
// identity matching; Validate rejects them first.
func (c *Config) MatchMode() sandbox.MatchMode {
	mode, err := sandbox.ParseMatchMode(c.Sandbox.MatchMode)
	if err != nil {
		return sandbox.MatchIdentity
	}
	return mode
}

// CheckoutDir returns the directory the sandbox lives in.
func (c *Config) CheckoutDir() (string, error) {
	if c.Sandbox.ContainAlternateDir {
		return workspace.ResolveContained(c.Sandbox.Workspace, c.Sandbox.AlternateDir)
	}
	return workspace.Resolve(c.Sandbox.Workspace, c.Sandbox.AlternateDir)
}

// ResyncPolicy returns the configured resync policy.
func (c *Config) ResyncPolicy() sandbox.ResyncPolicy {
	return sandbox.ResyncPolicy{
		CleanCopy:        c.Resync.CleanCopy,
		DeleteNonMembers: c.Resync.DeleteNonMembers,
		RestoreTimestamp: c.Resync.RestoreTimestamp,
	}
}

// ShellConfig returns the session configuration for the si and im CLI.
func (c *Config) ShellConfig() (session.ShellConfig, error) {
	extra, err := shellquote.Split(c.Server.ExtraArgs)
	if err != nil {
		return session.ShellConfig{}, fmt.Errorf("failed to parse server.extra_args: %w", err)
	}
	return session.ShellConfig{
		SIPath:       c.Server.SIPath,
		IMPath:       c.Server.IMPath,
		Hostname:     c.Server.Hostname,
		Port:         c.Server.Port,
		User:         c.Server.User,
		PasswordFile: c.Server.PasswordFile,
		ExtraArgs:    extra,
		Timeout:      c.Server.Timeout,
	}, nil
}
