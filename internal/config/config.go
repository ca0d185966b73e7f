// Package config loads and watches the core's YAML configuration, in the
// style of goclaw's internal/config: secrets come from the environment
// only, never from the config file, and the file is re-read on change via
// fsnotify so long-running processes pick up edits without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// AgentConfig is the agent.* section.
type AgentConfig struct {
	Model    string        `yaml:"model"`
	MaxTurns int           `yaml:"max_turns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ToolPermissions is the allow/deny pair under an agent's tool_permissions.
type ToolPermissions struct {
	Allowed []string `yaml:"allowed"`
	Blocked []string `yaml:"blocked"`
}

// SubAgentConfig is one entry under multi_agent.agents.<name>.
type SubAgentConfig struct {
	Backend         string          `yaml:"backend"` // "claude" | "codex"
	Model           string          `yaml:"model"`
	Tier            int             `yaml:"tier"`
	UseCodeAct      bool            `yaml:"useCodeAct"`
	PersonaFile     string          `yaml:"persona_file"`
	ToolPermissions ToolPermissions `yaml:"tool_permissions"`
}

// MultiAgentConfig is the multi_agent.* section.
type MultiAgentConfig struct {
	Agents map[string]SubAgentConfig `yaml:"agents"`
}

// RolesConfig is the roles.* section: named role definitions plus the
// source→role mapping RoleManager consumes.
type RolesConfig struct {
	Definitions   map[string]RoleDefinition `yaml:"definitions"`
	SourceMapping map[string]string         `yaml:"sourceMapping"`
}

// RoleDefinition mirrors spec.md §3 RoleConfig.
type RoleDefinition struct {
	AllowedTools    []string `yaml:"allowedTools"`
	BlockedTools    []string `yaml:"blockedTools"`
	AllowedPaths    []string `yaml:"allowedPaths"`
	SystemControl   bool     `yaml:"systemControl"`
	SensitiveAccess bool     `yaml:"sensitiveAccess"`
}

// CronEntry is one statically configured schedule.
type CronEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Cron    string `yaml:"cron"`
	Prompt  string `yaml:"prompt"`
	Enabled bool   `yaml:"enabled"`
}

// SessionsConfig resolves Open Question #1: the nearThreshold ratio is a
// configurable knob rather than a hardcoded constant.
type SessionsConfig struct {
	NearThresholdRatio float64 `yaml:"nearThresholdRatio"`
	DefaultContextSize int     `yaml:"defaultContextWindow"`
	IdleTimeout        time.Duration `yaml:"idleTimeout"`
}

// HeartbeatConfig is the heartbeat.* section.
type HeartbeatConfig struct {
	Interval        time.Duration `yaml:"interval"`
	QuietStart      string        `yaml:"quietStart"` // "HH:MM"
	QuietEnd        string        `yaml:"quietEnd"`
	NotifyChannelID string        `yaml:"notifyChannelId"`
}

// DatabaseConfig carries the DSN, which is always sourced from the
// environment per spec.md §6 and goclaw's "secret, never in config" rule.
type DatabaseConfig struct {
	PostgresDSN string `yaml:"-"`
	SQLitePath  string `yaml:"-"`
}

// Config is the root of ~/.mama/config.yaml.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	MultiAgent MultiAgentConfig `yaml:"multi_agent"`
	Roles      RolesConfig      `yaml:"roles"`
	Cron       []CronEntry      `yaml:"cron"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Database   DatabaseConfig   `yaml:"-"`

	path string
}

func defaults() *Config {
	return &Config{
		Agent: AgentConfig{Model: "claude-sonnet-4", MaxTurns: 25, Timeout: 3 * time.Minute},
		Sessions: SessionsConfig{
			NearThresholdRatio: 0.85,
			DefaultContextSize: 200_000,
			IdleTimeout:        30 * time.Minute,
		},
		Heartbeat: HeartbeatConfig{Interval: 15 * time.Minute, QuietStart: "23:00", QuietEnd: "07:00"},
	}
}

// Default returns the same baseline Load starts from, exported for `mama
// init` to marshal as a starter config.yaml.
func Default() *Config {
	return defaults()
}

// Load reads the config file at path, applying defaults for absent
// sections and overlaying environment-sourced secrets. A missing file is
// not an error — mama init writes one on first run, but mama run can
// operate against pure defaults + env.
func Load(path string) (*Config, error) {
	cfg := defaults()
	cfg.path = path

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.Database.PostgresDSN = os.Getenv("MAMA_POSTGRES_DSN")
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = os.Getenv("MAMA_DB_PATH")
	}
	if cfg.Database.SQLitePath == "" {
		home, _ := os.UserHomeDir()
		cfg.Database.SQLitePath = filepath.Join(home, ".mama", "memory.db")
	}
	if v := os.Getenv("MAMA_MODEL"); v != "" {
		cfg.Agent.Model = v
	}

	return cfg, nil
}

// DefaultPath is ~/.mama/config.yaml unless overridden by MAMA_CONFIG.
func DefaultPath() string {
	if v := os.Getenv("MAMA_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".mama", "config.yaml")
}

// Watcher reloads Config from disk whenever its backing file changes,
// grounded on goclaw's fsnotify-based rule-cache invalidation idiom
// (internal/promptctx does not watch files; its AGENTS.md cache expires
// on a 60s TTL instead).
type Watcher struct {
	mu      sync.RWMutex
	current *Config
	watcher *fsnotify.Watcher
	onLoad  func(*Config)
}

// NewWatcher loads the config once and starts watching its directory.
func NewWatcher(path string, onLoad func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start config watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err == nil {
		_ = fw.Add(dir)
	}
	w := &Watcher{current: cfg, watcher: fw, onLoad: onLoad}
	go w.loop(path)
	return w, nil
}

func (w *Watcher) loop(path string) {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				continue
			}
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			if w.onLoad != nil {
				w.onLoad(cfg)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
