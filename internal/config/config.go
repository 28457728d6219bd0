// Package config loads visedit settings from a YAML file and VISEDIT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Commit  CommitConfig  `yaml:"commit"`
	Browser BrowserConfig `yaml:"browser"`
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// AgentConfig locates the agent endpoint the editor commits to.
type AgentConfig struct {
	URL string `yaml:"url"`
}

type CommitConfig struct {
	TokenBudget    int           `yaml:"token_budget"`
	BaseOverhead   int           `yaml:"base_overhead"`
	RecordOverhead int           `yaml:"record_overhead"`
	Timeout        time.Duration `yaml:"timeout"`
	BatchDelay     time.Duration `yaml:"batch_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type BrowserConfig struct {
	Remote   string `yaml:"remote"`
	Headless *bool  `yaml:"headless"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

// ServerConfig configures `visedit serve`.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ProjectDir     string        `yaml:"project_dir"`
	AgentPath      string        `yaml:"agent_path"`
	AgentArgs      []string      `yaml:"agent_args"`
	PTY            bool          `yaml:"pty"`
	Watch          *bool         `yaml:"watch"`
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// IsHeadless defaults to true.
func (b BrowserConfig) IsHeadless() bool { return b.Headless == nil || *b.Headless }

// WatchEnabled defaults to true.
func (s ServerConfig) WatchEnabled() bool { return s.Watch == nil || *s.Watch }

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// DefaultPath is ~/.visedit/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".visedit", "config.yaml")
}

// Load reads path (a missing file is not an error when optional is true),
// then applies environment overrides and defaults.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		case optional && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(k string, dst *string) {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			*dst = v
		}
	}
	num := func(k string, dst *int) error {
		v := strings.TrimSpace(getenv(k))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = n
		return nil
	}
	dur := func(k string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(k))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = d
		return nil
	}
	flag := func(k string, dst **bool) error {
		v := strings.TrimSpace(getenv(k))
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = &b
		return nil
	}

	str("VISEDIT_AGENT_URL", &c.Agent.URL)
	str("VISEDIT_BROWSER_REMOTE", &c.Browser.Remote)
	str("VISEDIT_SERVER_ADDR", &c.Server.Addr)
	str("VISEDIT_PROJECT_DIR", &c.Server.ProjectDir)
	str("VISEDIT_AGENT_PATH", &c.Server.AgentPath)
	str("VISEDIT_STORE", &c.Store.Path)
	str("VISEDIT_LOG_LEVEL", &c.Log.Level)
	str("VISEDIT_LOG_FILE", &c.Log.File)
	return errors.Join(
		num("VISEDIT_TOKEN_BUDGET", &c.Commit.TokenBudget),
		dur("VISEDIT_COMMIT_TIMEOUT", &c.Commit.Timeout),
		dur("VISEDIT_BATCH_DELAY", &c.Commit.BatchDelay),
		flag("VISEDIT_HEADLESS", &c.Browser.Headless),
		flag("VISEDIT_WATCH", &c.Server.Watch),
	)
}

func (c *Config) applyDefaults() {
	if c.Agent.URL == "" {
		c.Agent.URL = "ws://localhost:9998/ws/message"
	}
	if c.Commit.TokenBudget <= 0 {
		c.Commit.TokenBudget = 6000
	}
	if c.Commit.BaseOverhead <= 0 {
		c.Commit.BaseOverhead = 500
	}
	if c.Commit.RecordOverhead <= 0 {
		c.Commit.RecordOverhead = 200
	}
	if c.Commit.Timeout <= 0 {
		c.Commit.Timeout = 120 * time.Second
	}
	if c.Commit.BatchDelay < 0 {
		c.Commit.BatchDelay = 0
	} else if c.Commit.BatchDelay == 0 {
		c.Commit.BatchDelay = time.Second
	}
	if c.Commit.RequestTimeout <= 0 {
		c.Commit.RequestTimeout = 5 * time.Minute
	}
	if c.Browser.Width <= 0 {
		c.Browser.Width = 1280
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = 800
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "localhost:9998"
	}
	if c.Server.ProjectDir == "" {
		c.Server.ProjectDir = "."
	}
	if c.Server.AgentPath == "" {
		c.Server.AgentPath = "claude"
	}
	if c.Server.ReloadDebounce <= 0 {
		c.Server.ReloadDebounce = 300 * time.Millisecond
	}
	if c.Store.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.Path = filepath.Join(home, ".visedit", "visedit.sqlite")
		} else {
			c.Store.Path = "visedit.sqlite"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
