package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultListenAddress  = "127.0.0.1:17717"
	defaultCommandTimeout = 5 * time.Second
	defaultHistoryLimit   = 500
)

// Setting names. They are also the keys of the configuration file and of the
// legacy data.json file.
const (
	KeyDefaultIM               = "defaultIM"
	KeyDefaultInsertIM         = "defaultInsertIM"
	KeyDefaultVisualIM         = "defaultVisualIM"
	KeyDefaultReplaceIM        = "defaultReplaceIM"
	KeyObtainCmd               = "obtainCmd"
	KeySwitchCmd               = "switchCmd"
	KeyWindowsDefaultIM        = "windowsDefaultIM"
	KeyWindowsDefaultInsertIM  = "windowsDefaultInsertIM"
	KeyWindowsDefaultVisualIM  = "windowsDefaultVisualIM"
	KeyWindowsDefaultReplaceIM = "windowsDefaultReplaceIM"
	KeyWindowsObtainCmd        = "windowsObtainCmd"
	KeyWindowsSwitchCmd        = "windowsSwitchCmd"
)

var keys = []string{
	KeyDefaultIM,
	KeyDefaultInsertIM,
	KeyDefaultVisualIM,
	KeyDefaultReplaceIM,
	KeyObtainCmd,
	KeySwitchCmd,
	KeyWindowsDefaultIM,
	KeyWindowsDefaultInsertIM,
	KeyWindowsDefaultVisualIM,
	KeyWindowsDefaultReplaceIM,
	KeyWindowsObtainCmd,
	KeyWindowsSwitchCmd,
}

var ErrUnknownKey = errors.New("unknown setting")

// Config is the flat settings record. Empty strings mean unset.
type Config struct {
	DefaultIM               string `toml:"defaultIM"`
	DefaultInsertIM         string `toml:"defaultInsertIM"`
	DefaultVisualIM         string `toml:"defaultVisualIM"`
	DefaultReplaceIM        string `toml:"defaultReplaceIM"`
	ObtainCmd               string `toml:"obtainCmd"`
	SwitchCmd               string `toml:"switchCmd"`
	WindowsDefaultIM        string `toml:"windowsDefaultIM"`
	WindowsDefaultInsertIM  string `toml:"windowsDefaultInsertIM"`
	WindowsDefaultVisualIM  string `toml:"windowsDefaultVisualIM"`
	WindowsDefaultReplaceIM string `toml:"windowsDefaultReplaceIM"`
	WindowsObtainCmd        string `toml:"windowsObtainCmd"`
	WindowsSwitchCmd        string `toml:"windowsSwitchCmd"`

	Daemon DaemonConfig `toml:"daemon"`
}

type DaemonConfig struct {
	Listen           string `toml:"listen"`
	NvimAddress      string `toml:"nvim_address"`
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	StateDB          string `toml:"state_db"`
	CommandTimeoutMS int    `toml:"command_timeout_ms"`
	RestoreCache     bool   `toml:"restore_cache"`
	HistoryLimit     int    `toml:"history_limit"`
}

// Profile is the part of the configuration that applies to one platform.
type Profile struct {
	DefaultIM string
	InsertIM  string
	VisualIM  string
	ReplaceIM string
	ObtainCmd string
	SwitchCmd string
}

func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			Listen:           defaultListenAddress,
			LogLevel:         "trace",
			CommandTimeoutMS: int(defaultCommandTimeout / time.Millisecond),
			HistoryLimit:     defaultHistoryLimit,
		},
	}
}

// Keys returns the setting names in display order.
func Keys() []string {
	return append([]string{}, keys...)
}

func (c Config) Profile(windows bool) Profile {
	if windows {
		return Profile{
			DefaultIM: c.WindowsDefaultIM,
			InsertIM:  c.WindowsDefaultInsertIM,
			VisualIM:  c.WindowsDefaultVisualIM,
			ReplaceIM: c.WindowsDefaultReplaceIM,
			ObtainCmd: c.WindowsObtainCmd,
			SwitchCmd: c.WindowsSwitchCmd,
		}
	}
	return Profile{
		DefaultIM: c.DefaultIM,
		InsertIM:  c.DefaultInsertIM,
		VisualIM:  c.DefaultVisualIM,
		ReplaceIM: c.DefaultReplaceIM,
		ObtainCmd: c.ObtainCmd,
		SwitchCmd: c.SwitchCmd,
	}
}

func (c *Config) field(key string) *string {
	switch key {
	case KeyDefaultIM:
		return &c.DefaultIM
	case KeyDefaultInsertIM:
		return &c.DefaultInsertIM
	case KeyDefaultVisualIM:
		return &c.DefaultVisualIM
	case KeyDefaultReplaceIM:
		return &c.DefaultReplaceIM
	case KeyObtainCmd:
		return &c.ObtainCmd
	case KeySwitchCmd:
		return &c.SwitchCmd
	case KeyWindowsDefaultIM:
		return &c.WindowsDefaultIM
	case KeyWindowsDefaultInsertIM:
		return &c.WindowsDefaultInsertIM
	case KeyWindowsDefaultVisualIM:
		return &c.WindowsDefaultVisualIM
	case KeyWindowsDefaultReplaceIM:
		return &c.WindowsDefaultReplaceIM
	case KeyWindowsObtainCmd:
		return &c.WindowsObtainCmd
	case KeyWindowsSwitchCmd:
		return &c.WindowsSwitchCmd
	}
	return nil
}

func (c Config) Get(key string) (string, error) {
	ptr := c.field(key)
	if ptr == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return *ptr, nil
}

// Set changes one setting. The value is stored as is, an empty value unsets it.
func (c *Config) Set(key, value string) error {
	ptr := c.field(key)
	if ptr == nil {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	*ptr = value
	return nil
}

func (c Config) ListenAddress() string {
	addr := strings.TrimSpace(c.Daemon.Listen)
	if addr == "" {
		return defaultListenAddress
	}
	return addr
}

func (c Config) CommandTimeout() time.Duration {
	if c.Daemon.CommandTimeoutMS <= 0 {
		return defaultCommandTimeout
	}
	return time.Duration(c.Daemon.CommandTimeoutMS) * time.Millisecond
}

func (c Config) HistoryLimit() int {
	if c.Daemon.HistoryLimit <= 0 {
		return defaultHistoryLimit
	}
	return c.Daemon.HistoryLimit
}

func (c Config) StateDBPath() (string, error) {
	path := strings.TrimSpace(c.Daemon.StateDB)
	if path == "" {
		return DefaultStatePath()
	}
	return expandHome(path)
}

// Load reads the configuration at path. A missing or empty file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path through a temporary file so readers never see a
// half written file.
func Save(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
