package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/tally/internal/debounce"
	"github.com/roach88/tally/internal/recurrence"
	"github.com/roach88/tally/internal/syncer"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "TALLY"
)

// Config keys.
const (
	cfgDBPath        = "db_path"
	cfgUserID        = "user_id"
	cfgDeviceID      = "device_id"
	cfgDebounce      = "debounce"
	cfgUploadTimeout = "upload_timeout"
	cfgRemoteKind    = "remote.kind"
	cfgRemoteURL     = "remote.url"
	cfgRemoteToken   = "remote.token"
	cfgRemoteDir     = "remote.dir"
	cfgMaxPerSource  = "recurrence.max_per_source"
	cfgLogFile       = "log_file"
	cfgLogLevel      = "log_level"
)

// Remote kinds.
const (
	RemoteNone   = "none"
	RemoteHTTP   = "http"
	RemoteDir    = "dir"
	RemoteMemory = "memory"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# tally configuration
# Every key can be overridden with a TALLY_ environment variable,
# e.g. TALLY_USER_ID or TALLY_REMOTE_URL.

# Local database (defaults to tally.db next to this file)
# db_path:

# Account the local data belongs to; required for syncing.
# user_id:

# Identifies this replica in uploaded snapshots (defaults to the hostname).
# device_id:

# Quiet period after the last local change before uploading.
debounce: 5s

# Upper bound on one upload.
upload_timeout: 30s

remote:
  # none | http | dir | memory
  kind: none
  # url: https://sync.example.com
  # token:
  # dir: /path/to/shared/folder

recurrence:
  max_per_source: 5000

# log_file: /var/log/tally.log
log_level: info
`

// Validation errors.
var (
	ErrMissingUserID     = errors.New("user_id is required")
	ErrMissingDBPath     = errors.New("db_path is required")
	ErrInvalidDebounce   = errors.New("debounce must be positive")
	ErrInvalidTimeout    = errors.New("upload_timeout must be positive")
	ErrInvalidRemoteKind = errors.New("remote.kind must be one of none, http, dir, memory")
	ErrMissingRemoteURL  = errors.New("remote.url is required for the http remote")
	ErrMissingRemoteDir  = errors.New("remote.dir is required for the dir remote")
	ErrInvalidMaxPerRun  = errors.New("recurrence.max_per_source must be positive")
	ErrInvalidLogLevel   = errors.New("log_level must be one of debug, info, warn, error")
	ErrRemoteDisabled    = errors.New("no remote configured (remote.kind is none)")
)

// RemoteConfig selects and addresses the remote store.
type RemoteConfig struct {
	Kind  string `mapstructure:"kind"`
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
	Dir   string `mapstructure:"dir"`
}

// RecurrenceConfig tunes the recurrence engine.
type RecurrenceConfig struct {
	MaxPerSource int `mapstructure:"max_per_source"`
}

// Config is the resolved configuration for one command invocation.
type Config struct {
	DBPath        string           `mapstructure:"db_path"`
	UserID        string           `mapstructure:"user_id"`
	DeviceID      string           `mapstructure:"device_id"`
	Debounce      time.Duration    `mapstructure:"debounce"`
	UploadTimeout time.Duration    `mapstructure:"upload_timeout"`
	Remote        RemoteConfig     `mapstructure:"remote"`
	Recurrence    RecurrenceConfig `mapstructure:"recurrence"`
	LogFile       string           `mapstructure:"log_file"`
	LogLevel      string           `mapstructure:"log_level"`
}

// Validate checks the configuration. user_id is checked separately by the
// commands that sync, see RequireUser.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return ErrMissingDBPath
	}
	if c.Debounce <= 0 {
		return ErrInvalidDebounce
	}
	if c.UploadTimeout <= 0 {
		return ErrInvalidTimeout
	}
	switch c.Remote.Kind {
	case RemoteNone, RemoteMemory:
	case RemoteHTTP:
		if c.Remote.URL == "" {
			return ErrMissingRemoteURL
		}
	case RemoteDir:
		if c.Remote.Dir == "" {
			return ErrMissingRemoteDir
		}
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidRemoteKind, c.Remote.Kind)
	}
	if c.Recurrence.MaxPerSource <= 0 {
		return ErrInvalidMaxPerRun
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// RequireUser reports ErrMissingUserID when no user is configured.
func (c *Config) RequireUser() error {
	if c.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}

// defaultConfigDir is $XDG_CONFIG_HOME/tally or the platform equivalent.
func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".tally"
	}
	return filepath.Join(dir, "tally")
}

// flagBindings maps config keys to the root flags that override them.
var flagBindings = map[string]string{
	cfgDBPath:   "db",
	cfgUserID:   "user",
	cfgDeviceID: "device",
	cfgLogFile:  "log-file",
}

// LoadConfig resolves configuration from defaults, config.yaml in
// configDir, TALLY_* environment variables and flags set on cmd, in
// increasing precedence. A default config.yaml is written on first run.
func LoadConfig(configDir string, cmd *cobra.Command) (*Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgDBPath, filepath.Join(configDir, "tally.db"))
	v.SetDefault(cfgUserID, "")
	v.SetDefault(cfgDeviceID, "")
	v.SetDefault(cfgDebounce, debounce.DefaultQuietPeriod)
	v.SetDefault(cfgUploadTimeout, syncer.DefaultUploadTimeout)
	v.SetDefault(cfgRemoteKind, RemoteNone)
	v.SetDefault(cfgRemoteURL, "")
	v.SetDefault(cfgRemoteToken, "")
	v.SetDefault(cfgRemoteDir, "")
	v.SetDefault(cfgMaxPerSource, recurrence.DefaultMaxPerSource)
	v.SetDefault(cfgLogFile, "")
	v.SetDefault(cfgLogLevel, "info")

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for key, name := range flagBindings {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.DeviceID = host
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ensureDefaultConfigFile writes the default config.yaml if none exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
