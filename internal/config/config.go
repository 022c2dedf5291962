// Package config loads kscope settings.
//
// Sources, highest priority first:
//   - command-line flags bound with BindFlags
//   - KSCOPE_* environment variables (nested keys use "_", e.g. KSCOPE_LOG_LEVEL)
//   - the YAML file given with --config, or $XDG_CONFIG_HOME/kscope/config.yaml
//   - built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/renato0307/kscope/internal/logging"
)

const envPrefix = "KSCOPE"

// Config holds every tunable of the engine and the CLI
type Config struct {
	PollInterval       time.Duration
	TickInterval       time.Duration
	RequestTimeout     time.Duration
	ConnectTimeout     time.Duration
	MetricsStaleFactor int

	LogBufferLines  int
	LogTailLines    int64
	DocumentHistory int

	Kubeconfig      string
	Context         string
	Namespace       string
	Glob            string
	PollCustomKinds bool

	// MetricsAddr serves Prometheus metrics when set, e.g. "127.0.0.1:9090"
	MetricsAddr string
	Theme       string

	Log logging.Config
}

// Loader reads Config from viper
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a loader with defaults and environment bindings set up.
// An empty configFile falls back to the XDG location; a missing default file
// is not an error.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return &Loader{v: v, configFile: configFile}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("poll-interval", d.PollInterval)
	v.SetDefault("tick-interval", d.TickInterval)
	v.SetDefault("request-timeout", d.RequestTimeout)
	v.SetDefault("connect-timeout", d.ConnectTimeout)
	v.SetDefault("metrics-stale-factor", d.MetricsStaleFactor)
	v.SetDefault("log-buffer-lines", d.LogBufferLines)
	v.SetDefault("log-tail-lines", d.LogTailLines)
	v.SetDefault("document-history", d.DocumentHistory)
	v.SetDefault("kubeconfig", d.Kubeconfig)
	v.SetDefault("context", d.Context)
	v.SetDefault("namespace", d.Namespace)
	v.SetDefault("glob", d.Glob)
	v.SetDefault("poll-custom-kinds", d.PollCustomKinds)
	v.SetDefault("metrics-addr", d.MetricsAddr)
	v.SetDefault("theme", d.Theme)
	v.SetDefault("log.file", d.Log.FilePath)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(d.Log.Format))
	v.SetDefault("log.max-size-mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max-backups", d.Log.MaxBackups)
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		PollInterval:       5 * time.Second,
		TickInterval:       250 * time.Millisecond,
		RequestTimeout:     10 * time.Second,
		ConnectTimeout:     5 * time.Second,
		MetricsStaleFactor: 3,
		LogBufferLines:     2000,
		LogTailLines:       10,
		DocumentHistory:    16,
		Theme:              "charm",
		Log: logging.Config{
			Format:     logging.FormatText,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// flagKeys maps flag names that differ from their config key
var flagKeys = map[string]string{
	"log-file":   "log.file",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// BindFlags makes command-line flags override every other source. Flag names
// match the config keys except for the log block (see flagKeys).
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || f.Name == "version" {
			return
		}
		key := f.Name
		if k, ok := flagKeys[key]; ok {
			key = k
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// Load reads the config file, if any, and returns the merged settings
func (l *Loader) Load() (Config, error) {
	if err := l.readFile(); err != nil {
		return Config{}, err
	}

	v := l.v
	cfg := Config{
		PollInterval:       v.GetDuration("poll-interval"),
		TickInterval:       v.GetDuration("tick-interval"),
		RequestTimeout:     v.GetDuration("request-timeout"),
		ConnectTimeout:     v.GetDuration("connect-timeout"),
		MetricsStaleFactor: v.GetInt("metrics-stale-factor"),
		LogBufferLines:     v.GetInt("log-buffer-lines"),
		LogTailLines:       v.GetInt64("log-tail-lines"),
		DocumentHistory:    v.GetInt("document-history"),
		Kubeconfig:         v.GetString("kubeconfig"),
		Context:            v.GetString("context"),
		Namespace:          v.GetString("namespace"),
		Glob:               v.GetString("glob"),
		PollCustomKinds:    v.GetBool("poll-custom-kinds"),
		MetricsAddr:        v.GetString("metrics-addr"),
		Theme:              v.GetString("theme"),
		Log: logging.Config{
			FilePath:   v.GetString("log.file"),
			Level:      logging.ParseLevel(v.GetString("log.level")),
			Format:     logging.ParseFormat(v.GetString("log.format")),
			MaxSizeMB:  v.GetInt("log.max-size-mb"),
			MaxBackups: v.GetInt("log.max-backups"),
		},
	}
	return cfg, nil
}

func (l *Loader) readFile() error {
	path := l.configFile
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return nil
		}
	}

	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && (errors.As(err, &notFound) || os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/kscope/config.yaml, falling back to
// ~/.config
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "kscope", "config.yaml")
}
