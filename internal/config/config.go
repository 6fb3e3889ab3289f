// Package config loads layered configuration: built-in defaults, a YAML
// file, FLIPSTACK_ environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/flipstack/internal/domain"
	"github.com/conorfennell/flipstack/internal/leitner"
)

// EnvPrefix marks environment variables read as configuration. A double
// underscore separates nesting levels: FLIPSTACK_SERVER__ADDR → server.addr.
const EnvPrefix = "FLIPSTACK_"

type Config struct {
	DataDir   string          `koanf:"data_dir" validate:"required"`
	Settings  domain.Settings `koanf:"settings"`
	Scheduler Scheduler       `koanf:"scheduler"`
	Server    Server          `koanf:"server"`
	Backup    Backup          `koanf:"backup"`
	Inbox     Inbox           `koanf:"inbox"`
	Log       Log             `koanf:"log"`
}

type Scheduler struct {
	LeechThreshold  int `koanf:"leech_threshold" validate:"gte=1"`
	MaxIntervalDays int `koanf:"max_interval_days" validate:"gte=0"`
}

// Params converts the scheduler section to leitner parameters.
func (s Scheduler) Params() *leitner.Params {
	return &leitner.Params{LeechThreshold: s.LeechThreshold, MaxIntervalDays: s.MaxIntervalDays}
}

type Server struct {
	Addr string `koanf:"addr" validate:"required,hostname_port"`
}

type Backup struct {
	// Schedule is a daily HH:MM time; empty disables scheduled backups.
	Schedule   string `koanf:"schedule" validate:"omitempty,datetime=15:04"`
	Keep       int    `koanf:"keep" validate:"gte=0"`
	Passphrase string `koanf:"passphrase"`
}

type Inbox struct {
	// Dir is watched while serving; empty disables the inbox.
	Dir string `koanf:"dir"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"data-dir":          "data_dir",
	"addr":              "server.addr",
	"leech-threshold":   "scheduler.leech_threshold",
	"max-interval-days": "scheduler.max_interval_days",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// RegisterFlags adds the global configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file (default $XDG_CONFIG_HOME/flipstack/config.yaml)")
	fs.String("data-dir", "", "directory holding decks and study history")
	fs.String("addr", "", "listen address for serve")
	fs.Int("leech-threshold", 0, "consecutive misses before a card is suspended")
	fs.Int("max-interval-days", 0, "cap on review intervals in days (0 = uncapped)")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: text or json")
}

func defaults() map[string]any {
	s := domain.DefaultSettings()
	return map[string]any{
		"data_dir":                    defaultDataDir(),
		"settings.sound_enabled":      s.SoundEnabled,
		"settings.theme":              s.Theme,
		"settings.font_family":        s.FontFamily,
		"settings.font_size":          s.FontSize,
		"scheduler.leech_threshold":   leitner.DefaultLeechThreshold,
		"scheduler.max_interval_days": 0,
		"server.addr":                 "127.0.0.1:8765",
		"backup.schedule":             "",
		"backup.keep":                 10,
		"backup.passphrase":           "",
		"inbox.dir":                   "",
		"log.level":                   "info",
		"log.format":                  "text",
	}
}

// Load builds the configuration. flags must have been set up with
// RegisterFlags and parsed; it may be nil to skip flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	path, explicit := configPath(flags)
	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Inbox.Dir = expandHome(cfg.Inbox.Dir)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field constraint.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func configPath(flags *pflag.FlagSet) (string, bool) {
	if flags != nil {
		if p, err := flags.GetString("config"); err == nil && p != "" {
			return p, true
		}
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p, true
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, "flipstack", "config.yaml"), false
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "flipstack")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "flipstack-data"
	}
	return filepath.Join(home, ".local", "share", "flipstack")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
