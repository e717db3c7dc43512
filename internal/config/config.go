package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLinkPattern            = `(https?://|www\.)\S*`
	DefaultSpamWindowSeconds      = 10
	DefaultSpamThreshold          = 5
	DefaultTimeoutDurationSeconds = 60
)

// DefaultBannedTerms is the term list used when banned_terms is not set.
// Matching is case-insensitive and by substring.
var DefaultBannedTerms = []string{
	"gand", "land", "teri maa ke gand", "teri maa ke land", "bc",
	"bhosdike", "mc", "chutiya", "madarchod", "harami", "randi", "bkl",
	"lund", "behenchod", "gandu", "randi ka baccha", "saala", "haramkhor",
	"bhanchod",
}

type Config struct {
	Log        LogConfig        `toml:"log"`
	DB         DBConfig         `toml:"database"`
	Moderation ModerationConfig `toml:"moderation"`
	Escalation EscalationConfig `toml:"escalation"`
	Sink       SinkConfig       `toml:"sink"`
	Intake     IntakeConfig     `toml:"intake"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

func (l *LogLevel) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch LogLevel(v) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		*l = LogLevel(v)
		return nil
	default:
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, error)", string(text))
	}
}

func (l LogLevel) String() string { return string(l) }

func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type LogConfig struct {
	Level  LogLevel `toml:"level"`
	Format string   `toml:"format"`
	// ViolationLevels overrides the level violations are logged at, keyed by rule id.
	ViolationLevels map[string]LogLevel `toml:"violation_levels"`
}

type DBConfig struct {
	// Path of the badger directory. Empty keeps the timeout ledger in memory.
	Path string `toml:"path"`
}

type ModerationConfig struct {
	BannedTerms            []string `toml:"banned_terms"`
	BannedPatterns         []string `toml:"banned_patterns"`
	LinkPattern            string   `toml:"link_pattern"`
	SpamWindowSeconds      int      `toml:"spam_window_seconds"`
	SpamThreshold          int      `toml:"spam_threshold"`
	TimeoutDurationSeconds int      `toml:"timeout_duration_seconds"`

	// WarnTTL applies to every rule without an entry in WarnTTLs. Zero keeps
	// the per-rule built-in lifetimes.
	WarnTTL          time.Duration            `toml:"warn_ttl"`
	WarnTTLs         map[string]time.Duration `toml:"warn_ttls"`
	ActionTimeout    time.Duration            `toml:"action_timeout"`
	ExemptIdentities []string                 `toml:"exempt_identities"`
	Warnings         map[string]string        `toml:"warnings"`
}

func (m ModerationConfig) SpamWindow() time.Duration {
	return time.Duration(m.SpamWindowSeconds) * time.Second
}

func (m ModerationConfig) TimeoutDuration() time.Duration {
	return time.Duration(m.TimeoutDurationSeconds) * time.Second
}

type EscalationConfig struct {
	Enabled          bool          `toml:"enabled"`
	MaxStrikes       int           `toml:"max_strikes"`
	StrikeWindow     time.Duration `toml:"strike_window"`
	TimeoutDuration  time.Duration `toml:"timeout_duration"`
	CacheSize        int           `toml:"cache_size"`
	CooldownDuration time.Duration `toml:"cooldown_duration"`
	ExcludeRules     []string      `toml:"exclude_rules"`
}

type SinkKind string

const (
	SinkJSON SinkKind = "json"
	SinkExec SinkKind = "exec"
)

func (k *SinkKind) UnmarshalText(text []byte) error {
	v := SinkKind(strings.ToLower(string(text)))
	switch v {
	case SinkJSON, SinkExec:
		*k = v
		return nil
	default:
		return fmt.Errorf("invalid sink.kind: %q (must be json, exec)", string(text))
	}
}

type SinkConfig struct {
	Kind SinkKind       `toml:"kind"`
	Exec ExecSinkConfig `toml:"exec"`
}

type ExecSinkConfig struct {
	ExecutablePath string        `toml:"executable_path"`
	Rate           float64       `toml:"rate"`
	Burst          int           `toml:"burst"`
	Timeout        time.Duration `toml:"timeout"`
}

type IntakeConfig struct {
	Workers int `toml:"workers"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  InfoLevel,
			Format: "json",
		},
		Moderation: ModerationConfig{
			BannedTerms:            slices.Clone(DefaultBannedTerms),
			LinkPattern:            DefaultLinkPattern,
			SpamWindowSeconds:      DefaultSpamWindowSeconds,
			SpamThreshold:          DefaultSpamThreshold,
			TimeoutDurationSeconds: DefaultTimeoutDurationSeconds,
			ActionTimeout:          10 * time.Second,
		},
		Escalation: EscalationConfig{
			MaxStrikes:       3,
			StrikeWindow:     10 * time.Minute,
			TimeoutDuration:  time.Hour,
			CacheSize:        10000,
			CooldownDuration: time.Minute,
		},
		Sink: SinkConfig{
			Kind: SinkJSON,
			Exec: ExecSinkConfig{
				Rate:    5,
				Burst:   10,
				Timeout: 30 * time.Second,
			},
		},
		Intake: IntakeConfig{
			Workers: 4,
		},
	}
}

// Default returns a validated configuration built only from internal defaults.
func Default() *Config {
	return defaultConfig()
}

func (c *Config) validate() error {
	// --- [log] ---
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	// --- [moderation] ---
	m := c.Moderation
	if m.SpamWindowSeconds <= 0 {
		return errors.New("moderation.spam_window_seconds must be > 0")
	}
	if m.SpamThreshold < 1 {
		return errors.New("moderation.spam_threshold must be >= 1")
	}
	if m.TimeoutDurationSeconds <= 0 {
		return errors.New("moderation.timeout_duration_seconds must be > 0")
	}
	if m.WarnTTL < 0 {
		return errors.New("moderation.warn_ttl must not be a negative duration")
	}
	for rule, ttl := range m.WarnTTLs {
		if ttl < 0 {
			return fmt.Errorf("moderation.warn_ttls.%s must not be a negative duration", rule)
		}
	}
	if m.ActionTimeout < 0 {
		return errors.New("moderation.action_timeout must not be a negative duration")
	}
	if m.LinkPattern != "" {
		if _, err := regexp.Compile(m.LinkPattern); err != nil {
			return fmt.Errorf("moderation.link_pattern is not a valid regexp: %w", err)
		}
	}
	for i, term := range m.BannedTerms {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("moderation.banned_terms[%d] must not be blank", i)
		}
	}
	for i, rx := range m.BannedPatterns {
		if _, err := regexp.Compile(rx); err != nil {
			return fmt.Errorf("moderation.banned_patterns[%d] is not a valid regexp: %w", i, err)
		}
	}

	// --- [escalation] ---
	esc := c.Escalation
	if esc.Enabled {
		if esc.MaxStrikes <= 0 {
			return errors.New("escalation.max_strikes must be > 0")
		}
		if esc.StrikeWindow <= 0 {
			return errors.New("escalation.strike_window must be a positive duration")
		}
		if esc.TimeoutDuration <= 0 {
			return errors.New("escalation.timeout_duration must be a positive duration")
		}
		if esc.CacheSize <= 0 {
			return errors.New("escalation.cache_size must be > 0")
		}
		if esc.CooldownDuration <= 0 {
			return errors.New("escalation.cooldown_duration must be a positive duration")
		}
	}

	// --- [sink] ---
	if c.Sink.Kind == SinkExec {
		ex := c.Sink.Exec
		if ex.ExecutablePath == "" {
			return errors.New("sink.exec.executable_path must be set when sink.kind is exec")
		}
		if ex.Rate <= 0 || ex.Burst <= 0 {
			return errors.New("sink.exec: rate and burst must be > 0")
		}
		if ex.Timeout < 0 {
			return errors.New("sink.exec.timeout must not be a negative duration")
		}
	}

	// --- [intake] ---
	if c.Intake.Workers <= 0 {
		return errors.New("intake.workers must be > 0")
	}

	return nil
}

func Load(path string, useDefaults bool) (*Config, bool, error) {
	cfg := defaultConfig()
	defaultsUsed := false

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if useDefaults {
				defaultsUsed = true
				if err := cfg.validate(); err != nil {
					return nil, true, err
				}
				return cfg, defaultsUsed, nil
			}
			return nil, false, fmt.Errorf("config file not found at %s", path)
		}
		return nil, false, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, defaultsUsed, nil
}
