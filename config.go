package nasc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Environment variables read by LoadConfig.
const (
	EnvAllowOverriding         = "NASC_ALLOW_OVERRIDING"
	EnvAllowCircularReferences = "NASC_ALLOW_CIRCULAR_REFERENCES"
	EnvAllowRawInjection       = "NASC_ALLOW_RAW_INJECTION"
	EnvLogLevel                = "NASC_LOG_LEVEL"
)

// Config holds the factory-wide switches.
type Config struct {
	// AllowDefinitionOverriding lets a registration replace an existing
	// definition of the same name.
	AllowDefinitionOverriding bool
	// AllowCircularReferences exposes singletons early so that reference
	// cycles between singletons resolve.
	AllowCircularReferences bool
	// AllowRawInjectionDespiteWrapping accepts that a bean wrapped by a
	// post-processor was injected into others in its raw form.
	AllowRawInjectionDespiteWrapping bool
	// LogLevel filters the factory's logger ("trace", "debug", "info", ...).
	// Empty keeps the logger's own level.
	LogLevel string
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		AllowDefinitionOverriding: false,
		AllowCircularReferences:   true,
	}
}

// LoadConfig starts from DefaultConfig, loads the given .env files (".env"
// when none are given) and applies the NASC_* environment variables.
// Missing files are skipped. Variables already set in the environment win
// over values from the files.
func LoadConfig(envFiles ...string) (Config, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{EnvAllowOverriding, &cfg.AllowDefinitionOverriding},
		{EnvAllowCircularReferences, &cfg.AllowCircularReferences},
		{EnvAllowRawInjection, &cfg.AllowRawInjectionDespiteWrapping},
	} {
		raw := os.Getenv(b.key)
		v, ok := parseBool(raw)
		if !ok {
			if strings.TrimSpace(raw) != "" {
				return Config{}, fmt.Errorf("invalid boolean %q for %s", raw, b.key)
			}
			continue
		}
		*b.dst = v
	}

	if raw := os.Getenv(EnvLogLevel); strings.TrimSpace(raw) != "" {
		if _, ok := parseLevel(raw); !ok {
			return Config{}, fmt.Errorf("invalid log level %q for %s", raw, EnvLogLevel)
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw))
	}
	return cfg, nil
}

func (n *Nasc) applyConfig(cfg Config) {
	n.defs.SetAllowOverriding(cfg.AllowDefinitionOverriding)
	n.allowCircularReferences = cfg.AllowCircularReferences
	n.allowRawInjection = cfg.AllowRawInjectionDespiteWrapping
	if lvl, ok := parseLevel(cfg.LogLevel); ok {
		n.level = lvl
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.NoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.NoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
