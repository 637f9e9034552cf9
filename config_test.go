package nasc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets the NASC_* variables for the duration of the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAllowOverriding, EnvAllowCircularReferences, EnvAllowRawInjection, EnvLogLevel} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Environment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(EnvAllowOverriding, "true")
	t.Setenv(EnvAllowCircularReferences, "false")
	t.Setenv(EnvLogLevel, " WARN ")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.AllowDefinitionOverriding)
	assert.False(t, cfg.AllowCircularReferences)
	assert.False(t, cfg.AllowRawInjectionDespiteWrapping)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(EnvLogLevel, "error")

	path := filepath.Join(t.TempDir(), "nasc.env")
	content := "NASC_ALLOW_OVERRIDING=true\nNASC_ALLOW_RAW_INJECTION=1\nNASC_LOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.AllowDefinitionOverriding)
	assert.True(t, cfg.AllowRawInjectionDespiteWrapping)
	assert.Equal(t, "error", cfg.LogLevel, "environment wins over the file")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "boolean", key: EnvAllowCircularReferences, value: "sometimes"},
		{name: "log level", key: EnvLogLevel, value: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{raw: "trace", want: zerolog.TraceLevel, ok: true},
		{raw: "Debug", want: zerolog.DebugLevel, ok: true},
		{raw: "info", want: zerolog.InfoLevel, ok: true},
		{raw: "warning", want: zerolog.WarnLevel, ok: true},
		{raw: "error", want: zerolog.ErrorLevel, ok: true},
		{raw: "off", want: zerolog.Disabled, ok: true},
		{raw: "", want: zerolog.NoLevel, ok: false},
		{raw: "verbose", want: zerolog.NoLevel, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseLevel(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBool(t *testing.T) {
	v, ok := parseBool(" TRUE ")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = parseBool("0")
	assert.True(t, ok)
	assert.False(t, v)

	_, ok = parseBool("")
	assert.False(t, ok)
	_, ok = parseBool("maybe")
	assert.False(t, ok)
}

func TestWithConfig(t *testing.T) {
	n := newTestFactory(t, WithConfig(Config{
		AllowDefinitionOverriding:        true,
		AllowCircularReferences:          false,
		AllowRawInjectionDespiteWrapping: true,
		LogLevel:                         "error",
	}))

	assert.True(t, n.defs.AllowOverriding())
	assert.False(t, n.allowCircularReferences)
	assert.True(t, n.allowRawInjection)
	assert.Equal(t, zerolog.ErrorLevel, n.log.GetLevel())
}
