package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-nfc-writer/session"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 18080, cfg.Server.Port)
	assert.True(t, cfg.Server.MDNS)
	assert.Equal(t, session.DefaultTimeout, cfg.Session.Timeout)
	assert.Equal(t, session.DefaultPollInterval, cfg.Session.PollInterval)
	assert.Equal(t, "https://javios.eu/portfolio/", cfg.Write.URL)
	assert.Equal(t, "nfcreader://jca.nfcreader.open", cfg.Write.Deeplink)
	assert.Equal(t, "en", cfg.Write.Language)
	assert.Equal(t, "nfcreader", cfg.Deeplink.Scheme)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Server.TLS)
	assert.NoError(t, cfg.Validate())
}

func TestResolvedCertsDir(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DataDir(), cfg.ResolvedCertsDir())

	cfg.Server.CertsDir = "/var/lib/nfc"
	assert.Equal(t, "/var/lib/nfc", cfg.ResolvedCertsDir())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
device: "pn532_uart:/dev/ttyUSB0"
server:
  port: 9000
  mdns: false
session:
  timeout: 15s
  poll_interval: 100ms
write:
  url: "https://example.com/tag"
log:
  level: debug
  format: json
`)

	cfg, v, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, v.ConfigFileUsed())
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "pn532_uart:/dev/ttyUSB0", cfg.Device)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Server.MDNS)
	assert.Equal(t, 15*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.PollInterval)
	assert.Equal(t, "https://example.com/tag", cfg.Write.URL)
	// Unset keys keep their defaults
	assert.Equal(t, "nfcreader://jca.nfcreader.open", cfg.Write.Deeplink)
	assert.Equal(t, "json", cfg.Log.Format)

	opts := cfg.SessionOptions()
	assert.Equal(t, 15*time.Second, opts.Timeout)
	ctrl := cfg.ControllerConfig()
	assert.Equal(t, "https://example.com/tag", ctrl.WriteURL)
	assert.Equal(t, "en", ctrl.Language)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("NFCWRITER_SERVER_PORT", "9100")
	t.Setenv("NFCWRITER_WRITE_DEEPLINK", "nfcreader://other.action")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "nfcreader://other.action", cfg.Write.Deeplink)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [port\n")
	_, _, err := Load(path)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"timeout", func(c *Config) { c.Session.Timeout = -time.Second }},
		{"poll interval", func(c *Config) { c.Session.PollInterval = -time.Second }},
		{"language", func(c *Config) { c.Write.Language = string(make([]byte, 64)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSearchPaths(t *testing.T) {
	paths := SearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, "/etc/davi-nfc-writer")
}

func TestSetupLogging(t *testing.T) {
	oldLevel, oldFormatter, oldOut := logrus.GetLevel(), logrus.StandardLogger().Formatter, logrus.StandardLogger().Out
	t.Cleanup(func() {
		logrus.SetLevel(oldLevel)
		logrus.SetFormatter(oldFormatter)
		logrus.SetOutput(oldOut)
	})

	var buf bytes.Buffer
	require.NoError(t, SetupLogging(LogConfig{Level: "warn", Format: "json"}, false, &buf))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	logrus.Warn("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	require.NoError(t, SetupLogging(LogConfig{Level: "warn", Format: "text"}, true, &buf))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	assert.Error(t, SetupLogging(LogConfig{Level: "loud"}, false, nil))
	assert.Error(t, SetupLogging(LogConfig{Level: "info", Format: "xml"}, false, nil))
}
