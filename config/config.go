// Package config loads application settings with viper and configures
// logging. Values come from defaults, config.yaml, a .env file, and
// NFCWRITER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/nedpals/davi-nfc-writer/buildinfo"
	"github.com/nedpals/davi-nfc-writer/deeplink"
	"github.com/nedpals/davi-nfc-writer/session"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "NFCWRITER"

// Config is the full application configuration.
type Config struct {
	Device   string         `mapstructure:"device"`
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Write    WriteConfig    `mapstructure:"write"`
	Deeplink DeeplinkConfig `mapstructure:"deeplink"`
	Log      LogConfig      `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	Port int  `mapstructure:"port"`
	MDNS bool `mapstructure:"mdns"`
	// TLS serves the form over HTTPS with a locally trusted certificate.
	TLS bool `mapstructure:"tls"`
	// CertsDir holds the CA and server certificate. Empty uses DataDir().
	CertsDir string `mapstructure:"certs_dir"`
}

type SessionConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// WriteConfig holds the fixed values written by the URL and deeplink operations.
type WriteConfig struct {
	URL      string `mapstructure:"url"`
	Deeplink string `mapstructure:"deeplink"`
	Language string `mapstructure:"language"`
}

type DeeplinkConfig struct {
	Scheme string `mapstructure:"scheme"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SessionOptions converts the session settings for session.NewDeviceStarter.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		PollInterval: c.Session.PollInterval,
		Timeout:      c.Session.Timeout,
	}
}

// ControllerConfig converts the write settings for session.NewController.
func (c *Config) ControllerConfig() session.Config {
	return session.Config{
		WriteURL:    c.Write.URL,
		DeeplinkURL: c.Write.Deeplink,
		Language:    c.Write.Language,
	}
}

// DataDir is where generated files such as certificates are kept.
func DataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, buildinfo.DirName)
	}
	return filepath.Join(os.TempDir(), buildinfo.DirName)
}

// ResolvedCertsDir returns server.certs_dir, or DataDir() when unset.
func (c *Config) ResolvedCertsDir() string {
	if c.Server.CertsDir != "" {
		return c.Server.CertsDir
	}
	return DataDir()
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("error unmarshaling default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from configFile, or from the standard search
// paths when configFile is empty. A missing config file is not an error.
func Load(configFile string) (*Config, *viper.Viper, error) {
	loadEnvFile()

	v := viper.New()
	setupViper(v, configFile)

	cfg, err := readAndUnmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Unmarshal decodes v again, picking up flags bound after Load.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}

func loadEnvFile() {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file")
	}
}

// SearchPaths lists the directories searched for config.yaml.
func SearchPaths() []string {
	paths := []string{".", "./config"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", buildinfo.DirName))
	}
	return append(paths, filepath.Join("/etc", buildinfo.DirName))
}

func setupViper(v *viper.Viper, configFile string) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range SearchPaths() {
		v.AddConfigPath(p)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func readAndUnmarshal(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only
	}
	return Unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device", "")

	v.SetDefault("server.port", 18080)
	v.SetDefault("server.mdns", true)
	v.SetDefault("server.tls", false)
	v.SetDefault("server.certs_dir", "")

	v.SetDefault("session.timeout", session.DefaultTimeout)
	v.SetDefault("session.poll_interval", session.DefaultPollInterval)

	v.SetDefault("write.url", session.DefaultWriteURL)
	v.SetDefault("write.deeplink", session.DefaultDeeplinkURL)
	v.SetDefault("write.language", "en")

	v.SetDefault("deeplink.scheme", deeplink.DefaultScheme)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Session.Timeout < 0 {
		return fmt.Errorf("session.timeout must not be negative")
	}
	if c.Session.PollInterval < 0 {
		return fmt.Errorf("session.poll_interval must not be negative")
	}
	if len(c.Write.Language) > 0x3F {
		return fmt.Errorf("write.language %q is too long", c.Write.Language)
	}
	return nil
}
