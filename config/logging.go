package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// SetupLogging applies the log level and format to the global logrus logger.
// verbose forces debug level.
func SetupLogging(cfg LogConfig, verbose bool, out io.Writer) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	if out != nil {
		logrus.SetOutput(out)
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}

// LogSettings dumps every resolved setting at debug level.
func LogSettings(v *viper.Viper) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	if file := v.ConfigFileUsed(); file != "" {
		logrus.WithField("file", file).Debug("Loaded config file")
	}
	for _, key := range v.AllKeys() {
		logrus.Debugf("Config '%s': %v", key, v.Get(key))
	}
}
