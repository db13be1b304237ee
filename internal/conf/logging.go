package conf

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

type LoggingConfig struct {
	Level  string            `mapstructure:"log_level" json:"log_level"`
	File   string            `mapstructure:"log_file" json:"log_file"`
	Format string            `json:"log_format" default:"text"`
	Fields map[string]string `mapstructure:"fields" json:"fields"`
}

func (lc *LoggingConfig) Validate() error {
	if lc.Level != "" {
		if _, err := logrus.ParseLevel(lc.Level); err != nil {
			return fmt.Errorf("conf: invalid log level %q: %w", lc.Level, err)
		}
	}
	switch lc.Format {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("conf: unsupported log format %q", lc.Format)
	}
}
