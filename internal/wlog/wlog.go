// Package wlog is a thin wrapper around logrus, giving the rest of this
// repository's ambient code (build orchestration, the CLI) one place to
// parse a level string and obtain a configured logger, rather than each
// caller touching logrus directly.
package wlog

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing text-formatted entries at level, which must
// be one of "debug", "info", "warn"/"warning", "error" (case-insensitive).
// An empty level defaults to "info".
func New(level string) (*logrus.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l, nil
}

// ParseLevel maps a CLI/config level string onto a logrus.Level.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return logrus.InfoLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("wlog: invalid log level %q", level)
	}
}
