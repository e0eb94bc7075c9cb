package wlog_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/internal/wlog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"":        logrus.InfoLevel,
		"info":    logrus.InfoLevel,
		"DEBUG":   logrus.DebugLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
	}
	for in, want := range cases {
		got, err := wlog.ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	_, err := wlog.ParseLevel("verbose")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	l, err := wlog.New("debug")
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, l.GetLevel())
}
