package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
		ok    bool
	}{
		{"ERROR", LevelError, true},
		{"warn", LevelWarn, true},
		{" Debug ", LevelDebug, true},
		{"TRACE", LevelTrace, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestWithPrefixSharesLevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger("TEST")
	root.SetOutput(&buf)
	child := root.WithPrefix("child")

	child.Debug("hidden %d", 1)
	require.Empty(t, buf.String())

	root.SetLevel(LevelDebug)
	require.Equal(t, LevelDebug, child.Level())

	child.Debug("shown %d", 2)
	require.Contains(t, buf.String(), "[DEBUG] child: shown 2")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("TEST").WithPrefix("filter")
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Info("info")
	l.Trace("trace")
	require.Empty(t, buf.String())

	l.Warn("warn")
	l.Error("error")
	require.Contains(t, buf.String(), "[WARN] filter: warn")
	require.Contains(t, buf.String(), "[ERROR] filter: error")
}
