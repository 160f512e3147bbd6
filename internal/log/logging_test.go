package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/internal/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want slog.Level
	}{
		{name: "trace", in: "trace", want: log.LevelTrace},
		{name: "debug", in: "debug", want: slog.LevelDebug},
		{name: "empty", in: "", want: slog.LevelInfo},
		{name: "upper case", in: "WARN", want: slog.LevelWarn},
		{name: "error", in: "error", want: slog.LevelError},
		{name: "unknown", in: "loud", want: slog.LevelInfo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, log.ParseLevel(tc.in))
		})
	}
}

func TestConsoleSplitsErrors(t *testing.T) {
	var out, errs bytes.Buffer
	logger, closers, err := log.SetupLogger(log.Options{Level: "debug", Stdout: &out, Stderr: &errs})
	require.NoError(t, err)
	assert.Empty(t, closers)

	logger.Debug("scan", "keys", 2)
	logger.Error("storage failed")
	logger.Log(context.Background(), log.LevelTrace, "hidden")

	assert.Contains(t, out.String(), "scan")
	assert.NotContains(t, out.String(), "storage failed")
	assert.Contains(t, errs.String(), "storage failed")
	assert.NotContains(t, out.String()+errs.String(), "hidden")
}

func TestFileGetsEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chordkb.log")
	var out, errs bytes.Buffer
	logger, closers, err := log.SetupLogger(log.Options{Level: "trace", File: path, JSON: true, Stdout: &out, Stderr: &errs})
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Log(context.Background(), log.LevelTrace, "tick")
	logger.Info("ready")
	require.NoError(t, closers[0].Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"TRACE"`)
	assert.Contains(t, lines[1], `"msg":"ready"`)
	assert.Empty(t, out.String())
	assert.Empty(t, errs.String(), "only warnings reach the console when logging to a file")
}

func TestQuiet(t *testing.T) {
	var out bytes.Buffer
	logger, _, err := log.SetupLogger(log.Options{Quiet: true, Stdout: &out, Stderr: &out})
	require.NoError(t, err)
	logger.Error("nobody hears this")
	assert.Empty(t, out.String())
}

func TestReportLogger(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewReport(&buf)
	r := hid.KeyboardReport{Modifier: 0x02, Keys: [6]hid.Keycode{hid.KeyA}}
	l.Log("KBD", &r)
	m := hid.MouseReport{X: -1}
	l.Log("MOUSE", &m)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "KBD   8 bytes: 02 00 04 00 00 00 00 00"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "MOUSE 4 bytes: 00 ff 00 00"), lines[1])

	log.NewReport(nil).Log("KBD", &r)
}
