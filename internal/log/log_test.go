package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ln2t/watchdog/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := log.New(&buf, "json", false)

	ctx := log.ContextAttrs(t.Context(), slog.String("run_id", "r1"))
	child := log.ContextAttrs(ctx, slog.String("dataset", "2024-Happy"))
	sibling := log.ContextAttrs(ctx, slog.String("dataset", "2023-Sad"))

	logger.InfoContext(child, "launching", "tool", "freesurfer")
	logger.With("component", "test").InfoContext(sibling, "launching")
	logger.DebugContext(child, "hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "r1", first["run_id"])
	require.Equal(t, "2024-Happy", first["dataset"])
	require.Equal(t, "freesurfer", first["tool"])
	require.Equal(t, "2023-Sad", second["dataset"])
	require.Equal(t, "test", second["component"])
}

func TestText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log.New(&buf, "text", true).Debug("hello", "pid", 42)
	require.Contains(t, buf.String(), "level=DEBUG")
	require.Contains(t, buf.String(), "msg=hello pid=42")
}

func TestOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "watchdog.log")
	require.NoError(t, os.WriteFile(path, []byte("previous\n"), 0o644))

	logger, closer, err := log.Open(path, "json", false)
	require.NoError(t, err)
	logger.Info("appended")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "previous\n{"))
	require.Contains(t, string(b), `"msg":"appended"`)

	for _, dest := range []string{"", "stderr", "stdout", "discard"} {
		_, closer, err := log.Open(dest, "text", false)
		require.NoError(t, err)
		require.NoError(t, closer.Close())
	}

	_, _, err = log.Open(filepath.Join(path, "nested"), "json", false)
	require.Error(t, err)
}
