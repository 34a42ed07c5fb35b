package discover_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ln2t/watchdog/internal/discover"

	"github.com/stretchr/testify/require"
)

func TestDatasetName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		given string
		name  string
		ok    bool
	}{
		{"2024-Happy_Dog-abc123-code", "2024-Happy_Dog-abc123", true},
		{"1999-x-code", "1999-x", true},
		{"2024-Happy_Dog-abc123", "", false},
		{"happy-code", "", false},
		{"24-short-code", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.given, func(t *testing.T) {
			name, ok := discover.DatasetName(tc.given)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.name, name)
		})
	}
}

func TestScan(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	touch(t, filepath.Join(root, "2024-Beta-b-code", "ln2t_watchdog", "b.yml"))
	touch(t, filepath.Join(root, "2024-Beta-b-code", "ln2t_watchdog", "a.yaml"))
	touch(t, filepath.Join(root, "2024-Beta-b-code", "ln2t_watchdog", "notes.txt"))
	touch(t, filepath.Join(root, "2023-Alpha-a-code", "ln2t_watchdog", "nightly.yaml"))
	// no config dir
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2022-Empty-e-code"), 0o755))
	// wrong naming convention
	touch(t, filepath.Join(root, "scratch", "ln2t_watchdog", "x.yaml"))
	// empty config dir
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2021-Nothing-n-code", "ln2t_watchdog"), 0o755))

	datasets := discover.Scan(t.Context(), root, "ln2t_watchdog")
	require.Len(t, datasets, 2)

	require.Equal(t, "2023-Alpha-a", datasets[0].Name)
	require.Equal(t, filepath.Join(root, "2023-Alpha-a-code"), datasets[0].Dir)
	require.Equal(t, []string{
		filepath.Join(root, "2023-Alpha-a-code", "ln2t_watchdog", "nightly.yaml"),
	}, datasets[0].ConfigFiles)

	require.Equal(t, "2024-Beta-b", datasets[1].Name)
	require.Equal(t, []string{
		filepath.Join(root, "2024-Beta-b-code", "ln2t_watchdog", "a.yaml"),
		filepath.Join(root, "2024-Beta-b-code", "ln2t_watchdog", "b.yml"),
	}, datasets[1].ConfigFiles)
	require.Equal(t, filepath.Join(root, "2024-Beta-b-code", "ln2t_watchdog", "logs"), datasets[1].LogDir("ln2t_watchdog"))
}

func TestScan_MissingCodeDir(t *testing.T) {
	t.Parallel()
	datasets := discover.Scan(t.Context(), filepath.Join(t.TempDir(), "nope"), "ln2t_watchdog")
	require.Empty(t, datasets)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("ln2t_tools: {}\n"), 0o644))
}
