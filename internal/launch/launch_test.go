package launch_test

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ln2t/watchdog/internal/launch"
	"github.com/ln2t/watchdog/internal/ledger"
	"github.com/ln2t/watchdog/internal/model"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// tests in this package exec freshly written scripts and do not run in
// parallel, a concurrent fork may hold the script open for writing (ETXTBSY)

var fixedNow = func() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
}

func writeRunner(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func killGroup(t *testing.T, pid int) {
	t.Cleanup(func() {
		_ = unix.Kill(-pid, unix.SIGKILL)
	})
}

var spec = model.ToolSpec{
	Tool:    "freesurfer",
	Dataset: "2024-Happy_Dataset",
	Version: "7.3.2",
	Labels:  []string{"001", "002"},
}

func TestLaunch(t *testing.T) {
	runner := writeRunner(t, `echo "args: $*"
echo "oops" >&2
exec sleep 30`)
	l := ledger.New(t.TempDir())
	logDir := filepath.Join(t.TempDir(), "logs")

	res, err := launch.New(runner, l).WithClock(fixedNow).Launch(t.Context(), spec, logDir)
	require.NoError(t, err)
	require.Positive(t, res.PID)
	killGroup(t, res.PID)

	require.Equal(t, "20250102_030405", res.Timestamp)
	require.Equal(t, filepath.Join(logDir, "freesurfer_20250102_030405_stdout.log"), res.Stdout)
	require.Equal(t, filepath.Join(logDir, "freesurfer_20250102_030405_stderr.log"), res.Stderr)

	t.Run("own process group", func(t *testing.T) {
		pgid, err := unix.Getpgid(res.PID)
		require.NoError(t, err)
		require.Equal(t, res.PID, pgid)
		require.NotEqual(t, unix.Getpgrp(), pgid)
	})

	t.Run("output captured", func(t *testing.T) {
		require.Eventually(t, func() bool {
			b, err := os.ReadFile(res.Stdout)
			return err == nil && strings.Contains(string(b), "\n")
		}, 5*time.Second, 20*time.Millisecond)
		stdout, err := os.ReadFile(res.Stdout)
		require.NoError(t, err)
		require.Equal(t, "args: freesurfer --dataset 2024-Happy_Dataset --version 7.3.2 --participant-label 001 002\n", string(stdout))

		require.Eventually(t, func() bool {
			b, err := os.ReadFile(res.Stderr)
			return err == nil && string(b) == "oops\n"
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("recorded", func(t *testing.T) {
		lines, err := l.Tail(-1)
		require.NoError(t, err)
		require.Equal(t, []string{
			"20250102_030405  2024-Happy_Dataset  freesurfer  STARTED (PID " + strconv.Itoa(res.PID) + ")",
		}, lines)

		launches, err := l.Launches()
		require.NoError(t, err)
		require.Len(t, launches, 1)
		require.Equal(t, res.PID, launches[0].PID)

		_, err = l.LastRun()
		require.NoError(t, err)
	})
}

func TestLaunchDryRun(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")
	logDir := filepath.Join(t.TempDir(), "logs")
	var out bytes.Buffer

	launcher := launch.New("ln2t_tools", ledger.New(stateDir)).WithDryRun(true, &out)
	require.True(t, launcher.DryRun())
	res, err := launcher.Launch(t.Context(), spec, logDir)
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.Zero(t, res.PID)

	require.Equal(t,
		`[DRY-RUN] ln2t_tools freesurfer --dataset 2024-Happy_Dataset --version 7.3.2 --participant-label 001 002`+"\n",
		out.String())
	require.NoDirExists(t, logDir)
	require.NoDirExists(t, stateDir)
}

func TestLaunchNotFound(t *testing.T) {
	l := ledger.New(t.TempDir())
	logDir := t.TempDir()

	for _, runner := range []string{
		"watchdog-no-such-runner",
		filepath.Join(t.TempDir(), "missing"),
	} {
		res, err := launch.New(runner, l).WithClock(fixedNow).Launch(t.Context(), spec, logDir)
		require.Error(t, err)
		require.ErrorIs(t, err, launch.ErrCommandNotFound)
		require.Zero(t, res.PID)
	}

	lines, err := l.Tail(-1)
	require.NoError(t, err)
	require.Equal(t, []string{
		"20250102_030405  2024-Happy_Dataset  freesurfer  FAILED (command not found)",
		"20250102_030405  2024-Happy_Dataset  freesurfer  FAILED (command not found)",
	}, lines)
	launches, err := l.Launches()
	require.NoError(t, err)
	require.Empty(t, launches)
}

func TestLaunchNotExecutable(t *testing.T) {
	runner := filepath.Join(t.TempDir(), "runner.sh")
	require.NoError(t, os.WriteFile(runner, []byte("#!/bin/sh\n"), 0o644))
	l := ledger.New(t.TempDir())

	_, err := launch.New(runner, l).Launch(t.Context(), spec, t.TempDir())
	require.Error(t, err)
	require.NotErrorIs(t, err, launch.ErrCommandNotFound)

	lines, err := l.Tail(1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "FAILED (")
	require.Contains(t, lines[0], "permission denied")
}

func TestLaunchLogDirFailure(t *testing.T) {
	runner := writeRunner(t, "exit 0")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	l := ledger.New(t.TempDir())

	_, err := launch.New(runner, l).Launch(t.Context(), spec, filepath.Join(blocker, "logs"))
	require.Error(t, err)

	lines, err := l.Tail(1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "FAILED (creating log directory")
}

func TestLaunchBrokenLedger(t *testing.T) {
	runner := writeRunner(t, "exec sleep 30")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	res, err := launch.New(runner, ledger.New(filepath.Join(blocker, "state"))).Launch(t.Context(), spec, t.TempDir())
	require.NoError(t, err)
	require.Positive(t, res.PID)
	killGroup(t, res.PID)
	require.NoError(t, unix.Kill(res.PID, 0))
}

func TestLaunchSameSecond(t *testing.T) {
	l := ledger.New(t.TempDir())
	logDir := t.TempDir()
	launchEcho := func(word string) launch.Result {
		runner := writeRunner(t, "echo "+word+"\nexec sleep 30")
		res, err := launch.New(runner, l).WithClock(fixedNow).Launch(t.Context(), spec, logDir)
		require.NoError(t, err)
		killGroup(t, res.PID)
		require.Eventually(t, func() bool {
			b, err := os.ReadFile(res.Stdout)
			return err == nil && len(b) > 0
		}, 5*time.Second, 20*time.Millisecond)
		return res
	}

	first := launchEcho("first")
	second := launchEcho("second")

	require.Equal(t, filepath.Join(logDir, "freesurfer_20250102_030405_stdout.log"), first.Stdout)
	require.Equal(t, filepath.Join(logDir, "freesurfer_20250102_030405_2_stdout.log"), second.Stdout)
	require.Equal(t, filepath.Join(logDir, "freesurfer_20250102_030405_2_stderr.log"), second.Stderr)
	require.FileExists(t, second.Stderr)
	for path, want := range map[string]string{first.Stdout: "first\n", second.Stdout: "second\n"} {
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, want, string(b))
	}
}

func TestLaunchLogNameTaken(t *testing.T) {
	runner := writeRunner(t, "exit 0")
	logDir := t.TempDir()
	// only the stderr file of the first name exists
	taken := launch.LogPath(logDir, spec.Tool, "20250102_030405", launch.StreamStderr)
	require.NoError(t, os.WriteFile(taken, []byte("keep"), 0o644))

	res, err := launch.New(runner, nil).WithClock(fixedNow).Launch(t.Context(), spec, logDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(logDir, "freesurfer_20250102_030405_2_stdout.log"), res.Stdout)
	require.NoFileExists(t, launch.LogPath(logDir, spec.Tool, "20250102_030405", launch.StreamStdout))
	b, err := os.ReadFile(taken)
	require.NoError(t, err)
	require.Equal(t, "keep", string(b))
}

func TestLogPath(t *testing.T) {
	require.Equal(t,
		filepath.Join("logs", "a_b_20250102_030405_stderr.log"),
		launch.LogPath("logs", "a/b", "20250102_030405", launch.StreamStderr))
}
