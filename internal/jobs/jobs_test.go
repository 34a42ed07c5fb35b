package jobs_test

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/ln2t/watchdog/internal/jobs"
	"github.com/ln2t/watchdog/internal/ledger"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// deadPID returns a PID no process currently has.
func deadPID(t *testing.T) int {
	t.Helper()
	for pid := 1<<22 - 1; pid > 1<<16; pid-- {
		if err := unix.Kill(pid, 0); err == unix.ESRCH {
			return pid
		}
	}
	t.Skip("skipped, no free PID found")
	return 0
}

func TestRunning(t *testing.T) {
	t.Parallel()
	l := ledger.New(t.TempDir())
	require.NoError(t, l.Append(`
============================================================
Watchdog run started at 2025-01-02T03:04:05+01:00
============================================================
20250102_030405  2024-Happy  freesurfer  STARTED (PID 101)
20250102_030405  2024-Happy  fmriprep  FAILED (command not found)
20250102_030406  2024-Happy  qsiprep  STARTED (PID 102)
20250102_030407  2023-Sad  freesurfer  STARTED (PID 103)
20250102_030408  2023-Sad  fmriprep  STARTED (PID 104)
garbage line STARTED (PID 105)
20250103_030405  2023-Sad  mriqc  STARTED (PID 101)
`))

	probed := map[int]int{}
	probe := func(_ context.Context, pid int) jobs.Liveness {
		probed[pid]++
		switch pid {
		case 101, 104:
			return jobs.Alive
		case 103:
			return jobs.Unknown
		default:
			return jobs.Dead
		}
	}

	roster, err := jobs.NewTracker(l).WithProbe(probe).Running(t.Context())
	require.NoError(t, err)
	jobs.Sort(roster)
	require.Equal(t, []jobs.Job{
		{PID: 101, Dataset: "2023-Sad", Tool: "mriqc", Started: "20250103_030405"},
		{PID: 104, Dataset: "2023-Sad", Tool: "fmriprep", Started: "20250102_030408"},
	}, roster)
	require.Equal(t, map[int]int{101: 1, 102: 1, 103: 1, 104: 1, 105: 1}, probed)

	t.Run("no cache", func(t *testing.T) {
		_, err := jobs.NewTracker(l).WithProbe(probe).Running(t.Context())
		require.NoError(t, err)
		require.Equal(t, 2, probed[104])
	})
}

func TestRunningEmpty(t *testing.T) {
	t.Parallel()
	roster, err := jobs.NewTracker(ledger.New(t.TempDir())).Running(t.Context())
	require.NoError(t, err)
	require.Empty(t, roster)
}

func TestSort(t *testing.T) {
	t.Parallel()
	roster := []jobs.Job{
		{PID: 2, Dataset: "b", Tool: "x"},
		{PID: 1, Dataset: "b", Tool: "y"},
		{PID: 1, Dataset: "a", Tool: "z"},
		{PID: 1, Dataset: "b", Tool: "a"},
	}
	jobs.Sort(roster)
	require.Equal(t, []jobs.Job{
		{PID: 1, Dataset: "a", Tool: "z"},
		{PID: 1, Dataset: "b", Tool: "a"},
		{PID: 1, Dataset: "b", Tool: "y"},
		{PID: 2, Dataset: "b", Tool: "x"},
	}, roster)
}

func TestProbe(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	require.Equal(t, jobs.Alive, jobs.Probe(ctx, os.Getpid()))
	require.Equal(t, jobs.Dead, jobs.Probe(ctx, deadPID(t)))
	require.Equal(t, jobs.Dead, jobs.Probe(ctx, 0))
	require.Equal(t, jobs.Dead, jobs.Probe(ctx, -1))
	require.Equal(t, "alive", jobs.Alive.String())
}

func TestProbeZombie(t *testing.T) {
	t.Parallel()
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skipf("skipped, binary true not available: %v", err)
	}
	cmd := exec.Command(path)
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	// not waited yet, so the exited child stays a zombie answering signal 0
	require.Eventually(t, func() bool {
		return jobs.Probe(t.Context(), pid) == jobs.Dead
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, unix.Kill(pid, 0))
	require.NoError(t, cmd.Wait())
}
