// Package launch starts tool-runner commands as detached background jobs.
//
// Every job gets its own session, so it is the leader of a fresh process
// group: it survives the dispatcher and can later be terminated as a group.
// Output goes to two files created before the process starts:
//
//	<logDir>/<tool>_<YYYYMMDD_HHMMSS>_stdout.log
//	<logDir>/<tool>_<YYYYMMDD_HHMMSS>_stderr.log
//
// Existing files are never reused: a second launch of the same tool within
// the same second gets <tool>_<YYYYMMDD_HHMMSS>_2_stdout.log and so on.
//
// Each outcome is recorded to the ledger. The launcher does not keep any
// handle to a started job other than a goroutine reaping it on exit.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ln2t/watchdog/internal/command"
	"github.com/ln2t/watchdog/internal/ledger"
	"github.com/ln2t/watchdog/internal/model"
)

var ErrCommandNotFound = errors.New("command not found")

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

type Launcher struct {
	runner string
	ledger *ledger.Ledger
	dryRun bool
	out    io.Writer
	now    func() time.Time
}

// New returns a launcher executing runner and recording to l.
func New(runner string, l *ledger.Ledger) *Launcher {
	return &Launcher{
		runner: runner,
		ledger: l,
		out:    os.Stdout,
		now:    time.Now,
	}
}

// WithDryRun makes Launch print the commands to out instead of running them.
func (l *Launcher) WithDryRun(dryRun bool, out io.Writer) *Launcher {
	l.dryRun = dryRun
	if out != nil {
		l.out = out
	}
	return l
}

// WithClock replaces the time source. Intended for tests.
func (l *Launcher) WithClock(now func() time.Time) *Launcher {
	l.now = now
	return l
}

func (l *Launcher) DryRun() bool {
	return l.dryRun
}

// Result describes one launch.
type Result struct {
	Command   command.Descriptor
	Timestamp string
	PID       int // 0 in dry-run
	Stdout    string
	Stderr    string
	DryRun    bool
}

// LogPath returns the output file of a launch.
func LogPath(logDir, tool, timestamp, stream string) string {
	return logPath(logDir, tool, timestamp, stream, 1)
}

func logPath(logDir, tool, timestamp, stream string, seq int) string {
	tool = strings.ReplaceAll(tool, string(os.PathSeparator), "_")
	if seq > 1 {
		timestamp += "_" + strconv.Itoa(seq)
	}
	return filepath.Join(logDir, tool+"_"+timestamp+"_"+stream+".log")
}

// maxLogSeq bounds the search for unused log file names.
const maxLogSeq = 100

// Launch starts spec in the background and returns once the process has been
// spawned. Launch failures are recorded as FAILED in the ledger and returned;
// a missing runner wraps ErrCommandNotFound. Ledger failures never fail the
// launch.
func (l *Launcher) Launch(ctx context.Context, spec model.ToolSpec, logDir string) (Result, error) {
	timestamp := l.now().Format(ledger.TimestampLayout)
	res := Result{
		Command:   command.Build(l.runner, spec),
		Timestamp: timestamp,
		Stdout:    LogPath(logDir, spec.Tool, timestamp, StreamStdout),
		Stderr:    LogPath(logDir, spec.Tool, timestamp, StreamStderr),
		DryRun:    l.dryRun,
	}
	attrs := []any{"dataset", spec.Dataset, "tool", spec.Tool}

	if l.dryRun {
		slog.InfoContext(ctx, "[DRY-RUN] "+res.Command.Display, attrs...)
		_, err := fmt.Fprintf(l.out, "[DRY-RUN] %s\n", res.Command.Display)
		return res, err
	}

	slog.InfoContext(ctx, "launching", append(attrs, "command", res.Command.Display)...)
	cmd, err := l.start(ctx, &res, logDir, spec.Tool)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			reason = ErrCommandNotFound.Error()
			err = fmt.Errorf("%s: %w", res.Command.Name(), ErrCommandNotFound)
		}
		slog.ErrorContext(ctx, "failed to start command", append(attrs, "command", res.Command.Name(), "error", err)...)
		l.record(ctx, spec, timestamp, ledger.Failed(reason))
		return res, err
	}

	res.PID = cmd.Process.Pid
	slog.InfoContext(ctx, "launched", append(attrs, "pid", res.PID, "stdout", res.Stdout, "stderr", res.Stderr)...)
	l.record(ctx, spec, timestamp, ledger.Started(res.PID))
	go reap(ctx, cmd, attrs)
	return res, nil
}

// start opens both output files and then starts the process detached, so no
// early output is lost. The paths of res are updated to the files created.
func (l *Launcher) start(ctx context.Context, res *Result, logDir, tool string) (*exec.Cmd, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	stdout, stderr, err := createLogs(ctx, res, logDir, tool)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = stdout.Close()
		_ = stderr.Close()
	}()

	// not CommandContext: a job must outlive whatever started it
	cmd := exec.Command(res.Command.Args[0], res.Command.Args[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = detached()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// createLogs creates a fresh pair of log files, picking the first sequence
// number for which neither file exists.
func createLogs(ctx context.Context, res *Result, logDir, tool string) (*os.File, *os.File, error) {
	for seq := 1; seq <= maxLogSeq; seq++ {
		outPath := logPath(logDir, tool, res.Timestamp, StreamStdout, seq)
		errPath := logPath(logDir, tool, res.Timestamp, StreamStderr, seq)
		stdout, err := createExcl(outPath)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout log: %w", err)
		}
		stderr, err := createExcl(errPath)
		if err != nil {
			_ = stdout.Close()
			_ = os.Remove(outPath)
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return nil, nil, fmt.Errorf("creating stderr log: %w", err)
		}
		if seq > 1 {
			slog.WarnContext(ctx, "log files of the same second exist, using a new name", "stdout", outPath, "stderr", errPath)
		}
		res.Stdout, res.Stderr = outPath, errPath
		return stdout, stderr, nil
	}
	return nil, nil, fmt.Errorf("creating stdout log: %d log files for %s at %s exist", maxLogSeq, tool, res.Timestamp)
}

func createExcl(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

func (l *Launcher) record(ctx context.Context, spec model.ToolSpec, timestamp, outcome string) {
	if l.ledger == nil {
		return
	}
	l.ledger.Record(ctx, ledger.Entry{
		Timestamp: timestamp,
		Dataset:   spec.Dataset,
		Tool:      spec.Tool,
		Outcome:   outcome,
	})
}

// reap waits for the job so a long running dispatcher does not collect
// zombies. The job itself is never waited on by anyone else.
func reap(ctx context.Context, cmd *exec.Cmd, attrs []any) {
	started := time.Now()
	err := cmd.Wait()
	attrs = append(attrs, "pid", cmd.Process.Pid, "duration", time.Since(started).Round(time.Second).String())
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		slog.DebugContext(ctx, "job exited", attrs...)
	case errors.As(err, &exitErr):
		slog.DebugContext(ctx, "job exited", append(attrs, "exit_code", exitErr.ExitCode())...)
	default:
		slog.DebugContext(ctx, "waiting for job failed", append(attrs, "error", err)...)
	}
}
