// Package ledger implements the run history: an append-only text log of
// launches shared by every watchdog invocation, plus a last-run marker.
//
// A job outcome line is
//
//	<launch-timestamp>  <dataset>  <tool>  <outcome>
//
// where a successful launch has the outcome STARTED (PID <n>). That substring
// is what the job listing parses, so it must never change. Other lines
// (banners) are free form and ignored by the parser.
//
// Nothing here locks the files. Each line is written by a single append so
// concurrent invocations can interleave lines but never tear them.
package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	LastRunFile = "last_run"
	HistoryFile = "run_history.log"

	// TimestampLayout of launch timestamps, also used in log file names.
	TimestampLayout = "20060102_150405"
)

var ErrNeverRun = errors.New("no recorded run")

// Ledger is the location of the run history. The directory is created on
// the first write.
type Ledger struct {
	dir string
	now func() time.Time
}

func New(dir string) *Ledger {
	return &Ledger{dir: dir, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Dir() string {
	return l.dir
}

func (l *Ledger) HistoryPath() string {
	return filepath.Join(l.dir, HistoryFile)
}

func (l *Ledger) LastRunPath() string {
	return filepath.Join(l.dir, LastRunFile)
}

// Started is the outcome text of a successful launch.
func Started(pid int) string {
	return fmt.Sprintf("STARTED (PID %d)", pid)
}

// Failed is the outcome text of a failed launch.
func Failed(reason string) string {
	return "FAILED (" + reason + ")"
}

// Entry is one job outcome.
type Entry struct {
	Timestamp string // TimestampLayout
	Dataset   string
	Tool      string
	Outcome   string
}

// String formats the entry as a ledger line without the trailing newline.
// The first three fields must stay single tokens, so whitespace inside them
// is replaced; line breaks are removed from the outcome.
func (e Entry) String() string {
	return strings.Join([]string{
		Token(e.Timestamp),
		Token(e.Dataset),
		Token(e.Tool),
		oneLine(e.Outcome),
	}, "  ")
}

// Record appends a job outcome and refreshes the last-run marker. Failures
// are logged and dropped, they must never abort the launch being recorded.
func (l *Ledger) Record(ctx context.Context, e Entry) {
	if err := l.Append(e.String() + "\n"); err != nil {
		slog.ErrorContext(ctx, "can't record run", "path", l.HistoryPath(), "entry", e.String(), "error", err)
	}
	l.touchLastRun(ctx)
}

// RecordRunStart writes the banner of one dispatch cycle.
func (l *Ledger) RecordRunStart(ctx context.Context, runID string) {
	l.touchLastRun(ctx)
	now := l.now().Format(time.RFC3339)
	rule := strings.Repeat("=", 60)
	banner := "\n" + rule + "\n" + "Watchdog run started at " + now
	if runID != "" {
		banner += " (run " + runID + ")"
	}
	banner += "\n" + rule + "\n"
	if err := l.Append(banner); err != nil {
		slog.ErrorContext(ctx, "can't record run start", "path", l.HistoryPath(), "error", err)
	}
}

// Append writes text to the history with a single write call.
func (l *Ledger) Append(text string) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	f, err := os.OpenFile(l.HistoryPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write([]byte(text))
	return errors.Join(err, f.Close())
}

func (l *Ledger) touchLastRun(ctx context.Context) {
	if err := l.writeLastRun(); err != nil {
		slog.ErrorContext(ctx, "can't update last run marker", "path", l.LastRunPath(), "error", err)
	}
}

// writeLastRun replaces the marker through a rename so readers never see a
// partial timestamp.
func (l *Ledger) writeLastRun() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(l.dir, LastRunFile+".*")
	if err != nil {
		return err
	}
	_, err = tmp.WriteString(l.now().Format(time.RFC3339Nano) + "\n")
	err = errors.Join(err, tmp.Close())
	if err == nil {
		err = os.Rename(tmp.Name(), l.LastRunPath())
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
	}
	return err
}

var lastRunLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999", // naive local time
}

// LastRun returns the time of the last recorded activity or ErrNeverRun.
func (l *Ledger) LastRun() (time.Time, error) {
	b, err := os.ReadFile(l.LastRunPath())
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, ErrNeverRun
	}
	if err != nil {
		return time.Time{}, err
	}
	text := strings.TrimSpace(string(b))
	for _, layout := range lastRunLayouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing %s: unexpected timestamp %q", l.LastRunPath(), text)
}

// Tail returns the last n lines of the history.
func (l *Ledger) Tail(n int) ([]string, error) {
	var lines []string
	err := l.eachLine(func(line string) {
		lines = append(lines, line)
		if n > 0 && len(lines) > 2*n {
			lines = append(lines[:0], lines[len(lines)-n:]...)
		}
	})
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Launches returns every successful launch recorded in the history, in file
// order. A missing history is not an error.
func (l *Ledger) Launches() ([]Launch, error) {
	var ret []Launch
	err := l.eachLine(func(line string) {
		if launch, ok := ParseStarted(line); ok {
			ret = append(ret, launch)
		}
	})
	return ret, err
}

func (l *Ledger) eachLine(fn func(line string)) error {
	f, err := os.Open(l.HistoryPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", l.HistoryPath(), err)
		}
	}
}

// Token is s as written into a ledger field: runs of whitespace become a
// single "_" and an empty value becomes "-".
func Token(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "-"
	}
	return strings.Join(fields, "_")
}

func oneLine(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' }), " ")
}
