// Package status collects what an operator wants to know about the watchdog:
// when it ran, whether the systemd units are up, which datasets it sees and
// what it recently launched.
package status

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ln2t/watchdog/internal/discover"
	"github.com/ln2t/watchdog/internal/jobs"
	"github.com/ln2t/watchdog/internal/ledger"
	"github.com/ln2t/watchdog/internal/model"
)

const (
	RecentLogsLimit = 5
	HistoryLimit    = 20
)

type LogFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func (f LogFile) Name() string {
	return filepath.Base(f.Path)
}

type Dataset struct {
	Name       string
	Dir        string
	Configs    []string
	RecentLogs []LogFile
}

type Report struct {
	Generated time.Time
	LastRun   time.Time // zero: never
	NextRun   time.Time // zero: no schedule
	Units     []Unit
	Datasets  []Dataset
	Running   []jobs.Job
	History   []string
}

// Collector gathers a Report. Every part is best effort: a failing probe is
// logged and leaves its part of the report empty.
type Collector struct {
	codeDir   string
	namespace string
	ledger    *ledger.Ledger
	schedule  *model.Schedule
	tracker   *jobs.Tracker
	systemd   *Systemd
	now       func() time.Time
}

func NewCollector(codeDir, namespace string, l *ledger.Ledger) *Collector {
	return &Collector{
		codeDir:   codeDir,
		namespace: namespace,
		ledger:    l,
		tracker:   jobs.NewTracker(l),
		systemd:   NewSystemd(),
		now:       time.Now,
	}
}

// WithSchedule makes the report show the next activation of schedule.
func (c *Collector) WithSchedule(schedule *model.Schedule) *Collector {
	c.schedule = schedule
	return c
}

func (c *Collector) WithSystemd(s *Systemd) *Collector {
	c.systemd = s
	return c
}

func (c *Collector) WithTracker(t *jobs.Tracker) *Collector {
	c.tracker = t
	return c
}

func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

func (c *Collector) Collect(ctx context.Context) Report {
	r := Report{Generated: c.now()}

	lastRun, err := c.ledger.LastRun()
	switch {
	case err == nil:
		r.LastRun = lastRun
	case !errors.Is(err, ledger.ErrNeverRun):
		slog.WarnContext(ctx, "can't read last run", "error", err)
	}

	if c.schedule != nil {
		next, err := c.schedule.Next(r.Generated)
		if err != nil {
			slog.WarnContext(ctx, "can't compute next run", "error", err)
		} else {
			r.NextRun = next
		}
	}

	if c.systemd != nil {
		r.Units = c.systemd.Units(ctx)
	}

	for _, ds := range discover.Scan(ctx, c.codeDir, c.namespace) {
		logs, err := RecentLogs(ds, c.namespace, RecentLogsLimit)
		if err != nil {
			slog.WarnContext(ctx, "can't list logs", "dataset", ds.Name, "error", err)
		}
		r.Datasets = append(r.Datasets, Dataset{
			Name:       ds.Name,
			Dir:        ds.Dir,
			Configs:    ds.ConfigFiles,
			RecentLogs: logs,
		})
	}

	running, err := c.tracker.Running(ctx)
	if err != nil {
		slog.WarnContext(ctx, "can't list running jobs", "error", err)
	}
	jobs.Sort(running)
	r.Running = running

	history, err := c.ledger.Tail(HistoryLimit)
	if err != nil {
		slog.WarnContext(ctx, "can't read run history", "error", err)
	}
	r.History = history
	return r
}

// RecentLogs returns up to limit log files of a dataset, newest first. Both
// the visible and the hidden (dot prefixed) namespace directories are
// searched. A negative limit returns all of them.
func RecentLogs(ds discover.Dataset, namespace string, limit int) ([]LogFile, error) {
	var (
		logs []LogFile
		errs []error
	)
	for _, dir := range []string{
		filepath.Join(ds.Dir, namespace, "logs"),
		filepath.Join(ds.Dir, "."+namespace, "logs"),
	} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				// removed in the meantime
				continue
			}
			logs = append(logs, LogFile{
				Path:    filepath.Join(dir, e.Name()),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
	}

	slices.SortFunc(logs, func(a, b LogFile) int {
		return cmp.Or(
			b.ModTime.Compare(a.ModTime),
			cmp.Compare(a.Path, b.Path),
		)
	})
	if limit >= 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	if err := errors.Join(errs...); err != nil {
		return logs, fmt.Errorf("listing logs of %s: %w", ds.Name, err)
	}
	return logs, nil
}
