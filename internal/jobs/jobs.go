// Package jobs reconstructs the roster of running jobs from the run history
// and terminates them by process group.
//
// There is no job table. Every query replays the ledger and asks the
// operating system about each recorded PID, so a roster is only a snapshot.
package jobs

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ln2t/watchdog/internal/ledger"
)

// Liveness is the answer of a probe.
type Liveness int

const (
	// Dead: the process does not exist or is a zombie.
	Dead Liveness = iota
	// Alive: the process exists, possibly owned by another user.
	Alive
	// Unknown: the probe failed in an unexpected way.
	Unknown
)

func (l Liveness) String() string {
	switch l {
	case Dead:
		return "dead"
	case Alive:
		return "alive"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("Liveness(%d)", int(l))
	}
}

// ProbeFunc tells whether pid is alive.
type ProbeFunc func(ctx context.Context, pid int) Liveness

// Job is a launch recorded in the ledger whose process is still alive.
type Job struct {
	PID     int
	Dataset string
	Tool    string
	Started string // ledger.TimestampLayout
}

type Tracker struct {
	ledger *ledger.Ledger
	probe  ProbeFunc
}

func NewTracker(l *ledger.Ledger) *Tracker {
	return &Tracker{ledger: l, probe: Probe}
}

// WithProbe replaces the liveness probe. Intended for tests.
func (t *Tracker) WithProbe(probe ProbeFunc) *Tracker {
	t.probe = probe
	return t
}

// Running returns the jobs recorded as started which are still alive. A PID
// recorded more than once is reported with its most recent launch, only that
// one can still be running. The order is unspecified, see Sort.
func (t *Tracker) Running(ctx context.Context) ([]Job, error) {
	launches, err := t.ledger.Launches()
	if err != nil {
		return nil, fmt.Errorf("reading run history: %w", err)
	}

	latest := make(map[int]ledger.Launch, len(launches))
	for _, l := range launches {
		latest[l.PID] = l
	}

	ret := make([]Job, 0, len(latest))
	for pid, l := range latest {
		switch live := t.probe(ctx, pid); live {
		case Alive:
			ret = append(ret, Job{
				PID:     pid,
				Dataset: l.Dataset,
				Tool:    l.Tool,
				Started: l.Timestamp,
			})
		case Unknown:
			slog.DebugContext(ctx, "liveness unknown: skipping", "pid", pid, "dataset", l.Dataset, "tool", l.Tool)
		}
	}
	return ret, nil
}

// Sort orders jobs by pid, dataset and tool.
func Sort(jobs []Job) {
	slices.SortFunc(jobs, func(a, b Job) int {
		return cmp.Or(
			cmp.Compare(a.PID, b.PID),
			cmp.Compare(a.Dataset, b.Dataset),
			cmp.Compare(a.Tool, b.Tool),
		)
	})
}
