package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ln2t/watchdog/internal/ledger"
	"golang.org/x/sync/errgroup"
)

var ErrNoSelection = errors.New("no job selected: give PIDs, --dataset, --tool or --all")

// Selector picks jobs out of a roster. Set criteria are combined; All
// selects every job and is exclusive with the others.
type Selector struct {
	PIDs    []int
	Dataset string
	Tool    string
	All     bool
}

func (s Selector) empty() bool {
	return len(s.PIDs) == 0 && s.Dataset == "" && s.Tool == "" && !s.All
}

// Select returns the jobs of roster matching s, plus the requested PIDs which
// are not running watchdog jobs. Dataset and Tool are compared in their
// ledger form, so a directory name with spaces matches its jobs.
func Select(roster []Job, s Selector) ([]Job, []int, error) {
	if s.empty() {
		return nil, nil, ErrNoSelection
	}
	if s.All && (len(s.PIDs) > 0 || s.Dataset != "" || s.Tool != "") {
		return nil, nil, errors.New("--all can't be combined with other selectors")
	}
	if s.Dataset != "" {
		s.Dataset = ledger.Token(s.Dataset)
	}
	if s.Tool != "" {
		s.Tool = ledger.Token(s.Tool)
	}

	var selected []Job
	for _, j := range roster {
		if len(s.PIDs) > 0 && !slices.Contains(s.PIDs, j.PID) {
			continue
		}
		if s.Dataset != "" && j.Dataset != s.Dataset {
			continue
		}
		if s.Tool != "" && j.Tool != s.Tool {
			continue
		}
		selected = append(selected, j)
	}

	var unknown []int
	for _, pid := range s.PIDs {
		if !slices.ContainsFunc(roster, func(j Job) bool { return j.PID == pid }) && !slices.Contains(unknown, pid) {
			unknown = append(unknown, pid)
		}
	}
	return selected, unknown, nil
}

// Outcome of terminating one job.
type Outcome struct {
	Job       Job
	OK        bool
	Message   string
	Escalated bool
}

// Signals are the process operations of a Terminator. NewTerminator uses the
// package functions of the same names.
type Signals struct {
	ProbeGroup     ProbeFunc
	TerminateGroup func(pid int) (int, bool, string)
	Kill           func(pid int) (bool, string)
	KillGroup      func(pid, pgid int) (bool, string)
}

type Terminator struct {
	force bool
	grace time.Duration
	limit int
	poll  time.Duration

	sig Signals
}

// NewTerminator returns a terminator sending SIGKILL when force is set and
// SIGTERM otherwise. A positive grace makes it wait for the terminated
// process group to disappear and send SIGKILL to what remains of it.
func NewTerminator(force bool, grace time.Duration) *Terminator {
	return &Terminator{
		force: force,
		grace: grace,
		limit: 8,
		poll:  100 * time.Millisecond,
		sig: Signals{
			ProbeGroup:     ProbeGroup,
			TerminateGroup: TerminateGroup,
			Kill:           Kill,
			KillGroup:      KillGroup,
		},
	}
}

// WithSignals replaces the process operations. Intended for tests.
func (t *Terminator) WithSignals(s Signals) *Terminator {
	t.sig = s
	return t
}

// Run terminates targets concurrently. A failure on one target never affects
// the others; outcomes are returned in the order of targets.
func (t *Terminator) Run(ctx context.Context, targets []Job) []Outcome {
	outcomes := make([]Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(t.limit)
	for i, job := range targets {
		g.Go(func() error {
			outcomes[i] = t.one(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (t *Terminator) one(ctx context.Context, job Job) Outcome {
	out := Outcome{Job: job}
	if t.force {
		out.OK, out.Message = t.sig.Kill(job.PID)
		return out
	}
	// the leader may exit on SIGTERM while members ignoring it keep running,
	// so the group id is what gets watched and escalated on
	var pgid int
	pgid, out.OK, out.Message = t.sig.TerminateGroup(job.PID)
	if !out.OK || t.grace <= 0 {
		return out
	}
	if t.wait(ctx, pgid) {
		return out
	}
	if err := ctx.Err(); err != nil {
		out.Message += "; not escalated: " + err.Error()
		return out
	}

	out.Escalated = true
	ok, msg := t.sig.KillGroup(job.PID, pgid)
	out.OK = ok
	out.Message = fmt.Sprintf("%s; still alive after %s: %s", out.Message, t.grace, msg)
	return out
}

// wait reports whether every process of pgid died within the grace period.
func (t *Terminator) wait(ctx context.Context, pgid int) bool {
	deadline := time.NewTimer(t.grace)
	defer deadline.Stop()
	tick := time.NewTicker(t.poll)
	defer tick.Stop()
	for {
		if t.sig.ProbeGroup(ctx, pgid) == Dead {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return t.sig.ProbeGroup(ctx, pgid) == Dead
		case <-tick.C:
		}
	}
}
