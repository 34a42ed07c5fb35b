//go:build unix

package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// Terminate sends SIGTERM to the process group led by pid after checking the
// process still exists. It reports whether the signal was delivered.
func Terminate(pid int) (bool, string) {
	_, ok, msg := TerminateGroup(pid)
	return ok, msg
}

// TerminateGroup is Terminate also returning the signalled process group.
// Members of the group can outlive pid, the group id stays valid for them.
func TerminateGroup(pid int) (int, bool, string) {
	if pid <= 0 {
		return 0, false, fmt.Sprintf("Process %d not found", pid)
	}
	if err := unix.Kill(pid, 0); err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			return 0, false, fmt.Sprintf("Process %d not found (already terminated?)", pid)
		case errors.Is(err, unix.EPERM):
			return 0, false, fmt.Sprintf("Permission denied to kill PID %d", pid)
		default:
			return 0, false, fmt.Sprintf("Failed to kill PID %d: %v", pid, err)
		}
	}
	pgid, msg, ok := group(pid, "kill")
	if !ok {
		return 0, false, msg
	}
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		return pgid, false, describe(pid, "kill", err)
	}
	return pgid, true, fmt.Sprintf("Terminated process group %d (PID %d)", pgid, pid)
}

// Kill sends SIGKILL to the process group led by pid without any check.
func Kill(pid int) (bool, string) {
	if pid <= 0 {
		return false, fmt.Sprintf("Process %d not found", pid)
	}
	pgid, msg, ok := group(pid, "force-kill")
	if !ok {
		return false, msg
	}
	return KillGroup(pid, pgid)
}

// KillGroup sends SIGKILL to pgid, the group resolved earlier for pid. pid
// itself may be gone already.
func KillGroup(pid, pgid int) (bool, string) {
	if refused(pgid) {
		return false, fmt.Sprintf("Refusing to signal process group %d of PID %d", pgid, pid)
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil {
		return false, describe(pid, "force-kill", err)
	}
	return true, fmt.Sprintf("Force-killed process group %d (PID %d)", pgid, pid)
}

// ProbeGroup checks whether any process of group pgid remains, the same way
// Probe checks a single process. Zombie members keep the group alive.
func ProbeGroup(_ context.Context, pgid int) Liveness {
	if refused(pgid) || pgid > math.MaxInt32 {
		return Dead
	}
	err := unix.Kill(-pgid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return Alive
	case errors.Is(err, unix.ESRCH):
		return Dead
	default:
		return Unknown
	}
}

// group resolves the process group of pid. The group of the watchdog itself
// and the system groups are never signalled.
func group(pid int, verb string) (int, string, bool) {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return 0, describe(pid, verb, err), false
	}
	if refused(pgid) {
		return 0, fmt.Sprintf("Refusing to signal process group %d of PID %d", pgid, pid), false
	}
	return pgid, "", true
}

func refused(pgid int) bool {
	return pgid <= 1 || pgid == unix.Getpgrp()
}

func describe(pid int, verb string, err error) string {
	switch {
	case errors.Is(err, unix.ESRCH):
		return fmt.Sprintf("Process %d not found", pid)
	case errors.Is(err, unix.EPERM):
		return fmt.Sprintf("Permission denied to kill PID %d", pid)
	default:
		return fmt.Sprintf("Failed to %s PID %d: %v", verb, pid, err)
	}
}
