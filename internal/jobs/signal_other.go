//go:build !unix

package jobs

import (
	"context"
	"fmt"
)

func Probe(context.Context, int) Liveness {
	return Unknown
}

func Terminate(pid int) (bool, string) {
	return false, fmt.Sprintf("Failed to kill PID %d: process groups not supported", pid)
}

func TerminateGroup(pid int) (int, bool, string) {
	ok, msg := Terminate(pid)
	return 0, ok, msg
}

func ProbeGroup(context.Context, int) Liveness {
	return Unknown
}

func KillGroup(pid, _ int) (bool, string) {
	return Kill(pid)
}

func Kill(pid int) (bool, string) {
	return false, fmt.Sprintf("Failed to force-kill PID %d: process groups not supported", pid)
}
