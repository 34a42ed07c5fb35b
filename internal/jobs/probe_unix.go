//go:build unix

package jobs

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// Probe checks pid with signal 0. EPERM means the process exists under
// another owner and counts as alive. A process answering the signal while
// being a zombie is dead.
func Probe(ctx context.Context, pid int) Liveness {
	if pid <= 0 || pid > math.MaxInt32 {
		return Dead
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		if zombie(ctx, pid) {
			return Dead
		}
		return Alive
	case errors.Is(err, unix.ESRCH):
		return Dead
	case errors.Is(err, unix.EPERM):
		return Alive
	default:
		return Unknown
	}
}

func zombie(ctx context.Context, pid int) bool {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(status, process.Zombie)
}
