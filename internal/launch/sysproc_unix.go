//go:build unix

package launch

import (
	"syscall"
)

// detached puts the child in a new session, making it a process group leader
// without a controlling terminal.
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
