// Package command turns a tool specification into the argument vector of a
// tool-runner invocation.
package command

import (
	"strings"

	"github.com/ln2t/watchdog/internal/model"
)

// Descriptor is a concrete command: Args is executed as is, without a shell,
// and Display is only meant for humans.
type Descriptor struct {
	Args    []string
	Display string
}

// Name returns the executable, the first element of Args.
func (d Descriptor) Name() string {
	if len(d.Args) == 0 {
		return ""
	}
	return d.Args[0]
}

// Build returns the runner invocation for spec:
//
//	runner tool --dataset ds [--version v] [--tool-args a] [--participant-label l1 l2 ...]
//
// Absent optional fields are omitted. Build is deterministic and never fails.
func Build(runner string, spec model.ToolSpec) Descriptor {
	args := []string{runner, spec.Tool, "--dataset", spec.Dataset}
	display := []string{runner, spec.Tool, "--dataset", spec.Dataset}

	if spec.Version != "" {
		args = append(args, "--version", spec.Version)
		display = append(display, "--version", spec.Version)
	}
	if spec.Args != "" {
		args = append(args, "--tool-args", spec.Args)
		// keeps the free-form arguments visually together
		display = append(display, "--tool-args", `"`+spec.Args+`"`)
	}
	if len(spec.Labels) > 0 {
		args = append(args, "--participant-label")
		args = append(args, spec.Labels...)
		display = append(display, "--participant-label")
		display = append(display, spec.Labels...)
	}

	return Descriptor{
		Args:    args,
		Display: strings.Join(display, " "),
	}
}
