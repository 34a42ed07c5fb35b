package status

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

const (
	TimerUnit   = "ln2t-watchdog.timer"
	ServiceUnit = "ln2t-watchdog.service"
)

// Unit is the state of one systemd user unit. Err is set when systemctl
// could not be asked at all.
type Unit struct {
	Name    string
	Active  string
	Enabled string
	Err     error
}

// Systemd queries systemctl --user. Each query is bounded by Timeout.
type Systemd struct {
	Names   []string
	Path    string
	Timeout time.Duration
}

func NewSystemd() *Systemd {
	return &Systemd{
		Names:   []string{TimerUnit, ServiceUnit},
		Path:    "systemctl",
		Timeout: 5 * time.Second,
	}
}

func (s *Systemd) Units(ctx context.Context) []Unit {
	ret := make([]Unit, 0, len(s.Names))
	for _, name := range s.Names {
		ret = append(ret, s.unit(ctx, name))
	}
	return ret
}

func (s *Systemd) unit(ctx context.Context, name string) Unit {
	u := Unit{Name: name, Active: "unknown", Enabled: "unknown"}
	active, err := s.query(ctx, "is-active", name)
	if err != nil {
		u.Err = err
		return u
	}
	u.Active = active
	enabled, err := s.query(ctx, "is-enabled", name)
	if err != nil {
		u.Err = err
		return u
	}
	u.Enabled = enabled
	return u
}

// query returns the first line printed by systemctl. A non-zero exit is
// expected for inactive or disabled units and is not an error.
func (s *Systemd) query(ctx context.Context, verb, unit string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Path, "--user", verb, unit)
	cmd.Stdout = &stdout
	err := cmd.Run()
	if ctx.Err() != nil {
		return "", errors.New("systemctl timed out")
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		if errors.Is(err, exec.ErrNotFound) {
			return "", errors.New("systemctl not available")
		}
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(stdout.String()), "\n")
	if line == "" {
		line = "unknown"
	}
	return line, nil
}
