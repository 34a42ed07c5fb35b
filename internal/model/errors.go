package model

import (
	"errors"
)

var (
	ErrNoSchedule     = errors.New("timer mode requires cron or duration")
	ErrConfigShape    = errors.New("unexpected config shape")
	ErrNoToolsSection = errors.New("no tools section")
)
