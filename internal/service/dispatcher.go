package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ln2t/watchdog/internal/discover"
	"github.com/ln2t/watchdog/internal/launch"
	"github.com/ln2t/watchdog/internal/ledger"
	"github.com/ln2t/watchdog/internal/log"
	"github.com/ln2t/watchdog/internal/toolconf"
)

// Summary of one sweep.
type Summary struct {
	RunID          string
	DryRun         bool
	Datasets       int
	Configs        int
	SkippedConfigs int
	Specs          int
	Launched       int
	Failed         int
}

// Dispatched is the number of commands handed to the launcher, successful
// or not.
func (s Summary) Dispatched() int {
	return s.Launched + s.Failed
}

type Dispatcher struct {
	codeDir   string
	namespace string
	ledger    *ledger.Ledger
	launcher  *launch.Launcher
	newID     func() string
}

func NewDispatcher(codeDir, namespace string, l *ledger.Ledger, launcher *launch.Launcher) *Dispatcher {
	return &Dispatcher{
		codeDir:   codeDir,
		namespace: namespace,
		ledger:    l,
		launcher:  launcher,
		newID:     uuid.NewString,
	}
}

// Sweep launches every tool spec of every dataset config once. Broken
// configs and failed launches are logged and counted; Sweep only fails when
// ctx is cancelled.
func (d *Dispatcher) Sweep(ctx context.Context) (Summary, error) {
	sum := Summary{
		RunID:  d.newID(),
		DryRun: d.launcher.DryRun(),
	}
	ctx = log.ContextAttrs(ctx, slog.String("run_id", sum.RunID))

	slog.InfoContext(ctx, "sweep started", "code_dir", d.codeDir, "namespace", d.namespace, "dry_run", sum.DryRun)

	datasets := discover.Scan(ctx, d.codeDir, d.namespace)
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("sweep interrupted: %w", err)
	}
	if len(datasets) == 0 {
		slog.InfoContext(ctx, "no datasets with watchdog configs found", "code_dir", d.codeDir, "namespace", d.namespace)
	} else if !sum.DryRun {
		d.ledger.RecordRunStart(ctx, sum.RunID)
	}

	for _, ds := range datasets {
		sum.Datasets++
		dsCtx := log.ContextAttrs(ctx, slog.String("dataset", ds.Name))
		for _, path := range ds.ConfigFiles {
			if err := ctx.Err(); err != nil {
				return sum, fmt.Errorf("sweep interrupted: %w", err)
			}
			sum.Configs++
			specs, err := toolconf.Load(dsCtx, path, ds.Name)
			if err != nil {
				sum.SkippedConfigs++
				slog.WarnContext(dsCtx, "skipping config", "path", path, "error", err)
				continue
			}
			for _, spec := range specs {
				sum.Specs++
				if _, err := d.launcher.Launch(dsCtx, spec, ds.LogDir(d.namespace)); err != nil {
					sum.Failed++
					continue
				}
				sum.Launched++
			}
		}
	}

	mode := "LIVE"
	if sum.DryRun {
		mode = "DRY-RUN"
	}
	slog.InfoContext(ctx, fmt.Sprintf("[%s] Finished - %d command(s) dispatched", mode, sum.Dispatched()),
		"datasets", sum.Datasets,
		"configs", sum.Configs,
		"skipped_configs", sum.SkippedConfigs,
		"launched", sum.Launched,
		"failed", sum.Failed,
	)
	return sum, nil
}
