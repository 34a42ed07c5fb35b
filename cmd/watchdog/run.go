package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/ln2t/watchdog/internal/launch"
	"github.com/ln2t/watchdog/internal/log"
	"github.com/ln2t/watchdog/internal/model"
	"github.com/ln2t/watchdog/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "scan dataset configs and launch every tool command once",
	RunE:  doRun,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run sweeps on the schedule of service.schedule until interrupted",
	RunE:  doServe,
}

func init() {
	runCmd.Flags().BoolP("dry-run", "n", false, "print commands without executing them")
	serveCmd.Flags().BoolP("dry-run", "n", false, "print commands without executing them")
}

func newDispatcher(cmd *cobra.Command) (*service.Dispatcher, error) {
	if err := overrides.BindPFlag(model.KeyDryRun, cmd.Flags().Lookup("dry-run")); err != nil {
		return nil, err
	}
	model.ApplyOverrides(&config, overrides)

	l := newLedger()
	launcher := launch.New(config.Runner, l).WithDryRun(config.Service.DryRun, cmd.OutOrStdout())
	return service.NewDispatcher(codeDir, config.Namespace, l, launcher), nil
}

func commandContext(cmd *cobra.Command, name string) context.Context {
	return log.ContextAttrs(cmd.Context(), slog.Group("watchdog",
		slog.String("cmd", name),
		slog.Int("pid", os.Getpid()),
	))
}

func doRun(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "run")
	dispatcher, err := newDispatcher(cmd)
	if err != nil {
		return err
	}
	_, err = dispatcher.Sweep(ctx)
	return err
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd, "serve"), os.Interrupt, unix.SIGTERM)
	defer stop()

	dispatcher, err := newDispatcher(cmd)
	if err != nil {
		return err
	}
	supervisor, err := service.NewSupervisor(ctx, config.Service, dispatcher)
	if err != nil {
		return err
	}
	if config.Service.Mode == model.ServiceModeManual {
		slog.InfoContext(ctx, "service.mode is manual: running a single sweep")
	}
	err = supervisor.Do(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
