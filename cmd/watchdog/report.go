package main

import (
	"fmt"

	"github.com/ln2t/watchdog/internal/command"
	"github.com/ln2t/watchdog/internal/discover"
	"github.com/ln2t/watchdog/internal/status"
	"github.com/ln2t/watchdog/internal/toolconf"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list discovered datasets, configs and the commands they produce",
	Args:  cobra.NoArgs,
	RunE:  doList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the watchdog status report",
	Args:  cobra.NoArgs,
	RunE:  doStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs [dataset]",
	Short: "show recent log files, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doLogs,
}

func init() {
	logsCmd.Flags().IntP("limit", "l", 20, "max log files to show per dataset")
}

func doList(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "list")
	out := cmd.OutOrStdout()
	datasets := discover.Scan(ctx, codeDir, config.Namespace)
	if len(datasets) == 0 {
		fmt.Fprintf(out, "No datasets with %s configs found.\n", config.Namespace)
		return nil
	}
	for _, ds := range datasets {
		fmt.Fprintf(out, "\n%s\n", ds.Name)
		for _, path := range ds.ConfigFiles {
			fmt.Fprintf(out, "  config: %s\n", path)
			specs, err := toolconf.Load(ctx, path, ds.Name)
			if err != nil {
				fmt.Fprintf(out, "    ! %v\n", err)
				continue
			}
			for _, spec := range specs {
				fmt.Fprintf(out, "    -> %s\n", command.Build(config.Runner, spec).Display)
			}
		}
	}
	return nil
}

func doStatus(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "status")
	collector := status.NewCollector(codeDir, config.Namespace, newLedger())
	if config.Service.Schedule != nil {
		collector.WithSchedule(config.Service.Schedule)
	}
	return collector.Collect(ctx).WriteText(cmd.OutOrStdout())
}

func doLogs(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd, "logs")
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	var target string
	if len(args) == 1 {
		target = args[0]
	}

	out := cmd.OutOrStdout()
	found := false
	for _, ds := range discover.Scan(ctx, codeDir, config.Namespace) {
		if target != "" && ds.Name != target {
			continue
		}
		found = true
		logs, err := status.RecentLogs(ds, config.Namespace, limit)
		if err != nil {
			fmt.Fprintf(out, "  ! %v\n", err)
		}
		if len(logs) == 0 {
			fmt.Fprintf(out, "  No logs for %s\n", ds.Name)
			continue
		}
		fmt.Fprintf(out, "\nLogs for %s:\n", ds.Name)
		for _, lf := range logs {
			fmt.Fprintf(out, "  %s  (%d bytes)\n", lf.Name(), lf.Size)
		}
	}
	if target != "" && !found {
		return fmt.Errorf("dataset %q not found in %s", target, codeDir)
	}
	return nil
}
