package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ln2t/watchdog/internal/jobs"
	"github.com/ln2t/watchdog/internal/status"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "list running jobs started by the watchdog",
	Args:  cobra.NoArgs,
	RunE:  doJobs,
}

var killCmd = &cobra.Command{
	Use:   "kill [PID...]",
	Short: "terminate running jobs and their whole process group",
	Long: `Terminate running jobs selected by PID, --dataset, --tool or --all.

Jobs get SIGTERM, or SIGKILL with --force. With --grace a job still alive
after the grace period gets SIGKILL. Terminating more than one job asks for
a confirmation unless --yes is given.`,
	RunE: doKill,
}

func init() {
	f := killCmd.Flags()
	f.String("dataset", "", "select jobs of this dataset")
	f.String("tool", "", "select jobs of this tool")
	f.Bool("all", false, "select all running jobs")
	f.Bool("force", false, "send SIGKILL instead of SIGTERM")
	f.Duration("grace", 0, "escalate to SIGKILL for jobs still alive after this period")
	f.BoolP("yes", "y", false, "do not ask for confirmation")
}

func doJobs(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "jobs")
	roster, err := jobs.NewTracker(newLedger()).Running(ctx)
	if err != nil {
		return err
	}
	jobs.Sort(roster)
	return status.WriteJobs(cmd.OutOrStdout(), roster)
}

type killFlags struct {
	selector jobs.Selector
	force    bool
	grace    time.Duration
	yes      bool
}

func parseKillFlags(cmd *cobra.Command, args []string) (killFlags, error) {
	var (
		kf   killFlags
		errs []error
	)
	for _, arg := range args {
		pid, err := strconv.Atoi(arg)
		if err != nil || pid <= 0 {
			errs = append(errs, fmt.Errorf("invalid PID %q", arg))
			continue
		}
		kf.selector.PIDs = append(kf.selector.PIDs, pid)
	}
	f := cmd.Flags()
	var err error
	kf.selector.Dataset, err = f.GetString("dataset")
	errs = append(errs, err)
	kf.selector.Tool, err = f.GetString("tool")
	errs = append(errs, err)
	kf.selector.All, err = f.GetBool("all")
	errs = append(errs, err)
	kf.force, err = f.GetBool("force")
	errs = append(errs, err)
	kf.grace, err = f.GetDuration("grace")
	errs = append(errs, err)
	kf.yes, err = f.GetBool("yes")
	errs = append(errs, err)
	return kf, errors.Join(errs...)
}

func doKill(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd, "kill")
	kf, err := parseKillFlags(cmd, args)
	if err != nil {
		return err
	}

	roster, err := jobs.NewTracker(newLedger()).Running(ctx)
	if err != nil {
		return err
	}
	targets, unknown, err := jobs.Select(roster, kf.selector)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, pid := range unknown {
		fmt.Fprintf(out, "PID %d is not a running watchdog job\n", pid)
	}
	if len(targets) == 0 {
		if len(unknown) > 0 {
			return errors.New("no job terminated")
		}
		fmt.Fprintln(out, "No matching jobs.")
		return nil
	}
	jobs.Sort(targets)

	if len(targets) > 1 && !kf.yes {
		ok, err := confirm(cmd.InOrStdin(), out, targets, kf.force)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var failed int
	for _, o := range jobs.NewTerminator(kf.force, kf.grace).Run(ctx, targets) {
		mark := "✓"
		if !o.OK {
			mark = "✗"
			failed++
		}
		fmt.Fprintf(out, "%s %d %s/%s: %s\n", mark, o.Job.PID, o.Job.Dataset, o.Job.Tool, o.Message)
	}
	if failed > 0 || len(unknown) > 0 {
		return fmt.Errorf("%d of %d job(s) could not be terminated", failed+len(unknown), len(targets)+len(unknown))
	}
	return nil
}

// confirm asks the operator before terminating several jobs. A stdin which
// is not a terminal can't answer, so the caller must pass --yes.
func confirm(in io.Reader, out io.Writer, targets []jobs.Job, force bool) (bool, error) {
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("refusing to terminate %d jobs without confirmation: stdin is not a terminal, use --yes", len(targets))
	}
	if err := status.WriteJobs(out, targets); err != nil {
		return false, err
	}
	signal := "SIGTERM"
	if force {
		signal = "SIGKILL"
	}
	fmt.Fprintf(out, "\nSend %s to %d job(s)? [y/N] ", signal, len(targets))

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
