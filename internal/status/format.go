package status

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/ln2t/watchdog/internal/jobs"
)

const dateLayout = "2006-01-02 15:04:05"

// WriteText prints the report for a terminal.
func (r Report) WriteText(out io.Writer) error {
	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "ln2t_watchdog status report")
	fmt.Fprintln(w)

	if r.LastRun.IsZero() {
		fmt.Fprintf(w, "Last run:\tnever (or state file missing)\n")
	} else {
		fmt.Fprintf(w, "Last run:\t%s\n", r.LastRun.Format(dateLayout))
	}
	if !r.NextRun.IsZero() {
		fmt.Fprintf(w, "Next run:\t%s\n", r.NextRun.Format(dateLayout))
	}

	if len(r.Units) > 0 {
		fmt.Fprintln(w, "\nsystemd status")
		for _, u := range r.Units {
			if u.Err != nil {
				fmt.Fprintf(w, "  ✗ %s\tERROR: %v\n", u.Name, u.Err)
				continue
			}
			mark := "○"
			if u.Active == "active" {
				mark = "✓"
			}
			fmt.Fprintf(w, "  %s %s\tactive=%s\tenabled=%s\n", mark, u.Name, u.Active, u.Enabled)
		}
	}

	fmt.Fprintf(w, "\nDiscovered datasets (%d)\n", len(r.Datasets))
	if len(r.Datasets) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, ds := range r.Datasets {
		fmt.Fprintf(w, "  %s\n", ds.Name)
		for _, cfg := range ds.Configs {
			fmt.Fprintf(w, "    config: %s\n", filepath.Base(cfg))
		}
		if len(ds.RecentLogs) > 0 {
			fmt.Fprintln(w, "    recent logs:")
			for _, lf := range ds.RecentLogs {
				fmt.Fprintf(w, "      %s\t(%d bytes, %s)\n", lf.Name(), lf.Size, lf.ModTime.Format("2006-01-02 15:04"))
			}
		}
	}

	fmt.Fprintf(w, "\nRunning jobs (%d)\n", len(r.Running))
	for _, j := range r.Running {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", j.PID, j.Dataset, j.Tool, j.Started)
	}

	if len(r.History) > 0 {
		fmt.Fprintln(w, "\nRecent run history")
		for _, line := range r.History {
			// history lines carry their own spacing, keep it out of the columns
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(line, "\t", " "))
		}
	}
	return w.Flush()
}

// WriteJobs prints the roster as a table. The caller sorts it.
func WriteJobs(out io.Writer, roster []jobs.Job) error {
	if len(roster) == 0 {
		_, err := fmt.Fprintln(out, "No running jobs found.")
		return err
	}
	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintf(w, "Total: %d job(s)\n\n", len(roster))
	fmt.Fprintln(w, "PID\tDATASET\tTOOL\tSTARTED")
	for _, j := range roster {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", j.PID, j.Dataset, j.Tool, j.Started)
	}
	return w.Flush()
}
