package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmeurs/flatstore/internal/lock"
	"github.com/tmeurs/flatstore/internal/store"
)

var (
	statsPrometheus bool
	statsTimeout    time.Duration
)

// ProbeResult describes one test acquisition of a document lock.
type ProbeResult struct {
	Path     string `json:"path"`
	State    string `json:"state"`
	Degraded string `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
	Wait     string `json:"wait"`
}

// StatsOutput is the output of the stats command.
type StatsOutput struct {
	Probes []ProbeResult `json:"probes,omitempty"`
	Stats  lock.Snapshot `json:"stats"`
}

var statsCmd = &cobra.Command{
	Use:   "stats [file...]",
	Short: "Probe document locks and show lock counters",
	Long: `Acquire and release the lock of each given document once, report
whether the OS lock was obtained or the guard ran degraded, then print the
lock counters of this process.

Use --prometheus to print the counters in Prometheus text format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout := statsTimeout
		if timeout <= 0 {
			timeout = conf.ReadTimeout
		}
		return runStats(cmd.OutOrStdout(), docs, locks, args, timeout, statsPrometheus)
	},
}

func probe(s *store.Store, m *lock.Manager, file string, timeout time.Duration) ProbeResult {
	path := s.Path(file)
	start := time.Now()
	res := ProbeResult{Path: path}

	g, err := m.Acquire(path, timeout, lock.Exclusive)
	res.Wait = time.Since(start).Round(time.Microsecond).String()
	if err != nil {
		res.State = "timeout"
		res.Error = err.Error()
		return res
	}
	defer g.Release()

	res.State = g.State().String()
	if reason := g.DegradedReason(); reason != nil {
		res.Degraded = reason.Error()
	}
	return res
}

func runStats(w io.Writer, s *store.Store, m *lock.Manager, files []string, timeout time.Duration, prometheus bool) error {
	out := StatsOutput{}
	for _, f := range files {
		out.Probes = append(out.Probes, probe(s, m, f, timeout))
	}
	out.Stats = m.Stats()

	if prometheus {
		m.Statistics().WritePrometheus(w)
		return nil
	}
	if IsJSONOutput() {
		PrintJSON(w, out)
		return nil
	}

	if len(out.Probes) > 0 {
		fmt.Fprintln(w, Styles.Title.Render("Lock probes"))
		for _, p := range out.Probes {
			state := Styles.Success.Render(p.State)
			switch p.State {
			case lock.StateSystemDegraded.String():
				state = Styles.Warning.Render(p.State + ": " + p.Degraded)
			case "timeout":
				state = Styles.Error.Render(p.State)
			}
			fmt.Fprintf(w, "  %s %s %s\n", p.Path, state, Styles.Muted.Render("(waited "+p.Wait+")"))
		}
		fmt.Fprintln(w)
	}
	printSnapshot(w, out.Stats)
	return nil
}

func printSnapshot(w io.Writer, s lock.Snapshot) {
	fmt.Fprintln(w, Styles.Title.Render("Lock statistics"))
	printKV(w, "acquired", s.Acquired)
	printKV(w, "conflicts", s.Conflicts)
	printKV(w, "timeouts", s.Timeouts)
	printKV(w, "degraded", s.Degraded)
	printKV(w, "locks", s.ActiveLocks)
}

func init() {
	statsCmd.Flags().BoolVar(&statsPrometheus, "prometheus", false, "Print counters in Prometheus text format")
	statsCmd.Flags().DurationVar(&statsTimeout, "timeout", 0, "Lock budget per probe (default: read timeout)")
	rootCmd.AddCommand(statsCmd)
}
