package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmeurs/flatstore/internal/lock"
	"github.com/tmeurs/flatstore/internal/store"
)

var (
	stressWorkers int
	stressRounds  int
)

// errLostUpdates is returned when a stress run finds fewer entries than it wrote.
var errLostUpdates = errors.New("lost updates detected")

// StressOutput is the result of a stress run.
type StressOutput struct {
	Path      string        `json:"path"`
	Workers   int           `json:"workers"`
	Rounds    int           `json:"rounds"`
	Before    int           `json:"before"`
	After     int           `json:"after"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	Lost      int           `json:"lost"`
	Duration  string        `json:"duration"`
	Stats     lock.Snapshot `json:"stats"`
}

var stressCmd = &cobra.Command{
	Use:   "stress <file>",
	Short: "Append concurrently to a list document and check nothing is lost",
	Long: `Start --workers goroutines that each append --rounds entries to a list
document through locked updates, then check that the document grew by exactly
the number of successful updates.

Run it from several terminals at once to exercise the OS lock between
processes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := runStress(docs, args[0], stressWorkers, stressRounds)
		if err != nil && out == nil {
			return err
		}
		w := cmd.OutOrStdout()
		if IsJSONOutput() {
			PrintJSON(w, out)
		} else {
			printStress(w, out)
		}
		return err
	},
}

func listLen(s *store.Store, file string) (int, error) {
	doc, err := s.Read(file, []any{})
	if err != nil {
		return 0, err
	}
	list, ok := doc.([]any)
	if !ok {
		return 0, fmt.Errorf("%w: stress needs a list document, %s is a %s", errWrongShape, file, kind(doc))
	}
	return len(list), nil
}

func runStress(s *store.Store, file string, workers, rounds int) (*StressOutput, error) {
	if workers < 1 || rounds < 1 {
		return nil, fmt.Errorf("workers and rounds must be at least 1")
	}

	before, err := listLen(s, file)
	if err != nil {
		return nil, err
	}

	var succeeded, failed atomic.Int64
	var firstErr error
	var errOnce sync.Once
	pid := os.Getpid()
	start := time.Now()

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for r := range rounds {
				entry := map[string]any{"pid": pid, "worker": worker, "round": r}
				if err := s.Update(file, appendValue(entry)); err != nil {
					failed.Add(1)
					errOnce.Do(func() { firstErr = err })
					continue
				}
				succeeded.Add(1)
			}
		}(i)
	}
	wg.Wait()

	after, err := listLen(s, file)
	if err != nil {
		return nil, err
	}

	out := &StressOutput{
		Path:      s.Path(file),
		Workers:   workers,
		Rounds:    rounds,
		Before:    before,
		After:     after,
		Succeeded: succeeded.Load(),
		Failed:    failed.Load(),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
		Stats:     s.Stats(),
	}
	// Other processes may append at the same time, so only a shortfall counts.
	if missing := before + int(out.Succeeded) - after; missing > 0 {
		out.Lost = missing
		return out, fmt.Errorf("%w: %d of %d", errLostUpdates, missing, out.Succeeded)
	}
	if firstErr != nil {
		return out, fmt.Errorf("%d updates failed, first error: %w", out.Failed, firstErr)
	}
	return out, nil
}

func printStress(w io.Writer, out *StressOutput) {
	fmt.Fprintln(w, Styles.Title.Render("Stress run"))
	printKV(w, "path", out.Path)
	printKV(w, "updates", fmt.Sprintf("%d ok, %d failed (%d workers x %d rounds)", out.Succeeded, out.Failed, out.Workers, out.Rounds))
	printKV(w, "entries", fmt.Sprintf("%d -> %d", out.Before, out.After))
	printKV(w, "duration", out.Duration)
	if out.Lost > 0 {
		printKV(w, "lost", Styles.Error.Render(fmt.Sprint(out.Lost)))
	} else {
		printKV(w, "lost", Styles.Success.Render("0"))
	}
	fmt.Fprintln(w)
	printSnapshot(w, out.Stats)
}

func init() {
	stressCmd.Flags().IntVar(&stressWorkers, "workers", 20, "Number of concurrent writers")
	stressCmd.Flags().IntVar(&stressRounds, "rounds", 5, "Appends per writer")
	rootCmd.AddCommand(stressCmd)
}
