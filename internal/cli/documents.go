package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmeurs/flatstore/internal/store"
)

var readDefault string

var readCmd = &cobra.Command{
	Use:   "read <file>",
	Short: "Print a document",
	Long: `Print a document as indented JSON.

A missing, empty or corrupt file prints the --default value instead; corrupt
files are reported in the log. The file is never created.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRead(cmd.OutOrStdout(), docs, args[0], readDefault)
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <file> [json|-]",
	Short: "Replace a document",
	Long: `Atomically replace a document with a JSON value.

The value is taken from the second argument, or from stdin when it is
omitted or "-".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := "-"
		if len(args) == 2 {
			raw = args[1]
		}
		if raw == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			raw = string(data)
		}
		return runWrite(cmd.OutOrStdout(), docs, args[0], raw)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <file> <append <json> | set <key> <json> | delete <key>>",
	Short: "Change a document in one locked read-modify-write",
	Long: `Change a document under a single exclusive lock.

  append <json>      append a value to a list document
  set <key> <json>   set a key of an object document
  delete <key>       remove a key of an object document

A missing file starts as an empty list (or an empty object for set/delete).`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd.OutOrStdout(), docs, args[0], args[1], args[2:])
	},
}

func runRead(w io.Writer, s *store.Store, file, rawDefault string) error {
	def, err := parseJSONArg(rawDefault)
	if err != nil {
		return fmt.Errorf("--default: %w", err)
	}
	doc, err := s.Read(file, def)
	if err != nil {
		return err
	}
	PrintJSON(w, doc)
	return nil
}

func runWrite(w io.Writer, s *store.Store, file, raw string) error {
	value, err := parseJSONArg(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	start := time.Now()
	if err := s.Write(file, value); err != nil {
		return err
	}
	printDone(w, s.Path(file), "write", time.Since(start))
	return nil
}

func runUpdate(w io.Writer, s *store.Store, file, action string, args []string) error {
	var transform func(store.Document) (store.Document, error)

	switch action {
	case "append":
		if len(args) != 1 {
			return fmt.Errorf("append takes exactly one JSON value")
		}
		value, err := parseJSONArg(args[0])
		if err != nil {
			return err
		}
		transform = appendValue(value)
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("set takes a key and a JSON value")
		}
		value, err := parseJSONArg(args[1])
		if err != nil {
			return err
		}
		transform = setKey(args[0], value)
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("delete takes exactly one key")
		}
		transform = deleteKey(args[0])
	default:
		return fmt.Errorf("unknown update action %q (want append, set or delete)", action)
	}

	start := time.Now()
	if err := s.Update(file, transform); err != nil {
		return err
	}
	printDone(w, s.Path(file), action, time.Since(start))
	return nil
}

func printDone(w io.Writer, path, action string, took time.Duration) {
	if IsJSONOutput() {
		PrintJSON(w, StatusOutput{
			Status:   "ok",
			Path:     path,
			Action:   action,
			Duration: took.Round(time.Microsecond).String(),
		})
		return
	}
	fmt.Fprintf(w, "%s %s %s\n",
		Styles.Success.Render("✓ "+action),
		path,
		Styles.Muted.Render("("+took.Round(time.Microsecond).String()+")"),
	)
}

func init() {
	readCmd.Flags().StringVar(&readDefault, "default", "null", "JSON value printed when the document is missing or corrupt")

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(updateCmd)
}
