package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/tui"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect past and live runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsWatchCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs yet")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tATTEMPTS\tCREATED\tSTORY")
			for _, rec := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
					rec.ID, rec.Status, rec.Attempt, rec.MaxAttempts, rec.CreatedAt, firstLine(rec.Story, 64))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "show <run-id>",
		Short:        "Show one run with its story, verdicts, and timeline",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				return err
			}

			fmt.Printf("%s  %s  attempt %d/%d\n", rec.ID, rec.Status, rec.Attempt, rec.MaxAttempts)
			if rec.SourcePath != "" {
				fmt.Printf("artifacts: %s, %s\n", rec.SourcePath, rec.TestPath)
			}
			fmt.Print(renderMarkdown(rec.Story))

			decisions, err := store.ListDecisions(cmd.Context(), rec.ID)
			if err != nil {
				return err
			}
			if len(decisions) > 0 {
				fmt.Println("arbitration:")
				for _, d := range decisions {
					fmt.Printf("  attempt %d: %s (%s)\n", d.Attempt, d.Verdict, d.Rationale)
				}
				fmt.Println()
			}

			events, err := store.ListEvents(cmd.Context(), rec.ID)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Printf("%s  %-11s %s\n", e.CreatedAt, e.Phase, e.Message)
			}
			return nil
		},
	}
}

func runsWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "watch <run-id>",
		Short:        "Watch a run live in the terminal",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()
			return tui.Watch(store, args[0])
		},
	}
}

func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}
