package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/llm"
	"github.com/zhuang-keju/GreyCells/internal/model"
	"github.com/zhuang-keju/GreyCells/internal/run"
)

func runCmd() *cobra.Command {
	var (
		maxAttempts int
		execTimeout int
		provider    string
		modelName   string
		outputDir   string
		storyFlag   string
	)
	cmd := &cobra.Command{
		Use:   "run <requirement>",
		Short: "Run the full pipeline for one requirement",
		Long: "Draft a user story, generate source and tests, execute them, and arbitrate " +
			"failures until the tests pass or the attempt budget runs out.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			requirement := strings.TrimSpace(strings.Join(args, " "))
			story, err := resolveStory(storyFlag)
			if err != nil {
				return err
			}
			if requirement == "" && story == "" {
				return fmt.Errorf("provide a requirement or --story")
			}

			store, repoRoot, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, err := loadConfig(repoRoot)
			if err != nil {
				return err
			}
			if maxAttempts > 0 {
				cfg.Run.MaxAttempts = maxAttempts
			}
			if execTimeout > 0 {
				cfg.Sandbox.ExecTimeoutSeconds = execTimeout
			}
			if provider != "" {
				cfg.LLM.Provider = provider
			}
			if modelName != "" {
				cfg.LLM.Model = modelName
			}
			if outputDir != "" {
				cfg.Run.OutputDir = outputDir
			}

			client, err := llm.New(cmd.Context(), cfg, repoRoot)
			if err != nil {
				return err
			}

			baseDir := filepath.Join(repoRoot, stateDirName)
			if _, err := run.ReconcileStale(cmd.Context(), store, baseDir); err != nil {
				return err
			}

			runner := run.NewRunner(baseDir, cfg, store, client)
			res, err := runner.Run(cmd.Context(), run.Request{Requirement: requirement, Story: story})
			if err != nil {
				return err
			}

			printRunResult(cmd.Context(), store, res)
			if res.Status != model.PhaseSucceeded {
				return fmt.Errorf("tests never passed (status %s)", res.Status)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "override the configured attempt budget")
	cmd.Flags().IntVar(&execTimeout, "timeout", 0, "override the test execution timeout in seconds")
	cmd.Flags().StringVar(&provider, "provider", "", "override the LLM provider (gemini, openai, agent)")
	cmd.Flags().StringVar(&modelName, "model", "", "override the LLM model")
	cmd.Flags().StringVar(&outputDir, "output", "", "override the artifact output directory")
	cmd.Flags().StringVar(&storyFlag, "story", "", "skip the product manager and use this story (text, or @file)")
	return cmd
}

// resolveStory returns the story text for --story, reading it from a file
// when the value is @-prefixed.
func resolveStory(flag string) (string, error) {
	story := strings.TrimSpace(flag)
	if !strings.HasPrefix(story, "@") {
		return story, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(story, "@"))
	if err != nil {
		return "", fmt.Errorf("read story file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printRunResult(ctx context.Context, store *db.Store, res run.Result) {
	switch res.Status {
	case model.PhaseSucceeded:
		fmt.Printf("run %s succeeded after %d attempt(s)\n", res.RunID, res.Attempts)
		if res.OutputDir != "" {
			fmt.Printf("artifacts written to %s\n", res.OutputDir)
		}
	default:
		fmt.Printf("run %s %s after %d attempt(s)\n", res.RunID, res.Status, res.Attempts)
		if res.OutputDir != "" {
			fmt.Printf("last versions written to %s\n", res.OutputDir)
		}
		decisions, err := store.ListDecisions(ctx, res.RunID)
		if err != nil || len(decisions) == 0 {
			return
		}
		fmt.Println("arbitration history:")
		for _, d := range decisions {
			fmt.Printf("  attempt %d: %s (%s)\n", d.Attempt, d.Verdict, d.Rationale)
		}
	}
}
