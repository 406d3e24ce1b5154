package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/llm"
	"github.com/zhuang-keju/GreyCells/internal/model"
	"github.com/zhuang-keju/GreyCells/internal/run"
	"github.com/zhuang-keju/GreyCells/internal/sandbox"
)

// benchProblem is one line of a problems.jsonl file. Check is an optional
// Python snippet appended to the produced source and executed; its asserts
// catch solutions that only pass their own generated tests.
type benchProblem struct {
	ID          string `json:"id"`
	Requirement string `json:"requirement"`
	Story       string `json:"story,omitempty"`
	Check       string `json:"check,omitempty"`
}

type benchResult struct {
	ID              string  `json:"id"`
	RunID           string  `json:"run_id,omitempty"`
	Status          string  `json:"status"`
	Attempts        int     `json:"attempts,omitempty"`
	Passed          bool    `json:"passed"`
	Verified        *bool   `json:"verified,omitempty"`
	Error           string  `json:"error,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func benchCmd() *cobra.Command {
	var (
		problemsPath string
		limit        int
		parallel     int
		outPath      string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a problem set through the pipeline and score it",
		Long: "Run every problem of a JSONL problem set through the full pipeline. A problem " +
			"counts as solved when its run succeeds; a problem with a check snippet is " +
			"additionally verified against that snippet to catch false positives.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			problems, err := readProblems(problemsPath, limit)
			if err != nil {
				return err
			}
			if len(problems) == 0 {
				return fmt.Errorf("no problems in %s", problemsPath)
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
			client, err := llm.New(cmd.Context(), cfg, repoRoot)
			if err != nil {
				return err
			}

			if parallel < 1 {
				parallel = 1
			}
			log.Info().Int("problems", len(problems)).Int("parallel", parallel).Msg("benchmark start")

			baseDir := filepath.Join(repoRoot, stateDirName)
			results := make([]benchResult, len(problems))
			g := new(errgroup.Group)
			g.SetLimit(parallel)
			for i, p := range problems {
				g.Go(func() error {
					results[i] = runProblem(cmd.Context(), cfg, store, client, baseDir, p)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if err := writeBenchResults(outPath, results); err != nil {
				return err
			}
			printBenchSummary(os.Stdout, results)
			fmt.Printf("results written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&problemsPath, "problems", "problems.jsonl", "problem set, one JSON object per line")
	cmd.Flags().IntVar(&limit, "limit", 0, "run only the first N problems")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "problems to run concurrently")
	cmd.Flags().StringVar(&outPath, "out", "bench-results.json", "results file")
	return cmd
}

func readProblems(path string, limit int) ([]benchProblem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open problems: %w", err)
	}
	defer f.Close()
	return parseProblems(f, limit)
}

func parseProblems(r io.Reader, limit int) ([]benchProblem, error) {
	var out []benchProblem
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var p benchProblem
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("problems line %d: %w", line, err)
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("problem-%d", line)
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read problems: %w", err)
	}
	return out, nil
}

func runProblem(ctx context.Context, cfg config.Config, store *db.Store, client llm.Client, baseDir string, p benchProblem) benchResult {
	start := time.Now()
	out := benchResult{ID: p.ID, Status: "error"}

	runner := run.NewRunner(baseDir, cfg, store, client)
	res, err := runner.Run(ctx, run.Request{Requirement: p.Requirement, Story: p.Story})
	out.RunID = res.RunID
	if err != nil {
		out.Error = err.Error()
		out.DurationSeconds = roundSeconds(time.Since(start))
		return out
	}

	out.Status = string(res.Status)
	out.Attempts = res.Attempts
	out.Passed = res.Status == model.PhaseSucceeded

	if out.Passed && strings.TrimSpace(p.Check) != "" {
		verified, err := verifySolution(ctx, cfg, store, baseDir, res, p.Check)
		if err != nil {
			out.Error = err.Error()
		}
		out.Verified = &verified
		if !verified {
			log.Warn().Str("problem", p.ID).Str("run_id", res.RunID).
				Msg("run passed its own tests but failed canonical verification")
		}
	}
	out.DurationSeconds = roundSeconds(time.Since(start))
	return out
}

// verifySolution appends the canonical check snippet to the produced
// source and runs the combined script.
func verifySolution(ctx context.Context, cfg config.Config, store *db.Store, baseDir string, res run.Result, check string) (bool, error) {
	rec, err := store.GetRun(ctx, res.RunID)
	if err != nil {
		return false, err
	}
	src, err := os.ReadFile(filepath.Join(res.OutputDir, rec.SourcePath))
	if err != nil {
		return false, fmt.Errorf("read solution: %w", err)
	}

	script := model.Artifact{
		Path:    rec.SourcePath,
		Content: combineCheck(string(src), check),
	}
	if reqs, err := os.ReadFile(filepath.Join(res.OutputDir, "requirements.txt")); err == nil {
		script.Packages = strings.Fields(string(reqs))
	}

	sb := sandbox.New(cfg.Sandbox, filepath.Join(baseDir, "bench"))
	outcome, err := sb.RunScript(ctx, script)
	if err != nil {
		return false, err
	}
	return outcome.Passed, nil
}

func combineCheck(source, check string) string {
	return strings.TrimRight(source, "\n") + "\n\n\n" + strings.TrimRight(check, "\n") + "\n"
}

func writeBenchResults(path string, results []benchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func printBenchSummary(w io.Writer, results []benchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBLEM\tSTATUS\tATTEMPTS\tVERIFIED\tTIME")
	solved, falsePositives := 0, 0
	for _, r := range results {
		verified := "-"
		if r.Verified != nil {
			if *r.Verified {
				verified = "yes"
			} else {
				verified = "NO"
				if r.Passed {
					falsePositives++
				}
			}
		}
		if r.Passed {
			solved++
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.1fs\n", r.ID, r.Status, r.Attempts, verified, r.DurationSeconds)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nsolved %d/%d", solved, len(results))
	if falsePositives > 0 {
		fmt.Fprintf(w, " (%d false positive(s))", falsePositives)
	}
	fmt.Fprintln(w)
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
