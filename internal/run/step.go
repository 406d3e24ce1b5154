package run

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhuang-keju/GreyCells/internal/agents"
	"github.com/zhuang-keju/GreyCells/internal/extract"
	"github.com/zhuang-keju/GreyCells/internal/llm"
)

// generateStep performs one model call for a role and records the
// prompt, the raw reply, and the extraction result under the step
// directory.
func (r *Runner) generateStep(ctx context.Context, index int, role string, retry int, prompt agents.Prompt, schema extract.Schema) (extract.Result, error) {
	stepName := fmt.Sprintf("%02d-%s", index, role)
	if retry > 0 {
		stepName = fmt.Sprintf("%02d-%s-retry-%d", index, role, retry)
	}
	stepDir := filepath.Join(r.layout.Steps, stepName)
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return extract.Result{}, fmt.Errorf("create step dir: %w", err)
	}

	promptText := fmt.Sprintf("=== system ===\n%s\n\n=== user ===\n%s\n", prompt.System, prompt.User)
	if err := os.WriteFile(filepath.Join(stepDir, "prompt.txt"), []byte(promptText), 0o644); err != nil {
		return extract.Result{}, fmt.Errorf("write prompt: %w", err)
	}

	timeout := time.Duration(r.cfg.Run.GenTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().
		Str("role", role).
		Str("run_id", r.runID).
		Int("step_index", index).
		Int("retry", retry).
		Msg("agent start")

	temp := r.cfg.LLM.Temperature
	started := time.Now()
	reply, genErr := r.client.Generate(genCtx, prompt.User, llm.GenerationParams{
		SystemPrompt: prompt.System,
		Temperature:  &temp,
	})
	finishEvent := log.Info().
		Str("role", role).
		Str("run_id", r.runID).
		Int("step_index", index).
		Dur("duration", time.Since(started))
	if genErr != nil {
		finishEvent = finishEvent.Err(genErr)
	}
	finishEvent.Msg("agent finished")
	if genErr != nil {
		return extract.Result{}, fmt.Errorf("%s generation: %w", role, genErr)
	}

	if err := os.WriteFile(filepath.Join(stepDir, "response.txt"), []byte(reply), 0o644); err != nil {
		return extract.Result{}, fmt.Errorf("write response: %w", err)
	}

	res := extract.Extract(reply, schema)
	if err := writeJSON(filepath.Join(stepDir, "extract.json"), res); err != nil {
		return extract.Result{}, err
	}
	if !res.OK {
		log.Debug().Str("role", role).Strs("diagnostics", res.Diagnostics).Msg("extraction incomplete")
	}
	return res, nil
}

// generateChecked runs a role's generation and conversion, regenerating
// while the reply fails extraction, up to the configured retry budget.
// Transport errors are not retried.
func (r *Runner) generateChecked(ctx context.Context, role string, prompt agents.Prompt, convert func(extract.Result) error) error {
	schema, err := agents.SchemaFor(role)
	if err != nil {
		return err
	}
	index := r.nextStep()
	retries := r.cfg.Run.MaxExtractRetry
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		res, err := r.generateStep(ctx, index, role, attempt, prompt, schema)
		if err != nil {
			return err
		}
		convErr := convert(res)
		if convErr == nil {
			return nil
		}
		if !errors.Is(convErr, agents.ErrMalformed) {
			return convErr
		}
		lastErr = convErr
		log.Warn().Str("role", role).Int("retry", attempt).Err(convErr).Msg("reply failed extraction")
	}
	return fmt.Errorf("%s reply unusable after %d retries: %w", role, retries, lastErr)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func randomHex(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
