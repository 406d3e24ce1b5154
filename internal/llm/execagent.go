package llm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/metalagman/ainvoke"
	"github.com/rs/zerolog/log"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/logging"
)

type agentSpec struct {
	defaultSubcommand string
	extraFlags        []string
}

var agentSpecs = map[string]agentSpec{
	"codex": {
		defaultSubcommand: "exec",
		extraFlags:        []string{"--full-auto", "--skip-git-repo-check"},
	},
	"opencode": {
		defaultSubcommand: "run",
	},
	"gemini": {
		extraFlags: []string{"--output-format", "text", "--approval-mode", "yolo"},
	},
	"claude": {
		extraFlags: []string{"--output-format", "text", "--print", "--dangerously-skip-permissions"},
	},
}

// ExecAgent drives a local CLI coding agent as a text generator. The
// agent receives the prompt as its task input and everything it prints
// to stdout is the generation.
type ExecAgent struct {
	runner ainvoke.Runner
	cmd    []string
	dir    string
	calls  atomic.Int64
}

type execInput struct {
	Prompt string `json:"prompt"`
}

// NewExecAgent builds the runner for the configured agent command. The
// first element of cmd selects flag handling for known agents; unknown
// commands run as given.
func NewExecAgent(cfg config.AgentConfig, workDir string) (*ExecAgent, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("agent provider requires agent.cmd")
	}
	cmd := prepareCmd(cfg.Cmd, cfg.Model)

	useTTY := false
	if cfg.UseTTY != nil {
		useTTY = *cfg.UseTTY
	}
	runner, err := ainvoke.NewRunner(ainvoke.AgentConfig{
		Cmd:    cmd,
		UseTTY: useTTY,
	})
	if err != nil {
		return nil, fmt.Errorf("init agent runner: %w", err)
	}
	return &ExecAgent{runner: runner, cmd: cmd, dir: workDir}, nil
}

// prepareCmd appends the default subcommand, model flag, and safety flags
// for known agent CLIs.
func prepareCmd(base []string, model string) []string {
	out := append([]string{}, base...)
	spec, known := agentSpecs[filepath.Base(out[0])]
	if !known {
		return out
	}
	if spec.defaultSubcommand != "" && len(out) == 1 {
		out = append(out, spec.defaultSubcommand)
	}
	if model != "" {
		out = append(out, "--model", model)
	}
	return append(out, spec.extraFlags...)
}

// Name implements Client.
func (a *ExecAgent) Name() string { return config.ProviderAgent }

// Generate implements Client. Each call gets its own invocation directory
// under the agent work dir with the input file and stream logs.
func (a *ExecAgent) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	callDir := filepath.Join(a.dir, fmt.Sprintf("call-%03d", a.calls.Add(1)))
	if err := os.MkdirAll(callDir, 0o755); err != nil {
		return "", fmt.Errorf("create agent call dir: %w", err)
	}

	stdoutLog, err := os.Create(filepath.Join(callDir, "stdout.log"))
	if err != nil {
		return "", fmt.Errorf("create stdout log: %w", err)
	}
	defer func() {
		if cerr := stdoutLog.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close agent stdout log")
		}
	}()
	stderrLog, err := os.Create(filepath.Join(callDir, "stderr.log"))
	if err != nil {
		return "", fmt.Errorf("create stderr log: %w", err)
	}
	defer func() {
		if cerr := stderrLog.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close agent stderr log")
		}
	}()

	inv := ainvoke.Invocation{
		RunDir:       callDir,
		SystemPrompt: agentSystemPrompt(params.SystemPrompt),
		Input:        execInput{Prompt: prompt},
	}

	stdoutWriter := io.Writer(stdoutLog)
	stderrWriter := io.Writer(stderrLog)
	if logging.DebugEnabled() {
		stdoutWriter = io.MultiWriter(stdoutLog, os.Stderr)
		stderrWriter = io.MultiWriter(stderrLog, os.Stderr)
	}

	log.Debug().Strs("cmd", a.cmd).Str("call_dir", callDir).Msg("agent generate start")
	stdout, _, exitCode, err := a.runner.Run(ctx, inv, ainvoke.WithStdout(stdoutWriter), ainvoke.WithStderr(stderrWriter))
	if err != nil {
		return "", &TransportError{Provider: config.ProviderAgent, Err: err}
	}
	if exitCode != 0 {
		return "", &TransportError{Provider: config.ProviderAgent, Err: fmt.Errorf("agent exited with code %d", exitCode)}
	}
	return string(stdout), nil
}

// agentSystemPrompt frames the CLI agent as a plain text generator: no
// tool use, the whole answer on stdout.
func agentSystemPrompt(system string) string {
	var b strings.Builder
	b.WriteString("You are invoked as a text generation backend.\n")
	b.WriteString("- The task is the 'prompt' field of input.json in your working directory.\n")
	b.WriteString("- Write your complete answer to stdout and nothing else.\n")
	b.WriteString("- Do NOT create, modify, or run any files.\n")
	b.WriteString("- Answer in exactly the format the task asks for.\n")
	if system != "" {
		b.WriteString("\n")
		b.WriteString(system)
	}
	return b.String()
}
