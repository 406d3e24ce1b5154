// Package sandbox executes generated Python artifacts in an isolated
// directory with hard wall-clock cutoffs.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/model"
)

// streamCap bounds how much of each output stream is kept per execution.
const streamCap = 64 * 1024

// Sandbox runs a source/test artifact pair. Every execution gets a fresh
// directory under the workspace root; nothing is shared between attempts.
type Sandbox struct {
	python         string
	root           string
	execTimeout    time.Duration
	installTimeout time.Duration
	install        bool
}

// New builds a sandbox writing execution dirs under root.
func New(cfg config.SandboxConfig, root string) *Sandbox {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	return &Sandbox{
		python:         python,
		root:           root,
		execTimeout:    secondsOr(cfg.ExecTimeoutSeconds, 30),
		installTimeout: secondsOr(cfg.InstallTimeoutSeconds, 120),
		install:        cfg.InstallEnabled(),
	}
}

func secondsOr(s, fallback int) time.Duration {
	if s <= 0 {
		s = fallback
	}
	return time.Duration(s) * time.Second
}

// Execute materializes both artifacts in a fresh directory, installs
// declared packages, and runs the test module. A failing or timed-out
// test run is a normal Outcome; the error return is reserved for
// infrastructure faults like an unwritable workspace.
func (s *Sandbox) Execute(ctx context.Context, source, tests model.Artifact) (model.Outcome, error) {
	if !model.ValidPath(source.Path) {
		return model.Outcome{}, fmt.Errorf("unsafe source path %q", source.Path)
	}
	if !model.ValidPath(tests.Path) {
		return model.Outcome{}, fmt.Errorf("unsafe test path %q", tests.Path)
	}

	dir := filepath.Join(s.root, "exec-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.Outcome{}, fmt.Errorf("create execution dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, source.Path), []byte(source.Content), 0o644); err != nil {
		return model.Outcome{}, fmt.Errorf("write source: %w", err)
	}
	payload := model.TestFileContent(source, tests)
	if err := os.WriteFile(filepath.Join(dir, tests.Path), []byte(payload), 0o644); err != nil {
		return model.Outcome{}, fmt.Errorf("write tests: %w", err)
	}

	if pkgs := model.PackageUnion(source, tests); len(pkgs) > 0 && s.install {
		s.installPackages(ctx, dir, pkgs)
	}

	log.Debug().Str("dir", dir).Str("module", tests.Module()).Msg("executing tests")
	outcome, err := s.runCapture(ctx, dir, s.execTimeout, s.python, "-m", "unittest", tests.Module())
	if err != nil {
		return model.Outcome{}, err
	}
	return outcome, nil
}

// RunScript materializes a standalone script in a fresh directory and
// runs it directly, without the unittest harness. Benchmark verification
// snippets go through here.
func (s *Sandbox) RunScript(ctx context.Context, script model.Artifact) (model.Outcome, error) {
	if !model.ValidPath(script.Path) {
		return model.Outcome{}, fmt.Errorf("unsafe script path %q", script.Path)
	}

	dir := filepath.Join(s.root, "exec-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.Outcome{}, fmt.Errorf("create execution dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, script.Path), []byte(script.Content), 0o644); err != nil {
		return model.Outcome{}, fmt.Errorf("write script: %w", err)
	}

	if len(script.Packages) > 0 && s.install {
		s.installPackages(ctx, dir, script.Packages)
	}

	log.Debug().Str("dir", dir).Str("script", script.Path).Msg("executing script")
	outcome, err := s.runCapture(ctx, dir, s.execTimeout, s.python, script.Path)
	if err != nil {
		return model.Outcome{}, err
	}
	return outcome, nil
}

// installPackages best-effort installs third-party packages. A failed
// install is logged and execution proceeds; the test run will surface the
// missing module with a real traceback.
func (s *Sandbox) installPackages(ctx context.Context, dir string, pkgs []string) {
	args := append([]string{"-m", "pip", "install", "--quiet"}, pkgs...)
	outcome, err := s.runCapture(ctx, dir, s.installTimeout, s.python, args...)
	if err != nil {
		log.Warn().Err(err).Strs("packages", pkgs).Msg("package install failed to start")
		return
	}
	if !outcome.Passed {
		log.Warn().
			Strs("packages", pkgs).
			Int("exit_code", outcome.ExitCode).
			Bool("timed_out", outcome.TimedOut).
			Msg("package install failed")
	}
}

// runCapture runs one command under a wall-clock cutoff, capturing both
// streams concurrently with a size cap. The deadline is reported as
// TimedOut, never as a hang.
func (s *Sandbox) runCapture(parent context.Context, dir string, timeout time.Duration, name string, args ...string) (model.Outcome, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.Outcome{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return model.Outcome{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return model.Outcome{}, fmt.Errorf("start %s: %w", name, err)
	}

	outBuf := &cappedBuffer{max: streamCap}
	errBuf := &cappedBuffer{max: streamCap}
	g := new(errgroup.Group)
	g.Go(func() error {
		_, err := io.Copy(outBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(errBuf, stderr)
		return err
	})
	copyErr := g.Wait()
	waitErr := cmd.Wait()

	outcome := model.Outcome{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}
	switch {
	case waitErr == nil:
		outcome.ExitCode = 0
		outcome.Passed = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome.TimedOut = true
		outcome.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else {
			return model.Outcome{}, fmt.Errorf("run %s: %w", name, waitErr)
		}
	}
	if copyErr != nil && !outcome.TimedOut {
		log.Debug().Err(copyErr).Msg("stream capture interrupted")
	}
	return outcome, nil
}

// cappedBuffer keeps the head of a stream and drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remain := b.max - b.buf.Len()
	switch {
	case remain <= 0:
		b.truncated = b.truncated || len(p) > 0
	case len(p) > remain:
		b.buf.Write(p[:remain])
		b.truncated = true
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
