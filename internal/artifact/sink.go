// Package artifact persists the final files of a finished run.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/zhuang-keju/GreyCells/internal/model"
)

// Manifest describes what was persisted and how the run ended.
type Manifest struct {
	RunID    string   `yaml:"run_id"`
	Status   string   `yaml:"status"`
	Attempts int      `yaml:"attempts"`
	Story    string   `yaml:"story"`
	Source   string   `yaml:"source"`
	Tests    string   `yaml:"tests"`
	Packages []string `yaml:"packages,omitempty"`
	Verdicts []string `yaml:"verdicts,omitempty"`
}

// Sink writes run outputs into one directory.
type Sink struct {
	dir string
}

// NewSink creates a sink for dir; the directory is created on Persist.
func NewSink(dir string) *Sink {
	return &Sink{dir: dir}
}

// Dir returns the output directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Persist writes the source file, the runnable test file, a
// requirements.txt when packages were declared, and a manifest. A
// persist failure is reported to the caller but must never reopen the
// fix loop: the run's result stands.
func (s *Sink) Persist(runID string, state model.CycleState, status model.Phase) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, state.Source.Path), []byte(state.Source.Content), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	payload := model.TestFileContent(state.Source, state.Tests)
	if err := os.WriteFile(filepath.Join(s.dir, state.Tests.Path), []byte(payload), 0o644); err != nil {
		return fmt.Errorf("write tests: %w", err)
	}

	packages := model.PackageUnion(state.Source, state.Tests)
	if len(packages) > 0 {
		reqs := strings.Join(packages, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(s.dir, "requirements.txt"), []byte(reqs), 0o644); err != nil {
			return fmt.Errorf("write requirements: %w", err)
		}
	}

	man := Manifest{
		RunID:    runID,
		Status:   string(status),
		Attempts: state.Attempt,
		Story:    state.UserStory,
		Source:   state.Source.Path,
		Tests:    state.Tests.Path,
		Packages: packages,
	}
	for _, c := range state.History {
		if c.Verdict != "" {
			man.Verdicts = append(man.Verdicts, string(c.Verdict))
		}
	}
	raw, err := yaml.Marshal(man)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "manifest.yaml"), raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	log.Info().Str("dir", s.dir).Str("status", string(status)).Msg("artifacts persisted")
	return nil
}
