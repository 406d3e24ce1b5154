package run

import (
	"fmt"
	"os"
	"path/filepath"
)

// runLayout is the on-disk shape of one run directory.
type runLayout struct {
	Root      string // <base>/runs/<id>
	Steps     string // one subdirectory per generation step
	Workspace string // sandbox execution directories
	Output    string // persisted artifacts
}

func newRunLayout(baseDir, runID string) runLayout {
	root := filepath.Join(baseDir, "runs", runID)
	return runLayout{
		Root:      root,
		Steps:     filepath.Join(root, "steps"),
		Workspace: filepath.Join(root, "workspace"),
		Output:    filepath.Join(root, "output"),
	}
}

func (l runLayout) ensure() error {
	for _, dir := range []string{l.Root, l.Steps, l.Workspace} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create run dir %s: %w", dir, err)
		}
	}
	return nil
}
