package run

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/zhuang-keju/GreyCells/internal/config"
)

func TestNewRunID_Shape(t *testing.T) {
	t.Parallel()

	id, err := newRunID()
	if err != nil {
		t.Fatalf("newRunID() error = %v", err)
	}
	if ok, _ := regexp.MatchString(`^\d{8}-\d{6}-[0-9a-f]{6}$`, id); !ok {
		t.Fatalf("unexpected run id shape: %q", id)
	}

	other, err := newRunID()
	if err != nil {
		t.Fatalf("newRunID() error = %v", err)
	}
	if id == other {
		t.Fatalf("two run ids collided: %q", id)
	}
}

func TestRunLayout_Paths(t *testing.T) {
	t.Parallel()

	l := newRunLayout("/state", "20260101-000000-abcdef")
	if l.Root != filepath.Join("/state", "runs", "20260101-000000-abcdef") {
		t.Fatalf("unexpected root: %q", l.Root)
	}
	if filepath.Dir(l.Steps) != l.Root || filepath.Dir(l.Workspace) != l.Root || filepath.Dir(l.Output) != l.Root {
		t.Fatalf("layout dirs must live under the run root: %+v", l)
	}
}

func TestRunner_OutputDirResolution(t *testing.T) {
	t.Parallel()

	r := &Runner{cfg: config.Config{Run: config.RunConfig{OutputDir: "output"}}}
	r.layout = newRunLayout("/state", "run-1")
	if got := r.outputDir(); got != filepath.Join(r.layout.Root, "output") {
		t.Fatalf("relative output dir should land inside the run dir, got %q", got)
	}

	r.cfg.Run.OutputDir = "/deliverables"
	if got := r.outputDir(); got != "/deliverables" {
		t.Fatalf("absolute output dir should be used as is, got %q", got)
	}
}

func TestRunLock_SecondAcquireFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lock, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("AcquireRunLock() error = %v", err)
	}
	defer func() { _ = lock.Release() }()

	if _, err := AcquireRunLock(dir); err == nil {
		t.Fatalf("second acquire on the same run dir should fail")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	again, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("acquire after release should succeed: %v", err)
	}
	_ = again.Release()
}
