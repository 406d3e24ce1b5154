// Package model holds the data types shared by the pipeline stages.
package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Artifact is a generated file. Regeneration replaces Content wholesale;
// artifacts are never patched in place.
type Artifact struct {
	Path     string   `json:"path"`
	Content  string   `json:"content"`
	Packages []string `json:"packages,omitempty"`
}

// Module returns the Python module name for the artifact, used to bind the
// test file to the source file via a star import.
func (a Artifact) Module() string {
	base := filepath.Base(a.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidPath reports whether p can be used as an artifact path: relative,
// flat, visible, and a .py file. Both artifacts share one execution dir
// and one import namespace, so directories are not allowed.
func ValidPath(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	return clean == filepath.Base(clean) &&
		!strings.HasPrefix(clean, ".") &&
		strings.HasSuffix(clean, ".py")
}

// TestFileContent renders the test artifact as written to disk: tests are
// generated import-free, the prelude provides unittest and the source
// module's public names.
func TestFileContent(source, tests Artifact) string {
	return fmt.Sprintf("import unittest\nfrom %s import *\n\n%s", source.Module(), tests.Content)
}

// PackageUnion merges the package declarations of several artifacts,
// dropping blanks and duplicates while keeping first-seen order.
func PackageUnion(artifacts ...Artifact) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range artifacts {
		for _, p := range a.Packages {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Outcome captures one sandbox execution. It is immutable once recorded.
type Outcome struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
	Passed   bool   `json:"passed"`
}

// Verdict is an arbitration ruling on a failed execution.
type Verdict string

const (
	FixSource Verdict = "FIX_SOURCE"
	FixTest   Verdict = "FIX_TEST"
	FixBoth   Verdict = "FIX_BOTH"
	Veto      Verdict = "VETO"
)

// ParseVerdict resolves a verdict string case-insensitively.
func ParseVerdict(s string) (Verdict, bool) {
	switch Verdict(strings.ToUpper(strings.TrimSpace(s))) {
	case FixSource:
		return FixSource, true
	case FixTest:
		return FixTest, true
	case FixBoth:
		return FixBoth, true
	case Veto:
		return Veto, true
	}
	return "", false
}

// TargetsSource reports whether the verdict calls for regenerating the
// source artifact.
func (v Verdict) TargetsSource() bool {
	return v == FixSource || v == FixBoth
}

// TargetsTest reports whether the verdict calls for regenerating the test
// artifact.
func (v Verdict) TargetsTest() bool {
	return v == FixTest || v == FixBoth
}

// Cycle is one completed execute-and-arbitrate attempt.
type Cycle struct {
	Attempt   int     `json:"attempt"`
	Outcome   Outcome `json:"outcome"`
	Verdict   Verdict `json:"verdict,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

// CycleState is the full state of a fix loop. The loop owns it exclusively;
// stages receive copies or read-only views.
type CycleState struct {
	Attempt     int      `json:"attempt"`
	MaxAttempts int      `json:"max_attempts"`
	UserStory   string   `json:"user_story"`
	Source      Artifact `json:"source"`
	Tests       Artifact `json:"tests"`
	History     []Cycle  `json:"history,omitempty"`
}

// TestFixed reports whether any prior cycle already ruled FIX_TEST or
// FIX_BOTH. Once the test has been rewritten it is trusted as an oracle.
func (s CycleState) TestFixed() bool {
	for _, c := range s.History {
		if c.Verdict.TargetsTest() {
			return true
		}
	}
	return false
}

// Phase names a state of the run loop, persisted as the run status.
type Phase string

const (
	PhaseGenerating  Phase = "generating"
	PhaseExecuting   Phase = "executing"
	PhaseArbitrating Phase = "arbitrating"
	PhaseFixing      Phase = "fixing"
	PhaseSucceeded   Phase = "succeeded"
	PhaseExhausted   Phase = "exhausted"
)

// Terminal reports whether the phase ends the run.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseExhausted
}
