package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/model"
)

func TestWatchModel_BuildContent(t *testing.T) {
	m := newWatchModel(nil, "20260821-101500-ab12cd")
	m.loaded = true
	m.run = db.RunRecord{
		ID:          "20260821-101500-ab12cd",
		Story:       "As a clerk I want order totals so that receipts add up.",
		Status:      string(model.PhaseFixing),
		Attempt:     2,
		MaxAttempts: 3,
		SourcePath:  "calc.py",
		TestPath:    "test_calc.py",
	}
	m.decisions = []db.DecisionRecord{
		{Attempt: 1, Verdict: "FIX_TEST", Rationale: "unvetted test contradicts the story"},
	}
	m.events = []db.EventRecord{
		{Seq: 1, CreatedAt: "2026-08-21 10:15:00", Phase: "generating", Message: "run started"},
		{Seq: 2, CreatedAt: "2026-08-21 10:15:09", Phase: "executing", Message: "attempt 1: running tests"},
	}

	content := m.buildContent()
	for _, want := range []string{
		"As a clerk I want order totals",
		"Attempt 2/3",
		"calc.py / test_calc.py",
		"FIX_TEST",
		"unvetted test contradicts the story",
		"run started",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestWatchModel_BuildContentBeforeFirstSnapshot(t *testing.T) {
	m := newWatchModel(nil, "20260821-101500-ab12cd")
	if got := m.buildContent(); !strings.Contains(got, "loading") {
		t.Errorf("placeholder = %q, want loading notice", got)
	}
}

func TestPhaseStyle_Mapping(t *testing.T) {
	s := DefaultStyles()
	cases := []struct {
		phase model.Phase
		want  lipgloss.TerminalColor
	}{
		{model.PhaseSucceeded, colorSuccess},
		{model.PhaseExhausted, colorError},
		{model.PhaseFixing, colorWarning},
		{model.PhaseArbitrating, colorWarning},
		{model.PhaseExecuting, colorInfo},
		{model.PhaseGenerating, colorInfo},
	}
	for _, tc := range cases {
		if got := s.PhaseStyle(tc.phase).GetForeground(); got != tc.want {
			t.Errorf("PhaseStyle(%s) foreground = %v, want %v", tc.phase, got, tc.want)
		}
	}
}
