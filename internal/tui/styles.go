// Package tui renders a live terminal view of a running pipeline.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zhuang-keju/GreyCells/internal/model"
)

var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorError   = lipgloss.Color("#e53935")
	colorWarning = lipgloss.Color("#FFC107")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("243")
)

// Styles holds the lipgloss styles shared by the watch view.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
}

// DefaultStyles returns the default watch palette.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Padding(0, 1).Reverse(true),
		Success: lipgloss.NewStyle().Foreground(colorSuccess),
		Error:   lipgloss.NewStyle().Foreground(colorError),
		Warning: lipgloss.NewStyle().Foreground(colorWarning),
		Info:    lipgloss.NewStyle().Foreground(colorInfo),
		Muted:   lipgloss.NewStyle().Foreground(colorMuted),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
}

// PhaseStyle maps a run phase to its display style.
func (s Styles) PhaseStyle(phase model.Phase) lipgloss.Style {
	switch phase {
	case model.PhaseSucceeded:
		return s.Success
	case model.PhaseExhausted:
		return s.Error
	case model.PhaseFixing, model.PhaseArbitrating:
		return s.Warning
	default:
		return s.Info
	}
}
