// Package slider provides a horizontal slider component for Bubble Tea applications.
package slider

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Model defines the state of the slider.
type Model struct {
	// Min and Max bound Value.
	Min, Max int
	// Value is the current position. It is clamped when rendering.
	Value int
	// Width is the number of cells the slider occupies.
	Width int

	// FillStyle is applied to the part of the track left of the thumb.
	FillStyle lipgloss.Style
	// ThumbStyle is applied to the thumb.
	ThumbStyle lipgloss.Style
	// TrackStyle is applied to the rest of the track.
	TrackStyle lipgloss.Style

	FillChar  string
	ThumbChar string
	TrackChar string
}

// Option is used to set options in New.
type Option func(*Model)

// New creates a new slider model with default settings.
func New(opts ...Option) Model {
	m := Model{
		Max:        100,
		Width:      20,
		FillChar:   "━",
		ThumbChar:  "●",
		TrackChar:  "─",
		FillStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
		ThumbStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		TrackStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// WithRange sets the bounds.
func WithRange(lo, hi int) Option {
	return func(m *Model) {
		m.Min = lo
		m.Max = hi
	}
}

// WithWidth sets the width in cells.
func WithWidth(w int) Option {
	return func(m *Model) {
		m.Width = w
	}
}

// WithChars sets the characters for the fill, thumb and track.
func WithChars(fill, thumb, track string) Option {
	return func(m *Model) {
		m.FillChar = fill
		m.ThumbChar = thumb
		m.TrackChar = track
	}
}

// SetValue returns m with Value set to v, clamped to the range.
func (m Model) SetValue(v int) Model {
	m.Value = clamp(m.Max, m.Min, v)
	return m
}

// Position returns the cell index of the thumb.
func (m Model) Position() int {
	if m.Width <= 1 || m.Max <= m.Min {
		return 0
	}
	v := clamp(m.Max, m.Min, m.Value)
	frac := float64(v-m.Min) / float64(m.Max-m.Min)
	return int(math.Round(frac * float64(m.Width-1)))
}

// View renders the slider. It returns a single line exactly Width cells wide.
func (m Model) View() string {
	if m.Width <= 0 {
		return ""
	}
	pos := m.Position()

	var s strings.Builder
	if pos > 0 {
		s.WriteString(m.FillStyle.Render(strings.Repeat(m.FillChar, pos)))
	}
	s.WriteString(m.ThumbStyle.Render(m.ThumbChar))
	if rest := m.Width - pos - 1; rest > 0 {
		s.WriteString(m.TrackStyle.Render(strings.Repeat(m.TrackChar, rest)))
	}
	return s.String()
}

// clamp restricts x to be between low and high.
func clamp(high, low, x int) int {
	switch {
	case high < x:
		return high
	case x < low:
		return low
	default:
		return x
	}
}
