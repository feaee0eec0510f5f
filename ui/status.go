package ui

import (
	"fmt"
	"strings"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

// StatusDisplay renders playback progress for the status line.
type StatusDisplay struct {
	progress     audio.Progress
	errorMessage string
	message      string
}

// NewStatusDisplay creates an idle status display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{}
}

// Update records the latest progress sample.
func (s *StatusDisplay) Update(p audio.Progress) {
	s.progress = p
	if p.Ended {
		s.message = "Finished"
	} else if p.State == ttypes.StatePlaying {
		s.message = ""
	}
}

// SetError shows err until the next successful action. A nil err clears it.
func (s *StatusDisplay) SetError(err error) {
	if err == nil {
		s.errorMessage = ""
		return
	}
	s.errorMessage = err.Error()
}

// SetMessage shows an informational note.
func (s *StatusDisplay) SetMessage(msg string) {
	s.message = msg
}

// Progress returns the last recorded sample.
func (s *StatusDisplay) Progress() audio.Progress {
	return s.progress
}

// Badge returns the colored state indicator.
func (s *StatusDisplay) Badge() string {
	style := lipgloss.NewStyle().Foreground(s.stateColor()).Bold(true)
	return style.Render(fmt.Sprintf("%s %s", s.stateIcon(), strings.ToUpper(s.progress.State.String())))
}

// Clock returns "elapsed / total" in wall-clock time at the current rate.
func (s *StatusDisplay) Clock() string {
	return fmt.Sprintf("%s / %s", formatSeconds(s.progress.Display), formatSeconds(s.progress.DisplayTotal))
}

// Line returns the status line: the error if any, otherwise the message.
func (s *StatusDisplay) Line(width int) string {
	switch {
	case s.errorMessage != "":
		msg := s.errorMessage
		if width > 10 {
			msg = truncate.StringWithTail(msg, uint(width-7), "...") //nolint:gosec
		}
		return errorStyle.Render("Error: " + msg)
	case s.message != "":
		return subtleStyle.Render(s.message)
	default:
		return ""
	}
}

func (s *StatusDisplay) stateColor() lipgloss.Color {
	switch s.progress.State {
	case ttypes.StatePlaying:
		return lipgloss.Color("#04B575")
	case ttypes.StatePaused:
		return lipgloss.Color("#ECFD65")
	default:
		return lipgloss.Color("#888888")
	}
}

func (s *StatusDisplay) stateIcon() string {
	switch s.progress.State {
	case ttypes.StatePlaying:
		return "▶"
	case ttypes.StatePaused:
		return "⏸"
	default:
		return "■"
	}
}

// formatSeconds formats seconds as m:ss.
func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
