// Package ui provides the terminal player.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/internal/settings"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

// Parameter steps per key press.
const (
	speedStep  = 0.1
	pitchStep  = 100
	volumeStep = 0.1
)

// Controls persists parameter changes and pushes them to the engine.
type Controls interface {
	Settings() settings.Settings
	SetSettings(a ttypes.AudioSettings) error
}

// NewProgram returns a bubbletea program for the player.
func NewProgram(cfg Config, engine *audio.Engine, controls Controls) *tea.Program {
	log.Debug("Starting player", "title", cfg.Title, "fps", cfg.FPS)
	return tea.NewProgram(NewPlayer(cfg, engine, controls))
}

type frameMsg time.Time

type startMsg struct{}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// Player is the bubbletea model of the player screen.
type Player struct {
	cfg      Config
	engine   *audio.Engine
	tracker  *audio.Tracker
	controls Controls

	keys   keyMap
	help   help.Model
	bar    progress.Model
	status *StatusDisplay

	width    int
	ticking  bool
	quitting bool
}

// NewPlayer creates the player model. controls may be nil, in which case
// parameter changes go to the engine only.
func NewPlayer(cfg Config, engine *audio.Engine, controls Controls) Player {
	if cfg.FPS <= 0 {
		cfg.FPS = audio.FrameRate
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 80
	}
	p := Player{
		cfg:      cfg,
		engine:   engine,
		tracker:  audio.NewTracker(engine),
		controls: controls,
		keys:     newKeyMap(),
		help:     help.New(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		status:   NewStatusDisplay(),
		width:    cfg.MaxWidth,
	}
	p.bar.Width = p.barWidth()
	p.sample()
	return p
}

// Init implements tea.Model.
func (m Player) Init() tea.Cmd {
	if m.cfg.AutoPlay {
		return func() tea.Msg { return startMsg{} }
	}
	return nil
}

// Update implements tea.Model.
func (m Player) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = min(msg.Width, m.cfg.MaxWidth)
		m.bar.Width = m.barWidth()
		m.help.Width = m.width
		return m, nil

	case startMsg:
		return m.toggle()

	case frameMsg:
		p, active := m.tracker.Tick()
		m.status.Update(p)
		if !active {
			m.ticking = false
			return m, nil
		}
		return m, m.tick()

	case errMsg:
		m.status.SetError(msg.err)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			m.engine.Stop()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			return m.toggle()
		case key.Matches(msg, m.keys.Stop):
			m.engine.Stop()
			m.sample()
			return m, nil
		case key.Matches(msg, m.keys.SpeedUp):
			return m.adjust(func(a ttypes.AudioSettings) ttypes.AudioSettings { return a.WithSpeed(a.Speed + speedStep) })
		case key.Matches(msg, m.keys.SpeedDown):
			return m.adjust(func(a ttypes.AudioSettings) ttypes.AudioSettings { return a.WithSpeed(a.Speed - speedStep) })
		case key.Matches(msg, m.keys.PitchUp):
			return m.adjust(func(a ttypes.AudioSettings) ttypes.AudioSettings { return a.WithPitch(a.Pitch + pitchStep) })
		case key.Matches(msg, m.keys.PitchDown):
			return m.adjust(func(a ttypes.AudioSettings) ttypes.AudioSettings { return a.WithPitch(a.Pitch - pitchStep) })
		case key.Matches(msg, m.keys.VolumeUp):
			return m.adjust(func(a ttypes.AudioSettings) ttypes.AudioSettings { return a.WithVolume(a.Volume + volumeStep) })
		case key.Matches(msg, m.keys.VolumeDown):
			return m.adjust(func(a ttypes.AudioSettings) ttypes.AudioSettings { return a.WithVolume(a.Volume - volumeStep) })
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}
	return m, nil
}

func (m Player) toggle() (tea.Model, tea.Cmd) {
	if err := m.engine.Toggle(); err != nil {
		log.Error("Playback failed", "error", err)
		m.status.SetError(err)
		m.sample()
		return m, nil
	}
	m.status.SetError(nil)
	m.sample()
	if m.engine.State() == ttypes.StatePlaying && !m.ticking {
		m.ticking = true
		return m, m.tick()
	}
	return m, nil
}

func (m Player) adjust(fn func(ttypes.AudioSettings) ttypes.AudioSettings) (tea.Model, tea.Cmd) {
	cur := m.audioSettings()
	next := fn(cur)
	if next == cur {
		return m, nil
	}

	if m.controls != nil {
		if err := m.controls.SetSettings(next); err != nil {
			m.status.SetError(err)
			return m, nil
		}
	} else {
		m.engine.SetParams(audio.ParamsFrom(next))
	}
	m.status.SetError(nil)
	m.sample()
	return m, nil
}

func (m Player) audioSettings() ttypes.AudioSettings {
	if m.controls != nil {
		return m.controls.Settings().Audio
	}
	p := m.engine.Params()
	a := ttypes.DefaultSettings()
	if m.cfg.Voice != "" {
		a.Voice = m.cfg.Voice
	}
	a.Speed, a.Pitch, a.Volume = p.Speed, p.Pitch, p.Volume
	return a
}

// sample refreshes the displayed progress outside the frame loop.
func (m Player) sample() {
	p, _ := m.tracker.Tick()
	m.status.Update(p)
}

func (m Player) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.cfg.FPS), func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Player) barWidth() int {
	// leave room for padding and the clock
	return max(10, m.width-4-16)
}

// View implements tea.Model.
func (m Player) View() string {
	if m.quitting {
		return ""
	}

	inner := m.width - 4
	badge := m.status.Badge()
	titleWidth := max(1, inner-runewidth.StringWidth(stripBadge(m.status))-2)
	title := truncate.StringWithTail(m.cfg.Title, uint(titleWidth), "…") //nolint:gosec
	gap := max(1, inner-runewidth.StringWidth(title)-runewidth.StringWidth(stripBadge(m.status)))

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString(strings.Repeat(" ", gap))
	b.WriteString(badge)
	b.WriteString("\n")
	b.WriteString(paramStyle.Render(m.paramsLine()))
	b.WriteString("\n\n")

	p := m.status.Progress()
	b.WriteString(m.bar.ViewAs(p.Fraction()))
	b.WriteString("  ")
	b.WriteString(m.status.Clock())
	b.WriteString("\n")

	if line := m.status.Line(inner); line != "" {
		b.WriteString(line)
	}
	b.WriteString("\n")
	if m.cfg.ShowMetrics {
		b.WriteString(subtleStyle.Render(fmt.Sprintf("rate %.3f · pos %.2fs / %.2fs", p.Rate, p.Position, p.Duration)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return appStyle.Render(b.String())
}

func (m Player) paramsLine() string {
	a := m.audioSettings()
	model := m.cfg.Model
	if m.controls != nil {
		model = m.controls.Settings().Model
	}
	parts := []string{string(a.Voice)}
	if model != "" {
		parts = append(parts, model.ShortName())
	}
	parts = append(parts,
		fmt.Sprintf("%.2fx", a.Speed),
		fmt.Sprintf("%+d¢", a.Pitch),
		fmt.Sprintf("vol %.2f", a.Volume),
	)
	return strings.Join(parts, " · ")
}

// stripBadge returns the unstyled badge text, for width calculations.
func stripBadge(s *StatusDisplay) string {
	return fmt.Sprintf("%s %s", s.stateIcon(), strings.ToUpper(s.progress.State.String()))
}
