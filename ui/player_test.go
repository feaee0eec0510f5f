package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/internal/pcm"
	"github.com/85Ryan/Nebula/internal/settings"
	"github.com/85Ryan/Nebula/internal/ttypes"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeControls struct {
	current settings.Settings
	engine  *audio.Engine
	calls   int
	err     error
}

func (f *fakeControls) Settings() settings.Settings { return f.current }

func (f *fakeControls) SetSettings(a ttypes.AudioSettings) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.current.Audio = a
	f.engine.SetParams(audio.ParamsFrom(a))
	return nil
}

func newTestPlayer(t *testing.T, seconds float64) (Player, *audio.Engine, *audio.ManualClock, *fakeControls) {
	t.Helper()
	clock := audio.NewManualClock(time.Unix(1000, 0))
	engine := audio.NewEngine(audio.NewMockBackend(ttypes.SampleRate, false), audio.WithClock(clock))
	t.Cleanup(func() { _ = engine.Close() })
	if seconds > 0 {
		n := int(seconds * ttypes.SampleRate)
		engine.Load(pcm.NewBuffer(make([]float32, n), ttypes.SampleRate))
	}
	controls := &fakeControls{current: settings.Default(), engine: engine}
	p := NewPlayer(Config{Title: "第一章", Voice: ttypes.VoiceKore, FPS: 60, MaxWidth: 80}, engine, controls)
	return p, engine, clock, controls
}

func press(m tea.Model, k string) (tea.Model, tea.Cmd) {
	if k == " " {
		return m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	}
	return m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

func TestPlayerToggle(t *testing.T) {
	p, engine, _, _ := newTestPlayer(t, 5)

	m, cmd := press(p, " ")
	if engine.State() != ttypes.StatePlaying {
		t.Fatalf("state = %s, want playing", engine.State())
	}
	if cmd == nil {
		t.Fatal("expected a frame tick while playing")
	}
	if !m.(Player).ticking {
		t.Error("player should be ticking")
	}

	m, _ = press(m, " ")
	if engine.State() != ttypes.StatePaused {
		t.Fatalf("state = %s, want paused", engine.State())
	}
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("view does not show paused badge")
	}
}

func TestPlayerFramesUntilEnd(t *testing.T) {
	p, engine, clock, _ := newTestPlayer(t, 2)
	m, _ := press(p, " ")

	clock.Advance(time.Second)
	m, cmd := m.Update(frameMsg(clock.Now()))
	if cmd == nil {
		t.Fatal("expected another frame mid playback")
	}
	if got := m.(Player).status.Progress().Display; got != 1 {
		t.Errorf("display = %v, want 1", got)
	}

	clock.Advance(time.Second)
	m, cmd = m.Update(frameMsg(clock.Now()))
	if cmd != nil {
		t.Error("frames should stop at the end")
	}
	pl := m.(Player)
	if pl.ticking {
		t.Error("still ticking after end")
	}
	if !pl.status.Progress().Ended || engine.State() != ttypes.StateIdle {
		t.Errorf("expected natural end, state %s", engine.State())
	}
	if !strings.Contains(pl.View(), "Finished") {
		t.Error("view does not report the end")
	}
}

func TestPlayerAdjustParams(t *testing.T) {
	tests := []struct {
		key   string
		check func(ttypes.AudioSettings) bool
	}{
		{"+", func(a ttypes.AudioSettings) bool { return a.Speed == 1.1 }},
		{"-", func(a ttypes.AudioSettings) bool { return a.Speed == 0.9 }},
		{"]", func(a ttypes.AudioSettings) bool { return a.Pitch == 100 }},
		{"[", func(a ttypes.AudioSettings) bool { return a.Pitch == -100 }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p, engine, _, controls := newTestPlayer(t, 1)
			press(p, tt.key)
			if controls.calls != 1 {
				t.Fatalf("expected one settings change, got %d", controls.calls)
			}
			if !tt.check(controls.current.Audio) {
				t.Errorf("unexpected settings %+v", controls.current.Audio)
			}
			if engine.Params() != audio.ParamsFrom(controls.current.Audio) {
				t.Error("engine params not updated")
			}
		})
	}
}

func TestPlayerVolumeKeys(t *testing.T) {
	p, _, _, controls := newTestPlayer(t, 1)
	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	if controls.current.Audio.Volume != 0.9 {
		t.Errorf("volume = %v, want 0.9", controls.current.Audio.Volume)
	}
	p.Update(tea.KeyMsg{Type: tea.KeyUp})
	if controls.current.Audio.Volume != 1.0 {
		t.Errorf("volume = %v, want 1.0", controls.current.Audio.Volume)
	}
}

func TestPlayerAdjustAtLimit(t *testing.T) {
	p, _, _, controls := newTestPlayer(t, 1)
	controls.current.Audio = controls.current.Audio.WithSpeed(ttypes.MaxSpeed)

	press(p, "+")
	if controls.calls != 0 {
		t.Error("no change expected at the speed limit")
	}
}

func TestPlayerAdjustError(t *testing.T) {
	p, _, _, controls := newTestPlayer(t, 1)
	controls.err = errors.New("settings file is read-only")

	m, _ := press(p, "+")
	if !strings.Contains(m.View(), "read-only") {
		t.Error("settings error not shown")
	}
}

func TestPlayerWithoutAudio(t *testing.T) {
	p, engine, _, _ := newTestPlayer(t, 0)

	m, cmd := press(p, " ")
	if cmd != nil {
		t.Error("no frames expected without audio")
	}
	if engine.State() != ttypes.StateIdle {
		t.Errorf("state = %s, want idle", engine.State())
	}
	if !strings.Contains(m.View(), "Error") {
		t.Error("expected an error in the status line")
	}
}

func TestPlayerStopAndQuit(t *testing.T) {
	p, engine, clock, _ := newTestPlayer(t, 5)
	m, _ := press(p, " ")
	clock.Advance(2 * time.Second)

	m, _ = press(m, "s")
	if engine.State() != ttypes.StateIdle || engine.Position() != 0 {
		t.Fatalf("stop did not reset: %s at %v", engine.State(), engine.Position())
	}

	_, cmd := press(m, "q")
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestPlayerAutoPlay(t *testing.T) {
	clock := audio.NewManualClock(time.Unix(0, 0))
	engine := audio.NewEngine(audio.NewMockBackend(ttypes.SampleRate, false), audio.WithClock(clock))
	defer engine.Close() //nolint:errcheck
	engine.Load(pcm.NewBuffer(make([]float32, ttypes.SampleRate), ttypes.SampleRate))

	p := NewPlayer(Config{AutoPlay: true}, engine, nil)
	cmd := p.Init()
	if cmd == nil {
		t.Fatal("expected start command")
	}
	p.Update(cmd())
	if engine.State() != ttypes.StatePlaying {
		t.Errorf("state = %s, want playing", engine.State())
	}
}

func TestPlayerWithoutControls(t *testing.T) {
	clock := audio.NewManualClock(time.Unix(0, 0))
	engine := audio.NewEngine(audio.NewMockBackend(ttypes.SampleRate, false), audio.WithClock(clock))
	defer engine.Close() //nolint:errcheck

	p := NewPlayer(Config{Voice: ttypes.VoicePuck}, engine, nil)
	press(p, "]")
	if engine.Params().Pitch != 100 {
		t.Errorf("pitch = %d, want 100", engine.Params().Pitch)
	}
	if !strings.Contains(p.View(), "Puck") {
		t.Error("voice missing from view")
	}
}

func TestPlayerTruncatesLongTitle(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, 1)
	p.cfg.Title = strings.Repeat("很长的标题", 20)

	m, _ := p.Update(tea.WindowSizeMsg{Width: 40, Height: 20})
	if !strings.Contains(m.View(), "…") {
		t.Error("long title was not truncated")
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := map[float64]string{
		0:     "0:00",
		-3:    "0:00",
		9.9:   "0:09",
		61:    "1:01",
		600.5: "10:00",
	}
	for in, want := range tests {
		if got := formatSeconds(in); got != want {
			t.Errorf("formatSeconds(%v) = %q, want %q", in, got, want)
		}
	}
}
