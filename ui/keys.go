package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle     key.Binding
	Stop       key.Binding
	SpeedUp    key.Binding
	SpeedDown  key.Binding
	PitchUp    key.Binding
	PitchDown  key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/pause"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		SpeedUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster"),
		),
		SpeedDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "slower"),
		),
		PitchUp: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "pitch up"),
		),
		PitchDown: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "pitch down"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑", "louder"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓", "quieter"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Stop, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Stop},
		{k.SpeedUp, k.SpeedDown},
		{k.PitchUp, k.PitchDown},
		{k.VolumeUp, k.VolumeDown},
		{k.Help, k.Quit},
	}
}
