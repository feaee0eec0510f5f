package ui

import "github.com/85Ryan/Nebula/internal/ttypes"

// Config contains player-specific configuration.
type Config struct {
	Title string
	Voice ttypes.Voice
	Model ttypes.Model

	// Start playing as soon as the program starts
	AutoPlay bool

	// Frames per second while playing
	FPS int `env:"NEBULA_FPS" envDefault:"60"`

	// For debugging the UI
	ShowMetrics bool `env:"NEBULA_SHOW_METRICS" envDefault:"false"`
	MaxWidth    int  `env:"NEBULA_MAX_WIDTH"    envDefault:"80"`
}
