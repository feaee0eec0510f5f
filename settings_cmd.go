package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/85Ryan/Nebula/internal/settings"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Show or change the voice and playback settings",
		Long: paragraph(fmt.Sprintf("\n%s the voice, model and playback settings used for new generations. "+
			"A running player picks up changes immediately.", keyword("Show or change"))),
		Args: cobra.NoArgs,
		RunE: runSettingsShow,
	}

	settingsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE:  runSettingsShow,
	}

	settingsSetCmd = &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting",
		Long: paragraph("\nKeys: voice, model (flash or pro), pitch (cents, -1200 to 1200), " +
			"speed (0.5 to 2.0) and volume (0.0 to 2.0)."),
		Example:   paragraph("nebula settings set voice Kore\nnebula settings set speed 1.25\nnebula settings set pitch -300"),
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"voice", "model", "pitch", "speed", "volume"},
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := settingsStore()
			if err != nil {
				return err
			}
			cur, err := store.Load()
			if err != nil {
				return err
			}
			next, err := applySetting(cur, args[0], args[1])
			if err != nil {
				return err
			}
			if err := store.Save(next); err != nil {
				return err
			}
			return printSettings(next, store.Path())
		},
	}

	settingsResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := settingsStore()
			if err != nil {
				return err
			}
			if err := store.Save(settings.Default()); err != nil {
				return err
			}
			return printSettings(settings.Default(), store.Path())
		},
	}
)

func settingsStore() (*settings.FileStore, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	return settings.NewFileStore(filepath.Join(dir, "settings.yml")), nil
}

func runSettingsShow(*cobra.Command, []string) error {
	store, err := settingsStore()
	if err != nil {
		return err
	}
	cur, err := store.Load()
	if err != nil {
		return err
	}
	return printSettings(cur, store.Path())
}

func printSettings(s settings.Settings, path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("unable to encode settings: %w", err)
	}
	fmt.Fprintln(os.Stderr, subtle(path))
	fmt.Print(string(b))
	fmt.Printf("# effective rate %.3fx\n", s.Audio.EffectiveRate())
	return nil
}

// applySetting returns s with key set to value. Numbers out of range are
// rejected rather than clamped.
func applySetting(s settings.Settings, key, value string) (settings.Settings, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(key) {
	case "voice":
		v, err := ttypes.ParseVoice(value)
		if err != nil {
			return s, err
		}
		s.Audio = s.Audio.WithVoice(v)
	case "model":
		m, err := ttypes.ParseModel(value)
		if err != nil {
			return s, err
		}
		s.Model = m
	case "pitch":
		n, err := strconv.Atoi(value)
		if err != nil {
			return s, fmt.Errorf("pitch must be a whole number of cents: %w", err)
		}
		s.Audio.Pitch = n
	case "speed":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return s, fmt.Errorf("speed must be a number: %w", err)
		}
		s.Audio.Speed = f
	case "volume":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return s, fmt.Errorf("volume must be a number: %w", err)
		}
		s.Audio.Volume = f
	default:
		return s, fmt.Errorf("unknown setting %q (use voice, model, pitch, speed or volume)", key)
	}
	return s, s.Validate()
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsResetCmd)
}
