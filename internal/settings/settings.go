// Package settings persists the process-wide audio settings and model.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings are the user's current choices, applied to new generations and
// to the live playback node.
type Settings struct {
	Audio ttypes.AudioSettings `yaml:"audio" mapstructure:"audio"`
	Model ttypes.Model         `yaml:"model" mapstructure:"model"`
}

// Default returns the settings used before anything is saved.
func Default() Settings {
	return Settings{Audio: ttypes.DefaultSettings(), Model: ttypes.DefaultModel}
}

// Validate checks the audio settings and the model.
func (s Settings) Validate() error {
	if err := s.Audio.Validate(); err != nil {
		return err
	}
	if _, err := ttypes.ParseModel(string(s.Model)); err != nil {
		return err
	}
	return nil
}

// Normalize fills missing fields with defaults and expands short model names.
func (s Settings) Normalize() Settings {
	s.Audio = s.Audio.Normalize()
	if m, err := ttypes.ParseModel(string(s.Model)); err == nil {
		s.Model = m
	}
	return s
}

// Store loads and saves Settings.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// FileStore keeps Settings in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store for the YAML file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (f *FileStore) Path() string { return f.path }

// Load reads the file. A missing file yields Default().
func (f *FileStore) Load() (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		log.Debug("No settings file found, using defaults", "path", f.path)
		return Default(), nil
	}

	d := Default()
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	v.SetDefault("audio.voice", string(d.Audio.Voice))
	v.SetDefault("audio.pitch", d.Audio.Pitch)
	v.SetDefault("audio.speed", d.Audio.Speed)
	v.SetDefault("audio.volume", d.Audio.Volume)
	v.SetDefault("audio.format", d.Audio.Format)
	v.SetDefault("model", string(d.Model))

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, ttypes.NewPersistenceError("read settings", err).WithContext("path", f.path)
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, ttypes.NewPersistenceError("parse settings", err).WithContext("path", f.path)
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, ttypes.NewPersistenceError("invalid settings", err).WithContext("path", f.path)
	}
	return s, nil
}

// Save validates and writes the file, creating its directory.
func (f *FileStore) Save(s Settings) error {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return ttypes.NewPersistenceError("marshal settings", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ttypes.NewPersistenceError("create settings directory", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*")
	if err != nil {
		return ttypes.NewPersistenceError("write settings", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return ttypes.NewPersistenceError("write settings", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return ttypes.NewPersistenceError("write settings", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return ttypes.NewPersistenceError("write settings", err)
	}

	log.Debug("Saved settings", "path", f.path, "voice", s.Audio.Voice, "model", s.Model.ShortName())
	return nil
}

// Watch calls fn with the reloaded settings whenever the file is written,
// until ctx is done. Invalid contents are logged and skipped.
func (f *FileStore) Watch(ctx context.Context, fn func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Debug("fsnotify watching settings", "dir", dir)

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)

			s, err := f.Load()
			if err != nil {
				log.Warn("Ignoring unreadable settings change", "error", err)
				continue
			}
			fn(s)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

// MemoryStore keeps Settings in memory.
type MemoryStore struct {
	mu    sync.Mutex
	s     Settings
	saves int
	err   error
}

// NewMemoryStore returns a store holding s.
func NewMemoryStore(s Settings) *MemoryStore {
	return &MemoryStore{s: s}
}

// Load implements Store.
func (m *MemoryStore) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	m.s = s
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailWith makes subsequent saves return err. Pass nil to clear.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
