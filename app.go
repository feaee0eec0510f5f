package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/internal/cache"
	"github.com/85Ryan/Nebula/internal/session"
	"github.com/85Ryan/Nebula/internal/settings"
	"github.com/85Ryan/Nebula/internal/speech"
	"github.com/85Ryan/Nebula/internal/store"
	"github.com/85Ryan/Nebula/internal/synth"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/85Ryan/Nebula/internal/wav"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// credentials are read from the environment on every synthesis request.
type credentials struct {
	GeminiKey string `env:"GEMINI_API_KEY"`
	APIKey    string `env:"API_KEY"`
}

// loadDotenv loads .env from the working directory and the data directory.
// Variables that are already set win.
func loadDotenv() {
	paths := []string{".env"}
	if dir, err := resolveDataDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ".env"))
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			log.Debug("Loaded environment file", "path", p)
		}
	}
}

// loadCredential returns the API key: GEMINI_API_KEY, then API_KEY, then
// api_key from the config file.
func loadCredential() string {
	c, err := env.ParseAs[credentials]()
	if err != nil {
		log.Warn("Could not parse environment", "error", err)
	}
	for _, k := range []string{c.GeminiKey, c.APIKey, viper.GetString("api_key")} {
		if k = strings.TrimSpace(k); k != "" {
			return k
		}
	}
	return ""
}

// resolveDataDir returns the configured data directory or the user data dir.
func resolveDataDir() (string, error) {
	if dataDir != "" {
		dir, err := homedir.Expand(dataDir)
		if err != nil {
			return "", fmt.Errorf("unable to expand data dir: %w", err)
		}
		return dir, nil
	}
	dir, err := gap.NewScope(gap.User, "nebula").DataPath("")
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return dir, nil
}

func cacheConfig(dir string) cache.Config {
	cfg := cache.DefaultConfig(dir)
	cfg.MemoryCapacity = viper.GetInt64("cache.memory_mb") << 20
	cfg.DiskCapacity = viper.GetInt64("cache.disk_mb") << 20
	cfg.CompressionLevel = viper.GetInt("cache.compression")
	cfg.TTL = viper.GetDuration("cache.ttl")
	return cfg
}

// app holds everything a command needs.
type app struct {
	dir      string
	docs     *store.Store
	previews *cache.Manager
	settings *settings.FileStore
	synth    *synth.Orchestrator
	engine   *audio.Engine
	session  *session.Session
}

// openApp wires the stores, the speech client and the session. Without
// playback the engine gets a silent backend so no audio device is opened.
func openApp(ctx context.Context, playback bool) (_ *app, err error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("unable to create data directory: %w", err)
	}

	a := &app{dir: dir}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.docs, err = store.Open(ctx, filepath.Join(dir, "nebula.db"))
	if err != nil {
		return nil, err
	}
	a.previews, err = cache.New(cacheConfig(filepath.Join(dir, "previews")))
	if err != nil {
		return nil, err
	}
	a.settings = settings.NewFileStore(filepath.Join(dir, "settings.yml"))

	client := speech.NewClient(speech.Config{
		BaseURL:           viper.GetString("base_url"),
		Timeout:           viper.GetDuration("timeout"),
		RequestsPerMinute: viper.GetInt("rate_limit"),
	})
	a.synth = synth.New(synth.Options{
		Speaker:     client,
		Documents:   a.docs,
		Previews:    a.previews,
		Credentials: synth.CredentialFunc(loadCredential),
		Logger:      log.Default(),
	})

	kind := audio.BackendMock
	if playback {
		if kind, err = audio.ParseBackendKind(backend); err != nil {
			return nil, err
		}
	}
	out, err := audio.NewBackend(kind, ttypes.SampleRate)
	if err != nil {
		return nil, err
	}
	a.engine = audio.NewEngine(out, audio.WithDecoder(wav.Decoder{}))

	a.session = session.New(session.Options{
		Documents: a.docs,
		Generator: a.synth,
		Settings:  a.settings,
		Player:    a.engine,
		Logger:    log.Default(),
		OnError: func(err error) {
			fmt.Fprintln(os.Stderr, warning("Autosave failed:"), err)
		},
	})
	if err := a.session.Open(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// selectDocument activates the document ref points to.
func (a *app) selectDocument(ctx context.Context, ref string) error {
	id, err := findDocument(a.session.Documents(), ref)
	if err != nil {
		return err
	}
	return a.session.Select(ctx, id)
}

// Close flushes the session and releases everything in reverse order.
func (a *app) Close() error {
	var errs []error
	if a.session != nil {
		errs = append(errs, a.session.Close(context.Background()))
	}
	if a.synth != nil {
		logMetrics(log.Default(), a.synth.Metrics())
	}
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.previews != nil {
		errs = append(errs, a.previews.Close())
	}
	if a.docs != nil {
		errs = append(errs, a.docs.Close())
	}
	return errors.Join(errs...)
}

// findDocument resolves an id, a unique id prefix or an exact title.
func findDocument(docs []store.Document, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("no document given")
	}

	var matches []store.Document
	for _, d := range docs {
		if d.ID == ref || d.Title == ref {
			return d.ID, nil
		}
		if strings.HasPrefix(d.ID, ref) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return "", ttypes.NewPersistenceError(fmt.Sprintf("no document matches %q", ref), ttypes.ErrNotFound)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("%q matches %d documents, use more of the id", ref, len(matches))
	}
}

// explain adds a hint to errors the user can fix.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ttypes.ErrMissingCredential):
		return fmt.Errorf("%w\nSet GEMINI_API_KEY or run %s", err, keyword("nebula config"))
	case ttypes.IsCredential(err):
		return fmt.Errorf("%w\nCheck your API key with %s", err, keyword("nebula config"))
	case errors.Is(err, ttypes.ErrBusy):
		return fmt.Errorf("%w: wait for the running request to finish", err)
	}
	return err
}

// logMetrics records the synthesis counters of this run at debug level.
func logMetrics(l *log.Logger, m synth.Metrics) {
	if m.Syntheses == 0 && m.Failures == 0 && m.CacheHits == 0 && m.CacheMisses == 0 {
		return
	}
	l.Debug("Synthesis metrics",
		"syntheses", m.Syntheses,
		"failures", m.Failures,
		"cache_hits", m.CacheHits,
		"cache_misses", m.CacheMisses,
		"last_latency", m.LastLatency)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}
