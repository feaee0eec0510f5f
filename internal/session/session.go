// Package session tracks the document being edited: its draft, the audio
// settings in effect and the loaded audio. Edits are persisted after a short
// quiet period.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/internal/pcm"
	"github.com/85Ryan/Nebula/internal/settings"
	"github.com/85Ryan/Nebula/internal/store"
	"github.com/85Ryan/Nebula/internal/synth"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/log"
)

// Documents is the document persistence the session needs.
type Documents interface {
	List(ctx context.Context) ([]store.Document, error)
	Get(ctx context.Context, id string) (*store.Document, error)
	Create(ctx context.Context, content, prompt string) (*store.Document, error)
	SaveDraft(ctx context.Context, id string, d store.Draft) error
	Rename(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
}

// Generator produces audio for a document.
type Generator interface {
	Generate(ctx context.Context, req synth.GenerateRequest) (*synth.GeneratedAudio, error)
}

// Player is the playback engine as seen by the session.
type Player interface {
	Load(buf *pcm.Buffer)
	LoadBlob(blob []byte)
	Unload()
	Stop()
	SetParams(p audio.Params)
}

// Options configures a Session.
type Options struct {
	Documents Documents
	Generator Generator
	Settings  settings.Store
	Player    Player

	// Debounce defaults to DefaultDebounce
	Debounce time.Duration

	// OnError receives failures of background saves
	OnError func(error)

	Logger *log.Logger
}

// Session is the editing state of one user.
type Session struct {
	docs     Documents
	gen      Generator
	settings settings.Store
	player   Player
	debounce *Debouncer
	onError  func(error)
	log      *log.Logger

	// saveMu orders draft writes, so an older snapshot never lands after a
	// newer one
	saveMu sync.Mutex

	mu        sync.Mutex
	list      []store.Document
	active    *store.Document
	current   settings.Settings
	lastSaved store.Draft
}

// New creates a Session. Call Open to load documents.
func New(opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	return &Session{
		docs:     opts.Documents,
		gen:      opts.Generator,
		settings: opts.Settings,
		player:   opts.Player,
		debounce: NewDebouncer(opts.Debounce),
		onError:  opts.OnError,
		log:      opts.Logger,
		current:  settings.Default(),
	}
}

// Open loads the settings and the document list and activates the newest
// document, if there is one.
func (s *Session) Open(ctx context.Context) error {
	if s.settings != nil {
		cur, err := s.settings.Load()
		if err != nil {
			s.log.Warn("Using default settings", "error", err)
			cur = settings.Default()
		}
		s.mu.Lock()
		s.current = cur
		s.mu.Unlock()
		s.player.SetParams(audio.ParamsFrom(cur.Audio))
	}

	list, err := s.docs.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.list = list
	s.mu.Unlock()

	if len(list) > 0 {
		return s.Select(ctx, list[0].ID)
	}
	return nil
}

// Documents returns the document list, newest first.
func (s *Session) Documents() []store.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Document, len(s.list))
	copy(out, s.list)
	return out
}

// Active returns the active document, without its audio blob.
func (s *Session) Active() (store.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return store.Document{}, false
	}
	d := *s.active
	d.AudioBlob = nil
	return d, true
}

// Settings returns the settings in effect.
func (s *Session) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// NewDocument creates and activates a document.
func (s *Session) NewDocument(ctx context.Context, content, prompt string) (*store.Document, error) {
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("Failed to save previous document", "error", err)
	}
	doc, err := s.docs.Create(ctx, content, prompt)
	if err != nil {
		return nil, err
	}

	s.player.Unload()
	s.mu.Lock()
	s.list = append([]store.Document{*doc}, s.list...)
	s.activateLocked(doc)
	s.mu.Unlock()
	return doc, nil
}

// Select stops playback, drops the decoded buffer and activates id. The
// document's own settings and model take effect, or the defaults if it has
// none.
func (s *Session) Select(ctx context.Context, id string) error {
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("Failed to save previous document", "error", err)
	}
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}

	s.player.Unload()
	if len(doc.AudioBlob) > 0 {
		s.player.LoadBlob(doc.AudioBlob)
	}

	s.mu.Lock()
	s.activateLocked(doc)
	params := audio.ParamsFrom(s.current.Audio)
	s.mu.Unlock()

	s.player.SetParams(params)
	s.log.Debug("Selected document", "id", id, "title", doc.Title)
	return nil
}

func (s *Session) activateLocked(doc *store.Document) {
	s.active = doc
	s.lastSaved = draftOf(doc)

	cur := settings.Default()
	if doc.Settings != nil {
		cur.Audio = *doc.Settings
	}
	if doc.Model != "" {
		cur.Model = doc.Model
	}
	s.current = cur
}

// SetContent replaces the script of the active document. With no active
// document a non-empty script creates one.
func (s *Session) SetContent(ctx context.Context, text string) error {
	return s.edit(text != "", func(d *store.Document) { d.Content = text }, func() error {
		_, err := s.NewDocument(ctx, text, "")
		return err
	})
}

// SetPrompt replaces the user instructions of the active document. With no
// active document a non-empty prompt creates one.
func (s *Session) SetPrompt(ctx context.Context, prompt string) error {
	return s.edit(prompt != "", func(d *store.Document) { d.Prompt = prompt }, func() error {
		_, err := s.NewDocument(ctx, "", prompt)
		return err
	})
}

func (s *Session) edit(nonEmpty bool, fn func(*store.Document), create func() error) error {
	s.mu.Lock()
	if s.active != nil {
		fn(s.active)
		s.mu.Unlock()
		s.schedule()
		return nil
	}
	s.mu.Unlock()

	if !nonEmpty {
		return nil
	}
	return create()
}

// SetSettings applies new audio settings: they are saved, pushed to the
// live playback node and recorded on the active document.
func (s *Session) SetSettings(a ttypes.AudioSettings) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	next := s.current
	next.Audio = a
	s.mu.Unlock()

	if err := s.apply(next); err != nil {
		return err
	}
	s.player.SetParams(audio.ParamsFrom(a))
	return nil
}

// SetModel selects the synthesis model.
func (s *Session) SetModel(m ttypes.Model) error {
	m, err := ttypes.ParseModel(string(m))
	if err != nil {
		return err
	}
	s.mu.Lock()
	next := s.current
	next.Model = m
	s.mu.Unlock()
	return s.apply(next)
}

// Reload adopts settings that were changed outside the session, such as an
// edited settings file. Nothing is written back to the settings store.
func (s *Session) Reload(next settings.Settings) {
	next = next.Normalize()
	s.mu.Lock()
	if next == s.current {
		s.mu.Unlock()
		return
	}
	s.current = next
	hasActive := s.active != nil
	if hasActive {
		a := next.Audio
		s.active.Settings = &a
		s.active.Model = next.Model
	}
	s.mu.Unlock()

	s.player.SetParams(audio.ParamsFrom(next.Audio))
	if hasActive {
		s.schedule()
	}
}

func (s *Session) apply(next settings.Settings) error {
	if s.settings != nil {
		if err := s.settings.Save(next); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.current = next
	hasActive := s.active != nil
	if hasActive {
		a := next.Audio
		s.active.Settings = &a
		s.active.Model = next.Model
	}
	s.mu.Unlock()

	if hasActive {
		s.schedule()
	}
	return nil
}

// Rename renames a document. The list is updated first; if the store
// rejects the change the list is reloaded and the error returned.
func (s *Session) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title is empty")
	}

	s.mu.Lock()
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].Title = title
		}
	}
	if s.active != nil && s.active.ID == id {
		s.active.Title = title
	}
	s.mu.Unlock()

	err := s.docs.Rename(ctx, id, title)
	if err == nil {
		return nil
	}

	s.log.Error("Rename failed, reloading documents", "id", id, "error", err)
	if list, lerr := s.docs.List(ctx); lerr == nil {
		s.mu.Lock()
		s.list = list
		if s.active != nil {
			for _, d := range list {
				if d.ID == s.active.ID {
					s.active.Title = d.Title
				}
			}
		}
		s.mu.Unlock()
	} else {
		s.log.Error("Failed to reload documents", "error", lerr)
	}
	return err
}

// Delete removes a document. If it was active, playback stops and the
// first remaining document becomes active.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	wasActive := s.active != nil && s.active.ID == id
	s.mu.Unlock()
	if wasActive {
		s.debounce.Stop()
	}

	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	list := s.list[:0:0]
	for _, d := range s.list {
		if d.ID != id {
			list = append(list, d)
		}
	}
	s.list = list
	var next string
	if wasActive {
		s.active = nil
		s.lastSaved = store.Draft{}
		if len(list) > 0 {
			next = list[0].ID
		}
	}
	s.mu.Unlock()

	if !wasActive {
		return nil
	}
	s.player.Unload()
	if next != "" {
		return s.Select(ctx, next)
	}
	return nil
}

// Generate synthesizes the active document. The target id is captured now,
// so the result is persisted to this document even if another one is
// selected before it arrives; it is loaded into the player only if the
// document is still active.
func (s *Session) Generate(ctx context.Context) (*synth.GeneratedAudio, error) {
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("Failed to save draft before generating", "error", err)
	}

	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil, ttypes.NewValidationError("no active document", ttypes.ErrEmptyText)
	}
	req := synth.GenerateRequest{
		DocumentID: s.active.ID,
		Text:       s.active.Content,
		Prompt:     s.active.Prompt,
		Voice:      s.current.Audio.Voice,
		Model:      s.current.Model,
	}
	s.mu.Unlock()

	out, err := s.gen.Generate(ctx, req)
	if out == nil {
		return nil, err
	}

	s.mu.Lock()
	for i := range s.list {
		if s.list[i].ID == req.DocumentID {
			s.list[i].AudioSize = int64(len(out.WAV))
			s.list[i].AudioDuration = out.Duration
		}
	}
	stillActive := s.active != nil && s.active.ID == req.DocumentID
	if stillActive {
		s.active.AudioBlob = out.WAV
		s.active.AudioSize = int64(len(out.WAV))
		s.active.AudioDuration = out.Duration
	}
	s.mu.Unlock()

	if stillActive {
		s.player.Load(out.Buffer)
	} else {
		s.log.Info("Generation finished for an inactive document", "id", req.DocumentID)
	}
	return out, err
}

// Flush persists pending edits now.
func (s *Session) Flush(ctx context.Context) error {
	s.debounce.Stop()
	return s.save(ctx)
}

// Close flushes pending edits.
func (s *Session) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

func (s *Session) schedule() {
	s.debounce.Trigger(func() {
		if err := s.save(context.Background()); err != nil {
			s.onError(err)
		}
	})
}

// save writes the active draft if it differs from what was last written.
func (s *Session) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil
	}
	id := s.active.ID
	draft := draftOf(s.active)
	if draftEqual(draft, s.lastSaved) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.docs.SaveDraft(ctx, id, draft); err != nil {
		s.log.Error("Autosave failed", "id", id, "error", err)
		return err
	}

	s.mu.Lock()
	if s.active != nil && s.active.ID == id {
		s.lastSaved = draft
	}
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].Content = draft.Content
			s.list[i].Prompt = draft.Prompt
			s.list[i].Settings = draft.Settings
			s.list[i].Model = draft.Model
		}
	}
	s.mu.Unlock()
	s.log.Debug("Autosaved document", "id", id)
	return nil
}

func draftOf(d *store.Document) store.Draft {
	draft := store.Draft{Content: d.Content, Prompt: d.Prompt, Model: d.Model}
	if d.Settings != nil {
		a := *d.Settings
		draft.Settings = &a
	}
	return draft
}

func draftEqual(a, b store.Draft) bool {
	if a.Content != b.Content || a.Prompt != b.Prompt || a.Model != b.Model {
		return false
	}
	if (a.Settings == nil) != (b.Settings == nil) {
		return false
	}
	return a.Settings == nil || *a.Settings == *b.Settings
}
