package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/85Ryan/Nebula/internal/pcm"
	"github.com/85Ryan/Nebula/internal/settings"
	"github.com/85Ryan/Nebula/internal/store"
	"github.com/85Ryan/Nebula/internal/synth"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/log"
)

type fakeDocs struct {
	mu        sync.Mutex
	docs      []store.Document // newest first
	next      int
	drafts    []store.Draft
	renameErr error
	lists     int

	// hold blocks the next SaveDraft until closed; entered is closed once it
	// is waiting
	hold    chan struct{}
	entered chan struct{}
}

func (f *fakeDocs) List(context.Context) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	out := make([]store.Document, len(f.docs))
	for i, d := range f.docs {
		d.AudioSize = int64(len(d.AudioBlob))
		d.AudioBlob = nil
		out[i] = d
	}
	return out, nil
}

func (f *fakeDocs) Get(_ context.Context, id string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, ttypes.NewPersistenceError("get", ttypes.ErrNotFound)
}

func (f *fakeDocs) Create(_ context.Context, content, prompt string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	d := store.Document{
		ID:      fmt.Sprintf("doc-%d", f.next),
		Title:   fmt.Sprintf("%s %d", store.DefaultTitlePrefix, f.next),
		Content: content,
		Prompt:  prompt,
	}
	f.docs = append([]store.Document{d}, f.docs...)
	return &d, nil
}

func (f *fakeDocs) SaveDraft(_ context.Context, id string, d store.Draft) error {
	f.mu.Lock()
	hold := f.hold
	f.hold = nil
	f.mu.Unlock()
	if hold != nil {
		close(f.entered)
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	for i := range f.docs {
		if f.docs[i].ID == id {
			f.docs[i].Content = d.Content
			f.docs[i].Prompt = d.Prompt
			f.docs[i].Settings = d.Settings
			f.docs[i].Model = d.Model
			return nil
		}
	}
	return ttypes.NewPersistenceError("save draft", ttypes.ErrNotFound)
}

func (f *fakeDocs) Rename(_ context.Context, id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	for i := range f.docs {
		if f.docs[i].ID == id {
			f.docs[i].Title = title
		}
	}
	return nil
}

func (f *fakeDocs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.docs[:0]
	for _, d := range f.docs {
		if d.ID != id {
			out = append(out, d)
		}
	}
	f.docs = out
	return nil
}

func (f *fakeDocs) draftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drafts)
}

type fakePlayer struct {
	mu     sync.Mutex
	buf    *pcm.Buffer
	blob   []byte
	params audio.Params
	stops  int
}

func (p *fakePlayer) Load(buf *pcm.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf, p.blob = buf, nil
}

func (p *fakePlayer) LoadBlob(blob []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf, p.blob = nil, blob
}

func (p *fakePlayer) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf, p.blob = nil, nil
	p.stops++
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) SetParams(params audio.Params) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = params
}

type fakeGenerator struct {
	mu   sync.Mutex
	reqs []synth.GenerateRequest
	gate chan struct{}
	err  error
}

func (g *fakeGenerator) Generate(_ context.Context, req synth.GenerateRequest) (*synth.GeneratedAudio, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	buf := pcm.NewBuffer(make([]float32, ttypes.SampleRate), ttypes.SampleRate)
	return &synth.GeneratedAudio{
		DocumentID: req.DocumentID,
		Buffer:     buf,
		WAV:        []byte("RIFF"),
		Duration:   buf.Seconds(),
	}, g.err
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestSession(t *testing.T, docs *fakeDocs, debounce time.Duration) (*Session, *fakePlayer, *fakeGenerator, *settings.MemoryStore) {
	t.Helper()
	player := &fakePlayer{}
	gen := &fakeGenerator{}
	st := settings.NewMemoryStore(settings.Default())
	s := New(Options{
		Documents: docs,
		Generator: gen,
		Settings:  st,
		Player:    player,
		Debounce:  debounce,
		Logger:    quietLogger(),
	})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, player, gen, st
}

func seeded() *fakeDocs {
	slow := ttypes.DefaultSettings().WithSpeed(0.5).WithVoice(ttypes.VoiceCharon)
	return &fakeDocs{
		next: 2,
		docs: []store.Document{
			{ID: "doc-2", Title: "second", Content: "二", Settings: &slow, Model: ttypes.ModelPro, AudioBlob: []byte("wav")},
			{ID: "doc-1", Title: "first", Content: "一"},
		},
	}
}

func TestSessionOpenSelectsNewest(t *testing.T) {
	s, player, _, _ := newTestSession(t, seeded(), time.Hour)

	doc, ok := s.Active()
	if !ok || doc.ID != "doc-2" {
		t.Fatalf("expected doc-2 active, got %+v", doc)
	}
	if doc.AudioBlob != nil {
		t.Error("Active should not expose the audio blob")
	}
	if string(player.blob) != "wav" {
		t.Errorf("expected persisted audio loaded into the player, got %q", player.blob)
	}
	if player.params.Speed != 0.5 {
		t.Errorf("player speed = %v, want document speed 0.5", player.params.Speed)
	}
	if got := s.Settings(); got.Model != ttypes.ModelPro || got.Audio.Voice != ttypes.VoiceCharon {
		t.Errorf("settings not hydrated from document: %+v", got)
	}
}

func TestSessionSelectFallsBackToDefaults(t *testing.T) {
	s, player, _, _ := newTestSession(t, seeded(), time.Hour)

	if err := s.Select(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := s.Settings(); got != settings.Default() {
		t.Errorf("expected default settings, got %+v", got)
	}
	if player.blob != nil || player.buf != nil {
		t.Error("document without audio should leave the player empty")
	}
	if player.params != audio.ParamsFrom(ttypes.DefaultSettings()) {
		t.Errorf("player params not reset: %+v", player.params)
	}
}

func TestSessionRapidEditsSaveOnce(t *testing.T) {
	docs := seeded()
	s, _, _, _ := newTestSession(t, docs, 40*time.Millisecond)
	ctx := context.Background()

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		if err := s.SetContent(ctx, text); err != nil {
			t.Fatalf("SetContent: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for docs.draftCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)

	if n := docs.draftCount(); n != 1 {
		t.Fatalf("expected exactly one save, got %d", n)
	}
	if got := docs.drafts[0].Content; got != "hello" {
		t.Errorf("saved content = %q, want final text", got)
	}
}

func TestSessionFlushSkipsUnchanged(t *testing.T) {
	docs := seeded()
	s, _, _, _ := newTestSession(t, docs, time.Hour)
	ctx := context.Background()

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if docs.draftCount() != 0 {
		t.Fatal("unchanged draft was saved")
	}

	if err := s.SetPrompt(ctx, "slowly"); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if docs.draftCount() != 1 || docs.drafts[0].Prompt != "slowly" {
		t.Fatalf("expected pending prompt flushed on close, got %+v", docs.drafts)
	}
}

func TestSessionSelectFlushesPendingEdits(t *testing.T) {
	docs := seeded()
	s, _, _, _ := newTestSession(t, docs, time.Hour)
	ctx := context.Background()

	if err := s.SetContent(ctx, "edited"); err != nil {
		t.Fatal(err)
	}
	if err := s.Select(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	doc, _ := docs.Get(ctx, "doc-2")
	if doc.Content != "edited" {
		t.Errorf("edit lost when switching documents: %q", doc.Content)
	}
}

func TestSessionSetContentCreatesDocument(t *testing.T) {
	docs := &fakeDocs{}
	s, _, _, _ := newTestSession(t, docs, time.Hour)

	if _, ok := s.Active(); ok {
		t.Fatal("no document should be active in an empty store")
	}
	if err := s.SetContent(context.Background(), "你好"); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	doc, ok := s.Active()
	if !ok || doc.Content != "你好" {
		t.Fatalf("expected new document with content, got %+v", doc)
	}
	if len(s.Documents()) != 1 {
		t.Errorf("expected one listed document, got %d", len(s.Documents()))
	}

	if err := s.SetPrompt(context.Background(), "x"); err != nil {
		t.Errorf("SetPrompt on active document: %v", err)
	}
}

func TestSessionSetPromptCreatesDocument(t *testing.T) {
	docs := &fakeDocs{}
	s, _, _, _ := newTestSession(t, docs, time.Hour)

	if err := s.SetPrompt(context.Background(), "speak softly"); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	doc, ok := s.Active()
	if !ok {
		t.Fatal("expected a document to be created")
	}
	if doc.Prompt != "speak softly" || doc.Content != "" {
		t.Errorf("unexpected document %+v", doc)
	}
	if len(s.Documents()) != 1 {
		t.Errorf("expected one listed document, got %d", len(s.Documents()))
	}
}

func TestSessionGenerateWithoutDocument(t *testing.T) {
	s, _, _, _ := newTestSession(t, &fakeDocs{}, time.Hour)

	out, err := s.Generate(context.Background())
	if out != nil {
		t.Fatal("expected no audio without a document")
	}
	if !ttypes.IsValidation(err) || !errors.Is(err, ttypes.ErrEmptyText) {
		t.Errorf("expected a VALIDATION ErrEmptyText, got %v", err)
	}
}

func TestSessionEmptyEditWithoutDocument(t *testing.T) {
	docs := &fakeDocs{}
	s, _, _, _ := newTestSession(t, docs, time.Hour)
	ctx := context.Background()

	if err := s.SetContent(ctx, ""); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	if err := s.SetPrompt(ctx, ""); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	if _, ok := s.Active(); ok {
		t.Error("empty edits should not create a document")
	}
	if n := len(docs.docs); n != 0 {
		t.Errorf("store has %d documents, want 0", n)
	}
}

func TestSessionFlushWaitsForRunningAutosave(t *testing.T) {
	docs := seeded()
	s, _, _, _ := newTestSession(t, docs, 10*time.Millisecond)
	ctx := context.Background()

	docs.mu.Lock()
	docs.hold = make(chan struct{})
	docs.entered = make(chan struct{})
	hold, entered := docs.hold, docs.entered
	docs.mu.Unlock()

	if err := s.SetContent(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("autosave did not start")
	}

	if err := s.SetContent(ctx, "new"); err != nil {
		t.Fatal(err)
	}
	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(ctx) }()

	select {
	case err := <-flushed:
		t.Fatalf("Flush returned while an older save was still running: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	close(hold)

	select {
	case err := <-flushed:
		if err != nil {
			t.Fatalf("Flush: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Flush did not finish")
	}

	doc, err := docs.Get(ctx, "doc-2")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "new" {
		t.Errorf("persisted content = %q, want %q", doc.Content, "new")
	}
	if n := docs.draftCount(); n != 2 {
		t.Errorf("writes = %d, want 2", n)
	}
}

func TestSessionRenameFailureReloads(t *testing.T) {
	docs := seeded()
	s, _, _, _ := newTestSession(t, docs, time.Hour)
	ctx := context.Background()

	docs.renameErr = errors.New("disk full")
	before := docs.lists

	err := s.Rename(ctx, "doc-2", "renamed")
	if err == nil {
		t.Fatal("expected rename error")
	}
	if docs.lists != before+1 {
		t.Error("expected the list to be re-fetched after a failed rename")
	}
	if doc, _ := s.Active(); doc.Title != "second" {
		t.Errorf("title = %q, want reverted title", doc.Title)
	}
	for _, d := range s.Documents() {
		if d.Title == "renamed" {
			t.Error("optimistic title survived the failure")
		}
	}
}

func TestSessionRename(t *testing.T) {
	docs := seeded()
	s, _, _, _ := newTestSession(t, docs, time.Hour)

	if err := s.Rename(context.Background(), "doc-1", "  chapter one "); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got := s.Documents()[1].Title; got != "chapter one" {
		t.Errorf("title = %q", got)
	}
	if err := s.Rename(context.Background(), "doc-1", "   "); err == nil {
		t.Error("expected error for blank title")
	}
}

func TestSessionDeleteActive(t *testing.T) {
	docs := seeded()
	s, player, _, _ := newTestSession(t, docs, time.Hour)
	ctx := context.Background()

	if err := s.Delete(ctx, "doc-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	doc, ok := s.Active()
	if !ok || doc.ID != "doc-1" {
		t.Fatalf("expected fallback to doc-1, got %+v", doc)
	}
	if player.blob != nil {
		t.Error("deleted document's audio still loaded")
	}

	if err := s.Delete(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Active(); ok {
		t.Error("expected no active document")
	}
	if len(s.Documents()) != 0 {
		t.Error("expected empty list")
	}
}

func TestSessionSetSettings(t *testing.T) {
	docs := seeded()
	s, player, _, st := newTestSession(t, docs, time.Hour)
	ctx := context.Background()

	next := s.Settings().Audio.WithPitch(600)
	if err := s.SetSettings(next); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	if st.Saves() != 1 {
		t.Errorf("expected one settings save, got %d", st.Saves())
	}
	if player.params.Pitch != 600 {
		t.Errorf("player pitch = %d, want 600", player.params.Pitch)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	doc, _ := docs.Get(ctx, "doc-2")
	if doc.Settings == nil || doc.Settings.Pitch != 600 {
		t.Errorf("settings not recorded on the document: %+v", doc.Settings)
	}

	bad := next
	bad.Speed = 9
	if err := s.SetSettings(bad); err == nil {
		t.Error("expected validation error")
	}

	st.FailWith(errors.New("read-only"))
	if err := s.SetModel(ttypes.ModelFlash); err == nil {
		t.Error("expected settings save failure to surface")
	}
	if s.Settings().Model != ttypes.ModelPro {
		t.Error("model changed despite failed save")
	}
}

func TestSessionGenerateLoadsActive(t *testing.T) {
	s, player, gen, _ := newTestSession(t, seeded(), time.Hour)

	out, err := s.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.reqs[0].DocumentID != "doc-2" || gen.reqs[0].Model != ttypes.ModelPro || gen.reqs[0].Voice != ttypes.VoiceCharon {
		t.Errorf("unexpected request %+v", gen.reqs[0])
	}
	if player.buf != out.Buffer {
		t.Error("generated buffer not loaded")
	}
}

func TestSessionGenerateForInactiveDocument(t *testing.T) {
	s, player, gen, _ := newTestSession(t, seeded(), time.Hour)
	ctx := context.Background()
	gen.gate = make(chan struct{})

	done := make(chan *synth.GeneratedAudio, 1)
	go func() {
		out, _ := s.Generate(ctx)
		done <- out
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		gen.mu.Lock()
		n := len(gen.reqs)
		gen.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Select(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	close(gen.gate)
	out := <-done

	if out == nil || out.DocumentID != "doc-2" {
		t.Fatalf("expected result for doc-2, got %+v", out)
	}
	if player.buf != nil {
		t.Error("stale generation was loaded into the player")
	}
	if doc, _ := s.Active(); doc.ID != "doc-1" {
		t.Errorf("active document changed to %s", doc.ID)
	}
}

func TestSessionGeneratePersistenceFailure(t *testing.T) {
	s, player, gen, _ := newTestSession(t, seeded(), time.Hour)
	gen.err = ttypes.NewPersistenceError("save generated audio", errors.New("locked"))

	out, err := s.Generate(context.Background())
	if !ttypes.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if out == nil || player.buf != out.Buffer {
		t.Error("audio should still be playable after a failed save")
	}
}

func TestSessionReload(t *testing.T) {
	docs := seeded()
	s, player, _, st := newTestSession(t, docs, time.Hour)

	next := settings.Default()
	next.Audio = next.Audio.WithVolume(0.4)
	s.Reload(next)

	if player.params.Volume != 0.4 {
		t.Errorf("player volume = %v, want 0.4", player.params.Volume)
	}
	if st.Saves() != 0 {
		t.Error("Reload must not write the settings store")
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if docs.draftCount() != 1 {
		t.Error("reloaded settings not recorded on the active document")
	}

	s.Reload(next)
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if docs.draftCount() != 1 {
		t.Error("identical settings caused another save")
	}
}
