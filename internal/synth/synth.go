// Package synth turns a script into playable, persisted audio: it gates on
// the credential, calls the speech service, decodes the PCM payload, wraps it
// in a WAV container and saves it to the requesting document.
package synth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/85Ryan/Nebula/internal/pcm"
	"github.com/85Ryan/Nebula/internal/speech"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/85Ryan/Nebula/internal/wav"
	"github.com/charmbracelet/log"
)

// Speaker calls the remote speech service and returns base64 PCM.
type Speaker interface {
	Synthesize(ctx context.Context, req speech.Request) (string, error)
}

// DocumentSink persists generated audio by document id.
type DocumentSink interface {
	SaveAudio(ctx context.Context, id string, wav []byte, seconds float64) error
}

// PreviewCache holds one preview WAV per voice.
type PreviewCache interface {
	GetPreview(ctx context.Context, voice ttypes.Voice) ([]byte, bool)
	PutPreview(ctx context.Context, voice ttypes.Voice, wav []byte) error
}

// CredentialSource returns the current API key, or "" if none is set.
type CredentialSource interface {
	Credential() string
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func() string

// Credential implements CredentialSource.
func (f CredentialFunc) Credential() string { return f() }

// StaticCredential is a fixed API key.
type StaticCredential string

// Credential implements CredentialSource.
func (s StaticCredential) Credential() string { return string(s) }

// Options configures an Orchestrator. Speaker and Credentials are required.
type Options struct {
	Speaker     Speaker
	Documents   DocumentSink
	Previews    PreviewCache
	Credentials CredentialSource
	Logger      *log.Logger
}

// GenerateRequest is one generation for a document.
type GenerateRequest struct {
	DocumentID string
	Text       string
	Prompt     string
	Voice      ttypes.Voice
	Model      ttypes.Model
}

// GeneratedAudio is the result of a generation.
type GeneratedAudio struct {
	DocumentID string
	Buffer     *pcm.Buffer
	WAV        []byte
	Duration   float64 // nominal seconds
}

// Preview is a voice sample.
type Preview struct {
	Voice  ttypes.Voice
	Buffer *pcm.Buffer
	WAV    []byte
	Cached bool
}

// Metrics are running counters of orchestrator activity.
type Metrics struct {
	Syntheses   int64
	Failures    int64
	CacheHits   int64
	CacheMisses int64
	LastLatency time.Duration
}

// Orchestrator coordinates generation and previews.
type Orchestrator struct {
	speaker     Speaker
	documents   DocumentSink
	previews    PreviewCache
	credentials CredentialSource
	log         *log.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	metrics  Metrics

	previewing atomic.Bool
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Credentials == nil {
		opts.Credentials = StaticCredential("")
	}
	return &Orchestrator{
		speaker:     opts.Speaker,
		documents:   opts.Documents,
		previews:    opts.Previews,
		credentials: opts.Credentials,
		log:         opts.Logger,
		inflight:    make(map[string]struct{}),
	}
}

// Generate synthesizes req.Text and persists the result to req.DocumentID.
// The target id is fixed at call time, so a result that arrives after the
// user moved to another document still lands on the one that asked for it.
// If persisting fails the audio is returned together with the error.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*GeneratedAudio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ttypes.NewValidationError("generate", ttypes.ErrEmptyText).WithContext("id", req.DocumentID)
	}
	key, err := o.credential()
	if err != nil {
		return nil, err
	}
	if !o.acquire(req.DocumentID) {
		return nil, ttypes.NewValidationError("generate", ttypes.ErrBusy).WithContext("id", req.DocumentID)
	}
	defer o.release(req.DocumentID)

	if req.Model == "" {
		req.Model = ttypes.DefaultModel
	}
	buf, err := o.synthesize(ctx, speech.Request{
		APIKey: key,
		Text:   req.Text,
		Prompt: req.Prompt,
		Voice:  req.Voice,
		Model:  req.Model,
	})
	if err != nil {
		return nil, err
	}

	out := &GeneratedAudio{
		DocumentID: req.DocumentID,
		Buffer:     buf,
		WAV:        wav.Encode(buf),
		Duration:   buf.Seconds(),
	}

	if o.documents != nil && req.DocumentID != "" {
		if err := o.documents.SaveAudio(ctx, req.DocumentID, out.WAV, out.Duration); err != nil {
			o.log.Error("Failed to persist generated audio", "document", req.DocumentID, "error", err)
			if !ttypes.IsPersistence(err) {
				err = ttypes.NewPersistenceError("save generated audio", err).WithContext("id", req.DocumentID)
			}
			return out, err
		}
	}

	o.log.Info("Generated audio", "document", req.DocumentID, "seconds", out.Duration, "bytes", len(out.WAV))
	return out, nil
}

// PreviewVoice returns a short sample of voice, from the cache when possible.
// Only one preview may be in flight at a time.
func (o *Orchestrator) PreviewVoice(ctx context.Context, voice ttypes.Voice) (*Preview, error) {
	key, err := o.credential()
	if err != nil {
		return nil, err
	}
	if !o.previewing.CompareAndSwap(false, true) {
		return nil, ttypes.NewValidationError("preview voice", ttypes.ErrBusy).WithContext("voice", voice)
	}
	defer o.previewing.Store(false)

	if o.previews != nil {
		if blob, ok := o.previews.GetPreview(ctx, voice); ok {
			buf, err := wav.Decode(blob)
			if err == nil {
				o.count(func(m *Metrics) { m.CacheHits++ })
				o.log.Debug("Preview cache hit", "voice", voice)
				return &Preview{Voice: voice, Buffer: buf, WAV: blob, Cached: true}, nil
			}
			o.log.Warn("Discarding unreadable cached preview", "voice", voice, "error", err)
		}
		o.count(func(m *Metrics) { m.CacheMisses++ })
	}

	buf, err := o.synthesize(ctx, speech.Request{
		APIKey: key,
		Text:   ttypes.PreviewText,
		Voice:  voice,
		Model:  ttypes.ModelFlash,
	})
	if err != nil {
		return nil, err
	}

	p := &Preview{Voice: voice, Buffer: buf, WAV: wav.Encode(buf)}
	if o.previews != nil {
		if err := o.previews.PutPreview(ctx, voice, p.WAV); err != nil {
			o.log.Warn("Failed to cache preview", "voice", voice, "error", err)
		}
	}
	return p, nil
}

// Metrics returns a snapshot of the counters.
func (o *Orchestrator) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

// Busy reports whether a generation for id is in flight.
func (o *Orchestrator) Busy(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[id]
	return ok
}

func (o *Orchestrator) synthesize(ctx context.Context, req speech.Request) (*pcm.Buffer, error) {
	start := time.Now()
	data, err := o.speaker.Synthesize(ctx, req)
	latency := time.Since(start)

	if err == nil {
		var buf *pcm.Buffer
		buf, err = pcm.DecodeBase64(data, ttypes.SampleRate)
		if err == nil {
			o.count(func(m *Metrics) {
				m.Syntheses++
				m.LastLatency = latency
			})
			o.log.Debug("Synthesis complete", "voice", req.Voice, "model", req.Model.ShortName(),
				"latency", latency, "seconds", buf.Seconds())
			return buf, nil
		}
	}

	err = Classify(err)
	o.count(func(m *Metrics) {
		m.Failures++
		m.LastLatency = latency
	})
	o.log.Error("Synthesis failed", "voice", req.Voice, "model", req.Model.ShortName(),
		"code", ttypes.CodeOf(err), "error", err)
	return nil, err
}

func (o *Orchestrator) credential() (string, error) {
	key := strings.TrimSpace(o.credentials.Credential())
	if key == "" {
		return "", ttypes.NewCredentialError("no API key configured", ttypes.ErrMissingCredential)
	}
	return key, nil
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[id]; ok {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, id)
}

func (o *Orchestrator) count(fn func(*Metrics)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.metrics)
}

// Classify maps any failure onto the error taxonomy. Credential rejections
// become CREDENTIAL, malformed audio DECODE, and everything else SERVICE.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if ttypes.CodeOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, ttypes.ErrMissingCredential):
		return ttypes.NewCredentialError("no API key configured", err)
	case speech.IsAuth(err):
		return ttypes.NewCredentialError("the API key was rejected", err)
	case errors.Is(err, context.DeadlineExceeded):
		return ttypes.NewServiceError("the speech service timed out", err)
	case errors.Is(err, context.Canceled):
		return ttypes.NewServiceError("the request was cancelled", err)
	}
	var noAudio *speech.NoAudioError
	if errors.As(err, &noAudio) {
		return ttypes.NewServiceError("the speech service returned no audio", err)
	}
	return ttypes.NewServiceError("the speech service failed", err)
}
