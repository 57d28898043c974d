// Package dispatch runs the synthesis pipeline: validate the request, select a
// provider, normalize language and voice, name the output file, call the
// provider and verify the artifact.
//
// Every call returns an [Outcome] value. Failures are reported inside the
// outcome with an error kind; nothing past the dispatcher panics or returns a
// bare error for a synthesis request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/MrWong99/voxdispatch/internal/normalize"
	"github.com/MrWong99/voxdispatch/internal/observe"
	"github.com/MrWong99/voxdispatch/internal/registry"
	"github.com/MrWong99/voxdispatch/internal/resilience"
	"github.com/MrWong99/voxdispatch/internal/selector"
	"github.com/MrWong99/voxdispatch/pkg/audio"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// Defaults for [New].
const (
	DefaultSynthesisTimeout = 2 * time.Minute
	DefaultPlaybackLimit    = 10 * time.Minute
	DefaultLanguage         = "en"

	catalogueTimeout = 30 * time.Second
)

// Dispatcher routes requests to providers. It is safe for concurrent use.
type Dispatcher struct {
	state    *registry.State
	sel      *selector.Selector
	metrics  *observe.Metrics
	breakers *resilience.Set
	player   audio.Player

	scratchDir   string
	synthTimeout time.Duration
	playLimit    atomic.Int64 // time.Duration

	catMu     sync.Mutex
	catalogue map[string][]tts.Voice
	catGroup  singleflight.Group

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	nameMu   sync.Mutex
	reserved map[string]struct{}
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithScratchDir sets the directory for generated output names. Default:
// os.TempDir().
func WithScratchDir(dir string) Option {
	return func(d *Dispatcher) {
		if dir != "" {
			d.scratchDir = dir
		}
	}
}

// WithSynthesisTimeout bounds a single provider call.
func WithSynthesisTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.synthTimeout = t
		}
	}
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithBreakers sets the per-provider circuit breakers.
func WithBreakers(s *resilience.Set) Option {
	return func(d *Dispatcher) { d.breakers = s }
}

// WithPlayer sets the audio output used by [Dispatcher.Play].
func WithPlayer(p audio.Player) Option {
	return func(d *Dispatcher) { d.player = p }
}

// WithPlaybackLimit sets the initial playback deadline.
func WithPlaybackLimit(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.playLimit.Store(int64(t))
		}
	}
}

// New returns a Dispatcher over the given registry snapshot.
func New(st *registry.State, sel *selector.Selector, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:        st,
		sel:          sel,
		scratchDir:   os.TempDir(),
		synthTimeout: DefaultSynthesisTimeout,
		catalogue:    make(map[string][]tts.Voice),
		limiters:     make(map[string]*rate.Limiter),
		reserved:     make(map[string]struct{}),
	}
	d.playLimit.Store(int64(DefaultPlaybackLimit))
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.breakers == nil {
		d.breakers = resilience.NewSet(resilience.Config{})
	}
	return d
}

// State returns the registry snapshot the dispatcher routes against.
func (d *Dispatcher) State() *registry.State { return d.state }

// Selector returns the dispatcher's selector.
func (d *Dispatcher) Selector() *selector.Selector { return d.sel }

// Metrics returns the dispatcher's metric instruments.
func (d *Dispatcher) Metrics() *observe.Metrics { return d.metrics }

// ScratchDir returns the directory used for generated output names.
func (d *Dispatcher) ScratchDir() string { return d.scratchDir }

// SetPlaybackLimit replaces the playback deadline. Used by config reloads.
func (d *Dispatcher) SetPlaybackLimit(t time.Duration) {
	if t > 0 {
		d.playLimit.Store(int64(t))
	}
}

// PlaybackLimit returns the current playback deadline.
func (d *Dispatcher) PlaybackLimit() time.Duration { return time.Duration(d.playLimit.Load()) }

// Select resolves providerID the same way Synthesize does.
func (d *Dispatcher) Select(providerID string) (string, error) {
	return d.sel.Select(d.state, providerID)
}

// OutputExt returns the file extension the provider chosen for providerID
// writes, or ".wav" when no provider would be chosen.
func (d *Dispatcher) OutputExt(providerID string) string {
	id, err := d.Select(providerID)
	if err != nil {
		return ".wav"
	}
	if desc, ok := d.state.Describe(id); ok && desc.OutputExt != "" {
		return desc.OutputExt
	}
	return ".wav"
}

// Synthesize runs the full pipeline for req. It never returns an error; the
// outcome carries the failure kind and message instead.
func (d *Dispatcher) Synthesize(ctx context.Context, req Request) Outcome {
	start := time.Now()
	req = req.withDefaults()
	out := Outcome{
		Mode:     d.sel.Mode(),
		Provider: req.Provider,
		Text:     req.Text,
	}

	if err := req.Validate(); err != nil {
		return out.fail(newError(KindValidation, "", err))
	}

	id, err := d.Select(req.Provider)
	if err != nil {
		return out.fail(newError(KindOf(err), req.Provider, err))
	}
	out.Provider = id
	p, _ := d.state.Provider(id)
	desc, _ := d.state.Describe(id)

	ctx, span := observe.StartProviderSpan(ctx, id, "synthesize")
	params := normalize.Normalize(id, req.Language, req.Voice, d.voices(ctx, id, p))

	path, release, err := d.outputPath(req.OutputFile, desc.OutputExt)
	if err != nil {
		observe.EndSpan(span, err)
		return out.fail(newError(KindSynthesisFailure, id, err))
	}
	defer release()

	err = d.call(ctx, id, desc, p, req.Text, tts.SynthesisOptions{
		OutputPath:     path,
		Language:       params.Language,
		Voice:          params.Voice,
		WordsPerMinute: req.Speed,
		Speed:          req.Rate,
		Pitch:          req.Pitch,
	})
	var size int64
	if err == nil {
		size, err = artifactSize(path)
	}
	elapsed := time.Since(start)
	observe.EndSpan(span, err)

	if err != nil {
		d.metrics.RecordSynthesis(ctx, id, "error", elapsed.Seconds())
		d.metrics.RecordProviderRequest(ctx, id, "synthesize", "error")
		d.metrics.RecordProviderError(ctx, id, "synthesize")
		observe.Logger(ctx).Warn("synthesis failed", "provider", id, "err", err, "duration", elapsed)
		return out.fail(newError(KindSynthesisFailure, id, err))
	}

	d.metrics.RecordSynthesis(ctx, id, "ok", elapsed.Seconds())
	d.metrics.RecordProviderRequest(ctx, id, "synthesize", "ok")
	observe.Logger(ctx).Debug("synthesis complete",
		"provider", id, "file", path, "bytes", size, "voice", params.Voice, "step", params.Step, "duration", elapsed)

	out.Status = StatusSuccess
	out.OutputFile = path
	out.FileSizeBytes = size
	out.Language = req.Language
	out.Voice = req.Voice
	out.ResolvedVoice = params.Voice
	out.Speed = req.Speed
	out.Rate = req.Rate
	out.Pitch = req.Pitch
	out.Duration = elapsed
	return out
}

// call waits on the provider's rate limiter and runs Synthesize inside its
// circuit breaker under the synthesis timeout.
func (d *Dispatcher) call(ctx context.Context, id string, desc tts.Descriptor, p tts.Provider, text string, opts tts.SynthesisOptions) error {
	if dir := filepath.Dir(opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.synthTimeout)
	defer cancel()

	if lim := d.limiter(id, desc); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	err := d.breakers.Get(id).Execute(ctx, func(ctx context.Context) error {
		return p.Synthesize(ctx, text, opts)
	})
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return fmt.Errorf("synthesis timed out after %s: %w", d.synthTimeout, err)
	}
	return err
}

func (d *Dispatcher) limiter(id string, desc tts.Descriptor) *rate.Limiter {
	if desc.Limits == nil || desc.Limits.RequestsPerSecond <= 0 {
		return nil
	}
	d.limMu.Lock()
	defer d.limMu.Unlock()
	lim, ok := d.limiters[id]
	if !ok {
		burst := max(int(desc.Limits.RequestsPerSecond), 1)
		lim = rate.NewLimiter(rate.Limit(desc.Limits.RequestsPerSecond), burst)
		d.limiters[id] = lim
	}
	return lim
}

// outputPath returns the file to write and a release func that frees a
// generated name. Generated names are unique among in-flight requests and
// files already on disk.
func (d *Dispatcher) outputPath(requested, ext string) (string, func(), error) {
	if requested = strings.TrimSpace(requested); requested != "" {
		abs, err := filepath.Abs(requested)
		if err != nil {
			return "", nil, fmt.Errorf("resolve output path: %w", err)
		}
		return abs, func() {}, nil
	}
	if ext == "" {
		ext = ".wav"
	}
	prefix := "tts_"
	if d.sel.Mode() == selector.ModeOnline {
		prefix = "tts_online_"
	}

	d.nameMu.Lock()
	defer d.nameMu.Unlock()
	for {
		path := filepath.Join(d.scratchDir, prefix+ShortID()+ext)
		if _, taken := d.reserved[path]; taken {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		d.reserved[path] = struct{}{}
		return path, func() {
			d.nameMu.Lock()
			delete(d.reserved, path)
			d.nameMu.Unlock()
		}, nil
	}
}

// ShortID returns the first eight hex digits of a random UUID.
func ShortID() string {
	return uuid.NewString()[:8]
}

// artifactSize stats path. A missing file is a failure; an empty one is not.
func artifactSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("provider reported success but %s was not created", path)
		}
		return 0, fmt.Errorf("stat output: %w", err)
	}
	return fi.Size(), nil
}

// voices returns the cached catalogue of id, loading it once. Load failures
// yield an empty catalogue and are retried on the next call.
func (d *Dispatcher) voices(ctx context.Context, id string, p tts.Provider) []tts.Voice {
	v, err := d.loadCatalogue(ctx, id, p)
	if err != nil {
		slog.Debug("catalogue unavailable, using provider defaults", "provider", id, "err", err)
		return nil
	}
	return v
}

func (d *Dispatcher) loadCatalogue(ctx context.Context, id string, p tts.Provider) ([]tts.Voice, error) {
	d.catMu.Lock()
	cached, ok := d.catalogue[id]
	d.catMu.Unlock()
	if ok {
		return cached, nil
	}

	res, err, _ := d.catGroup.Do(id, func() (any, error) {
		d.catMu.Lock()
		cached, ok := d.catalogue[id]
		d.catMu.Unlock()
		if ok {
			return cached, nil
		}
		// Detached from ctx: other callers may be waiting on the same load.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogueTimeout)
		defer cancel()
		voices, err := listVoices(lctx, p)
		if err != nil {
			return nil, err
		}
		d.catMu.Lock()
		d.catalogue[id] = voices
		d.catMu.Unlock()
		return voices, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]tts.Voice), nil
}

// listVoices calls p.ListVoices and turns a panic into an error.
func listVoices(ctx context.Context, p tts.Provider) (voices []tts.Voice, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.ListVoices(ctx)
}
