// Package registry probes every configured TTS provider once at startup and
// publishes the results as an immutable [State].
//
// Probes run one after another in registration order. Each probe first checks
// the provider's credential requirement; providers with missing environment
// variables are marked unavailable without being contacted. The remaining
// probes run in their own goroutine under a per-probe deadline, so a probe
// that ignores its context cannot delay the providers registered after it.
//
// A [State] never changes after [Initialize] returns and is safe for
// concurrent reads without locking.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/voxdispatch/internal/observe"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// DefaultProbeTimeout bounds a single provider probe.
const DefaultProbeTimeout = 5 * time.Second

// Entry is the probed record of one provider.
type Entry struct {
	Descriptor   tts.Descriptor
	Availability tts.Availability
	Provider     tts.Provider
}

// State is the immutable result of [Initialize].
type State struct {
	entries []Entry
	index   map[string]int // lower-case id and alias -> entries index
}

type settings struct {
	probeTimeout time.Duration
	lookupEnv    func(string) (string, bool)
	metrics      *observe.Metrics
}

// Option configures [Initialize].
type Option func(*settings)

// WithProbeTimeout sets the per-provider probe deadline. Non-positive values
// keep [DefaultProbeTimeout].
func WithProbeTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// WithLookupEnv replaces os.LookupEnv for credential checks.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(s *settings) {
		if fn != nil {
			s.lookupEnv = fn
		}
	}
}

// WithMetrics records probe durations on m instead of the default instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// Initialize probes each provider exactly once, in order, and returns the
// resulting snapshot. Providers whose ID (or alias) was already registered
// are skipped with a warning.
func Initialize(ctx context.Context, providers []tts.Provider, opts ...Option) *State {
	s := settings{
		probeTimeout: DefaultProbeTimeout,
		lookupEnv:    os.LookupEnv,
	}
	for _, o := range opts {
		o(&s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	st := &State{index: make(map[string]int, len(providers))}
	for _, p := range providers {
		desc := p.Descriptor()
		if _, dup := st.index[strings.ToLower(desc.ID)]; dup {
			slog.Warn("registry: duplicate provider id, skipping", "provider", desc.ID)
			continue
		}

		start := time.Now()
		av := probe(ctx, p, desc, s)
		elapsed := time.Since(start)
		s.metrics.RecordProbe(ctx, desc.ID, av.Available, elapsed.Seconds())

		if av.Available {
			slog.Info("provider available", "provider", desc.ID, "kind", desc.Kind, "duration", elapsed)
		} else {
			slog.Info("provider unavailable", "provider", desc.ID, "reason", av.Reason, "duration", elapsed)
		}

		i := len(st.entries)
		st.entries = append(st.entries, Entry{Descriptor: desc, Availability: av, Provider: p})
		st.index[strings.ToLower(desc.ID)] = i
		for _, a := range desc.Aliases {
			key := strings.ToLower(a)
			if _, taken := st.index[key]; !taken {
				st.index[key] = i
			}
		}
	}
	return st
}

// probe runs the credential check and then the provider probe under the
// configured deadline.
func probe(ctx context.Context, p tts.Provider, desc tts.Descriptor, s settings) tts.Availability {
	if missing := desc.Credentials.Missing(s.lookupEnv); len(missing) > 0 {
		return tts.Unavailable("missing credentials: %s", strings.Join(missing, ", "))
	}

	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	done := make(chan tts.Availability, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("registry: probe panicked", "provider", desc.ID, "panic", r)
				done <- tts.Unavailable("probe panicked: %v", r)
			}
		}()
		done <- p.Probe(pctx)
	}()

	select {
	case av := <-done:
		return av
	case <-pctx.Done():
		if ctx.Err() != nil {
			return tts.Unavailable("probe cancelled: %v", ctx.Err())
		}
		return tts.Unavailable("probe timed out after %s", s.probeTimeout)
	}
}

// Entries returns every registered provider in registration order.
func (s *State) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Resolve maps an ID or alias to the canonical provider ID.
func (s *State) Resolve(idOrAlias string) (string, bool) {
	e, ok := s.lookup(idOrAlias)
	if !ok {
		return "", false
	}
	return e.Descriptor.ID, true
}

// IsAvailable reports whether id names a provider whose probe succeeded.
func (s *State) IsAvailable(id string) bool {
	e, ok := s.lookup(id)
	return ok && e.Availability.Available
}

// ListAvailable returns the IDs of available providers in registration order.
func (s *State) ListAvailable() []string {
	var ids []string
	for _, e := range s.entries {
		if e.Availability.Available {
			ids = append(ids, e.Descriptor.ID)
		}
	}
	return ids
}

// Describe returns the descriptor registered under id.
func (s *State) Describe(id string) (tts.Descriptor, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return tts.Descriptor{}, false
	}
	return e.Descriptor, true
}

// Availability returns the probe result for id. Unknown ids are reported as
// unavailable.
func (s *State) Availability(id string) tts.Availability {
	e, ok := s.lookup(id)
	if !ok {
		return tts.Unavailable("unknown provider %q", id)
	}
	return e.Availability
}

// Provider returns the provider registered under id.
func (s *State) Provider(id string) (tts.Provider, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	return e.Provider, true
}

// Len returns the number of registered providers.
func (s *State) Len() int { return len(s.entries) }

func (s *State) lookup(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.index[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// String summarises the snapshot for logs.
func (s *State) String() string {
	return fmt.Sprintf("registry(%d providers, %d available)", len(s.entries), len(s.ListAvailable()))
}
