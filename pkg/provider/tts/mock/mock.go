// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to control probe results, synthesized audio, and voice
// catalogues, and to verify which calls reached the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Desc:             tts.Descriptor{ID: "espeak", Kind: tts.KindLocalEngine, OutputExt: ".wav"},
//	    ProbeResult:      tts.Available(nil),
//	    SynthesizeAudio:  []byte("RIFF...."),
//	    ListVoicesResult: []tts.Voice{{ID: "en", Name: "english"}},
//	}
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Opts is the options value passed to Synthesize.
	Opts tts.SynthesisOptions
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Desc is returned by Descriptor.
	Desc tts.Descriptor

	// ProbeResult is returned by Probe.
	ProbeResult tts.Availability

	// ProbeFunc, if set, replaces ProbeResult. Use it to simulate slow or
	// panicking probes.
	ProbeFunc func(ctx context.Context) tts.Availability

	// SynthesizeAudio is written to opts.OutputPath on a successful Synthesize.
	SynthesizeAudio []byte

	// SkipWrite makes Synthesize succeed without writing any file.
	SkipWrite bool

	// SynthesizeErr, if non-nil, is returned by Synthesize and no file is written.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// ProbeCalls counts calls to Probe.
	ProbeCalls int

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Descriptor returns Desc.
func (p *Provider) Descriptor() tts.Descriptor {
	return p.Desc
}

// Probe records the call and returns ProbeFunc(ctx) or ProbeResult.
func (p *Provider) Probe(ctx context.Context) tts.Availability {
	p.mu.Lock()
	p.ProbeCalls++
	fn := p.ProbeFunc
	res := p.ProbeResult
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return res
}

// Synthesize records the call and, unless SynthesizeErr or SkipWrite is set,
// writes SynthesizeAudio to opts.OutputPath.
func (p *Provider) Synthesize(_ context.Context, text string, opts tts.SynthesisOptions) error {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Opts: opts})
	err := p.SynthesizeErr
	skip := p.SkipWrite
	audio := p.SynthesizeAudio
	p.mu.Unlock()

	if err != nil || skip {
		return err
	}
	return os.WriteFile(opts.OutputPath, audio, 0o644)
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ProbeCalls = 0
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
