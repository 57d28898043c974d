// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps one speech synthesis backend: a local engine (a
// platform speech facility, eSpeak, Festival, a Coqui server on localhost) or
// a cloud service (Google Translate TTS, Azure, Polly, Watson, OpenAI,
// ElevenLabs). Every provider carries a static [Descriptor] and exposes a
// runtime availability [Provider.Probe]; the dispatcher treats the rest of
// the provider as a black box that turns text into an audio file.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel against the same provider.
type Provider interface {
	// Descriptor returns the provider's static metadata. The returned value
	// must be identical on every call.
	Descriptor() Descriptor

	// Probe checks whether the provider is usable in the current environment
	// (binary present, server reachable, voices installed). It is called once
	// at startup under a deadline carried by ctx; implementations must return
	// promptly when ctx is done. Credential presence is checked by the caller
	// before Probe runs and need not be repeated here.
	Probe(ctx context.Context) Availability

	// Synthesize renders text to an audio file at opts.OutputPath. The file
	// format must match Descriptor().OutputExt. A nil error means the
	// provider believes the file was written; callers still verify it exists.
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) error

	// ListVoices returns the voices currently offered by the provider.
	// Returns an error if the catalogue cannot be retrieved or ctx is
	// cancelled first.
	ListVoices(ctx context.Context) ([]Voice, error)
}
