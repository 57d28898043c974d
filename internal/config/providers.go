package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/voxdispatch/internal/selector"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/azure"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/coqui"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/espeak"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/festival"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/gtts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/openai"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/polly"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/system"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/watson"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// BuildContext is passed to every factory.
type BuildContext struct {
	Config      *Config
	Credentials Credentials
	Mode        selector.Mode
}

// Factory constructs one provider.
type Factory struct {
	// New builds the provider. It fails only for missing credentials or
	// invalid settings.
	New func(ctx context.Context, bc BuildContext) (tts.Provider, error)

	// Descriptor returns the static descriptor used for a placeholder when
	// New fails. Nil means a failed build is dropped.
	Descriptor func() tts.Descriptor
}

// Registry maps provider names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a factory under name. Subsequent calls with the same
// name overwrite the previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Create constructs the provider registered under name.
func (r *Registry) Create(ctx context.Context, name string, bc BuildContext) (tts.Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	return f.New(ctx, bc)
}

// Build constructs the providers named in ids, in order, skipping disabled
// ones. A provider whose factory fails is replaced by a [tts.Placeholder]
// that reports the failure as its unavailability reason, so it still shows
// up in listings.
func (r *Registry) Build(ctx context.Context, bc BuildContext, ids []string) []tts.Provider {
	out := make([]tts.Provider, 0, len(ids))
	for _, id := range ids {
		if bc.Config.IsDisabled(id) {
			slog.Info("provider disabled by config", "provider", id)
			continue
		}
		p, err := r.Create(ctx, id, bc)
		if err == nil {
			out = append(out, p)
			continue
		}

		r.mu.RLock()
		f := r.factories[strings.ToLower(id)]
		r.mu.RUnlock()
		if f.Descriptor == nil {
			slog.Warn("provider skipped", "provider", id, "err", err)
			continue
		}
		slog.Debug("provider not constructed", "provider", id, "err", err)
		out = append(out, &tts.Placeholder{Desc: f.Descriptor(), Err: err})
	}
	return out
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(system.ID, Factory{New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
		var opts []system.Option
		if b := bc.Config.Providers.System.Binary; b != "" {
			opts = append(opts, system.WithBinary(b))
		}
		return system.New(opts...), nil
	}})

	r.Register(espeak.ID, Factory{New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
		return espeak.New(espeak.WithBinary(bc.Config.Providers.Espeak.Binary)), nil
	}})

	r.Register(festival.ID, Factory{New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
		c := bc.Config.Providers.Festival
		return festival.New(festival.WithFestivalBinary(c.Binary), festival.WithText2WaveBinary(c.Text2Wave)), nil
	}})

	r.Register(coqui.ID, Factory{New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
		c := bc.Config.Providers.Coqui
		return coqui.New(c.URL,
			coqui.WithLanguage(c.Language),
			coqui.WithAPIMode(coqui.APIMode(c.APIMode)),
			coqui.WithTimeout(bc.Config.Synthesis.Timeout),
		)
	}})

	r.Register(gtts.ID, Factory{New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
		c := bc.Config.Providers.GTTS
		opts := []gtts.Option{gtts.WithTLD(c.TLD), gtts.WithBaseURL(c.BaseURL)}
		if bc.Mode == selector.ModeOffline {
			opts = append(opts, gtts.WithDescription("Google Text-to-Speech (requires internet)"))
		}
		return gtts.New(opts...), nil
	}})

	r.Register(azure.ID, Factory{
		New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
			c := bc.Config.Providers.Azure
			return azure.New(bc.Credentials.AzureSpeechKey, bc.Credentials.AzureSpeechRegion,
				azure.WithOutputFormat(c.OutputFormat),
				azure.WithEndpoint(c.Endpoint),
			)
		},
		Descriptor: azure.Descriptor,
	})

	r.Register(polly.ID, Factory{
		New: func(ctx context.Context, bc BuildContext) (tts.Provider, error) {
			c := bc.Config.Providers.Polly
			region := c.Region
			if region == "" {
				region = bc.Credentials.AWSRegion
			}
			return polly.New(ctx, polly.Credentials{
				AccessKeyID:     bc.Credentials.AWSAccessKeyID,
				SecretAccessKey: bc.Credentials.AWSSecretAccessKey,
				SessionToken:    bc.Credentials.AWSSessionToken,
			}, polly.WithRegion(region), polly.WithEngine(c.Engine))
		},
		Descriptor: polly.Descriptor,
	})

	r.Register(watson.ID, Factory{
		New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
			return watson.New(bc.Credentials.WatsonAPIKey, bc.Credentials.WatsonURL)
		},
		Descriptor: watson.Descriptor,
	})

	r.Register(openai.ID, Factory{
		New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
			c := bc.Config.Providers.OpenAI
			return openai.New(bc.Credentials.OpenAIAPIKey, c.Model,
				openai.WithBaseURL(c.BaseURL),
				openai.WithTimeout(bc.Config.Synthesis.Timeout),
			)
		},
		Descriptor: openai.Descriptor,
	})

	r.Register(elevenlabs.ID, Factory{
		New: func(_ context.Context, bc BuildContext) (tts.Provider, error) {
			c := bc.Config.Providers.ElevenLabs
			return elevenlabs.New(bc.Credentials.ElevenLabsAPIKey,
				elevenlabs.WithModel(c.Model),
				elevenlabs.WithBaseURL(c.BaseURL),
			)
		},
		Descriptor: elevenlabs.Descriptor,
	})

	return r
}

// ProvidersFor returns the provider IDs served in mode, in preference order.
// Auto mode has no set of its own and returns nil.
func ProvidersFor(mode selector.Mode) []string {
	switch mode {
	case selector.ModeOffline:
		return selector.OfflinePreference
	case selector.ModeOnline:
		return selector.OnlinePreference
	}
	return nil
}
