// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ID is the registry key of this provider.
const ID = "openai"

// EnvAPIKey is the environment variable holding the API key.
const EnvAPIKey = "OPENAI_API_KEY"

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelTTS1

// DefaultVoice is used when the caller names none.
const DefaultVoice = "alloy"

// Speed limits accepted by the API.
const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

// Voices is the static catalogue. The speech voices are multilingual and
// follow the language of the input text.
var Voices = []tts.Voice{
	{ID: "alloy", Name: "Alloy", Languages: []string{"multilingual"}, Gender: "neutral"},
	{ID: "ash", Name: "Ash", Languages: []string{"multilingual"}, Gender: "male"},
	{ID: "coral", Name: "Coral", Languages: []string{"multilingual"}, Gender: "female"},
	{ID: "echo", Name: "Echo", Languages: []string{"multilingual"}, Gender: "male"},
	{ID: "fable", Name: "Fable", Languages: []string{"multilingual"}, Gender: "neutral"},
	{ID: "onyx", Name: "Onyx", Languages: []string{"multilingual"}, Gender: "male"},
	{ID: "nova", Name: "Nova", Languages: []string{"multilingual"}, Gender: "female"},
	{ID: "sage", Name: "Sage", Languages: []string{"multilingual"}, Gender: "female"},
	{ID: "shimmer", Name: "Shimmer", Languages: []string{"multilingual"}, Gender: "female"},
}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient sets the HTTP client. It takes precedence over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a new OpenAI speech Provider.
// If model is empty, DefaultModel (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor { return Descriptor() }

// Descriptor returns the static OpenAI descriptor.
func Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindCloudService,
		Quality:     tts.QualityExcellent,
		Description: "OpenAI text-to-speech",
		Credentials: tts.CredentialRequirement{EnvVars: []string{EnvAPIKey}},
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		NeuralVoices: true,
		OutputExt:    ".mp3",
		Limits: &tts.ServiceLimits{
			FreeTier:             "None",
			Pricing:              "$15.00 (tts-1), $30.00 (tts-1-hd) per million characters",
			CharactersPerRequest: "4096 characters per request",
			RateLimit:            "Depends on usage tier",
			Notes:                "OpenAI API key required",
			RequestsPerSecond:    5,
		},
	}
}

// Probe implements tts.Provider. Credentials are the only requirement.
func (p *Provider) Probe(context.Context) tts.Availability {
	return tts.Available(map[string]any{"model": p.model, "voices": len(Voices)})
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if f := opts.RateFactor(); f != 1.0 {
		params.Speed = oai.Float(min(max(f, minSpeed), maxSpeed))
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai tts: %w", err)
	}
	defer resp.Body.Close()

	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("openai tts: create %s: %w", opts.OutputPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(opts.OutputPath)
		return fmt.Errorf("openai tts: read audio: %w", err)
	}
	return f.Close()
}

// ListVoices implements tts.Provider. The catalogue is static.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(Voices))
	copy(out, Voices)
	return out, nil
}
