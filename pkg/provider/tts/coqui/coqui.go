// Package coqui provides a local Coqui TTS-backed TTS provider that connects to
// either a Coqui XTTS v2 server or a standard Coqui TTS server via its REST API.
// It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; voice catalogue is retrieved from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body; voice catalogue is retrieved from
//     GET /studio_speakers.
//
// Both servers return one WAV file per request. The response is validated as
// RIFF/WAVE and written to the requested output path, optionally resampled.
//
// Typical usage (standard server):
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	err = p.Synthesize(ctx, "Hello there.", tts.SynthesisOptions{OutputPath: "/tmp/out.wav"})
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/audio"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

// ID is the registry key of this provider.
const ID = "coqui"

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// ---- APIMode ----

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	// Voice listing is performed via /studio_speakers.
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode. Voice listing is performed via /details.
	APIModeStandard APIMode = "standard"
)

// ---- options ----

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the default language code sent to the TTS server (e.g.,
// "en", "de", "fr") when a request carries none. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image (ghcr.io/coqui-ai/tts-cpu) or APIModeXTTS for
// the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		if mode != "" {
			p.apiMode = mode
		}
	}
}

// WithOutputSampleRate resamples synthesized audio to the given rate before
// writing it. When set to 0 (default) the model's native rate is kept.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// WithHTTPClient replaces the HTTP client. The configured timeout is kept
// only if the given client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c == nil {
			return
		}
		if c.Timeout == 0 {
			c.Timeout = p.httpClient.Timeout
		}
		p.httpClient = c
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by a locally-running Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int // target sample rate; 0 = no resampling
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty. Functional
// options may override the language, per-request timeout, and API mode.
// The default API mode is APIModeStandard.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	return p, nil
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindLocalEngine,
		Quality:     tts.QualityExcellent,
		Description: "Coqui TTS - AI-based offline synthesis",
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices,
		},
		Free:         true,
		NeuralVoices: true,
		Languages:    []string{"en", "es", "fr", "de", "it", "pt", "pl", "tr", "ru", "nl", "cs", "ar", "zh-cn", "ja", "hu", "ko"},
		OutputExt:    ".wav",
	}
}

// ---- internal request/response types ----

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// studioSpeakersResponse represents the raw map[name]any returned by GET /studio_speakers.
// We only care about the keys (voice names) so the values are left as json.RawMessage.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models and non-nil for multi-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ---- Probe ----

// Probe implements tts.Provider. The server is available when its catalogue
// endpoint answers; the model name and speaker count are reported as detail.
func (p *Provider) Probe(ctx context.Context) tts.Availability {
	if p.apiMode == APIModeXTTS {
		voices, err := p.listVoicesXTTS(ctx)
		if err != nil {
			return tts.Unavailable("coqui server at %s: %v", p.serverURL, err)
		}
		return tts.Available(map[string]any{"api_mode": string(p.apiMode), "voices": len(voices)})
	}
	details, err := p.details(ctx)
	if err != nil {
		return tts.Unavailable("coqui server at %s: %v", p.serverURL, err)
	}
	return tts.Available(map[string]any{
		"api_mode":   string(p.apiMode),
		"model_name": details.ModelName,
		"speakers":   len(details.Speakers),
	})
}

// ---- Synthesize ----

// Synthesize renders text with one HTTP request and writes the WAV response
// to opts.OutputPath.
//
// XTTS mode requires a voice (speaker_wav). Standard mode works without one
// for single-speaker models.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	if opts.Voice == "" && p.apiMode == APIModeXTTS {
		return errors.New("coqui: voice must not be empty (required for XTTS mode)")
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	var (
		wav []byte
		err error
	)
	if p.apiMode == APIModeStandard {
		wav, err = p.synthesizeStandard(ctx, text, opts.Voice, lang)
	} else {
		wav, err = p.synthesizeXTTS(ctx, text, opts.Voice, lang)
	}
	if err != nil {
		return err
	}

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return fmt.Errorf("coqui: %w", err)
	}
	if p.outputRate > 0 && clip.SampleRate != p.outputRate {
		conv := audio.FormatConverter{Target: audio.Format{SampleRate: p.outputRate, Channels: clip.Channels}}
		wav = audio.EncodeWAV(conv.Convert(clip))
	}
	if err := os.WriteFile(opts.OutputPath, wav, 0o644); err != nil {
		return fmt.Errorf("coqui: write %s: %w", opts.OutputPath, err)
	}
	return nil
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode) and
// returns the WAV body.
func (p *Provider) synthesizeXTTS(ctx context.Context, text, voice, lang string) ([]byte, error) {
	body := ttsRequest{
		Text:       text,
		SpeakerWav: voice,
		Language:   lang,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	return p.fetchWAV(req, "POST "+ttsEndpoint)
}

// synthesizeStandard performs a single GET /api/tts request (standard server mode)
// using URL query parameters and returns the WAV body.
func (p *Provider) synthesizeStandard(ctx context.Context, text, voice, lang string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice != "" {
		params.Set("speaker_id", voice)
	}
	if lang != "" {
		params.Set("language_id", lang)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	return p.fetchWAV(req, "GET "+apiTTSEndpoint)
}

func (p *Provider) fetchWAV(req *http.Request, what string) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if s := strings.TrimSpace(string(msg)); s != "" {
			return nil, fmt.Errorf("coqui: %s returned status %d: %s", what, resp.StatusCode, s)
		}
		return nil, fmt.Errorf("coqui: %s returned status %d", what, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// ---- ListVoices ----

// ListVoices retrieves the list of available voices from the Coqui server.
//
// In APIModeXTTS, it calls GET /studio_speakers and returns one voice per
// entry. In APIModeStandard, it calls GET /details and returns one voice per
// speaker for multi-speaker models, or a single voice (identified by model
// name) for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

// listVoicesXTTS retrieves the studio speaker voices from the XTTS server via
// GET /studio_speakers.
func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.Voice, error) {
	var raw studioSpeakersResponse
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}

	// Sort keys for deterministic output.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.Voice{ID: name, Name: name, Languages: []string{p.language}})
	}
	return voices, nil
}

// listVoicesStandard retrieves model info from the standard Coqui TTS server via
// GET /details.
func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.Voice, error) {
	details, err := p.details(ctx)
	if err != nil {
		return nil, err
	}
	lang := details.Language
	if lang == "" {
		lang = p.language
	}

	// Multi-speaker model: return one voice per speaker.
	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		voices := make([]tts.Voice, 0, len(speakers))
		for _, spk := range speakers {
			voices = append(voices, tts.Voice{ID: spk, Name: spk, Languages: []string{lang}})
		}
		return voices, nil
	}

	// Single-speaker model: return one voice identified by the model name.
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.Voice{{ID: name, Name: name, Languages: []string{lang}}}, nil
}

func (p *Provider) details(ctx context.Context) (detailsResponse, error) {
	var d detailsResponse
	err := p.getJSON(ctx, detailsEndpoint, &d)
	return d, err
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("coqui: decode %s response: %w", endpoint, err)
	}
	return nil
}
