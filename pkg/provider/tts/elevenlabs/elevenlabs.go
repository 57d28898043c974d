// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// A synthesis call opens one stream-input session, sends the whole text
// followed by a flush, and appends every audio frame to the output file
// until the server marks the stream final.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ID is the registry key of this provider.
const ID = "elevenlabs"

// EnvAPIKey is the environment variable holding the API key.
const EnvAPIKey = "ELEVENLABS_API_KEY"

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	wsPathFmt        = "/v1/text-to-speech/%s/stream-input"
	voicesPath       = "/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// DefaultVoice is "Rachel", present on every account.
	DefaultVoice = "21m00Tcm4TlvDq8ikWAM"

	minSpeed = 0.7
	maxSpeed = 1.2
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithOutputFormat sets the audio output format. Only MP3 formats
// ("mp3_44100_128", "mp3_22050_32", ...) match the .mp3 output extension.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		if format != "" {
			p.outputFormat = format
		}
	}
}

// WithBaseURL overrides the API origin. The WebSocket origin is derived from
// it by swapping the scheme.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the client used for REST calls and the WebSocket
// handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor { return Descriptor() }

// Descriptor returns the static ElevenLabs descriptor.
func Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindCloudService,
		Quality:     tts.QualityExcellent,
		Description: "ElevenLabs neural voices (streaming)",
		Credentials: tts.CredentialRequirement{EnvVars: []string{EnvAPIKey}},
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		NeuralVoices: true,
		Languages:    []string{"en", "es", "fr", "de", "it", "pt", "pl", "hi", "ja", "ko", "zh"},
		OutputExt:    ".mp3",
		Limits: &tts.ServiceLimits{
			FreeTier:             "10,000 characters per month",
			Pricing:              "From $5/month for 30,000 characters",
			CharactersPerRequest: "40,000 (flash models)",
			RateLimit:            "2 to 15 concurrent requests depending on plan",
			Notes:                "ElevenLabs account required",
			RequestsPerSecond:    2,
		},
	}
}

// Probe implements tts.Provider. The API key is the only requirement and the
// registry checks it before calling Probe.
func (p *Provider) Probe(context.Context) tts.Availability {
	return tts.Available(map[string]any{"model": p.model, "output_format": p.outputFormat})
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded, in the requested output format
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// Synthesize implements tts.Provider. An empty voice selects DefaultVoice.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	conn, _, err := websocket.Dial(ctx, p.buildURLForVoice(voice), &websocket.DialOptions{
		HTTPClient: p.httpClient,
		HTTPHeader: http.Header{"xi-api-key": []string{p.apiKey}},
	})
	if err != nil {
		return fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(8 << 20)

	// The handshake carries the voice settings; text messages after it omit them.
	boi := boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: settingsFor(opts),
		XiAPIKey:      p.apiKey,
	}
	for _, msg := range []any{boi, textMessage{Text: text + " ", TryTriggerGeneration: true}, textMessage{Text: ""}} {
		data, _ := json.Marshal(msg)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var audio []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return fmt.Errorf("elevenlabs: server error: %s", strings.TrimSpace(resp.Error+" "+resp.Message))
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return fmt.Errorf("elevenlabs: decode audio frame: %w", err)
			}
			audio = append(audio, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if len(audio) == 0 {
		return errors.New("elevenlabs: stream ended without audio")
	}
	if err := os.WriteFile(opts.OutputPath, audio, 0o644); err != nil {
		return fmt.Errorf("elevenlabs: write %s: %w", opts.OutputPath, err)
	}
	return nil
}

// settingsFor maps the symbolic speed onto the range ElevenLabs accepts.
func settingsFor(opts tts.SynthesisOptions) *voiceSettings {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if f := opts.RateFactor(); f != 1.0 {
		vs.Speed = min(max(f, minSpeed), maxSpeed)
	}
	return vs
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toVoices(vr), nil
}

// ---- helpers ----

// buildURLForVoice constructs the WebSocket URL for a given voice.
func (p *Provider) buildURLForVoice(voiceID string) string {
	origin := p.baseURL
	switch {
	case strings.HasPrefix(origin, "https://"):
		origin = "wss://" + strings.TrimPrefix(origin, "https://")
	case strings.HasPrefix(origin, "http://"):
		origin = "ws://" + strings.TrimPrefix(origin, "http://")
	}
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return origin + fmt.Sprintf(wsPathFmt, url.PathEscape(voiceID)) + "?" + q.Encode()
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into voices.
func parseVoicesResponse(data []byte) ([]tts.Voice, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return toVoices(vr), nil
}

func toVoices(vr voicesResponse) []tts.Voice {
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		lang := v.Labels["language"]
		if lang == "" {
			lang = "en"
		}
		voices = append(voices, tts.Voice{
			ID:        v.VoiceID,
			Name:      v.Name,
			Languages: []string{lang},
			Gender:    v.Labels["gender"],
		})
	}
	return voices
}
