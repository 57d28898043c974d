// Package watson provides a TTS provider for IBM Watson Text to Speech using
// its REST API with API-key basic authentication.
package watson

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ID is the registry key of this provider.
const ID = "watson"

// Environment variables holding the credentials.
const (
	EnvAPIKey = "IBM_WATSON_APIKEY"
	EnvURL    = "IBM_WATSON_URL"
)

const (
	synthesizePath = "/v1/synthesize"
	voicesPath     = "/v1/voices"
	defaultTimeout = 60 * time.Second
	fallbackVoice  = "en-US_AllisonV3Voice"
)

// DefaultVoices maps a language tag to the voice used when the caller names
// none.
var DefaultVoices = tts.VoiceTable{
	"en":    "en-US_AllisonV3Voice",
	"en-gb": "en-GB_KateV3Voice",
	"es":    "es-ES_EnriqueV3Voice",
	"fr":    "fr-FR_ReneeV3Voice",
	"de":    "de-DE_BirgitV3Voice",
	"it":    "it-IT_FrancescaV3Voice",
	"ja":    "ja-JP_EmiV3Voice",
	"pt":    "pt-BR_IsabelaV3Voice",
	"ko":    "ko-KR_JinV3Voice",
}

// DefaultVoice returns the voice for lang, falling back to US English.
func DefaultVoice(lang string) string {
	return DefaultVoices.Lookup(lang, fallbackVoice)
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements tts.Provider for Watson.
type Provider struct {
	apiKey     string
	serviceURL string
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Watson provider for the service instance at serviceURL.
func New(apiKey, serviceURL string, opts ...Option) (*Provider, error) {
	if apiKey == "" || serviceURL == "" {
		return nil, errors.New("watson: apiKey and serviceURL must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		serviceURL: strings.TrimRight(serviceURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor { return Descriptor() }

// Descriptor returns the static Watson descriptor.
func Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindCloudService,
		Quality:     tts.QualityExcellent,
		Description: "IBM Watson Text to Speech",
		Credentials: tts.CredentialRequirement{EnvVars: []string{EnvAPIKey, EnvURL}},
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		OutputExt: ".mp3",
		Limits: &tts.ServiceLimits{
			FreeTier:             "10,000 characters per month",
			Pricing:              "$0.02 per thousand characters",
			CharactersPerRequest: "5000 characters per request",
			RateLimit:            "10 transactions per second",
			Notes:                "IBM Cloud account required",
			RequestsPerSecond:    10,
		},
	}
}

// Probe implements tts.Provider. Credentials are the only requirement.
func (p *Provider) Probe(context.Context) tts.Availability {
	return tts.Available(map[string]any{"service_url": p.serviceURL})
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice(opts.Language)
	}
	body, err := json.Marshal(synthesizeRequest{Text: prosody(text, opts.Speed)})
	if err != nil {
		return fmt.Errorf("watson: marshal request: %w", err)
	}

	q := url.Values{"voice": []string{voice}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+synthesizePath+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("watson: create request: %w", err)
	}
	req.SetBasicAuth("apikey", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mp3")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("watson: synthesize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("synthesize", resp)
	}

	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("watson: create %s: %w", opts.OutputPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(opts.OutputPath)
		return fmt.Errorf("watson: read audio: %w", err)
	}
	return f.Close()
}

// prosody wraps text in SSML when a non-default speed is requested. Plain
// text is escaped since Watson parses every request body as SSML.
func prosody(text string, speed tts.SpeedLevel) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(text))
	if speed == "" || speed == tts.SpeedMedium {
		return b.String()
	}
	return fmt.Sprintf(`<speak><prosody rate="%s">%s</prosody></speak>`, speed, b.String())
}

type voicesResponse struct {
	Voices []struct {
		Name        string `json:"name"`
		Language    string `json:"language"`
		Gender      string `json:"gender"`
		Description string `json:"description"`
	} `json:"voices"`
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("watson: create request: %w", err)
	}
	req.SetBasicAuth("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watson: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list voices", resp)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("watson: decode voices: %w", err)
	}
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		voices = append(voices, tts.Voice{
			ID:        v.Name,
			Name:      displayName(v.Name, v.Description),
			Languages: []string{v.Language},
			Gender:    v.Gender,
		})
	}
	return voices, nil
}

// displayName extracts "Allison" from "Allison: American English female
// voice." or, failing that, from "en-US_AllisonV3Voice".
func displayName(id, description string) string {
	if name, _, ok := strings.Cut(description, ":"); ok && name != "" {
		return strings.TrimSpace(name)
	}
	_, name, ok := strings.Cut(id, "_")
	if !ok {
		return id
	}
	name = strings.TrimSuffix(name, "Voice")
	if i := strings.LastIndex(name, "V"); i > 0 && strings.Trim(name[i+1:], "0123456789") == "" && len(name) > i+1 {
		name = name[:i]
	}
	return name
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if s := strings.TrimSpace(string(msg)); s != "" {
		return fmt.Errorf("watson: %s: status %d: %s", op, resp.StatusCode, s)
	}
	return fmt.Errorf("watson: %s: status %d", op, resp.StatusCode)
}
