// Package azure provides a TTS provider for Azure Cognitive Services Speech
// using its REST API.
//
// Synthesis posts a minimal SSML document with a prosody element carrying the
// symbolic rate and pitch. The voice catalogue comes from /voices/list.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ID is the registry key of this provider.
const ID = "azure"

// Environment variables holding the credentials.
const (
	EnvKey    = "AZURE_SPEECH_KEY"
	EnvRegion = "AZURE_SPEECH_REGION"
)

const (
	endpointFmt      = "https://%s.tts.speech.microsoft.com"
	synthesizePath   = "/cognitiveservices/v1"
	voicesPath       = "/cognitiveservices/voices/list"
	defaultOutputFmt = "audio-24khz-48kbitrate-mono-mp3"
	defaultTimeout   = 60 * time.Second
	fallbackVoice    = "en-US-JennyNeural"
)

// DefaultVoices maps a language tag (lower case) to the neural voice used when
// the caller names none.
var DefaultVoices = tts.VoiceTable{
	"en":    "en-US-JennyNeural",
	"en-us": "en-US-JennyNeural",
	"en-gb": "en-GB-LibbyNeural",
	"es":    "es-ES-ElviraNeural",
	"fr":    "fr-FR-DeniseNeural",
	"de":    "de-DE-KatjaNeural",
	"it":    "it-IT-ElsaNeural",
	"pt":    "pt-BR-FranciscaNeural",
	"ja":    "ja-JP-NanamiNeural",
	"ko":    "ko-KR-SunHiNeural",
	"zh":    "zh-CN-XiaoxiaoNeural",
	"zh-cn": "zh-CN-XiaoxiaoNeural",
	"zh-tw": "zh-TW-HsiaoChenNeural",
	"zh-hk": "zh-HK-HiuMaanNeural",
}

// DefaultVoice returns the voice for lang, trying the full tag, then its
// primary subtag, then falling back to US English.
func DefaultVoice(lang string) string {
	return DefaultVoices.Lookup(lang, fallbackVoice)
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithEndpoint overrides the regional endpoint origin.
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.endpoint = strings.TrimRight(u, "/")
		}
	}
}

// WithOutputFormat sets the X-Microsoft-OutputFormat header. Only MP3 formats
// match the .mp3 output extension.
func WithOutputFormat(f string) Option {
	return func(p *Provider) {
		if f != "" {
			p.outputFormat = f
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements tts.Provider for Azure Speech.
type Provider struct {
	key          string
	region       string
	endpoint     string
	outputFormat string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates an Azure provider. key and region must be non-empty.
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" || region == "" {
		return nil, errors.New("azure: key and region must not be empty")
	}
	p := &Provider{
		key:          key,
		region:       region,
		endpoint:     fmt.Sprintf(endpointFmt, region),
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor {
	return Descriptor()
}

// Descriptor returns the static Azure descriptor. It does not depend on
// credentials, so it is usable when the provider cannot be constructed.
func Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindCloudService,
		Quality:     tts.QualityExcellent,
		Description: "Azure Cognitive Services Speech",
		Credentials: tts.CredentialRequirement{EnvVars: []string{EnvKey, EnvRegion}},
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed, tts.CapAdjustPitch,
		},
		NeuralVoices: true,
		OutputExt:    ".mp3",
		Limits: &tts.ServiceLimits{
			FreeTier:             "5 million characters per month",
			Pricing:              "$4.00 (Standard), $16.00 (Neural) per million characters",
			CharactersPerRequest: "No limit per request",
			RateLimit:            "20 transactions per second",
			Notes:                "Requires Azure subscription after free tier",
			RequestsPerSecond:    20,
		},
	}
}

// Probe implements tts.Provider. Credentials are the only requirement.
func (p *Provider) Probe(context.Context) tts.Availability {
	return tts.Available(map[string]any{"region": p.region, "output_format": p.outputFormat})
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	lang := opts.Language
	if lang == "" {
		lang = "en-US"
	}
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice(lang)
	}
	ssml, err := BuildSSML(text, lang, voice, opts.Speed, opts.Pitch)
	if err != nil {
		return fmt.Errorf("azure: build ssml: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+synthesizePath, bytes.NewReader(ssml))
	if err != nil {
		return fmt.Errorf("azure: create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", p.outputFormat)
	req.Header.Set("User-Agent", "voxdispatch")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("azure: synthesize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("synthesize", resp)
	}

	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("azure: create %s: %w", opts.OutputPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(opts.OutputPath)
		return fmt.Errorf("azure: read audio: %w", err)
	}
	return f.Close()
}

// BuildSSML renders the SSML document for one request. Empty speed and pitch
// are sent as "medium".
func BuildSSML(text, lang, voice string, speed tts.SpeedLevel, pitch tts.PitchLevel) ([]byte, error) {
	if speed == "" {
		speed = tts.SpeedMedium
	}
	if pitch == "" {
		pitch = tts.PitchMedium
	}
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return nil, err
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">`, xmlAttr(lang))
	fmt.Fprintf(&b, `<voice name="%s">`, xmlAttr(voice))
	fmt.Fprintf(&b, `<prosody rate="%s" pitch="%s">`, xmlAttr(string(speed)), xmlAttr(string(pitch)))
	b.Write(escaped.Bytes())
	b.WriteString(`</prosody></voice></speak>`)
	return b.Bytes(), nil
}

func xmlAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// voiceEntry is one element of the /voices/list response.
type voiceEntry struct {
	ShortName   string `json:"ShortName"`
	DisplayName string `json:"DisplayName"`
	LocalName   string `json:"LocalName"`
	Gender      string `json:"Gender"`
	Locale      string `json:"Locale"`

	SecondaryLocaleList []string `json:"SecondaryLocaleList"`
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list voices", resp)
	}

	var entries []voiceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("azure: decode voices: %w", err)
	}
	voices := make([]tts.Voice, 0, len(entries))
	for _, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = e.ShortName
		}
		voices = append(voices, tts.Voice{
			ID:        e.ShortName,
			Name:      name,
			Languages: append([]string{e.Locale}, e.SecondaryLocaleList...),
			Gender:    strings.ToLower(e.Gender),
		})
	}
	return voices, nil
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if s := strings.TrimSpace(string(msg)); s != "" {
		return fmt.Errorf("azure: %s: status %d: %s", op, resp.StatusCode, s)
	}
	return fmt.Errorf("azure: %s: status %d", op, resp.StatusCode)
}
