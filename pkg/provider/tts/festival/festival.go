// Package festival provides a TTS provider backed by the Festival Speech
// Synthesis System. Audio is rendered with text2wave; the voice catalogue is
// read from festival's voice.list.
package festival

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/subprocess"
)

// ID is the registry key of this provider.
const ID = "festival"

// Provider implements tts.Provider for Festival.
type Provider struct {
	festival  string
	text2wave string
	timeout   time.Duration
	runner    *subprocess.Runner
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithFestivalBinary sets the festival executable used for probing and voice
// listing.
func WithFestivalBinary(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.festival = name
		}
	}
}

// WithText2WaveBinary sets the text2wave executable used for synthesis.
func WithText2WaveBinary(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.text2wave = name
		}
	}
}

// WithTimeout bounds each invocation whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// New creates a Festival provider.
func New(opts ...Option) *Provider {
	p := &Provider{festival: "festival", text2wave: "text2wave"}
	for _, o := range opts {
		o(p)
	}
	p.runner = subprocess.New(p.timeout)
	return p
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindLocalEngine,
		Quality:     tts.QualityBasic,
		Description: "Festival speech synthesis (offline)",
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		Free:      true,
		Languages: []string{"en", "es"},
		OutputExt: ".wav",
	}
}

// Probe implements tts.Provider. Both festival and text2wave must be present.
func (p *Provider) Probe(ctx context.Context) tts.Availability {
	fest, err := subprocess.Find(p.festival)
	if err != nil {
		return tts.Unavailable("%s not found on PATH", p.festival)
	}
	if _, err := subprocess.Find(p.text2wave); err != nil {
		return tts.Unavailable("%s not found on PATH", p.text2wave)
	}
	out, err := p.runner.Run(ctx, "", fest, "--version")
	if err != nil {
		return tts.Unavailable("%s --version: %v", fest, err)
	}
	return tts.Available(map[string]any{
		"binary":  fest,
		"version": strings.TrimSpace(string(out)),
	})
}

// Synthesize implements tts.Provider. The rate is applied through
// Duration_Stretch, which is the inverse of the speed factor.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	bin, err := subprocess.Find(p.text2wave)
	if err != nil {
		return fmt.Errorf("festival: %w", err)
	}
	args := []string{"-o", opts.OutputPath}
	if v := opts.Voice; v != "" {
		if !validSymbol(v) {
			return fmt.Errorf("festival: invalid voice name %q", v)
		}
		args = append(args, "-eval", "(voice_"+v+")")
	}
	if f := opts.RateFactor(); f > 0 && f != 1.0 {
		stretch := strconv.FormatFloat(1/f, 'f', 3, 64)
		args = append(args, "-eval", "(Parameter.set 'Duration_Stretch "+stretch+")")
	}
	if _, err := p.runner.Run(ctx, text, bin, args...); err != nil {
		return fmt.Errorf("festival: synthesize: %w", err)
	}
	return nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	bin, err := subprocess.Find(p.festival)
	if err != nil {
		return nil, fmt.Errorf("festival: %w", err)
	}
	out, err := p.runner.Run(ctx, "", bin, "-b", "(print (voice.list))")
	if err != nil {
		return nil, fmt.Errorf("festival: list voices: %w", err)
	}
	return ParseVoiceList(string(out)), nil
}

// ParseVoiceList parses the s-expression printed by (print (voice.list)),
// e.g. "(kal_diphone rab_diphone)".
func ParseVoiceList(out string) []tts.Voice {
	out = strings.TrimSpace(out)
	if out == "nil" {
		return nil
	}
	out = strings.TrimPrefix(out, "(")
	out = strings.TrimSuffix(out, ")")
	var voices []tts.Voice
	for _, name := range strings.Fields(out) {
		if !validSymbol(name) {
			continue
		}
		voices = append(voices, tts.Voice{ID: name, Name: name, Languages: []string{languageOf(name)}})
	}
	return voices
}

// languageOf guesses the language from festival's naming scheme. Voices
// prefixed el_ are Spanish; everything else shipped by default is English.
func languageOf(voice string) string {
	if strings.HasPrefix(voice, "el_") {
		return "es"
	}
	return "en"
}

func validSymbol(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

var _ tts.Provider = (*Provider)(nil)
