// Package espeak provides a TTS provider that drives the eSpeak (or eSpeak NG)
// command-line synthesizer.
//
// Text is passed on stdin and the WAV output is written by eSpeak itself via
// -w. The voice catalogue comes from parsing "espeak --voices".
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/subprocess"
)

// ID is the registry key of this provider.
const ID = "espeak"

const defaultBinary = "espeak"

// Provider implements tts.Provider for eSpeak.
type Provider struct {
	id      string
	binary  string
	runner  *subprocess.Runner
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBinary sets the executable name or path. "espeak-ng" is tried as a
// fallback when the configured binary is not on PATH.
func WithBinary(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.binary = name
		}
	}
}

// WithTimeout bounds each eSpeak invocation whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithID overrides the registry key. The system provider uses this to reuse
// the eSpeak driver under its own name.
func WithID(id string) Option {
	return func(p *Provider) {
		if id != "" {
			p.id = id
		}
	}
}

// New creates an eSpeak provider.
func New(opts ...Option) *Provider {
	p := &Provider{id: ID, binary: defaultBinary}
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
		Description: "eSpeak offline TTS (Linux)",
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		Free:      true,
		Languages: []string{"en", "es", "fr", "de", "it", "pt", "ru", "zh", "yue"},
		OutputExt: ".wav",
	}
}

// Probe implements tts.Provider. eSpeak is available when its binary runs
// "--version" successfully.
func (p *Provider) Probe(ctx context.Context) tts.Availability {
	bin, err := p.resolve()
	if err != nil {
		return tts.Unavailable("%s not found on PATH", p.binary)
	}
	out, err := p.runner.Run(ctx, "", bin, "--version")
	if err != nil {
		return tts.Unavailable("%s --version: %v", bin, err)
	}
	return tts.Available(map[string]any{
		"binary":  bin,
		"version": firstLine(out),
	})
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	bin, err := p.resolve()
	if err != nil {
		return fmt.Errorf("%s: %w", p.id, err)
	}
	args := []string{"-s", strconv.Itoa(opts.WPM()), "-w", opts.OutputPath}
	if v := opts.Voice; v != "" {
		args = append(args, "-v", v)
	} else if l := opts.Language; l != "" && l != "en" {
		args = append(args, "-v", l)
	}
	args = append(args, "--stdin")

	if _, err := p.runner.Run(ctx, text, bin, args...); err != nil {
		return fmt.Errorf("%s: synthesize: %w", p.id, err)
	}
	return nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	bin, err := p.resolve()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.id, err)
	}
	out, err := p.runner.Run(ctx, "", bin, "--voices")
	if err != nil {
		return nil, fmt.Errorf("%s: list voices: %w", p.id, err)
	}
	return ParseVoices(out), nil
}

func (p *Provider) resolve() (string, error) {
	return subprocess.Find(p.binary, "espeak-ng")
}

// ParseVoices parses the table printed by "espeak --voices":
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  af              --/M      Afrikaans          gmw/af
//
// The voice ID is the File column, which is what -v accepts.
func ParseVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) < 5 || parts[0] == "Pty" {
			continue
		}
		voices = append(voices, tts.Voice{
			ID:        parts[4],
			Name:      parts[3],
			Languages: []string{parts[1]},
			Gender:    gender(parts[2]),
		})
	}
	return voices
}

func gender(ageGender string) string {
	_, g, ok := strings.Cut(ageGender, "/")
	if !ok {
		return ""
	}
	switch g {
	case "M":
		return "male"
	case "F":
		return "female"
	}
	return ""
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(line)
}

var _ tts.Provider = (*Provider)(nil)
