// Package system provides the platform's built-in speech synthesizer as a TTS
// provider.
//
// The backing driver is chosen by operating system:
//   - darwin: the say command
//   - windows: System.Speech through PowerShell
//   - everything else: eSpeak NG
//
// The provider answers to the alias "pyttsx3" for clients that still use the
// older engine name.
package system

import (
	"context"
	"runtime"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/espeak"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/subprocess"
)

// ID is the registry key of this provider.
const ID = "system"

// Alias is the alternative key accepted for this provider.
const Alias = "pyttsx3"

// driver is one platform's synthesizer.
type driver interface {
	name() string
	synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error
	listVoices(ctx context.Context) ([]tts.Voice, error)
}

// Provider implements tts.Provider on top of the host's speech stack.
type Provider struct {
	drv driver
}

type config struct {
	goos    string
	binary  string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBinary overrides the executable of the selected driver (say,
// powershell or espeak-ng).
func WithBinary(name string) Option {
	return func(c *config) { c.binary = name }
}

// WithTimeout bounds each driver invocation whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithPlatform forces a driver regardless of the running OS.
func WithPlatform(goos string) Option {
	return func(c *config) { c.goos = goos }
}

// New creates a system provider for the running platform.
func New(opts ...Option) *Provider {
	cfg := config{goos: runtime.GOOS}
	for _, o := range opts {
		o(&cfg)
	}
	runner := subprocess.New(cfg.timeout)

	var drv driver
	switch cfg.goos {
	case "darwin":
		drv = &sayDriver{binary: orDefault(cfg.binary, "say"), runner: runner}
	case "windows":
		drv = &sapiDriver{binary: orDefault(cfg.binary, "powershell"), runner: runner}
	default:
		drv = &espeakDriver{p: espeak.New(
			espeak.WithID(ID),
			espeak.WithBinary(orDefault(cfg.binary, "espeak-ng")),
			espeak.WithTimeout(cfg.timeout),
		)}
	}
	return &Provider{drv: drv}
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Aliases:     []string{Alias},
		Kind:        tts.KindLocalEngine,
		Quality:     tts.QualityGood,
		Description: "Cross-platform offline TTS",
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		Free:      true,
		Languages: []string{"en", "es", "fr", "de", "it", "zh", "yue"},
		OutputExt: ".wav",
	}
}

// Probe implements tts.Provider. The system synthesizer counts as available
// when it reports at least one installed voice.
func (p *Provider) Probe(ctx context.Context) tts.Availability {
	voices, err := p.drv.listVoices(ctx)
	if err != nil {
		return tts.Unavailable("%s: %v", p.drv.name(), err)
	}
	if len(voices) == 0 {
		return tts.Unavailable("%s reports no installed voices", p.drv.name())
	}
	return tts.Available(map[string]any{
		"driver": p.drv.name(),
		"voices": len(voices),
	})
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	return p.drv.synthesize(ctx, text, opts)
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return p.drv.listVoices(ctx)
}

// Driver returns the name of the platform driver in use.
func (p *Provider) Driver() string { return p.drv.name() }

// espeakDriver adapts the eSpeak provider for non-darwin, non-windows hosts.
type espeakDriver struct {
	p *espeak.Provider
}

func (d *espeakDriver) name() string { return "espeak-ng" }

func (d *espeakDriver) synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	return d.p.Synthesize(ctx, text, opts)
}

func (d *espeakDriver) listVoices(ctx context.Context) ([]tts.Voice, error) {
	return d.p.ListVoices(ctx)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var _ tts.Provider = (*Provider)(nil)
