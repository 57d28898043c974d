// Package oto plays audio clips on the default output device using
// ebitengine/oto.
//
// oto allows a single context per process with a fixed sample format, so the
// Player opens the device lazily on first use and converts each clip to that
// format before playback. Completion is detected by polling IsPlaying.
package oto

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/voxdispatch/pkg/audio"
)

const (
	defaultSampleRate   = 24000
	defaultChannels     = 2
	defaultPollInterval = 100 * time.Millisecond
)

// voice is one playing stream. *oto.Player satisfies it.
type voice interface {
	Play()
	Pause()
	IsPlaying() bool
	Err() error
	Close() error
}

// device opens voices on an output device.
type device interface {
	NewVoice(r io.Reader) voice
}

// otoDevice adapts *oto.Context to device.
type otoDevice struct {
	ctx *oto.Context
}

func (d otoDevice) NewVoice(r io.Reader) voice { return d.ctx.NewPlayer(r) }

// Option is a functional option for Player.
type Option func(*Player)

// WithSampleRate sets the device sample rate. It only takes effect before the
// first call to Play.
func WithSampleRate(rate int) Option {
	return func(p *Player) {
		if rate > 0 {
			p.format.SampleRate = rate
		}
	}
}

// WithPollInterval sets how often completion is checked.
func WithPollInterval(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// Player implements audio.Player on top of oto. Calls to Play are serialized:
// there is one output device and overlapping speech is unintelligible.
type Player struct {
	format       audio.Format
	pollInterval time.Duration

	open func(ctx context.Context, f audio.Format) (device, error)

	slot    chan struct{} // one token; held by the playing call, guards dev and openErr
	dev     device
	openErr error
}

// New creates a Player. The device is not opened until the first Play.
func New(opts ...Option) *Player {
	p := &Player{
		format:       audio.Format{SampleRate: defaultSampleRate, Channels: defaultChannels},
		pollInterval: defaultPollInterval,
		open:         openDevice,
		slot:         make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func openDevice(ctx context.Context, f audio.Format) (device, error) {
	c, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return otoDevice{ctx: c}, nil
}

// Play implements audio.Player. It returns ctx.Err() if ctx ends before the
// clip finishes, or while it is still waiting for an earlier clip; the output
// is paused and released in that case.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slot }()

	if err := p.ensureDevice(ctx); err != nil {
		return err
	}

	conv := audio.FormatConverter{Target: p.format}
	clip = conv.Convert(clip)
	if len(clip.PCM) == 0 {
		return nil
	}

	v := p.dev.NewVoice(bytes.NewReader(clip.PCM))
	defer v.Close()
	v.Play()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			v.Pause()
			return ctx.Err()
		case <-ticker.C:
			if !v.IsPlaying() {
				if err := v.Err(); err != nil {
					return fmt.Errorf("oto: playback: %w", err)
				}
				return nil
			}
		}
	}
}

// ensureDevice opens the output device once. A failure other than ctx ending
// is remembered, since oto cannot create a second context. Callers hold p.slot.
func (p *Player) ensureDevice(ctx context.Context) error {
	if p.dev != nil {
		return nil
	}
	if p.openErr == nil {
		dev, err := p.open(ctx, p.format)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.openErr = err
		} else {
			p.dev = dev
			return nil
		}
	}
	return fmt.Errorf("%w: %v", audio.ErrPlaybackUnavailable, p.openErr)
}

var _ audio.Player = (*Player)(nil)
