// Package mock provides an in-memory mock implementation of [audio.Player] for
// use in unit tests.
//
// The mock is safe for concurrent use. It records every clip it was asked to
// play and exposes exported fields that the test can set to control behaviour.
//
// Typical usage:
//
//	p := &mock.Player{Delay: 50 * time.Millisecond}
//	err := p.Play(ctx, clip)
//	if len(p.Calls()) != 1 { ... }
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/audio"
)

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by [Player.Play] after Delay has elapsed.
	PlayError error

	// Delay simulates playback time. Play blocks for Delay or until ctx ends,
	// whichever comes first.
	Delay time.Duration

	// PlayedClips records every clip passed to Play, in call order.
	PlayedClips []audio.Clip

	// Interrupted counts calls that returned because ctx ended before Delay.
	Interrupted int
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.PlayedClips = append(p.PlayedClips, clip)
	delay := p.Delay
	playErr := p.PlayError
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			p.mu.Lock()
			p.Interrupted++
			p.mu.Unlock()
			return ctx.Err()
		}
	}
	return playErr
}

// Calls returns a copy of the recorded clips. Thread-safe.
func (p *Player) Calls() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Clip, len(p.PlayedClips))
	copy(out, p.PlayedClips)
	return out
}

// Ensure Player implements audio.Player at compile time.
var _ audio.Player = (*Player)(nil)
