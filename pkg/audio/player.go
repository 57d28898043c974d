// Package audio decodes synthesized speech files and defines the playback
// abstraction used by the play_audio tool.
//
// The primary abstraction is [Player]: it plays one decoded [Clip] on the
// host's default output device and returns when playback completes or the
// context ends. The oto subpackage provides the production implementation;
// the mock subpackage records calls for tests.
//
// This package lives under pkg/ because it carries no server-specific state and
// other programs may reuse its WAV/MP3 decoding.
package audio

import (
	"context"
	"errors"
)

// ErrPlaybackUnavailable is returned by a Player that has no usable output
// device.
var ErrPlaybackUnavailable = errors.New("audio: playback device unavailable")

// Player plays decoded audio.
//
// Play blocks until the clip has finished playing, ctx is cancelled, or an
// error occurs. When ctx ends first, Play stops the output and returns
// ctx.Err().
//
// Implementations must be safe for concurrent use; concurrent calls may be
// serialized.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}
