package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxdispatch/internal/selector"
	"github.com/MrWong99/voxdispatch/pkg/audio"
	audiomock "github.com/MrWong99/voxdispatch/pkg/audio/mock"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	wav := audio.EncodeWAV(audio.Clip{PCM: make([]byte, 4800), SampleRate: 24000, Channels: 1})
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestPlay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		player    *audiomock.Player
		noPlayer  bool
		missing   bool
		limit     time.Duration
		wantOK    bool
		wantInMsg string
	}{
		{name: "success", player: &audiomock.Player{}, wantOK: true, wantInMsg: "Audio played successfully"},
		{name: "deadline", player: &audiomock.Player{Delay: time.Second}, limit: 20 * time.Millisecond, wantInMsg: "did not complete within 20ms"},
		{name: "device error", player: &audiomock.Player{PlayError: errors.New("alsa: device busy")}, wantInMsg: "alsa: device busy"},
		{name: "no player", noPlayer: true, wantInMsg: "playback device unavailable"},
		{name: "missing file", player: &audiomock.Player{}, missing: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var opts []Option
			if !tt.noPlayer {
				opts = append(opts, WithPlayer(tt.player))
			}
			if tt.limit > 0 {
				opts = append(opts, WithPlaybackLimit(tt.limit))
			}
			d, _ := newDispatcher(t, selector.ModeOffline, []tts.Provider{localProvider("system", true)}, opts...)

			path := writeWAV(t)
			if tt.missing {
				path = filepath.Join(t.TempDir(), "nope.wav")
			}
			res := d.Play(context.Background(), path)

			if tt.missing {
				env := decodeEnvelope(t, res)
				if !res.NotFound || env["error"] != "File not found" || env["file_path"] != path {
					t.Fatalf("envelope = %v", env)
				}
				if len(tt.player.Calls()) != 0 {
					t.Error("player called for missing file")
				}
				return
			}
			if res.OK() != tt.wantOK {
				t.Fatalf("OK = %v, want %v (message %q)", res.OK(), tt.wantOK, res.Message)
			}
			if !strings.Contains(res.Message, tt.wantInMsg) {
				t.Errorf("message = %q, want it to contain %q", res.Message, tt.wantInMsg)
			}
			env := decodeEnvelope(t, res)
			if env["file_path"] != path || env["status"] != res.Status {
				t.Errorf("envelope = %v", env)
			}
		})
	}
}

func TestPlay_DeadlineStopsPlayer(t *testing.T) {
	t.Parallel()

	p := &audiomock.Player{Delay: time.Minute}
	d, _ := newDispatcher(t, selector.ModeOffline, nil, WithPlayer(p), WithPlaybackLimit(time.Hour))
	d.SetPlaybackLimit(10 * time.Millisecond)

	res := d.Play(context.Background(), writeWAV(t))
	if res.OK() {
		t.Fatal("expected deadline failure")
	}
	if p.Interrupted != 1 {
		t.Errorf("Interrupted = %d, want 1", p.Interrupted)
	}
	clips := p.Calls()
	if len(clips) != 1 || clips[0].Duration() != 100*time.Millisecond {
		t.Errorf("clips = %d, want one 100ms clip", len(clips))
	}
}
