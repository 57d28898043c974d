package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrWong99/voxdispatch/internal/observe"
	"github.com/MrWong99/voxdispatch/pkg/audio"
)

// PlayResult is the envelope of a play_audio call.
type PlayResult struct {
	Status   string
	Message  string
	FilePath string

	// NotFound marks a missing file, which uses its own envelope shape.
	NotFound bool
}

// OK reports whether playback completed.
func (r PlayResult) OK() bool { return r.Status == StatusSuccess }

// MarshalJSON renders the envelope returned to tool callers.
func (r PlayResult) MarshalJSON() ([]byte, error) {
	if r.NotFound {
		return json.Marshal(map[string]string{"error": "File not found", "file_path": r.FilePath})
	}
	return json.Marshal(map[string]string{"status": r.Status, "message": r.Message, "file_path": r.FilePath})
}

// Play decodes the file at path and plays it on the configured player,
// bounded by the playback limit. A clip still playing at the deadline is
// stopped and reported as an error.
func (d *Dispatcher) Play(ctx context.Context, path string) PlayResult {
	res := PlayResult{FilePath: path}
	if _, err := os.Stat(path); err != nil {
		res.Status, res.NotFound = StatusError, true
		return res
	}
	if d.player == nil {
		return res.fail(audio.ErrPlaybackUnavailable.Error())
	}

	clip, err := audio.DecodeFile(path)
	if err != nil {
		return res.fail(err.Error())
	}

	limit := d.PlaybackLimit()
	pctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	start := time.Now()
	err = d.player.Play(pctx, clip)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		d.metrics.RecordPlayback(ctx, "ok", elapsed.Seconds())
		res.Status, res.Message = StatusSuccess, "Audio played successfully"
		return res
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		d.metrics.RecordPlayback(ctx, "timeout", elapsed.Seconds())
		observe.Logger(ctx).Warn("playback deadline reached", "file", path, "limit", limit, "clip", clip.Duration())
		return res.fail(fmt.Sprintf("playback did not complete within %s", limit))
	default:
		d.metrics.RecordPlayback(ctx, "error", elapsed.Seconds())
		return res.fail(err.Error())
	}
}

func (r PlayResult) fail(msg string) PlayResult {
	r.Status, r.Message = StatusError, msg
	return r
}
