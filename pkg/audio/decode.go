package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by Decode for data that is neither WAV nor
// MP3.
var ErrUnsupportedFormat = errors.New("audio: unsupported audio format")

// DecodeFile reads and decodes the audio file at path.
func DecodeFile(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: read %s: %w", path, err)
	}
	clip, err := Decode(data)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	return clip, nil
}

// Decode sniffs the container from its magic bytes and decodes WAV or MP3
// data into a Clip. MP3 is always decoded to stereo.
func Decode(data []byte) (Clip, error) {
	switch {
	case isWAV(data):
		return DecodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	}
	return Clip{}, ErrUnsupportedFormat
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// isMP3 accepts an ID3v2 tag or an MPEG audio frame sync.
func isMP3(b []byte) bool {
	if len(b) >= 3 && string(b[0:3]) == "ID3" {
		return true
	}
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

func decodeMP3(data []byte) (Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("audio: mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: mp3: %w", err)
	}
	return Clip{PCM: pcm, SampleRate: dec.SampleRate(), Channels: 2}, nil
}
