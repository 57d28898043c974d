package audio

import "time"

// Clip is a fully decoded piece of audio held in memory.
type Clip struct {
	// PCM is little-endian signed 16-bit interleaved sample data.
	PCM []byte

	// SampleRate in Hz (e.g., 22050 for eSpeak, 24000 for most cloud MP3s).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Format returns the sample rate and channel count of c.
func (c Clip) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Duration returns the playback length of c. It returns zero for clips with
// no sample rate or channel information.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
