package audio

import (
	"encoding/binary"
	"errors"
)

// WAVInfo holds the format metadata extracted from a RIFF/WAVE header.
type WAVInfo struct {
	DataOffset    int // byte offset of the first PCM sample
	DataSize      int // length of the data chunk in bytes, clamped to the buffer
	SampleRate    int // samples per second (e.g., 22050, 44100, 48000)
	Channels      int // 1 = mono, 2 = stereo
	BitsPerSample int
}

// Errors returned by ParseWAV.
var (
	ErrWAVTooShort = errors.New("audio: WAV data too short to be a valid RIFF file")
	ErrWAVNoRIFF   = errors.New("audio: WAV data missing RIFF header")
	ErrWAVNoWAVE   = errors.New("audio: WAV data missing WAVE identifier")
	ErrWAVNoData   = errors.New("audio: WAV data missing data chunk")
	ErrWAVNotPCM16 = errors.New("audio: only 16-bit PCM WAV is supported")
)

// ParseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. Chunks are walked rather than
// assuming a fixed 44-byte header because the fmt chunk size varies.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, ErrWAVTooShort
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, ErrWAVNoRIFF
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, ErrWAVNoWAVE
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			info.DataSize = min(chunkSize, len(wav)-info.DataOffset)
			if !foundFmt {
				info.SampleRate = 22050
				info.Channels = 1
				info.BitsPerSample = 16
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by one byte when the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, ErrWAVNoData
}

// DecodeWAV parses a 16-bit PCM WAV file into a Clip.
func DecodeWAV(wav []byte) (Clip, error) {
	info, err := ParseWAV(wav)
	if err != nil {
		return Clip{}, err
	}
	if info.BitsPerSample != 16 {
		return Clip{}, ErrWAVNotPCM16
	}
	return Clip{
		PCM:        wav[info.DataOffset : info.DataOffset+info.DataSize],
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
	}, nil
}

// EncodeWAV wraps c in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(c Clip) []byte {
	const headerSize = 44
	dataLen := len(c.PCM)
	buf := make([]byte, headerSize+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(c.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.SampleRate))
	blockAlign := c.Channels * 2
	binary.LittleEndian.PutUint32(buf[28:32], uint32(c.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[headerSize:], c.PCM)
	return buf
}
