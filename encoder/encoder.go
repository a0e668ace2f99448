package encoder

import (
	"encoding/binary"
	"fmt"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	FormatFLAC = "flac"
	FormatWAV  = "wav"
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Formats lists the container formats accepted for uploads.
var Formats = []string{FormatFLAC, FormatWAV}

func New(format string) (Encoder, error) {
	switch format {
	case FormatFLAC:
		return NewFlac()
	case FormatWAV:
		return NewWav()
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func ContentType(format string) string {
	switch format {
	case FormatFLAC:
		return "audio/flac"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// EncodePCM splits little-endian PCM16 mono into BlockSize blocks and feeds
// them to enc. A trailing odd byte is dropped.
func EncodePCM(enc Encoder, pcm []byte) error {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	for start := 0; start < len(samples); start += BlockSize {
		end := min(start+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[start:end]); err != nil {
			return err
		}
	}
	return nil
}
