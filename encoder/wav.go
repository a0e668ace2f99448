package encoder

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

// WavEncoder writes a PCM16 WAV container. go-audio/wav needs a seekable
// sink to patch the header sizes, so samples are spooled to a temp file.
type WavEncoder struct {
	mu          sync.Mutex
	file        *os.File
	enc         *wav.Encoder
	data        []byte
	totalFrames uint64
	closed      bool
}

func NewWav() (*WavEncoder, error) {
	f, err := os.CreateTemp("", "calvoice-*.wav")
	if err != nil {
		return nil, fmt.Errorf("creating wav spool: %w", err)
	}
	return &WavEncoder{
		file: f,
		enc:  wav.NewEncoder(f, SampleRate, BitsPerSample, Channels, wavPCMFormat),
	}, nil
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("wav encoder closed")
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           make([]int, len(block)),
		SourceBitDepth: BitsPerSample,
	}
	for i, s := range block {
		buf.Data[i] = int(s)
	}
	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav block: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	defer os.Remove(e.file.Name())
	defer e.file.Close()

	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	if _, err := e.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(e.file)
	if err != nil {
		return fmt.Errorf("reading wav spool: %w", err)
	}
	e.data = data
	return nil
}

// Bytes returns the finished container; it is empty until Close.
func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}
