package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate, 1); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes interleaved PCM16LE audio to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate, channels int) error {
	const bitsPerSample = 16
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    uint16(channels * bitsPerSample / 8),
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}

	w := bufio.NewWriter(out)
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return w.Flush()
}

// Recorder accumulates PCM16 mono audio and writes it as a WAV file on Close.
type Recorder struct {
	mu         sync.Mutex
	path       string
	sampleRate int
	pcm        bytes.Buffer
	closed     bool
}

// NewRecorder returns a recorder writing to dir/name.wav. An empty dir
// yields a nil recorder, which is safe to use.
func NewRecorder(dir, name string, sampleRate int) *Recorder {
	if dir == "" {
		return nil
	}
	return &Recorder{
		path:       filepath.Join(dir, name+".wav"),
		sampleRate: sampleRate,
	}
}

func (r *Recorder) Write(pcm []byte) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.pcm.Write(pcm)
	}
}

// Path is where Close writes the recording.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.pcm.Len() == 0 {
		return nil
	}
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	defer f.Close()
	return WriteWAVPCM16LETo(f, r.pcm.Bytes(), r.sampleRate, 1)
}
