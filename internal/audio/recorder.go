// Package audio captures the raw PCM of voice streams and stores each
// capture as a WAV file.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	defaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
)

type Recorder struct {
	audioDir   string
	sampleRate int

	encode func(rawPath, wavPath string, sampleRate int) error
}

func NewRecorder(audioDir string) *Recorder {
	if audioDir == "" {
		audioDir = filepath.Join("data", "audio")
	}
	return &Recorder{audioDir: audioDir, sampleRate: defaultSampleRate, encode: pcmToWav}
}

func (r *Recorder) SetSampleRate(sampleRate int) {
	if sampleRate > 0 {
		r.sampleRate = sampleRate
	}
}

// StartCapture opens <name>.pcm in the audio directory. Closing the
// returned writer converts it to <name>.wav and removes the raw file.
func (r *Recorder) StartCapture(name string) (io.WriteCloser, error) {
	if err := os.MkdirAll(r.audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}

	rawPath := filepath.Join(r.audioDir, name+".pcm")
	rawFile, err := os.OpenFile(rawPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open raw pcm file: %w", err)
	}

	return &Capture{
		recorder: r,
		rawPath:  rawPath,
		wavPath:  filepath.Join(r.audioDir, name+".wav"),
		rawFile:  rawFile,
	}, nil
}

// Capture is one stream's recording in progress.
type Capture struct {
	recorder *Recorder
	rawPath  string
	wavPath  string

	mu      sync.Mutex
	rawFile *os.File
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rawFile == nil {
		return 0, os.ErrClosed
	}
	n, err := c.rawFile.Write(p)
	if err != nil {
		return n, fmt.Errorf("write raw pcm bytes: %w", err)
	}
	return n, nil
}

// Close finishes the capture. Later calls are no-ops.
func (c *Capture) Close() error {
	c.mu.Lock()
	rawFile := c.rawFile
	c.rawFile = nil
	c.mu.Unlock()

	if rawFile == nil {
		return nil
	}
	if err := rawFile.Close(); err != nil {
		return fmt.Errorf("close raw pcm file: %w", err)
	}

	if err := c.recorder.encode(c.rawPath, c.wavPath, c.recorder.sampleRate); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	_ = os.Remove(c.rawPath)
	return nil
}

// Path is where the finished WAV is written.
func (c *Capture) Path() string {
	return c.wavPath
}

func pcmToWav(rawPath, wavPath string, sampleRate int) error {
	pcmData, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read raw pcm data: %w", err)
	}

	out, err := os.OpenFile(wavPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open wav output: %w", err)
	}
	defer out.Close()

	header, err := wavHeader(len(pcmData), sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return fmt.Errorf("build wav header: %w", err)
	}

	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcmData); err != nil {
		return fmt.Errorf("write wav payload: %w", err)
	}

	return nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	if _, err := buf.WriteString("RIFF"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("WAVE"); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("fmt "); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(16)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(1)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(channels)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(byteRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(bitDepth)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("data"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
