package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCaptureProducesWav(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)

	w, err := recorder.StartCapture("abc123-1")
	if err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}
	payload := []byte{1, 2, 3, 4, 5, 6}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "abc123-1.wav"))
	if err != nil {
		t.Fatalf("read wav failed: %v", err)
	}
	if len(data) != 44+len(payload) {
		t.Fatalf("expected %d bytes, got %d", 44+len(payload), len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Fatalf("unexpected wav header % x", data[:44])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Fatalf("expected 16 kHz, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(payload)) {
		t.Fatalf("expected data size %d, got %d", len(payload), size)
	}
	if !bytes.Equal(data[44:], payload) {
		t.Fatal("payload mismatch")
	}

	if _, err := os.Stat(filepath.Join(dir, "abc123-1.pcm")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected raw pcm removed, stat err = %v", err)
	}
}

func TestCaptureCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)
	calls := 0
	recorder.encode = func(rawPath, wavPath string, sampleRate int) error {
		calls++
		return pcmToWav(rawPath, wavPath, sampleRate)
	}

	w, err := recorder.StartCapture("twice")
	if err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one encode, got %d", calls)
	}
	if _, err := w.Write([]byte{1}); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected os.ErrClosed after close, got %v", err)
	}
}

func TestCaptureEncodeFailureKeepsRawFile(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)
	recorder.encode = func(string, string, int) error { return errors.New("disk full") }

	w, err := recorder.StartCapture("broken")
	if err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}
	_, _ = w.Write([]byte{1, 2})
	if err := w.Close(); err == nil {
		t.Fatal("expected encode error")
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.pcm")); err != nil {
		t.Fatalf("expected raw pcm kept for recovery: %v", err)
	}
}

func TestSetSampleRate(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)
	recorder.SetSampleRate(8000)
	recorder.SetSampleRate(0)

	w, _ := recorder.StartCapture("rate")
	_ = w.Close()

	data, err := os.ReadFile(filepath.Join(dir, "rate.wav"))
	if err != nil {
		t.Fatalf("read wav failed: %v", err)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 8000 {
		t.Fatalf("expected 8 kHz, got %d", rate)
	}
}
