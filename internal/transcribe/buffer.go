package transcribe

import (
	"strings"
	"sync"
	"time"
)

// Buffer accumulates the fragments of one live voice stream. Interim
// hypotheses replace each other, final fragments accumulate until the
// transport signals an utterance boundary.
type Buffer struct {
	now func() time.Time

	mu         sync.Mutex
	interim    string
	final      string
	lastSpeech time.Time
	createdAt  time.Time
}

// NewBuffer creates an empty buffer. A nil clock uses time.Now.
func NewBuffer(now func() time.Time) *Buffer {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Buffer{now: now, lastSpeech: t, createdAt: t}
}

// Interim replaces the live hypothesis. Empty fragments are ignored and
// report false.
func (b *Buffer) Interim(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.interim = text
	b.lastSpeech = b.now()
	return true
}

// Final appends a finalized fragment to the pending utterance.
func (b *Buffer) Final(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.final == "" {
		b.final = text
	} else {
		b.final += " " + text
	}
	b.interim = ""
	b.lastSpeech = b.now()
	return true
}

// SpeechStarted records voice activity reported ahead of any transcript.
func (b *Buffer) SpeechStarted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSpeech = b.now()
}

// Boundary closes the current utterance. It returns the accumulated final
// text exactly once; with nothing accumulated it reports false and leaves
// the buffer untouched.
func (b *Buffer) Boundary() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.final == "" {
		return "", false
	}
	utterance := b.final
	b.final = ""
	b.interim = ""
	b.lastSpeech = b.now()
	return utterance, true
}

func (b *Buffer) Snapshot() (interim, final string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interim, b.final
}

func (b *Buffer) SilentFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.lastSpeech)
}

func (b *Buffer) Age() time.Duration {
	return b.now().Sub(b.createdAt)
}

// checkSilence reports whether the stream has been quiet past threshold
// with nothing pending and the buffer at least warmup old. A positive check
// resets the speech clock so the next one needs a fresh silent period.
func (b *Buffer) checkSilence(threshold, warmup time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.final != "" || b.interim != "" {
		return false
	}
	if now.Sub(b.createdAt) < warmup || now.Sub(b.lastSpeech) < threshold {
		return false
	}
	b.lastSpeech = now
	return true
}
