package transcribe

import (
	"context"
	"io"
)

// Handler receives the events of one live transcription stream. Calls may
// arrive on transport goroutines.
type Handler interface {
	Opened()
	Transcript(text string, isFinal bool)
	SpeechStarted()
	UtteranceEnd()
	Failed(err error)
	Closed()
}

// Stream accepts raw mono 16 kHz linear PCM while open.
type Stream interface {
	io.Writer
	Close() error
}

// Dialer opens live transcription streams.
type Dialer interface {
	Dial(ctx context.Context, h Handler) (Stream, error)
}
