package interview

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sjawhar/interview-coach/internal/model"
	"github.com/sjawhar/interview-coach/internal/transcribe"
)

// voiceState is one live transcription stream. gen identifies it so that
// callbacks from a replaced or stopped stream are ignored.
type voiceState struct {
	gen     int
	stream  transcribe.Stream
	buffer  *transcribe.Buffer
	monitor *transcribe.SilenceMonitor
	capture io.WriteCloser
}

// StartStream opens a speech transport for the session. An existing stream
// is torn down first and the new one is dialed after the restart grace.
func (s *Session) StartStream(ctx context.Context) error {
	if s.deps.Dialer == nil {
		return fmt.Errorf("start voice stream: no speech transport configured")
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	prev := s.detachVoiceLocked()
	s.voiceGen++
	gen := s.voiceGen
	buffer := transcribe.NewBuffer(s.cfg.Now)
	v := &voiceState{gen: gen, buffer: buffer}
	v.monitor = transcribe.NewSilenceMonitor(buffer, s.cfg.Silence, func() { s.onSilence(gen) })
	s.mu.Unlock()

	if prev != nil {
		s.teardownVoice(prev)
		select {
		case <-time.After(s.cfg.RestartGrace):
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSessionEnded
		}
	}

	s.mu.Lock()
	if !s.active || s.voiceGen != gen {
		s.mu.Unlock()
		return nil
	}
	// Installed before dialing: the transport may report Opened from
	// inside Dial.
	s.voice = v
	s.mu.Unlock()

	stream, err := s.deps.Dialer.Dial(ctx, &streamHandler{session: s, gen: gen})
	if err != nil {
		s.dropVoice(gen)
		s.logger.Warn("open voice stream failed", "error", err)
		return fmt.Errorf("dial speech transport: %w", err)
	}

	var capture io.WriteCloser
	if s.deps.Recorder != nil {
		capture, err = s.deps.Recorder.StartCapture(fmt.Sprintf("%s-%d", s.id, gen))
		if err != nil {
			s.logger.Warn("start audio capture failed", "error", err)
			capture = nil
		}
	}

	s.mu.Lock()
	if s.voice != v {
		s.mu.Unlock()
		_ = stream.Close()
		if capture != nil {
			_ = capture.Close()
		}
		return nil
	}
	v.stream = stream
	v.capture = capture
	s.metrics.StreamOpened(s.bg)
	s.emitLocked(EventState, s.stateLocked())
	s.mu.Unlock()

	s.logger.Info("voice stream opened", "stream", gen)
	return nil
}

// StopStream closes the transport. Late fragments are still accepted for
// the stop grace, then the stream is torn down. Stopping never submits the
// pending utterance; only the transport's utterance boundary does.
func (s *Session) StopStream() error {
	s.mu.Lock()
	v := s.voice
	if v == nil {
		s.mu.Unlock()
		return ErrNoStream
	}
	gen, stream := v.gen, v.stream
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Debug("close voice stream", "error", err)
		}
	}
	time.AfterFunc(s.cfg.StopGrace, func() { s.dropVoice(gen) })
	return nil
}

// WriteAudio forwards PCM to the open stream and any capture.
func (s *Session) WriteAudio(p []byte) error {
	s.mu.Lock()
	v := s.voice
	var stream transcribe.Stream
	var capture io.WriteCloser
	if v != nil {
		stream, capture = v.stream, v.capture
	}
	s.mu.Unlock()

	if stream == nil {
		return ErrNoStream
	}
	if _, err := stream.Write(p); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if capture != nil {
		if _, err := capture.Write(p); err != nil {
			s.logger.Debug("capture audio", "error", err)
		}
	}
	return nil
}

func (s *Session) currentVoiceLocked(gen int) *voiceState {
	if s.voice == nil || s.voice.gen != gen {
		return nil
	}
	return s.voice
}

func (s *Session) detachVoiceLocked() *voiceState {
	v := s.voice
	s.voice = nil
	return v
}

func (s *Session) dropVoice(gen int) {
	s.mu.Lock()
	v := s.currentVoiceLocked(gen)
	if v != nil {
		s.voice = nil
		s.emitLocked(EventState, s.stateLocked())
	}
	s.mu.Unlock()
	s.teardownVoice(v)
}

// teardownVoice must run without s.mu held: stopping the monitor waits for
// its loop, which may be inside onSilence.
func (s *Session) teardownVoice(v *voiceState) {
	if v == nil {
		return
	}
	v.monitor.Stop()

	s.mu.Lock()
	stream, capture := v.stream, v.capture
	v.stream, v.capture = nil, nil
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
		s.metrics.StreamClosed(s.bg)
	}
	if capture != nil {
		if err := capture.Close(); err != nil {
			s.logger.Warn("finish audio capture failed", "error", err)
		}
	}
}

func (s *Session) onSilence(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.currentVoiceLocked(gen) == nil {
		return
	}
	s.emitLocked(EventCheckingSilence, nil)
	s.appendLocked(model.SpeakerAssistant, checkInText, s.cfg.Now())
	s.metrics.SilenceCheck(s.bg)
}

// streamHandler routes transport callbacks for one stream generation.
type streamHandler struct {
	session *Session
	gen     int
}

func (h *streamHandler) Opened() {
	s := h.session
	s.mu.Lock()
	v := s.currentVoiceLocked(h.gen)
	if v == nil || !s.active {
		s.mu.Unlock()
		return
	}
	v.monitor.Start()
	s.emitLocked(EventInterim, TranscriptEvent{})
	s.mu.Unlock()
}

func (h *streamHandler) Transcript(text string, isFinal bool) {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.currentVoiceLocked(h.gen)
	if v == nil {
		return
	}
	if isFinal {
		v.buffer.Final(text)
		return
	}
	if v.buffer.Interim(text) {
		s.emitLocked(EventInterim, TranscriptEvent{Text: text})
	}
}

func (h *streamHandler) SpeechStarted() {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.currentVoiceLocked(h.gen); v != nil {
		v.buffer.SpeechStarted()
	}
}

func (h *streamHandler) UtteranceEnd() {
	s := h.session
	s.mu.Lock()
	v := s.currentVoiceLocked(h.gen)
	if v == nil {
		s.mu.Unlock()
		return
	}
	text, ok := v.buffer.Boundary()
	if ok {
		s.emitLocked(EventFinal, TranscriptEvent{Text: text})
	}
	s.mu.Unlock()

	if ok {
		if err := s.Submit(text, SourceVoice); err != nil {
			s.logger.Debug("utterance dropped", "error", err)
		}
	}
}

// Failed and Closed tear down off the transport goroutine; closing the
// stream from inside its own callback could block the transport.
func (h *streamHandler) Failed(err error) {
	h.session.logger.Warn("voice stream failed", "stream", h.gen, "error", err)
	go h.session.dropVoice(h.gen)
}

func (h *streamHandler) Closed() {
	go h.session.dropVoice(h.gen)
}
