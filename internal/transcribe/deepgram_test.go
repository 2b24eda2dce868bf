package transcribe

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

type handlerMock struct {
	mu          sync.Mutex
	opened      int
	interim     []string
	finals      []string
	speech      int
	utterances  int
	failures    []error
	closedCalls int
}

func (h *handlerMock) Opened() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened++
}

func (h *handlerMock) Transcript(text string, isFinal bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if isFinal {
		h.finals = append(h.finals, text)
		return
	}
	h.interim = append(h.interim, text)
}

func (h *handlerMock) SpeechStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speech++
}

func (h *handlerMock) UtteranceEnd() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.utterances++
}

func (h *handlerMock) Failed(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, err)
}

func (h *handlerMock) Closed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closedCalls++
}

func messageResponse(t *testing.T, transcript string, isFinal bool) *api.MessageResponse {
	t.Helper()
	payload := map[string]any{
		"type":     "Results",
		"is_final": isFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{{"transcript": transcript, "confidence": 0.9}},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	var mr api.MessageResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return &mr
}

func TestDeepgramCallbackRoutesEvents(t *testing.T) {
	h := &handlerMock{}
	cb := &deepgramCallback{handler: h, logger: slog.Default()}

	_ = cb.Open(&api.OpenResponse{})
	_ = cb.Message(messageResponse(t, "hello", false))
	_ = cb.Message(messageResponse(t, "  ", false))
	_ = cb.Message(messageResponse(t, "hello there", true))
	_ = cb.Message(&api.MessageResponse{})
	_ = cb.SpeechStarted(&api.SpeechStartedResponse{})
	_ = cb.UtteranceEnd(&api.UtteranceEndResponse{})
	_ = cb.Error(&api.ErrorResponse{ErrCode: "NET-0001", Description: "socket closed"})
	_ = cb.Close(&api.CloseResponse{})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opened != 1 || h.speech != 1 || h.utterances != 1 || h.closedCalls != 1 {
		t.Fatalf("unexpected lifecycle counts: %+v", h)
	}
	if len(h.interim) != 1 || h.interim[0] != "hello" {
		t.Fatalf("unexpected interim fragments: %#v", h.interim)
	}
	if len(h.finals) != 1 || h.finals[0] != "hello there" {
		t.Fatalf("unexpected final fragments: %#v", h.finals)
	}
	if len(h.failures) != 1 || !strings.Contains(h.failures[0].Error(), "socket closed") {
		t.Fatalf("unexpected failures: %#v", h.failures)
	}
}

func TestDeepgramOptions(t *testing.T) {
	d := NewDeepgramDialer(DeepgramConfig{Keywords: []string{"React", " ", "CI/CD"}}, nil)
	opts := d.Options()

	if opts.Model != "nova-2" || opts.Language != "en-US" {
		t.Fatalf("unexpected model/language %q/%q", opts.Model, opts.Language)
	}
	if opts.Encoding != "linear16" || opts.SampleRate != 16000 || opts.Channels != 1 {
		t.Fatalf("unexpected audio format %+v", opts)
	}
	if opts.Endpointing != "1500" || opts.UtteranceEndMs != "2500" {
		t.Fatalf("unexpected endpointing %q / %q", opts.Endpointing, opts.UtteranceEndMs)
	}
	if !opts.InterimResults || !opts.VadEvents || !opts.FillerWords {
		t.Fatalf("expected interim results, VAD events and filler words enabled: %+v", opts)
	}
	if strings.Join(opts.Keywords, ",") != "React:2,CI/CD:2" {
		t.Fatalf("unexpected keywords %#v", opts.Keywords)
	}
}

func TestDeepgramStreamCloseOnce(t *testing.T) {
	stops := 0
	s := &deepgramStream{writer: errWriter{}, stop: func() { stops++ }}
	_ = s.Close()
	_ = s.Close()
	if stops != 1 {
		t.Fatalf("expected one stop, got %d", stops)
	}
	if _, err := s.Write([]byte{1, 2}); err == nil {
		t.Fatal("expected writer error to propagate")
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }
