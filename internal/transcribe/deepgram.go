package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const (
	SampleRate = 16000
	Encoding   = "linear16"
)

var ErrNotConnected = errors.New("deepgram: connect failed")

var sdkInit sync.Once

type DeepgramConfig struct {
	APIKey         string
	Model          string
	Language       string
	EndpointingMs  int
	UtteranceEndMs int
	Keywords       []string
	KeywordBoost   int
}

// DeepgramDialer opens Deepgram live websocket streams tuned for
// conversational answers: long endpointing so mid-sentence pauses do not
// split an answer, VAD events for silence tracking, and interim results for
// live display.
type DeepgramDialer struct {
	cfg    DeepgramConfig
	logger *slog.Logger
}

func NewDeepgramDialer(cfg DeepgramConfig, logger *slog.Logger) *DeepgramDialer {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.EndpointingMs <= 0 {
		cfg.EndpointingMs = 1500
	}
	if cfg.UtteranceEndMs <= 0 {
		cfg.UtteranceEndMs = 2500
	}
	if cfg.KeywordBoost <= 0 {
		cfg.KeywordBoost = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	sdkInit.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})
	return &DeepgramDialer{cfg: cfg, logger: logger}
}

func (d *DeepgramDialer) Options() *interfaces.LiveTranscriptionOptions {
	keywords := make([]string, 0, len(d.cfg.Keywords))
	for _, kw := range d.cfg.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		keywords = append(keywords, fmt.Sprintf("%s:%d", kw, d.cfg.KeywordBoost))
	}

	return &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       d.cfg.Language,
		Encoding:       Encoding,
		SampleRate:     SampleRate,
		Channels:       1,
		SmartFormat:    true,
		Punctuate:      true,
		InterimResults: true,
		FillerWords:    true,
		VadEvents:      true,
		Endpointing:    strconv.Itoa(d.cfg.EndpointingMs),
		UtteranceEndMs: strconv.Itoa(d.cfg.UtteranceEndMs),
		Keywords:       keywords,
	}
}

func (d *DeepgramDialer) Dial(ctx context.Context, h Handler) (Stream, error) {
	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	cb := &deepgramCallback{handler: h, logger: d.logger}

	dg, err := client.NewWSUsingCallback(ctx, d.cfg.APIKey, cOptions, d.Options(), cb)
	if err != nil {
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		return nil, ErrNotConnected
	}

	return &deepgramStream{writer: dg, stop: dg.Stop}, nil
}

type deepgramStream struct {
	writer interface {
		Write(p []byte) (int, error)
	}
	stop func()
	once sync.Once
}

func (s *deepgramStream) Write(p []byte) (int, error) {
	return s.writer.Write(p)
}

func (s *deepgramStream) Close() error {
	s.once.Do(s.stop)
	return nil
}

// deepgramCallback adapts the SDK callback interface onto a Handler.
type deepgramCallback struct {
	handler Handler
	logger  *slog.Logger
}

func (c *deepgramCallback) Open(*api.OpenResponse) error {
	c.logger.Debug("deepgram stream open")
	c.handler.Opened()
	return nil
}

func (c *deepgramCallback) Message(mr *api.MessageResponse) error {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}
	c.handler.Transcript(text, mr.IsFinal)
	return nil
}

func (c *deepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c *deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error {
	c.handler.SpeechStarted()
	return nil
}

func (c *deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error {
	c.handler.UtteranceEnd()
	return nil
}

func (c *deepgramCallback) Close(*api.CloseResponse) error {
	c.logger.Debug("deepgram stream closed")
	c.handler.Closed()
	return nil
}

func (c *deepgramCallback) Error(er *api.ErrorResponse) error {
	err := errors.New("deepgram: unknown error")
	if er != nil {
		err = fmt.Errorf("deepgram %s: %s", er.ErrCode, er.Description)
	}
	c.handler.Failed(err)
	return nil
}

func (c *deepgramCallback) UnhandledEvent([]byte) error { return nil }
