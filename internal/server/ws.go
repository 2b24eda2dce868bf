package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sjawhar/interview-coach/internal/interview"
	"github.com/sjawhar/interview-coach/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
	extractTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one websocket connection. Its id doubles as the id of the
// session it drives, and it is that session's Emitter.
type client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	c := &client{
		id:     id,
		conn:   conn,
		server: s,
		logger: s.logger.With("session_id", id),
		send:   make(chan []byte, sendBuffer),
	}
	s.hub.register(c)
	c.Emit(EventConnection, ConnectionEvent{Connected: true, SessionID: id})

	go c.writePump()
	c.readPump(r.Context())
}

// Emit queues an event without blocking. Events for a closed client, or
// beyond a full buffer, are dropped.
func (c *client) Emit(event string, payload any) {
	msg, err := encodeEvent(event, payload, c.server.now())
	if err != nil {
		c.logger.Warn("event encode failed", "event", event, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("client send buffer full, dropping event", "event", event)
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.server.registry.Remove(c.id, interview.ReasonDisconnect)
		c.server.hub.unregister(c)
		_ = c.conn.Close()
		c.logger.Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			c.writeAudio(data)
		case websocket.TextMessage:
			c.dispatch(ctx, data)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) dispatch(ctx context.Context, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed client frame", "error", err)
		return
	}

	switch msg.Type {
	case EventStartInterview:
		c.startInterview(ctx, msg.Data)
	case EventSendMessage:
		c.submit(msg.Type, msg.Data, interview.SourceText)
	case EventSendVoiceTranscript:
		c.submit(msg.Type, msg.Data, interview.SourceVoice)
	case EventStartVoiceStream:
		c.withSession(msg.Type, func(s *interview.Session) error { return s.StartStream(ctx) })
	case EventStopVoiceStream:
		c.withSession(msg.Type, func(s *interview.Session) error { return s.StopStream() })
	case EventAudioChunk:
		var req audioRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.logger.Debug("malformed audio chunk", "error", err)
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			c.logger.Debug("audio chunk is not base64", "error", err)
			return
		}
		c.writeAudio(pcm)
	case EventExecuteCommand:
		var req commandRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.logger.Debug("malformed command", "error", err)
			return
		}
		c.execute(req)
	case EventRequestFeedback:
		c.requestFeedback(msg.Type)
	case EventExtractDocuments:
		c.extract(ctx, msg.Data)
	default:
		c.logger.Debug("unknown client event", "event", msg.Type)
	}
}

func (c *client) startInterview(ctx context.Context, data json.RawMessage) {
	var req startRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("malformed start_interview", "error", err)
		return
	}
	role, err := model.ParseJobRole(req.Role)
	if err != nil {
		c.logger.Warn("start_interview rejected", "error", err)
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		c.logger.Warn("start_interview rejected", "error", err)
		return
	}
	var settings model.Settings
	if len(req.Config) > 0 && string(req.Config) != "null" {
		if err := json.Unmarshal(req.Config, &settings); err != nil {
			c.logger.Warn("start_interview rejected", "error", err)
			return
		}
	}

	c.server.registry.Start(ctx, c.id, interview.StartParams{Role: role, Mode: mode, Settings: settings}, c)
}

func (c *client) submit(event string, data json.RawMessage, source interview.Source) {
	text, err := decodeText(data)
	if err != nil {
		c.logger.Debug("malformed answer", "event", event, "error", err)
		return
	}
	c.withSession(event, func(s *interview.Session) error { return s.Submit(text, source) })
}

func (c *client) execute(req commandRequest) {
	switch interview.ParseExplicit(req.Command) {
	case interview.CommandEnd:
		c.withSession(EventExecuteCommand, func(s *interview.Session) error {
			s.End(interview.ReasonCommand)
			return nil
		})
	case interview.CommandFeedback:
		c.requestFeedback(EventExecuteCommand)
	default:
		c.logger.Debug("unsupported command ignored", "command", req.Command, "args", strings.Join(req.Args, " "))
	}
}

func (c *client) writeAudio(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	c.withSession(EventAudioChunk, func(s *interview.Session) error { return s.WriteAudio(pcm) })
}

// withSession runs fn against this connection's session. Missing sessions
// and input for an ended session or a closed stream are expected while a
// connection winds down and are only logged at Debug.
func (c *client) withSession(event string, fn func(*interview.Session) error) {
	s, ok := c.server.registry.Get(c.id)
	if !ok {
		c.logger.Debug("event ignored", "event", event, "error", interview.ErrNoSession)
		return
	}
	if err := fn(s); err != nil {
		if errors.Is(err, interview.ErrSessionEnded) || errors.Is(err, interview.ErrNoStream) {
			c.logger.Debug("event ignored", "event", event, "error", err)
			return
		}
		c.logger.Warn("event failed", "event", event, "error", err)
	}
}

// requestFeedback also reaches a session that has already ended, which
// answers with its final feedback.
func (c *client) requestFeedback(event string) {
	s, ok := c.server.registry.Get(c.id)
	if !ok {
		s, ok = c.server.registry.Ended(c.id)
	}
	if !ok {
		c.logger.Debug("event ignored", "event", event, "error", interview.ErrNoSession)
		return
	}
	s.RequestFeedback()
}

// extract runs off the read loop; document parsing takes several model
// round trips.
func (c *client) extract(ctx context.Context, data json.RawMessage) {
	var req extractRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("malformed extract_documents", "error", err)
		return
	}
	role, err := model.ParseJobRole(req.Role)
	if err != nil {
		role = model.JobRole(strings.TrimSpace(req.Role))
	}

	go func() {
		insights := model.Insights{Skills: []string{}, Responsibilities: []string{}, Strengths: []string{}, Weaknesses: []string{}}
		if c.server.extractor != nil {
			ctx, cancel := context.WithTimeout(ctx, extractTimeout)
			defer cancel()

			var err error
			insights, err = c.server.extractor.Extract(ctx, req.JobDescription, req.Resume, role)
			if err != nil {
				c.logger.Warn("document extraction failed", "error", err)
			}
		}
		c.Emit(EventDocumentsExtracted, insights)
	}()
}
