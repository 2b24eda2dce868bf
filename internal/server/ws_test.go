package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/interview-coach/internal/coach"
	"github.com/sjawhar/interview-coach/internal/interview"
	"github.com/sjawhar/interview-coach/internal/model"
)

type coachStub struct {
	mu        sync.Mutex
	answers   []string
	extractFn func() (model.Insights, error)
}

func (c *coachStub) Evaluate(_ context.Context, answer, _ string, _ model.JobRole) (model.Evaluation, error) {
	c.mu.Lock()
	c.answers = append(c.answers, answer)
	c.mu.Unlock()
	return model.Evaluation{Quality: 8, Depth: model.DepthDeep, Clarity: 8, Relevance: 8, Comprehension: model.ComprehensionClear}, nil
}

func (c *coachStub) NextQuestion(context.Context, coach.QuestionRequest) (model.Question, error) {
	return model.Question{Text: "How do you design for failure?", Category: model.CategoryTechnical, Difficulty: model.DifficultyMedium}, nil
}

func (c *coachStub) FollowUp(context.Context, string, string, model.JobRole) (string, error) {
	return "Can you go deeper?", nil
}

func (c *coachStub) Summarize(context.Context, []model.Turn, model.JobRole) (model.Feedback, error) {
	fb := model.DefaultFeedback()
	fb.Overall = 8.5
	return fb, nil
}

func (c *coachStub) Extract(context.Context, string, string, model.JobRole) (model.Insights, error) {
	if c.extractFn != nil {
		return c.extractFn()
	}
	return model.Insights{Skills: []string{"Go"}, Responsibilities: []string{"On-call"}, Strengths: []string{}, Weaknesses: []string{}}, nil
}

type wsFixture struct {
	srv      *httptest.Server
	server   *Server
	registry *interview.Registry
	coach    *coachStub
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	stub := &coachStub{}
	logger := discardLogger()
	registry := interview.NewRegistry(interview.Config{Tick: 20 * time.Millisecond}, interview.Deps{
		Evaluator: stub,
		Questions: stub,
		Feedback:  stub,
		Logger:    logger,
	})
	s := New(Options{Registry: registry, Extractor: stub, Logger: logger})
	srv := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
		s.CloseConnections()
		srv.Close()
	})
	return &wsFixture{srv: srv, server: s, registry: registry, coach: stub}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	frame, _ := json.Marshal(inbound{Type: eventType, Data: raw})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readUntil returns the first event of the given type, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		var got map[string]any
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if got["type"] == eventType && (match == nil || match(got)) {
			return got
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func startInterview(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, EventStartInterview, map[string]any{
		"role":   "sde",
		"mode":   "chat",
		"config": map[string]any{"duration": 5},
	})
	readUntil(t, conn, interview.EventQuestion, func(m map[string]any) bool { return m["id"] == "q-1" })
}

func TestWSConnectionEvent(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)

	got := readUntil(t, conn, EventConnection, nil)
	if got["connected"] != true {
		t.Fatalf("expected connected=true, got %v", got)
	}
	id, _ := got["session_id"].(string)
	if id == "" {
		t.Fatalf("expected a session id, got %v", got)
	}
	if got["version"] != float64(EventVersion) {
		t.Fatalf("expected version %d, got %v", EventVersion, got["version"])
	}
	eventually(t, func() bool { return f.server.Connections() == 1 })
}

func TestWSStartInterviewAndAnswer(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	hello := readUntil(t, conn, EventConnection, nil)
	startInterview(t, conn)

	send(t, conn, EventSendMessage, map[string]string{"text": "I led the migration to Kubernetes."})
	state := readUntil(t, conn, interview.EventState, nil)
	if state["session_id"] != hello["session_id"] || state["target_duration"] != float64(300) {
		t.Fatalf("unexpected state: %v", state)
	}
	q := readUntil(t, conn, interview.EventQuestion, func(m map[string]any) bool { return m["id"] == "q-2" })
	if q["question"] != "How do you design for failure?" || q["role"] != string(model.RoleSDE) {
		t.Fatalf("unexpected next question: %v", q)
	}

	f.coach.mu.Lock()
	answers := append([]string(nil), f.coach.answers...)
	f.coach.mu.Unlock()
	if len(answers) != 1 || answers[0] != "I led the migration to Kubernetes." {
		t.Fatalf("unexpected evaluated answers: %v", answers)
	}
}

func TestWSRejectsUnknownRole(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	readUntil(t, conn, EventConnection, nil)

	send(t, conn, EventStartInterview, map[string]any{"role": "astronaut", "mode": "chat"})
	send(t, conn, EventRequestFeedback, nil)
	time.Sleep(50 * time.Millisecond)
	if f.registry.Len() != 0 {
		t.Fatalf("expected no session for an unknown role, got %d", f.registry.Len())
	}
}

func TestWSEndCommand(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	readUntil(t, conn, EventConnection, nil)
	startInterview(t, conn)

	send(t, conn, EventExecuteCommand, map[string]any{"command": "/end"})
	ended := readUntil(t, conn, interview.EventEnded, nil)
	if ended["reason"] != string(interview.ReasonCommand) {
		t.Fatalf("unexpected end reason: %v", ended)
	}
	fb := readUntil(t, conn, interview.EventFeedback, nil)
	if fb["overall_score"] != 8.5 {
		t.Fatalf("unexpected feedback: %v", fb)
	}
	eventually(t, func() bool { return f.registry.Len() == 0 })

	send(t, conn, EventRequestFeedback, nil)
	again := readUntil(t, conn, interview.EventFeedback, nil)
	if again["overall_score"] != 8.5 {
		t.Fatalf("expected the final feedback again, got %v", again)
	}
}

func TestWSDisconnectRemovesSession(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	readUntil(t, conn, EventConnection, nil)
	startInterview(t, conn)

	if f.registry.Len() != 1 {
		t.Fatalf("expected one session, got %d", f.registry.Len())
	}
	_ = conn.Close()

	eventually(t, func() bool { return f.registry.Len() == 0 && f.server.Connections() == 0 })
}

func TestWSExtractDocuments(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	readUntil(t, conn, EventConnection, nil)

	send(t, conn, EventExtractDocuments, map[string]string{"jd_text": "Go and Kafka", "resume_text": "SRE", "role": "DevOps"})
	got := readUntil(t, conn, EventDocumentsExtracted, nil)
	skills, _ := got["skills"].([]any)
	if len(skills) != 1 || skills[0] != "Go" {
		t.Fatalf("unexpected insights: %v", got)
	}
}

func TestWSExtractDocumentsFailureStillReplies(t *testing.T) {
	f := newWSFixture(t)
	f.coach.extractFn = func() (model.Insights, error) {
		return model.Insights{Skills: []string{}, Responsibilities: []string{}, Strengths: []string{}, Weaknesses: []string{}}, errors.New("model unavailable")
	}
	conn := f.dial(t)
	readUntil(t, conn, EventConnection, nil)

	send(t, conn, EventExtractDocuments, map[string]string{"jd_text": "x", "role": "PM"})
	got := readUntil(t, conn, EventDocumentsExtracted, nil)
	if skills, ok := got["skills"].([]any); !ok || len(skills) != 0 {
		t.Fatalf("expected empty skills, got %v", got)
	}
}

func TestWSAudioWithoutStreamIsIgnored(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	readUntil(t, conn, EventConnection, nil)
	startInterview(t, conn)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	send(t, conn, EventAudioChunk, map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte{5, 6})})

	// The connection stays usable after audio with no open stream.
	send(t, conn, EventSendMessage, "Still here.")
	readUntil(t, conn, interview.EventQuestion, func(m map[string]any) bool { return m["id"] == "q-2" })
}

func TestClientEmitAfterCloseIsDropped(t *testing.T) {
	s := New(Options{Registry: interview.NewRegistry(interview.Config{}, interview.Deps{}), Logger: discardLogger()})
	c := &client{id: "c1", server: s, logger: discardLogger(), send: make(chan []byte, 1)}

	c.Emit(EventConnection, ConnectionEvent{Connected: true, SessionID: "c1"})
	c.Emit(EventConnection, ConnectionEvent{Connected: true, SessionID: "c1"})
	if len(c.send) != 1 {
		t.Fatalf("expected the full buffer to drop the second event, got %d queued", len(c.send))
	}

	c.close()
	c.close()
	c.Emit(EventConnection, nil)
}
