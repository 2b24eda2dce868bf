package interview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/interview-coach/internal/coach"
	"github.com/sjawhar/interview-coach/internal/model"
	"github.com/sjawhar/interview-coach/internal/transcribe"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type evaluatorMock struct {
	mu       sync.Mutex
	evals    []model.Evaluation
	err      error
	calls    int
	answers  []string
	qs       []string
	block    chan struct{}
	inFlight int
	maxIn    int
}

func (m *evaluatorMock) Evaluate(_ context.Context, answer, question string, _ model.JobRole) (model.Evaluation, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	m.maxIn = max(m.maxIn, m.inFlight)
	m.answers = append(m.answers, answer)
	m.qs = append(m.qs, question)
	block := m.block
	var eval model.Evaluation
	if len(m.evals) > 0 {
		eval = m.evals[0]
		m.evals = m.evals[1:]
	} else {
		eval = deepAnswer()
	}
	err := m.err
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
	return eval, err
}

func (m *evaluatorMock) snapshot() (calls int, answers, questions []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]string(nil), m.answers...), append([]string(nil), m.qs...)
}

type questionsMock struct {
	mu        sync.Mutex
	next      int
	followUps int
	requests  []coach.QuestionRequest
	err       error
}

func (m *questionsMock) NextQuestion(_ context.Context, req coach.QuestionRequest) (model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return model.Question{}, m.err
	}
	return model.Question{Text: "Describe a production incident you handled.", Category: model.CategoryTechnical, Difficulty: model.DifficultyHard}, nil
}

func (m *questionsMock) FollowUp(_ context.Context, _, _ string, _ model.JobRole) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followUps++
	if m.err != nil {
		return "", m.err
	}
	return "Can you give a concrete example?", nil
}

func (m *questionsMock) counts() (next, followUps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next, m.followUps
}

type feedbackMock struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *feedbackMock) Summarize(_ context.Context, _ []model.Turn, _ model.JobRole) (model.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return model.Feedback{}, m.err
	}
	return model.Feedback{Overall: 8.1, Narrative: "Strong answers."}, nil
}

func (m *feedbackMock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type archiverMock struct {
	mu      sync.Mutex
	records []model.Record
}

func (m *archiverMock) Archive(_ context.Context, rec model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *archiverMock) all() []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Record(nil), m.records...)
}

type emitted struct {
	event   string
	payload any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []emitted
	notify chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{notify: make(chan struct{}, 1)}
}

func (r *eventRecorder) Emit(event string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, emitted{event: event, payload: payload})
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *eventRecorder) all(event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) count(event string) int {
	return len(r.all(event))
}

// waitFor blocks until at least n events of the given type were emitted.
func (r *eventRecorder) waitFor(t *testing.T, event string, n int) []emitted {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := r.all(event); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d %q events, got %d", n, event, r.count(event))
		}
	}
}

// messages returns the content of every emitted new_message turn.
func (r *eventRecorder) messages() []model.Turn {
	var turns []model.Turn
	for _, e := range r.all(EventMessage) {
		turns = append(turns, e.payload.(model.Turn))
	}
	return turns
}

type fakeStream struct {
	mu      sync.Mutex
	written [][]byte
	closed  int
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, append([]byte(nil), p...))
	return len(p), nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDialer struct {
	mu         sync.Mutex
	handlers   []transcribe.Handler
	streams    []*fakeStream
	err        error
	openOnDial bool
}

func (d *fakeDialer) Dial(_ context.Context, h transcribe.Handler) (transcribe.Stream, error) {
	d.mu.Lock()
	if d.err != nil {
		d.mu.Unlock()
		return nil, d.err
	}
	stream := &fakeStream{}
	d.handlers = append(d.handlers, h)
	d.streams = append(d.streams, stream)
	open := d.openOnDial
	d.mu.Unlock()

	if open {
		h.Opened()
	}
	return stream, nil
}

func (d *fakeDialer) handler(i int) transcribe.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[i]
}

func (d *fakeDialer) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[i]
}

type captureMock struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (c *captureMock) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, p...)
	return len(p), nil
}

func (c *captureMock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type recorderMock struct {
	mu       sync.Mutex
	names    []string
	captures []*captureMock
}

func (r *recorderMock) StartCapture(name string) (io.WriteCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &captureMock{}
	r.names = append(r.names, name)
	r.captures = append(r.captures, c)
	return c, nil
}

var errCollaborator = errors.New("collaborator unavailable")

func deepAnswer() model.Evaluation {
	return model.Evaluation{Quality: 8, Depth: model.DepthDeep, Clarity: 8, Relevance: 9, Comprehension: model.ComprehensionClear}
}

func shallowAnswer() model.Evaluation {
	return model.Evaluation{Quality: 4, Depth: model.DepthShallow, Clarity: 5, Relevance: 7, Comprehension: model.ComprehensionPartial, NeedsFollowUp: true}
}

func offTopicAnswer() model.Evaluation {
	return model.Evaluation{Quality: 2, Depth: model.DepthShallow, Clarity: 6, Relevance: 0, OffTopic: true, Comprehension: model.ComprehensionPartial}
}

type harness struct {
	clock     *fakeClock
	evaluator *evaluatorMock
	questions *questionsMock
	feedback  *feedbackMock
	archiver  *archiverMock
	dialer    *fakeDialer
	recorder  *recorderMock
	events    *eventRecorder
	registry  *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(),
		evaluator: &evaluatorMock{},
		questions: &questionsMock{},
		feedback:  &feedbackMock{},
		archiver:  &archiverMock{},
		dialer:    &fakeDialer{},
		recorder:  &recorderMock{},
		events:    newEventRecorder(),
	}
	cfg := Config{
		Tick:         time.Hour,
		RestartGrace: time.Millisecond,
		StopGrace:    10 * time.Millisecond,
		Silence: transcribe.SilenceConfig{
			Interval:  5 * time.Millisecond,
			Threshold: 15 * time.Second,
			Warmup:    10 * time.Second,
		},
		Now: h.clock.Now,
	}
	h.registry = NewRegistry(cfg, Deps{
		Evaluator: h.evaluator,
		Questions: h.questions,
		Feedback:  h.feedback,
		Dialer:    h.dialer,
		Recorder:  h.recorder,
		Archiver:  h.archiver,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.registry.Shutdown(ctx)
	})
	return h
}

func (h *harness) start(t *testing.T, mode model.Mode) *Session {
	t.Helper()
	return h.registry.Start(context.Background(), "conn-1", StartParams{
		Role:     model.RoleSDE,
		Mode:     mode,
		Settings: model.Settings{Duration: "5", ExtractedSkills: []string{"Go"}},
	}, h.events)
}
