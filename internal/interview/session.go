// Package interview runs live interview sessions: the per-connection state
// machine that queues answers, consults the collaborators, tracks the
// candidate's interaction pattern and enforces the time limit.
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/interview-coach/internal/coach"
	"github.com/sjawhar/interview-coach/internal/model"
	"github.com/sjawhar/interview-coach/internal/observe"
	"github.com/sjawhar/interview-coach/internal/pattern"
	"github.com/sjawhar/interview-coach/internal/transcribe"
)

const (
	welcomeTemplate = "Hello! I'm your AI interviewer for the %s position. Let's begin with an introduction. Can you tell me about yourself and your relevant experience?"
	redirectText    = "I need to stay focused on interview practice. Please share your thoughts on the previous question, or I can ask you a new one if you'd like."
	closingText     = "Thank you for completing the interview! Your feedback will be generated shortly."
	wrapUpText      = "Understood. Let me wrap up and generate your feedback."
	checkInText     = "Are you still there? Take your time, and let me know when you're ready to continue."

	historyTurns = 6
)

type Source int

const (
	SourceText Source = iota
	SourceVoice
)

type Config struct {
	// Tick is the clock period. Default 1s.
	Tick           time.Duration
	DefaultMinutes int
	RestartGrace   time.Duration
	StopGrace      time.Duration
	Silence        transcribe.SilenceConfig
	// FeedbackTimeout bounds end-of-interview feedback and archiving.
	FeedbackTimeout time.Duration
	// Now is the clock. Default time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.DefaultMinutes <= 0 {
		c.DefaultMinutes = 20
	}
	if c.RestartGrace <= 0 {
		c.RestartGrace = 600 * time.Millisecond
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 500 * time.Millisecond
	}
	if c.Silence == (transcribe.SilenceConfig{}) {
		c.Silence = transcribe.DefaultSilenceConfig()
	}
	if c.FeedbackTimeout <= 0 {
		c.FeedbackTimeout = 90 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Deps are the collaborators shared by every session. Dialer, Recorder and
// Archiver are optional.
type Deps struct {
	Evaluator Evaluator
	Questions QuestionGenerator
	Feedback  FeedbackGenerator
	Dialer    transcribe.Dialer
	Recorder  Recorder
	Archiver  Archiver
	Metrics   *observe.Metrics
	Logger    *slog.Logger
}

type StartParams struct {
	Role     model.JobRole
	Mode     model.Mode
	Settings model.Settings
}

type submission struct {
	text   string
	source Source
}

type Session struct {
	id       string
	role     model.JobRole
	mode     model.Mode
	settings model.Settings
	target   time.Duration

	cfg     Config
	deps    Deps
	emitter Emitter
	logger  *slog.Logger
	metrics *observe.Metrics

	// ctx is canceled when the session ends; turn processing runs under it.
	ctx    context.Context
	cancel context.CancelFunc
	// bg outlives the session for feedback and archiving.
	bg   context.Context
	done chan struct{}
	wake chan struct{}
	wg   sync.WaitGroup

	mu              sync.Mutex
	active          bool
	muted           bool
	startedAt       time.Time
	endedAt         time.Time
	elapsed         time.Duration
	reason          Reason
	turnIndex       int
	turns           []model.Turn
	pending         []submission
	classifier      *pattern.Classifier
	current         pattern.Result
	followUpPending bool
	lastAssistantAt time.Time
	feedback        *model.Feedback
	voice           *voiceState
	voiceGen        int

	// onEnd runs once, after End has marked the session inactive.
	onEnd func()
}

func newSession(ctx context.Context, id string, params StartParams, cfg Config, deps Deps, emitter Emitter) *Session {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.Discard()
	}
	if emitter == nil {
		emitter = EmitterFunc(func(string, any) {})
	}

	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:         id,
		role:       params.Role,
		mode:       params.Mode,
		settings:   params.Settings,
		target:     params.Settings.Target(cfg.DefaultMinutes),
		cfg:        cfg,
		deps:       deps,
		emitter:    emitter,
		logger:     deps.Logger.With("session_id", id),
		metrics:    deps.Metrics,
		ctx:        sctx,
		cancel:     cancel,
		bg:         context.WithoutCancel(ctx),
		done:       make(chan struct{}),
		wake:       make(chan struct{}, 1),
		classifier: pattern.NewClassifier(),
		current:    pattern.Result{Pattern: pattern.Unknown},
		turnIndex:  1,
	}
}

func (s *Session) ID() string { return s.id }

// start greets the candidate and launches the clock and the turn worker.
func (s *Session) start() {
	s.mu.Lock()
	now := s.cfg.Now()
	s.active = true
	s.startedAt = now
	welcome := s.appendLocked(model.SpeakerAssistant, fmt.Sprintf(welcomeTemplate, s.role), now)
	s.emitLocked(EventState, s.stateLocked())
	s.emitLocked(EventQuestion, QuestionEvent{
		ID:         "q-1",
		Role:       s.role,
		Category:   model.CategoryBehavioral,
		Difficulty: model.DifficultyEasy,
		Question:   welcome.Content,
	})
	s.mu.Unlock()

	s.metrics.SessionStarted(s.bg)
	s.logger.Info("interview started", "role", s.role, "mode", s.mode, "target", s.target)

	s.wg.Add(2)
	go s.runClock()
	go s.runTurns()
}

// Submit queues a candidate utterance. Blank text is ignored.
func (s *Session) Submit(text string, source Source) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	s.pending = append(s.pending, submission{text: text, source: source})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Session) runClock() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick refreshes the elapsed time from the wall clock and ends the session
// once the target is reached.
func (s *Session) tick() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.elapsed = s.cfg.Now().Sub(s.startedAt)
	if s.elapsed >= s.target {
		s.mu.Unlock()
		s.End(ReasonTimeout)
		return
	}
	s.emitLocked(EventState, s.stateLocked())
	s.mu.Unlock()
}

func (s *Session) runTurns() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			sub, ok := s.dequeue()
			if !ok {
				break
			}
			s.handle(sub)
		}
	}
}

func (s *Session) dequeue() (submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || len(s.pending) == 0 {
		return submission{}, false
	}
	sub := s.pending[0]
	s.pending = s.pending[1:]
	return sub, true
}

func (s *Session) handle(sub submission) {
	switch MatchCommand(sub.text) {
	case CommandEnd:
		s.metrics.Turn(s.ctx, observe.OutcomeCommand)
		if sub.source == SourceVoice {
			s.appendAssistant(wrapUpText)
		}
		s.End(ReasonCommand)
		return
	case CommandFeedback:
		s.metrics.Turn(s.ctx, observe.OutcomeCommand)
		s.RequestFeedback()
		return
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	now := s.cfg.Now()
	latency := now.Sub(s.lastAssistantAt)
	s.appendLocked(model.SpeakerUser, sub.text, now)
	overdue := now.Sub(s.startedAt) >= s.target
	question := s.lastQuestionLocked()
	s.mu.Unlock()

	if overdue {
		s.End(ReasonTimeout)
		return
	}

	eval, err := s.deps.Evaluator.Evaluate(s.ctx, sub.text, question, s.role)
	if err != nil {
		s.logger.Warn("evaluation failed, using neutral score", "error", err)
		eval = model.NeutralEvaluation()
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.current = s.classifier.Add(eval, latency, sub.text)
	s.emitLocked(EventState, s.stateLocked())

	if eval.OffTopic {
		s.appendLocked(model.SpeakerAssistant, redirectText, s.cfg.Now())
		s.mu.Unlock()
		s.metrics.Turn(s.ctx, observe.OutcomeRedirect)
		return
	}

	s.turnIndex++
	s.emitLocked(EventState, s.stateLocked())

	shallow := eval.Depth == model.DepthShallow
	needsFollowUp := eval.NeedsFollowUp || (shallow && eval.Quality < 5)
	askFollowUp := needsFollowUp && eval.Quality < 7 && shallow && !s.followUpPending
	req := coach.QuestionRequest{
		Role:             s.role,
		Pattern:          s.current.Pattern,
		Skills:           s.settings.ExtractedSkills,
		Responsibilities: s.settings.ExtractedResponsibilities,
	}
	if askFollowUp {
		s.followUpPending = true
	} else {
		s.followUpPending = false
		req.History = s.historyLocked()
	}
	index := s.turnIndex
	s.mu.Unlock()

	var q model.Question
	if askFollowUp {
		q = s.followUp(question, sub.text)
	} else {
		q = s.nextQuestion(req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.appendLocked(model.SpeakerAssistant, q.Text, s.cfg.Now())
	s.emitLocked(EventQuestion, QuestionEvent{
		ID:         fmt.Sprintf("q-%d", index),
		Role:       s.role,
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Question:   q.Text,
	})
	if askFollowUp {
		s.metrics.Turn(s.ctx, observe.OutcomeFollowUp)
	} else {
		s.metrics.Turn(s.ctx, observe.OutcomeQuestion)
	}
}

func (s *Session) followUp(question, answer string) model.Question {
	text, err := s.deps.Questions.FollowUp(s.ctx, question, answer, s.role)
	if err != nil {
		s.logger.Warn("follow-up generation failed", "error", err)
	}
	if err != nil || strings.TrimSpace(text) == "" {
		text = model.FallbackFollowUp
	}
	return model.Question{Text: text, Category: model.CategoryTechnical, Difficulty: model.DifficultyMedium}
}

func (s *Session) nextQuestion(req coach.QuestionRequest) model.Question {
	q, err := s.deps.Questions.NextQuestion(s.ctx, req)
	if err != nil {
		s.logger.Warn("question generation failed", "error", err)
	}
	if err != nil || strings.TrimSpace(q.Text) == "" {
		return model.FallbackQuestion()
	}
	return q
}

// End stops the session. Only the first call has any effect: it appends the
// closing turn, stops the clock and any voice stream, and starts the single
// feedback generation for the interview. It reports whether this call ended
// the session.
func (s *Session) End(reason Reason) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	now := s.cfg.Now()
	s.active = false
	s.reason = reason
	s.endedAt = now
	s.elapsed = now.Sub(s.startedAt)
	s.pending = nil
	if reason == ReasonDisconnect {
		s.muted = true
	}
	s.wg.Add(1)
	close(s.done)
	s.cancel()

	voice := s.detachVoiceLocked()
	s.appendLocked(model.SpeakerSystem, closingText, now)
	s.emitLocked(EventState, s.stateLocked())
	s.emitLocked(EventEnded, EndedEvent{Reason: reason})
	transcript := append([]model.Turn(nil), s.turns...)
	elapsed := s.elapsed
	s.mu.Unlock()

	s.teardownVoice(voice)
	if s.onEnd != nil {
		s.onEnd()
	}
	s.metrics.SessionEnded(s.bg, string(reason))
	s.logger.Info("interview ended", "reason", reason, "elapsed", elapsed.Round(time.Second))

	go s.finish(transcript)
	return true
}

func (s *Session) finish(transcript []model.Turn) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.bg, s.cfg.FeedbackTimeout)
	defer cancel()

	fb := s.summarize(ctx, transcript)

	s.mu.Lock()
	s.feedback = &fb
	s.emitLocked(EventFeedback, fb)
	rec := model.Record{
		SessionID: s.id,
		Role:      s.role,
		Mode:      s.mode,
		Settings:  s.settings,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Reason:    string(s.reason),
		Questions: s.turnIndex,
		Turns:     transcript,
		Feedback:  fb,
	}
	s.mu.Unlock()

	if s.deps.Archiver == nil {
		return
	}
	if err := s.deps.Archiver.Archive(ctx, rec); err != nil {
		s.logger.Warn("archive interview failed", "error", err)
	}
}

func (s *Session) summarize(ctx context.Context, transcript []model.Turn) model.Feedback {
	fb, err := s.deps.Feedback.Summarize(ctx, transcript, s.role)
	if err != nil {
		s.logger.Warn("feedback generation failed, using defaults", "error", err)
		return model.DefaultFeedback()
	}
	return fb
}

// RequestFeedback generates feedback for the transcript so far without
// ending the session. Once the session has ended it re-sends the final
// feedback if it is ready and otherwise does nothing.
func (s *Session) RequestFeedback() {
	s.mu.Lock()
	if !s.active {
		if s.feedback != nil {
			s.emitLocked(EventFeedback, *s.feedback)
		}
		s.mu.Unlock()
		return
	}
	transcript := append([]model.Turn(nil), s.turns...)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.bg, s.cfg.FeedbackTimeout)
		defer cancel()

		fb := s.summarize(ctx, transcript)
		s.mu.Lock()
		s.emitLocked(EventFeedback, fb)
		s.mu.Unlock()
	}()
}

// Wait blocks until the clock, the turn worker and any feedback work have
// finished. It only returns after End.
func (s *Session) Wait() {
	<-s.done
	s.wg.Wait()
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) Transcript() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Turn(nil), s.turns...)
}

// Feedback returns the end-of-interview feedback once it is ready.
func (s *Session) Feedback() (model.Feedback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == nil {
		return model.Feedback{}, false
	}
	return *s.feedback, true
}

func (s *Session) appendAssistant(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.appendLocked(model.SpeakerAssistant, content, s.cfg.Now())
	}
}

func (s *Session) appendLocked(speaker model.Speaker, content string, now time.Time) model.Turn {
	turn := model.NewTurn(speaker, content, now)
	s.turns = append(s.turns, turn)
	if speaker == model.SpeakerAssistant {
		s.lastAssistantAt = now
	}
	s.emitLocked(EventMessage, turn)
	return turn
}

func (s *Session) emitLocked(event string, payload any) {
	if s.muted {
		return
	}
	s.emitter.Emit(event, payload)
}

// lastQuestionLocked finds the assistant turn answered by the newest user
// turn, looking only at the last two entries.
func (s *Session) lastQuestionLocked() string {
	start := max(0, len(s.turns)-2)
	for _, t := range s.turns[start:] {
		if t.Speaker == model.SpeakerAssistant {
			return t.Content
		}
	}
	return ""
}

func (s *Session) historyLocked() string {
	start := max(0, len(s.turns)-historyTurns)
	lines := make([]string, 0, historyTurns)
	for _, t := range s.turns[start:] {
		lines = append(lines, string(t.Speaker)+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

func (s *Session) stateLocked() State {
	elapsed := s.elapsed
	if s.active {
		elapsed = s.cfg.Now().Sub(s.startedAt)
	}
	return State{
		SessionID:         s.id,
		Role:              s.role,
		Mode:              s.mode,
		Config:            s.settings,
		CurrentQuestion:   s.turnIndex,
		ElapsedSeconds:    int(elapsed / time.Second),
		TargetSeconds:     int(s.target / time.Second),
		Pattern:           s.current.Pattern,
		PatternConfidence: s.current.Confidence,
		Active:            s.active,
		Streaming:         s.voice != nil,
	}
}
