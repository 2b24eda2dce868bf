package interview

import (
	"context"
	"io"

	"github.com/sjawhar/interview-coach/internal/coach"
	"github.com/sjawhar/interview-coach/internal/model"
)

type Evaluator interface {
	Evaluate(ctx context.Context, answer, question string, role model.JobRole) (model.Evaluation, error)
}

type QuestionGenerator interface {
	NextQuestion(ctx context.Context, req coach.QuestionRequest) (model.Question, error)
	FollowUp(ctx context.Context, question, answer string, role model.JobRole) (string, error)
}

type FeedbackGenerator interface {
	Summarize(ctx context.Context, transcript []model.Turn, role model.JobRole) (model.Feedback, error)
}

// Emitter delivers outbound events to the connection that owns a session.
// Sessions call Emit while holding their own lock, so implementations must
// not block and must not call back into the session.
type Emitter interface {
	Emit(event string, payload any)
}

type Archiver interface {
	Archive(ctx context.Context, rec model.Record) error
}

// Recorder captures the raw audio of one voice stream.
type Recorder interface {
	StartCapture(name string) (io.WriteCloser, error)
}

type EmitterFunc func(event string, payload any)

func (f EmitterFunc) Emit(event string, payload any) { f(event, payload) }
