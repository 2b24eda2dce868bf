// Package observe holds the OpenTelemetry instruments recorded by interview
// sessions and collaborators, plus the Prometheus exporter bridge behind
// /metrics.
//
// Tests should build [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider] so instruments do not leak between tests.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/sjawhar/interview-coach"

// Turn outcomes.
const (
	OutcomeQuestion = "question"
	OutcomeFollowUp = "follow_up"
	OutcomeRedirect = "redirect"
	OutcomeCommand  = "command"
)

type Metrics struct {
	SessionsStarted metric.Int64Counter

	// SessionsEnded carries a "reason" attribute.
	SessionsEnded metric.Int64Counter

	// Turns carries an "outcome" attribute.
	Turns metric.Int64Counter

	SilenceChecks      metric.Int64Counter
	CollaboratorErrors metric.Int64Counter

	// CollaboratorDuration carries "kind" and "status" attributes.
	CollaboratorDuration metric.Float64Histogram

	ActiveSessions      metric.Int64UpDownCounter
	ActiveStreams       metric.Int64UpDownCounter
	HTTPRequestDuration metric.Float64Histogram
}

// LLM round trips are seconds long, so the buckets stretch further than a
// typical HTTP histogram.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("interview_coach.sessions.started",
		metric.WithDescription("Interview sessions started."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("interview_coach.sessions.ended",
		metric.WithDescription("Interview sessions ended by reason."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("interview_coach.turns",
		metric.WithDescription("Processed candidate answers by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SilenceChecks, err = m.Int64Counter("interview_coach.silence.checks",
		metric.WithDescription("Silence check-ins sent to candidates."),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorErrors, err = m.Int64Counter("interview_coach.collaborator.errors",
		metric.WithDescription("Collaborator failures replaced by defaults, by kind."),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorDuration, err = m.Float64Histogram("interview_coach.collaborator.duration",
		metric.WithDescription("Latency of collaborator calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("interview_coach.active_sessions",
		metric.WithDescription("Interview sessions currently running."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("interview_coach.active_streams",
		metric.WithDescription("Open speech transcription streams."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("interview_coach.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Discard returns instruments backed by a no-op provider.
func Discard() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

func (m *Metrics) SessionStarted(ctx context.Context) {
	m.SessionsStarted.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context, reason string) {
	m.SessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.ActiveSessions.Add(ctx, -1)
}

func (m *Metrics) Turn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) SilenceCheck(ctx context.Context) {
	m.SilenceChecks.Add(ctx, 1)
}

func (m *Metrics) StreamOpened(ctx context.Context) {
	m.ActiveStreams.Add(ctx, 1)
}

func (m *Metrics) StreamClosed(ctx context.Context) {
	m.ActiveStreams.Add(ctx, -1)
}

// Collaborator records one collaborator call. A non-nil err also counts
// toward CollaboratorErrors.
func (m *Metrics) Collaborator(ctx context.Context, kind string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.CollaboratorErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	m.CollaboratorDuration.Record(ctx, took.Seconds(),
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}
