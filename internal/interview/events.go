package interview

import (
	"github.com/sjawhar/interview-coach/internal/model"
	"github.com/sjawhar/interview-coach/internal/pattern"
)

// Outbound event names.
const (
	EventState           = "interview_state"
	EventMessage         = "new_message"
	EventQuestion        = "next_question"
	EventFeedback        = "feedback_ready"
	EventEnded           = "interview_ended"
	EventInterim         = "interim_transcript"
	EventFinal           = "final_transcript"
	EventCheckingSilence = "agent_checking_silence"
)

type Reason string

const (
	ReasonCommand    Reason = "command"
	ReasonTimeout    Reason = "timeout"
	ReasonDisconnect Reason = "disconnect"
	ReasonRestart    Reason = "restart"
	ReasonShutdown   Reason = "shutdown"
)

// State is the session snapshot sent as interview_state.
type State struct {
	SessionID         string          `json:"session_id"`
	Role              model.JobRole   `json:"role"`
	Mode              model.Mode      `json:"mode"`
	Config            model.Settings  `json:"config"`
	CurrentQuestion   int             `json:"current_question"`
	ElapsedSeconds    int             `json:"elapsed_time"`
	TargetSeconds     int             `json:"target_duration"`
	Pattern           pattern.Pattern `json:"detected_pattern"`
	PatternConfidence float64         `json:"pattern_confidence"`
	Active            bool            `json:"is_active"`
	Streaming         bool            `json:"streaming"`
}

type QuestionEvent struct {
	ID         string           `json:"id"`
	Role       model.JobRole    `json:"role"`
	Category   model.Category   `json:"category"`
	Difficulty model.Difficulty `json:"difficulty"`
	Question   string           `json:"question"`
}

type EndedEvent struct {
	Reason Reason `json:"reason"`
}

type TranscriptEvent struct {
	Text string `json:"text"`
}
