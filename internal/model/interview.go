// Package model holds the domain types shared by the interview orchestrator,
// its collaborators and the wire surface.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// Turn is one immutable message in an interview transcript.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// NewTurn stamps a turn with a time-ordered id.
func NewTurn(speaker Speaker, content string, now time.Time) Turn {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Turn{ID: id.String(), Speaker: speaker, Content: content, CreatedAt: now.UTC()}
}

type JobRole string

const (
	RoleSDE         JobRole = "SDE"
	RoleDevOps      JobRole = "DevOps"
	RoleDataAnalyst JobRole = "Data Analyst"
	RoleBA          JobRole = "BA"
	RolePM          JobRole = "PM"
	RoleSales       JobRole = "Sales"
	RoleSupport     JobRole = "Support"
	RoleRetail      JobRole = "Retail"
)

var jobRoles = []JobRole{RoleSDE, RoleDevOps, RoleDataAnalyst, RoleBA, RolePM, RoleSales, RoleSupport, RoleRetail}

func ParseJobRole(raw string) (JobRole, error) {
	trimmed := strings.TrimSpace(raw)
	for _, r := range jobRoles {
		if strings.EqualFold(string(r), trimmed) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown job role %q", raw)
}

type Mode string

const (
	ModeVoice Mode = "voice"
	ModeChat  Mode = "chat"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeVoice:
		return ModeVoice, nil
	case ModeChat, "":
		return ModeChat, nil
	default:
		return "", fmt.Errorf("unknown interview mode %q", raw)
	}
}

type InterviewType string

const (
	TypeTechnical  InterviewType = "technical"
	TypeBehavioral InterviewType = "behavioral"
	TypeMixed      InterviewType = "mixed"
	TypeRapidFire  InterviewType = "rapid-fire"
)

type ExperienceLevel string

const (
	LevelEntry  ExperienceLevel = "entry"
	LevelMid    ExperienceLevel = "mid"
	LevelSenior ExperienceLevel = "senior"
	LevelLead   ExperienceLevel = "lead"
)

// DurationChoice is the requested interview length: a whole number of
// minutes or "custom". Clients send it either as a JSON number or a string.
type DurationChoice string

const DurationCustom DurationChoice = "custom"

func (d *DurationChoice) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*d = DurationChoice(strconv.Itoa(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a number of minutes or %q", DurationCustom)
	}
	*d = DurationChoice(strings.ToLower(strings.TrimSpace(s)))
	return nil
}

// Settings is the per-interview configuration chosen by the candidate.
type Settings struct {
	Duration                  DurationChoice  `json:"duration"`
	CustomDurationMinutes     int             `json:"custom_duration_minutes,omitempty"`
	InterviewType             InterviewType   `json:"interview_type,omitempty"`
	ExperienceLevel           ExperienceLevel `json:"experience_level,omitempty"`
	ExtractedSkills           []string        `json:"extracted_skills,omitempty"`
	ExtractedResponsibilities []string        `json:"extracted_responsibilities,omitempty"`
}

// MaxInterviewMinutes caps any requested interview length.
const MaxInterviewMinutes = 24 * 60

// Target resolves the interview length. Custom or unparseable choices use
// the custom minutes when set, otherwise defaultMinutes. The result never
// exceeds MaxInterviewMinutes.
func (s Settings) Target(defaultMinutes int) time.Duration {
	if defaultMinutes <= 0 {
		defaultMinutes = 20
	}
	minutes := defaultMinutes
	if n, err := strconv.Atoi(string(s.Duration)); err == nil && n > 0 {
		minutes = n
	} else if s.CustomDurationMinutes > 0 {
		minutes = s.CustomDurationMinutes
	}
	if minutes > MaxInterviewMinutes {
		minutes = MaxInterviewMinutes
	}
	return time.Duration(minutes) * time.Minute
}
