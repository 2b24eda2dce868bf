package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/model"
)

const (
	transcriptLimit   = 2000
	substantiveAnswer = 20
)

const feedbackPrompt = `Review this mock %s interview and give the candidate constructive feedback.

Conversation:
%s

Score each area from 0 to 10 (decimals allowed). Reply with a single JSON object:
{
  "communication": <score>,
  "technical_depth": <score>,
  "problem_solving": <score>,
  "confidence": <score>,
  "overall_score": <score>,
  "strengths": ["specific strength", "..."],
  "improvements": ["specific area to improve", "..."],
  "detailed_feedback": "two or three sentence summary"
}`

// Summarize produces end-of-interview feedback. Interviews without a
// substantive answer get IncompleteFeedback and no model call.
func (c *Coach) Summarize(ctx context.Context, transcript []model.Turn, role model.JobRole) (model.Feedback, error) {
	if !substantive(transcript) {
		return model.IncompleteFeedback(), nil
	}

	prompt := fmt.Sprintf(feedbackPrompt, role, tail(FormatTranscript(transcript), transcriptLimit))
	req := llm.Prompt("", prompt)
	req.JSON = true
	req.MaxTokens = 1200

	reply, err := c.complete(ctx, kindFeedback, req, true)
	if err != nil {
		return model.DefaultFeedback(), err
	}
	fb, err := parseFeedback(reply)
	if err != nil {
		return model.DefaultFeedback(), fmt.Errorf("parse feedback: %w", err)
	}
	return fb, nil
}

// FormatTranscript renders turns as "ROLE: content" blocks.
func FormatTranscript(turns []model.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, strings.ToUpper(string(t.Speaker))+": "+t.Content)
	}
	return strings.Join(parts, "\n\n")
}

func substantive(turns []model.Turn) bool {
	users := 0
	long := false
	for _, t := range turns {
		if t.Speaker != model.SpeakerUser {
			continue
		}
		users++
		if len([]rune(strings.TrimSpace(t.Content))) > substantiveAnswer {
			long = true
		}
	}
	return long && users > 1
}

type feedbackReply struct {
	Communication  *number  `json:"communication"`
	TechnicalDepth *number  `json:"technical_depth"`
	ProblemSolving *number  `json:"problem_solving"`
	Confidence     *number  `json:"confidence"`
	Overall        *number  `json:"overall_score"`
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	Narrative      string   `json:"detailed_feedback"`
}

func parseFeedback(reply string) (model.Feedback, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return model.Feedback{}, err
	}
	var r feedbackReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return model.Feedback{}, err
	}

	// Fields the model left out take the same values as a failed call.
	def := model.DefaultFeedback()
	fb := model.Feedback{
		Communication:  r.Communication.or(def.Communication),
		TechnicalDepth: r.TechnicalDepth.or(def.TechnicalDepth),
		ProblemSolving: r.ProblemSolving.or(def.ProblemSolving),
		Confidence:     r.Confidence.or(def.Confidence),
		Overall:        r.Overall.or(def.Overall),
		Strengths:      r.Strengths,
		Improvements:   r.Improvements,
		Narrative:      strings.TrimSpace(r.Narrative),
	}
	if fb.Strengths == nil {
		fb.Strengths = def.Strengths
	}
	if fb.Improvements == nil {
		fb.Improvements = def.Improvements
	}
	if fb.Narrative == "" {
		fb.Narrative = def.Narrative
	}
	return fb, nil
}
