package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/model"
	"github.com/sjawhar/interview-coach/internal/pattern"
)

const (
	historyLimit      = 600
	minHistory        = 50
	maxSkills         = 5
	maxResponsibility = 3
)

type QuestionRequest struct {
	Role             model.JobRole
	History          string
	Pattern          pattern.Pattern
	Skills           []string
	Responsibilities []string
}

type guidance struct {
	tone    string
	opening string
}

var patternGuidance = map[pattern.Pattern]guidance{
	pattern.Confused: {
		tone:    "The candidate seems unsure. Be supportive, ask a simpler question and spell out what a good answer covers.",
		opening: "Open with reassurance, for example \"No worries, let me ask something simpler.\"",
	},
	pattern.Efficient: {
		tone:    "The candidate answers quickly and well. Keep momentum with a focused, harder question.",
		opening: "Open briefly, for example \"Great, quick next one.\"",
	},
	pattern.Chatty: {
		tone:    "The candidate tends to wander. Ask a specific, narrowly scoped question.",
		opening: "Open by steering back, for example \"Thanks! Let's focus on something specific.\"",
	},
	pattern.EdgeCase: {
		tone:    "The candidate's replies have been unrelated to the interview. Redirect politely but firmly.",
		opening: "Open with \"I need to stay focused on the interview. Let me ask...\"",
	},
}

var defaultGuidance = guidance{
	tone:    "Ask a moderate question. Be friendly, professional and supportive.",
	opening: "Open with a short acknowledgement such as \"That's helpful. Let me ask about...\"",
}

const questionPrompt = `You are a friendly, conversational interviewer for a %s position. %s

%s

Prefer practical, real-world situations over theory. Vary topics across the role: debugging, design decisions, collaboration, stakeholders, tooling and delivery.%s

%s

Keep the whole question under 250 characters. Reply with a single JSON object:
{"question": "<short acknowledgement and question>", "category": "Technical" or "Behavioral", "difficulty": "Easy", "Medium" or "Hard"}`

// NextQuestion asks the model for a new question shaped by the candidate's
// detected pattern and any job description hints.
func (c *Coach) NextQuestion(ctx context.Context, req QuestionRequest) (model.Question, error) {
	g, ok := patternGuidance[req.Pattern]
	if !ok {
		g = defaultGuidance
	}

	recent := tail(req.History, historyLimit)
	framing := "This is the beginning of the interview."
	if len([]rune(recent)) > minHistory {
		framing = "Recent conversation:\n" + recent +
			"\n\nAcknowledge their last answer briefly, then ask the next question. Make it easier if they struggled and harder if they excelled."
	}

	var hints strings.Builder
	if len(req.Skills) > 0 {
		fmt.Fprintf(&hints, "\n\nRequired skills: %s. Test these specifically.", strings.Join(first(req.Skills, maxSkills), ", "))
	}
	if len(req.Responsibilities) > 0 {
		fmt.Fprintf(&hints, "\nKey responsibilities: %s. Ask about relevant experience.", strings.Join(first(req.Responsibilities, maxResponsibility), ", "))
	}

	prompt := fmt.Sprintf(questionPrompt, req.Role, g.tone, framing, hints.String(), g.opening)
	llmReq := llm.Prompt("", prompt)
	llmReq.JSON = true
	llmReq.MaxTokens = 400

	reply, err := c.complete(ctx, kindQuestion, llmReq, false)
	if err != nil {
		return model.FallbackQuestion(), err
	}
	q, err := parseQuestion(reply)
	if err != nil {
		return model.FallbackQuestion(), fmt.Errorf("parse question: %w", err)
	}
	return q, nil
}

func parseQuestion(reply string) (model.Question, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return model.Question{}, err
	}
	var q model.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return model.Question{}, err
	}

	fallback := model.FallbackQuestion()
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		q.Text = fallback.Text
	}
	switch q.Category {
	case model.CategoryTechnical, model.CategoryBehavioral:
	default:
		q.Category = fallback.Category
	}
	switch q.Difficulty {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		q.Difficulty = fallback.Difficulty
	}
	return q, nil
}

const followUpPrompt = `The candidate gave a short or incomplete answer in a %s interview. Ask one friendly clarifying follow-up to draw out more detail.

Original question: %q
Their answer: %q

Examples of tone: "Can you elaborate on that a bit more?", "Could you walk me through your specific approach?"

Reply with the follow-up question only, under 150 characters.`

func (c *Coach) FollowUp(ctx context.Context, question, answer string, role model.JobRole) (string, error) {
	prompt := fmt.Sprintf(followUpPrompt, role, truncate(question, 200), truncate(answer, 200))
	req := llm.Prompt("", prompt)
	req.MaxTokens = 120

	reply, err := c.complete(ctx, kindFollowUp, req, false)
	if err != nil {
		return model.FallbackFollowUp, err
	}
	reply = strings.Trim(strings.TrimSpace(reply), `"`)
	if reply == "" {
		return model.FallbackFollowUp, nil
	}
	return reply, nil
}

func first(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
