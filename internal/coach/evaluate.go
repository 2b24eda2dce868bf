package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/model"
)

// Utterances matching these are instructions to the interviewer, not answers.
var commandLike = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(please\s+)?(end|stop|finish|conclude|terminate)\s+(the\s+|this\s+)?(interview|session)\b`),
	regexp.MustCompile(`(?i)\b(let'?s|lets)\s+(end|stop|finish)\b`),
	regexp.MustCompile(`(?i)\b(i['’]?m|i\s+am|we['’]?re|that['’]?s)\s+(done|finished|all)\b`),
	regexp.MustCompile(`(?i)\b(show|display|give|see)\s+(me\s+)?(the\s+)?(feedback|results|score|evaluation)\b`),
	regexp.MustCompile(`(?i)\bhow\s+(did\s+)?i\s+(do|perform)\b`),
}

func looksLikeCommand(answer string) bool {
	for _, re := range commandLike {
		if re.MatchString(answer) {
			return true
		}
	}
	return false
}

func commandEvaluation() model.Evaluation {
	return model.Evaluation{
		Quality:       7,
		Depth:         model.DepthModerate,
		Clarity:       8,
		Relevance:     10,
		Comprehension: model.ComprehensionClear,
	}
}

const evaluatePrompt = `You score answers in a mock %s job interview. Reply with a single JSON object and nothing else.

Question: %q
Answer: %q

Fields:
- "quality": 0-10, overall answer quality
- "depth": "shallow", "moderate" or "deep"
- "clarity": 0-10, how clear and structured the answer is
- "relevance": 0-10, how on-topic the answer is
- "is_off_topic": true only when the answer has nothing to do with the interview (weather, sports, personal chatter). Any professional experience, skill or technical detail is on topic.
- "comprehension_level": "confused", "partial" or "clear"
- "needs_follow_up": true when the answer is short, vague or incomplete (under about 20 words or missing detail)`

// Evaluate scores one answer. Command-like answers are never sent to the
// model.
func (c *Coach) Evaluate(ctx context.Context, answer, question string, role model.JobRole) (model.Evaluation, error) {
	if looksLikeCommand(answer) {
		return commandEvaluation(), nil
	}

	prompt := fmt.Sprintf(evaluatePrompt, role, truncate(question, 300), truncate(answer, 500))
	req := llm.Prompt("", prompt)
	req.JSON = true
	req.MaxTokens = 300

	reply, err := c.complete(ctx, kindEvaluate, req, false)
	if err != nil {
		return model.NeutralEvaluation(), err
	}
	eval, err := parseEvaluation(reply)
	if err != nil {
		return model.NeutralEvaluation(), fmt.Errorf("parse evaluation: %w", err)
	}
	return eval, nil
}

type evaluationReply struct {
	Quality       *number `json:"quality"`
	Depth         string  `json:"depth"`
	Clarity       *number `json:"clarity"`
	Relevance     *number `json:"relevance"`
	OffTopic      bool    `json:"is_off_topic"`
	Comprehension string  `json:"comprehension_level"`
	NeedsFollowUp bool    `json:"needs_follow_up"`
}

func parseEvaluation(reply string) (model.Evaluation, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return model.Evaluation{}, err
	}
	var r evaluationReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return model.Evaluation{}, err
	}

	eval := model.NeutralEvaluation()
	eval.Quality = r.Quality.or(eval.Quality)
	eval.Clarity = r.Clarity.or(eval.Clarity)
	eval.Relevance = r.Relevance.or(eval.Relevance)
	eval.OffTopic = r.OffTopic
	eval.NeedsFollowUp = r.NeedsFollowUp

	switch d := model.Depth(strings.ToLower(r.Depth)); d {
	case model.DepthShallow, model.DepthModerate, model.DepthDeep:
		eval.Depth = d
	}
	switch cl := model.Comprehension(strings.ToLower(r.Comprehension)); cl {
	case model.ComprehensionConfused, model.ComprehensionPartial, model.ComprehensionClear:
		eval.Comprehension = cl
	}
	return eval, nil
}

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid score %s", data)
	}
	*n = number(v)
	return nil
}

// or returns the clamped score, or def when the field was absent.
func (n *number) or(def float64) float64 {
	if n == nil {
		return def
	}
	return clampScore(float64(*n))
}
