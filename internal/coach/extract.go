package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/model"
)

const documentLimit = 2000

const jobDescriptionPrompt = `Read this job description for a %s position and list what the interview should probe.

Job description:
%s

Reply with a single JSON object:
{"required_skills": ["skill", "..."], "key_responsibilities": ["responsibility", "..."]}`

const resumePrompt = `Read this resume from a candidate for a %s position and note where the interview should dig in.

Resume:
%s

Reply with a single JSON object:
{"strengths": ["strength", "..."], "weaknesses": ["gap or weakness", "..."]}`

// Extract reads the job description and resume in parallel. Empty documents
// are skipped. Slices in the result are never nil.
func (c *Coach) Extract(ctx context.Context, jobDescription, resume string, role model.JobRole) (model.Insights, error) {
	insights := model.Insights{
		Skills:           []string{},
		Responsibilities: []string{},
		Strengths:        []string{},
		Weaknesses:       []string{},
	}

	g, gctx := errgroup.WithContext(ctx)
	if jd := strings.TrimSpace(jobDescription); jd != "" {
		g.Go(func() error {
			var r struct {
				Skills           []string `json:"required_skills"`
				Responsibilities []string `json:"key_responsibilities"`
			}
			if err := c.extractInto(gctx, fmt.Sprintf(jobDescriptionPrompt, role, truncate(jd, documentLimit)), &r); err != nil {
				return fmt.Errorf("job description: %w", err)
			}
			insights.Skills = nonNil(r.Skills)
			insights.Responsibilities = nonNil(r.Responsibilities)
			return nil
		})
	}
	if cv := strings.TrimSpace(resume); cv != "" {
		g.Go(func() error {
			var r struct {
				Strengths  []string `json:"strengths"`
				Weaknesses []string `json:"weaknesses"`
			}
			if err := c.extractInto(gctx, fmt.Sprintf(resumePrompt, role, truncate(cv, documentLimit)), &r); err != nil {
				return fmt.Errorf("resume: %w", err)
			}
			insights.Strengths = nonNil(r.Strengths)
			insights.Weaknesses = nonNil(r.Weaknesses)
			return nil
		})
	}

	err := g.Wait()
	return insights, err
}

func (c *Coach) extractInto(ctx context.Context, prompt string, out any) error {
	req := llm.Prompt("", prompt)
	req.JSON = true
	req.MaxTokens = 800

	reply, err := c.complete(ctx, kindExtract, req, true)
	if err != nil {
		return err
	}
	raw, err := extractJSON(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
