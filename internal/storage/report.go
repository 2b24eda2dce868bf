package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/interview-coach/internal/model"
)

// ReportWriter renders archived interviews as markdown files.
type ReportWriter struct {
	dir string
	mu  sync.Mutex
}

func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// Write renders rec into <date>-<role>-<id>.md and returns the path.
func (w *ReportWriter) Write(id string, rec model.Record) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, ReportName(id, rec)+".md")
	if err := os.WriteFile(path, []byte(RenderReport(rec)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func ReportName(id string, rec model.Record) string {
	role := strings.ToLower(strings.ReplaceAll(string(rec.Role), " ", "-"))
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s-%s", rec.StartedAt.UTC().Format("2006-01-02"), role, short)
}

func RenderReport(rec model.Record) string {
	var b strings.Builder
	fb := rec.Feedback

	fmt.Fprintf(&b, "# %s interview, %s\n\n", rec.Role, rec.StartedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- Mode: %s\n", rec.Mode)
	fmt.Fprintf(&b, "- Duration: %s\n", rec.Duration().Round(time.Second))
	fmt.Fprintf(&b, "- Questions: %d\n", rec.Questions)
	fmt.Fprintf(&b, "- Ended: %s\n\n", rec.Reason)

	b.WriteString("## Feedback\n\n")
	if fb.Incomplete {
		b.WriteString("_Incomplete interview._\n\n")
	}
	b.WriteString("| Area | Score |\n|---|---|\n")
	fmt.Fprintf(&b, "| Communication | %.1f |\n", fb.Communication)
	fmt.Fprintf(&b, "| Technical depth | %.1f |\n", fb.TechnicalDepth)
	fmt.Fprintf(&b, "| Problem solving | %.1f |\n", fb.ProblemSolving)
	fmt.Fprintf(&b, "| Confidence | %.1f |\n", fb.Confidence)
	fmt.Fprintf(&b, "| **Overall** | **%.1f** |\n\n", fb.Overall)

	writeList(&b, "Strengths", fb.Strengths)
	writeList(&b, "Improvements", fb.Improvements)
	if fb.Narrative != "" {
		b.WriteString(fb.Narrative)
		b.WriteString("\n\n")
	}

	b.WriteString("## Transcript\n\n")
	for _, turn := range rec.Turns {
		fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", turn.CreatedAt.UTC().Format("15:04:05"), speakerLabel(turn.Speaker), turn.Content)
	}
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func speakerLabel(s model.Speaker) string {
	switch s {
	case model.SpeakerUser:
		return "Candidate"
	case model.SpeakerAssistant:
		return "Interviewer"
	default:
		return "System"
	}
}
