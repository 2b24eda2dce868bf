// Package pattern classifies a candidate's interaction style from the
// signals left by each evaluated answer.
package pattern

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sjawhar/interview-coach/internal/model"
)

type Pattern string

const (
	Unknown   Pattern = "unknown"
	Confused  Pattern = "confused"
	Efficient Pattern = "efficient"
	Chatty    Pattern = "chatty"
	EdgeCase  Pattern = "edge_case"
)

const (
	minSignals   = 2
	recentWindow = 3
)

// Signal is the classifier input derived from one answer and its evaluation.
type Signal struct {
	Length       int
	ResponseTime time.Duration
	Clarity      float64
	OffTopic     float64
	Questions    int
	Depth        int
}

func NewSignal(eval model.Evaluation, responseTime time.Duration, text string) Signal {
	offTopic := 0.0
	if eval.OffTopic {
		offTopic = 1
	}
	return Signal{
		Length:       utf8.RuneCountInString(text),
		ResponseTime: responseTime,
		Clarity:      eval.Clarity,
		OffTopic:     offTopic,
		Questions:    strings.Count(text, "?"),
		Depth:        eval.Depth.Ordinal(),
	}
}

// Result is a classification with its confidence in [0, 1].
type Result struct {
	Pattern    Pattern `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

type means struct {
	length   float64
	clarity  float64
	offTopic float64
	question float64
	depth    float64
}

// rule matches when the recent means satisfy it. Confidence grows with the
// total number of signals and is capped per rule.
type rule struct {
	pattern Pattern
	matches func(means) bool
	base    float64
	step    float64
	cap     float64
}

func (r rule) confidence(total int) float64 {
	return min(r.cap, r.base+r.step*float64(total))
}

// rules are evaluated in order and the first match wins.
var rules = []rule{
	{
		pattern: EdgeCase,
		matches: func(m means) bool { return m.length < 15 || m.clarity < 2.5 },
		base:    0.5,
		step:    0.1,
		cap:     0.85,
	},
	{
		pattern: Confused,
		matches: func(m means) bool {
			return (m.clarity < 6 && m.question > 0.5) || (m.clarity < 5 && m.depth < 1.8)
		},
		base:    0.6,
		step:    0.1,
		cap:     0.9,
	},
	{
		pattern: Efficient,
		matches: func(m means) bool {
			return m.length > 40 && m.length < 250 && m.clarity >= 7 && m.depth >= 2 && m.offTopic < 0.2
		},
		base:    0.7,
		step:    0.08,
		cap:     0.95,
	},
	{
		pattern: Chatty,
		matches: func(m means) bool { return m.length > 400 || m.offTopic > 0.4 },
		base:    0.6,
		step:    0.1,
		cap:     0.88,
	},
}

// Classifier keeps every signal for the life of a session. It is not safe
// for concurrent use; the owning session serializes access.
type Classifier struct {
	signals []Signal
	current Result
}

func NewClassifier() *Classifier {
	return &Classifier{current: Result{Pattern: Unknown}}
}

// Add records a signal and reclassifies.
func (c *Classifier) Add(eval model.Evaluation, responseTime time.Duration, text string) Result {
	c.signals = append(c.signals, NewSignal(eval, responseTime, text))
	c.current = classify(c.signals)
	return c.current
}

// Classify returns the classification for the signals seen so far.
func (c *Classifier) Classify() Result {
	return c.current
}

func (c *Classifier) Len() int {
	return len(c.signals)
}

func classify(signals []Signal) Result {
	if len(signals) < minSignals {
		return Result{Pattern: Unknown}
	}

	m := recentMeans(signals)
	for _, r := range rules {
		if r.matches(m) {
			return Result{Pattern: r.pattern, Confidence: r.confidence(len(signals))}
		}
	}
	return Result{Pattern: Unknown}
}

func recentMeans(signals []Signal) means {
	recent := signals[max(0, len(signals)-recentWindow):]

	var m means
	for _, s := range recent {
		m.length += float64(s.Length)
		m.clarity += s.Clarity
		m.offTopic += s.OffTopic
		m.question += float64(s.Questions)
		m.depth += float64(s.Depth)
	}

	n := float64(len(recent))
	m.length /= n
	m.clarity /= n
	m.offTopic /= n
	m.question /= n
	m.depth /= n
	return m
}
