package model

type Depth string

const (
	DepthShallow  Depth = "shallow"
	DepthModerate Depth = "moderate"
	DepthDeep     Depth = "deep"
)

// Ordinal maps depth onto 1..3. Unknown values count as shallow.
func (d Depth) Ordinal() int {
	switch d {
	case DepthDeep:
		return 3
	case DepthModerate:
		return 2
	default:
		return 1
	}
}

type Comprehension string

const (
	ComprehensionConfused Comprehension = "confused"
	ComprehensionPartial  Comprehension = "partial"
	ComprehensionClear    Comprehension = "clear"
)

// Evaluation scores a single answer. Scores are on a 0-10 scale.
type Evaluation struct {
	Quality       float64       `json:"quality"`
	Depth         Depth         `json:"depth"`
	Clarity       float64       `json:"clarity"`
	Relevance     float64       `json:"relevance"`
	OffTopic      bool          `json:"is_off_topic"`
	Comprehension Comprehension `json:"comprehension_level"`
	NeedsFollowUp bool          `json:"needs_follow_up"`
}

// NeutralEvaluation stands in for an answer the evaluator could not score.
func NeutralEvaluation() Evaluation {
	return Evaluation{
		Quality:       5,
		Depth:         DepthModerate,
		Clarity:       5,
		Relevance:     5,
		Comprehension: ComprehensionPartial,
	}
}

type Category string

const (
	CategoryTechnical  Category = "Technical"
	CategoryBehavioral Category = "Behavioral"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

type Question struct {
	Text       string     `json:"question"`
	Category   Category   `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
}

const FallbackFollowUp = "Could you elaborate on that a bit more?"

// FallbackQuestion is asked whenever question generation fails or returns
// something unusable.
func FallbackQuestion() Question {
	return Question{
		Text:       "Tell me about a challenging project you worked on.",
		Category:   CategoryTechnical,
		Difficulty: DifficultyMedium,
	}
}

// Feedback is the end-of-interview assessment.
type Feedback struct {
	Communication  float64  `json:"communication"`
	TechnicalDepth float64  `json:"technical_depth"`
	ProblemSolving float64  `json:"problem_solving"`
	Confidence     float64  `json:"confidence"`
	Overall        float64  `json:"overall_score"`
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	Narrative      string   `json:"detailed_feedback"`
	Incomplete     bool     `json:"incomplete"`
}

func DefaultFeedback() Feedback {
	return Feedback{
		Communication:  7.0,
		TechnicalDepth: 6.5,
		ProblemSolving: 7.2,
		Confidence:     7.0,
		Overall:        6.9,
		Strengths: []string{
			"Demonstrated clear communication throughout the interview",
			"Showed willingness to engage with questions",
			"Maintained professional demeanor",
		},
		Improvements: []string{
			"Provide more specific examples from past experiences",
			"Dive deeper into technical implementation details",
			"Structure answers using the STAR method for behavioral questions",
		},
		Narrative: "Your interview performance showed good foundational understanding. " +
			"You communicated clearly and stayed engaged throughout the conversation. " +
			"To strengthen future interviews, focus on providing concrete examples with measurable outcomes, " +
			"and consider going deeper into the technical aspects of your work.",
	}
}

// IncompleteFeedback is returned when the candidate never gave a substantive
// answer. All scores are zero.
func IncompleteFeedback() Feedback {
	return Feedback{
		Strengths: []string{},
		Improvements: []string{
			"Complete the full interview to receive accurate feedback",
			"Answer questions with detailed responses",
			"Engage with the interviewer throughout the session",
		},
		Narrative: "The interview was ended early before any substantial responses could be evaluated. " +
			"To receive meaningful feedback, please complete a full interview session with detailed answers to the questions asked.",
		Incomplete: true,
	}
}

// Insights are the hints extracted from a job description and resume.
type Insights struct {
	Skills           []string `json:"skills"`
	Responsibilities []string `json:"responsibilities"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
}
