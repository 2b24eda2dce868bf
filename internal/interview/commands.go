package interview

import "strings"

type Command int

const (
	CommandNone Command = iota
	CommandEnd
	CommandFeedback
)

func (c Command) String() string {
	switch c {
	case CommandEnd:
		return "end"
	case CommandFeedback:
		return "feedback"
	default:
		return "none"
	}
}

var endPhrases = []string{
	"end interview", "end the interview", "end this interview",
	"stop interview", "stop the interview", "stop this interview",
	"finish interview", "finish the interview", "finish this interview",
	"i'm done", "im done", "i am done",
	"that's all", "thats all",
	"we're done", "were done",
	"let's end", "lets end", "please end",
}

var feedbackPhrases = []string{
	"show feedback", "give feedback", "my feedback", "how did i do", "show me feedback",
}

// Acknowledgements like these are answers, not commands.
var continuationPhrases = []string{
	"ready", "yes", "continue", "go ahead", "let's continue", "lets continue",
}

// commandRules are checked in order and the first rule with a matching
// phrase decides. Termination wins over a feedback request when both
// appear, and continuation phrases are recognized as plain answers.
var commandRules = []struct {
	phrases []string
	command Command
}{
	{endPhrases, CommandEnd},
	{feedbackPhrases, CommandFeedback},
	{continuationPhrases, CommandNone},
}

// MatchCommand checks an utterance against the spoken command phrases.
func MatchCommand(utterance string) Command {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return CommandNone
	}
	for _, rule := range commandRules {
		if containsAny(text, rule.phrases) {
			return rule.command
		}
	}
	return CommandNone
}

// ParseExplicit maps a slash command from the client. Anything other than
// /end and /feedback is CommandNone.
func ParseExplicit(command string) Command {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/end":
		return CommandEnd
	case "/feedback":
		return CommandFeedback
	default:
		return CommandNone
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
