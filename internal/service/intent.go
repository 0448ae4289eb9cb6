package service

import "strings"

// Intent is the coarse kind of question asked, recorded for analytics.
type Intent string

const (
	IntentOutline Intent = "outline"
	IntentContent Intent = "content"
	IntentGeneral Intent = "general"
)

var outlineKeywords = []string{
	"outline", "syllabus", "lessons", "lesson list", "how many lessons",
	"what lessons", "structure", "overview", "table of contents", "modules",
	"course link", "instructor", "who teaches", "taught by", "what does the course cover",
}

var contentKeywords = []string{
	"lesson", "course", "explain", "example", "how do", "how does", "how to",
	"what is", "what are", "implement", "code", "covered", "discussed",
	"mentioned", "according to", "in the video", "chapter", "transcript",
}

// IntentResult contains the classification and its keyword scores.
type IntentResult struct {
	Intent       Intent
	Confidence   float64
	OutlineScore int
	ContentScore int
}

// IntentClassifier sorts questions by keyword overlap. It does not influence
// which tools the model calls.
type IntentClassifier struct{}

func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{}
}

// Classify analyses the question and returns its most likely intent.
func (c *IntentClassifier) Classify(question string) IntentResult {
	lower := strings.ToLower(question)

	outline := 0
	content := 0
	for _, kw := range outlineKeywords {
		if strings.Contains(lower, kw) {
			outline++
		}
	}
	for _, kw := range contentKeywords {
		if strings.Contains(lower, kw) {
			content++
		}
	}

	total := outline + content
	switch {
	case total == 0:
		return IntentResult{Intent: IntentGeneral, Confidence: 0.5}
	case outline >= content:
		return IntentResult{
			Intent:       IntentOutline,
			Confidence:   float64(outline) / float64(total),
			OutlineScore: outline,
			ContentScore: content,
		}
	default:
		return IntentResult{
			Intent:       IntentContent,
			Confidence:   float64(content) / float64(total),
			OutlineScore: outline,
			ContentScore: content,
		}
	}
}
