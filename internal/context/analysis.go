package contextengine

import (
	"regexp"
	"strings"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// Sentiment is the clamped, thresholded polarity of a single message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Intention is the detected conversational act of a single message.
type Intention string

const (
	IntentionGreeting       Intention = "greeting"
	IntentionClosing        Intention = "closing"
	IntentionUrgency        Intention = "urgency"
	IntentionDoubt          Intention = "doubt"
	IntentionAcknowledgement Intention = "acknowledgement"
	IntentionConfirmation   Intention = "confirmation"
	IntentionGeneral        Intention = "follow_up"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+|[^\s\p{L}\p{N}]`)

// Tokenize lowercases text and splits it into word and punctuation/emoji
// tokens, matching the upstream tokenizer's treatment of punctuation and
// emoji as standalone tokens so marker lookups can match either.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// AnalyzeSentiment scores text with +1/-1 for every token equal to a
// marker and an additional +0.5/-0.5 bonus per marker found as a
// substring, clamps the total to [-5, 5], then buckets it at the +-0.5
// thresholds.
func AnalyzeSentiment(text string) (Sentiment, float64) {
	tokens := Tokenize(text)
	lower := strings.ToLower(text)

	score := 0.0
	tokenCounts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		tokenCounts[token]++
	}

	for _, marker := range positiveMarkers {
		score += float64(tokenCounts[marker])
		if strings.Contains(lower, marker) {
			score += 0.5
		}
	}
	for _, marker := range negativeMarkers {
		score -= float64(tokenCounts[marker])
		if strings.Contains(lower, marker) {
			score -= 0.5
		}
	}

	if score > 5 {
		score = 5
	}
	if score < -5 {
		score = -5
	}

	switch {
	case score > 0.5:
		return SentimentPositive, score
	case score < -0.5:
		return SentimentNegative, score
	default:
		return SentimentNeutral, score
	}
}

// DetectFeedback reports whether text asks for or supplies ratings
// feedback, by keyword presence.
func DetectFeedback(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range feedbackWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// DetectIntention classifies a single message's conversational act.
// history is the trimmed conversation window preceding text; a
// confirmation is only recognized when text is an exact short reply
// ("sim"/"isso"/"certo") answering a previous user turn, not an
// assistant one, matching the upstream classifier.
func DetectIntention(text string, history []domain.Message) Intention {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return IntentionGeneral
	}
	tokens := Tokenize(lower)

	for _, word := range greetingWords {
		if strings.Contains(lower, word) {
			return IntentionGreeting
		}
	}
	for _, word := range closingWords {
		if strings.Contains(lower, word) {
			return IntentionClosing
		}
	}
	for _, word := range urgencyWords {
		if strings.Contains(lower, word) {
			return IntentionUrgency
		}
	}

	if strings.Contains(lower, "?") {
		return IntentionDoubt
	}
	for _, token := range tokens {
		if questionWords[token] {
			return IntentionDoubt
		}
	}

	if len(tokens) > 0 && len(tokens) <= 2 && acknowledgementWords[tokens[0]] {
		return IntentionAcknowledgement
	}

	if confirmationWords[lower] && hasPriorUserTurn(history) {
		return IntentionConfirmation
	}

	return IntentionGeneral
}

func hasPriorUserTurn(history []domain.Message) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return true
		}
	}
	return false
}
