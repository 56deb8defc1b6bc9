package contextengine

import "github.com/iago/extensao-whatsapp-back/internal/domain"

// ToneProfile derives the assistant's register for the current message
// from the tenant's personalization config and the detected sentiment.
type ToneProfile struct {
	Formality     int
	Empathy       int
	HumorEnabled  bool
}

// RuntimeContext is the fully assembled context the worker hands to the
// LLM client and template renderer for a single inbound message.
type RuntimeContext struct {
	Conversation    domain.Conversation
	Profile         domain.CustomerContext
	PersonalizationConfig domain.PersonalizationConfig
	Sentiment       Sentiment
	SentimentScore  float64
	Intention       Intention
	FeedbackDetected bool
	Tone            ToneProfile
	DialogueSummary string
	SystemPrompt    string
	TemplateName    string
	TemplateVars    map[string]string
}
