package security

import "regexp"

// SafeReply is returned in place of an LLM call whenever the inbound text
// matches an injection pattern.
const SafeReply = "Desculpe, não posso executar esse tipo de comando."

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)forget previous instructions`),
	regexp.MustCompile(`(?i)ignore all (prior|previous)`),
	regexp.MustCompile(`(?i)\b(curl|python|system|delete|rm|exec|sudo)\b`),
}

// DetectPromptInjection reports whether text matches any known
// prompt-injection pattern.
func DetectPromptInjection(text string) bool {
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
