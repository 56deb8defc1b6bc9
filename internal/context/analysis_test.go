package contextengine

import (
	"testing"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

func TestAnalyzeSentimentThresholdsAreStrict(t *testing.T) {
	// "topo" contains the positive marker "top" as a substring but is not
	// the marker itself, so only the +0.5 substring bonus applies and the
	// score lands exactly at 0.5. The classifier requires score > 0.5, so
	// this must stay neutral rather than flip to positive.
	sentiment, score := AnalyzeSentiment("quero saber sobre o topo da lista")
	if score != 0.5 {
		t.Fatalf("expected score exactly 0.5 for this fixture, got %v", score)
	}
	if sentiment != SentimentNeutral {
		t.Fatalf("expected neutral at the 0.5 boundary, got %v", sentiment)
	}
}

func TestAnalyzeSentimentPositive(t *testing.T) {
	sentiment, score := AnalyzeSentiment("muito obrigado, adorei o atendimento")
	if sentiment != SentimentPositive {
		t.Fatalf("expected positive sentiment, got %v (score %v)", sentiment, score)
	}
}

func TestAnalyzeSentimentNegative(t *testing.T) {
	sentiment, score := AnalyzeSentiment("atendimento pessimo, quero cancelar")
	if sentiment != SentimentNegative {
		t.Fatalf("expected negative sentiment, got %v (score %v)", sentiment, score)
	}
}

func TestAnalyzeSentimentNeutralForPlainText(t *testing.T) {
	sentiment, _ := AnalyzeSentiment("quero saber o status do meu pedido")
	if sentiment != SentimentNeutral {
		t.Fatalf("expected neutral sentiment, got %v", sentiment)
	}
}

func TestAnalyzeSentimentClampsScore(t *testing.T) {
	_, score := AnalyzeSentiment("obrigado obrigado obrigado obrigado obrigado obrigado obrigado obrigado obrigado obrigado")
	if score != 5 {
		t.Fatalf("expected score clamped at 5, got %v", score)
	}
}

func TestDetectIntentionGreeting(t *testing.T) {
	if got := DetectIntention("Oi, tudo bem?", nil); got != IntentionGreeting {
		t.Fatalf("expected greeting to take priority over doubt, got %v", got)
	}
}

func TestDetectIntentionClosing(t *testing.T) {
	if got := DetectIntention("Valeu, ate mais", nil); got != IntentionClosing {
		t.Fatalf("expected closing intention, got %v", got)
	}
}

func TestDetectIntentionUrgency(t *testing.T) {
	if got := DetectIntention("preciso muito urgente de ajuda", nil); got != IntentionUrgency {
		t.Fatalf("expected urgency intention, got %v", got)
	}
}

func TestDetectIntentionDoubtByQuestionMark(t *testing.T) {
	if got := DetectIntention("isso resolve meu problema?", nil); got != IntentionDoubt {
		t.Fatalf("expected doubt intention from literal '?', got %v", got)
	}
}

func TestDetectIntentionDoubtByQuestionWordWithoutMark(t *testing.T) {
	if got := DetectIntention("quando chega meu pedido", nil); got != IntentionDoubt {
		t.Fatalf("expected doubt intention from question word, got %v", got)
	}
}

func TestDetectIntentionAcknowledgementShortReply(t *testing.T) {
	if got := DetectIntention("beleza", nil); got != IntentionAcknowledgement {
		t.Fatalf("expected acknowledgement, got %v", got)
	}
}

func TestDetectIntentionAcknowledgementRequiresShortMessage(t *testing.T) {
	// "sim" is the first token but the message has more than two tokens,
	// so this must not be classified as an acknowledgement.
	got := DetectIntention("sim claro tudo bem mesmo", nil)
	if got == IntentionAcknowledgement {
		t.Fatalf("expected acknowledgement to require <=2 tokens, got %v", got)
	}
}

func TestDetectIntentionConfirmationRequiresPriorUserTurn(t *testing.T) {
	// "isso" is not in acknowledgementWords, so (unlike "sim") it only
	// ever resolves through the confirmation branch.
	history := []domain.Message{
		{Role: domain.RoleUser, Body: "posso cancelar meu pedido?"},
		{Role: domain.RoleAssistant, Body: "posso confirmar o cancelamento?"},
	}
	if got := DetectIntention("isso", history); got != IntentionConfirmation {
		t.Fatalf("expected confirmation with a prior user turn in history, got %v", got)
	}
}

func TestDetectIntentionConfirmationWithoutPriorUserTurnFallsBackToGeneral(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleAssistant, Body: "posso confirmar o cancelamento?"},
	}
	if got := DetectIntention("isso", history); got != IntentionGeneral {
		t.Fatalf("expected general intention without a prior user turn, got %v", got)
	}
}

func TestDetectIntentionEmptyTextIsGeneral(t *testing.T) {
	if got := DetectIntention("   ", nil); got != IntentionGeneral {
		t.Fatalf("expected general intention for blank text, got %v", got)
	}
}

func TestDetectFeedbackKeyword(t *testing.T) {
	if !DetectFeedback("gostaria de deixar um feedback sobre o atendimento") {
		t.Fatalf("expected feedback keyword to be detected")
	}
	if DetectFeedback("oi, tudo bem?") {
		t.Fatalf("expected no feedback keyword in a plain greeting")
	}
}

func TestTokenizeSplitsPunctuationAndEmoji(t *testing.T) {
	tokens := Tokenize("Oi! Tudo bem? 😊")
	if len(tokens) == 0 {
		t.Fatalf("expected at least one token")
	}
	found := false
	for _, token := range tokens {
		if token == "😊" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected emoji to be tokenized as its own token, got %v", tokens)
	}
}
