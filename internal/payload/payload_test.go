package payload

import (
	"encoding/json"
	"testing"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return decoded
}

func TestNormalizeBaileysJIDPrependsCountryCode(t *testing.T) {
	raw := decode(t, `{
		"key": {"remoteJid": "11999999999@s.whatsapp.net"},
		"message": {"conversation": "ola"}
	}`)

	result := Normalize(raw)
	if result.Number != "5511999999999" {
		t.Fatalf("expected country code prefixed number, got %q", result.Number)
	}
	if result.Text != "ola" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Kind != domain.KindText {
		t.Fatalf("expected text kind, got %v", result.Kind)
	}
}

func TestNormalizeJIDAlreadyCarryingCountryCode(t *testing.T) {
	raw := decode(t, `{"key": {"remoteJid": "5511999999999@s.whatsapp.net"}, "message": {"conversation": "ola"}}`)

	result := Normalize(raw)
	if result.Number != "5511999999999" {
		t.Fatalf("expected number unchanged, got %q", result.Number)
	}
}

func TestNormalizeRejectsGroupJID(t *testing.T) {
	raw := decode(t, `{"key": {"remoteJid": "120363012345678901@g.us"}, "message": {"conversation": "ola pessoal"}}`)

	result := Normalize(raw)
	if result.Number != "" {
		t.Fatalf("expected group JID to be rejected, got %q", result.Number)
	}
}

func TestNormalizeRejectsBroadcastJID(t *testing.T) {
	raw := decode(t, `{"key": {"remoteJid": "status@broadcast"}, "message": {"conversation": "story reply"}}`)

	result := Normalize(raw)
	if result.Number != "" {
		t.Fatalf("expected broadcast JID to be rejected, got %q", result.Number)
	}
}

func TestNormalizeRejectsLIDSuffix(t *testing.T) {
	raw := decode(t, `{"key": {"remoteJid": "11999999999@lid"}, "message": {"conversation": "ola"}}`)

	result := Normalize(raw)
	if result.Number != "" {
		t.Fatalf("expected @lid to be a recognized but unaccepted suffix, got %q", result.Number)
	}
}

func TestNormalizeFlatNumberFieldRequiresMinimumLength(t *testing.T) {
	raw := decode(t, `{"number": "999999", "message": {"conversation": "ola"}}`)

	result := Normalize(raw)
	if result.Number != "" {
		t.Fatalf("expected a too-short national number to be rejected, got %q", result.Number)
	}
}

func TestNormalizeFlatNumberFieldPrependsCountryCode(t *testing.T) {
	raw := decode(t, `{"from": "11999999999", "message": {"conversation": "ola"}}`)

	result := Normalize(raw)
	if result.Number != "5511999999999" {
		t.Fatalf("expected country code prefixed, got %q", result.Number)
	}
}

func TestNormalizeContactNestedNumberField(t *testing.T) {
	raw := decode(t, `{"ticket": {"contact": {"number": "11999999999"}}, "message": {"conversation": "ola"}}`)

	result := Normalize(raw)
	if result.Number != "5511999999999" {
		t.Fatalf("expected nested contact number to resolve, got %q", result.Number)
	}
}

func TestNormalizeFallsBackToRegexSweep(t *testing.T) {
	raw := decode(t, `{"weirdField": "prefix 5511999999999@s.whatsapp.net suffix", "message": {"conversation": "ola"}}`)

	result := Normalize(raw)
	if result.Number != "5511999999999" {
		t.Fatalf("expected regex sweep fallback to find the number, got %q", result.Number)
	}
}

func TestNormalizeUnresolvableNumberReturnsEmpty(t *testing.T) {
	raw := decode(t, `{"message": {"conversation": "ola"}}`)

	result := Normalize(raw)
	if result.Number != "" {
		t.Fatalf("expected empty number when no candidate field resolves, got %q", result.Number)
	}
}

func TestExtractKindPrioritizesMediaOverText(t *testing.T) {
	raw := decode(t, `{"message": {"conversation": "legenda", "imageMessage": {"caption": "legenda"}}}`)

	result := Normalize(raw)
	if result.Kind != domain.KindMedia {
		t.Fatalf("expected media kind to take priority, got %v", result.Kind)
	}
}

func TestExtractKindInteractiveButtonsResponse(t *testing.T) {
	raw := decode(t, `{"message": {"buttonsResponseMessage": {"selectedDisplayText": "Sim"}}}`)

	result := Normalize(raw)
	if result.Kind != domain.KindInteractive {
		t.Fatalf("expected interactive kind, got %v", result.Kind)
	}
	if result.Text != "Sim" {
		t.Fatalf("expected button display text, got %q", result.Text)
	}
}

func TestExtractTextUnwrapsEphemeralMessage(t *testing.T) {
	raw := decode(t, `{"message": {"ephemeralMessage": {"message": {"conversation": "mensagem temporaria"}}}}`)

	result := Normalize(raw)
	if result.Text != "mensagem temporaria" {
		t.Fatalf("expected ephemeral unwrap to surface inner text, got %q", result.Text)
	}
}

func TestExtractTextFromMessagesArrayEnvelope(t *testing.T) {
	raw := decode(t, `{"messages": [{"message": {"extendedTextMessage": {"text": "resposta com link"}}}]}`)

	result := Normalize(raw)
	if result.Text != "resposta com link" {
		t.Fatalf("expected extendedTextMessage text from messages[0], got %q", result.Text)
	}
}

func TestExtractTextFallsBackToTopLevelBodyField(t *testing.T) {
	raw := decode(t, `{"number": "5511999999999", "body": "texto direto"}`)

	result := Normalize(raw)
	if result.Text != "texto direto" {
		t.Fatalf("expected top-level body fallback, got %q", result.Text)
	}
}
