// Package payload normalizes the many shapes an inbound WhatsApp webhook
// envelope can arrive in (a raw Baileys-style message event, a
// already-flattened ticket payload, or a contact-centric payload) down to
// a single customer number plus message text and kind. Grounded on the
// upstream service's payload normalizer.
package payload

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// messageKindOrder is the fixed priority in which envelope keys are
// checked to pick a MessageKind, so a payload carrying more than one
// recognized key resolves deterministically rather than depending on
// map iteration order.
var messageKindOrder = []struct {
	key  string
	kind domain.MessageKind
}{
	{"imageMessage", domain.KindMedia},
	{"videoMessage", domain.KindMedia},
	{"audioMessage", domain.KindMedia},
	{"documentMessage", domain.KindMedia},
	{"stickerMessage", domain.KindMedia},
	{"conversation", domain.KindText},
	{"extendedTextMessage", domain.KindText},
	{"buttonsResponseMessage", domain.KindInteractive},
	{"listResponseMessage", domain.KindInteractive},
	{"interactiveResponseMessage", domain.KindInteractive},
	{"templateMessage", domain.KindTemplate},
}

var knownJIDSuffixes = []string{"@s.whatsapp.net", "@lid", "@g.us", "@broadcast"}
var disallowedJIDSuffixes = []string{"@g.us", "@broadcast"}

const countryCode = "55"

var numberSweepPattern = regexp.MustCompile(`(\d{11,})@(s\.whatsapp\.net|lid|g\.us|broadcast)`)

var nonDigitPattern = regexp.MustCompile(`\D`)

// withCountryCode prepends the Brazil country code to a national number
// that lacks it.
func withCountryCode(digits string) string {
	if strings.HasPrefix(digits, countryCode) {
		return digits
	}
	return countryCode + digits
}

// Normalized is the result of flattening an arbitrary webhook envelope.
type Normalized struct {
	Number string
	Text   string
	Kind   domain.MessageKind
}

// Normalize extracts the customer number and message text/kind from a
// decoded webhook body.
func Normalize(raw map[string]any) Normalized {
	return Normalized{
		Number: extractNumber(raw),
		Text:   extractText(raw),
		Kind:   extractKind(raw),
	}
}

// extractNumber produces a normalized digit string, always prefixed
// with the Brazil country code "55", or "" if no candidate field
// yields a usable number.
func extractNumber(raw map[string]any) string {
	if key, ok := asMap(raw["key"]); ok {
		for _, field := range []string{"remoteJid", "remoteJidAlt", "participant"} {
			if jid, ok := key[field].(string); ok && jid != "" {
				if number, ok := numberFromJID(jid); ok {
					return number
				}
			}
		}
	}

	for _, field := range []string{"number", "from"} {
		if value, ok := raw[field].(string); ok && value != "" {
			if number, ok := numberFromDigits(value); ok {
				return number
			}
		}
	}

	for _, path := range [][]string{{"contact", "number"}, {"contact", "phone"}, {"ticket", "contact", "number"}, {"ticket", "contact", "phone"}} {
		if value, ok := dig(raw, path...); ok {
			if str, ok := value.(string); ok && str != "" {
				if number, ok := numberFromDigits(str); ok {
					return number
				}
			}
		}
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	if match := numberSweepPattern.FindStringSubmatch(string(encoded)); match != nil {
		if number, ok := numberFromJID(match[1] + "@" + match[2]); ok {
			return number
		}
	}
	return ""
}

// numberFromJID extracts digits from a JID, requiring the
// "@s.whatsapp.net" suffix specifically: "@lid" is a recognised but
// unaccepted suffix, and "@g.us"/"@broadcast" are disallowed outright.
func numberFromJID(jid string) (string, bool) {
	var suffix string
	recognized := false
	for _, candidate := range knownJIDSuffixes {
		if strings.HasSuffix(jid, candidate) {
			suffix = candidate
			recognized = true
			break
		}
	}
	if !recognized {
		return "", false
	}
	for _, disallowed := range disallowedJIDSuffixes {
		if suffix == disallowed {
			return "", false
		}
	}
	if suffix != "@s.whatsapp.net" {
		return "", false
	}

	digits := withCountryCode(nonDigitPattern.ReplaceAllString(strings.TrimSuffix(jid, suffix), ""))
	if len(digits) < 11 {
		return "", false
	}
	return digits, true
}

// numberFromDigits normalizes a suffix-free flat field: digits only,
// prefixed with the country code if missing, at least 11 characters
// once prefixed.
func numberFromDigits(value string) (string, bool) {
	digits := withCountryCode(nonDigitPattern.ReplaceAllString(value, ""))
	if len(digits) < 11 {
		return "", false
	}
	return digits, true
}

// extractKind walks messageKindOrder so a payload carrying more than
// one recognized key always resolves to the same kind.
func extractKind(raw map[string]any) domain.MessageKind {
	message := messageEnvelope(raw)
	for _, candidate := range messageKindOrder {
		if _, ok := message[candidate.key]; ok {
			return candidate.kind
		}
	}
	return domain.KindText
}

// extractText walks the envelope's message object, following every unwrap
// the upstream gateway is known to emit, and falls back to top-level
// text|body|caption fields.
func extractText(raw map[string]any) string {
	message := messageEnvelope(raw)
	if text := extractFromMessage(message); text != "" {
		return text
	}

	for _, field := range []string{"text", "body", "caption"} {
		if value, ok := raw[field].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func messageEnvelope(raw map[string]any) map[string]any {
	if message, ok := asMap(raw["message"]); ok {
		return message
	}
	if messages, ok := raw["messages"].([]any); ok && len(messages) > 0 {
		if first, ok := asMap(messages[0]); ok {
			if message, ok := asMap(first["message"]); ok {
				return message
			}
		}
	}
	return map[string]any{}
}

func extractFromMessage(message map[string]any) string {
	if message == nil {
		return ""
	}

	if ephemeral, ok := asMap(message["ephemeralMessage"]); ok {
		if inner, ok := asMap(ephemeral["message"]); ok {
			if text := extractFromMessage(inner); text != "" {
				return text
			}
		}
	}

	if text, ok := message["conversation"].(string); ok && text != "" {
		return text
	}

	if extended, ok := asMap(message["extendedTextMessage"]); ok {
		if text, ok := extended["text"].(string); ok && text != "" {
			return text
		}
	}

	for _, mediaKey := range []string{"imageMessage", "videoMessage", "documentMessage"} {
		if media, ok := asMap(message[mediaKey]); ok {
			if caption, ok := media["caption"].(string); ok && caption != "" {
				return caption
			}
		}
	}

	if buttons, ok := asMap(message["buttonsResponseMessage"]); ok {
		if text, ok := buttons["selectedDisplayText"].(string); ok && text != "" {
			return text
		}
		if id, ok := buttons["selectedButtonId"].(string); ok && id != "" {
			return id
		}
	}

	if list, ok := asMap(message["listResponseMessage"]); ok {
		if reply, ok := asMap(list["singleSelectReply"]); ok {
			if title, ok := reply["title"].(string); ok && title != "" {
				return title
			}
			if id, ok := reply["selectedRowId"].(string); ok && id != "" {
				return id
			}
		}
	}

	if interactive, ok := asMap(message["interactiveResponseMessage"]); ok {
		if body, ok := asMap(interactive["body"]); ok {
			if text, ok := body["text"].(string); ok && text != "" {
				return text
			}
		}
		if native, ok := asMap(interactive["nativeFlowResponseMessage"]); ok {
			if paramsJSON, ok := native["paramsJson"].(string); ok && paramsJSON != "" {
				return paramsJSON
			}
		}
	}

	if template, ok := asMap(message["templateMessage"]); ok {
		if hydrated, ok := asMap(template["hydratedTemplate"]); ok {
			if text, ok := hydrated["hydratedContentText"].(string); ok && text != "" {
				return text
			}
			if buttons, ok := hydrated["hydratedButtons"].([]any); ok && len(buttons) > 0 {
				if button, ok := asMap(buttons[0]); ok {
					if quick, ok := asMap(button["quickReplyButton"]); ok {
						if text, ok := quick["displayText"].(string); ok && text != "" {
							return text
						}
					}
				}
			}
		}
	}

	if nested, ok := asMap(message["message"]); ok {
		if text := extractFromMessage(nested); text != "" {
			return text
		}
	}

	return ""
}

func asMap(value any) (map[string]any, bool) {
	typed, ok := value.(map[string]any)
	return typed, ok
}

func dig(raw map[string]any, path ...string) (any, bool) {
	current := raw
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return value, true
		}
		next, ok := asMap(value)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}
