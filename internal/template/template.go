// Package template renders the canned reply templates the context
// engine selects between, grounded on the upstream service's
// YAML-backed render_template/_load_templates: a {{ key }} placeholder
// syntax resolved first by exact key, then lowercased key, then an
// accent-folded key, with a shared defaults map merged underneath
// caller-supplied variables.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/iago/extensao-whatsapp-back/internal/metrics"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

type definition struct {
	Body     string            `yaml:"body"`
	Defaults map[string]string `yaml:"defaults"`
}

// Set is a loaded, immutable collection of named templates.
type Set struct {
	templates map[string]definition
	metrics   *metrics.Collector
}

// SetMetrics attaches the metrics collector used to count
// fallback_transfers_total. Optional: a Set with no collector simply
// skips the increment.
func (s *Set) SetMetrics(collector *metrics.Collector) {
	s.metrics = collector
}

// Load parses a YAML document shaped as a map of template name to
// {body, defaults}.
func Load(raw []byte) (*Set, error) {
	decoded := map[string]definition{}
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("template: parse: %w", err)
	}
	return &Set{templates: decoded}, nil
}

// Exists reports whether name is a known template, used to validate a
// context-engine-selected candidate before rendering it.
func (s *Set) Exists(name string) bool {
	_, ok := s.templates[name]
	return ok
}

// Render substitutes {{ key }} placeholders in the named template,
// resolving each key by exact match, then lowercase, then accent-folded
// lowercase, falling back to the template's own defaults when the
// caller didn't supply a value. An unknown name renders "default" (or
// "fallback" when the set has no "default"). If rendering produces an
// empty string, it renders "fallback" instead and increments
// fallback_transfers_total for tenantLabel.
func (s *Set) Render(name, tenantLabel string, vars map[string]string) string {
	tmpl, ok := s.templates[name]
	if !ok {
		name = "default"
		tmpl, ok = s.templates[name]
	}
	if !ok {
		name = "fallback"
		tmpl, ok = s.templates[name]
		if !ok {
			return ""
		}
	}

	merged := make(map[string]string, len(tmpl.Defaults)+len(vars))
	for key, value := range tmpl.Defaults {
		merged[key] = value
	}
	for key, value := range vars {
		merged[key] = value
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(tmpl.Body, func(match string) string {
		key := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])
		if value, ok := resolveKey(merged, key); ok {
			return value
		}
		return ""
	})

	if strings.TrimSpace(rendered) == "" && name != "fallback" {
		if fallback, ok := s.templates["fallback"]; ok {
			if s.metrics != nil {
				s.metrics.FallbackTransfers.WithLabelValues(tenantLabel).Inc()
			}
			return renderStatic(fallback, merged)
		}
	}
	return rendered
}

func renderStatic(tmpl definition, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl.Body, func(match string) string {
		key := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])
		if value, ok := resolveKey(vars, key); ok {
			return value
		}
		return ""
	})
}

func resolveKey(vars map[string]string, key string) (string, bool) {
	if value, ok := vars[key]; ok {
		return value, true
	}
	lower := strings.ToLower(key)
	if value, ok := vars[lower]; ok {
		return value, true
	}
	folded := foldAccents(lower)
	for candidateKey, value := range vars {
		if foldAccents(strings.ToLower(candidateKey)) == folded {
			return value, true
		}
	}
	return "", false
}

var accentFoldReplacer = map[rune]rune{
	'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
}

func foldAccents(value string) string {
	builder := strings.Builder{}
	for _, r := range value {
		if folded, ok := accentFoldReplacer[r]; ok {
			builder.WriteRune(folded)
			continue
		}
		if unicode.IsMark(r) {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
