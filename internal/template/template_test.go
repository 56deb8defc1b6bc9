package template

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iago/extensao-whatsapp-back/internal/metrics"
)

const fixtureYAML = `
default:
  body: "{{ resposta }}"
greeting:
  body: "Ola {{ nome }}, {{ resposta }}"
  defaults:
    nome: "cliente"
custom:
  body: "{{ Cliente }}, {{ situação }}"
ai_disabled:
  body: "Atendimento humano em breve."
empty_body:
  body: "{{ missing_key }}"
fallback:
  body: "Desculpe, nao entendi. Um atendente ja te responde."
`

func TestRenderSubstitutesExactKey(t *testing.T) {
	set, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got := set.Render("default", "1", map[string]string{"resposta": "Tudo certo!"})
	if got != "Tudo certo!" {
		t.Fatalf("unexpected render output: %q", got)
	}
}

func TestRenderMergesDefaultsUnderCallerVars(t *testing.T) {
	set, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got := set.Render("greeting", "1", map[string]string{"resposta": "como posso ajudar?"})
	if got != "Ola cliente, como posso ajudar?" {
		t.Fatalf("expected default nome to be merged, got %q", got)
	}

	got = set.Render("greeting", "1", map[string]string{"nome": "Joao", "resposta": "tudo bem?"})
	if got != "Ola Joao, tudo bem?" {
		t.Fatalf("expected caller-supplied nome to override default, got %q", got)
	}
}

func TestRenderResolvesAccentFoldedKey(t *testing.T) {
	set, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// "Cliente" resolves through the lowercase fallback ("cliente");
	// "situação" has no exact or lowercase match and only resolves
	// through the accent-folded comparison against "situacao".
	got := set.Render("custom", "1", map[string]string{"cliente": "Ana", "situacao": "resolvido"})
	if got != "Ana, resolvido" {
		t.Fatalf("expected accent-folded/cased key resolution, got %q", got)
	}
}

func TestRenderFallsBackWhenTemplateNameUnknown(t *testing.T) {
	set, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got := set.Render("does_not_exist", "1", nil)
	if got != "Desculpe, nao entendi. Um atendente ja te responde." {
		t.Fatalf("expected fallback body for unknown template, got %q", got)
	}
}

func TestRenderFallsBackWhenBodyRendersEmptyAndCountsMetric(t *testing.T) {
	set, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	set.SetMetrics(collector)

	got := set.Render("empty_body", "7", nil)
	if got != "Desculpe, nao entendi. Um atendente ja te responde." {
		t.Fatalf("expected fallback body for empty rendered body, got %q", got)
	}

	count := testutil.ToFloat64(collector.FallbackTransfers.WithLabelValues("7"))
	if count != 1 {
		t.Fatalf("expected fallback_transfers_total to be incremented once, got %v", count)
	}
}

func TestRenderStaticBodyNeedsNoSubstitution(t *testing.T) {
	set, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got := set.Render("ai_disabled", "1", nil)
	if got != "Atendimento humano em breve." {
		t.Fatalf("unexpected static render output: %q", got)
	}
}

func TestExistsReportsKnownAndUnknownTemplates(t *testing.T) {
	set, err := Load([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !set.Exists("greeting") {
		t.Fatalf("expected greeting to be a known template")
	}
	if set.Exists("nope") {
		t.Fatalf("expected unknown template name to report false")
	}
}
