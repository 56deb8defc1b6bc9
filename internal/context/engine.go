// Package contextengine assembles the per-message RuntimeContext the
// worker pipeline needs to pick a reply strategy: history, customer
// profile, personalization config, sentiment/intention/feedback
// detection, tone derivation, template selection, and system-prompt
// assembly. Grounded on the upstream service's ContextEngine class,
// arguably the richest single component in the original system.
package contextengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/iago/extensao-whatsapp-back/internal/cache"
	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/repository"
	"github.com/iago/extensao-whatsapp-back/internal/template"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

// Engine wires together the repositories, cache, and template set the
// context pipeline needs.
type Engine struct {
	cache                  cache.Store
	conversations          repository.ConversationsRepository
	customerContexts       repository.CustomerContextsRepository
	personalizationConfigs repository.PersonalizationConfigsRepository
	templates              *template.Set
	defaultMessageLimit    int
}

func New(
	store cache.Store,
	conversations repository.ConversationsRepository,
	customerContexts repository.CustomerContextsRepository,
	personalizationConfigs repository.PersonalizationConfigsRepository,
	templates *template.Set,
	defaultMessageLimit int,
) *Engine {
	if defaultMessageLimit <= 0 {
		defaultMessageLimit = 20
	}
	return &Engine{
		cache:                  store,
		conversations:          conversations,
		customerContexts:       customerContexts,
		personalizationConfigs: personalizationConfigs,
		templates:              templates,
		defaultMessageLimit:    defaultMessageLimit,
	}
}

// PrepareRuntimeContext loads every piece of state a reply to
// userText needs and assembles the system prompt, selected template
// name, and template variables in one pass.
func (e *Engine) PrepareRuntimeContext(ctx context.Context, tenant tenancy.Context, conversation domain.Conversation, number, userText string) (RuntimeContext, error) {
	history, err := e.loadHistory(ctx, tenant, conversation)
	if err != nil {
		return RuntimeContext{}, fmt.Errorf("contextengine: load history: %w", err)
	}
	conversation.Context = history

	profile, err := e.loadProfile(ctx, tenant, number)
	if err != nil {
		return RuntimeContext{}, fmt.Errorf("contextengine: load profile: %w", err)
	}

	config, err := e.loadPersonalizationConfig(ctx, tenant)
	if err != nil {
		return RuntimeContext{}, fmt.Errorf("contextengine: load personalization config: %w", err)
	}

	sentiment, score := AnalyzeSentiment(userText)
	intention := DetectIntention(userText, history)
	feedback := DetectFeedback(userText)

	tone := buildToneProfile(config, sentiment)
	summary := buildDialogueSummary(history)
	templateName := e.selectTemplateName(intention, sentiment)

	runtime := RuntimeContext{
		Conversation:          conversation,
		Profile:               profile,
		PersonalizationConfig: config,
		Sentiment:             sentiment,
		SentimentScore:        score,
		Intention:             intention,
		FeedbackDetected:      feedback,
		Tone:                  tone,
		DialogueSummary:       summary,
		TemplateName:          templateName,
	}
	runtime.SystemPrompt = buildSystemPrompt(runtime)
	runtime.TemplateVars = buildTemplateVars(runtime, userText)
	return runtime, nil
}

// BuildLLMContext renders the final prompt sent to the LLM: the system
// prompt followed by the user's sanitized message.
func (e *Engine) BuildLLMContext(runtime RuntimeContext, userText string) string {
	return runtime.SystemPrompt + "\n\nUsuário: " + userText
}

// TemplateExists reports whether name is a known template, used by the
// worker to validate PrepareRuntimeContext's candidate before rendering
// it.
func (e *Engine) TemplateExists(name string) bool {
	return e.templates.Exists(name)
}

// Render renders the named template with vars; the template set renders
// "default" when name is unknown and "fallback" when the rendered body is
// empty.
func (e *Engine) Render(name, tenantLabel string, vars map[string]string) string {
	return e.templates.Render(name, tenantLabel, vars)
}

func buildToneProfile(config domain.PersonalizationConfig, sentiment Sentiment) ToneProfile {
	formality := config.Formality
	if formality < 0 {
		formality = 0
	}
	if formality > 100 {
		formality = 100
	}
	empathy := config.Empathy
	if empathy < 0 {
		empathy = 0
	}
	if empathy > 100 {
		empathy = 100
	}
	return ToneProfile{
		Formality:    formality,
		Empathy:      empathy,
		HumorEnabled: config.AdaptiveHumor && sentiment != SentimentNegative,
	}
}

// buildDialogueSummary takes the last 6 history turns and renders the
// last 4 of them as "Cliente: ..." / "Assistente: ..." snippets (each
// capped at 100 characters), joined by " | ", matching the upstream
// _build_dialogue_summary window.
func buildDialogueSummary(history []domain.Message) string {
	window := history
	if len(window) > 6 {
		window = window[len(window)-6:]
	}

	snippets := make([]string, 0, len(window))
	for _, message := range window {
		body := message.Body
		if runes := []rune(body); len(runes) > 100 {
			body = string(runes[:100])
		}
		speaker := "Assistente"
		if message.Role == domain.RoleUser {
			speaker = "Cliente"
		}
		snippets = append(snippets, fmt.Sprintf("%s: %s", speaker, body))
	}
	if len(snippets) > 4 {
		snippets = snippets[len(snippets)-4:]
	}
	return strings.Join(snippets, " | ")
}
