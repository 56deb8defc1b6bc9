package contextengine

import (
	"fmt"
	"strings"
)

// selectTemplateName picks the first existing candidate in order
// "<intention>_<sentiment>", "<intention>", "sentiment_<sentiment>",
// "default", matching the upstream _select_template_name precedence.
func (e *Engine) selectTemplateName(intention Intention, sentiment Sentiment) string {
	candidates := []string{
		fmt.Sprintf("%s_%s", intention, sentiment),
		string(intention),
		fmt.Sprintf("sentiment_%s", sentiment),
		"default",
	}
	for _, candidate := range candidates {
		if e.templates.Exists(candidate) {
			return candidate
		}
	}
	return "default"
}

// buildSystemPrompt assembles the instruction preamble sent to the LLM,
// in this order: tone of voice, formality/empathy levels, the humor
// permission (when enabled), dialogue summary, all frequent topics and
// product mentions, the current sentiment/intention read, a feedback
// acknowledgement (when feedback was detected) and an AI-disabled notice.
// It has no customer-name, last-subject, sentiment-adaptation or
// human-transfer sentence.
func buildSystemPrompt(runtime RuntimeContext) string {
	var sentences []string

	sentences = append(sentences, fmt.Sprintf(
		"Você é um assistente de atendimento com tom de voz %s.",
		runtime.PersonalizationConfig.ToneOfVoice,
	))

	sentences = append(sentences, fmt.Sprintf(
		"Mantenha um nível de formalidade de %d%% e empatia de %d%%.",
		runtime.Tone.Formality, runtime.Tone.Empathy,
	))

	if runtime.Tone.HumorEnabled {
		sentences = append(sentences, "Pode usar leveza e bom humor quando apropriado.")
	}

	if runtime.DialogueSummary != "" {
		sentences = append(sentences, fmt.Sprintf("Resumo da conversa recente: %s.", runtime.DialogueSummary))
	}

	if len(runtime.Profile.FrequentTopics) > 0 {
		sentences = append(sentences, fmt.Sprintf(
			"Assuntos frequentes deste cliente: %s.",
			strings.Join(runtime.Profile.FrequentTopics, ", "),
		))
	}
	if len(runtime.Profile.ProductMentions) > 0 {
		sentences = append(sentences, fmt.Sprintf(
			"Produtos mencionados anteriormente: %s.",
			strings.Join(runtime.Profile.ProductMentions, ", "),
		))
	}

	sentences = append(sentences, fmt.Sprintf(
		"O sentimento atual do cliente é %s e a intenção detectada é %s.",
		runtime.Sentiment, runtime.Intention,
	))

	if runtime.FeedbackDetected {
		sentences = append(sentences, "O cliente está dando um feedback; reconheça-o explicitamente.")
	}

	if !runtime.PersonalizationConfig.AIEnabled {
		sentences = append(sentences, "O atendimento automático está desativado; apenas confirme o recebimento.")
	}

	return strings.Join(sentences, " ")
}

// buildTemplateVars populates the variable set every reply template may
// reference. Both "ultimo_assunto" and "último_assunto" are populated so
// templates authored with either spelling resolve, matching the
// upstream's own inconsistent key usage across its template library.
func buildTemplateVars(runtime RuntimeContext, userText string) map[string]string {
	lastSubject := runtime.Profile.LastSubject
	if lastSubject == "" {
		lastSubject = "sua solicitação"
	}

	vars := map[string]string{
		"nome_cliente":     "",
		"ultimo_assunto":   lastSubject,
		"último_assunto":   lastSubject,
		"mensagem_usuario": userText,
		"sentimento":       string(runtime.Sentiment),
		"intencao":         string(runtime.Intention),
	}

	if name, ok := runtime.Profile.Preferences["nome"].(string); ok && name != "" {
		vars["nome_cliente"] = ", " + name
	}

	return vars
}
