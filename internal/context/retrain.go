package contextengine

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

// RetrainProfile re-derives frequent topics, product mentions, and
// preferences from the conversation's full history, then persists the
// refreshed profile. Grounded on the upstream retrain_profile /
// _extract_topics / _extract_products / _extract_preferences trio.
func (e *Engine) RetrainProfile(ctx context.Context, tenant tenancy.Context, profile domain.CustomerContext, history []domain.Message, sentiment Sentiment, intention Intention) error {
	profile.FrequentTopics = extractTopics(history)
	profile.ProductMentions = extractProducts(history)
	if profile.Preferences == nil {
		profile.Preferences = map[string]any{}
	}
	extractPreferences(profile.Preferences, history)
	profile.Preferences["ultimo_sentimento"] = string(sentiment)
	profile.Preferences["ultima_intencao"] = string(intention)

	if len(history) > 0 {
		profile.LastSubject = lastUserSubject(history)
	}

	return e.UpdateProfileSnapshot(ctx, tenant, profile)
}

// extractTopics tokenizes every user turn, drops stopwords and tokens
// shorter than 4 characters, and returns the 5 most frequent remaining
// tokens.
func extractTopics(history []domain.Message) []string {
	counts := map[string]int{}
	for _, message := range history {
		if message.Role != domain.RoleUser {
			continue
		}
		for _, token := range Tokenize(message.Body) {
			if utf8.RuneCountInString(token) < 4 || stopwords[token] {
				continue
			}
			counts[token]++
		}
	}
	return topN(counts, 5)
}

// extractProducts scans user turns for any token prefixed "produt"
// (produto, produtos, ...) and captures the token immediately following
// it, deduplicated and capped at 5.
func extractProducts(history []domain.Message) []string {
	seen := map[string]bool{}
	products := make([]string, 0, 5)
	for _, message := range history {
		if message.Role != domain.RoleUser {
			continue
		}
		tokens := Tokenize(message.Body)
		for i, token := range tokens {
			if !strings.HasPrefix(token, "produt") {
				continue
			}
			if i+1 >= len(tokens) {
				continue
			}
			candidate := tokens[i+1]
			if seen[candidate] || len(products) >= 5 {
				continue
			}
			seen[candidate] = true
			products = append(products, candidate)
		}
	}
	return products
}

func extractPreferences(preferences map[string]any, history []domain.Message) {
	messageCount := 0
	for _, message := range history {
		if message.Role == domain.RoleUser {
			messageCount++
		}
	}
	preferences["contagem_mensagens"] = messageCount
	if subject := lastUserSubject(history); subject != "" {
		preferences["ultimo_assunto"] = subject
	}
}

func lastUserSubject(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return history[i].Body
		}
	}
	return ""
}

func topN(counts map[string]int, n int) []string {
	type pair struct {
		token string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for token, count := range counts {
		pairs = append(pairs, pair{token, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].token < pairs[j].token
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	result := make([]string, 0, len(pairs))
	for _, p := range pairs {
		result = append(result, p.token)
	}
	return result
}
