package classify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"floorbot/internal/domain"
	"floorbot/internal/integrations/llm"
	"floorbot/internal/metrics"
)

// EventTypeClassifier maps free text to a taxonomy category. Keyword rules
// short-circuit the provider; anything unresolved falls back to outro.
type EventTypeClassifier struct {
	completer llm.Completer
	rules     []Rule
}

// NewEventTypeClassifier evaluates DefaultRules first, then extra, then asks
// the provider.
func NewEventTypeClassifier(c llm.Completer, extra []Rule) *EventTypeClassifier {
	rules := make([]Rule, 0, len(DefaultRules)+len(extra))
	rules = append(rules, DefaultRules...)
	rules = append(rules, extra...)
	return &EventTypeClassifier{completer: c, rules: rules}
}

func (c *EventTypeClassifier) Classify(ctx context.Context, text string) domain.Category {
	if category, ok := matchRules(c.rules, text); ok {
		log.Printf("classify event-type source=rule category=%s", category)
		return category
	}
	if c.completer == nil {
		metrics.ClassifierFallback("event_type")
		return domain.CategoryOther
	}

	reply, err := c.completer.Complete(ctx, buildEventTypePrompt(text), 10)
	if err != nil {
		log.Printf("classify event-type provider error (non-fatal): %v", err)
		metrics.ClassifierFallback("event_type")
		return domain.CategoryOther
	}
	category := domain.Category(normalizeLabel(reply))
	if !category.Valid() {
		log.Printf("classify event-type rejected label=%q", strings.TrimSpace(reply))
		metrics.ClassifierFallback("event_type")
		return domain.CategoryOther
	}
	log.Printf("classify event-type source=provider category=%s", category)
	return category
}

func buildEventTypePrompt(text string) string {
	var labels strings.Builder
	for _, c := range domain.Categories {
		labels.WriteString(fmt.Sprintf("- %s\n", c))
	}
	return fmt.Sprintf(`Classifique a mensagem operacional abaixo em exatamente UMA categoria da lista:
%s
Responda somente com o nome da categoria, sem explicações.

Mensagem: %s`, labels.String(), strings.TrimSpace(text))
}
