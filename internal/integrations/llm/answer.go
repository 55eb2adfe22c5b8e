package llm

import (
	"context"
	"fmt"
	"strings"
)

// Answerer replies to operator questions. Internal answers draw on shop-floor
// practice; market answers focus on prices and supplier quotes.
type Answerer struct {
	completer Completer
	market    bool
}

func NewInternalAnswerer(c Completer) *Answerer {
	return &Answerer{completer: c}
}

func NewMarketAnswerer(c Completer) *Answerer {
	return &Answerer{completer: c, market: true}
}

func (a *Answerer) Answer(ctx context.Context, companyID, question string) (string, error) {
	reply, err := a.completer.Complete(ctx, buildAnswerPrompt(question, a.market), 400)
	if err != nil {
		return "", fmt.Errorf("answer question company=%s: %w", companyID, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty answer company=%s", companyID)
	}
	return reply, nil
}

func buildAnswerPrompt(question string, market bool) string {
	role := "Você é um assistente de operações industriais. Responda de forma curta e prática, em português, à dúvida de um colaborador do chão de fábrica."
	if market {
		role = "Você é um assistente de compras industriais. Responda em português com referências de preço de mercado, faixas de valor e fatores que influenciam a cotação. Deixe claro que são estimativas."
	}
	return role + "\n\nPergunta: " + strings.TrimSpace(question) + "\n\nResposta:"
}
