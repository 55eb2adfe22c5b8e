package llm

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/sony/gobreaker"

	"floorbot/internal/config"
	"floorbot/internal/metrics"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

// ErrProviderUnavailable is returned when the breaker is open, the call timed
// out, or no provider is configured. Callers fall back to their defaults.
var ErrProviderUnavailable = errors.New("completion provider unavailable")

// Completer is the classification/completion provider every classifier talks to.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// NewFromConfig builds the configured provider wrapped in timeout and breaker
// guards.
func NewFromConfig(cfg config.Config) *Guarded {
	var inner Completer
	switch cfg.LLMProvider {
	case "openai":
		model := cfg.LLMModel
		if model == "" {
			model = defaultOpenAIModel
		}
		inner = NewOpenAICompleter(cfg.OpenAIAPIKey, model)
	default:
		model := cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		inner = NewAnthropicCompleter(cfg.AnthropicAPIKey, model)
	}
	log.Printf("llm provider=%s model=%s timeout=%s breaker_failures=%d cooldown=%s",
		cfg.LLMProvider, cfg.LLMModel, cfg.LLMTimeout(), cfg.LLMBreakerFailures, cfg.LLMBreakerCooldown())
	return NewGuarded(inner, GuardSettings{
		Name:     "llm-" + cfg.LLMProvider,
		Timeout:  cfg.LLMTimeout(),
		Failures: cfg.LLMBreakerFailures,
		Cooldown: cfg.LLMBreakerCooldown(),
		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.SetBreakerState(float64(to))
		},
	})
}

// StripFences removes a surrounding markdown code fence from a model reply.
func StripFences(responseText string) string {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// FirstJSONObject returns the first balanced {...} block in text, honoring
// string literals, or "" when none exists.
func FirstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
