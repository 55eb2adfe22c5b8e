package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"floorbot/internal/domain"
	"floorbot/internal/integrations/llm"
	"floorbot/internal/metrics"
)

type severityReply struct {
	Severity string `json:"severity"`
	Impact   string `json:"impact"`
	SubType  string `json:"sub_type"`
}

type SeverityClassifier struct {
	completer llm.Completer
}

func NewSeverityClassifier(c llm.Completer) *SeverityClassifier {
	return &SeverityClassifier{completer: c}
}

// DefaultEscalation is used whenever the provider cannot be trusted.
func DefaultEscalation() domain.EscalationClassification {
	return domain.EscalationClassification{
		Severity: domain.SeverityLow,
		Impact:   "baixo",
		Targets:  domain.TargetsFor(domain.SeverityLow),
	}
}

func (c *SeverityClassifier) Classify(ctx context.Context, text string) domain.EscalationClassification {
	if c.completer == nil {
		metrics.ClassifierFallback("severity")
		return DefaultEscalation()
	}
	reply, err := c.completer.Complete(ctx, buildSeverityPrompt(text), 150)
	if err != nil {
		log.Printf("classify severity provider error (non-fatal): %v", err)
		metrics.ClassifierFallback("severity")
		return DefaultEscalation()
	}
	out, err := parseSeverityReply(reply)
	if err != nil {
		log.Printf("classify severity parse error (non-fatal): %v", err)
		metrics.ClassifierFallback("severity")
		return DefaultEscalation()
	}
	log.Printf("classify severity severity=%s impact=%s targets=%d", out.Severity, out.Impact, len(out.Targets))
	return out
}

func parseSeverityReply(reply string) (domain.EscalationClassification, error) {
	obj := llm.FirstJSONObject(reply)
	if obj == "" {
		return domain.EscalationClassification{}, fmt.Errorf("no JSON object in severity reply")
	}
	var parsed severityReply
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return domain.EscalationClassification{}, fmt.Errorf("parsing severity reply: %w", err)
	}
	severity := domain.Severity(strings.ToLower(strings.TrimSpace(parsed.Severity)))
	if !severity.Valid() {
		return domain.EscalationClassification{}, fmt.Errorf("unknown severity %q", parsed.Severity)
	}
	return domain.EscalationClassification{
		Severity: severity,
		Impact:   normalizeImpact(parsed.Impact),
		SubType:  strings.TrimSpace(parsed.SubType),
		Targets:  domain.TargetsFor(severity),
	}, nil
}

func normalizeImpact(impact string) string {
	switch Fold(strings.TrimSpace(impact)) {
	case "alto", "high":
		return "alto"
	case "medio", "medium":
		return "médio"
	default:
		return "baixo"
	}
}

func buildSeverityPrompt(text string) string {
	return fmt.Sprintf(`Avalie a ocorrência industrial abaixo.
Retorne apenas um objeto JSON (sem markdown) com:
- "severity": um de critical, high, medium, low
- "impact": um de alto, médio, baixo
- "sub_type": rótulo curto e livre do tipo de problema

Exemplo: {"severity": "high", "impact": "alto", "sub_type": "falha mecânica"}

Ocorrência: %s`, strings.TrimSpace(text))
}
