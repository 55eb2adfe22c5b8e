package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// historyMonths is the span the all-time total is averaged over.
const historyMonths = 3

// abnormalRatio is how close recent consumption must come to the monthly
// average to be flagged.
const abnormalRatio = 0.8

type HistoryCounter interface {
	CountPartHistory(ctx context.Context, companyID, part, machineCode string, now time.Time) (total, last30 int, err error)
}

// Suggestion is the outcome of a consumption check. Message is empty unless
// Suggest is set.
type Suggestion struct {
	Suggest  bool
	Message  string
	Total    int
	Last30   int
	AvgMonth float64
}

type TrendEvaluator struct {
	history HistoryCounter
	now     func() time.Time
}

func NewTrendEvaluator(history HistoryCounter) *TrendEvaluator {
	return &TrendEvaluator{history: history, now: time.Now}
}

// EvaluateConsumption flags last30 when it reaches 80% of the average month.
func EvaluateConsumption(total, last30 int) (avgMonth float64, suggest bool) {
	avgMonth = float64(total) / historyMonths
	return avgMonth, last30 > 0 && float64(last30) >= avgMonth*abnormalRatio
}

// Evaluate never fails: a query error yields no suggestion.
func (t *TrendEvaluator) Evaluate(ctx context.Context, companyID, part, machineCode string) Suggestion {
	part = strings.TrimSpace(part)
	if part == "" {
		return Suggestion{}
	}
	total, last30, err := t.history.CountPartHistory(ctx, companyID, part, machineCode, t.now())
	if err != nil {
		log.Printf("trend evaluate error company=%s part=%s (non-fatal): %v", companyID, part, err)
		return Suggestion{}
	}

	avg, suggest := EvaluateConsumption(total, last30)
	s := Suggestion{Suggest: suggest, Total: total, Last30: last30, AvgMonth: avg}
	if suggest {
		s.Message = fmt.Sprintf(
			"Consumo acima do normal de %s: %d ocorrência(s) nos últimos 30 dias, média mensal de %.1f. Sugiro revisar o estoque e a causa raiz.",
			part, last30, avg)
	}
	log.Printf("trend evaluate company=%s part=%s total=%d last30=%d suggest=%v", companyID, part, total, last30, suggest)
	return s
}
