package analysis

import (
	"context"
	"fmt"
	"log"
	"time"

	"floorbot/internal/domain"
)

const (
	DefaultWindowHours = 24
	DefaultMinFailures = 3
)

type FailureLister interface {
	FailurePatterns(ctx context.Context, companyID string, since time.Time, minFails int) ([]domain.FailureGroup, error)
}

// Pattern is a machine with repeated recent failures and the proactive
// message to send about it.
type Pattern struct {
	domain.FailureGroup
	WindowHours int
	Message     string
}

type PatternDetector struct {
	events FailureLister
	now    func() time.Time
}

func NewPatternDetector(events FailureLister) *PatternDetector {
	return &PatternDetector{events: events, now: time.Now}
}

// Detect returns machines with at least minFails open failure events in the
// last windowHours. Non-positive arguments fall back to 24h and 3.
func (d *PatternDetector) Detect(ctx context.Context, companyID string, windowHours, minFails int) ([]Pattern, error) {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	if minFails <= 0 {
		minFails = DefaultMinFailures
	}
	since := d.now().Add(-time.Duration(windowHours) * time.Hour)

	groups, err := d.events.FailurePatterns(ctx, companyID, since, minFails)
	if err != nil {
		return nil, fmt.Errorf("detect failure patterns: %w", err)
	}
	patterns := make([]Pattern, 0, len(groups))
	for _, g := range groups {
		patterns = append(patterns, Pattern{
			FailureGroup: g,
			WindowHours:  windowHours,
			Message:      PatternMessage(g, windowHours),
		})
	}
	log.Printf("pattern detect company=%s window=%dh min=%d machines=%d", companyID, windowHours, minFails, len(patterns))
	return patterns, nil
}

func PatternMessage(g domain.FailureGroup, windowHours int) string {
	return fmt.Sprintf(
		"Atenção: identifiquei %d falhas/ocorrências em %s nas últimas %dh. Recomendo uma inspeção preventiva antes de uma nova parada.",
		g.Count, g.Label(), windowHours)
}
