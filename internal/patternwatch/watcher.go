package patternwatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"floorbot/internal/analysis"
	"floorbot/internal/domain"
)

// alertTargets receive the proactive repeat-failure message.
var alertTargets = []domain.Target{domain.TargetSupervision, domain.TargetCoordination}

type Detector interface {
	DetectFailurePattern(ctx context.Context, companyID string, windowHours, minFails int) ([]analysis.Pattern, error)
}

type Notifier interface {
	Notify(ctx context.Context, companyID, body string, targets []domain.Target, department string) ([]string, error)
}

// Watcher runs failure-pattern sweeps and alerts about each machine at most
// once per window.
type Watcher struct {
	detector    Detector
	notifier    Notifier
	companyID   string
	windowHours int
	minFails    int

	mu        sync.Mutex
	lastAlert map[string]time.Time
	now       func() time.Time
}

func NewWatcher(detector Detector, notifier Notifier, companyID string, windowHours, minFails int) *Watcher {
	return &Watcher{
		detector:    detector,
		notifier:    notifier,
		companyID:   companyID,
		windowHours: windowHours,
		minFails:    minFails,
		lastAlert:   make(map[string]time.Time),
		now:         time.Now,
	}
}

// SweepResult tracks what one sweep found and did.
type SweepResult struct {
	Detected   int
	Alerted    int
	Suppressed int
	Failed     int
}

// Sweep detects patterns and notifies about machines not alerted within the
// current window.
func (w *Watcher) Sweep(ctx context.Context) (SweepResult, error) {
	patterns, err := w.detector.DetectFailurePattern(ctx, w.companyID, w.windowHours, w.minFails)
	if err != nil {
		return SweepResult{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	window := time.Duration(w.windowHours) * time.Hour
	for key, at := range w.lastAlert {
		if now.Sub(at) >= window {
			delete(w.lastAlert, key)
		}
	}

	result := SweepResult{Detected: len(patterns)}
	for _, p := range patterns {
		key := machineKey(p.FailureGroup)
		if _, seen := w.lastAlert[key]; seen {
			result.Suppressed++
			continue
		}
		sent, err := w.notifier.Notify(ctx, w.companyID, p.Message, alertTargets, "")
		if err != nil || len(sent) == 0 {
			log.Printf("pattern-watch alert machine=%s failed: sent=%d err=%v", p.Label(), len(sent), err)
			result.Failed++
			continue
		}
		w.lastAlert[key] = now
		result.Alerted++
	}
	return result, nil
}

func machineKey(g domain.FailureGroup) string {
	if g.MachineCode != "" {
		return "code:" + g.MachineCode
	}
	return "name:" + strings.ToLower(strings.TrimSpace(g.MachineName))
}

// FormatSweepSummary returns a one-line summary of a SweepResult.
func FormatSweepSummary(r SweepResult) string {
	if r.Detected == 0 {
		return "no repeated failures"
	}
	parts := []string{fmt.Sprintf("%d alerted", r.Alerted)}
	if r.Suppressed > 0 {
		parts = append(parts, fmt.Sprintf("%d already alerted", r.Suppressed))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	return fmt.Sprintf("%d machine(s) with repeated failures: %s", r.Detected, strings.Join(parts, ", "))
}

// Start runs Sweep on a standard 5-field cron schedule until ctx is done.
// An empty schedule disables the watcher.
func Start(ctx context.Context, schedule string, loc *time.Location, w *Watcher) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		log.Println("Pattern watch disabled (pattern_scan_schedule not set)")
		return
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid pattern_scan_schedule '%s': %v, pattern watch disabled", schedule, err)
		return
	}
	if loc == nil {
		loc = time.Local
	}
	log.Printf("Pattern watch scheduled (cron: %s) window=%dh min=%d", schedule, w.windowHours, w.minFails)

	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next pattern sweep at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			result, err := w.Sweep(ctx)
			if err != nil {
				log.Printf("Pattern sweep error: %v", err)
				continue
			}
			log.Printf("Pattern sweep complete: %s", FormatSweepSummary(result))
		}
	}()
}
