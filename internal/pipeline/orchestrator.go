package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"floorbot/internal/analysis"
	"floorbot/internal/domain"
	"floorbot/internal/intake"
	"floorbot/internal/metrics"
)

// minMessageRunes is the shortest text worth classifying.
const minMessageRunes = 5

const excerptRunes = 200

var marketQuestion = regexp.MustCompile(`(?i)pre[cç]o|cota[cç][aã]o|mercado|quanto custa|valor de compra`)

type EventTypeClassifier interface {
	Classify(ctx context.Context, text string) domain.Category
}

type SeverityClassifier interface {
	Classify(ctx context.Context, text string) domain.EscalationClassification
}

type FieldExtractor interface {
	Extract(ctx context.Context, text string, category domain.Category) domain.Fields
}

type Answerer interface {
	Answer(ctx context.Context, companyID, question string) (string, error)
}

type EventStore interface {
	RegisterOperationalEvent(ctx context.Context, e *domain.OperationalEvent) error
	MarkEscalationSent(ctx context.Context, eventID string, at time.Time) error
	CompleteIncompleteEvent(ctx context.Context, rec domain.IncompleteEventRecord, e *domain.OperationalEvent) error
}

type ClarificationTracker interface {
	Open(ctx context.Context, companyID, phone, commID string, draft domain.Draft, questions []string) (domain.IncompleteEventRecord, error)
	Active(ctx context.Context, companyID, phone string) (domain.IncompleteEventRecord, bool, error)
	Advance(ctx context.Context, rec domain.IncompleteEventRecord, answer string) (intake.Transition, error)
}

type Notifier interface {
	Notify(ctx context.Context, companyID, body string, targets []domain.Target, department string) ([]string, error)
}

type TrendEvaluator interface {
	Evaluate(ctx context.Context, companyID, part, machineCode string) analysis.Suggestion
}

type PatternDetector interface {
	Detect(ctx context.Context, companyID string, windowHours, minFails int) ([]analysis.Pattern, error)
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	EventType EventTypeClassifier
	Severity  SeverityClassifier
	Extractor FieldExtractor
	Internal  Answerer
	Market    Answerer
	Store     EventStore
	Tracker   ClarificationTracker
	Notifier  Notifier
	Trend     TrendEvaluator
	Patterns  PatternDetector
}

type Orchestrator struct {
	d   Deps
	now func() time.Time
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{d: d, now: time.Now}
}

// Message is one inbound operational message.
type Message struct {
	Text            string
	Sender          string
	SenderPhone     string
	Department      string
	CommunicationID string
}

type ProcessResult struct {
	Handled         bool
	Reply           string
	EventType       domain.Category
	EventID         string
	IncompleteEvent bool
}

type FollowUpResult struct {
	Handled   bool
	Reply     string
	Completed bool
	EventID   string
}

// ProcessMessage classifies msg and either answers it, opens a clarification
// dialogue, or records and escalates an event. Handled=false tells the caller
// to route the message elsewhere. Only persistence failures are returned.
func (o *Orchestrator) ProcessMessage(ctx context.Context, companyID string, msg Message) (ProcessResult, error) {
	text := strings.TrimSpace(msg.Text)
	if utf8.RuneCountInString(text) < minMessageRunes {
		metrics.MessageProcessed("ignored")
		return ProcessResult{}, nil
	}

	category := o.d.EventType.Classify(ctx, text)
	log.Printf("pipeline message company=%s comm=%s category=%s", companyID, msg.CommunicationID, category)

	switch category {
	case domain.CategoryOther, domain.CategoryNotice:
		metrics.MessageProcessed("ignored")
		return ProcessResult{EventType: category}, nil
	case domain.CategoryQuestion:
		metrics.MessageProcessed("answered")
		return ProcessResult{Handled: true, Reply: o.answer(ctx, companyID, text), EventType: category}, nil
	}

	var (
		esc    domain.EscalationClassification
		fields domain.Fields
		g      errgroup.Group
	)
	g.Go(func() error {
		esc = o.d.Severity.Classify(ctx, text)
		return nil
	})
	g.Go(func() error {
		fields = o.d.Extractor.Extract(ctx, text, category)
		return nil
	})
	_ = g.Wait()

	draft := domain.Draft{
		Category:   category,
		Severity:   esc.Severity,
		Impact:     esc.Impact,
		SubType:    esc.SubType,
		Targets:    esc.Targets,
		SenderName: msg.Sender,
		Department: msg.Department,
		Text:       text,
		Fields:     fields,
	}

	if questions := intake.MissingQuestions(category, fields); len(questions) > 0 {
		if domain.DigitsOnly(msg.SenderPhone) != "" {
			rec, err := o.d.Tracker.Open(ctx, companyID, msg.SenderPhone, msg.CommunicationID, draft, questions)
			if err != nil {
				metrics.MessageProcessed("error")
				return ProcessResult{}, err
			}
			metrics.MessageProcessed("incomplete")
			return ProcessResult{
				Handled:         true,
				Reply:           fmt.Sprintf("Entendi, %s. Para registrar a ocorrência preciso saber: %s", categoryLabel(category), rec.NextQuestion()),
				EventType:       category,
				IncompleteEvent: true,
			}, nil
		}
		log.Printf("pipeline message company=%s missing=%d but sender has no phone, registering as is", companyID, len(questions))
	}

	event := eventFromDraft(companyID, msg.CommunicationID, msg.SenderPhone, draft)
	if err := o.d.Store.RegisterOperationalEvent(ctx, &event); err != nil {
		metrics.MessageProcessed("error")
		return ProcessResult{}, err
	}
	metrics.EventRegistered(string(category))
	metrics.MessageProcessed("registered")

	notified := o.escalate(ctx, event, esc)

	reply := fmt.Sprintf("Ocorrência registrada: %s (severidade %s).", categoryLabel(category), severityLabel(event.Severity))
	if trend := o.d.Trend.Evaluate(ctx, companyID, fields.Part(), fields.MachineCode); trend.Suggest {
		reply += " " + trend.Message
	} else if notified > 0 {
		reply += fmt.Sprintf(" %d responsável(is) notificado(s).", notified)
	}
	return ProcessResult{Handled: true, Reply: reply, EventType: category, EventID: event.ID}, nil
}

func (o *Orchestrator) answer(ctx context.Context, companyID, text string) string {
	answerer, kind := o.d.Internal, "internal"
	if marketQuestion.MatchString(text) {
		answerer, kind = o.d.Market, "market"
	}
	if answerer == nil {
		return "No momento não consigo responder a essa dúvida. Tente novamente mais tarde."
	}
	reply, err := answerer.Answer(ctx, companyID, text)
	if err != nil {
		log.Printf("pipeline answer error company=%s kind=%s (non-fatal): %v", companyID, kind, err)
		return "No momento não consigo responder a essa dúvida. Tente novamente mais tarde."
	}
	log.Printf("pipeline answer company=%s kind=%s", companyID, kind)
	return reply
}

// ProcessIncompleteFollowUp feeds text to the sender's open clarification
// dialogue. Handled=false means the sender had none.
func (o *Orchestrator) ProcessIncompleteFollowUp(ctx context.Context, companyID, phone, text, commID string) (FollowUpResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return FollowUpResult{}, nil
	}
	rec, ok, err := o.d.Tracker.Active(ctx, companyID, phone)
	if err != nil {
		return FollowUpResult{}, err
	}
	if !ok {
		return FollowUpResult{}, nil
	}

	tr, err := o.d.Tracker.Advance(ctx, rec, text)
	if err != nil {
		metrics.MessageProcessed("error")
		return FollowUpResult{}, err
	}
	if !tr.Completed {
		metrics.MessageProcessed("followup_pending")
		return FollowUpResult{Handled: true, Reply: tr.NextQuestion}, nil
	}

	draft := tr.Record.Draft
	draft.Fields = tr.Fields
	event := eventFromDraft(companyID, rec.CommunicationID, rec.SenderPhone, draft)
	event.Metadata["completed_by_communication_id"] = commID
	event.Metadata["incomplete_event_id"] = rec.ID

	if err := o.d.Store.CompleteIncompleteEvent(ctx, tr.Record, &event); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("pipeline followup id=%s already closed by another turn", rec.ID)
			return FollowUpResult{Handled: true, Reply: "Essa ocorrência já foi registrada."}, nil
		}
		metrics.MessageProcessed("error")
		return FollowUpResult{}, err
	}
	metrics.EventRegistered(string(event.EventType))
	metrics.MessageProcessed("followup_completed")
	log.Printf("pipeline followup completed id=%s event=%s", rec.ID, event.ID)

	reply := fmt.Sprintf("Obrigado! Ocorrência registrada: %s (severidade %s).", categoryLabel(event.EventType), severityLabel(event.Severity))
	if n := o.escalate(ctx, event, draft.Escalation()); n > 0 {
		reply += fmt.Sprintf(" %d responsável(is) notificado(s).", n)
	}
	return FollowUpResult{Handled: true, Reply: reply, Completed: true, EventID: event.ID}, nil
}

// DetectFailurePattern reports machines with repeated recent failures.
func (o *Orchestrator) DetectFailurePattern(ctx context.Context, companyID string, windowHours, minFails int) ([]analysis.Pattern, error) {
	return o.d.Patterns.Detect(ctx, companyID, windowHours, minFails)
}

// escalate notifies tiers above supervision and stamps the event once at
// least one recipient accepted. It returns how many were notified.
func (o *Orchestrator) escalate(ctx context.Context, e domain.OperationalEvent, esc domain.EscalationClassification) int {
	if !esc.Escalates() || o.d.Notifier == nil {
		return 0
	}
	sent, err := o.d.Notifier.Notify(ctx, e.CompanyID, escalationBody(e), esc.Targets, e.Department)
	if err != nil {
		log.Printf("pipeline escalate event=%s error (non-fatal): %v", e.ID, err)
		return 0
	}
	if len(sent) == 0 {
		return 0
	}
	if err := o.d.Store.MarkEscalationSent(ctx, e.ID, o.now()); err != nil {
		log.Printf("pipeline escalate event=%s mark sent error (non-fatal): %v", e.ID, err)
	}
	return len(sent)
}

func eventFromDraft(companyID, commID, phone string, d domain.Draft) domain.OperationalEvent {
	severity := d.Severity
	if !severity.Valid() {
		severity = domain.SeverityLow
	}
	targets := make([]string, len(d.Targets))
	for i, t := range d.Targets {
		targets[i] = string(t)
	}
	return domain.OperationalEvent{
		CompanyID:       companyID,
		CommunicationID: commID,
		EventType:       d.Category,
		Severity:        severity,
		Status:          domain.EventOpen,
		MachineName:     strings.TrimSpace(d.Fields.MachineName),
		MachineCode:     strings.TrimSpace(d.Fields.MachineCode),
		PartCode:        strings.TrimSpace(d.Fields.PartCode),
		PartName:        strings.TrimSpace(d.Fields.PartName),
		SenderPhone:     phone,
		SenderName:      d.SenderName,
		Department:      d.Department,
		ProductionStop:  d.Fields.ProductionStop,
		WasReplaced:     d.Fields.WasReplaced,
		ExtractedFields: d.Fields.Map(),
		Metadata: map[string]any{
			"impact":   d.Impact,
			"sub_type": d.SubType,
			"targets":  targets,
			"text":     excerpt(d.Text, excerptRunes),
		},
	}
}

func escalationBody(e domain.OperationalEvent) string {
	orDash := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	}
	text, _ := e.Metadata["text"].(string)
	return fmt.Sprintf(
		"Ocorrência %s (severidade %s)\nRelatado por: %s\nMáquina: %s\nPeça: %s\nMensagem: %s",
		categoryLabel(e.EventType), severityLabel(e.Severity),
		orDash(e.SenderName),
		orDash(firstNonEmpty(e.MachineName, e.MachineCode)),
		orDash(firstNonEmpty(e.PartCode, e.PartName)),
		orDash(text),
	)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

var categoryLabels = map[domain.Category]string{
	domain.CategoryPartBreakage:    "quebra de peça",
	domain.CategoryMachineFailure:  "falha de máquina",
	domain.CategoryMissingSupply:   "falta de insumo",
	domain.CategoryDelay:           "atraso",
	domain.CategoryMaterialRequest: "pedido de material",
	domain.CategoryRisk:            "risco",
	domain.CategoryProductionStop:  "parada de produção",
	domain.CategoryUrgentRequest:   "pedido urgente",
	domain.CategoryFinancialInfo:   "informação financeira",
	domain.CategoryTechnicalFault:  "falha técnica",
	domain.CategoryTask:            "tarefa",
	domain.CategoryAlert:           "alerta",
}

func categoryLabel(c domain.Category) string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

func severityLabel(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "crítica"
	case domain.SeverityHigh:
		return "alta"
	case domain.SeverityMedium:
		return "média"
	default:
		return "baixa"
	}
}
