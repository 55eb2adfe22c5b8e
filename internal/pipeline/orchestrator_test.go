package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"floorbot/internal/analysis"
	"floorbot/internal/classify"
	"floorbot/internal/directory"
	"floorbot/internal/domain"
	"floorbot/internal/intake"
	"floorbot/internal/integrations/llm"
	"floorbot/internal/notify"
	"floorbot/internal/storage/sqlite"
)

// scriptedCompleter answers each prompt kind with a fixed reply and records
// which kinds were asked.
type scriptedCompleter struct {
	mu         sync.Mutex
	eventType  string
	severity   string
	extraction string
	answer     string
	calls      []string
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(prompt, "Classifique a mensagem"):
		s.calls = append(s.calls, "event_type")
		return s.eventType, nil
	case strings.Contains(prompt, "Avalie a ocorrência"):
		s.calls = append(s.calls, "severity")
		return s.severity, nil
	case strings.Contains(prompt, "Extraia os campos"):
		s.calls = append(s.calls, "extraction")
		return s.extraction, nil
	case strings.Contains(prompt, "assistente de compras"):
		s.calls = append(s.calls, "market")
		return s.answer, nil
	case strings.Contains(prompt, "Pergunta:"):
		s.calls = append(s.calls, "internal")
		return s.answer, nil
	}
	return "", errors.New("unexpected prompt")
}

func (s *scriptedCompleter) called(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == kind {
			return true
		}
	}
	return false
}

type recordingGateway struct {
	mu   sync.Mutex
	sent []string
}

func (g *recordingGateway) Send(_ context.Context, _, phone, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, phone)
	return nil
}

const senderPhone = "+55 (11) 98888-7777"

func newTestPipeline(t *testing.T, c *scriptedCompleter) (*Orchestrator, *sqlite.Store, *recordingGateway) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pipeline-test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for _, u := range []sqlite.DirectoryUser{
		{Name: "Gerente", Phone: "5511900000002", HierarchyLevel: 2},
		{Name: "Coordenadora", WhatsApp: "5511900000003", HierarchyLevel: 3},
		{Name: "Supervisor", Phone: "5511900000004", HierarchyLevel: 4},
	} {
		if _, err := store.AddUser(ctx, "acme", u); err != nil {
			t.Fatalf("AddUser failed: %v", err)
		}
	}

	gw := &recordingGateway{}
	o := New(Deps{
		EventType: classify.NewEventTypeClassifier(c, nil),
		Severity:  classify.NewSeverityClassifier(c),
		Extractor: classify.NewFieldExtractor(c),
		Internal:  llm.NewInternalAnswerer(c),
		Market:    llm.NewMarketAnswerer(c),
		Store:     store,
		Tracker:   intake.NewTracker(store),
		Notifier:  notify.NewNotifier(directory.NewResolver(store), gw),
		Trend:     analysis.NewTrendEvaluator(store),
		Patterns:  analysis.NewPatternDetector(store),
	})
	return o, store, gw
}

func TestBreakageReportAsksForReplacementThenCompletes(t *testing.T) {
	c := &scriptedCompleter{
		severity:   `{"severity": "medium", "impact": "médio", "sub_type": "mecânica"}`,
		extraction: `{"machine_name": "linha 2", "machine_code": null, "part_code": "ENG-09", "part_name": "engrenagem", "quantity": null, "production_stop": false, "was_replaced": null}`,
	}
	o, store, gw := newTestPipeline(t, c)
	ctx := context.Background()

	res, err := o.ProcessMessage(ctx, "acme", Message{
		Text:            "Motor da linha 2 quebrou, engrenagem ENG-09, não sei se foi substituída, não parou a produção",
		Sender:          "Carlos",
		SenderPhone:     senderPhone,
		CommunicationID: "msg-1",
	})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if c.called("event_type") {
		t.Fatal("keyword rule should have classified the breakage without the provider")
	}
	if !res.Handled || !res.IncompleteEvent || res.EventType != domain.CategoryPartBreakage || res.EventID != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Reply, intake.QuestionReplaced) || strings.Count(res.Reply, "?") != 1 {
		t.Fatalf("reply should carry exactly the replacement question: %q", res.Reply)
	}

	rec, err := store.FindActiveIncomplete(ctx, "acme", senderPhone)
	if err != nil {
		t.Fatalf("pending record not found: %v", err)
	}
	if len(rec.PendingQuestions) != 1 || rec.PendingQuestions[0] != intake.QuestionReplaced {
		t.Fatalf("unexpected pending questions: %v", rec.PendingQuestions)
	}

	up, err := o.ProcessIncompleteFollowUp(ctx, "acme", "11988887777", "sim, troquei", "msg-2")
	if err != nil {
		t.Fatalf("ProcessIncompleteFollowUp failed: %v", err)
	}
	if !up.Handled || !up.Completed || up.EventID == "" {
		t.Fatalf("unexpected follow-up result: %+v", up)
	}

	done, err := store.GetIncompleteEvent(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetIncompleteEvent failed: %v", err)
	}
	if done.Status != domain.IncompleteCompleted {
		t.Fatalf("record should be completed, got %s", done.Status)
	}

	e, err := store.GetEvent(ctx, up.EventID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if e.WasReplaced == nil || !*e.WasReplaced {
		t.Fatalf("expected was_replaced=true, got %v", e.WasReplaced)
	}
	if e.ProductionStop == nil || *e.ProductionStop {
		t.Fatalf("expected production_stop=false, got %v", e.ProductionStop)
	}
	if e.MachineName != "linha 2" || e.PartCode != "ENG-09" || e.CommunicationID != "msg-1" || e.SenderName != "Carlos" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.EscalationSentAt == nil {
		t.Fatal("medium severity reaches coordination and must be escalated")
	}
	if len(gw.sent) != 2 {
		t.Fatalf("expected coordination and supervision notified, got %v", gw.sent)
	}

	again, err := o.ProcessIncompleteFollowUp(ctx, "acme", senderPhone, "sim", "msg-3")
	if err != nil || again.Handled {
		t.Fatalf("no dialogue should remain open: %+v err=%v", again, err)
	}
}

func TestFollowUpAsksNextQuestion(t *testing.T) {
	c := &scriptedCompleter{
		severity:   `{"severity": "low", "impact": "baixo", "sub_type": "mecânica"}`,
		extraction: `{}`,
	}
	o, store, _ := newTestPipeline(t, c)
	ctx := context.Background()

	res, err := o.ProcessMessage(ctx, "acme", Message{Text: "A peça rachou de novo", SenderPhone: senderPhone, CommunicationID: "m1"})
	if err != nil || !res.IncompleteEvent {
		t.Fatalf("expected incomplete event, got %+v err=%v", res, err)
	}
	if !strings.Contains(res.Reply, intake.QuestionMachine) {
		t.Fatalf("first question should be the machine: %q", res.Reply)
	}

	up, err := o.ProcessIncompleteFollowUp(ctx, "acme", senderPhone, "prensa 3", "m2")
	if err != nil {
		t.Fatalf("follow-up failed: %v", err)
	}
	if !up.Handled || up.Completed || up.Reply != intake.QuestionPart {
		t.Fatalf("unexpected follow-up: %+v", up)
	}
	rec, err := store.FindActiveIncomplete(ctx, "acme", senderPhone)
	if err != nil || len(rec.Answers) != 1 || rec.Answers[0] != "prensa 3" {
		t.Fatalf("answer not persisted: %+v err=%v", rec, err)
	}
}

func TestCompleteReportIsRegisteredAndEscalated(t *testing.T) {
	c := &scriptedCompleter{
		severity:   `{"severity": "high", "impact": "alto", "sub_type": "travamento"}`,
		extraction: `{"machine_name": "injetora", "machine_code": "INJ-04", "production_stop": true}`,
	}
	o, store, gw := newTestPipeline(t, c)
	ctx := context.Background()

	res, err := o.ProcessMessage(ctx, "acme", Message{Text: "A máquina travou na injetora INJ-04, produção parada", SenderPhone: senderPhone, CommunicationID: "m1"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !res.Handled || res.IncompleteEvent || res.EventType != domain.CategoryMachineFailure || res.EventID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Reply, "2 responsável(is) notificado(s)") {
		t.Fatalf("reply should mention notified recipients: %q", res.Reply)
	}
	if len(gw.sent) != 2 || gw.sent[0] != "5511900000002" {
		t.Fatalf("expected management then coordination, got %v", gw.sent)
	}

	e, err := store.GetEvent(ctx, res.EventID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if e.Severity != domain.SeverityHigh || e.MachineCode != "INJ-04" || e.EscalationSentAt == nil {
		t.Fatalf("unexpected event: %+v", e)
	}
	history, err := store.MachineHistory(ctx, e.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one history row, got %v err=%v", history, err)
	}
}

func TestLowSeverityIsNotEscalated(t *testing.T) {
	c := &scriptedCompleter{
		severity:   `não sei avaliar`,
		extraction: `{"machine_name": "esteira 1"}`,
	}
	o, store, gw := newTestPipeline(t, c)

	res, err := o.ProcessMessage(context.Background(), "acme", Message{Text: "O caminhão de entrega está atrasado na esteira 1", SenderPhone: senderPhone})
	if err != nil || !res.Handled || res.EventType != domain.CategoryDelay {
		t.Fatalf("unexpected result: %+v err=%v", res, err)
	}
	if len(gw.sent) != 0 {
		t.Fatalf("low severity must not notify, got %v", gw.sent)
	}
	e, err := store.GetEvent(context.Background(), res.EventID)
	if err != nil || e.Severity != domain.SeverityLow || e.EscalationSentAt != nil {
		t.Fatalf("unexpected event: %+v err=%v", e, err)
	}
}

func TestTrendSuggestionIsAppended(t *testing.T) {
	c := &scriptedCompleter{
		severity:   `{"severity": "low", "impact": "baixo", "sub_type": "desgaste"}`,
		extraction: `{"machine_name": "prensa", "machine_code": "P-2", "part_code": "ROL-1", "part_name": "rolamento", "production_stop": false, "was_replaced": true}`,
	}
	o, store, _ := newTestPipeline(t, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		prior := &domain.OperationalEvent{
			CompanyID: "acme", EventType: domain.CategoryPartBreakage, Severity: domain.SeverityLow,
			MachineCode: "P-2", PartCode: "ROL-1", CreatedAt: time.Now().UTC().AddDate(0, 0, -(i + 1)),
		}
		if err := store.RegisterOperationalEvent(ctx, prior); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	res, err := o.ProcessMessage(ctx, "acme", Message{Text: "Rolamento ROL-1 quebrou na prensa P-2, já trocamos, sem parada", SenderPhone: senderPhone})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !res.Handled || res.EventID == "" || !strings.Contains(res.Reply, "Consumo acima do normal") {
		t.Fatalf("expected trend suggestion in reply: %+v", res)
	}
}

func TestNoticeAndOtherAreNotHandled(t *testing.T) {
	for _, label := range []string{"comunicado", "banana"} {
		c := &scriptedCompleter{eventType: label}
		o, store, _ := newTestPipeline(t, c)

		res, err := o.ProcessMessage(context.Background(), "acme", Message{Text: "Amanhã não haverá expediente no turno da noite", SenderPhone: senderPhone})
		if err != nil {
			t.Fatalf("ProcessMessage failed: %v", err)
		}
		if res.Handled {
			t.Fatalf("label %q should not be handled: %+v", label, res)
		}
		if c.called("severity") || c.called("extraction") {
			t.Fatalf("label %q must stop before severity and extraction", label)
		}
		if _, err := store.FindActiveIncomplete(context.Background(), "acme", senderPhone); !errors.Is(err, sqlite.ErrNotFound) {
			t.Fatalf("no dialogue should be opened for %q", label)
		}
	}
}

func TestShortMessageIsIgnored(t *testing.T) {
	c := &scriptedCompleter{}
	o, _, _ := newTestPipeline(t, c)
	res, err := o.ProcessMessage(context.Background(), "acme", Message{Text: " ok ", SenderPhone: senderPhone})
	if err != nil || res.Handled || len(c.calls) != 0 {
		t.Fatalf("short message should be dropped without provider calls: %+v err=%v calls=%v", res, err, c.calls)
	}
}

func TestQuestionsRouteByMarketHeuristic(t *testing.T) {
	tests := []struct {
		text string
		kind string
	}{
		{"Qual o preço do rolamento 6204 hoje?", "market"},
		{"Como faço a lubrificação da prensa hidráulica?", "internal"},
	}
	for _, tt := range tests {
		c := &scriptedCompleter{eventType: "dúvida", answer: "Resposta de teste."}
		o, _, _ := newTestPipeline(t, c)

		res, err := o.ProcessMessage(context.Background(), "acme", Message{Text: tt.text, SenderPhone: senderPhone})
		if err != nil {
			t.Fatalf("ProcessMessage failed: %v", err)
		}
		if !res.Handled || res.EventType != domain.CategoryQuestion || res.Reply != "Resposta de teste." {
			t.Fatalf("unexpected result for %q: %+v", tt.text, res)
		}
		if !c.called(tt.kind) || c.called("severity") {
			t.Fatalf("expected only the %s answerer for %q, calls=%v", tt.kind, tt.text, c.calls)
		}
	}
}

func TestQuestionAnswerFailureFallsBack(t *testing.T) {
	c := &scriptedCompleter{eventType: "duvida", answer: "   "}
	o, _, _ := newTestPipeline(t, c)
	res, err := o.ProcessMessage(context.Background(), "acme", Message{Text: "Como faço a limpeza do bico?", SenderPhone: senderPhone})
	if err != nil || !res.Handled || !strings.Contains(res.Reply, "não consigo responder") {
		t.Fatalf("expected fallback reply: %+v err=%v", res, err)
	}
}

func TestDetectFailurePattern(t *testing.T) {
	o, store, _ := newTestPipeline(t, &scriptedCompleter{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e := &domain.OperationalEvent{
			CompanyID: "acme", EventType: domain.CategoryProductionStop, Severity: domain.SeverityMedium,
			MachineName: "Extrusora 1", CreatedAt: time.Now().UTC().Add(-time.Duration(i+1) * time.Hour),
		}
		if err := store.RegisterOperationalEvent(ctx, e); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	patterns, err := o.DetectFailurePattern(ctx, "acme", 24, 3)
	if err != nil {
		t.Fatalf("DetectFailurePattern failed: %v", err)
	}
	if len(patterns) != 1 || patterns[0].Label() != "Extrusora 1" {
		t.Fatalf("unexpected patterns: %+v", patterns)
	}
}

func TestExcerptTruncatesByRunes(t *testing.T) {
	s := strings.Repeat("ç", 205)
	got := excerpt(s, 200)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 201 {
		t.Fatalf("unexpected excerpt length %d", len([]rune(got)))
	}
	if excerpt("curto", 200) != "curto" {
		t.Fatal("short text must be kept")
	}
}
