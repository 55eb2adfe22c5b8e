package intake

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"floorbot/internal/domain"
)

func TestMissingQuestions(t *testing.T) {
	tests := []struct {
		name     string
		category domain.Category
		fields   domain.Fields
		want     []string
	}{
		{
			name:     "breakage with nothing known asks all four",
			category: domain.CategoryPartBreakage,
			want:     []string{QuestionMachine, QuestionPart, QuestionReplaced, QuestionProductionStop},
		},
		{
			name:     "breakage with machine, part and stop asks only replacement",
			category: domain.CategoryPartBreakage,
			fields:   domain.Fields{MachineName: "prensa 3", PartCode: "ROL-6204", ProductionStop: domain.Bool(true)},
			want:     []string{QuestionReplaced},
		},
		{
			name:     "machine failure with a machine code asks production stop",
			category: domain.CategoryMachineFailure,
			fields:   domain.Fields{MachineCode: "EXT-01"},
			want:     []string{QuestionProductionStop},
		},
		{
			name:     "material request without machine forces the machine question",
			category: domain.CategoryMaterialRequest,
			fields:   domain.Fields{PartName: "luvas"},
			want:     []string{QuestionMachine},
		},
		{
			name:     "missing supply with nothing known asks machine then part",
			category: domain.CategoryMissingSupply,
			want:     []string{QuestionMachine, QuestionPart},
		},
		{
			name:     "untemplated category is complete",
			category: domain.CategoryDelay,
			want:     nil,
		},
		{
			name:     "other is complete",
			category: domain.CategoryOther,
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MissingQuestions(tt.category, tt.fields)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("MissingQuestions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordAnswerReturnsNextQuestion(t *testing.T) {
	rec := domain.IncompleteEventRecord{
		ID:               "r1",
		PendingQuestions: []string{QuestionMachine, QuestionReplaced},
		Status:           domain.IncompletePending,
	}
	tr := RecordAnswer(rec, "  prensa 3 ")
	if tr.Completed {
		t.Fatal("dialogue should still be open")
	}
	if tr.NextQuestion != QuestionReplaced {
		t.Fatalf("unexpected next question: %q", tr.NextQuestion)
	}
	if !reflect.DeepEqual(tr.Record.Answers, []string{"prensa 3"}) {
		t.Fatalf("unexpected answers: %v", tr.Record.Answers)
	}
	if len(rec.Answers) != 0 {
		t.Fatal("RecordAnswer must not mutate the caller's answers")
	}
}

func TestRecordAnswerCompletesAndInfersFields(t *testing.T) {
	rec := domain.IncompleteEventRecord{
		PendingQuestions: []string{QuestionMachine, QuestionPart, QuestionReplaced, QuestionProductionStop},
		Answers:          []string{"injetora 2", "ROL-6204", "sim, troquei"},
		Status:           domain.IncompletePending,
		Draft: domain.Draft{
			Category: domain.CategoryPartBreakage,
			Fields:   domain.Fields{PartName: "rolamento", Quantity: 2},
		},
	}
	tr := RecordAnswer(rec, "não parou")
	if !tr.Completed || tr.Record.Status != domain.IncompleteCompleted {
		t.Fatalf("expected completion, got %+v", tr)
	}
	f := tr.Fields
	if f.MachineName != "injetora 2" || f.PartCode != "ROL-6204" {
		t.Fatalf("unexpected identity fields: %+v", f)
	}
	if f.PartName != "rolamento" || f.Quantity != 2 {
		t.Fatalf("draft fields should survive: %+v", f)
	}
	if f.WasReplaced == nil || !*f.WasReplaced {
		t.Fatalf("expected was_replaced=true, got %v", f.WasReplaced)
	}
	if f.ProductionStop == nil || *f.ProductionStop {
		t.Fatalf("expected production_stop=false, got %v", f.ProductionStop)
	}
}

func TestInferFieldsNegatedAnswers(t *testing.T) {
	f := InferFields(domain.Fields{},
		[]string{QuestionReplaced, QuestionProductionStop},
		[]string{"ainda não foi substituída", "a linha não parou"})
	if f.WasReplaced == nil || *f.WasReplaced {
		t.Fatalf("expected was_replaced=false, got %v", f.WasReplaced)
	}
	if f.ProductionStop == nil || *f.ProductionStop {
		t.Fatalf("expected production_stop=false, got %v", f.ProductionStop)
	}
}

func TestAffirmative(t *testing.T) {
	tests := map[string]bool{
		"sim":             true,
		"Sim, troquei":    true,
		"trocado ontem":   true,
		"foi substituída": true,
		"parou tudo":      true,
		"S":               true,
		"não":             false,
		"Nao foi trocada": false,
		"n":               false,
		"talvez":          false,
		"":                false,

		"a linha não parou":          false,
		"ainda não foi substituída":  false,
		"acho que não parou":         false,
		"Negativo, seguimos rodando": false,
		"sim, não tinha reserva":     true,
	}
	for in, want := range tests {
		if got := Affirmative(in); got != want {
			t.Fatalf("Affirmative(%q) = %v, want %v", in, got, want)
		}
	}
}

type memoryStore struct {
	records []domain.IncompleteEventRecord
	saveErr error
}

func (m *memoryStore) CreateIncompleteEvent(_ context.Context, rec *domain.IncompleteEventRecord) error {
	rec.ID = "rec-1"
	m.records = append(m.records, *rec)
	return nil
}

func (m *memoryStore) FindActiveIncomplete(_ context.Context, companyID, phone string) (domain.IncompleteEventRecord, error) {
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.CompanyID == companyID && r.Status == domain.IncompletePending && domain.PhonesMatch(r.SenderPhone, phone) {
			return r, nil
		}
	}
	return domain.IncompleteEventRecord{}, domain.ErrNotFound
}

func (m *memoryStore) UpdateIncompleteAnswers(_ context.Context, rec domain.IncompleteEventRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	for i := range m.records {
		if m.records[i].ID == rec.ID {
			m.records[i] = rec
		}
	}
	return nil
}

func TestTrackerOpenAdvanceAndLookup(t *testing.T) {
	store := &memoryStore{}
	tracker := NewTracker(store)
	ctx := context.Background()

	draft := domain.Draft{Category: domain.CategoryMachineFailure, Text: "a extrusora falhou"}
	rec, err := tracker.Open(ctx, "acme", "+55 (11) 98888-7777", "comm-1", draft, []string{QuestionMachine, QuestionProductionStop})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if rec.SenderDigits != "5511988887777" || rec.NextQuestion() != QuestionMachine {
		t.Fatalf("unexpected record: %+v", rec)
	}

	active, ok, err := tracker.Active(ctx, "acme", "11988887777")
	if err != nil || !ok {
		t.Fatalf("Active by suffix failed: ok=%v err=%v", ok, err)
	}
	if _, ok, err := tracker.Active(ctx, "acme", "5521977776666"); ok || err != nil {
		t.Fatalf("expected a clean miss, ok=%v err=%v", ok, err)
	}

	tr, err := tracker.Advance(ctx, active, "extrusora 1")
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if tr.Completed || tr.NextQuestion != QuestionProductionStop {
		t.Fatalf("unexpected transition: %+v", tr)
	}
	if got := store.records[0].Answers; len(got) != 1 || got[0] != "extrusora 1" {
		t.Fatalf("answer not persisted: %v", got)
	}

	tr, err = tracker.Advance(ctx, tr.Record, "sim")
	if err != nil {
		t.Fatalf("final Advance failed: %v", err)
	}
	if !tr.Completed || tr.Fields.MachineName != "extrusora 1" || tr.Fields.ProductionStop == nil || !*tr.Fields.ProductionStop {
		t.Fatalf("unexpected completion: %+v", tr)
	}
	if len(store.records[0].Answers) != 1 {
		t.Fatal("completion must be left to the caller to persist")
	}
}

func TestTrackerAdvancePropagatesStoreError(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("disk full")}
	tracker := NewTracker(store)
	rec := domain.IncompleteEventRecord{ID: "r", PendingQuestions: []string{QuestionMachine, QuestionPart}}
	if _, err := tracker.Advance(context.Background(), rec, "prensa"); err == nil {
		t.Fatal("expected store error to propagate")
	}
}
