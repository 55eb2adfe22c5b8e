package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"floorbot/internal/classify"
	"floorbot/internal/domain"
)

// Store persists clarification dialogues.
type Store interface {
	CreateIncompleteEvent(ctx context.Context, rec *domain.IncompleteEventRecord) error
	FindActiveIncomplete(ctx context.Context, companyID, phone string) (domain.IncompleteEventRecord, error)
	UpdateIncompleteAnswers(ctx context.Context, rec domain.IncompleteEventRecord) error
}

// Tracker drives the multi-turn clarification state machine.
type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Transition is the outcome of recording one answer.
type Transition struct {
	Record    domain.IncompleteEventRecord
	Completed bool
	// NextQuestion is set while the dialogue is still open.
	NextQuestion string
	// Fields is the draft merged with the inferred answers once Completed.
	Fields domain.Fields
}

// Open persists a new pending dialogue and returns it with the first question
// ready to send.
func (t *Tracker) Open(ctx context.Context, companyID string, msgPhone, commID string, draft domain.Draft, questions []string) (domain.IncompleteEventRecord, error) {
	rec := domain.IncompleteEventRecord{
		CompanyID:        companyID,
		CommunicationID:  commID,
		SenderPhone:      msgPhone,
		SenderDigits:     domain.DigitsOnly(msgPhone),
		PendingQuestions: questions,
		Answers:          []string{},
		Status:           domain.IncompletePending,
		Draft:            draft,
	}
	if err := t.store.CreateIncompleteEvent(ctx, &rec); err != nil {
		return domain.IncompleteEventRecord{}, fmt.Errorf("open incomplete event: %w", err)
	}
	log.Printf("intake open id=%s company=%s category=%s questions=%d", rec.ID, companyID, draft.Category, len(questions))
	return rec, nil
}

// Active returns the sender's most recent pending dialogue. A miss is
// reported as ok=false, not as an error.
func (t *Tracker) Active(ctx context.Context, companyID, phone string) (rec domain.IncompleteEventRecord, ok bool, err error) {
	rec, err = t.store.FindActiveIncomplete(ctx, companyID, phone)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.IncompleteEventRecord{}, false, nil
	}
	if err != nil {
		return domain.IncompleteEventRecord{}, false, fmt.Errorf("find active incomplete event: %w", err)
	}
	return rec, true, nil
}

// Advance records answer and persists the new cursor while questions remain.
// A completed transition is not persisted here: the caller finalizes the
// record together with the event it produces.
func (t *Tracker) Advance(ctx context.Context, rec domain.IncompleteEventRecord, answer string) (Transition, error) {
	tr := RecordAnswer(rec, answer)
	if tr.Completed {
		return tr, nil
	}
	if err := t.store.UpdateIncompleteAnswers(ctx, tr.Record); err != nil {
		return Transition{}, fmt.Errorf("save answer: %w", err)
	}
	log.Printf("intake answer id=%s answered=%d/%d", rec.ID, len(tr.Record.Answers), len(tr.Record.PendingQuestions))
	return tr, nil
}

// RecordAnswer appends answer at the cursor. When every question has an
// answer the record becomes completed and the answers are folded into the
// draft fields.
func RecordAnswer(rec domain.IncompleteEventRecord, answer string) Transition {
	answers := make([]string, len(rec.Answers), len(rec.Answers)+1)
	copy(answers, rec.Answers)
	rec.Answers = append(answers, strings.TrimSpace(answer))

	if !rec.Complete() {
		return Transition{Record: rec, NextQuestion: rec.NextQuestion()}
	}
	rec.Status = domain.IncompleteCompleted
	return Transition{
		Record:    rec,
		Completed: true,
		Fields:    InferFields(rec.Draft.Fields, rec.PendingQuestions, rec.Answers),
	}
}

// InferFields maps each answer onto a field chosen by its question's wording.
func InferFields(base domain.Fields, questions, answers []string) domain.Fields {
	f := base
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		a := answers[i]
		switch wording := classify.Fold(q); {
		case strings.Contains(wording, "maquina"):
			f.MachineName = a
		case strings.Contains(wording, "codigo"), strings.Contains(wording, "peca"):
			f.PartCode = a
		case strings.Contains(wording, "substituida"):
			f.WasReplaced = domain.Bool(Affirmative(a))
		case strings.Contains(wording, "parada"):
			f.ProductionStop = domain.Bool(Affirmative(a))
		}
	}
	return f
}

var (
	leadingYes        = regexp.MustCompile(`^\W*(sim|s|yes|positivo|afirmativo|claro)\b`)
	leadingNo         = regexp.MustCompile(`^\W*n\b`)
	negation          = regexp.MustCompile(`\b(nao|negativo|nenhuma?|nunca|nem)\b`)
	affirmativeAnswer = regexp.MustCompile(`\b(sim|s|yes|ok|positivo|afirmativo|claro|troquei|trocou|trocamos|trocad[ao]s?|substitui\w*|substituid[ao]s?|parou|paramos|parad[ao]s?)\b`)
)

// Affirmative reads a yes/no answer. A leading "sim" wins; otherwise any
// negation word makes it false ("a linha não parou"). Anything not
// recognizably positive is false.
func Affirmative(answer string) bool {
	a := classify.Fold(answer)
	if leadingYes.MatchString(a) {
		return true
	}
	if leadingNo.MatchString(a) || negation.MatchString(a) {
		return false
	}
	return affirmativeAnswer.MatchString(a)
}
