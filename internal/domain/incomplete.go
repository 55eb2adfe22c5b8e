package domain

import "time"

type IncompleteStatus string

const (
	IncompletePending   IncompleteStatus = "pending"
	IncompleteCompleted IncompleteStatus = "completed"
	IncompleteAbandoned IncompleteStatus = "abandoned"
)

// Draft is everything known about an event while its clarification dialogue
// is still open.
type Draft struct {
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Impact     string   `json:"impact,omitempty"`
	SubType    string   `json:"sub_type,omitempty"`
	Targets    []Target `json:"targets,omitempty"`
	SenderName string   `json:"sender_name,omitempty"`
	Department string   `json:"department,omitempty"`
	Text       string   `json:"text"`
	Fields     Fields   `json:"fields"`
}

// Escalation rebuilds the severity verdict captured in the draft.
func (d Draft) Escalation() EscalationClassification {
	return EscalationClassification{Severity: d.Severity, Impact: d.Impact, SubType: d.SubType, Targets: d.Targets}
}

// IncompleteEventRecord tracks one clarification dialogue. Answers is an
// append-only list aligned by index with PendingQuestions.
type IncompleteEventRecord struct {
	ID               string
	CompanyID        string
	CommunicationID  string
	SenderPhone      string
	SenderDigits     string
	PendingQuestions []string
	Answers          []string
	Status           IncompleteStatus
	Draft            Draft
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NextQuestion returns the first unanswered question, or "" when done.
func (r IncompleteEventRecord) NextQuestion() string {
	if len(r.Answers) >= len(r.PendingQuestions) {
		return ""
	}
	return r.PendingQuestions[len(r.Answers)]
}

func (r IncompleteEventRecord) Complete() bool {
	return len(r.Answers) >= len(r.PendingQuestions)
}
