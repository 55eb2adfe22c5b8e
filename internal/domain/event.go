package domain

import "time"

type EventStatus string

const (
	EventOpen     EventStatus = "open"
	EventResolved EventStatus = "resolved"
)

// OperationalEvent is one finalized occurrence reported from the floor.
// Status transitions belong to the external workflow.
type OperationalEvent struct {
	ID               string
	CompanyID        string
	CommunicationID  string
	EventType        Category
	Severity         Severity
	Status           EventStatus
	MachineName      string
	MachineCode      string
	PartCode         string
	PartName         string
	SenderPhone      string
	SenderName       string
	Department       string
	ProductionStop   *bool
	WasReplaced      *bool
	ExtractedFields  map[string]any
	Metadata         map[string]any
	EscalationSentAt *time.Time
	CreatedAt        time.Time
}

// NeedsHistory reports whether a machine history ledger row must accompany
// the event.
func (e OperationalEvent) NeedsHistory() bool {
	return e.PartCode != "" || e.MachineCode != ""
}

// MachineHistoryEntry is an append-only ledger row per event touching a known
// machine or part code.
type MachineHistoryEntry struct {
	ID              int64
	CompanyID       string
	MachineCode     string
	MachineName     string
	EventType       Category
	PartCode        string
	PartName        string
	Quantity        int
	EventID         string
	CommunicationID string
	CreatedAt       time.Time
}

// HistoryFor builds the ledger row that accompanies e.
func HistoryFor(e OperationalEvent, quantity int) MachineHistoryEntry {
	if quantity < 1 {
		quantity = 1
	}
	return MachineHistoryEntry{
		CompanyID:       e.CompanyID,
		MachineCode:     e.MachineCode,
		MachineName:     e.MachineName,
		EventType:       e.EventType,
		PartCode:        e.PartCode,
		PartName:        e.PartName,
		Quantity:        quantity,
		EventID:         e.ID,
		CommunicationID: e.CommunicationID,
		CreatedAt:       e.CreatedAt,
	}
}

// FailureGroup is one machine whose recent failures reached the pattern
// threshold.
type FailureGroup struct {
	MachineCode string
	MachineName string
	Count       int
}

// Label returns the machine name, or its code when no name was recorded.
func (g FailureGroup) Label() string {
	if g.MachineName != "" {
		return g.MachineName
	}
	return g.MachineCode
}
