package domain

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Target is an escalation tier of the organizational hierarchy.
type Target string

const (
	TargetSupervision  Target = "supervisão"
	TargetCoordination Target = "coordenação"
	TargetManagement   Target = "gerência"
	TargetExecutive    Target = "direção"
)

// EscalationTargets maps a severity to the tiers that must be told about it.
var EscalationTargets = map[Severity][]Target{
	SeverityCritical: {TargetCoordination, TargetManagement, TargetExecutive},
	SeverityHigh:     {TargetCoordination, TargetManagement},
	SeverityMedium:   {TargetSupervision, TargetCoordination},
	SeverityLow:      {TargetSupervision},
}

// EscalationClassification is produced fresh on every severity classification
// and never persisted.
type EscalationClassification struct {
	Severity Severity
	Impact   string
	SubType  string
	Targets  []Target
}

// Escalates reports whether any target sits above supervision.
func (e EscalationClassification) Escalates() bool {
	return EscalatesAboveSupervision(e.Targets)
}

func EscalatesAboveSupervision(targets []Target) bool {
	for _, t := range targets {
		switch t {
		case TargetCoordination, TargetManagement, TargetExecutive:
			return true
		}
	}
	return false
}

// TargetsFor returns a copy of the escalation table row for severity,
// defaulting to supervision for unknown values.
func TargetsFor(s Severity) []Target {
	row, ok := EscalationTargets[s]
	if !ok {
		row = EscalationTargets[SeverityLow]
	}
	out := make([]Target, len(row))
	copy(out, row)
	return out
}
