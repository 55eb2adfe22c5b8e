package intake

import "floorbot/internal/domain"

// Canonical clarification questions. Answer inference keys off their wording,
// so keep "máquina", "peça", "substituída" and "parada" in them.
const (
	QuestionMachine        = "Qual máquina apresentou o problema?"
	QuestionPart           = "Qual o código ou nome da peça?"
	QuestionReplaced       = "Foi substituída?"
	QuestionProductionStop = "Houve parada de produção?"
)

type slot int

const (
	slotMachine slot = iota
	slotPart
	slotReplaced
	slotProductionStop
)

// templates lists, per category, which slots must be known before an event
// can be recorded. Categories without a template are always complete.
var templates = map[domain.Category][]slot{
	domain.CategoryPartBreakage:    {slotMachine, slotPart, slotReplaced, slotProductionStop},
	domain.CategoryMachineFailure:  {slotMachine, slotProductionStop},
	domain.CategoryProductionStop:  {slotMachine},
	domain.CategoryMissingSupply:   {slotPart},
	domain.CategoryMaterialRequest: {slotPart},
}

// MissingQuestions returns the questions still needed for category, at most
// four, in machine, part, replaced, production stop order.
func MissingQuestions(category domain.Category, f domain.Fields) []string {
	required, ok := templates[category]
	if !ok {
		return nil
	}

	need := make(map[slot]bool, 4)
	for _, s := range required {
		switch s {
		case slotMachine:
			need[s] = !f.HasMachine()
		case slotPart:
			need[s] = !f.HasPart()
		case slotReplaced:
			need[s] = f.WasReplaced == nil
		case slotProductionStop:
			need[s] = f.ProductionStop == nil
		}
	}
	// Every templated event is anchored to a machine.
	if !f.HasMachine() && category != domain.CategoryOther {
		need[slotMachine] = true
	}

	var questions []string
	for _, s := range []slot{slotMachine, slotPart, slotReplaced, slotProductionStop} {
		if need[s] {
			questions = append(questions, questionFor(s))
		}
	}
	return questions
}

func questionFor(s slot) string {
	switch s {
	case slotMachine:
		return QuestionMachine
	case slotPart:
		return QuestionPart
	case slotReplaced:
		return QuestionReplaced
	default:
		return QuestionProductionStop
	}
}
