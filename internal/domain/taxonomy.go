package domain

// Category is a member of the closed operational event taxonomy.
type Category string

const (
	CategoryPartBreakage    Category = "quebra_peca"
	CategoryMachineFailure  Category = "falha_maquina"
	CategoryMissingSupply   Category = "falta_insumo"
	CategoryDelay           Category = "atraso"
	CategoryMaterialRequest Category = "pedido_material"
	CategoryRisk            Category = "risco"
	CategoryProductionStop  Category = "parada_producao"
	CategoryUrgentRequest   Category = "pedido_urgente"
	CategoryFinancialInfo   Category = "info_financeira"
	CategoryTechnicalFault  Category = "falha_tecnica"
	CategoryTask            Category = "tarefa"
	CategoryAlert           Category = "alerta"
	CategoryNotice          Category = "comunicado"
	CategoryQuestion        Category = "duvida"
	CategoryOther           Category = "outro"
)

// Categories lists the taxonomy in prompt order.
var Categories = []Category{
	CategoryPartBreakage,
	CategoryMachineFailure,
	CategoryMissingSupply,
	CategoryDelay,
	CategoryMaterialRequest,
	CategoryRisk,
	CategoryProductionStop,
	CategoryUrgentRequest,
	CategoryFinancialInfo,
	CategoryTechnicalFault,
	CategoryTask,
	CategoryAlert,
	CategoryNotice,
	CategoryQuestion,
	CategoryOther,
}

var knownCategories = func() map[Category]bool {
	m := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

func (c Category) Valid() bool {
	return knownCategories[c]
}

// FailureCategories are the event types counted by failure pattern detection.
var FailureCategories = []Category{
	CategoryPartBreakage,
	CategoryMachineFailure,
	CategoryProductionStop,
}
