package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"floorbot/internal/domain"
	"floorbot/internal/integrations/llm"
	"floorbot/internal/metrics"
)

type rawFields struct {
	MachineName    json.RawMessage `json:"machine_name"`
	MachineCode    json.RawMessage `json:"machine_code"`
	PartCode       json.RawMessage `json:"part_code"`
	PartName       json.RawMessage `json:"part_name"`
	Quantity       json.RawMessage `json:"quantity"`
	ProductionStop json.RawMessage `json:"production_stop"`
	WasReplaced    json.RawMessage `json:"was_replaced"`
}

type FieldExtractor struct {
	completer llm.Completer
}

func NewFieldExtractor(c llm.Completer) *FieldExtractor {
	return &FieldExtractor{completer: c}
}

// Extract never fails: any provider or parse problem yields empty fields,
// which makes the completeness gate ask for them instead.
func (e *FieldExtractor) Extract(ctx context.Context, text string, category domain.Category) domain.Fields {
	if e.completer == nil {
		metrics.ClassifierFallback("extract")
		return domain.Fields{}
	}
	reply, err := e.completer.Complete(ctx, buildExtractionPrompt(text, category), 300)
	if err != nil {
		log.Printf("classify extract provider error (non-fatal): %v", err)
		metrics.ClassifierFallback("extract")
		return domain.Fields{}
	}
	fields, err := parseExtraction(reply)
	if err != nil {
		log.Printf("classify extract parse error (non-fatal): %v", err)
		metrics.ClassifierFallback("extract")
		return domain.Fields{}
	}
	return fields
}

func parseExtraction(reply string) (domain.Fields, error) {
	obj := llm.FirstJSONObject(reply)
	if obj == "" {
		return domain.Fields{}, fmt.Errorf("no JSON object in extraction reply")
	}
	var raw rawFields
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return domain.Fields{}, fmt.Errorf("parsing extraction reply: %w", err)
	}
	return domain.Fields{
		MachineName:    rawString(raw.MachineName),
		MachineCode:    rawString(raw.MachineCode),
		PartCode:       rawString(raw.PartCode),
		PartName:       rawString(raw.PartName),
		Quantity:       rawInt(raw.Quantity),
		ProductionStop: rawBool(raw.ProductionStop),
		WasReplaced:    rawBool(raw.WasReplaced),
	}, nil
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

func rawInt(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return int(n)
	}
	if v, err := strconv.Atoi(rawString(raw)); err == nil && v > 0 {
		return v
	}
	return 0
}

// rawBool accepts JSON booleans and the usual Portuguese yes/no strings;
// anything else stays unknown.
func rawBool(raw json.RawMessage) *bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return domain.Bool(b)
	}
	switch Fold(rawString(raw)) {
	case "true", "sim", "s", "yes":
		return domain.Bool(true)
	case "false", "nao", "n", "no":
		return domain.Bool(false)
	}
	return nil
}

func buildExtractionPrompt(text string, category domain.Category) string {
	return fmt.Sprintf(`Extraia os campos da ocorrência industrial (categoria: %s).
Retorne apenas um objeto JSON (sem markdown) com as chaves:
- "machine_name": nome da máquina/linha/equipamento ou null
- "machine_code": código/tag da máquina ou null
- "part_code": código da peça ou null
- "part_name": nome da peça ou null
- "quantity": quantidade numérica ou null
- "production_stop": true se a produção parou, false se não parou, null se não informado
- "was_replaced": true se a peça foi substituída, false se não foi, null se não informado

Não invente valores. Use null quando a mensagem não disser.

Mensagem: %s`, category, strings.TrimSpace(text))
}
