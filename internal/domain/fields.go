package domain

import "strings"

// Fields is the structured asset/part identification pulled out of a message.
// Nil booleans mean the answer is still unknown.
type Fields struct {
	MachineName    string `json:"machine_name,omitempty"`
	MachineCode    string `json:"machine_code,omitempty"`
	PartCode       string `json:"part_code,omitempty"`
	PartName       string `json:"part_name,omitempty"`
	Quantity       int    `json:"quantity,omitempty"`
	ProductionStop *bool  `json:"production_stop,omitempty"`
	WasReplaced    *bool  `json:"was_replaced,omitempty"`
}

func (f Fields) HasMachine() bool {
	return strings.TrimSpace(f.MachineName) != "" || strings.TrimSpace(f.MachineCode) != ""
}

func (f Fields) HasPart() bool {
	return strings.TrimSpace(f.PartCode) != "" || strings.TrimSpace(f.PartName) != ""
}

func (f Fields) Part() string {
	if code := strings.TrimSpace(f.PartCode); code != "" {
		return code
	}
	return strings.TrimSpace(f.PartName)
}

// Map flattens the set fields for the opaque extracted-field column.
func (f Fields) Map() map[string]any {
	m := make(map[string]any)
	put := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			m[k] = v
		}
	}
	put("machine_name", f.MachineName)
	put("machine_code", f.MachineCode)
	put("part_code", f.PartCode)
	put("part_name", f.PartName)
	if f.Quantity > 0 {
		m["quantity"] = f.Quantity
	}
	if f.ProductionStop != nil {
		m["production_stop"] = *f.ProductionStop
	}
	if f.WasReplaced != nil {
		m["was_replaced"] = *f.WasReplaced
	}
	return m
}

func Bool(v bool) *bool { return &v }
