package core

import "fmt"

// ColumnSetting is the user's choice for one source column.
type ColumnSetting struct {
	Name     string     `json:"name"`
	Included bool       `json:"included"`
	Type     ColumnType `json:"type"`
	Inferred ColumnType `json:"inferred"`
}

// ColumnPlan holds one setting per source column, in source order.
type ColumnPlan []ColumnSetting

// NewColumnPlan includes every column of t with its inferred type.
func NewColumnPlan(t *Table) ColumnPlan {
	plan := make(ColumnPlan, len(t.Columns))
	for i, c := range t.Columns {
		plan[i] = ColumnSetting{Name: c.Name, Included: true, Type: c.Type, Inferred: c.Type}
	}
	return plan
}

// Lookup returns the setting for the named column.
func (p ColumnPlan) Lookup(name string) (ColumnSetting, bool) {
	for _, s := range p {
		if s.Name == name {
			return s, true
		}
	}
	return ColumnSetting{}, false
}

// Set updates the named column's setting and leaves every other entry alone.
func (p ColumnPlan) Set(name string, included bool, typ ColumnType) error {
	for i := range p {
		if p[i].Name == name {
			p[i].Included = included
			p[i].Type = typ
			return nil
		}
	}
	return fmt.Errorf("column %q not found", name)
}

// Included returns the names of the included columns in source order.
func (p ColumnPlan) Included() []string {
	var names []string
	for _, s := range p {
		if s.Included {
			names = append(names, s.Name)
		}
	}
	return names
}
