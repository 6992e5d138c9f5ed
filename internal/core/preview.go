package core

// PreviewColumn describes one column of a preview.
type PreviewColumn struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Preview is the leading rows of a table rendered as display strings.
// Missing cells are nil.
type Preview struct {
	Columns   []PreviewColumn `json:"columns"`
	Rows      [][]*string     `json:"rows"`
	TotalRows int             `json:"totalRows"`
}

// BuildPreview renders at most limit rows of t.
func BuildPreview(t *Table, limit int) Preview {
	p := Preview{
		Columns:   make([]PreviewColumn, len(t.Columns)),
		TotalRows: t.Rows,
	}
	for i, c := range t.Columns {
		p.Columns[i] = PreviewColumn{Name: c.Name, Type: c.Type}
	}

	n := max(min(limit, t.Rows), 0)
	p.Rows = make([][]*string, n)
	for i := 0; i < n; i++ {
		row := make([]*string, len(t.Columns))
		for j, c := range t.Columns {
			if c.Values[i] == nil {
				continue
			}
			s := FormatValue(c.Values[i])
			row[j] = &s
		}
		p.Rows[i] = row
	}
	return p
}
