package core

import (
	"strings"
	"testing"
	"time"
)

func sampleMixed() *Table {
	return &Table{
		Columns: []Column{
			{Name: "id", Type: TypeInt64, Values: []any{int64(1), int64(2), int64(3)}},
			{Name: "code", Type: TypeString, Values: []any{"A1", "7", nil}},
			{Name: "ratio", Type: TypeFloat64, Values: []any{1.9, nil, -2.5}},
			{Name: "flag", Type: TypeString, Values: []any{"yes", "n", nil}},
			{Name: "seen", Type: TypeString, Values: []any{"2024-02-29", "garbage", nil}},
		},
		Rows: 3,
	}
}

func TestApplyPlan_AllIncluded(t *testing.T) {
	tbl := sampleMixed()
	out, warnings := ApplyPlan(tbl, NewColumnPlan(tbl))

	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if got := strings.Join(out.ColumnNames(), ","); got != "id,code,ratio,flag,seen" {
		t.Errorf("columns = %s", got)
	}
	if out == tbl || &out.Columns[0].Values[0] == &tbl.Columns[0].Values[0] {
		t.Error("ApplyPlan() shares storage with its input")
	}
}

func TestApplyPlan_ExcludePreservesOrder(t *testing.T) {
	tbl := sampleMixed()
	plan := NewColumnPlan(tbl)
	for _, name := range []string{"code", "flag"} {
		if err := plan.Set(name, false, TypeString); err != nil {
			t.Fatal(err)
		}
	}

	out, _ := ApplyPlan(tbl, plan)
	if got := strings.Join(out.ColumnNames(), ","); got != "id,ratio,seen" {
		t.Errorf("columns = %s, want id,ratio,seen", got)
	}
	if out.Rows != 3 {
		t.Errorf("Rows = %d", out.Rows)
	}
	if len(tbl.Columns) != 5 {
		t.Error("input table modified")
	}
}

func TestApplyPlan_FailedCastKeepsColumn(t *testing.T) {
	tbl := sampleMixed()
	plan := NewColumnPlan(tbl)
	if err := plan.Set("code", true, TypeInt64); err != nil {
		t.Fatal(err)
	}

	out, warnings := ApplyPlan(tbl, plan)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
	w := warnings[0]
	if w.Column != "code" || w.Type != TypeInt64 {
		t.Errorf("warning = %+v", w)
	}
	if msg := w.Message(); !strings.HasPrefix(msg, "Could not convert column 'code' to int64: ") {
		t.Errorf("Message() = %q", msg)
	}

	code := out.Column("code")
	if code == nil || code.Type != TypeString {
		t.Fatalf("code column = %+v, want unchanged string column", code)
	}
	if code.Values[0] != "A1" || code.Values[1] != "7" || code.Values[2] != nil {
		t.Errorf("code values = %v", code.Values)
	}
}

func TestApplyPlan_TimestampNeverFails(t *testing.T) {
	tbl := sampleMixed()
	plan := NewColumnPlan(tbl)
	if err := plan.Set("seen", true, TypeTimestamp); err != nil {
		t.Fatal(err)
	}

	out, warnings := ApplyPlan(tbl, plan)
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	seen := out.Column("seen")
	if seen.Type != TypeTimestamp {
		t.Fatalf("type = %s", seen.Type)
	}
	if ts, ok := seen.Values[0].(time.Time); !ok || ts.Day() != 29 {
		t.Errorf("seen[0] = %v", seen.Values[0])
	}
	if seen.Values[1] != nil || seen.Values[2] != nil {
		t.Errorf("unparseable values = %v, want nil", seen.Values[1:])
	}
}

func TestCastColumn(t *testing.T) {
	tests := []struct {
		name    string
		col     Column
		typ     ColumnType
		want    []any
		wantErr string
	}{
		{
			name: "float to int truncates",
			col:  Column{Type: TypeFloat64, Values: []any{1.9, -2.5}},
			typ:  TypeInt64,
			want: []any{int64(1), int64(-2)},
		},
		{
			name:    "missing to int fails",
			col:     Column{Type: TypeFloat64, Values: []any{1.0, nil}},
			typ:     TypeInt64,
			wantErr: "row 2",
		},
		{
			name: "string to float keeps missing",
			col:  Column{Type: TypeString, Values: []any{"1.5", nil}},
			typ:  TypeFloat64,
			want: []any{1.5, nil},
		},
		{
			name:    "text to float fails",
			col:     Column{Type: TypeString, Values: []any{"1.5", "abc"}},
			typ:     TypeFloat64,
			wantErr: "could not convert string to float",
		},
		{
			name: "strings to bool",
			col:  Column{Type: TypeString, Values: []any{"yes", "N", "1", nil}},
			typ:  TypeBool,
			want: []any{true, false, true, nil},
		},
		{
			name: "numbers to bool",
			col:  Column{Type: TypeFloat64, Values: []any{0.0, 2.5}},
			typ:  TypeBool,
			want: []any{false, true},
		},
		{
			name:    "word to bool fails",
			col:     Column{Type: TypeString, Values: []any{"maybe"}},
			typ:     TypeBool,
			wantErr: "invalid literal for bool",
		},
		{
			name: "anything to string",
			col:  Column{Type: TypeFloat64, Values: []any{3.0, nil, 0.25}},
			typ:  TypeString,
			want: []any{"3.0", nil, "0.25"},
		},
		{
			name: "bool to string",
			col:  Column{Type: TypeBool, Values: []any{true, false}},
			typ:  TypeString,
			want: []any{"True", "False"},
		},
		{
			name: "legacy dtype name",
			col:  Column{Type: TypeInt64, Values: []any{int64(5)}},
			typ:  "object",
			want: []any{"5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CastColumn(tt.col, tt.typ)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("CastColumn() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CastColumn() error = %v", err)
			}
			if len(got.Values) != len(tt.want) {
				t.Fatalf("got %d values, want %d", len(got.Values), len(tt.want))
			}
			for i := range tt.want {
				if got.Values[i] != tt.want[i] {
					t.Errorf("value %d = %#v, want %#v", i, got.Values[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuildPreview(t *testing.T) {
	tbl := sampleMixed()

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"head", 2, 2},
		{"more than rows", 10, 3},
		{"zero", 0, 0},
		{"negative", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPreview(tbl, tt.limit)
			if len(p.Rows) != tt.want {
				t.Errorf("rows = %d, want %d", len(p.Rows), tt.want)
			}
			if p.TotalRows != 3 || len(p.Columns) != 5 {
				t.Errorf("preview meta = %d rows, %d columns", p.TotalRows, len(p.Columns))
			}
		})
	}

	p := BuildPreview(tbl, 5)
	if p.Rows[1][2] != nil {
		t.Errorf("missing ratio rendered as %q", *p.Rows[1][2])
	}
	if got := *p.Rows[0][2]; got != "1.9" {
		t.Errorf("ratio[0] = %q", got)
	}
}
