package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var errMissingInt = errors.New("cannot convert missing values to integer")

// ApplyPlan returns a new table holding the included columns of t in source
// order, each converted to its planned type. A column that cannot be
// converted as a whole is kept with its original type and values, and a
// warning is returned for it. Timestamp conversion never fails: values that
// cannot be read as a timestamp become missing.
//
// t is not modified. Columns absent from the plan are kept as they are.
func ApplyPlan(t *Table, plan ColumnPlan) (*Table, []CoercionWarning) {
	out := &Table{Rows: t.Rows}
	var warnings []CoercionWarning

	for _, col := range t.Columns {
		setting, ok := plan.Lookup(col.Name)
		if !ok {
			out.Columns = append(out.Columns, copyColumn(col))
			continue
		}
		if !setting.Included {
			continue
		}

		converted, err := CastColumn(col, setting.Type)
		if err != nil {
			warnings = append(warnings, CoercionWarning{
				Column: col.Name,
				Type:   setting.Type,
				Reason: err.Error(),
			})
			converted = copyColumn(col)
		}
		out.Columns = append(out.Columns, converted)
	}

	return out, warnings
}

// CastColumn converts every value of col to typ. It fails on the first value
// that cannot be converted; the returned column is then unusable.
func CastColumn(col Column, typ ColumnType) (Column, error) {
	typ = ParseColumnType(string(typ))
	if col.Type == typ {
		return copyColumn(col), nil
	}

	out := Column{Name: col.Name, Type: typ, Values: make([]any, len(col.Values))}
	for i, v := range col.Values {
		var (
			converted any
			err       error
		)
		switch typ {
		case TypeInt64:
			converted, err = toInt64(v)
		case TypeFloat64:
			converted, err = toFloat64(v)
		case TypeBool:
			converted, err = toBool(v)
		case TypeTimestamp:
			converted = toTimestamp(v)
		default:
			converted = toString(v)
		}
		if err != nil {
			return Column{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		out.Values[i] = converted
	}
	return out, nil
}

func copyColumn(col Column) Column {
	values := make([]any, len(col.Values))
	copy(values, col.Values)
	return Column{Name: col.Name, Type: col.Type, Values: values}
}

func toInt64(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, errMissingInt
	case int64:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("cannot convert non-finite value %s to integer", formatFloat(x))
		}
		if x >= math.MaxInt64 || x < math.MinInt64 {
			return nil, fmt.Errorf("value %s overflows int64", formatFloat(x))
		}
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		n, ok := ParseInt(x)
		if !ok {
			return nil, fmt.Errorf("invalid literal for int64: %q", x)
		}
		return n, nil
	case time.Time:
		return x.UnixNano(), nil
	default:
		return nil, fmt.Errorf("unsupported value %v", v)
	}
}

func toFloat64(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		f, ok := ParseFloat(x)
		if !ok {
			return nil, fmt.Errorf("could not convert string to float: %q", x)
		}
		return f, nil
	case time.Time:
		return nil, fmt.Errorf("cannot convert timestamp %s to float", FormatValue(x))
	default:
		return nil, fmt.Errorf("unsupported value %v", v)
	}
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		b, ok := ParseBool(x)
		if !ok {
			return nil, fmt.Errorf("invalid literal for bool: %q", x)
		}
		return b, nil
	case time.Time:
		return nil, fmt.Errorf("cannot convert timestamp %s to bool", FormatValue(x))
	default:
		return nil, fmt.Errorf("unsupported value %v", v)
	}
}

// toTimestamp reads numbers as nanoseconds since the Unix epoch.
func toTimestamp(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		if ts, ok := ParseTimestamp(x); ok {
			return ts
		}
	case int64:
		return time.Unix(0, x).UTC()
	case float64:
		if !math.IsNaN(x) && !math.IsInf(x, 0) && x < math.MaxInt64 && x >= math.MinInt64 {
			return time.Unix(0, int64(x)).UTC()
		}
	}
	return nil
}

func toString(v any) any {
	if v == nil {
		return nil
	}
	return FormatValue(v)
}
