package filter

import (
	"strconv"
	"strings"
)

// Compile builds a predicate from rows, joined by logic. Rows with an empty
// field or value, and IN lists left without any usable value, are skipped.
// ok is false when no clause survives, which callers treat as "clear filter".
//
// Fields missing from types are formatted like numbers.
func Compile(rows []Condition, logic Logic, types map[string]FieldType) (predicate string, ok bool) {
	clauses := make([]string, 0, len(rows))
	for _, row := range rows {
		if clause, ok := compileRow(row, types[row.Field]); ok {
			clauses = append(clauses, clause)
		}
	}

	switch len(clauses) {
	case 0:
		return "", false
	case 1:
		return clauses[0], true
	default:
		return "(" + strings.Join(clauses, " "+logic.String()+" ") + ")", true
	}
}

func compileRow(row Condition, typ FieldType) (string, bool) {
	value := strings.TrimSpace(row.Value)
	if row.Field == "" || value == "" {
		return "", false
	}

	switch {
	case row.Operator == OpIn || row.Operator == OpNotIn:
		list := formatList(value, typ)
		if list == "" {
			return "", false
		}
		value = "(" + list + ")"
	case row.Operator == OpLike || row.Operator == OpNotLike:
		value = quote("%" + escape(value) + "%")
	case typ == TypeString || typ == TypeGUID:
		value = quote(escape(value))
	case typ == TypeDate:
		value = "DATE " + quote(escape(value))
	}

	return row.Field + " " + row.Operator.Symbol() + " " + value, true
}

func formatList(raw string, typ FieldType) string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if typ.quoted() {
			out = append(out, quote(escape(p)))
			continue
		}
		if _, err := strconv.ParseFloat(p, 64); err == nil {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func quote(s string) string {
	return "'" + s + "'"
}
