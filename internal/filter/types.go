// Package filter compiles filter condition rows into a where-clause predicate
// for a remote feature service.
package filter

import "fmt"

// FieldType classifies a layer field for value formatting.
type FieldType int

const (
	TypeOther FieldType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeDate
	TypeGUID
	TypeGeometry
	TypeObjectID
)

var fieldTypeNames = map[FieldType]string{
	TypeOther:    "other",
	TypeString:   "string",
	TypeInteger:  "integer",
	TypeFloat:    "float",
	TypeDate:     "date",
	TypeGUID:     "guid",
	TypeGeometry: "geometry",
	TypeObjectID: "objectid",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "other"
}

// MarshalText keeps field types readable in JSON responses.
func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a field type class name.
func (t *FieldType) UnmarshalText(b []byte) error {
	for ft, name := range fieldTypeNames {
		if name == string(b) {
			*t = ft
			return nil
		}
	}
	return fmt.Errorf("unknown field type %q", b)
}

// ParseFieldType maps an ArcGIS esriFieldType name to a FieldType.
func ParseFieldType(esriType string) FieldType {
	switch esriType {
	case "esriFieldTypeString":
		return TypeString
	case "esriFieldTypeSmallInteger", "esriFieldTypeInteger", "esriFieldTypeBigInteger":
		return TypeInteger
	case "esriFieldTypeSingle", "esriFieldTypeDouble":
		return TypeFloat
	case "esriFieldTypeDate":
		return TypeDate
	case "esriFieldTypeGUID":
		return TypeGUID
	case "esriFieldTypeGeometry":
		return TypeGeometry
	case "esriFieldTypeOID":
		return TypeObjectID
	default:
		return TypeOther
	}
}

// quoted reports whether values of this type are emitted as quoted literals
// inside an IN list.
func (t FieldType) quoted() bool {
	return t == TypeString || t == TypeDate || t == TypeGUID
}

// FieldDescriptor describes one field of a loaded layer.
type FieldDescriptor struct {
	Name  string    `json:"name" doc:"Field name"`
	Alias string    `json:"alias,omitempty" doc:"Display alias"`
	Type  FieldType `json:"type" doc:"Field type class"`
}

// Filterable reports whether the field may appear in a condition.
func (f FieldDescriptor) Filterable() bool {
	return f.Type != TypeGeometry && f.Type != TypeObjectID
}

// Label returns the alias when present, otherwise the name.
func (f FieldDescriptor) Label() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Operator is a comparison operator of the query dialect.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe
	OpLike
	OpNotLike
	OpIn
	OpNotIn
)

var operatorSymbols = [...]string{
	OpEq:      "=",
	OpNe:      "!=",
	OpGt:      ">",
	OpLt:      "<",
	OpGe:      ">=",
	OpLe:      "<=",
	OpLike:    "LIKE",
	OpNotLike: "NOT LIKE",
	OpIn:      "IN",
	OpNotIn:   "NOT IN",
}

// Operators lists every operator in display order.
func Operators() []Operator {
	ops := make([]Operator, len(operatorSymbols))
	for i := range operatorSymbols {
		ops[i] = Operator(i)
	}
	return ops
}

// Symbol returns the operator as written in a predicate.
func (o Operator) Symbol() string {
	if o < 0 || int(o) >= len(operatorSymbols) {
		return ""
	}
	return operatorSymbols[o]
}

func (o Operator) String() string { return o.Symbol() }

// ParseOperator resolves an operator symbol such as ">=" or "NOT IN".
func ParseOperator(symbol string) (Operator, error) {
	for i, s := range operatorSymbols {
		if s == symbol {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", symbol)
}

// Logic combines all clauses of one compile pass.
type Logic int

const (
	And Logic = iota
	Or
)

func (l Logic) String() string {
	if l == Or {
		return "OR"
	}
	return "AND"
}

// ParseLogic accepts "AND" or "OR"; an empty string means AND.
func ParseLogic(s string) (Logic, error) {
	switch s {
	case "", "AND", "and":
		return And, nil
	case "OR", "or":
		return Or, nil
	}
	return And, fmt.Errorf("unknown logic %q", s)
}

// Condition is one field/operator/value row as entered by the user.
type Condition struct {
	Field    string
	Operator Operator
	Value    string
}
