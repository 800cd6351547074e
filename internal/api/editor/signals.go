package editor

import (
	"encoding/json"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/tidwall/gjson"

	"github.com/joeblew999/plat-map/internal/filter"
)

// Signals provides type-safe access to Datastar signal values.
// Datastar sends all signals as a flat JSON object in the request body.
// Signal names are lowercase due to data-bind behavior.
type Signals map[string]any

// ParseSignals parses Datastar signals from a raw request body.
func ParseSignals(body []byte) (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns a string signal value, or empty string if not found.
func (s Signals) String(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// Int returns an int signal value, or 0 if not found.
// Handles both float64 (JSON default) and int types.
func (s Signals) Int(key string) int {
	if v, ok := s[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return 0
}

// Has returns true if the signal exists (even if empty/zero).
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// SignalsInput is a reusable input struct for handlers that receive Datastar signals.
type SignalsInput struct {
	RawBody []byte
}

// MustParse parses signals or returns a Huma error.
func (i *SignalsInput) MustParse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// ParseFilterSignals reads the filter builder rows from a signals body:
//
//	{"logic": "AND", "conditions": [{"field": "NAME", "operator": "=", "value": "x"}]}
//
// A row without an operator is incomplete and skipped; an unknown operator
// is an error.
func ParseFilterSignals(body []byte) ([]filter.Condition, filter.Logic, error) {
	if !gjson.ValidBytes(body) {
		return nil, filter.And, errors.New("invalid JSON")
	}
	logic, err := filter.ParseLogic(gjson.GetBytes(body, "logic").String())
	if err != nil {
		return nil, filter.And, err
	}

	var (
		rows   []filter.Condition
		rowErr error
	)
	gjson.GetBytes(body, "conditions").ForEach(func(_, row gjson.Result) bool {
		symbol := row.Get("operator").String()
		if symbol == "" {
			return true
		}
		op, err := filter.ParseOperator(symbol)
		if err != nil {
			rowErr = err
			return false
		}
		rows = append(rows, filter.Condition{
			Field:    row.Get("field").String(),
			Operator: op,
			Value:    row.Get("value").String(),
		})
		return true
	})
	if rowErr != nil {
		return nil, filter.And, rowErr
	}
	return rows, logic, nil
}
