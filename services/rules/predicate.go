package rules

import (
	"encoding/json"
	"reflect"

	"github.com/upb/signalops/models"
)

// Predicate is a single condition evaluated against an event payload.
// New condition kinds implement this interface and are added in predicatesFor.
type Predicate interface {
	Match(payload map[string]interface{}) bool
}

// EqualsPredicate holds when every key is present in the payload with an
// identical value. Numbers compare by value regardless of their Go type.
type EqualsPredicate map[string]interface{}

// Match implements Predicate
func (p EqualsPredicate) Match(payload map[string]interface{}) bool {
	for key, want := range p {
		got, ok := payload[key]
		if !ok {
			return false
		}
		if !equalValues(want, got) {
			return false
		}
	}
	return true
}

// predicatesFor expands a stored condition set into its predicates
func predicatesFor(c models.Conditions) []Predicate {
	var preds []Predicate
	if len(c.Equals) > 0 {
		preds = append(preds, EqualsPredicate(c.Equals))
	}
	return preds
}

func equalValues(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize maps every numeric representation to float64 so that a rule
// decoded from JSON and a payload built in Go compare equal.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(n))
		for k, val := range n {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, val := range n {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
