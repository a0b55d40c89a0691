// Package event defines the Event type evaluated against a compiled model,
// its attribute value union, and the EventEncoder that resolves an event's
// raw attributes against the model's dictionaries.
package event

import (
	"strings"

	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/pkg/dictionary"
)

// ValueKind discriminates the union stored in Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
)

// Value is the tagged union an event attribute may hold: null, bool, i64,
// f64, or string.
type Value struct {
	Kind ValueKind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
}

// Null is the zero Value.
var Null = Value{Kind: KindNull}

// BoolValue constructs a bool Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntValue constructs an i64 Value.
func IntValue(i int64) Value { return Value{Kind: KindInt64, Int: i} }

// FloatValue constructs an f64 Value.
func FloatValue(f float64) Value { return Value{Kind: KindFloat64, Flt: f} }

// StringValue constructs a string Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// AsFloat64 returns v as a float64 for numeric predicate evaluation, and
// whether the conversion is meaningful (bool/string are not numeric).
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt64:
		return float64(v.Int), true
	case KindFloat64:
		return v.Flt, true
	default:
		return 0, false
	}
}

// AsString returns v's string representation when v is a string, and
// whether v was a string at all.
func (v Value) AsString() (string, bool) {
	if v.Kind == KindString {
		return v.Str, true
	}
	return "", false
}

// Event is one occurrence evaluated against the compiled model. Attribute
// lookup by field name is case-insensitive.
type Event struct {
	EventID    string
	EventType  string
	Attributes map[string]Value
}

// New constructs an Event from a plain map of attribute names to values.
func New(eventID, eventType string, attrs map[string]Value) Event {
	return Event{EventID: eventID, EventType: eventType, Attributes: attrs}
}

// Encoded is the per-event, per-model view produced by Encode: a map from
// field_id to the raw or dictionary-resolved Value for every attribute
// whose name is known to the model's field dictionary.
type Encoded map[dictionary.ID]Value

// Encoder resolves raw event attributes against a model's field
// dictionary. Unknown field names are silently omitted — a predicate
// referencing an unknown field simply never finds eligible attributes,
// rather than failing the event.
type Encoder struct {
	m *model.Model
}

// NewEncoder returns an Encoder bound to m.
func NewEncoder(m *model.Model) *Encoder {
	return &Encoder{m: m}
}

// Encode maps e's attributes onto the model's field ids. Values, strings
// included, are passed through as-is and are not resolved to
// value-dictionary ids; EQUAL_TO/NOT_EQUAL_TO predicates compare the raw
// string against the predicate's own string operand.
func (enc *Encoder) Encode(e Event) Encoded {
	out := make(Encoded, len(e.Attributes))
	for name, v := range e.Attributes {
		fieldID, ok := enc.m.Fields.Lookup(strings.ToUpper(name))
		if !ok {
			continue
		}
		out[fieldID] = v
	}
	return out
}
