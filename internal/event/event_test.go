package event

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/pkg/dictionary"
)

func TestEncodeResolvesKnownFieldsCaseInsensitively(t *testing.T) {
	fields := dictionary.New()
	statusField := fields.Intern("STATUS")
	values := dictionary.New()
	b := model.NewBuilder(fields, values)
	m, err := b.Build(model.BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	enc := NewEncoder(m)
	e := New("evt-1", "payment", map[string]Value{
		"status": StringValue("ACTIVE"),
	})

	encoded := enc.Encode(e)
	v, ok := encoded[statusField]
	assert.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "ACTIVE", s)
}

func TestEncodeOmitsUnknownFields(t *testing.T) {
	fields := dictionary.New()
	values := dictionary.New()
	b := model.NewBuilder(fields, values)
	m, err := b.Build(model.BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	enc := NewEncoder(m)
	e := New("evt-1", "payment", map[string]Value{
		"never_registered": StringValue("x"),
	})

	assert.Empty(t, enc.Encode(e))
}

func TestValueAsFloat64(t *testing.T) {
	f, ok := IntValue(42).AsFloat64()
	assert.True(t, ok)
	assert.Equal(t, 42.0, f)

	_, ok = StringValue("x").AsFloat64()
	assert.False(t, ok)

	_, ok = Null.AsFloat64()
	assert.False(t, ok)
}
