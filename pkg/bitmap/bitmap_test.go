package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndContains(t *testing.T) {
	b := New()
	b.Set(0)
	b.Set(4095)
	b.Set(4096)
	b.Set(1_000_000)

	assert.True(t, b.Contains(0))
	assert.True(t, b.Contains(4095))
	assert.True(t, b.Contains(4096))
	assert.True(t, b.Contains(1_000_000))
	assert.False(t, b.Contains(1))
	assert.False(t, b.Contains(999_999))
}

func TestCardinality(t *testing.T) {
	b := New()
	for _, id := range []uint32{1, 2, 3, 5000, 5001, 999999} {
		b.Set(id)
	}
	assert.Equal(t, 6, b.Cardinality())
}

func TestEachYieldsAscending(t *testing.T) {
	b := New()
	ids := []uint32{500000, 3, 4097, 1}
	for _, id := range ids {
		b.Set(id)
	}
	var got []uint32
	b.Each(func(id uint32) { got = append(got, id) })
	assert.Equal(t, []uint32{1, 3, 4097, 500000}, got)
}

func TestOrUnion(t *testing.T) {
	a := New()
	a.Set(1)
	a.Set(5000)
	c := New()
	c.Set(2)
	c.Set(5000)

	u := a.Or(c)
	assert.Equal(t, 3, u.Cardinality())
	assert.True(t, u.Contains(1))
	assert.True(t, u.Contains(2))
	assert.True(t, u.Contains(5000))

	// originals untouched
	assert.Equal(t, 2, a.Cardinality())
	assert.Equal(t, 2, c.Cardinality())
}

func TestAndIntersection(t *testing.T) {
	a := New()
	a.Set(1)
	a.Set(2)
	a.Set(5000)
	c := New()
	c.Set(2)
	c.Set(5000)
	c.Set(9000)

	i := a.And(c)
	assert.Equal(t, 2, i.Cardinality())
	assert.True(t, i.Contains(2))
	assert.True(t, i.Contains(5000))
	assert.False(t, i.Contains(1))
	assert.False(t, i.Contains(9000))
}

func TestAndOfDisjointSetsIsEmpty(t *testing.T) {
	a := New()
	a.Set(1)
	c := New()
	c.Set(2)

	assert.Equal(t, 0, a.And(c).Cardinality())
}
