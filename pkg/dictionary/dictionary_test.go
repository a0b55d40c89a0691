package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternAssignsStableDenseIDs(t *testing.T) {
	d := New()

	id1 := d.Intern("status")
	id2 := d.Intern("amount")
	id3 := d.Intern("status")

	assert.Equal(t, id1, id3, "interning the same string twice must return the same id")
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, ID(0), id1)
	assert.Equal(t, ID(1), id2)
	assert.Equal(t, 2, d.Len())
}

func TestLookupUnknownReturnsFalse(t *testing.T) {
	d := New()
	d.Intern("status")

	_, ok := d.Lookup("missing")
	assert.False(t, ok)

	id, ok := d.Lookup("status")
	require.True(t, ok)
	assert.Equal(t, "status", d.Value(id))
}

func TestFreezeAllowsKnownButRejectsNewIntern(t *testing.T) {
	d := New()
	id := d.Intern("status")
	d.Freeze()

	assert.True(t, d.Frozen())
	assert.Equal(t, id, d.Intern("status"), "interning an already-known string after Freeze must succeed")

	assert.Panics(t, func() {
		d.Intern("never-seen-before")
	})
}

func TestValueRoundTrips(t *testing.T) {
	d := New()
	for _, s := range []string{"status", "amount", "country", "status"} {
		d.Intern(s)
	}

	for id := ID(0); int(id) < d.Len(); id++ {
		s := d.Value(id)
		got, ok := d.Lookup(s)
		require.True(t, ok)
		assert.Equal(t, id, got)
	}
}
