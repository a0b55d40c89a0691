package cachecontract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRistrettoSetGetRoundTrips(t *testing.T) {
	c, err := NewRistretto[string, int](DefaultRistrettoConfig(100))
	require.NoError(t, err)
	defer c.Close()

	c.SetWithTTL("a", 42, 1, time.Hour)
	c.Wait()

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestRistrettoMissReturnsZeroValueAndFalse(t *testing.T) {
	c, err := NewRistretto[string, int](DefaultRistrettoConfig(100))
	require.NoError(t, err)
	defer c.Close()

	v, ok := c.Get("never-set")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestRistrettoDelRemovesEntry(t *testing.T) {
	c, err := NewRistretto[string, int](DefaultRistrettoConfig(100))
	require.NoError(t, err)
	defer c.Close()

	c.SetWithTTL("a", 1, 1, time.Hour)
	c.Wait()
	c.Del("a")
	c.Wait()

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestDefaultRistrettoConfigScalesWithCapacity(t *testing.T) {
	cfg := DefaultRistrettoConfig(1000)
	assert.Equal(t, int64(10000), cfg.NumCounters)
	assert.Equal(t, int64(1000), cfg.MaxCost)
}
