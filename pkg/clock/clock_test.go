package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockAdvancesWithWallTime(t *testing.T) {
	r := Real{}
	first := r.Now()
	time.Sleep(time.Millisecond)
	assert.True(t, r.Now().After(first))
}

func TestVirtualClockDoesNotAdvanceOnItsOwn(t *testing.T) {
	start := time.Unix(0, 0)
	v := NewVirtual(start)
	assert.Equal(t, start, v.Now())
	assert.Equal(t, start, v.Now())
}

func TestVirtualClockAdvanceFiresDueTimers(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	fired := false
	v.After(5*time.Second, func() { fired = true })

	v.Advance(4 * time.Second)
	assert.False(t, fired)

	v.Advance(2 * time.Second)
	assert.True(t, fired)
}

func TestVirtualClockCancelPreventsFire(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	fired := false
	timer := v.After(1*time.Second, func() { fired = true })
	timer.Cancel()

	v.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, v.Pending())
}

func TestVirtualClockFiresInDeadlineOrder(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var order []int
	v.After(3*time.Second, func() { order = append(order, 3) })
	v.After(1*time.Second, func() { order = append(order, 1) })
	v.After(2*time.Second, func() { order = append(order, 2) })

	v.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}
