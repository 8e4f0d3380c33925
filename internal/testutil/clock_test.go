package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtStart(t *testing.T) {
	clock := NewClock(Epoch)
	assert.True(t, clock.Now().Equal(Epoch))
}

func TestClock_Advance(t *testing.T) {
	clock := NewClock(Epoch)

	assert.True(t, clock.Advance(time.Hour).Equal(Epoch.Add(time.Hour)))
	assert.True(t, clock.Advance(24*time.Hour).Equal(Epoch.Add(25*time.Hour)))
	assert.True(t, clock.Now().Equal(Epoch.Add(25*time.Hour)))

	// Never backwards.
	assert.True(t, clock.Advance(-time.Hour).Equal(Epoch.Add(25*time.Hour)))
}

func TestClock_Reset(t *testing.T) {
	clock := NewClock(Epoch)
	clock.Advance(3 * time.Hour)

	clock.Reset()
	assert.True(t, clock.Now().Equal(Epoch))
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(Epoch)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range callsPerGoroutine {
				clock.Advance(time.Second)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	want := Epoch.Add(numGoroutines * callsPerGoroutine * time.Second)
	assert.True(t, clock.Now().Equal(want))
}
