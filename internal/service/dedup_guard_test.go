package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupGuardCheck(t *testing.T) {
	base := time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)

	t.Run("first sighting passes", func(t *testing.T) {
		guard := NewDedupGuard(3 * time.Second)

		duplicate, _ := guard.Check("STU-a3f9b1c2d4e5", base)

		assert.False(t, duplicate)
	})

	t.Run("second sighting inside window is suppressed", func(t *testing.T) {
		guard := NewDedupGuard(3 * time.Second)
		guard.Check("STU-a3f9b1c2d4e5", base)

		duplicate, since := guard.Check("STU-a3f9b1c2d4e5", base.Add(2*time.Second))

		assert.True(t, duplicate)
		assert.Equal(t, 2*time.Second, since)
	})

	t.Run("sighting past window passes again", func(t *testing.T) {
		guard := NewDedupGuard(3 * time.Second)
		guard.Check("STU-a3f9b1c2d4e5", base)

		duplicate, _ := guard.Check("STU-a3f9b1c2d4e5", base.Add(3*time.Second))

		assert.False(t, duplicate)
	})

	t.Run("window slides on suppressed sightings", func(t *testing.T) {
		guard := NewDedupGuard(3 * time.Second)
		guard.Check("STU-a3f9b1c2d4e5", base)

		// A badge held against the reader keeps re-triggering every two
		// seconds; each sighting renews the window, so the fourth one at
		// six seconds is still suppressed.
		duplicate, _ := guard.Check("STU-a3f9b1c2d4e5", base.Add(2*time.Second))
		assert.True(t, duplicate)
		duplicate, _ = guard.Check("STU-a3f9b1c2d4e5", base.Add(4*time.Second))
		assert.True(t, duplicate)
		duplicate, _ = guard.Check("STU-a3f9b1c2d4e5", base.Add(6*time.Second))
		assert.True(t, duplicate)
	})

	t.Run("identifiers are independent", func(t *testing.T) {
		guard := NewDedupGuard(3 * time.Second)
		guard.Check("STU-a3f9b1c2d4e5", base)

		duplicate, _ := guard.Check("STF-11aa22bb33cc", base.Add(time.Second))

		assert.False(t, duplicate)
	})

	t.Run("forget clears the sighting", func(t *testing.T) {
		guard := NewDedupGuard(3 * time.Second)
		guard.Check("STU-a3f9b1c2d4e5", base)

		guard.Forget("STU-a3f9b1c2d4e5")
		duplicate, _ := guard.Check("STU-a3f9b1c2d4e5", base.Add(time.Second))

		assert.False(t, duplicate)
	})
}

func TestDedupGuardDefaults(t *testing.T) {
	guard := NewDedupGuard(0)
	assert.Equal(t, 3*time.Second, guard.Window())
}

func TestDedupGuardSweep(t *testing.T) {
	base := time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)
	guard := NewDedupGuard(3 * time.Second)
	guard.Check("STU-a", base)
	guard.Check("STU-b", base.Add(2*time.Second))

	dropped := guard.Sweep(base.Add(4 * time.Second))

	assert.Equal(t, 1, dropped)
	duplicate, _ := guard.Check("STU-a", base.Add(4*time.Second))
	assert.False(t, duplicate)
	duplicate, _ = guard.Check("STU-b", base.Add(4*time.Second))
	assert.True(t, duplicate)
}
