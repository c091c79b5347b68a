package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockAt(t *testing.T) {
	clock := NewClock(24 * time.Hour)

	t.Run("same day maps to same epoch", func(t *testing.T) {
		morning := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
		evening := time.Date(2025, 6, 1, 22, 59, 59, 0, time.UTC)
		require.Equal(t, clock.At(morning), clock.At(evening))
	})

	t.Run("consecutive days map to consecutive epochs", func(t *testing.T) {
		today := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		tomorrow := today.Add(24 * time.Hour)
		require.Equal(t, clock.At(today)+1, clock.At(tomorrow))
	})

	t.Run("short windows advance faster", func(t *testing.T) {
		fast := NewClock(time.Hour)
		base := time.Date(2025, 6, 1, 0, 30, 0, 0, time.UTC)
		require.Equal(t, fast.At(base)+1, fast.At(base.Add(time.Hour)))
	})
}

func TestNewClockDefaults(t *testing.T) {
	require.Equal(t, DefaultLength, NewClock(0).Length())
	require.Equal(t, DefaultLength, NewClock(-time.Hour).Length())
	require.Equal(t, time.Minute, NewClock(time.Minute).Length())
}
