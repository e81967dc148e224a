package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireNear(t *testing.T, want, got time.Time) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	require.LessOrEqual(t, diff, 5*time.Minute, "want %s, got %s", want, got)
}

func TestCalculator_LondonMidsummer(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	c, err := NewCalculator(51.5074, -0.1278)
	require.NoError(t, err)

	day := time.Date(2024, 6, 21, 12, 0, 0, 0, london)
	times := c.Times(day, london)

	requireNear(t, time.Date(2024, 6, 21, 4, 43, 0, 0, london), times.Sunrise)
	requireNear(t, time.Date(2024, 6, 21, 21, 21, 0, 0, london), times.Sunset)
	require.Same(t, times, c.Times(day.Add(3*time.Hour), london), "same day is cached")
}

func TestCalculator_EventOrder(t *testing.T) {
	c, err := NewCalculator(0, 0)
	require.NoError(t, err)

	times := c.Times(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), time.UTC)
	requireNear(t, time.Date(2024, 3, 20, 6, 4, 0, 0, time.UTC), times.Sunrise)
	requireNear(t, time.Date(2024, 3, 20, 12, 7, 0, 0, time.UTC), times.Noon)

	order := []string{Dawn, Sunrise, Noon, Sunset, Dusk}
	var prev time.Time
	for _, name := range order {
		at, ok := times.Event(name)
		require.True(t, ok, name)
		require.True(t, at.After(prev), name)
		prev = at
	}

	_, ok := times.Event("moonrise")
	require.False(t, ok)
	require.False(t, IsEvent("moonrise"))
}

func TestNewCalculator_RejectsBadCoordinates(t *testing.T) {
	_, err := NewCalculator(91, 0)
	require.Error(t, err)
	_, err = NewCalculator(0, -181)
	require.Error(t, err)
}
