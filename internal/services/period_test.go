package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodsOverlap(t *testing.T) {
	jan1 := day(2024, time.January, 1)
	jan31 := day(2024, time.January, 31)
	feb1 := day(2024, time.February, 1)
	feb29 := day(2024, time.February, 29)

	t.Run("partial overlap", func(t *testing.T) {
		assert.True(t, periodsOverlap(jan1, jan31, day(2024, time.January, 15), feb29))
	})

	t.Run("containment", func(t *testing.T) {
		assert.True(t, periodsOverlap(jan1, feb29, jan31, feb1))
	})

	t.Run("shared boundary day counts", func(t *testing.T) {
		assert.True(t, periodsOverlap(jan1, jan31, jan31, feb29))
	})

	t.Run("adjacent periods do not overlap", func(t *testing.T) {
		assert.False(t, periodsOverlap(jan1, jan31, feb1, feb29))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t,
			periodsOverlap(jan1, jan31, jan31, feb29),
			periodsOverlap(jan31, feb29, jan1, jan31))
	})
}

func TestParseAmount(t *testing.T) {
	t.Run("plain number", func(t *testing.T) {
		v := ParseAmount("1250.50")
		require.NotNil(t, v)
		assert.Equal(t, 1250.50, *v)
	})

	t.Run("currency symbol and separators stripped", func(t *testing.T) {
		v := ParseAmount("₦1,250,000.75")
		require.NotNil(t, v)
		assert.Equal(t, 1250000.75, *v)
	})

	t.Run("negative amount", func(t *testing.T) {
		v := ParseAmount("-300.00")
		require.NotNil(t, v)
		assert.Equal(t, -300.0, *v)
	})

	t.Run("empty is nil", func(t *testing.T) {
		assert.Nil(t, ParseAmount(""))
		assert.Nil(t, ParseAmount("   "))
	})

	t.Run("no digits is nil", func(t *testing.T) {
		assert.Nil(t, ParseAmount("N/A"))
		assert.Nil(t, ParseAmount("-"))
		assert.Nil(t, ParseAmount("."))
	})

	t.Run("garbage is nil not an error", func(t *testing.T) {
		assert.Nil(t, ParseAmount("1.2.3.4"))
	})
}

func TestParseDate(t *testing.T) {
	t.Run("iso date", func(t *testing.T) {
		parsed, err := ParseDate("2024-03-15")
		require.NoError(t, err)
		assert.Equal(t, day(2024, time.March, 15), parsed)
	})

	t.Run("written date", func(t *testing.T) {
		parsed, err := ParseDate("15 Mar 2024")
		require.NoError(t, err)
		assert.Equal(t, day(2024, time.March, 15), parsed)
	})

	t.Run("empty fails", func(t *testing.T) {
		_, err := ParseDate("")
		assert.Error(t, err)
	})

	t.Run("garbage fails", func(t *testing.T) {
		_, err := ParseDate("mid march")
		assert.Error(t, err)
	})
}

func TestParseTransactionDate(t *testing.T) {
	fallback := day(2024, time.January, 31)

	assert.Equal(t, day(2024, time.January, 10), ParseTransactionDate("2024-01-10", fallback))
	assert.Equal(t, fallback, ParseTransactionDate("", fallback))
	assert.Equal(t, fallback, ParseTransactionDate("??", fallback))
}
