package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		require.Len(t, next, 26)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2025, 5, 1, 13, 30, 0, 123_000_000, time.UTC)

	got, err := Time(NewAt(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(got), got.String())

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}
