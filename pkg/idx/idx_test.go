package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewProducesValidIDs(t *testing.T) {
	t.Parallel()

	a := New()
	b := New()

	require.False(t, a.IsZero())
	require.NotEqual(t, a, b)

	parsed, err := Parse(a.String())
	require.NoError(t, err)
	require.Equal(t, a, parsed)
}

func TestNewAtEmbedsTimestamp(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := NewAt(at)

	require.WithinDuration(t, at, id.Time(), time.Millisecond)
}

func TestMonotonicOrderingWithinSameInstant(t *testing.T) {
	t.Parallel()

	at := time.Now().UTC()
	a := NewAt(at)
	b := NewAt(at)

	require.Less(t, a.String(), b.String())
}

func TestParseRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "  ", "not-a-ulid", "0123"} {
		_, err := Parse(input)
		require.ErrorIs(t, err, ErrInvalid)
	}
}
