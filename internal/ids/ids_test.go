package ids

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonicAndParseable(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		require.Greater(t, next, prev)
		_, err := ulid.ParseStrict(next)
		require.NoError(t, err)
		prev = next
	}
}
