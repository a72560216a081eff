package randutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsDeterministic(t *testing.T) {
	t.Parallel()

	a := New(42)
	b := New(42)
	for range 100 {
		require.Equal(t, a.Int64N(1_000_000), b.Int64N(1_000_000))
	}
}

func TestSeed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(7), Seed(7))
	assert.NotZero(t, Seed(0))
}

func TestDeriveSeparatesConsumers(t *testing.T) {
	t.Parallel()

	seen := map[int64]bool{}
	for i := range 16 {
		s := Derive(99, i)
		assert.False(t, seen[s], "derived seed %d repeated", i)
		seen[s] = true
	}
	assert.Equal(t, Derive(99, 3), Derive(99, 3))
}
