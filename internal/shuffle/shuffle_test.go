package shuffle_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberquiz/internal/shuffle"
)

func TestNew_ReferenceVectors(t *testing.T) {
	// Fixed expectations so the permutation function can never drift:
	// a session created on one machine must replay identically anywhere.
	tests := map[string]shuffle.Permutation{
		"abc_0": {1, 0, 3, 2},
		"0190c558-9b4f-7a3e-8c21-d51f4a9e7b10_0":  {3, 1, 0, 2},
		"0190c558-9b4f-7a3e-8c21-d51f4a9e7b10_59": {0, 2, 1, 3},
		"neo_12": {0, 1, 2, 3},
		"x_3":    {2, 3, 0, 1},
	}

	for seed, want := range tests {
		t.Run(seed, func(t *testing.T) {
			require.Equal(t, want, shuffle.New(seed, 4))
		})
	}
}

func TestNew_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		seed := shuffle.Seed("some-session", i)
		require.Equal(t, shuffle.New(seed, 4), shuffle.New(seed, 4), "seed %q", seed)
	}
}

func TestNew_IsPermutation(t *testing.T) {
	for i := 0; i < 200; i++ {
		seed := fmt.Sprintf("session-%d_%d", i, i%60)

		p := shuffle.New(seed, 4)
		assert.ElementsMatch(t, []int{0, 1, 2, 3}, []int(p), "seed %q", seed)
	}
}

func TestApply_SameMultiset(t *testing.T) {
	options := []string{"alpha", "bravo", "charlie", "delta"}

	for i := 0; i < 50; i++ {
		p := shuffle.New(shuffle.Seed("s", i), len(options))
		assert.ElementsMatch(t, options, p.Apply(options))
	}
}

func TestInverse_RecoversOriginalIndex(t *testing.T) {
	options := []string{"alpha", "bravo", "charlie", "delta"}

	for i := 0; i < 50; i++ {
		p := shuffle.New(shuffle.Seed("s", i), len(options))
		shuffled := p.Apply(options)
		inv := p.Inverse()

		for orig, opt := range options {
			// The option shown at the inverse-mapped position is the original.
			require.Equal(t, opt, shuffled[inv[orig]])
		}
		for pos, opt := range shuffled {
			require.Equal(t, options[p[pos]], opt)
		}
	}
}

func TestNew_OtherLengths(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		p := shuffle.New("seed_0", n)
		require.Len(t, p, n)

		want := make([]int, n)
		for i := range want {
			want[i] = i
		}
		assert.ElementsMatch(t, want, []int(p))
	}
}
