// Package shuffle produces the deterministic per-session ordering of answer
// options. The same seed always yields the same permutation, on any machine,
// so the server can re-derive the ordering a client was shown without storing
// it anywhere.
package shuffle

import "fmt"

// Seed builds the canonical seed string for a session/question pair.
func Seed(sessionID string, questionIndex int) string {
	return fmt.Sprintf("%s_%d", sessionID, questionIndex)
}

// Permutation maps shuffled positions to original indices:
// p[shuffledPos] == originalIndex.
type Permutation []int

// New derives the permutation of n slots for the given seed.
func New(seed string, n int) Permutation {
	h := hash128(seed)
	r := sfc32{a: h[0], b: h[1], c: h[2], d: h[3]}

	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}

	// Fisher-Yates, high to low.
	for i := n - 1; i > 0; i-- {
		j := r.intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}

	return p
}

// Apply reorders options into shuffled order. The input is not modified.
func (p Permutation) Apply(options []string) []string {
	shuffled := make([]string, len(p))
	for pos, orig := range p {
		shuffled[pos] = options[orig]
	}
	return shuffled
}

// Inverse returns the mapping from original index to shuffled position.
func (p Permutation) Inverse() Permutation {
	inv := make(Permutation, len(p))
	for pos, orig := range p {
		inv[orig] = pos
	}
	return inv
}

// hash128 mixes a seed string into four 32-bit words (cyrb128). The exact
// constants match the reference implementation so permutations stay stable
// across deployments.
func hash128(s string) [4]uint32 {
	h1, h2, h3, h4 := uint32(1779033703), uint32(3144134277), uint32(1013904242), uint32(2773480762)

	for i := 0; i < len(s); i++ {
		k := uint32(s[i])
		h1 = h2 ^ ((h1 ^ k) * 597399067)
		h2 = h3 ^ ((h2 ^ k) * 2869860233)
		h3 = h4 ^ ((h3 ^ k) * 951274213)
		h4 = h1 ^ ((h4 ^ k) * 2716044179)
	}

	h1 = (h3 ^ (h1 >> 18)) * 597399067
	h2 = (h4 ^ (h2 >> 22)) * 2869860233
	h3 = (h1 ^ (h3 >> 17)) * 951274213
	h4 = (h2 ^ (h4 >> 19)) * 2716044179

	return [4]uint32{h1 ^ h2 ^ h3 ^ h4, h2 ^ h1, h3 ^ h1, h4 ^ h1}
}

// sfc32 is a small fast counter PRNG over the four seed words.
type sfc32 struct {
	a, b, c, d uint32
}

func (r *sfc32) next() uint32 {
	t := r.a + r.b
	r.a = r.b ^ (r.b >> 9)
	r.b = r.c + (r.c << 3)
	r.c = (r.c << 21) | (r.c >> 11)
	r.d++
	t += r.d
	r.c += t
	return t
}

// intn returns a value in [0, n). Equivalent to floor(next()/2^32 * n).
func (r *sfc32) intn(n int) int {
	return int(uint64(r.next()) * uint64(n) >> 32)
}
