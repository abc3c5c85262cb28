package board

// CanonicalHash returns the canonical (symmetry-minimum) string
// encoding of b, together with the symmetry that maps b onto that
// canonical orientation. Every board in a symmetry orbit shares the
// same canonical string, so it is safe to use as a transposition-table
// or prediction-cache key.
//
// To move data computed in the canonical orientation (e.g. a network
// policy vector) back into b's own orientation, apply t.Inverse().
func CanonicalHash(b *Board) (key string, t Symmetry) {
	best := ""
	bestT := Identity
	for _, s := range All {
		cand := s.Apply(b).String()
		if best == "" || cand < best {
			best = cand
			bestT = s
		}
	}
	return best, bestT
}

// CanonicalKey combines the canonical board hash with the side to move,
// forming the key the TT and prediction cache share.
func CanonicalKey(b *Board, side Stone) (key string, t Symmetry) {
	h, t := CanonicalHash(b)
	return h + "|" + side.String(), t
}
