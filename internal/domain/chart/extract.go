package chart

// Extract selects the final chart among the candidates produced by one
// execution. Scripts often build intermediate charts before the final
// one, so selection is ranked, not positional:
//
//  1. a non-empty title beats no title (titled charts signal
//     intentional final output),
//  2. higher structural complexity beats lower (composite charts
//     supersede the single-mark drafts they were built from),
//  3. later declaration beats earlier.
//
// Returns nil when there are no candidates.
func Extract(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if ranksAbove(c, best) {
			best = c
		}
	}
	return &best
}

func ranksAbove(a, b Candidate) bool {
	if a.HasTitle() != b.HasTitle() {
		return a.HasTitle()
	}
	if ac, bc := a.Complexity(), b.Complexity(); ac != bc {
		return ac > bc
	}
	return a.Order >= b.Order
}
