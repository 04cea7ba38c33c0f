package extract

// buildCompounds runs the first pass over edges, consuming them from the tail.
// Modifier edges are folded into compound terms and emit subclass triples;
// connective edges are queued for resolveConnectives.
//
// The chain state only remembers the most recent modifier edge. A governor
// that heads two separate modifier chains in one sentence therefore has its
// earlier chain overwritten when the second one starts.
func (r *sentenceRun) buildCompounds(edges []Edge) {
	var previousTerm, previousCompound string

	for len(edges) > 0 {
		e := edges[len(edges)-1]
		edges = edges[:len(edges)-1]

		if e.Malformed() {
			r.stats.Malformed++
			r.log.Debug("extract: skipping malformed edge",
				"sentence", r.index, "governor", e.Governor,
				"relation", e.Relation, "dependent", e.Dependent)
			continue
		}

		switch Classify(e.Relation) {
		case ClassSkip:
			r.stats.Skipped++

		case ClassModifier:
			r.stats.Modifier++

			var updated string
			if e.Governor == previousTerm {
				updated = e.Dependent + " " + previousCompound
			} else {
				updated = e.Dependent + " " + e.Governor
				previousCompound = e.Governor
			}
			r.terms.Set(e.Governor, updated)
			r.emit(updated, PredicateSubClassOf, previousCompound)

			previousCompound = updated
			previousTerm = e.Governor

		case ClassConnective:
			r.stats.Connective++
			r.queue = append(r.queue, e)

		default:
			r.stats.Discarded++
		}
	}
}
