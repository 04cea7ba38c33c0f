package extract

import "strings"

// resolveConnectives runs the second pass over the queued connective edges,
// consuming them from the tail. Each edge emits two triples, one anchored on
// each endpoint, and the composed phrase replaces the governor's entry in the
// term map so later edges in the same pass build on it.
func (r *sentenceRun) resolveConnectives() {
	for len(r.queue) > 0 {
		e := r.queue[len(r.queue)-1]
		r.queue = r.queue[:len(r.queue)-1]

		if e.Relation == RelPoss {
			continue
		}

		connector := connectorFor(e.Relation)
		first := r.terms.Resolve(e.Governor)
		second := r.terms.Resolve(e.Dependent)

		full := first + " " + second
		if connector != "" {
			full = first + " " + connector + " " + second
		}

		r.emit(full, LocalPredicate(connector, stripSpaces(second)), first)
		r.emit(full, LocalPredicate(stripSpaces(first), connector), second)

		r.terms.Set(e.Governor, full)
	}
}

// connectorFor derives the connector word of a connective relation:
// "nmod:of" yields "of", "acl" and "appos" yield "", and any other label is
// used verbatim.
func connectorFor(relation string) string {
	if i := strings.Index(relation, ":"); i > 0 {
		return relation[i+1:]
	}
	if relation == RelACL || relation == RelAppos {
		return ""
	}
	return relation
}
