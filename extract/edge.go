package extract

import "strings"

// Relation labels with fixed meaning during extraction.
const (
	RelRoot     = "ROOT"
	RelPunct    = "punct"
	RelDet      = "det"
	RelCompound = "compound"
	RelPoss     = "nmod:poss"
	RelAux      = "aux"
	RelNeg      = "neg"
	RelACL      = "acl"
	RelAppos    = "appos"

	nmodPrefix = "nmod:"
	modSuffix  = "mod"
)

// Edge is one governor–relation–dependent tuple produced by a dependency
// parser. Edges are values and are never modified once produced.
type Edge struct {
	Governor  string `json:"governor"`
	Relation  string `json:"relation"`
	Dependent string `json:"dependent"`
}

// Malformed reports whether the edge lacks a relation label or either word.
func (e Edge) Malformed() bool {
	return e.Relation == "" || e.Governor == "" || e.Dependent == ""
}

// String renders the edge as "governor --relation--> dependent".
func (e Edge) String() string {
	return e.Governor + " --" + e.Relation + "--> " + e.Dependent
}

// Class is the role a relation label plays in extraction.
type Class int

const (
	// ClassOther relations are discarded silently.
	ClassOther Class = iota
	// ClassSkip relations are structural (ROOT, punct, det, subjects, objects).
	ClassSkip
	// ClassModifier relations are folded into compound terms.
	ClassModifier
	// ClassConnective relations are deferred to the connective pass.
	ClassConnective
)

func (c Class) String() string {
	switch c {
	case ClassSkip:
		return "skip"
	case ClassModifier:
		return "modifier"
	case ClassConnective:
		return "connective"
	default:
		return "other"
	}
}

// Classify maps a relation label to its extraction class. Structural labels
// are checked first and modifier labels before connective ones, so
// "nmod:poss" is a modifier even though it carries the "nmod:" prefix.
func Classify(relation string) Class {
	switch {
	case isStructural(relation):
		return ClassSkip
	case isModifier(relation):
		return ClassModifier
	case isConnective(relation):
		return ClassConnective
	default:
		return ClassOther
	}
}

func isStructural(rel string) bool {
	switch rel {
	case RelRoot, RelPunct, RelDet:
		return true
	}
	return strings.Contains(rel, "subj") || strings.Contains(rel, "obj")
}

func isModifier(rel string) bool {
	switch rel {
	case RelCompound, RelPoss, RelAux, RelNeg:
		return true
	}
	return strings.HasSuffix(rel, modSuffix)
}

func isConnective(rel string) bool {
	return rel == RelACL || rel == RelAppos || strings.HasPrefix(rel, nmodPrefix)
}
