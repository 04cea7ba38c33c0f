package extract

// TermMap maps a basic surface term to the most specific compound term built
// from it so far in the current sentence. A later Set for the same term
// replaces the earlier value.
type TermMap map[string]string

// Set records specific as the latest refinement of basic.
func (m TermMap) Set(basic, specific string) {
	m[basic] = specific
}

// Resolve returns the most specific term known for basic, or basic itself
// when nothing has been recorded.
func (m TermMap) Resolve(basic string) string {
	if specific, ok := m[basic]; ok {
		return specific
	}
	return basic
}
