package export

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/brunobiangulo/depfacts/extract"
)

// Namespaces controls how terms and local predicates become IRIs.
type Namespaces struct {
	// Term is prepended to the escaped subject and object text.
	Term string `json:"term" yaml:"term"`

	// Local is prepended to local: predicate names.
	Local string `json:"local" yaml:"local"`
}

// DefaultNamespaces returns the namespaces used when none are configured.
func DefaultNamespaces() Namespaces {
	return Namespaces{
		Term:  "https://depfacts.dev/term/",
		Local: "https://depfacts.dev/local/",
	}
}

// prefixes returns the namespace prefixes declared in Turtle and JSON-LD.
func (ns Namespaces) prefixes() map[string]string {
	return map[string]string{
		"rdf":   "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		"rdfs":  "http://www.w3.org/2000/01/rdf-schema#",
		"local": ns.Local,
		"term":  ns.Term,
	}
}

// TermIRI returns the IRI for a subject or object term.
func (ns Namespaces) TermIRI(term string) string {
	return ns.Term + url.PathEscape(term)
}

// PredicateIRI expands a prefixed predicate. Unknown prefixes are treated as
// local names.
func (ns Namespaces) PredicateIRI(predicate string) string {
	prefix, name, ok := strings.Cut(predicate, ":")
	if ok {
		if base, known := ns.prefixes()[prefix]; known {
			return base + url.PathEscape(name)
		}
	}
	return ns.Local + url.PathEscape(predicate)
}

func sortedPrefixes(prefixes map[string]string) []string {
	keys := make([]string, 0, len(prefixes))
	for k := range prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSONLDDocument represents a JSON-LD document structure.
type JSONLDDocument struct {
	Context map[string]any `json:"@context"`
	Graph   []JSONLDNode   `json:"@graph"`
}

// JSONLDNode represents a node in a JSON-LD graph.
type JSONLDNode struct {
	ID         string         `json:"@id"`
	Properties map[string]any `json:"-"`
}

// MarshalJSON flattens Properties next to @id.
func (n JSONLDNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.Properties)+1)
	m["@id"] = n.ID
	for k, v := range n.Properties {
		m[k] = v
	}
	return json.Marshal(m)
}

type idRef struct {
	ID string `json:"@id"`
}

// buildJSONLD groups triples by subject in first-appearance order. Each node
// carries the subject text as rdfs:label.
func buildJSONLD(ns Namespaces, triples []extract.Triple) JSONLDDocument {
	doc := JSONLDDocument{
		Context: make(map[string]any),
		Graph:   make([]JSONLDNode, 0),
	}
	for k, v := range ns.prefixes() {
		doc.Context[k] = v
	}

	index := make(map[string]int)
	for _, t := range triples {
		id := ns.TermIRI(t.Subject)
		i, ok := index[id]
		if !ok {
			i = len(doc.Graph)
			index[id] = i
			doc.Graph = append(doc.Graph, JSONLDNode{
				ID:         id,
				Properties: map[string]any{"rdfs:label": t.Subject},
			})
		}
		pred := ns.PredicateIRI(t.Predicate)
		refs, _ := doc.Graph[i].Properties[pred].([]idRef)
		doc.Graph[i].Properties[pred] = append(refs, idRef{ID: ns.TermIRI(t.Object)})
	}
	return doc
}
