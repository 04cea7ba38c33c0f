package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		relation string
		want     Class
	}{
		{"ROOT", ClassSkip},
		{"punct", ClassSkip},
		{"det", ClassSkip},
		{"nsubj", ClassSkip},
		{"csubj", ClassSkip},
		{"nsubj:xsubj", ClassSkip},
		{"dobj", ClassSkip},
		{"pobj", ClassSkip},
		{"compound", ClassModifier},
		{"compound:prt", ClassOther},
		{"nmod:poss", ClassModifier},
		{"aux", ClassModifier},
		{"neg", ClassModifier},
		{"amod", ClassModifier},
		{"advmod", ClassModifier},
		{"nmod", ClassModifier},
		{"nmod:tmod", ClassModifier},
		{"acl", ClassConnective},
		{"acl:relcl", ClassOther},
		{"appos", ClassConnective},
		{"nmod:of", ClassConnective},
		{"nmod:agent", ClassConnective},
		{"case", ClassOther},
		{"cc", ClassOther},
		{"conj:and", ClassOther},
		{"", ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.relation, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.relation))
		})
	}
}

func TestConnectorFor(t *testing.T) {
	tests := []struct {
		relation string
		want     string
	}{
		{"nmod:of", "of"},
		{"nmod:according_to", "according_to"},
		{"nmod:a:b", "a:b"},
		{"acl", ""},
		{"appos", ""},
		{"weird", "weird"},
		{":x", ":x"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, connectorFor(tt.relation), tt.relation)
	}
}

func TestEdgeMalformed(t *testing.T) {
	assert.False(t, Edge{"dog", "amod", "big"}.Malformed())
	assert.True(t, Edge{"", "amod", "big"}.Malformed())
	assert.True(t, Edge{"dog", "", "big"}.Malformed())
	assert.True(t, Edge{"dog", "amod", ""}.Malformed())
}

func TestTripleFormatting(t *testing.T) {
	tr := Triple{Sentence: 3, Subject: "big dog", Predicate: PredicateSubClassOf, Object: "dog"}

	assert.Equal(t, "big dog\trdfs:subClassOf\tdog", tr.String())
	assert.Equal(t, "3\tbig dog\trdfs:subClassOf\tdog", tr.StringWithSentence())
	assert.Equal(t, KindSubClass, tr.Kind())
	assert.Equal(t, KindRelation, Triple{Predicate: "local:of_x"}.Kind())
}

func TestStripSpaces(t *testing.T) {
	assert.Equal(t, "bigmydog", stripSpaces("big my dog"))
	assert.Equal(t, "dog", stripSpaces("dog"))
	assert.Equal(t, "ab", stripSpaces(" a\tb\n"))
}

func TestTermMapResolve(t *testing.T) {
	m := make(TermMap)
	assert.Equal(t, "dog", m.Resolve("dog"))

	m.Set("dog", "big dog")
	m.Set("dog", "my big dog")
	assert.Equal(t, "my big dog", m.Resolve("dog"))
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	s.Add(Triple{Subject: "a"})
	s.Add(Triple{Subject: "b"})

	got := s.Triples()
	got[0].Subject = "changed"
	assert.Equal(t, "a", s.Triples()[0].Subject)
	assert.Equal(t, []Triple{{Subject: "b"}}, s.Since(1))
	assert.Nil(t, s.Since(2))

	var fanned []Triple
	MultiSink{s, SinkFunc(func(t Triple) { fanned = append(fanned, t) })}.Add(Triple{Subject: "c"})
	assert.Equal(t, 3, s.Len())
	assert.Len(t, fanned, 1)

	s.Reset()
	assert.Equal(t, 0, s.Len())
}
