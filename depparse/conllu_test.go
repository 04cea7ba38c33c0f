package depparse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/brunobiangulo/depfacts/extract"
)

// conllu builds a CoNLL-U document. Token lines are written with spaces
// between columns and converted to tabs.
func conllu(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		if l != "" && !strings.HasPrefix(l, "#") {
			l = strings.Join(strings.Fields(l), "\t")
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

var sampleCoNLLU = conllu(
	"# sent_id = s1",
	"# text = The big dog barked.",
	"1 The the DET DT _ 3 det 3:det _",
	"2 big big ADJ JJ _ 3 amod 3:amod _",
	"3 dog dog NOUN NN _ 4 nsubj 4:nsubj _",
	"4 barked bark VERB VBD _ 0 root 0:root SpaceAfter=No",
	"5 . . PUNCT . _ 4 punct 4:punct _",
	"",
	"# sent_id = s2",
	"1 I I PRON PRP _ 2 nsubj 2:nsubj _",
	"2 like like VERB VBP _ 0 root 0:root _",
	"3 cake cake NOUN NN _ 2 obj 2:obj _",
	"4 with with ADP IN _ 5 case 5:case _",
	"5 icing icing NOUN NN _ 3 nmod 3:nmod:with _",
	"5.1 likes like VERB VBZ _ _ _ 2:conj _",
	"",
)

func TestReadCoNLLU(t *testing.T) {
	sentences, err := ReadCoNLLU(strings.NewReader(sampleCoNLLU))
	if err != nil {
		t.Fatalf("ReadCoNLLU: %v", err)
	}
	if len(sentences) != 2 {
		t.Fatalf("got %d sentences, want 2", len(sentences))
	}

	if sentences[0].ID != "s1" || sentences[0].Text != "The big dog barked." {
		t.Errorf("sentence 0 = %q / %q", sentences[0].ID, sentences[0].Text)
	}
	// No text comment: the words are joined.
	if sentences[1].Text != "I like cake with icing" {
		t.Errorf("sentence 1 text = %q", sentences[1].Text)
	}
	if len(sentences[1].Tokens) != 6 {
		t.Errorf("sentence 1 tokens = %d, want 6", len(sentences[1].Tokens))
	}
}

func TestReadCoNLLUBadColumns(t *testing.T) {
	_, err := ReadCoNLLU(strings.NewReader("1\tdog\tdog\n"))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error = %v, want column error on line 1", err)
	}
}

func TestSentenceEdges(t *testing.T) {
	sentences, err := ReadCoNLLU(strings.NewReader(sampleCoNLLU))
	if err != nil {
		t.Fatal(err)
	}

	basic := sentences[1].Edges(SchemeBasic)
	enhanced := sentences[1].Edges(SchemeEnhancedPlusPlus)

	wantBasic := []extract.Edge{
		{Governor: "like", Relation: "nsubj", Dependent: "I"},
		{Governor: "ROOT", Relation: "ROOT", Dependent: "like"},
		{Governor: "like", Relation: "obj", Dependent: "cake"},
		{Governor: "icing", Relation: "case", Dependent: "with"},
		{Governor: "cake", Relation: "nmod", Dependent: "icing"},
	}
	if len(basic) != len(wantBasic) {
		t.Fatalf("basic = %v", basic)
	}
	for i := range wantBasic {
		if basic[i] != wantBasic[i] {
			t.Errorf("basic[%d] = %v, want %v", i, basic[i], wantBasic[i])
		}
	}

	// Enhanced relations carry the preposition; the empty node is ignored.
	if len(enhanced) != 5 {
		t.Fatalf("enhanced = %v", enhanced)
	}
	if enhanced[4].Relation != "nmod:with" {
		t.Errorf("enhanced[4] = %v, want nmod:with", enhanced[4])
	}
}

func TestCoNLLUParse(t *testing.T) {
	sentences, err := ReadCoNLLU(strings.NewReader(sampleCoNLLU))
	if err != nil {
		t.Fatal(err)
	}
	src := NewCoNLLU(sentences, "")

	edges, err := src.Parse(context.Background(), "  The big   dog barked. ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(edges) != 5 || edges[1] != (extract.Edge{Governor: "dog", Relation: "amod", Dependent: "big"}) {
		t.Errorf("edges = %v", edges)
	}

	_, err = src.Parse(context.Background(), "Unknown sentence.")
	if !errors.Is(err, ErrSentenceNotFound) {
		t.Errorf("error = %v, want ErrSentenceNotFound", err)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"naïve café", 4, "naïv..."},
		{"ééé", 2, "éé..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}

	long := strings.Repeat("é", 100)
	_, err := NewCoNLLU(nil, "").Parse(context.Background(), long)
	if !errors.Is(err, ErrSentenceNotFound) || !utf8.ValidString(err.Error()) {
		t.Errorf("error = %q", err)
	}
}

func TestCoNLLUParseCancelled(t *testing.T) {
	src := NewCoNLLU(nil, SchemeBasic)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Parse(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// End to end through the extractor: the enhanced scheme yields the
// prepositional connective.
func TestCoNLLUFeedsExtractor(t *testing.T) {
	sentences, err := ReadCoNLLU(strings.NewReader(sampleCoNLLU))
	if err != nil {
		t.Fatal(err)
	}

	sink := extract.NewMemorySink()
	extract.New().ExtractSentence(1, sentences[1].Edges(SchemeEnhancedPlusPlus), sink)

	got := sink.Triples()
	if len(got) != 2 {
		t.Fatalf("triples = %v", got)
	}
	if got[0].Predicate != "local:with_icing" || got[1].Predicate != "local:cake_with" {
		t.Errorf("triples = %v", got)
	}
}
