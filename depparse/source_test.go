package depparse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/depfacts/extract"
)

func TestNewSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.conllu")
	if err := os.WriteFile(path, []byte(sampleCoNLLU), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		cfg      Config
		wantType string
	}{
		{Config{Provider: "corenlp"}, "*depparse.CoreNLP"},
		{Config{Provider: "conllu", Path: path}, "*depparse.CoNLLU"},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			s, err := NewSource(tt.cfg)
			if err != nil {
				t.Fatalf("NewSource(%q) returned error: %v", tt.cfg.Provider, err)
			}
			if got := fmt.Sprintf("%T", s); got != tt.wantType {
				t.Errorf("NewSource(%q) type = %s, want %s", tt.cfg.Provider, got, tt.wantType)
			}
		})
	}
}

func TestNewSourceErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty", Config{}, "dependency source not specified"},
		{"unknown", Config{Provider: "spacy"}, "unknown dependency source: spacy"},
		{"scheme", Config{Provider: "corenlp", Scheme: "collapsed"}, "unknown dependency scheme: collapsed"},
		{"conllu without path", Config{Provider: "conllu"}, "conllu source requires a path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSource(tt.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Error() != tt.want {
				t.Errorf("error = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestSourceFunc(t *testing.T) {
	want := []extract.Edge{{Governor: "dog", Relation: "amod", Dependent: "big"}}
	var s Source = SourceFunc(func(ctx context.Context, text string) ([]extract.Edge, error) {
		return want, nil
	})

	got, err := s.Parse(context.Background(), "big dog")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, want %v", got, want)
	}
}
