// Package depparse provides dependency sources: components that turn a
// sentence of text into the ordered governor–relation–dependent edges the
// extractor consumes.
package depparse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brunobiangulo/depfacts/extract"
)

// Dependency labelling schemes.
const (
	SchemeBasic            = "basic"
	SchemeEnhanced         = "enhanced"
	SchemeEnhancedPlusPlus = "enhanced++"
)

// ErrSentenceNotFound is returned by sources backed by a fixed corpus when
// asked for a sentence they hold no annotation for.
var ErrSentenceNotFound = errors.New("depparse: sentence not annotated")

// Source annotates one line of text. Edges of every sentence the source
// detects inside the line are returned in source order.
type Source interface {
	Parse(ctx context.Context, text string) ([]extract.Edge, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, text string) ([]extract.Edge, error)

// Parse calls f.
func (f SourceFunc) Parse(ctx context.Context, text string) ([]extract.Edge, error) {
	return f(ctx, text)
}

// Config configures a dependency source.
type Config struct {
	Provider string        `json:"provider" yaml:"provider"` // corenlp, conllu
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	Scheme   string        `json:"scheme" yaml:"scheme"`
	Path     string        `json:"path" yaml:"path"` // CoNLL-U file for the conllu provider
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// NewSource creates a dependency source from configuration.
func NewSource(cfg Config) (Source, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = SchemeEnhancedPlusPlus
	}
	if !validScheme(cfg.Scheme) {
		return nil, fmt.Errorf("unknown dependency scheme: %s", cfg.Scheme)
	}

	switch cfg.Provider {
	case "corenlp":
		return NewCoreNLP(cfg), nil
	case "conllu":
		if cfg.Path == "" {
			return nil, fmt.Errorf("conllu source requires a path")
		}
		return OpenCoNLLU(cfg.Path, cfg.Scheme)
	case "":
		return nil, fmt.Errorf("dependency source not specified")
	default:
		return nil, fmt.Errorf("unknown dependency source: %s", cfg.Provider)
	}
}

func validScheme(s string) bool {
	switch s {
	case SchemeBasic, SchemeEnhanced, SchemeEnhancedPlusPlus:
		return true
	}
	return false
}
