package depparse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brunobiangulo/depfacts/extract"
)

const (
	defaultCoreNLPURL     = "http://localhost:9000"
	defaultCoreNLPTimeout = 60 * time.Second
	coreNLPAnnotators     = "tokenize,ssplit,pos,lemma,ner,depparse"
)

// CoreNLP annotates text with a Stanford CoreNLP server.
type CoreNLP struct {
	cfg    Config
	client *http.Client
}

// NewCoreNLP creates a CoreNLP client. Empty BaseURL and Timeout fall back to
// a local server on port 9000 and one minute.
func NewCoreNLP(cfg Config) *CoreNLP {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCoreNLPURL
	}
	if cfg.Scheme == "" {
		cfg.Scheme = SchemeEnhancedPlusPlus
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCoreNLPTimeout
	}
	return &CoreNLP{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type coreNLPDependency struct {
	Dep            string `json:"dep"`
	Governor       int    `json:"governor"`
	GovernorGloss  string `json:"governorGloss"`
	Dependent      int    `json:"dependent"`
	DependentGloss string `json:"dependentGloss"`
}

type coreNLPSentence struct {
	Index            int                 `json:"index"`
	Basic            []coreNLPDependency `json:"basicDependencies"`
	Enhanced         []coreNLPDependency `json:"enhancedDependencies"`
	EnhancedPlusPlus []coreNLPDependency `json:"enhancedPlusPlusDependencies"`
}

type coreNLPDocument struct {
	Sentences []coreNLPSentence `json:"sentences"`
}

func (s coreNLPSentence) dependencies(scheme string) []coreNLPDependency {
	switch scheme {
	case SchemeBasic:
		return s.Basic
	case SchemeEnhanced:
		return s.Enhanced
	default:
		return s.EnhancedPlusPlus
	}
}

// Parse sends text to the server and returns the edges of all sentences it
// found, in server order.
func (c *CoreNLP) Parse(ctx context.Context, text string) ([]extract.Edge, error) {
	props, err := json.Marshal(map[string]string{
		"annotators":   coreNLPAnnotators,
		"outputFormat": "json",
	})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/?properties=" + url.QueryEscape(string(props))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("corenlp request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading corenlp response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("corenlp error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc coreNLPDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding corenlp response: %w", err)
	}

	var edges []extract.Edge
	for _, sent := range doc.Sentences {
		for _, d := range sent.dependencies(c.cfg.Scheme) {
			edges = append(edges, extract.Edge{
				Governor:  d.GovernorGloss,
				Relation:  d.Dep,
				Dependent: d.DependentGloss,
			})
		}
	}

	slog.Debug("depparse: corenlp annotated",
		"chars", len(text), "sentences", len(doc.Sentences), "edges", len(edges),
		"scheme", c.cfg.Scheme, "elapsed", time.Since(start).Round(time.Millisecond))
	return edges, nil
}
