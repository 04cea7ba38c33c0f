//go:build cgo

package depfacts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/brunobiangulo/depfacts/depparse"
	"github.com/brunobiangulo/depfacts/export"
	"github.com/brunobiangulo/depfacts/extract"
	"github.com/brunobiangulo/depfacts/publish"
	"github.com/brunobiangulo/depfacts/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// annotations maps sentence text to the edges the stub source returns.
var annotations = map[string][]extract.Edge{
	"the big dog": {
		{Governor: "dog", Relation: "det", Dependent: "the"},
		{Governor: "dog", Relation: "amod", Dependent: "big"},
	},
	"cake with icing": {
		{Governor: "cake", Relation: "nmod:with", Dependent: "icing"},
	},
}

var (
	bigDog = extract.Triple{Subject: "big dog", Predicate: "rdfs:subClassOf", Object: "dog"}
	cake1  = extract.Triple{Subject: "cake with icing", Predicate: "local:with_icing", Object: "cake"}
	cake2  = extract.Triple{Subject: "cake with icing", Predicate: "local:cake_with", Object: "icing"}
)

func at(t extract.Triple, sentence int) extract.Triple {
	t.Sentence = sentence
	return t
}

func stubSource(calls *[]string) depparse.Source {
	return depparse.SourceFunc(func(ctx context.Context, text string) ([]extract.Edge, error) {
		if calls != nil {
			*calls = append(*calls, text)
		}
		edges, ok := annotations[text]
		if !ok {
			return nil, errors.New("corenlp error 500: boom")
		}
		return edges, nil
	})
}

func newTestEngine(t *testing.T, mutate func(*Config), opts ...Option) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "depfacts.db")
	if mutate != nil {
		mutate(&cfg)
	}
	if len(opts) == 0 {
		opts = []Option{WithSource(stubSource(nil))}
	}
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestExtractTextSkipsBlankLines(t *testing.T) {
	var calls []string
	e := newTestEngine(t, nil, WithSource(stubSource(&calls)))
	ctx := context.Background()

	res, err := e.ExtractText(ctx, "notes", "the big dog\n\n   \ncake with icing\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"the big dog", "cake with icing"}, calls)
	assert.Equal(t, 2, res.Sentences)
	assert.Equal(t, store.StatusReady, res.Status)
	assert.Equal(t, []extract.Triple{at(bigDog, 0), at(cake1, 1), at(cake2, 1)}, res.Triples)
	assert.Equal(t, 1, res.Stats.SubClass)
	assert.Equal(t, 2, res.Stats.Relations)
	assert.NotEmpty(t, res.RunID)

	stored, err := e.Triples(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, res.Triples, stored)

	doc, err := e.Document(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusReady, doc.Status)
	assert.Equal(t, 2, doc.SentenceCount)
	assert.Equal(t, 3, doc.TripleCount)
	assert.Equal(t, res.RunID, doc.RunID)
	assert.Equal(t, "custom", doc.Source)
}

func TestExtractTextUpstreamFailureAborts(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := e.ExtractText(ctx, "bad", "the big dog\nunparseable line\ncake with icing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.Contains(t, err.Error(), "sentence 1")
	assert.Equal(t, store.StatusError, res.Status)

	doc, err := e.Document(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, doc.Status)
}

func TestExtractTextContinueOnError(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.ContinueOnError = true })
	ctx := context.Background()

	res, err := e.ExtractText(ctx, "partial", "the big dog\nunparseable line\ncake with icing")
	require.NoError(t, err)

	assert.Equal(t, store.StatusPartial, res.Status)
	assert.Equal(t, 3, res.Sentences)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Sentence)
	assert.Equal(t, "unparseable line", res.Failures[0].Text)
	// The failed sentence still consumes its index.
	assert.Equal(t, []extract.Triple{at(bigDog, 0), at(cake1, 2), at(cake2, 2)}, res.Triples)

	sentences, err := e.Store().SentencesByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, sentences, 3)
	assert.NotEmpty(t, sentences[1].Error)
	assert.Equal(t, 2, sentences[0].EdgeCount)
}

func TestExtractTextCancelled(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ExtractText(ctx, "cancelled", "the big dog")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractTextStreamsToSink(t *testing.T) {
	e := newTestEngine(t, nil)
	var buf bytes.Buffer
	w, err := export.NewWriter(&buf, export.FormatTSV)
	require.NoError(t, err)

	_, err = e.ExtractText(context.Background(), "", "cake with icing", WithSink(w))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	assert.Equal(t, "cake with icing\tlocal:with_icing\tcake\ncake with icing\tlocal:cake_with\ticing\n", buf.String())
}

type recordingConn struct {
	subjects []string
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	return nil
}
func (c *recordingConn) FlushWithContext(ctx context.Context) error { return nil }
func (c *recordingConn) Close()                                     {}

func TestExtractPublishesEachSentence(t *testing.T) {
	conn := &recordingConn{}
	e := newTestEngine(t, nil, WithSource(stubSource(nil)), WithPublisher(publish.New(conn, "kb")))

	res, err := e.ExtractText(context.Background(), "pub", "the big dog\n\ncake with icing")
	require.NoError(t, err)

	want := "kb." + strconv.FormatInt(res.DocumentID, 10)
	assert.Equal(t, []string{want, want}, conn.subjects)
}

func TestExtractFileSkipsUnchanged(t *testing.T) {
	var calls []string
	e := newTestEngine(t, nil, WithSource(stubSource(&calls)))
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("the big dog\n"), 0644))

	first, err := e.ExtractFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Len(t, calls, 1)

	second, err := e.ExtractFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Len(t, calls, 1)

	forced, err := e.ExtractFile(ctx, path, WithForce())
	require.NoError(t, err)
	assert.False(t, forced.Skipped)
	assert.Len(t, calls, 2)

	require.NoError(t, os.WriteFile(path, []byte("the big dog\ncake with icing\n"), 0644))
	changed, err := e.ExtractFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, changed.DocumentID)
	assert.Equal(t, 3, len(changed.Triples))

	stored, err := e.Triples(ctx, changed.DocumentID)
	require.NoError(t, err)
	assert.Len(t, stored, 3, "re-extraction replaces old triples")
}

func TestExtractFileRerunsOnSchemeOrSourceChange(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "depfacts.db")
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("the big dog\n"), 0644))
	ctx := context.Background()

	open := func(scheme string, opts ...Option) *Engine {
		cfg := DefaultConfig()
		cfg.DBPath = dbPath
		cfg.Source.Scheme = scheme
		if len(opts) == 0 {
			corpus := filepath.Join(dir, "corpus.conllu")
			rows := []string{
				"# text = the big dog",
				"1\tthe\tthe\tDET\t_\t_\t3\tdet\t_\t_",
				"2\tbig\tbig\tADJ\t_\t_\t3\tamod\t_\t_",
				"3\tdog\tdog\tNOUN\t_\t_\t0\troot\t_\t_",
				"",
			}
			require.NoError(t, os.WriteFile(corpus, []byte(strings.Join(rows, "\n")), 0644))
			cfg.Source.Provider = "conllu"
			cfg.Source.Path = corpus
		}
		e, err := New(cfg, opts...)
		require.NoError(t, err)
		return e
	}

	var calls []string
	basic := open(depparse.SchemeBasic, WithSource(stubSource(&calls)))
	first, err := basic.ExtractFile(ctx, input)
	require.NoError(t, err)
	require.False(t, first.Skipped)
	require.NoError(t, basic.Close())

	var enhancedCalls []string
	enhanced := open(depparse.SchemeEnhancedPlusPlus, WithSource(stubSource(&enhancedCalls)))
	second, err := enhanced.ExtractFile(ctx, input)
	require.NoError(t, err)
	assert.False(t, second.Skipped, "scheme change must re-extract")
	assert.Len(t, enhancedCalls, 1)
	doc, err := enhanced.Document(ctx, second.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, depparse.SchemeEnhancedPlusPlus, doc.Scheme)
	require.NoError(t, enhanced.Close())

	corpusEngine := open(depparse.SchemeEnhancedPlusPlus)
	defer corpusEngine.Close()
	third, err := corpusEngine.ExtractFile(ctx, input)
	require.NoError(t, err)
	assert.False(t, third.Skipped, "source change must re-extract")
	assert.Equal(t, []extract.Triple{at(bigDog, 0)}, third.Triples)
	doc, err = corpusEngine.Document(ctx, third.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "conllu", doc.Source)

	again, err := corpusEngine.ExtractFile(ctx, input)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}

func TestExtractFileCoNLLUUsesOwnAnnotations(t *testing.T) {
	called := false
	src := depparse.SourceFunc(func(ctx context.Context, text string) ([]extract.Edge, error) {
		called = true
		return nil, errors.New("should not be called")
	})
	e := newTestEngine(t, nil, WithSource(src))

	rows := []string{
		"# text = the big dog",
		"1\tthe\tthe\tDET\t_\t_\t3\tdet\t_\t_",
		"2\tbig\tbig\tADJ\t_\t_\t3\tamod\t_\t_",
		"3\tdog\tdog\tNOUN\t_\t_\t0\troot\t_\t_",
		"",
	}
	path := filepath.Join(t.TempDir(), "corpus.conllu")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")), 0644))

	res, err := e.ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, []extract.Triple{at(bigDog, 0)}, res.Triples)

	doc, err := e.Document(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "conllu-file", doc.Source)
	assert.Equal(t, "conllu", doc.Format)
}

func TestExtractFileUnsupportedFormat(t *testing.T) {
	e := newTestEngine(t, nil)
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0644))

	_, err := e.ExtractFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestQueriesAndDelete(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cake.txt")
	require.NoError(t, os.WriteFile(path, []byte("cake with icing\n"), 0644))
	res, err := e.ExtractFile(ctx, path, WithMetadata(map[string]string{"team": "kb"}))
	require.NoError(t, err)

	docs, err := e.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "kb", docs[0].Metadata["team"])

	byTerm, err := e.TriplesForTerm(ctx, "icing", 0)
	require.NoError(t, err)
	assert.Equal(t, []extract.Triple{at(cake2, 0)}, byTerm)

	var buf bytes.Buffer
	require.NoError(t, e.WriteTriples(ctx, &buf, res.DocumentID, export.FormatTSV))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Triples)

	require.NoError(t, e.DeletePath(ctx, path))
	_, err = e.Document(ctx, res.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, e.Delete(ctx, res.DocumentID), ErrDocumentNotFound)
	assert.ErrorIs(t, e.DeletePath(ctx, path), ErrDocumentNotFound)
	_, err = e.Triples(ctx, res.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestClosedEngine(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.ExtractText(context.Background(), "x", "the big dog")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = e.Documents(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestNewRejectsBadSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "x.db")
	cfg.Source.Provider = "conllu"
	cfg.Source.Path = filepath.Join(t.TempDir(), "missing.conllu")

	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
