// Package depfacts extracts semantic fact triples from dependency-parsed
// text and keeps them in a SQLite store.
//
// An Engine reads a document, splits it into sentence lines, asks a
// dependency source for the edges of each line and runs the two-pass
// extractor over them. Triples are persisted per sentence, optionally
// published to NATS and streamed to any extra sink the caller supplies.
package depfacts

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/brunobiangulo/depfacts/depparse"
	"github.com/brunobiangulo/depfacts/export"
	"github.com/brunobiangulo/depfacts/extract"
	"github.com/brunobiangulo/depfacts/metrics"
	"github.com/brunobiangulo/depfacts/parser"
	"github.com/brunobiangulo/depfacts/publish"
	"github.com/brunobiangulo/depfacts/segment"
	"github.com/brunobiangulo/depfacts/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Document is an extracted document as reported to callers.
type Document struct {
	ID            int64             `json:"id"`
	Path          string            `json:"path"`
	Filename      string            `json:"filename"`
	Format        string            `json:"format"`
	ContentHash   string            `json:"content_hash"`
	Source        string            `json:"source"`
	Scheme        string            `json:"scheme"`
	Status        string            `json:"status"`
	RunID         string            `json:"run_id,omitempty"`
	SentenceCount int               `json:"sentence_count"`
	TripleCount   int               `json:"triple_count"`
	FailureCount  int               `json:"failure_count"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

// SentenceFailure records a sentence the dependency source could not
// annotate.
type SentenceFailure struct {
	Sentence int    `json:"sentence"`
	Text     string `json:"text"`
	Error    string `json:"error"`
}

// Result reports the outcome of one extraction run.
type Result struct {
	RunID      string            `json:"run_id"`
	DocumentID int64             `json:"document_id"`
	Path       string            `json:"path"`
	Status     string            `json:"status"`
	Skipped    bool              `json:"skipped,omitempty"`
	Sentences  int               `json:"sentences"`
	Stats      extract.Stats     `json:"stats"`
	Triples    []extract.Triple  `json:"triples"`
	Failures   []SentenceFailure `json:"failures,omitempty"`
}

// conlluFileSource is recorded as the source of documents annotated by their
// own CoNLL-U trees.
const conlluFileSource = "conllu-file"

// Option configures an Engine.
type Option func(*Engine)

// WithSource replaces the configured dependency source.
func WithSource(src depparse.Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithMetrics uses m instead of a fresh metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPublisher replaces the publisher built from Config.Publish.
func WithPublisher(p *publish.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// ExtractOption configures a single extraction run.
type ExtractOption func(*extractOptions)

type extractOptions struct {
	force    bool
	sinks    []extract.Sink
	metadata map[string]string
	key      string
}

// WithForce re-extracts a file even if its content hash is unchanged.
func WithForce() ExtractOption {
	return func(o *extractOptions) { o.force = true }
}

// WithSink streams every triple of the run to sink as it is emitted.
func WithSink(sink extract.Sink) ExtractOption {
	return func(o *extractOptions) { o.sinks = append(o.sinks, sink) }
}

// WithKey stores the document under key instead of the file's absolute path.
// Uploads staged in temporary files use it to keep one record per name.
func WithKey(key string) ExtractOption {
	return func(o *extractOptions) { o.key = key }
}

// WithMetadata attaches custom metadata to the document record.
func WithMetadata(metadata map[string]string) ExtractOption {
	return func(o *extractOptions) { o.metadata = metadata }
}

// Engine drives extraction and owns the store, dependency source and
// publisher. Runs for different documents may proceed concurrently; runs for
// the same document are serialised.
type Engine struct {
	cfg        Config
	store      *store.Store
	source     depparse.Source
	sourceName string
	redis      *redis.Client
	extractor  *extract.Extractor
	parsers    *parser.Registry
	splitter   *segment.Splitter
	metrics    *metrics.Metrics
	publisher  *publish.Publisher

	mu     sync.Mutex
	closed bool
	locks  map[string]*sync.Mutex
}

// New creates an engine with the given configuration.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Source.Scheme == "" {
		cfg.Source.Scheme = depparse.SchemeEnhancedPlusPlus
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = string(export.FormatTSV)
	}
	if cfg.Namespaces == (export.Namespaces{}) {
		cfg.Namespaces = export.DefaultNamespaces()
	}

	e := &Engine{
		cfg:     cfg,
		parsers: parser.NewRegistry(),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(e)
	}

	if e.source == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		src, err := depparse.NewSource(cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		e.source = src
		e.sourceName = cfg.Source.Provider
	} else {
		e.sourceName = "custom"
	}

	if cfg.Cache.Addr != "" {
		e.redis = depparse.NewRedisClient(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		cacheOpts := []depparse.CacheOption{depparse.WithCacheTTL(cfg.Cache.TTL)}
		if cfg.Cache.Prefix != "" {
			cacheOpts = append(cacheOpts, depparse.WithCachePrefix(cfg.Cache.Prefix))
		}
		e.source = depparse.NewCached(e.source, e.redis, cfg.Source.Scheme, cacheOpts...)
		slog.Info("engine: annotation cache enabled", "addr", cfg.Cache.Addr, "ttl", cfg.Cache.TTL)
	}

	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	xopts := []extract.Option{extract.WithObserver(e.metrics)}
	if cfg.Verbose {
		xopts = append(xopts, extract.WithLogger(slog.Default()))
	}
	e.extractor = extract.New(xopts...)
	e.splitter = segment.New(cfg.Segment)

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		e.closeClients()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	e.store = s

	if e.publisher == nil && cfg.Publish.URL != "" {
		p, err := publish.Connect(cfg.Publish)
		if err != nil {
			e.closeClients()
			s.Close()
			return nil, err
		}
		e.publisher = p
	}

	slog.Info("engine: ready", "db", cfg.resolveDBPath(), "source", e.sourceName,
		"scheme", cfg.Source.Scheme, "publish", e.publisher != nil)
	return e, nil
}

// ExtractFile extracts triples from the document at path. A file whose
// content hash matches the stored one is skipped unless WithForce is given.
// CoNLL-U files are extracted from their own annotations.
func (e *Engine) ExtractFile(ctx context.Context, path string, opts ...ExtractOption) (*Result, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	options := newExtractOptions(opts)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	key := absPath
	if options.key != "" {
		key = options.key
	}
	unlock := e.lockPath(key)
	defer unlock()

	hash, err := fileHash(absPath)
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}

	format := parser.FormatOf(absPath)
	doc := store.Document{
		Path:        key,
		Filename:    filepath.Base(absPath),
		Format:      format,
		ContentHash: hash,
		Source:      e.sourceName,
		Scheme:      e.cfg.Source.Scheme,
	}
	if format == "conllu" {
		doc.Source = conlluFileSource
	}

	// A different source or scheme annotates the same text differently.
	if !options.force {
		existing, err := e.store.GetDocumentByPath(ctx, key)
		if err == nil && existing.ContentHash == hash && existing.Status == store.StatusReady &&
			existing.Scheme == doc.Scheme && existing.Source == doc.Source {
			slog.Info("extract: document unchanged, skipping", "file", existing.Filename, "doc_id", existing.ID)
			return &Result{
				RunID:      existing.RunID,
				DocumentID: existing.ID,
				Path:       key,
				Status:     existing.Status,
				Skipped:    true,
				Sentences:  existing.SentenceCount,
			}, nil
		}
	}

	if format == "conllu" {
		return e.extractCoNLLU(ctx, absPath, doc, options)
	}

	p, err := e.parsers.Get(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	slog.Info("extract: parsing document", "file", doc.Filename, "format", format)
	parseStart := time.Now()
	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	sentences := e.splitter.Sentences(parsed.Sections)
	slog.Info("extract: parsing complete", "file", doc.Filename, "sections", len(parsed.Sections),
		"sentences", len(sentences), "elapsed", time.Since(parseStart).Round(time.Millisecond))

	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.Text
	}
	return e.run(ctx, doc, texts, e.annotateWithSource, options)
}

// ExtractText extracts triples from text holding one sentence per line. name
// identifies the document in the store; an empty name gets a generated one.
func (e *Engine) ExtractText(ctx context.Context, name, text string, opts ...ExtractOption) (*Result, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	options := newExtractOptions(opts)

	if name == "" {
		name = "text:" + uuid.NewString()
	}
	unlock := e.lockPath(name)
	defer unlock()

	sum := sha256.Sum256([]byte(text))
	doc := store.Document{
		Path:        name,
		Filename:    filepath.Base(name),
		Format:      "txt",
		ContentHash: hex.EncodeToString(sum[:]),
		Source:      e.sourceName,
		Scheme:      e.cfg.Source.Scheme,
	}

	sections := parser.Lines(text)
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Content
	}
	return e.run(ctx, doc, texts, e.annotateWithSource, options)
}

func (e *Engine) extractCoNLLU(ctx context.Context, path string, doc store.Document, options *extractOptions) (*Result, error) {
	corpus, err := depparse.OpenCoNLLU(path, e.cfg.Source.Scheme)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	sentences := corpus.Sentences()
	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.Text
	}
	// Sentences are annotated positionally so repeated texts keep their own
	// trees.
	annotate := func(ctx context.Context, i int, _ string) ([]extract.Edge, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return sentences[i].Edges(corpus.Scheme()), nil
	}
	return e.run(ctx, doc, texts, annotate, options)
}

// annotateFunc returns the edges of the i-th non-blank line.
type annotateFunc func(ctx context.Context, i int, text string) ([]extract.Edge, error)

func (e *Engine) annotateWithSource(ctx context.Context, _ int, text string) ([]extract.Edge, error) {
	return e.source.Parse(ctx, text)
}

// run extracts texts in order. Blank lines are skipped without consuming a
// sentence index. Each sentence is annotated, extracted, saved and published
// before the next one starts.
func (e *Engine) run(ctx context.Context, doc store.Document, texts []string, annotate annotateFunc, options *extractOptions) (*Result, error) {
	runID := uuid.NewString()
	doc.RunID = runID
	doc.Status = store.StatusProcessing
	if options.metadata != nil {
		data, _ := json.Marshal(options.metadata)
		doc.Metadata = string(data)
	}

	docID, err := e.store.UpsertDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("upserting document: %w", err)
	}
	if err := e.store.DeleteDocumentData(ctx, docID); err != nil {
		return nil, fmt.Errorf("cleaning old data: %w", err)
	}

	res := &Result{RunID: runID, DocumentID: docID, Path: doc.Path, Triples: []extract.Triple{}}
	mem := extract.NewMemorySink()
	sink := append(extract.MultiSink{mem}, options.sinks...)

	slog.Info("extract: extracting sentences", "file", doc.Filename, "doc_id", docID,
		"run_id", runID, "lines", len(texts))
	start := time.Now()

	index := 0
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			e.fail(docID, res, index)
			return res, err
		}

		annStart := time.Now()
		edges, err := annotate(ctx, i, text)
		e.metrics.ObserveAnnotation(time.Since(annStart), err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.fail(docID, res, index)
				return res, ctxErr
			}
			wrapped := fmt.Errorf("%w: sentence %d: %v", ErrUpstreamFailure, index, err)
			if !e.cfg.ContinueOnError {
				slog.Error("extract: dependency source failed", "doc_id", docID, "sentence", index, "error", err)
				e.fail(docID, res, index)
				return res, wrapped
			}
			slog.Warn("extract: sentence skipped", "doc_id", docID, "sentence", index, "error", err)
			res.Failures = append(res.Failures, SentenceFailure{Sentence: index, Text: text, Error: err.Error()})
			if err := e.store.SaveSentence(ctx, store.Sentence{
				DocumentID: docID, Index: index, Text: text, Error: err.Error(),
			}, nil); err != nil {
				e.fail(docID, res, index)
				return res, fmt.Errorf("saving sentence %d: %w", index, err)
			}
			index++
			continue
		}

		before := mem.Len()
		stats := e.extractor.ExtractSentence(index, edges, sink)
		res.Stats.Merge(stats)
		emitted := mem.Since(before)

		rows := make([]store.Triple, len(emitted))
		for j, t := range emitted {
			rows[j] = store.Triple{
				DocumentID: docID,
				Sentence:   t.Sentence,
				Position:   before + j,
				Subject:    t.Subject,
				Predicate:  t.Predicate,
				Object:     t.Object,
				Kind:       t.Kind(),
			}
		}
		if err := e.store.SaveSentence(ctx, store.Sentence{
			DocumentID: docID, Index: index, Text: text, EdgeCount: len(edges),
		}, rows); err != nil {
			e.fail(docID, res, index)
			return res, fmt.Errorf("saving sentence %d: %w", index, err)
		}

		if err := e.publisher.PublishSentence(ctx, publish.SentenceMessage{
			Document: docID,
			Path:     doc.Path,
			RunID:    runID,
			Sentence: index,
			Text:     text,
			Triples:  emitted,
		}); err != nil {
			slog.Warn("extract: publishing sentence failed (non-fatal)", "doc_id", docID, "sentence", index, "error", err)
		}
		index++
	}

	res.Sentences = index
	res.Triples = mem.Triples()
	res.Status = store.StatusReady
	if len(res.Failures) > 0 {
		res.Status = store.StatusPartial
	}
	if err := e.store.FinishDocument(ctx, docID, res.Status, index, len(res.Triples), len(res.Failures)); err != nil {
		return res, fmt.Errorf("finishing document: %w", err)
	}
	e.metrics.ObserveDocument(res.Status)

	slog.Info("extract: document ready", "file", doc.Filename, "doc_id", docID,
		"sentences", index, "triples", len(res.Triples), "failures", len(res.Failures),
		"status", res.Status, "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// fail marks an aborted run. It uses a fresh context so cancellation of the
// run still leaves the document in the error state.
func (e *Engine) fail(docID int64, res *Result, sentences int) {
	res.Status = store.StatusError
	res.Sentences = sentences
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.FinishDocument(ctx, docID, store.StatusError, sentences, 0, len(res.Failures)); err != nil {
		slog.Warn("extract: recording failed run", "doc_id", docID, "error", err)
	}
	e.metrics.ObserveDocument(store.StatusError)
}

// Documents returns all extracted documents, most recently updated first.
func (e *Engine) Documents(ctx context.Context) ([]Document, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]Document, len(docs))
	for i, d := range docs {
		result[i] = toDocument(d)
	}
	return result, nil
}

// Document returns one document by ID.
func (e *Engine) Document(ctx context.Context, id int64) (*Document, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	d, err := e.store.GetDocument(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	doc := toDocument(*d)
	return &doc, nil
}

// Triples returns the stored triples of a document in emission order.
func (e *Engine) Triples(ctx context.Context, documentID int64) ([]extract.Triple, error) {
	if _, err := e.Document(ctx, documentID); err != nil {
		return nil, err
	}
	rows, err := e.store.TriplesByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return toTriples(rows), nil
}

// TriplesForTerm returns stored triples whose subject or object is term. A
// limit of zero or less returns all of them.
func (e *Engine) TriplesForTerm(ctx context.Context, term string, limit int) ([]extract.Triple, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := e.store.TriplesForTerm(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	return toTriples(rows), nil
}

// WriteTriples serializes a document's triples to w in the given format,
// using the configured namespaces and sentence column setting.
func (e *Engine) WriteTriples(ctx context.Context, w io.Writer, documentID int64, format export.Format) error {
	triples, err := e.Triples(ctx, documentID)
	if err != nil {
		return err
	}
	return export.WriteAll(w, format, triples, e.WriterOptions()...)
}

// WriterOptions returns the export options derived from the configuration.
func (e *Engine) WriterOptions() []export.Option {
	return []export.Option{
		export.WithNamespaces(e.cfg.Namespaces),
		export.WithSentenceColumn(e.cfg.SentenceColumn),
	}
}

// Delete removes a document and all its sentences and triples.
func (e *Engine) Delete(ctx context.Context, documentID int64) error {
	if _, err := e.Document(ctx, documentID); err != nil {
		return err
	}
	return e.store.DeleteDocument(ctx, documentID)
}

// DeletePath removes the document extracted from path, if any.
func (e *Engine) DeletePath(ctx context.Context, path string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	d, err := e.store.GetDocumentByPath(ctx, absPath)
	if errors.Is(err, sql.ErrNoRows) && absPath != path {
		// Documents stored under a key, such as uploads.
		d, err = e.store.GetDocumentByPath(ctx, path)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
	}
	if err != nil {
		return err
	}
	return e.store.DeleteDocument(ctx, d.ID)
}

// Stats returns aggregate counts from the store.
func (e *Engine) Stats(ctx context.Context) (*store.DBStats, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.DBStats(ctx)
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Store returns the underlying store for diagnostic access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Close flushes the publisher and closes all connections.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []error
	if err := e.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing publisher: %w", err))
	}
	if err := e.closeClients(); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) closeClients() error {
	if e.redis == nil {
		return nil
	}
	if err := e.redis.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStoreClosed
	}
	return nil
}

// lockPath serialises runs on the same document.
func (e *Engine) lockPath(path string) func() {
	e.mu.Lock()
	l, ok := e.locks[path]
	if !ok {
		l = &sync.Mutex{}
		e.locks[path] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func newExtractOptions(opts []ExtractOption) *extractOptions {
	o := &extractOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func toDocument(d store.Document) Document {
	doc := Document{
		ID:            d.ID,
		Path:          d.Path,
		Filename:      d.Filename,
		Format:        d.Format,
		ContentHash:   d.ContentHash,
		Source:        d.Source,
		Scheme:        d.Scheme,
		Status:        d.Status,
		RunID:         d.RunID,
		SentenceCount: d.SentenceCount,
		TripleCount:   d.TripleCount,
		FailureCount:  d.FailureCount,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Metadata != "" {
		_ = json.Unmarshal([]byte(d.Metadata), &doc.Metadata)
	}
	return doc
}

func toTriples(rows []store.Triple) []extract.Triple {
	out := make([]extract.Triple, len(rows))
	for i, r := range rows {
		out[i] = extract.Triple{
			Sentence:  r.Sentence,
			Subject:   r.Subject,
			Predicate: r.Predicate,
			Object:    r.Object,
		}
	}
	return out
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
