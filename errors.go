package depfacts

import "errors"

var (
	// ErrUpstreamFailure is returned when the dependency source fails to
	// annotate a sentence. No triples are produced for that sentence.
	ErrUpstreamFailure = errors.New("depfacts: dependency source failed")

	// ErrUnsupportedFormat is returned for unrecognized input or output formats.
	ErrUnsupportedFormat = errors.New("depfacts: unsupported format")

	// ErrParsingFailed is returned when an input document cannot be read.
	ErrParsingFailed = errors.New("depfacts: parsing failed")

	// ErrDocumentNotFound is returned when a document ID or path does not exist.
	ErrDocumentNotFound = errors.New("depfacts: document not found")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("depfacts: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("depfacts: invalid configuration")

	// ErrSourceUnavailable is returned when the dependency source cannot be
	// constructed from the configuration.
	ErrSourceUnavailable = errors.New("depfacts: dependency source unavailable")
)
