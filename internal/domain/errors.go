package domain

import "errors"

var (
	// ErrMalformedQuery signals an empty or unusable problem text after normalization.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrRetrievalUnavailable signals that every primary-query field search failed.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)
