package store

import "errors"

// Sentinel errors returned by Store operations. Check with errors.Is.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyChunk indicates an attempt to persist a chunk whose text is
	// empty after trimming. The chunker filters these; the store enforces
	// the invariant as a last line of defense.
	ErrEmptyChunk = errors.New("empty chunk text")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the configured vector dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
