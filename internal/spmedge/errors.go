package spmedge

import "errors"

var (
	// ErrNotFound signals a missing entity in the state store.
	ErrNotFound = errors.New("not found")

	// ErrUnknownType signals a document type that is not registered.
	ErrUnknownType = errors.New("unknown document type")

	// ErrDuplicateOriginal signals a unique-constraint hit on original name.
	ErrDuplicateOriginal = errors.New("duplicate original filename")

	// ErrNoContent signals a document with no locatable stage content.
	ErrNoContent = errors.New("no content found")

	// ErrDimensionMismatch signals a vector whose length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
