//go:build !cgo

package methodindex

import "context"

// IsAvailable reports whether the parser is compiled in.
func IsAvailable() bool { return false }

// Indexer is unavailable without cgo; every method returns ErrUnavailable.
type Indexer struct {
	Workers int
}

// NewIndexer creates an Indexer.
func NewIndexer() *Indexer {
	return &Indexer{}
}

// IndexSource returns ErrUnavailable.
func (ix *Indexer) IndexSource(ctx context.Context, path string, source []byte) ([]Method, error) {
	return nil, ErrUnavailable
}

// IndexFile returns ErrUnavailable.
func (ix *Indexer) IndexFile(ctx context.Context, path string) ([]Method, error) {
	return nil, ErrUnavailable
}

// IndexDir returns ErrUnavailable.
func (ix *Indexer) IndexDir(ctx context.Context, root string) ([]Method, error) {
	return nil, ErrUnavailable
}
