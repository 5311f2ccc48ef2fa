//go:build !cgo

package methodindex

import (
	"context"
	stderrors "errors"
	"testing"
)

func TestStubUnavailable(t *testing.T) {
	if IsAvailable() {
		t.Fatal("stub reports available")
	}
	_, err := NewIndexer().IndexDir(context.Background(), t.TempDir())
	if !stderrors.Is(err, ErrUnavailable) {
		t.Errorf("IndexDir = %v, want ErrUnavailable", err)
	}
}
