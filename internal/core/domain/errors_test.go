package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrNotImplemented", ErrNotImplemented},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrUnknownEmbeddingDimension", ErrUnknownEmbeddingDimension},
		{"ErrCapacityExceeded", ErrCapacityExceeded},
		{"ErrIndexCorrupt", ErrIndexCorrupt},
		{"ErrIndexClosed", ErrIndexClosed},
		{"ErrStoreCorrupt", ErrStoreCorrupt},
		{"ErrMigrationFailed", ErrMigrationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrors_Distinct(t *testing.T) {
	assert.False(t, errors.Is(ErrIndexCorrupt, ErrStoreCorrupt))
	assert.False(t, errors.Is(ErrCapacityExceeded, ErrInvalidInput))
}

func TestErrors_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("insert into local: %w", ErrCapacityExceeded)
	assert.True(t, errors.Is(wrapped, ErrCapacityExceeded))
	assert.Contains(t, wrapped.Error(), "capacity exceeded")
}
