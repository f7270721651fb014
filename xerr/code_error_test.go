package xerr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *CodeError
	}{
		{"nil", nil, nil},
		{"direct", ErrInvalidImage, ErrInvalidImage},
		{"wrapped with pkg/errors", errors.Wrap(ErrModelNotLoaded, "predict"), ErrModelNotLoaded},
		{"wrapped with fmt", fmt.Errorf("upload: %w", ErrMissingFile), ErrMissingFile},
		{"foreign error", errors.New("boom"), ErrServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, From(tt.err))
		})
	}
}

func TestFileTooLarge(t *testing.T) {
	err := FileTooLarge(10 << 20)
	assert.Equal(t, http.StatusRequestEntityTooLarge, err.Code)
	assert.Contains(t, err.Message, "10 MB")
	assert.True(t, err.Client())
}

func TestIsMatchesPredefined(t *testing.T) {
	wrapped := errors.Wrap(New(http.StatusBadRequest, ErrInvalidImage.Message), "decode")
	assert.True(t, errors.Is(wrapped, ErrInvalidImage))
	assert.False(t, errors.Is(wrapped, ErrMissingFile))
	assert.False(t, ErrInferenceFailure.Client())
}
