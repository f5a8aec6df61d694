package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFrameSize(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		err    error
	}{
		{name: "vga", width: 640, height: 480},
		{name: "minimum", width: MinFrameDimension, height: MinFrameDimension},
		{name: "too narrow", width: 16, height: 480, err: ErrFrameTooSmall},
		{name: "too short", width: 640, height: 8, err: ErrFrameTooSmall},
		{name: "too large", width: MaxFrameDimension + 1, height: 480, err: ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrameSize(tt.width, tt.height)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestValidateFrameCount(t *testing.T) {
	assert.NoError(t, ValidateFrameCount(2))
	assert.ErrorIs(t, ValidateFrameCount(1), ErrTooFewFrames)
	assert.ErrorIs(t, ValidateFrameCount(0), ErrTooFewFrames)
}

func TestValidateProblemSize(t *testing.T) {
	assert.NoError(t, ValidateProblemSize(1000, 2000))
	err := ValidateProblemSize(10000, 10000)
	assert.ErrorIs(t, err, ErrProblemTooLarge)
	assert.Contains(t, err.Error(), "10000x10000")
}
