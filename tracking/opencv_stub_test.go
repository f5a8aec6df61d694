//go:build !gocv

package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_UsesNativeTracker(t *testing.T) {
	assert.IsType(t, &LucasKanade{}, New(DefaultOptions()))
}
