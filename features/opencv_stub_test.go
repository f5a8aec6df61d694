//go:build !gocv

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NativeDetectors(t *testing.T) {
	want := map[Kind]Detector{
		GFTT:       gftt{},
		GFTTHarris: gftt{harris: true},
		FAST:       fast{},
		SURF:       surf{},
		SIFT:       sift{},
	}
	for k, d := range want {
		got, err := New(k)
		require.NoError(t, err)
		assert.Equal(t, d, got, k.String())
	}
}
