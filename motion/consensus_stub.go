//go:build !gocv

package motion

import "github.com/opd-ai/vidstab/geometry"

func consensus(from, to []geometry.Point, opts RansacOptions) (geometry.Affine, bool) {
	return consensusModel(from, to, opts)
}
