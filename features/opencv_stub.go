//go:build !gocv

package features

func accelerated(Kind) (Detector, bool) { return nil, false }
