//go:build !gocv

package tracking

func accelerated(Options) (Tracker, bool) { return nil, false }
