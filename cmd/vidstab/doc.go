// Package main provides the vidstab command, which stabilizes a video file
// or a directory of frame images.
//
// The input is decoded in full, motion is estimated between consecutive
// frames, a smooth crop path is solved and the cropped frames are written
// to an image directory or, when built with the gocv tag, a video file
// using the input codec and frame rate. Ctrl-C stops the run before the
// next stage starts.
//
// Usage:
//
//	vidstab -in shaky.mp4 -out stable.mp4 -crop 0.8
//	vidstab -in frames/ -fps 30 -out stable/ -detector fast -tui
//	vidstab -in frames/ -out stable/ -salient-locations face.csv -salient anchored
//	vidstab -write-config > vidstab.yaml
package main
