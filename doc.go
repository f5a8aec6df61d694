// Package vidstab stabilizes shaky video by fitting a smooth camera path
// with L1-optimal linear programming and re-rendering each frame through a
// fixed-size crop window that follows it.
//
// The pipeline runs seven stages in order: load, detect, track, reject,
// fit, optimize and render. The motion stages estimate one affine transform
// per frame mapping it onto its predecessor; the optimize stage solves a
// single linear program for an update transform per frame that keeps the
// crop window inside the frame while minimizing the first, second and third
// derivatives of the resulting path; the render stage cuts the window out
// of every frame along its update pose.
//
// # Getting Started
//
//	opts := vidstab.NewOptions()
//	opts.Path.Model = pathopt.Similarity
//	opts.CropBox.Ratio = 0.8
//
//	s, err := vidstab.NewStabilizer(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	src, err := videoio.OpenSequence("frames/", 30)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	sink, err := videoio.CreateSequence("out/", "stab_")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sink.Close()
//
//	report, err := s.Run(ctx, src, sink)
//	if err != nil {
//	    log.Fatalf("%v (code %s)", err, vidstab.CodeOf(err))
//	}
//	log.Printf("run %s: %d degenerate frames", report.RunID, len(report.Degenerate))
//
// The stages can also be driven one at a time with [Stabilizer.Load],
// [Stabilizer.EstimateMotion], [Stabilizer.OptimizePath] and
// [Stabilizer.Render]; each checks the context before it starts so a
// cancellation stops the run between stages with the completed results
// intact.
//
// # Core Types
//
//   - [Stabilizer]: owns one loaded video and runs the stages on it
//   - [Options]: motion, path, render and crop box configuration
//   - [Observer]: receives stage transitions and progress fractions
//   - [Error]: failure carrying a [Code], the failing [Stage] and the
//     affected frame range
//   - [Report]: run summary with per-stage durations and degenerate frames
//   - [TimeProvider]: injectable clock for stage timing in tests
//
// # Packages
//
// The stages live in their own packages: features (GFTT, FAST, SURF and
// SIFT detectors), tracking (pyramidal Lucas-Kanade), motion (RANSAC
// outlier rejection and transform fitting), pathopt (the L1 model), render
// (crop-window rendering and overlays) and curves (YAML export of motion
// matrices and paths). videoio reads image sequences and, with the gocv
// build tag, video containers; the same tag moves detection, tracking and
// RANSAC onto OpenCV. config loads [Options] from YAML and preview serves
// progress and rendered frames over HTTP and websockets.
package vidstab
