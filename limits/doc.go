// Package limits provides centralized size constants and validation functions
// for the stabilization pipeline. This package ensures consistent enforcement
// across the frame store, the motion estimator and the path optimizer.
//
// # Limit Hierarchy
//
//   - MinFrameDimension (32 px): below this the SURF box filters and the
//     tracker's pyramid have nothing to work with.
//
//   - MaxFrameDimension (16384 px): the largest frame side accepted from a
//     decoder.
//
//   - MinFrames (2): a single residual motion needs two frames.
//
//   - MaxLPEntries (60M): the path optimizer solves one global linear program
//     with a dense simplex, so memory grows with rows × columns. Longer videos
//     should use the translation model or be clipped.
//
// # Validation Functions
//
//	if err := limits.ValidateFrameSize(w, h); err != nil {
//	    // ErrFrameTooSmall or ErrFrameTooLarge
//	}
//
//	if err := limits.ValidateProblemSize(rows, cols); err != nil {
//	    // ErrProblemTooLarge
//	}
package limits
