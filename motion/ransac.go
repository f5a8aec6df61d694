package motion

import (
	"math/rand/v2"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/video"
)

// RansacOptions tunes outlier rejection.
type RansacOptions struct {
	// Iterations is the number of minimal samples drawn.
	Iterations int `yaml:"iterations"`
	// Threshold is the reprojection distance in pixels above which a
	// displacement is an outlier.
	Threshold float64 `yaml:"threshold"`
	// Seed makes sampling reproducible.
	Seed uint64 `yaml:"seed"`
}

// DefaultRansacOptions returns the rejection defaults.
func DefaultRansacOptions() RansacOptions {
	return RansacOptions{
		Iterations: 500,
		Threshold:  2.0,
		Seed:       0x5eed,
	}
}

// RejectOutliers classifies each displacement against the dominant affine
// motion. Builds with the gocv tag find that motion with OpenCV's RANSAC
// estimator; Seed then has no effect. The returned mask has one entry per displacement, true marking an
// outlier. Fewer than three displacements are all kept as inliers.
func RejectOutliers(ds []video.Displacement, opts RansacOptions) []bool {
	mask := make([]bool, len(ds))
	if len(ds) < 3 {
		return mask
	}
	from := make([]geometry.Point, len(ds))
	to := make([]geometry.Point, len(ds))
	for i, d := range ds {
		from[i], to[i] = d.Destination, d.Source
	}

	model, ok := consensus(from, to, opts)
	if !ok {
		return mask
	}
	for i := range ds {
		mask[i] = residual(model, from[i], to[i]) > opts.Threshold
	}
	return mask
}

// consensusModel draws minimal samples, keeps the model with the largest
// consensus set and refits it on that set.
func consensusModel(from, to []geometry.Point, opts RansacOptions) (geometry.Affine, bool) {
	rng := rand.New(rand.NewPCG(opts.Seed, uint64(len(from))))
	n := len(from)

	var best geometry.Affine
	bestCount, bestErr := -1, 0.0
	sf := make([]geometry.Point, 3)
	st := make([]geometry.Point, 3)
	for it := 0; it < opts.Iterations; it++ {
		i, j, k := sampleThree(rng, n)
		sf[0], sf[1], sf[2] = from[i], from[j], from[k]
		st[0], st[1], st[2] = to[i], to[j], to[k]
		model, err := FitAffine(sf, st)
		if err != nil {
			continue
		}
		count, total := score(model, from, to, opts.Threshold)
		if count > bestCount || (count == bestCount && total < bestErr) {
			best, bestCount, bestErr = model, count, total
		}
		if count == n {
			break
		}
	}
	if bestCount < 3 {
		return geometry.Affine{}, false
	}

	var cf, ct []geometry.Point
	for i := range from {
		if residual(best, from[i], to[i]) <= opts.Threshold {
			cf = append(cf, from[i])
			ct = append(ct, to[i])
		}
	}
	if refit, err := FitAffine(cf, ct); err == nil {
		return refit, true
	}
	return best, true
}

func score(model geometry.Affine, from, to []geometry.Point, threshold float64) (int, float64) {
	var count int
	var total float64
	for i := range from {
		if r := residual(model, from[i], to[i]); r <= threshold {
			count++
			total += r
		}
	}
	return count, total
}

func sampleThree(rng *rand.Rand, n int) (int, int, int) {
	i := rng.IntN(n)
	j := rng.IntN(n - 1)
	if j >= i {
		j++
	}
	k := rng.IntN(n - 2)
	lo, hi := min(i, j), max(i, j)
	if k >= lo {
		k++
	}
	if k >= hi {
		k++
	}
	return i, j, k
}
