package ephemeris

import (
	"fmt"
	"math"
	"time"
)

// FindCrossing locates the single instant in [start, end] where fn increases
// through target. The window is sampled every cfg.ScanStep to bracket the
// crossing and the bracket is then bisected until it is no wider than maxErr.
//
// A window with no crossing returns ErrNotFound and a window with more than one
// returns ErrAmbiguousResult. The bisection is capped at
// ceil(log2(width/maxErr))+8 steps (and never more than cfg.MaxIterations);
// running out returns ErrConvergenceFailure.
func FindCrossing(fn LongitudeFunc, body Body, start, end time.Time, target float64, maxErr time.Duration, cfg SearchConfig) (result time.Time, err error) {
	began := time.Now()
	stats := SearchStats{Body: body}
	defer func() {
		if cfg.Observer != nil {
			stats.Elapsed = time.Since(began)
			stats.Err = err
			cfg.Observer(stats)
		}
	}()

	if maxErr <= 0 {
		return time.Time{}, fmt.Errorf("%w: max time error must be positive, got %v", ErrInvalidArgument, maxErr)
	}
	if !end.After(start) {
		return time.Time{}, fmt.Errorf("%w: search window end %v is not after start %v", ErrInvalidArgument, end, start)
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return time.Time{}, fmt.Errorf("%w: target %v", ErrInvalidArgument, target)
	}
	target = NormalizeAngle(target)

	step := cfg.ScanStep
	if step <= 0 {
		step = DefaultScanStep
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	offset := func(t time.Time) (float64, error) {
		v, err := fn(t)
		if err != nil {
			return 0, err
		}
		return wrap180(v - target), nil
	}

	// Coarse scan.
	var (
		brackets [][2]time.Time
		prevT    = start
	)
	prevG, err := offset(start)
	if err != nil {
		return time.Time{}, err
	}
	stats.Samples++

	for t := start.Add(step); ; t = t.Add(step) {
		if t.After(end) {
			t = end
		}
		g, err := offset(t)
		if err != nil {
			return time.Time{}, err
		}
		stats.Samples++

		if prevG < 0 && g >= 0 && g-prevG < 180 {
			brackets = append(brackets, [2]time.Time{prevT, t})
		}
		prevT, prevG = t, g

		if !t.Before(end) {
			break
		}
	}

	switch len(brackets) {
	case 0:
		return time.Time{}, fmt.Errorf("%w: %s does not reach %.6f between %s and %s",
			ErrNotFound, body, target, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	case 1:
	default:
		return time.Time{}, fmt.Errorf("%w: %s reaches %.6f %d times between %s and %s",
			ErrAmbiguousResult, body, target, len(brackets), start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}

	lo, hi := brackets[0][0], brackets[0][1]
	width := hi.Sub(lo)
	budget := maxIter
	if width > maxErr {
		if n := int(math.Ceil(math.Log2(float64(width)/float64(maxErr)))) + 8; n < budget {
			budget = n
		}
	}

	for hi.Sub(lo) > maxErr {
		if stats.Iterations >= budget {
			return time.Time{}, fmt.Errorf("%w: %s crossing of %.6f still bracketed by %v after %d iterations",
				ErrConvergenceFailure, body, target, hi.Sub(lo), stats.Iterations)
		}
		mid := lo.Add(hi.Sub(lo) / 2)
		g, err := offset(mid)
		if err != nil {
			return time.Time{}, err
		}
		stats.Iterations++
		if g < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}

	return lo.Add(hi.Sub(lo) / 2), nil
}
