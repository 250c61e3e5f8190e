package exposure

import (
	"math"

	"github.com/rotisserie/eris"
)

// Normalization modes.
const (
	ModeMinMax = "minmax"
	ModeMax    = "max"
)

// Normalize fills BurnNorm from BurnMean. minmax maps the observed range to
// [0, 1]; max divides by the largest mean. Records without a mean keep a
// nil BurnNorm, and a zero denominator maps every mean to 0.
func Normalize(records []Record, mode string) error {
	if mode == "" {
		mode = ModeMinMax
	}
	if mode != ModeMinMax && mode != ModeMax {
		return eris.Errorf("exposure: unknown normalization mode %q", mode)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		if r.BurnMean == nil {
			continue
		}
		lo = math.Min(lo, *r.BurnMean)
		hi = math.Max(hi, *r.BurnMean)
	}
	if math.IsInf(lo, 1) {
		for i := range records {
			records[i].BurnNorm = nil
		}
		return nil
	}

	offset, denom := lo, hi-lo
	if mode == ModeMax {
		offset, denom = 0, hi
	}
	for i := range records {
		if records[i].BurnMean == nil {
			records[i].BurnNorm = nil
			continue
		}
		v := 0.0
		if denom != 0 {
			v = (*records[i].BurnMean - offset) / denom
		}
		records[i].BurnNorm = &v
	}
	return nil
}
