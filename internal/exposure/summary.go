package exposure

import "math"

// HistogramBins is the number of equal-width burn_norm bins in a Summary.
const HistogramBins = 10

// Summary aggregates a run's records.
type Summary struct {
	Total        int      `yaml:"total" json:"total"`
	WithData     int      `yaml:"with_data" json:"with_data"`
	Exposed      int      `yaml:"exposed" json:"exposed"`
	ExposedShare float64  `yaml:"exposed_share" json:"exposed_share"`
	MeanBurnMin  *float64 `yaml:"burn_mean_min,omitempty" json:"burn_mean_min,omitempty"`
	MeanBurnMax  *float64 `yaml:"burn_mean_max,omitempty" json:"burn_mean_max,omitempty"`
	MeanBurnAvg  *float64 `yaml:"burn_mean_avg,omitempty" json:"burn_mean_avg,omitempty"`
	// Histogram counts burn_norm values per decile; 1.0 falls in the last bin.
	Histogram [HistogramBins]int `yaml:"histogram" json:"histogram"`
}

// Summarize computes totals, exposed share, burn_mean range and the
// burn_norm histogram.
func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, r := range records {
		if r.Exposed() {
			s.Exposed++
		}
		if r.BurnMean != nil {
			s.WithData++
			lo = math.Min(lo, *r.BurnMean)
			hi = math.Max(hi, *r.BurnMean)
			sum += *r.BurnMean
		}
		if r.BurnNorm != nil {
			bin := int(*r.BurnNorm * HistogramBins)
			s.Histogram[max(0, min(bin, HistogramBins-1))]++
		}
	}
	if s.Total > 0 {
		s.ExposedShare = float64(s.Exposed) / float64(s.Total)
	}
	if s.WithData > 0 {
		avg := sum / float64(s.WithData)
		s.MeanBurnMin, s.MeanBurnMax, s.MeanBurnAvg = &lo, &hi, &avg
	}
	return s
}
