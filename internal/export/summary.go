package export

import (
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// Summary describes the distribution of overlap areas in a result.
type Summary struct {
	Count      int     `json:"count"`
	TotalArea  float64 `json:"total_area_m2"`
	MeanArea   float64 `json:"mean_area_m2"`
	MedianArea float64 `json:"median_area_m2"`
	P90Area    float64 `json:"p90_area_m2"`
	MaxArea    float64 `json:"max_area_m2"`
}

// Summarize computes area statistics. An empty result yields the zero Summary.
func Summarize(res *domain.ScanResult) Summary {
	if res == nil || len(res.Pairs) == 0 {
		return Summary{}
	}

	areas := make([]float64, len(res.Pairs))
	for i, p := range res.Pairs {
		areas[i] = p.AreaSquareMeters
	}
	slices.Sort(areas)

	return Summary{
		Count:      len(areas),
		TotalArea:  floats.Sum(areas),
		MeanArea:   stat.Mean(areas, nil),
		MedianArea: stat.Quantile(0.5, stat.Empirical, areas, nil),
		P90Area:    stat.Quantile(0.9, stat.Empirical, areas, nil),
		MaxArea:    floats.Max(areas),
	}
}
