package regions

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultSigma is the half-width of the accepted area band in standard deviations.
const DefaultSigma = 2.0

// ClassifiedRegionSet partitions records into good and bad by area.
type ClassifiedRegionSet struct {
	Good []RegionRecord `json:"good"`
	Bad  []RegionRecord `json:"bad"`

	// Mean and StdDev describe the area distribution. StdDev is NaN when
	// fewer than two records were classified.
	Mean   float64 `json:"-"`
	StdDev float64 `json:"-"`

	// Lower and Upper bound the accepted band. Both are infinite when the
	// band could not be computed.
	Lower float64 `json:"-"`
	Upper float64 `json:"-"`
}

// HasBand reports whether a finite acceptance band was computed.
func (s ClassifiedRegionSet) HasBand() bool {
	return !math.IsNaN(s.StdDev)
}

// Classify applies the mean ± 2σ area rule to records.
func Classify(records []RegionRecord) ClassifiedRegionSet {
	return ClassifyWithin(records, DefaultSigma)
}

// ClassifyWithin marks a record bad when its area lies strictly outside
// mean ± k·σ. Input order is kept within each partition and the input slice
// is not modified.
func ClassifyWithin(records []RegionRecord, k float64) ClassifiedRegionSet {
	set := ClassifiedRegionSet{
		Good:   make([]RegionRecord, 0, len(records)),
		Bad:    []RegionRecord{},
		StdDev: math.NaN(),
		Lower:  math.Inf(-1),
		Upper:  math.Inf(1),
	}
	if len(records) == 0 {
		return set
	}

	areas := make([]float64, len(records))
	for i, r := range records {
		areas[i] = float64(r.Area)
	}
	set.Mean = stat.Mean(areas, nil)

	if len(records) >= 2 {
		set.StdDev = stat.StdDev(areas, nil)
		set.Lower = set.Mean - k*set.StdDev
		set.Upper = set.Mean + k*set.StdDev
	}

	for i, r := range records {
		r.Centroid = append([]float64(nil), r.Centroid...)
		if areas[i] < set.Lower || areas[i] > set.Upper {
			r.Status = StatusBad
			set.Bad = append(set.Bad, r)
			continue
		}
		r.Status = StatusGood
		set.Good = append(set.Good, r)
	}
	return set
}
