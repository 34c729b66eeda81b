package regions

import (
	"fmt"
	"sort"
)

// Status tags a region or point with its curation state.
type Status string

const (
	StatusGood      Status = "good"
	StatusBad       Status = "bad"
	StatusUserAdded Status = "User_added"
)

// ParseStatus validates s as one of the three known status tags.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusGood, StatusBad, StatusUserAdded:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// RegionRecord holds the statistics for one labeled region.
type RegionRecord struct {
	// Label is the region's mask value. Always positive.
	Label int `json:"label"`

	// Centroid is the mean pixel index per mask dimension.
	Centroid []float64 `json:"centroid"`

	// Area is the number of pixels (or voxels) carrying Label.
	Area int `json:"area"`

	// Status is empty until the record has been classified.
	Status Status `json:"status,omitempty"`
}

type accumulator struct {
	sums  []float64
	count int
}

// ComputeRegionStats returns one record per distinct positive label in the
// mask, ordered by ascending label. A mask with no positive labels yields an
// empty slice.
func ComputeRegionStats(mask *Mask) []RegionRecord {
	if mask == nil {
		return []RegionRecord{}
	}

	acc := make(map[int]*accumulator)
	idx := make([]int, mask.Ndim())
	for off, label := range mask.data {
		if label <= 0 {
			continue
		}
		a, ok := acc[label]
		if !ok {
			a = &accumulator{sums: make([]float64, mask.Ndim())}
			acc[label] = a
		}
		mask.unravel(off, idx)
		for d, v := range idx {
			a.sums[d] += float64(v)
		}
		a.count++
	}

	labels := make([]int, 0, len(acc))
	for label := range acc {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	records := make([]RegionRecord, 0, len(labels))
	for _, label := range labels {
		a := acc[label]
		centroid := make([]float64, len(a.sums))
		for d, s := range a.sums {
			centroid[d] = s / float64(a.count)
		}
		records = append(records, RegionRecord{
			Label:    label,
			Centroid: centroid,
			Area:     a.count,
		})
	}
	return records
}
