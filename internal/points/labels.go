package points

import "github.com/ironsheep/roi-editor-mcp/internal/regions"

// AssignNewLabel is an Observer that gives a newly added point a unique label.
//
// It only acts when the collection grew by exactly one point, and only
// inspects the last point:
//   - a lone point gets label 1
//   - a point whose label repeats an earlier one gets max(earlier)+1
//
// In both cases area is reset to 0 and status becomes User_added. A point
// whose label is already unique is left alone.
func AssignNewLabel(c *Collection, ev Event) {
	// A one-point growth guarantees n-1 is a valid index below.
	if ev.Kind != EventAdded || c.Len() != ev.PrevLen+1 {
		return
	}

	n := c.Len()
	if n == 1 {
		// Label 1 is used even if a previous session had higher labels.
		c.setProperties(0, 1, 0, regions.StatusUserAdded)
		return
	}

	labels := c.Labels()
	last := labels[n-1]
	maxPrev := labels[0]
	seen := false
	for _, l := range labels[:n-1] {
		if l == last {
			seen = true
		}
		if l > maxPrev {
			maxPrev = l
		}
	}
	if !seen {
		return
	}
	c.setProperties(n-1, maxPrev+1, 0, regions.StatusUserAdded)
}
