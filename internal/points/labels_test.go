package points

import (
	"testing"

	"github.com/ironsheep/roi-editor-mcp/internal/regions"
)

func withAssigner(t *testing.T, pts ...Point) *Collection {
	t.Helper()
	c := mustCollection(t, pts...)
	c.Subscribe(AssignNewLabel)
	return c
}

func TestAssignNewLabel_FirstPoint(t *testing.T) {
	c := withAssigner(t)

	if err := c.Add([]float64{10, 20}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	p, _ := c.At(0)
	if p.Label != 1 || p.Area != 0 || p.Status != regions.StatusUserAdded {
		t.Errorf("first point = %+v, want label 1, area 0, User_added", p)
	}
}

func TestAssignNewLabel_FirstPointIgnoresExplicitLabel(t *testing.T) {
	c := withAssigner(t)

	if err := c.Append(pt(42, 1, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	p, _ := c.At(0)
	if p.Label != 1 || p.Status != regions.StatusUserAdded {
		t.Errorf("lone point = %+v, want label 1 User_added", p)
	}
}

func TestAssignNewLabel_Duplicate(t *testing.T) {
	c := withAssigner(t, pt(3, 0, 0), pt(7, 1, 1), pt(12, 2, 2))

	if err := c.Duplicate(1); err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}
	p, _ := c.At(3)
	if p.Label != 13 || p.Area != 0 || p.Status != regions.StatusUserAdded {
		t.Errorf("duplicate = %+v, want label 13, area 0, User_added", p)
	}
	if p.Coordinates[0] != 1 || p.Coordinates[1] != 1 {
		t.Errorf("duplicate moved: %v", p.Coordinates)
	}

	// Earlier points are untouched
	want := []int{3, 7, 12, 13}
	for i, l := range c.Labels() {
		if l != want[i] {
			t.Errorf("labels = %v, want %v", c.Labels(), want)
			break
		}
	}
}

func TestAssignNewLabel_DrawnPointGetsLargerLabel(t *testing.T) {
	c := withAssigner(t, pt(20, 0, 0), pt(5, 1, 1))

	if err := c.Add([]float64{9, 9}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	p, _ := c.At(2)
	if p.Label != 21 {
		t.Errorf("drawn point label = %d, want 21", p.Label)
	}
	for _, l := range c.Labels()[:2] {
		if p.Label <= l {
			t.Errorf("new label %d not greater than existing %d", p.Label, l)
		}
	}
}

func TestAssignNewLabel_UniqueLabelUnchanged(t *testing.T) {
	c := withAssigner(t, pt(1, 0, 0), pt(2, 1, 1))

	if err := c.Append(pt(9, 2, 2)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	p, _ := c.At(2)
	if p.Label != 9 || p.Area != 90 || p.Status != regions.StatusGood {
		t.Errorf("unique point was modified: %+v", p)
	}
}

func TestAssignNewLabel_IgnoresNonGrowth(t *testing.T) {
	c := withAssigner(t, pt(4, 0, 0), pt(4, 1, 1))

	if err := c.Move(1, []float64{3, 3}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if err := c.Delete(0); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	p, _ := c.At(0)
	if p.Label != 4 || p.Status != regions.StatusGood {
		t.Errorf("non-growth mutation relabeled point: %+v", p)
	}
}

func TestAssignNewLabel_RepeatedDuplicates(t *testing.T) {
	c := withAssigner(t, pt(2, 0, 0))

	for i := 0; i < 3; i++ {
		if err := c.Duplicate(0); err != nil {
			t.Fatalf("Duplicate %d failed: %v", i, err)
		}
	}
	want := []int{2, 3, 4, 5}
	got := c.Labels()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("labels = %v, want %v", got, want)
		}
	}
}

func TestAssignNewLabel_RelabelNotifiesLaterObservers(t *testing.T) {
	c := withAssigner(t, pt(3, 0, 0))
	var kinds []EventKind
	var labelAtUpdate int
	c.Subscribe(func(c *Collection, ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventUpdated {
			p, _ := c.At(ev.Index)
			labelAtUpdate = p.Label
		}
	})

	if err := c.Duplicate(0); err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}

	// The assigner runs first, so its update reaches the later observer
	// before the original add does.
	want := []EventKind{EventUpdated, EventAdded}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	if labelAtUpdate != 4 {
		t.Errorf("label at update = %d, want 4", labelAtUpdate)
	}
}
