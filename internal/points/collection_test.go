package points

import (
	"errors"
	"testing"

	"github.com/ironsheep/roi-editor-mcp/internal/regions"
)

func pt(label int, coords ...float64) Point {
	return Point{Coordinates: coords, Label: label, Area: 10 * label, Status: regions.StatusGood}
}

func mustCollection(t *testing.T, pts ...Point) *Collection {
	t.Helper()
	c, err := NewCollection("good ROI", 0, pts)
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	return c
}

func TestNewCollection_Ndim(t *testing.T) {
	tests := []struct {
		name string
		ndim int
		pts  []Point
		want int
	}{
		{"empty default", 0, nil, DefaultNdim},
		{"empty explicit", 3, nil, 3},
		{"from points", 0, []Point{pt(1, 1, 2, 3)}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCollection("x", tt.ndim, tt.pts)
			if err != nil {
				t.Fatalf("NewCollection failed: %v", err)
			}
			if c.Ndim() != tt.want {
				t.Errorf("Ndim() = %d, want %d", c.Ndim(), tt.want)
			}
		})
	}

	_, err := NewCollection("x", 0, []Point{pt(1, 1, 2), pt(2, 1, 2, 3)})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for ragged seed, got %v", err)
	}
}

func TestCollection_ObserverOrder(t *testing.T) {
	c := mustCollection(t)
	var calls []string
	c.Subscribe(func(*Collection, Event) { calls = append(calls, "first") })
	c.Subscribe(func(*Collection, Event) { calls = append(calls, "second") })

	if err := c.Append(pt(1, 0, 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("observers called as %v, want [first second]", calls)
	}
}

func TestCollection_EventsCarryPrevLen(t *testing.T) {
	c := mustCollection(t, pt(1, 0, 0), pt(2, 1, 1))
	var events []Event
	c.Subscribe(func(_ *Collection, ev Event) { events = append(events, ev) })

	if err := c.Move(0, []float64{5, 5}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if err := c.Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Append(pt(3, 2, 2)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	want := []Event{
		{Kind: EventMoved, Index: 0, PrevLen: 2},
		{Kind: EventRemoved, Index: 1, PrevLen: 2},
		{Kind: EventAdded, Index: 1, PrevLen: 1},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestCollection_Errors(t *testing.T) {
	c := mustCollection(t, pt(1, 0, 0))

	if err := c.Append(pt(2, 1, 2, 3)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Append with wrong dims: got %v", err)
	}
	if err := c.Move(0, []float64{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Move with wrong dims: got %v", err)
	}
	if err := c.Move(3, []float64{1, 1}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Move out of range: got %v", err)
	}
	if err := c.Delete(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Delete out of range: got %v", err)
	}
	if err := c.Duplicate(1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Duplicate out of range: got %v", err)
	}
	if _, err := c.At(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At out of range: got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("failed mutations changed the collection: len %d", c.Len())
	}
}

func TestCollection_PointsAreCopies(t *testing.T) {
	coords := []float64{1, 2}
	c := mustCollection(t)
	if err := c.Append(Point{Coordinates: coords, Label: 4}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	coords[0] = 100

	got := c.Points()
	if got[0].Coordinates[0] != 1 {
		t.Error("collection shares coordinate storage with caller")
	}
	got[0].Coordinates[1] = 100
	p, _ := c.At(0)
	if p.Coordinates[1] != 2 {
		t.Error("Points() exposes internal storage")
	}
}

func TestCollection_AddInheritsProperties(t *testing.T) {
	c := mustCollection(t, pt(3, 0, 0), pt(8, 1, 1))

	if err := c.Add([]float64{4, 4}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	p, _ := c.At(2)
	if p.Label != 8 || p.Area != 80 || p.Status != regions.StatusGood {
		t.Errorf("added point did not inherit last properties: %+v", p)
	}
}

func TestFromRecord(t *testing.T) {
	r := regions.RegionRecord{Label: 5, Centroid: []float64{1.5, 2.5}, Area: 12, Status: regions.StatusBad}
	p := FromRecord(r)
	if p.Label != 5 || p.Area != 12 || p.Status != regions.StatusBad {
		t.Errorf("unexpected point: %+v", p)
	}
	p.Coordinates[0] = 0
	if r.Centroid[0] != 1.5 {
		t.Error("FromRecord shares centroid storage")
	}
}

func TestEventKind_String(t *testing.T) {
	if EventAdded.String() != "added" || EventKind(42).String() != "unknown" {
		t.Error("unexpected EventKind names")
	}
}
