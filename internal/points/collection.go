// Package points holds editable point collections and the observers that
// react to their mutations.
package points

import (
	"errors"
	"fmt"

	"github.com/ironsheep/roi-editor-mcp/internal/regions"
)

var (
	// ErrIndexOutOfRange is returned when a point index does not exist.
	ErrIndexOutOfRange = errors.New("point index out of range")

	// ErrDimensionMismatch is returned when coordinates do not match the
	// collection's dimensionality.
	ErrDimensionMismatch = errors.New("coordinate dimensions do not match collection")
)

// DefaultNdim is the dimensionality of a collection created without data.
const DefaultNdim = 2

// Point is one annotated location with its region properties.
type Point struct {
	Coordinates []float64      `json:"coordinates"`
	Label       int            `json:"label"`
	Area        int            `json:"area"`
	Status      regions.Status `json:"status"`
}

func (p Point) clone() Point {
	p.Coordinates = append([]float64(nil), p.Coordinates...)
	return p
}

// FromRecord converts a classified region record into a point at its centroid.
func FromRecord(r regions.RegionRecord) Point {
	return Point{
		Coordinates: append([]float64(nil), r.Centroid...),
		Label:       r.Label,
		Area:        r.Area,
		Status:      r.Status,
	}
}

// EventKind names the mutation that triggered a notification.
type EventKind int

const (
	EventAdded EventKind = iota
	EventMoved
	EventRemoved
	EventUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventMoved:
		return "moved"
	case EventRemoved:
		return "removed"
	case EventUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Event describes a single mutation. PrevLen is the collection size before
// the mutation and Index the affected position.
type Event struct {
	Kind    EventKind
	Index   int
	PrevLen int
}

// Observer is notified synchronously after every mutation, in registration order.
type Observer func(c *Collection, ev Event)

// Collection is an ordered, named sequence of points of fixed dimensionality.
//
// Collection is not safe for concurrent use; all mutations are expected to
// happen on the caller's dispatch goroutine.
type Collection struct {
	name      string
	ndim      int
	points    []Point
	observers []Observer
}

// NewCollection creates a collection seeded with pts. When pts is empty the
// collection takes ndim dimensions, or DefaultNdim if ndim is not positive.
// Observers are not notified for the seed points.
func NewCollection(name string, ndim int, pts []Point) (*Collection, error) {
	if len(pts) > 0 {
		ndim = len(pts[0].Coordinates)
	}
	if ndim <= 0 {
		ndim = DefaultNdim
	}
	c := &Collection{
		name:   name,
		ndim:   ndim,
		points: make([]Point, 0, len(pts)),
	}
	for i, p := range pts {
		if len(p.Coordinates) != ndim {
			return nil, fmt.Errorf("seed point %d: %w", i, ErrDimensionMismatch)
		}
		c.points = append(c.points, p.clone())
	}
	return c, nil
}

// Name returns the collection's layer name.
func (c *Collection) Name() string { return c.name }

// Ndim returns the number of coordinates per point.
func (c *Collection) Ndim() int { return c.ndim }

// Len returns the number of points.
func (c *Collection) Len() int { return len(c.points) }

// Subscribe appends an observer to the notification list.
func (c *Collection) Subscribe(o Observer) {
	c.observers = append(c.observers, o)
}

// At returns a copy of the point at index i.
func (c *Collection) At(i int) (Point, error) {
	if i < 0 || i >= len(c.points) {
		return Point{}, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(c.points))
	}
	return c.points[i].clone(), nil
}

// Points returns a copy of all points in order.
func (c *Collection) Points() []Point {
	out := make([]Point, len(c.points))
	for i, p := range c.points {
		out[i] = p.clone()
	}
	return out
}

// Labels returns the label of every point in order.
func (c *Collection) Labels() []int {
	out := make([]int, len(c.points))
	for i, p := range c.points {
		out[i] = p.Label
	}
	return out
}

// Append adds p to the end of the collection.
func (c *Collection) Append(p Point) error {
	if len(p.Coordinates) != c.ndim {
		return fmt.Errorf("append %v: %w", p.Coordinates, ErrDimensionMismatch)
	}
	prev := len(c.points)
	c.points = append(c.points, p.clone())
	c.notify(Event{Kind: EventAdded, Index: prev, PrevLen: prev})
	return nil
}

// Add appends a user-drawn point at coords. Like a viewer points layer, the
// new point inherits the current properties, which are those of the last
// point (zero values on an empty collection).
func (c *Collection) Add(coords []float64) error {
	p := Point{Coordinates: coords}
	if n := len(c.points); n > 0 {
		last := c.points[n-1]
		p.Label, p.Area, p.Status = last.Label, last.Area, last.Status
	}
	return c.Append(p)
}

// Duplicate appends a copy of the point at index i, properties included.
func (c *Collection) Duplicate(i int) error {
	p, err := c.At(i)
	if err != nil {
		return err
	}
	return c.Append(p)
}

// Move replaces the coordinates of the point at index i.
func (c *Collection) Move(i int, coords []float64) error {
	if i < 0 || i >= len(c.points) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(c.points))
	}
	if len(coords) != c.ndim {
		return fmt.Errorf("move %v: %w", coords, ErrDimensionMismatch)
	}
	c.points[i].Coordinates = append([]float64(nil), coords...)
	c.notify(Event{Kind: EventMoved, Index: i, PrevLen: len(c.points)})
	return nil
}

// Delete removes the point at index i.
func (c *Collection) Delete(i int) error {
	if i < 0 || i >= len(c.points) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(c.points))
	}
	prev := len(c.points)
	c.points = append(c.points[:i], c.points[i+1:]...)
	c.notify(Event{Kind: EventRemoved, Index: i, PrevLen: prev})
	return nil
}

// SetProperties overwrites the label, area and status of the point at index i.
func (c *Collection) SetProperties(i int, label, area int, status regions.Status) error {
	if i < 0 || i >= len(c.points) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(c.points))
	}
	c.setProperties(i, label, area, status)
	return nil
}

// setProperties is SetProperties for an index the caller has already checked.
func (c *Collection) setProperties(i int, label, area int, status regions.Status) {
	c.points[i].Label = label
	c.points[i].Area = area
	c.points[i].Status = status
	c.notify(Event{Kind: EventUpdated, Index: i, PrevLen: len(c.points)})
}

func (c *Collection) notify(ev Event) {
	for _, o := range c.observers {
		o(c, ev)
	}
}
