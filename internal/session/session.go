// Package session holds the state of one ROI curation session: the loaded
// image, its classified regions, the good and bad point layers, and the
// observers wired to them.
package session

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/ironsheep/roi-editor-mcp/internal/export"
	"github.com/ironsheep/roi-editor-mcp/internal/imaging"
	"github.com/ironsheep/roi-editor-mcp/internal/logger"
	"github.com/ironsheep/roi-editor-mcp/internal/points"
	"github.com/ironsheep/roi-editor-mcp/internal/regions"
	"github.com/ironsheep/roi-editor-mcp/internal/segio"
)

// Layer names.
const (
	GoodLayer = "good ROI"
	BadLayer  = "bad ROI"
)

// Layer face colors used by the preview.
const (
	GoodColor = "white"
	BadColor  = "red"
)

// MetaImagePath is the metadata key holding the originating image path.
const MetaImagePath = "image_path"

// OutputSuffix names the good-ROI export next to the image.
const OutputSuffix = "_good_rois.csv"

// OutputMode is the permission of the written export.
const OutputMode os.FileMode = 0o644

// Options configures a Session. Zero values select defaults.
type Options struct {
	Logger       *slog.Logger
	Cache        *imaging.ImageCache
	OutlierSigma float64
	MarkerSize   int
}

// Session is the explicit context passed to every curation operation.
// It is not safe for concurrent use.
type Session struct {
	log        *slog.Logger
	cache      *imaging.ImageCache
	sigma      float64
	markerSize int

	stack          *imaging.ChannelStack
	metadata       map[string]string
	records        []regions.RegionRecord
	classification regions.ClassifiedRegionSet
	good           *points.Collection
	bad            *points.Collection
	goodCount      int
}

// New creates an empty session.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Cache == nil {
		opts.Cache = imaging.NewImageCache()
	}
	if opts.OutlierSigma <= 0 {
		opts.OutlierSigma = regions.DefaultSigma
	}
	if opts.MarkerSize <= 0 {
		opts.MarkerSize = imaging.DefaultMarkerSize
	}
	return &Session{
		log:        opts.Logger,
		cache:      opts.Cache,
		sigma:      opts.OutlierSigma,
		markerSize: opts.MarkerSize,
		metadata:   make(map[string]string),
	}
}

// LoadResult summarizes a Load call.
type LoadResult struct {
	ImagePath         string   `json:"image_path"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	Depth             int      `json:"depth"`
	Channels          []string `json:"channels"`
	SegmentationPath  string   `json:"segmentation_path,omitempty"`
	SegmentationFound bool     `json:"segmentation_found"`
	Regions           int      `json:"regions"`
	Good              int      `json:"good"`
	Bad               int      `json:"bad"`
}

// Load clears the session and loads the image at imagePath together with its
// segmentation, if one exists. Regions are classified into the good and bad
// layers. A missing segmentation leaves both layers empty; an undecodable
// image or segmentation is returned as an error.
func (s *Session) Load(imagePath string) (*LoadResult, error) {
	s.clear()

	// Reload from disk in case the file changed since it was cached
	s.cache.Evict(imagePath)
	stack, err := imaging.LoadChannels(s.cache, imagePath)
	if err != nil {
		return nil, err
	}
	s.stack = stack
	s.metadata[MetaImagePath] = imagePath

	ndim := points.DefaultNdim
	segPath, found := segio.SegmentationPath(imagePath)
	if found {
		mask, err := segio.LoadMask(segPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load segmentation %s: %w", segPath, err)
		}
		ndim = mask.Ndim()
		if shape := mask.Shape(); len(shape) >= 2 && (shape[len(shape)-2] != stack.Height || shape[len(shape)-1] != stack.Width) {
			s.log.Warn("segmentation does not match image dimensions",
				"segmentation", segPath,
				"shape", shape,
				"width", stack.Width,
				"height", stack.Height,
			)
		}
		s.records = regions.ComputeRegionStats(mask)
		s.classification = regions.ClassifyWithin(s.records, s.sigma)
	} else {
		s.log.Info("no segmentation found, starting with empty layers", "image", imagePath, "looked_for", segPath)
		s.classification = regions.ClassifyWithin(nil, s.sigma)
	}

	s.bad, err = newLayer(BadLayer, ndim, s.classification.Bad)
	if err != nil {
		return nil, err
	}
	s.good, err = newLayer(GoodLayer, ndim, s.classification.Good)
	if err != nil {
		return nil, err
	}

	s.good.Subscribe(points.AssignNewLabel)
	s.good.Subscribe(s.refreshCount)
	s.refreshCount(s.good, points.Event{Kind: points.EventUpdated})

	res := &LoadResult{
		ImagePath:         imagePath,
		Width:             stack.Width,
		Height:            stack.Height,
		Depth:             stack.Depth,
		SegmentationFound: found,
		Regions:           len(s.records),
		Good:              s.good.Len(),
		Bad:               s.bad.Len(),
	}
	if found {
		res.SegmentationPath = segPath
	}
	for _, ch := range stack.Channels {
		res.Channels = append(res.Channels, ch.Name)
	}

	s.log.Info("image loaded",
		"image", imagePath,
		"regions", res.Regions,
		"good", res.Good,
		"bad", res.Bad,
	)
	return res, nil
}

func newLayer(name string, ndim int, records []regions.RegionRecord) (*points.Collection, error) {
	pts := make([]points.Point, len(records))
	for i, r := range records {
		pts[i] = points.FromRecord(r)
	}
	c, err := points.NewCollection(name, ndim, pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s layer: %w", name, err)
	}
	return c, nil
}

func (s *Session) clear() {
	s.stack = nil
	s.metadata = make(map[string]string)
	s.records = nil
	s.classification = regions.ClassifiedRegionSet{}
	s.good = nil
	s.bad = nil
	s.goodCount = 0
}

// refreshCount is the count-display observer on the good layer.
func (s *Session) refreshCount(c *points.Collection, ev points.Event) {
	s.goodCount = c.Len()
	s.log.Debug("good point count", "count", s.goodCount, "event", ev.Kind.String())
}

// Good returns the good ROI layer, or nil before an image is loaded.
func (s *Session) Good() *points.Collection { return s.good }

// Bad returns the bad ROI layer, or nil before an image is loaded.
func (s *Session) Bad() *points.Collection { return s.bad }

// Layer returns the named point layer.
func (s *Session) Layer(name string) (*points.Collection, bool) {
	switch {
	case name == GoodLayer && s.good != nil:
		return s.good, true
	case name == BadLayer && s.bad != nil:
		return s.bad, true
	default:
		return nil, false
	}
}

// Layers returns the names of the layers currently present.
func (s *Session) Layers() []string {
	var names []string
	if s.stack != nil {
		for _, ch := range s.stack.Channels {
			names = append(names, ch.Name)
		}
	}
	if s.bad != nil {
		names = append(names, BadLayer)
	}
	if s.good != nil {
		names = append(names, GoodLayer)
	}
	return names
}

// GoodCount returns the displayed number of good points.
func (s *Session) GoodCount() int { return s.goodCount }

// Metadata returns a session metadata value.
func (s *Session) Metadata(key string) (string, bool) {
	v, ok := s.metadata[key]
	return v, ok
}

// Records returns the unclassified region statistics of the loaded mask.
func (s *Session) Records() []regions.RegionRecord { return s.records }

// Classification returns the good/bad partition computed at load time.
func (s *Session) Classification() regions.ClassifiedRegionSet { return s.classification }

// SaveResult reports the outcome of SaveGood.
type SaveResult struct {
	Saved   bool   `json:"saved"`
	Path    string `json:"path,omitempty"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// SaveGood writes the good layer to <stem>_good_rois.csv beside the image.
//
// When there is no good layer or no recorded image path, the export is
// skipped: a diagnostic is logged and returned in the result, and the error
// is nil. Only write failures are returned as errors.
func (s *Session) SaveGood() (*SaveResult, error) {
	if s.good == nil {
		msg := fmt.Sprintf("No '%s' layer found.", GoodLayer)
		s.log.Warn(msg)
		return &SaveResult{Message: msg}, nil
	}
	imagePath, ok := s.metadata[MetaImagePath]
	if !ok || imagePath == "" || s.stack == nil {
		msg := "No image layer found or image path is missing from metadata."
		s.log.Warn(msg)
		return &SaveResult{Message: msg}, nil
	}

	savePath := segio.Companion(imagePath, OutputSuffix)
	tmp, err := os.CreateTemp(filepath.Dir(savePath), ".good-rois-*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp opens the file 0600
	if err := tmp.Chmod(OutputMode); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := export.WriteCSV(tmp, s.good); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), savePath); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", savePath, err)
	}

	count := s.good.Len()
	msg := fmt.Sprintf("Saved %d good ROIs to %s", count, savePath)
	s.log.Info(msg)
	return &SaveResult{Saved: true, Path: savePath, Count: count, Message: msg}, nil
}

// PreviewOptions selects what the preview shows.
type PreviewOptions struct {
	Scale      float64
	ShowLabels bool
	Contrast   float64

	// Focus, when non-negative, crops the preview to a window of FocusRadius
	// pixels around that good point.
	Focus       int
	FocusRadius int

	// Plane is the Z slice to show. A negative Plane follows the focused
	// point, or shows the first slice without one.
	Plane int
}

// Preview renders the channel composite with the bad layer under the good one.
func (s *Session) Preview(opts PreviewOptions) (*imaging.PreviewResult, error) {
	if s.stack == nil {
		return nil, fmt.Errorf("no image loaded")
	}

	render := imaging.PreviewOptions{
		Scale:      opts.Scale,
		MarkerSize: s.markerSize,
		ShowLabels: opts.ShowLabels,
		Contrast:   opts.Contrast,
	}
	if opts.Focus >= 0 {
		if s.good == nil {
			return nil, fmt.Errorf("no '%s' layer to focus on", GoodLayer)
		}
		p, err := s.good.At(opts.Focus)
		if err != nil {
			return nil, err
		}
		radius := opts.FocusRadius
		if radius <= 0 {
			radius = 4 * s.markerSize
		}
		row, col := planar(p.Coordinates)
		region := imaging.RegionAround(row, col, radius, s.stack.Width, s.stack.Height)
		render.Region = &region
		if opts.Plane < 0 {
			if z, ok := depthOf(p.Coordinates); ok {
				render.Plane = clampPlane(z, s.stack.Depth)
			}
		}
	}
	if opts.Plane >= 0 {
		if opts.Plane >= s.stack.Depth {
			return nil, fmt.Errorf("plane %d out of range (image has %d)", opts.Plane, s.stack.Depth)
		}
		render.Plane = opts.Plane
	}

	var layers []imaging.MarkerLayer
	if s.bad != nil {
		layers = append(layers, markerLayer(s.bad, BadColor, render.Plane))
	}
	if s.good != nil {
		layers = append(layers, markerLayer(s.good, GoodColor, render.Plane))
	}
	return imaging.RenderPreview(s.stack, layers, render)
}

// markerLayer collects the markers of c that lie on plane. Points without a
// Z coordinate are on every plane.
func markerLayer(c *points.Collection, color string, plane int) imaging.MarkerLayer {
	layer := imaging.MarkerLayer{Name: c.Name(), Color: color}
	for _, p := range c.Points() {
		if z, ok := depthOf(p.Coordinates); ok && z != plane {
			continue
		}
		row, col := planar(p.Coordinates)
		layer.Markers = append(layer.Markers, imaging.Marker{Row: row, Col: col, Label: p.Label})
	}
	return layer
}

// depthOf returns the rounded Z coordinate, the third from last, of a point
// with three or more dimensions.
func depthOf(coords []float64) (int, bool) {
	if len(coords) < 3 {
		return 0, false
	}
	return int(math.Round(coords[len(coords)-3])), true
}

func clampPlane(z, depth int) int {
	if z < 0 {
		return 0
	}
	if z >= depth {
		return depth - 1
	}
	return z
}

// planar returns the last two coordinates as the image row and column.
func planar(coords []float64) (row, col float64) {
	switch n := len(coords); {
	case n >= 2:
		return coords[n-2], coords[n-1]
	case n == 1:
		return 0, coords[0]
	default:
		return 0, 0
	}
}
