package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultMarkerSize is the marker diameter in image pixels.
const DefaultMarkerSize = 10

// namedColors maps the colormap and face color names used by the editor.
var namedColors = map[string]string{
	"blue":  "#0000ff",
	"green": "#00ff00",
	"red":   "#ff0000",
	"white": "#ffffff",
}

// Marker is a point drawn on the preview, in image row/column coordinates.
type Marker struct {
	Row   float64
	Col   float64
	Label int
}

// MarkerLayer is a set of markers sharing one face color.
type MarkerLayer struct {
	Name    string
	Color   string // color name or "#RRGGBB"
	Markers []Marker
}

// PreviewOptions controls composite rendering.
type PreviewOptions struct {
	// Scale resizes the output; 0 means 1.0.
	Scale float64

	// MarkerSize is the marker diameter; 0 means DefaultMarkerSize.
	MarkerSize int

	// ShowLabels draws each marker's label beside it.
	ShowLabels bool

	// Contrast adjusts the composite, in the range -1 to 1; 0 leaves it unchanged.
	Contrast float64

	// Region limits the output to a window of the image; nil renders all of it.
	Region *Region

	// Plane is the Z slice to render.
	Plane int
}

// PreviewResult holds the rendered composite.
type PreviewResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	MarkerCount int    `json:"marker_count"`
}

// ParseColor resolves a color name or hex string.
func ParseColor(name string) (colorful.Color, error) {
	if hex, ok := namedColors[name]; ok {
		name = hex
	}
	c, err := colorful.Hex(name)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("invalid color %q: %w", name, err)
	}
	return c, nil
}

// Colorize maps plane z of a channel through its colormap, blending from
// black at the lower contrast limit to the full colormap color at the upper one.
func Colorize(ch *Channel, z int) (*image.RGBA, error) {
	if z < 0 || z >= len(ch.planes) {
		return nil, fmt.Errorf("plane %d out of range (depth %d)", z, len(ch.planes))
	}
	cmap, err := ParseColor(ch.Colormap)
	if err != nil {
		return nil, err
	}
	black := colorful.Color{}

	out := image.NewRGBA(image.Rect(0, 0, ch.width, ch.height))
	for y := 0; y < ch.height; y++ {
		for x := 0; x < ch.width; x++ {
			r, g, b := black.BlendRgb(cmap, ch.Normalized(z, x, y)).Clamped().RGB255()
			out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out, nil
}

// Composite additively blends plane z of every channel of the stack.
func Composite(stack *ChannelStack, z int) (*image.RGBA, error) {
	if stack.Width == 0 || stack.Height == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	var result *image.RGBA
	for _, ch := range stack.Channels {
		layer, err := Colorize(ch, z)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.Name, err)
		}
		if result == nil {
			result = layer
			continue
		}
		result = blend.Add(result, layer)
	}
	return result, nil
}

// RenderPreview composites the channels, draws the marker layers on top in
// order and encodes the result as a base64 PNG.
func RenderPreview(stack *ChannelStack, layers []MarkerLayer, opts PreviewOptions) (*PreviewResult, error) {
	if opts.Scale == 0 {
		opts.Scale = 1.0
	}
	if opts.Scale < 0 {
		return nil, fmt.Errorf("invalid scale %v", opts.Scale)
	}
	if opts.MarkerSize <= 0 {
		opts.MarkerSize = DefaultMarkerSize
	}

	canvas, err := Composite(stack, opts.Plane)
	if err != nil {
		return nil, err
	}
	if opts.Contrast != 0 {
		canvas = adjust.Contrast(canvas, opts.Contrast)
	}

	count := 0
	for _, layer := range layers {
		face, err := ParseColor(layer.Color)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", layer.Name, err)
		}
		r, g, b := face.Clamped().RGB255()
		fill := color.RGBA{R: r, G: g, B: b, A: 255}

		for _, m := range layer.Markers {
			cx := int(math.Round(m.Col))
			cy := int(math.Round(m.Row))
			drawDisc(canvas, cx, cy, opts.MarkerSize, fill)
			if opts.ShowLabels {
				drawLabel(canvas, cx+opts.MarkerSize/2+1, cy-3, fmt.Sprint(m.Label),
					color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 180})
			}
			count++
		}
	}

	var out image.Image = canvas
	if opts.Region != nil {
		if err := opts.Region.Validate(canvas.Bounds()); err != nil {
			return nil, err
		}
		out = imaging.Crop(canvas, opts.Region.Rect())
	}
	if opts.Scale != 1.0 {
		newWidth := int(float64(out.Bounds().Dx()) * opts.Scale)
		newHeight := int(float64(out.Bounds().Dy()) * opts.Scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("scale %v leaves no pixels", opts.Scale)
		}
		out = imaging.Resize(out, newWidth, newHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &PreviewResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
		MarkerCount: count,
	}, nil
}

// drawDisc fills a circle of the given diameter centered on (cx, cy),
// clipped to the image bounds.
func drawDisc(img *image.RGBA, cx, cy, diameter int, c color.RGBA) {
	bounds := img.Bounds()
	radius := float64(diameter) / 2
	r := int(math.Ceil(radius))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if float64(dx*dx+dy*dy) > radius*radius {
				continue
			}
			px, py := cx+dx, cy+dy
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				img.SetRGBA(px, py, c)
			}
		}
	}
}
