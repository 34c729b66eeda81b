package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ImageCache provides thread-safe caching of decoded images keyed by path.
//
// Once an image is loaded, subsequent Load() calls for the same path return
// the cached copy without disk I/O. Reloading a session image after it has
// changed on disk requires Evict() first.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]*Pages
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]*Pages),
	}
}

// Load returns the first page of the image at path.
func (c *ImageCache) Load(path string) (image.Image, error) {
	pages, err := c.LoadPages(path)
	if err != nil {
		return nil, err
	}
	return pages.Images[0], nil
}

// LoadPages retrieves an image from the cache or decodes it from disk.
//
// Supported formats are TIFF (every page), PNG and JPEG. The image is cached
// under the exact path string provided.
func (c *ImageCache) LoadPages(path string) (*Pages, error) {
	c.mu.RLock()
	if pages, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return pages, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	var pages *Pages
	if isTIFF(data) {
		pages, err = DecodeTIFFPages(data)
		if err != nil {
			return nil, err
		}
	} else {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		pages = &Pages{Images: []image.Image{img}}
	}

	c.mu.Lock()
	c.images[path] = pages
	c.mu.Unlock()

	return pages, nil
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*Pages)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Channel is one channel of a multi-channel image, with one intensity plane
// per Z slice.
type Channel struct {
	// Name is the display name ("Ch1", "Ch2").
	Name string `json:"name"`

	// Colormap names the display color for this channel ("blue", "green").
	Colormap string `json:"colormap"`

	// Min and Max are the intensity extremes over all planes, used as
	// contrast limits.
	Min uint16 `json:"min"`
	Max uint16 `json:"max"`

	width, height int
	planes        [][]uint16
}

func newChannel(i, w, h, depth int) *Channel {
	ch := &Channel{
		Name:     ChannelNames[i],
		Colormap: ChannelColormaps[i],
		Min:      0xffff,
		width:    w,
		height:   h,
		planes:   make([][]uint16, depth),
	}
	for z := range ch.planes {
		ch.planes[z] = make([]uint16, w*h)
	}
	return ch
}

func (ch *Channel) set(z, x, y int, v uint16) {
	ch.planes[z][y*ch.width+x] = v
	if v < ch.Min {
		ch.Min = v
	}
	if v > ch.Max {
		ch.Max = v
	}
}

// At returns the raw intensity at (x, y) of plane z.
func (ch *Channel) At(z, x, y int) uint16 {
	return ch.planes[z][y*ch.width+x]
}

// Normalized returns the intensity at (x, y) of plane z stretched to [0, 1]
// between the channel's contrast limits.
func (ch *Channel) Normalized(z, x, y int) float64 {
	if ch.Max <= ch.Min {
		return 0
	}
	v := ch.At(z, x, y)
	return float64(v-ch.Min) / float64(ch.Max-ch.Min)
}

// ChannelStack is a decoded image split into its display channels.
type ChannelStack struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// Depth is the number of Z planes; 1 for a 2-D image.
	Depth    int        `json:"depth"`
	Format   string     `json:"format"`
	Channels []*Channel `json:"channels"`
}

// Channel names and colormaps for the two expected channels.
var (
	ChannelNames     = []string{"Ch1", "Ch2"}
	ChannelColormaps = []string{"blue", "green"}
)

// LoadChannels decodes the image at path and splits it into two channels.
//
// A single-page image is split by sample: Ch1 takes red and Ch2 takes green,
// which is how a two-channel TIFF page decodes. Grayscale images yield the
// same plane in both channels. A multi-page TIFF is read as a Z x C page
// sequence with channels varying fastest, as ImageJ hyperstacks store it.
// Samples are kept at 16-bit precision.
func LoadChannels(cache *ImageCache, path string) (*ChannelStack, error) {
	pages, err := cache.LoadPages(path)
	if err != nil {
		return nil, err
	}
	if len(pages.Images) == 1 {
		return SplitChannels(pages.Images[0], path), nil
	}
	return StackPages(pages, path)
}

// SplitChannels separates a single image into the Ch1/Ch2 stack.
func SplitChannels(img image.Image, path string) *ChannelStack {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	stack := &ChannelStack{
		Path:   path,
		Width:  w,
		Height: h,
		Depth:  1,
		Format: formatFromExt(path),
	}
	for i := range ChannelNames {
		stack.Channels = append(stack.Channels, newChannel(i, w, h, 1))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, _, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			stack.Channels[0].set(0, x, y, uint16(r))
			stack.Channels[1].set(0, x, y, uint16(g))
		}
	}
	stack.fixEmpty()
	return stack
}

// StackPages builds a Z x C stack from the pages of a multi-page image. The
// channel count comes from the ImageJ description and defaults to two.
func StackPages(pages *Pages, path string) (*ChannelStack, error) {
	nch := len(ChannelNames)
	if declared := pageChannels(pages.Description); declared != 0 && declared != nch {
		return nil, fmt.Errorf("image declares %d channels, expected %d", declared, nch)
	}
	if len(pages.Images)%nch != 0 {
		return nil, fmt.Errorf("image has %d pages, not a multiple of %d channels", len(pages.Images), nch)
	}

	first := pages.Images[0].Bounds()
	w, h := first.Dx(), first.Dy()
	depth := len(pages.Images) / nch

	stack := &ChannelStack{
		Path:   path,
		Width:  w,
		Height: h,
		Depth:  depth,
		Format: formatFromExt(path),
	}
	for i := 0; i < nch; i++ {
		stack.Channels = append(stack.Channels, newChannel(i, w, h, depth))
	}

	for i, img := range pages.Images {
		b := img.Bounds()
		if b.Dx() != w || b.Dy() != h {
			return nil, fmt.Errorf("page %d is %dx%d, first page is %dx%d", i, b.Dx(), b.Dy(), w, h)
		}
		z, ch := i/nch, stack.Channels[i%nch]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(img.At(x+b.Min.X, y+b.Min.Y)).(color.Gray16)
				ch.set(z, x, y, g.Y)
			}
		}
	}
	stack.fixEmpty()
	return stack, nil
}

func (s *ChannelStack) fixEmpty() {
	if s.Width*s.Height == 0 {
		for _, ch := range s.Channels {
			ch.Min = 0
		}
	}
}

// formatFromExt determines the format name from the file extension.
func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return "tiff"
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	default:
		return "unknown"
	}
}
