// Package imaging loads two-channel microscopy images and renders composite
// previews with ROI markers drawn on top.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner. Marker
// positions use array order, row first: a point at axis-0 = 12, axis-1 = 30
// is drawn at X = 30, Y = 12.
//
// # Channels
//
// A decoded image is split into two 16-bit channels. Ch1 is displayed with
// the "blue" colormap and Ch2 with "green". Each channel is linearly
// stretched between its own minimum and maximum before the two are blended
// additively.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Rendering functions are
// stateless and may be called concurrently on different stacks.
package imaging
