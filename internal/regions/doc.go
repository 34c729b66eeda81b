// Package regions computes per-region statistics from labeled segmentation
// masks and classifies regions as good or bad by area.
//
// # Masks
//
// A Mask is an N-dimensional integer array stored in row-major (C) order.
// Label 0 is background; every positive integer identifies one region.
// Masks are treated as immutable once constructed.
//
// # Coordinates
//
// Centroids use array index order, one value per mask dimension. For a 2-D
// mask the first value is the row (Y) and the second is the column (X), which
// matches the axis-0/axis-1 column order used by the exporter.
//
// # Outlier Rule
//
// A region is "bad" when its area lies strictly outside mean ± k·σ, where σ
// is the sample standard deviation (n−1 denominator) and k defaults to 2.
// With fewer than two regions σ is undefined and every region is "good".
package regions
