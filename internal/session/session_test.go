package session

import (
	"encoding/csv"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/npyio"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/roi-editor-mcp/internal/imaging"
	"github.com/ironsheep/roi-editor-mcp/internal/points"
	"github.com/ironsheep/roi-editor-mcp/internal/regions"
)

const (
	testWidth  = 20
	testHeight = 20
)

// writeTestImage writes a two-channel 16-bit TIFF into dir.
func writeTestImage(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA64(image.Rect(0, 0, testWidth, testHeight))
	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			img.SetRGBA64(x, y, color.RGBA64{R: uint16(x * 3000), G: uint16(y * 3000), A: 0xffff})
		}
	}
	path := filepath.Join(dir, "cells.tif")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("failed to encode tiff: %v", err)
	}
	return path
}

// writeTestMask writes cells_seg.npy beside the image: ten single-pixel
// regions (labels 1-10) along row 0 and one 60-pixel region (label 11).
func writeTestMask(t *testing.T, dir string) string {
	t.Helper()
	data := make([]float64, testWidth*testHeight)
	for i := 0; i < 10; i++ {
		data[2*i] = float64(i + 1)
	}
	for y := 5; y <= 10; y++ {
		for x := 0; x < 10; x++ {
			data[y*testWidth+x] = 11
		}
	}

	path := filepath.Join(dir, "cells_seg.npy")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create mask: %v", err)
	}
	defer f.Close()
	if err := npyio.Write(f, mat.NewDense(testHeight, testWidth, data)); err != nil {
		t.Fatalf("failed to write mask: %v", err)
	}
	return path
}

func loadedSession(t *testing.T) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)
	writeTestMask(t, dir)

	s := New(Options{})
	if _, err := s.Load(imgPath); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s, imgPath
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	return rows
}

func TestLoad_WithSegmentation(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)
	segPath := writeTestMask(t, dir)

	s := New(Options{})
	res, err := s.Load(imgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !res.SegmentationFound || res.SegmentationPath != segPath {
		t.Errorf("segmentation not reported: %+v", res)
	}
	if res.Regions != 11 || res.Good != 10 || res.Bad != 1 {
		t.Errorf("regions/good/bad = %d/%d/%d, want 11/10/1", res.Regions, res.Good, res.Bad)
	}
	if res.Width != testWidth || res.Height != testHeight {
		t.Errorf("dimensions = %dx%d", res.Width, res.Height)
	}

	bad, _ := s.Bad().At(0)
	if bad.Label != 11 || bad.Area != 60 || bad.Status != regions.StatusBad {
		t.Errorf("unexpected bad point: %+v", bad)
	}
	if bad.Coordinates[0] != 7.5 || bad.Coordinates[1] != 4.5 {
		t.Errorf("bad centroid = %v, want [7.5 4.5]", bad.Coordinates)
	}

	if s.GoodCount() != 10 {
		t.Errorf("GoodCount = %d, want 10", s.GoodCount())
	}
	if v, ok := s.Metadata(MetaImagePath); !ok || v != imgPath {
		t.Errorf("image_path metadata = %q, %v", v, ok)
	}

	want := []string{"Ch1", "Ch2", BadLayer, GoodLayer}
	if got := strings.Join(s.Layers(), ","); got != strings.Join(want, ",") {
		t.Errorf("Layers = %s, want %s", got, strings.Join(want, ","))
	}
}

func TestLoad_WithoutSegmentation(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)

	s := New(Options{})
	res, err := s.Load(imgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.SegmentationFound || res.Good != 0 || res.Bad != 0 {
		t.Errorf("unexpected result without segmentation: %+v", res)
	}
	if s.Good() == nil || s.Bad() == nil {
		t.Fatal("layers should exist even without a segmentation")
	}
	if s.Good().Ndim() != 2 {
		t.Errorf("empty good layer ndim = %d, want 2", s.Good().Ndim())
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{})

	if _, err := s.Load(filepath.Join(dir, "missing.tif")); err == nil {
		t.Error("Load should fail for a missing image")
	}

	imgPath := writeTestImage(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "cells_seg.npy"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := s.Load(imgPath); err == nil {
		t.Error("Load should fail for a malformed segmentation")
	}
	if s.Good() != nil {
		t.Error("good layer should not exist after a failed load")
	}
}

func TestLoad_ClearsPreviousSession(t *testing.T) {
	s, _ := loadedSession(t)

	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)
	if _, err := s.Load(imgPath); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Good().Len() != 0 || len(s.Records()) != 0 || s.GoodCount() != 0 {
		t.Error("second load kept state from the first image")
	}
}

func TestGoodLayer_EditingAssignsLabelsAndCounts(t *testing.T) {
	s, _ := loadedSession(t)
	good := s.Good()

	if err := good.Add([]float64{15, 15}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	p, _ := good.At(good.Len() - 1)
	if p.Label != 11 || p.Area != 0 || p.Status != regions.StatusUserAdded {
		t.Errorf("drawn point = %+v, want label 11 User_added", p)
	}
	if s.GoodCount() != 11 {
		t.Errorf("GoodCount after add = %d, want 11", s.GoodCount())
	}

	if err := good.Duplicate(0); err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}
	p, _ = good.At(good.Len() - 1)
	if p.Label != 12 {
		t.Errorf("duplicated point label = %d, want 12", p.Label)
	}

	if err := good.Delete(0); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.GoodCount() != 11 {
		t.Errorf("GoodCount after delete = %d, want 11", s.GoodCount())
	}
}

func TestGoodLayer_FirstPointAfterEmptyLoad(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{})
	if _, err := s.Load(writeTestImage(t, dir)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := s.Good().Add([]float64{3, 4}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	p, _ := s.Good().At(0)
	if p.Label != 1 || p.Status != regions.StatusUserAdded {
		t.Errorf("first point = %+v, want label 1 User_added", p)
	}
	if s.GoodCount() != 1 {
		t.Errorf("GoodCount = %d, want 1", s.GoodCount())
	}
}

func TestSaveGood_BeforeLoad(t *testing.T) {
	s := New(Options{})
	res, err := s.SaveGood()
	if err != nil {
		t.Fatalf("SaveGood should not fail: %v", err)
	}
	if res.Saved || res.Path != "" {
		t.Errorf("SaveGood wrote without a good layer: %+v", res)
	}
	if !strings.Contains(res.Message, GoodLayer) {
		t.Errorf("diagnostic does not name the layer: %q", res.Message)
	}
}

func TestSaveGood_MissingImagePath(t *testing.T) {
	s, imgPath := loadedSession(t)
	delete(s.metadata, MetaImagePath)

	res, err := s.SaveGood()
	if err != nil {
		t.Fatalf("SaveGood should not fail: %v", err)
	}
	if res.Saved {
		t.Error("SaveGood should skip without image path metadata")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(imgPath), "cells_good_rois.csv")); !os.IsNotExist(err) {
		t.Error("no file should be written when the export is skipped")
	}
}

func TestSaveGood_WritesCSV(t *testing.T) {
	s, imgPath := loadedSession(t)
	if err := s.Good().Add([]float64{15, 16}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	res, err := s.SaveGood()
	if err != nil {
		t.Fatalf("SaveGood failed: %v", err)
	}
	wantPath := filepath.Join(filepath.Dir(imgPath), "cells_good_rois.csv")
	if !res.Saved || res.Path != wantPath || res.Count != 11 {
		t.Errorf("unexpected save result: %+v", res)
	}

	info, err := os.Stat(wantPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != OutputMode {
		t.Errorf("output mode = %v, want %v", info.Mode().Perm(), OutputMode)
	}

	rows := readCSV(t, wantPath)
	if len(rows) != 12 {
		t.Fatalf("csv has %d rows, want header + 11", len(rows))
	}
	if strings.Join(rows[0], ",") != "label,area,status,axis-0,axis-1" {
		t.Errorf("header = %v", rows[0])
	}
	if strings.Join(rows[1], ",") != "1,1,good,0,0" {
		t.Errorf("first row = %v", rows[1])
	}
	if strings.Join(rows[11], ",") != "11,0,User_added,15,16" {
		t.Errorf("last row = %v", rows[11])
	}

	entries, _ := os.ReadDir(filepath.Dir(imgPath))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".good-rois-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestPreview(t *testing.T) {
	s := New(Options{})
	if _, err := s.Preview(PreviewOptions{Focus: -1}); err == nil {
		t.Error("Preview should fail before an image is loaded")
	}

	s, _ = loadedSession(t)
	res, err := s.Preview(PreviewOptions{Focus: -1, ShowLabels: true})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if res.Width != testWidth || res.Height != testHeight || res.MarkerCount != 11 {
		t.Errorf("unexpected preview: %dx%d, %d markers", res.Width, res.Height, res.MarkerCount)
	}

	res, err = s.Preview(PreviewOptions{Focus: 0, FocusRadius: 3})
	if err != nil {
		t.Fatalf("focused Preview failed: %v", err)
	}
	// Point 0 sits at (0,0); the window is clipped to 4x4
	if res.Width != 4 || res.Height != 4 {
		t.Errorf("focused preview = %dx%d, want 4x4", res.Width, res.Height)
	}

	if _, err := s.Preview(PreviewOptions{Focus: 99}); err == nil {
		t.Error("Preview should fail for an unknown focus point")
	}
}

// volumeSession holds a two-plane stack with one good point on each plane.
func volumeSession(t *testing.T) *Session {
	t.Helper()
	var pages []image.Image
	for i := 0; i < 4; i++ {
		pages = append(pages, image.NewGray16(image.Rect(0, 0, testWidth, testHeight)))
	}
	stack, err := imaging.StackPages(&imaging.Pages{Images: pages}, "volume.tif")
	if err != nil {
		t.Fatalf("StackPages failed: %v", err)
	}

	s := New(Options{})
	s.stack = stack
	s.good, err = points.NewCollection(GoodLayer, 3, []points.Point{
		{Coordinates: []float64{0, 2, 2}, Label: 1},
		{Coordinates: []float64{1, 8, 8}, Label: 2},
		{Coordinates: []float64{1.2, 9, 9}, Label: 3},
	})
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	return s
}

func TestPreview_Plane(t *testing.T) {
	s := volumeSession(t)

	tests := []struct {
		name    string
		opts    PreviewOptions
		markers int
	}{
		{"first plane", PreviewOptions{Focus: -1, Plane: 0}, 1},
		{"second plane", PreviewOptions{Focus: -1, Plane: 1}, 2},
		{"default plane", PreviewOptions{Focus: -1, Plane: -1}, 1},
		{"follow focus", PreviewOptions{Focus: 2, FocusRadius: 20, Plane: -1}, 2},
		{"explicit plane over focus", PreviewOptions{Focus: 1, FocusRadius: 20, Plane: 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Preview(tt.opts)
			if err != nil {
				t.Fatalf("Preview failed: %v", err)
			}
			if res.MarkerCount != tt.markers {
				t.Errorf("markers: got %d, want %d", res.MarkerCount, tt.markers)
			}
		})
	}

	if _, err := s.Preview(PreviewOptions{Focus: -1, Plane: 2}); err == nil {
		t.Error("Preview should reject a plane past the stack depth")
	}
}

func TestDepthOf(t *testing.T) {
	if _, ok := depthOf([]float64{3, 4}); ok {
		t.Error("a 2-D point has no depth")
	}
	if z, ok := depthOf([]float64{2.6, 3, 4}); !ok || z != 3 {
		t.Errorf("depthOf = %d,%v want 3,true", z, ok)
	}
	if z, ok := depthOf([]float64{0, 1, 3, 4}); !ok || z != 1 {
		t.Errorf("4-D depthOf = %d,%v want 1,true", z, ok)
	}
	if clampPlane(5, 2) != 1 || clampPlane(-1, 2) != 0 {
		t.Error("clampPlane should keep the plane inside the stack")
	}
}

func TestPlanar(t *testing.T) {
	tests := []struct {
		coords   []float64
		row, col float64
	}{
		{[]float64{3, 4}, 3, 4},
		{[]float64{1, 3, 4}, 3, 4},
		{[]float64{7}, 0, 7},
		{nil, 0, 0},
	}
	for _, tt := range tests {
		row, col := planar(tt.coords)
		if row != tt.row || col != tt.col {
			t.Errorf("planar(%v) = %v,%v want %v,%v", tt.coords, row, col, tt.row, tt.col)
		}
	}
}
