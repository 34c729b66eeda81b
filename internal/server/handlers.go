package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ironsheep/roi-editor-mcp/internal/points"
	"github.com/ironsheep/roi-editor-mcp/internal/regions"
	"github.com/ironsheep/roi-editor-mcp/internal/session"
)

// errNoImage is returned by tools that need a loaded session.
var errNoImage = errors.New("no image loaded; call roi_load_image first")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "roi_load_image", "roi_add_point").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Session
	case "roi_load_image":
		return s.handleLoadImage(args)
	case "roi_region_stats":
		return s.handleRegionStats(args)

	// Point Layers
	case "roi_list_points":
		return s.handleListPoints(args)
	case "roi_add_point":
		return s.handleAddPoint(args)
	case "roi_duplicate_point":
		return s.handleDuplicatePoint(args)
	case "roi_move_point":
		return s.handleMovePoint(args)
	case "roi_delete_point":
		return s.handleDeletePoint(args)
	case "roi_good_count":
		return s.handleGoodCount(args)

	// Output
	case "roi_save_good":
		return s.handleSaveGood(args)
	case "roi_preview":
		return s.handlePreview(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, treating absent arguments as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) goodLayer() (*points.Collection, error) {
	good := s.session.Good()
	if good == nil {
		return nil, errNoImage
	}
	return good, nil
}

// === Session Handlers ===

type loadImageArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleLoadImage(args json.RawMessage) (interface{}, error) {
	var a loadImageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return s.session.Load(a.Path)
}

// RegionStatsResult lists every region with its classification.
type RegionStatsResult struct {
	Regions []regions.RegionRecord `json:"regions"`
	Good    int                    `json:"good"`
	Bad     int                    `json:"bad"`
	Mean    float64                `json:"mean_area"`

	// StdDev and the band are omitted when fewer than two regions exist.
	StdDev *float64 `json:"std_dev_area,omitempty"`
	Lower  *float64 `json:"lower_bound,omitempty"`
	Upper  *float64 `json:"upper_bound,omitempty"`
}

func (s *Server) handleRegionStats(args json.RawMessage) (interface{}, error) {
	if s.session.Good() == nil {
		return nil, errNoImage
	}
	set := s.session.Classification()

	res := &RegionStatsResult{
		Regions: make([]regions.RegionRecord, 0, len(set.Good)+len(set.Bad)),
		Good:    len(set.Good),
		Bad:     len(set.Bad),
		Mean:    set.Mean,
	}
	res.Regions = append(res.Regions, set.Good...)
	res.Regions = append(res.Regions, set.Bad...)
	sort.Slice(res.Regions, func(i, j int) bool {
		return res.Regions[i].Label < res.Regions[j].Label
	})

	if set.HasBand() {
		sd, lo, hi := set.StdDev, set.Lower, set.Upper
		res.StdDev, res.Lower, res.Upper = &sd, &lo, &hi
	}
	return res, nil
}

// === Point Layer Handlers ===

type listPointsArgs struct {
	Layer string `json:"layer"`
}

// PointListResult is the content of one point layer.
type PointListResult struct {
	Layer  string         `json:"layer"`
	Ndim   int            `json:"ndim"`
	Count  int            `json:"count"`
	Points []points.Point `json:"points"`
}

func (s *Server) handleListPoints(args json.RawMessage) (interface{}, error) {
	var a listPointsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	name := session.GoodLayer
	switch a.Layer {
	case "", "good", session.GoodLayer:
	case "bad", session.BadLayer:
		name = session.BadLayer
	default:
		return nil, fmt.Errorf("unknown layer: %s", a.Layer)
	}

	c, ok := s.session.Layer(name)
	if !ok {
		return nil, errNoImage
	}
	return &PointListResult{
		Layer:  c.Name(),
		Ndim:   c.Ndim(),
		Count:  c.Len(),
		Points: c.Points(),
	}, nil
}

// PointResult reports the point affected by an edit.
type PointResult struct {
	Index     int           `json:"index"`
	Point     *points.Point `json:"point,omitempty"`
	GoodCount int           `json:"good_count"`
}

func (s *Server) pointResult(c *points.Collection, index int) (*PointResult, error) {
	res := &PointResult{Index: index, GoodCount: s.session.GoodCount()}
	if index >= 0 && index < c.Len() {
		p, err := c.At(index)
		if err != nil {
			return nil, err
		}
		res.Point = &p
	}
	return res, nil
}

type addPointArgs struct {
	Coordinates []float64 `json:"coordinates"`
}

func (s *Server) handleAddPoint(args json.RawMessage) (interface{}, error) {
	var a addPointArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	good, err := s.goodLayer()
	if err != nil {
		return nil, err
	}
	if err := good.Add(a.Coordinates); err != nil {
		return nil, err
	}
	return s.pointResult(good, good.Len()-1)
}

type indexArgs struct {
	Index *int `json:"index"`
}

func (a indexArgs) value() (int, error) {
	if a.Index == nil {
		return 0, fmt.Errorf("index is required")
	}
	return *a.Index, nil
}

func (s *Server) handleDuplicatePoint(args json.RawMessage) (interface{}, error) {
	var a indexArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	i, err := a.value()
	if err != nil {
		return nil, err
	}
	good, err := s.goodLayer()
	if err != nil {
		return nil, err
	}
	if err := good.Duplicate(i); err != nil {
		return nil, err
	}
	return s.pointResult(good, good.Len()-1)
}

type movePointArgs struct {
	Index       *int      `json:"index"`
	Coordinates []float64 `json:"coordinates"`
}

func (s *Server) handleMovePoint(args json.RawMessage) (interface{}, error) {
	var a movePointArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	i, err := indexArgs{Index: a.Index}.value()
	if err != nil {
		return nil, err
	}
	good, err := s.goodLayer()
	if err != nil {
		return nil, err
	}
	if err := good.Move(i, a.Coordinates); err != nil {
		return nil, err
	}
	return s.pointResult(good, i)
}

func (s *Server) handleDeletePoint(args json.RawMessage) (interface{}, error) {
	var a indexArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	i, err := a.value()
	if err != nil {
		return nil, err
	}
	good, err := s.goodLayer()
	if err != nil {
		return nil, err
	}
	if err := good.Delete(i); err != nil {
		return nil, err
	}
	return &PointResult{Index: i, GoodCount: s.session.GoodCount()}, nil
}

func (s *Server) handleGoodCount(args json.RawMessage) (interface{}, error) {
	return map[string]int{"count": s.session.GoodCount()}, nil
}

// === Output Handlers ===

func (s *Server) handleSaveGood(args json.RawMessage) (interface{}, error) {
	return s.session.SaveGood()
}

type previewArgs struct {
	Scale      float64 `json:"scale"`
	ShowLabels bool    `json:"show_labels"`
	Contrast   float64 `json:"contrast"`
	Focus      *int    `json:"focus"`
	Radius     int     `json:"radius"`
	Plane      *int    `json:"plane"`
}

func (s *Server) handlePreview(args json.RawMessage) (interface{}, error) {
	var a previewArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	if a.Contrast < -1 || a.Contrast > 1 {
		return nil, fmt.Errorf("contrast must be between -1 and 1")
	}

	opts := session.PreviewOptions{
		Scale:       a.Scale,
		ShowLabels:  a.ShowLabels,
		Contrast:    a.Contrast,
		Focus:       -1,
		FocusRadius: a.Radius,
		Plane:       -1,
	}
	if a.Focus != nil {
		if *a.Focus < 0 {
			return nil, fmt.Errorf("focus must be a point index")
		}
		opts.Focus = *a.Focus
	}
	if a.Plane != nil {
		if *a.Plane < 0 {
			return nil, fmt.Errorf("plane must be a Z index")
		}
		opts.Plane = *a.Plane
	}
	return s.session.Preview(opts)
}
