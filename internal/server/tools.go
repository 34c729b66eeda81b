package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// coordinatesSchema describes a point position in array order.
var coordinatesSchema = map[string]interface{}{
	"type":        "array",
	"items":       map[string]interface{}{"type": "number"},
	"description": "Point position in array order (axis-0, axis-1, ...). For 2-D images this is [row, column].",
}

var indexSchema = map[string]interface{}{
	"type":        "integer",
	"description": "0-based index of the point in the good ROI layer",
}

func noArgs() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Session
		{
			Name:        "roi_load_image",
			Description: "Load a two-channel image and its <stem>_seg.npz/.npy segmentation. Clears the current session, computes region statistics and splits regions into good and bad ROI layers by the mean ± 2σ area rule.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file (TIFF, PNG or JPEG)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "roi_region_stats",
			Description: "Return per-region label, centroid, area and status for the loaded segmentation, with the area band used for classification.",
			InputSchema: noArgs(),
		},

		// Point Layers
		{
			Name:        "roi_list_points",
			Description: "List the points of a layer with their label, area and status.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"layer": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"good", "bad"},
						"description": "Layer to list. Default good",
						"default":     "good",
					},
				},
			},
		},
		{
			Name:        "roi_add_point",
			Description: "Draw a new point in the good ROI layer. The point is given a label larger than every existing label, area 0 and status User_added.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"coordinates": coordinatesSchema,
				},
				"required": []string{"coordinates"},
			},
		},
		{
			Name:        "roi_duplicate_point",
			Description: "Duplicate a point of the good ROI layer. The copy is relabeled as a new User_added point.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": indexSchema,
				},
				"required": []string{"index"},
			},
		},
		{
			Name:        "roi_move_point",
			Description: "Move a point of the good ROI layer. Its properties are unchanged.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index":       indexSchema,
					"coordinates": coordinatesSchema,
				},
				"required": []string{"index", "coordinates"},
			},
		},
		{
			Name:        "roi_delete_point",
			Description: "Remove a point from the good ROI layer.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": indexSchema,
				},
				"required": []string{"index"},
			},
		},
		{
			Name:        "roi_good_count",
			Description: "Get the number of points in the good ROI layer.",
			InputSchema: noArgs(),
		},

		// Output
		{
			Name:        "roi_save_good",
			Description: "Save the good ROI layer to <stem>_good_rois.csv next to the loaded image. Columns: label, area, status, axis-0..axis-N.",
			InputSchema: noArgs(),
		},
		{
			Name:        "roi_preview",
			Description: "Render the image (Ch1 blue, Ch2 green) with bad ROIs in red and good ROIs in white, returned as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor. Default 1.0",
						"default":     1.0,
					},
					"show_labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw each point's label beside it. Default false",
						"default":     false,
					},
					"contrast": map[string]interface{}{
						"type":        "number",
						"description": "Contrast adjustment from -1 to 1. Default 0",
						"default":     0,
					},
					"focus": map[string]interface{}{
						"type":        "integer",
						"description": "Optional good point index to zoom in on",
					},
					"radius": map[string]interface{}{
						"type":        "integer",
						"description": "Window half-size in pixels around the focus point. Default 4x marker size",
					},
					"plane": map[string]interface{}{
						"type":        "integer",
						"description": "Z slice of a multi-page image to show. Default the focus point's slice, else 0",
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
