// Package server implements the MCP (Model Context Protocol) server for ROI
// curation.
//
// The server owns one curation session. A client loads a two-channel image
// with its segmentation, inspects the automatically classified regions, edits
// the good ROI layer and finally exports it to CSV.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Session:
//   - roi_load_image: Load an image and its _seg.npy/_seg.npz mask
//   - roi_region_stats: Per-region centroid, area and classification
//
// Point Layers:
//   - roi_list_points: List the good or bad layer
//   - roi_add_point: Draw a new good point
//   - roi_duplicate_point: Copy a good point, assigning it a fresh label
//   - roi_move_point: Move a good point
//   - roi_delete_point: Remove a good point
//   - roi_good_count: Current number of good points
//
// Output:
//   - roi_save_good: Write <stem>_good_rois.csv beside the image
//   - roi_preview: Render the channel composite with both layers
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A skipped export is not an error: roi_save_good reports saved=false with
// the reason in its message.
//
// # Usage
//
//	srv := server.New(cfg, log)
//	if err := srv.Run(); err != nil {
//	    log.Error("server failed", "error", err)
//	}
package server
