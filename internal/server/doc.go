// Package server implements the MCP (Model Context Protocol) server for AR
// object anchoring.
//
// This package provides a JSON-RPC 2.0 server that exposes the anchoring
// flow through the MCP protocol: start a session against a scene, watch it
// detect the target container and place an anchor, inspect detections and
// ray casts along the way.
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
// Anchoring Sessions:
//   - anchor_start: Start a session on a scene file
//   - anchor_status: Get a session's state, optionally waiting for it
//   - anchor_cancel: Cancel a session
//   - anchor_list: List sessions
//   - scene_anchors: List placed anchors
//
// Detection:
//   - detect_frame: Detections and candidate point for an image
//   - detection_overlay: Image with detection boxes drawn
//   - detection_crop: Crop a normalized detection box
//
// World Location:
//   - raycast: Ray cast a screen point into a scene
//
// # Sessions and the Scene
//
// All sessions share one scene and one render loop owned by the server, so
// anchors from every session are inserted on the same goroutine. Session ids
// are ULIDs and sort by start time. Only the newest DefaultKeepFinished
// finished sessions stay listable; running sessions are always kept.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A session that fails or is cancelled is not a tool error; its status
// carries the state and error message.
package server
