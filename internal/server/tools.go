package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Anchoring Sessions
		{
			Name:        "anchor_start",
			Description: "Start an anchoring session against a scene file. The session repeatedly detects the target container in camera frames, ray casts its center into the scene, and places one anchor with the configured asset. Returns the session id immediately.",
			InputSchema: objectSchema(map[string]interface{}{
				"scene":        stringProp("Absolute path to the scene YAML file"),
				"target":       stringProp("Label to search for (case-insensitive substring). Defaults to the configured target"),
				"max_attempts": integerProp("Give up after this many attempts. 0 uses the configured bound"),
				"timeout_ms":   integerProp("Give up after this many milliseconds. 0 uses the configured bound"),
			}, "scene"),
		},
		{
			Name:        "anchor_status",
			Description: "Get the state of an anchoring session: idle, detecting, retrying, placed, failed or cancelled, with the attempt count and the placement once made.",
			InputSchema: objectSchema(map[string]interface{}{
				"session_id": stringProp("Session id returned by anchor_start"),
				"wait_ms":    integerProp("Optionally wait up to this long for the session to finish"),
			}, "session_id"),
		},
		{
			Name:        "anchor_cancel",
			Description: "Cancel an anchoring session. Further retries stop and a placement not yet committed is discarded.",
			InputSchema: objectSchema(map[string]interface{}{
				"session_id": stringProp("Session id returned by anchor_start"),
			}, "session_id"),
		},
		{
			Name:        "anchor_list",
			Description: "List every anchoring session started by this server with its current state.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "scene_anchors",
			Description: "List the anchors placed in the shared scene with their world positions, scale and asset.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},

		// Detection
		{
			Name:        "detect_frame",
			Description: "Run the configured detector on an image file and return the detections (normalized boxes, bottom-left origin) and the candidate screen point the anchoring flow would ray cast from.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":        stringProp("Absolute path to the image file"),
				"target":      stringProp("Label to select. Defaults to the configured target"),
				"view_width":  numberProp("View width for the candidate point. Defaults to the image width"),
				"view_height": numberProp("View height for the candidate point. Defaults to the image height"),
			}, "path"),
		},
		{
			Name:        "detection_overlay",
			Description: "Run the detector on an image file and return a PNG with every detection box drawn and a crosshair on the candidate point.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":   stringProp("Absolute path to the image file"),
				"target": stringProp("Label to select. Defaults to the configured target"),
			}, "path"),
		},
		{
			Name:        "detection_crop",
			Description: "Crop the region of a normalized detection box (bottom-left origin) from an image file and return it as base64-encoded PNG.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":   stringProp("Absolute path to the image file"),
				"x":      numberProp("Box left edge, 0-1"),
				"y":      numberProp("Box bottom edge, 0-1"),
				"width":  numberProp("Box width, 0-1"),
				"height": numberProp("Box height, 0-1"),
				"scale":  numberProp("Optional scale factor. Default 1.0"),
			}, "path", "x", "y", "width", "height"),
		},

		// World Location
		{
			Name:        "raycast",
			Description: "Ray cast from a screen point (top-left origin, view units) into a scene file and return the world position of the first surface hit.",
			InputSchema: objectSchema(map[string]interface{}{
				"scene":     stringProp("Absolute path to the scene YAML file"),
				"x":         numberProp("Screen X"),
				"y":         numberProp("Screen Y"),
				"alignment": stringProp("Restrict to any, horizontal or vertical surfaces. Defaults to the configured alignment"),
				"targets": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Ray cast targets in order: existing_plane, existing_plane_infinite, estimated_plane",
				},
			}, "scene", "x", "y"),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return resultResponse(req.ID, map[string]interface{}{"tools": GetToolDefinitions()})
}
