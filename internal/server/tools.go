package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// sourceSchema describes a source argument. Exactly one of path, url,
// asset or crop must be set; crop nests another source.
func sourceSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute path to a local image file",
			},
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP(S) URL of a remote image",
			},
			"asset": map[string]interface{}{
				"type":        "string",
				"description": "Asset identifier in the configured asset library",
			},
			"crop": map[string]interface{}{
				"type":        "object",
				"description": "Crop of another source: {\"source\": {...}, \"params\": {crop_width, crop_height, image_view_width, angle, zoom, offset_x, offset_y, output_width, source_orientation, source_max_size}}",
			},
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "image_request",
			Description: "Request an image from a source, scaled by size mode. Waits for the final delivery and returns every delivery (previews are marked degraded). With wait=false returns the request id at once and reports deliveries as notifications/image_result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source": sourceSchema("Image source"),
					"size": map[string]interface{}{
						"type":        "string",
						"description": "full, fit or fill",
						"enum":        []string{"full", "fit", "fill"},
						"default":     "full",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Target width for fit and fill",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Target height for fit and fill",
					},
					"delivery": map[string]interface{}{
						"type":        "string",
						"description": "progressive may deliver previews first; best delivers once",
						"enum":        []string{"progressive", "best"},
						"default":     "progressive",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the pixels of each delivery as base64 PNG",
						"default":     false,
					},
					"wait": map[string]interface{}{
						"type":        "boolean",
						"description": "Wait for the final delivery. Default true",
						"default":     true,
					},
				},
				"required": []string{"source"},
			},
		},
		{
			Name:        "image_cancel",
			Description: "Cancel a request started with image_request and wait=false. No further deliveries are reported for it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"request_id": map[string]interface{}{
						"type":        "string",
						"description": "Id returned by image_request",
					},
				},
				"required": []string{"request_id"},
			},
		},
		{
			Name:        "image_size",
			Description: "Get the upright pixel size of a source without scaling it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source": sourceSchema("Image source"),
				},
				"required": []string{"source"},
			},
		},
		{
			Name:        "image_data",
			Description: "Get the encoded full resolution bytes of a source, with their format and size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source": sourceSchema("Image source"),
					"include_data": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the bytes as base64",
						"default":     false,
					},
				},
				"required": []string{"source"},
			},
		},
		{
			Name:        "image_equal",
			Description: "Check whether two sources refer to the same image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"a": sourceSchema("First source"),
					"b": sourceSchema("Second source"),
				},
				"required": []string{"a", "b"},
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
