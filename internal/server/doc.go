// Package server implements the MCP (Model Context Protocol) server that
// exposes image sources as tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - image_request: Request a scaled image from a source
//   - image_cancel: Cancel a request started without waiting
//   - image_size: Get the upright pixel size of a source
//   - image_data: Get the encoded full resolution bytes
//   - image_equal: Compare two sources
//
// A source argument is an object with exactly one of "path", "url",
// "asset" or "crop"; a crop wraps another source argument together with
// crop parameters.
//
// # Notifications
//
// Downloads started on behalf of image_request are reported as
// notifications/progress with the request's progress token: progress 0
// when the download starts and 1 when it finishes or is cancelled. With
// wait=false every delivery is sent as notifications/image_result.
//
// # Source Reuse
//
// Sources are kept in an LRU cache keyed by their argument, so a crop is
// rendered once and served from its file while it stays cached. The
// original inside a crop argument belongs to that crop. When the cache is
// full the least recently used source is closed, deleting its rendered
// file; requests still running on it deliver no image. Close deletes the
// remaining files.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A source that cannot produce an image is not an error: the delivery is
// reported with ok=false.
package server
