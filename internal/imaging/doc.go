// Package imaging provides the frame-level image handling used around
// inference: a cache of decoded frame images, normalized-box crops, and
// diagnostic overlays that draw detections onto a frame.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Functions that accept
// detection boxes take the normalized, bottom-left origin rectangles of the
// detection package and convert them explicitly.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The other functions are stateless
// and never mutate their input image.
//
// # Output Encoding
//
// Crops and overlays are returned as base64-encoded PNG so they can be
// embedded directly in MCP tool results.
package imaging
