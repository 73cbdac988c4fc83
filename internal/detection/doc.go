// Package detection finds candidate containers in a single camera frame and
// turns the result into a screen point the world locator can ray cast from.
//
// # Detectors
//
// A Detector runs one inference pass over one frame and returns zero or more
// labeled, normalized bounding boxes. Three backends are provided:
//
//   - ShapeDetector: runs a bundled shape-class model (YAML) using edge
//     analysis, scoring each edge contour for rectangularity and circularity
//   - RemoteDetector: posts the frame to an HTTP inference service
//   - ocr.LabelDetector (separate package): reads printed container labels
//
// Detectors are blocking. Runner wraps one and delivers results through a
// completion callback from a background goroutine, refusing to start a second
// inference while one is in flight.
//
// # Coordinate Systems
//
// Bounding boxes are normalized to [0,1] with the origin at the bottom-left,
// so their Y axis is inverted relative to screen points. Conversion to the
// rendering surface is always explicit:
//
//	screenX = normalizedX * viewWidth
//	screenY = (1 - normalizedY) * viewHeight
//
// # Selection Policy
//
// ChooseCandidate prefers the first detection whose label contains the target
// identifier (case-insensitive). When nothing matches, the exact center of the
// view is used instead, on the assumption that the user is pointing the
// camera roughly at the target.
//
// # Errors
//
// Failing to load a model is a configuration error (ErrModelLoad) and is
// never retried. Inference errors and empty results are ordinary misses.
package detection
