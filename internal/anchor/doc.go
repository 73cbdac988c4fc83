// Package anchor turns a resolved world position into a placed virtual
// object. It loads the asset to place, fits it to the detected footprint,
// and inserts exactly one anchor carrying the asset into a scene graph.
//
// # Scaling
//
// The uniform scale is the footprint's larger side divided by the asset's
// largest extent, clamped to a maximum. With the default maximum of 1.0 an
// asset is never enlarged beyond its authored size.
//
// # Drop Offset
//
// The asset is attached to its anchor at a local offset of (0, DropHeight,
// 0), so it appears above the surface and can settle onto it.
//
// # Thread Safety
//
// Scene and AssetCache are safe for concurrent use. Callers must still apply
// placements from the render context so scene changes are observed in order.
package anchor
