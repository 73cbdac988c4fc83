// Package geom provides the small amount of 3D math the anchoring flow needs:
// rigid transforms, rays, planes, and a pinhole camera that turns a screen
// point into a world-space ray.
//
// # Coordinate Systems
//
// World space follows the AR convention used throughout this module:
//   - Right-handed, meters
//   - +Y is up (gravity points along -Y)
//   - A camera looks down its local -Z axis with +Y as its local up
//
// Screen space is expressed in view points with the origin at the top-left
// corner, X increasing rightward and Y increasing downward. This matches
// the pixel convention of the imaging package and is the inverse of the
// normalized image space used by detection bounding boxes.
//
// # Purity
//
// Every function in this package is pure. Identical inputs always produce
// identical outputs, which is what makes ray casting idempotent.
package geom
