// Package imaging decodes, orients, scales and crops images for the image
// sources.
//
// # Orientation
//
// Encoded images may carry an EXIF orientation. Decode and Open always
// return upright pixels, and Info.DisplaySize reports the upright size
// without decoding pixel data. Apply maps stored pixels to upright ones
// for any of the eight orientations.
//
// # Scaling
//
// Scale implements request.SizeOption: full resolution returns the image
// unchanged, fit scales so the whole image lies inside the target and
// fill scales so the target is covered. Both preserve the aspect ratio and
// both may enlarge. Results use Lanczos resampling.
//
// # Cropping
//
// CroppingParameters describe a crop made in an editor view. RenderCrop
// composes the source orientation, the view layout and the user transform
// into one affine matrix and resamples the source through it. Areas of
// the output not covered by the source are filled with the background.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use on distinct
// images.
package imaging
