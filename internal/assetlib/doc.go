// Package assetlib defines the platform asset-manager capability used by
// AssetImageSource and provides Library, a directory-backed implementation.
//
// # Behaviour
//
// Library mimics the quirks of a platform photo library so that the
// asset backend can be exercised end to end:
//   - Opportunistic requests call back first with a blurred, low
//     resolution degraded image and then with the final image.
//   - With network access allowed, progress is reported in steps that
//     never reach 1.0.
//   - A cancelled request still calls back once, with Cancelled set.
//
// Handlers run on goroutines owned by the library; there is no bound on
// the number of concurrent requests.
package assetlib
