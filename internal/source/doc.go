// Package source implements the ImageSource contract and its backends.
//
// # Backends
//
//   - LocalImageSource decodes a file on disk.
//   - RemoteImageSource fetches a URL through a download.Downloader and
//     reports download start and finish.
//   - AssetImageSource reads from an assetlib.Manager.
//   - CroppedImageSource renders a crop of any other source once and then
//     serves the result as a local file.
//
// Images are always delivered upright; EXIF orientation is applied before
// scaling.
//
// # Delivery and cancellation
//
// Each request gets a process-unique request.RequestID and a ticket that
// gates its handler. Results are marshalled onto a Dispatcher; by default
// that is a single serial goroutine shared by the process. After
// CancelRequest returns, the handler for that id is never called, even if
// the backend finishes later.
//
// Work runs on the bounded queue of the backend kind (see package queue).
// Work still waiting for a slot when its request is cancelled never runs.
package source
