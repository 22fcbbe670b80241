package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	imgutil "github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/request"
	"github.com/ironsheep/image-source/internal/source"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_request", "image_size").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_request":
		return s.handleImageRequest(args)
	case "image_cancel":
		return s.handleImageCancel(args)
	case "image_size":
		return s.handleImageSize(args)
	case "image_data":
		return s.handleImageData(args)
	case "image_equal":
		return s.handleImageEqual(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Source resolution ===

type sourceSpec struct {
	Path  string    `json:"path,omitempty"`
	URL   string    `json:"url,omitempty"`
	Asset string    `json:"asset,omitempty"`
	Crop  *cropSpec `json:"crop,omitempty"`
}

type cropSpec struct {
	Source sourceSpec                 `json:"source"`
	Params imgutil.CroppingParameters `json:"params"`
}

// resolve returns the source for spec, reusing a recent instance for an
// identical spec so that cropped sources render once while cached.
func (s *Server) resolve(spec sourceSpec) (source.ImageSource, error) {
	if spec.Crop != nil {
		spec.Crop.Params.SourceOrientation = spec.Crop.Params.SourceOrientation.Normalized()
	}
	keyBytes, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	key := string(keyBytes)

	if v, ok := s.sources.Get(key); ok {
		return v.(cachedSource).src, nil
	}

	entry, err := s.build(spec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.sources.Get(key); ok {
		_ = entry.close()
		return v.(cachedSource).src, nil
	}
	s.sources.Add(key, entry)
	return entry.src, nil
}

// build creates the source for spec. The original of a crop is built
// for that crop alone and closed with it.
func (s *Server) build(spec sourceSpec) (cachedSource, error) {
	set := 0
	for _, present := range []bool{spec.Path != "", spec.URL != "", spec.Asset != "", spec.Crop != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return cachedSource{}, fmt.Errorf("source must set exactly one of path, url, asset or crop")
	}

	switch {
	case spec.Path != "":
		return cachedSource{src: s.factory.Local(spec.Path)}, nil
	case spec.URL != "":
		src, err := s.factory.Remote(spec.URL)
		if err != nil {
			return cachedSource{}, err
		}
		return cachedSource{src: src}, nil
	case spec.Asset != "":
		src, err := s.factory.Asset(spec.Asset)
		if err != nil {
			return cachedSource{}, err
		}
		return cachedSource{src: src}, nil
	default:
		original, err := s.build(spec.Crop.Source)
		if err != nil {
			return cachedSource{}, fmt.Errorf("crop source: %w", err)
		}
		crop, err := s.factory.Cropped(original.src, spec.Crop.Params)
		if err != nil {
			_ = original.close()
			return cachedSource{}, err
		}
		return cachedSource{src: crop, closers: append(original.closers, crop)}, nil
	}
}

// await waits for a dispatcher callback, bounded by the wait timeout.
func await[T any](s *Server, ch <-chan T, what string) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-time.After(s.waitTimeout):
		var zero T
		return zero, fmt.Errorf("timed out waiting for %s", what)
	}
}

// === image_request ===

type imageRequestArgs struct {
	Source       sourceSpec `json:"source"`
	Size         string     `json:"size"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Delivery     string     `json:"delivery"`
	IncludeImage bool       `json:"include_image"`
	Wait         *bool      `json:"wait"`
}

func (a imageRequestArgs) options() (request.Options, error) {
	var opts request.Options
	target := request.Size{Width: a.Width, Height: a.Height}
	switch a.Size {
	case "", "full":
		opts.Size = request.FullResolution()
	case "fit", "fill":
		if target.IsEmpty() {
			return opts, fmt.Errorf("size %q needs positive width and height", a.Size)
		}
		if a.Size == "fit" {
			opts.Size = request.FitSize(target)
		} else {
			opts.Size = request.FillSize(target)
		}
	default:
		return opts, fmt.Errorf("unknown size mode: %s", a.Size)
	}
	mode, ok := request.ParseDeliveryMode(a.Delivery)
	if !ok {
		return opts, fmt.Errorf("unknown delivery mode: %s", a.Delivery)
	}
	opts.DeliveryMode = mode
	return opts, nil
}

// Delivery is one handler call reported back to the client.
type Delivery struct {
	RequestID string `json:"request_id"`
	Degraded  bool   `json:"degraded"`
	OK        bool   `json:"ok"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	PNGBase64 string `json:"png_base64,omitempty"`
}

// ImageRequestResult is the result of image_request.
type ImageRequestResult struct {
	RequestID     string     `json:"request_id"`
	ProgressToken string     `json:"progress_token"`
	Deliveries    []Delivery `json:"deliveries,omitempty"`
}

func (s *Server) newDelivery(r request.Result, includeImage bool) Delivery {
	d := Delivery{RequestID: r.RequestID.String(), Degraded: r.Degraded, OK: r.Image != nil}
	if r.Image == nil {
		return d
	}
	b := r.Image.Bounds()
	d.Width, d.Height = b.Dx(), b.Dy()
	if includeImage {
		enc, err := encodePNG(r.Image)
		if err != nil {
			s.logger.Warn("failed to encode delivery", zap.Error(err))
		}
		d.PNGBase64 = enc
	}
	return d
}

func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// progressOptions reports download start and finish as MCP progress
// notifications under token.
func (s *Server) progressOptions(opts request.Options, token string) request.Options {
	return opts.WithDownloadCallbacks(
		func() {
			s.notify("notifications/progress", map[string]interface{}{
				"progressToken": token,
				"progress":      0,
				"total":         1,
			})
		},
		func() {
			s.notify("notifications/progress", map[string]interface{}{
				"progressToken": token,
				"progress":      1,
				"total":         1,
			})
		},
	)
}

func (s *Server) handleImageRequest(args json.RawMessage) (interface{}, error) {
	var a imageRequestArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	opts, err := a.options()
	if err != nil {
		return nil, err
	}
	src, err := s.resolve(a.Source)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	opts = s.progressOptions(opts, token)

	if a.Wait != nil && !*a.Wait {
		return s.startRequest(src, opts, token, a.IncludeImage), nil
	}

	var mu sync.Mutex
	var deliveries []Delivery
	final := make(chan struct{})
	id := src.RequestImage(opts, func(r request.Result) {
		d := s.newDelivery(r, a.IncludeImage)
		mu.Lock()
		deliveries = append(deliveries, d)
		mu.Unlock()
		if !r.Degraded {
			close(final)
		}
	})
	if _, err := await(s, final, "image"); err != nil {
		src.CancelRequest(id)
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return &ImageRequestResult{RequestID: id.String(), ProgressToken: token, Deliveries: deliveries}, nil
}

// startRequest issues a request whose deliveries are reported as
// notifications. The id stays cancellable until the final delivery.
func (s *Server) startRequest(src source.ImageSource, opts request.Options, token string, includeImage bool) *ImageRequestResult {
	var finished atomic.Bool
	id := src.RequestImage(opts, func(r request.Result) {
		s.notify("notifications/image_result", s.newDelivery(r, includeImage))
		if !r.Degraded {
			finished.Store(true)
			s.mu.Lock()
			delete(s.pending, r.RequestID.String())
			s.mu.Unlock()
		}
	})

	s.mu.Lock()
	if !finished.Load() {
		s.pending[id.String()] = pendingRequest{src: src, id: id}
	}
	s.mu.Unlock()
	return &ImageRequestResult{RequestID: id.String(), ProgressToken: token}
}

// === image_cancel ===

type imageCancelArgs struct {
	RequestID string `json:"request_id"`
}

// CancelResult is the result of image_cancel.
type CancelResult struct {
	RequestID string `json:"request_id"`
	Cancelled bool   `json:"cancelled"`
}

func (s *Server) handleImageCancel(args json.RawMessage) (interface{}, error) {
	var a imageCancelArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	s.mu.Lock()
	p, ok := s.pending[a.RequestID]
	delete(s.pending, a.RequestID)
	s.mu.Unlock()
	if ok {
		p.src.CancelRequest(p.id)
	}
	return &CancelResult{RequestID: a.RequestID, Cancelled: ok}, nil
}

// === image_size ===

type sourceArgs struct {
	Source sourceSpec `json:"source"`
}

// SizeResult is the result of image_size.
type SizeResult struct {
	Width  int  `json:"width"`
	Height int  `json:"height"`
	OK     bool `json:"ok"`
}

func (s *Server) handleImageSize(args json.RawMessage) (interface{}, error) {
	var a sourceArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	src, err := s.resolve(a.Source)
	if err != nil {
		return nil, err
	}
	ch := make(chan SizeResult, 1)
	src.ImageSize(func(size request.Size, ok bool) {
		ch <- SizeResult{Width: size.Width, Height: size.Height, OK: ok}
	})
	res, err := await(s, ch, "size")
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// === image_data ===

type imageDataArgs struct {
	Source      sourceSpec `json:"source"`
	IncludeData bool       `json:"include_data"`
}

// DataResult is the result of image_data.
type DataResult struct {
	OK          bool   `json:"ok"`
	Bytes       int    `json:"bytes"`
	Format      string `json:"format,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Orientation int    `json:"orientation,omitempty"`
	DataBase64  string `json:"data_base64,omitempty"`
}

func (s *Server) handleImageData(args json.RawMessage) (interface{}, error) {
	var a imageDataArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	src, err := s.resolve(a.Source)
	if err != nil {
		return nil, err
	}
	ch := make(chan []byte, 1)
	src.FullResolutionImageData(func(data []byte) { ch <- data })
	data, err := await(s, ch, "data")
	if err != nil {
		return nil, err
	}

	res := &DataResult{OK: data != nil, Bytes: len(data)}
	if data == nil {
		return res, nil
	}
	if info, err := imgutil.ProbeBytes(data); err == nil {
		res.Format = info.Format
		res.Width, res.Height = info.Width, info.Height
		res.Orientation = int(info.Orientation)
	}
	if a.IncludeData {
		res.DataBase64 = base64.StdEncoding.EncodeToString(data)
	}
	return res, nil
}

// === image_equal ===

type imageEqualArgs struct {
	A sourceSpec `json:"a"`
	B sourceSpec `json:"b"`
}

func (s *Server) handleImageEqual(args json.RawMessage) (interface{}, error) {
	var a imageEqualArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	first, err := s.resolve(a.A)
	if err != nil {
		return nil, err
	}
	second, err := s.resolve(a.B)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"equal": first.IsEqualTo(second)}, nil
}
