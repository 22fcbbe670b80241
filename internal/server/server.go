package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/logging"
	"github.com/ironsheep/image-source/internal/request"
	"github.com/ironsheep/image-source/internal/source"
)

// Server exposes image sources over MCP on a line-delimited JSON-RPC stream.
type Server struct {
	factory     *source.Factory
	logger      *zap.Logger
	in          io.Reader
	out         io.Writer
	waitTimeout time.Duration
	version     string

	writeMu sync.Mutex
	enc     *json.Encoder

	mu          sync.Mutex
	sourceLimit int
	sources     *lru.Cache
	pending     map[string]pendingRequest
}

// DefaultSourceLimit is the number of sources kept between calls.
const DefaultSourceLimit = 128

// cachedSource is a resolved source plus everything built for it that
// must be closed when it is dropped. closers runs innermost first; close
// walks it backwards.
type cachedSource struct {
	src     source.ImageSource
	closers []io.Closer
}

func (c cachedSource) close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// pendingRequest remembers which source issued a request id so that
// image_cancel can reach it.
type pendingRequest struct {
	src source.ImageSource
	id  request.RequestID
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) { s.in, s.out = in, out }
}

// WithWaitTimeout bounds how long image_request waits for a final result.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) { s.waitTimeout = d }
}

// WithSourceLimit bounds how many resolved sources are kept. The least
// recently used one is closed when the limit is exceeded.
func WithSourceLimit(n int) Option {
	return func(s *Server) { s.sourceLimit = n }
}

// WithVersion sets the version reported by initialize.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server that builds its sources with factory.
func New(factory *source.Factory, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		factory:     factory,
		logger:      logging.OrNop(logger).Named("server"),
		in:          os.Stdin,
		out:         os.Stdout,
		waitTimeout: 30 * time.Second,
		version:     "dev",
		sourceLimit: DefaultSourceLimit,
		pending:     make(map[string]pendingRequest),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sourceLimit <= 0 {
		s.sourceLimit = DefaultSourceLimit
	}
	// NewWithEvict only fails for a non-positive size.
	s.sources, _ = lru.NewWithEvict(s.sourceLimit, s.evicted)
	s.enc = json.NewEncoder(s.out)
	return s
}

// Run reads requests until the input is exhausted.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(s.in)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", zap.Error(err))
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			s.write(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// write serializes one message. Notifications arrive from dispatcher
// goroutines, so writes are locked.
func (s *Server) write(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		s.logger.Warn("failed to encode message", zap.Error(err))
	}
}

func (s *Server) notify(method string, params interface{}) {
	s.write(&MCPNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// evicted closes a source dropped from the cache. Requests still running
// on it deliver no image.
func (s *Server) evicted(key, value interface{}) {
	entry := value.(cachedSource)
	if len(entry.closers) == 0 {
		return
	}
	s.logger.Debug("source evicted", zap.String("source", key.(string)))
	if err := entry.close(); err != nil {
		s.logger.Warn("closing evicted source", zap.String("source", key.(string)), zap.Error(err))
	}
}

// Close releases every cropped source's rendered file.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, key := range s.sources.Keys() {
		v, ok := s.sources.Peek(key)
		if !ok {
			continue
		}
		if err := v.(cachedSource).close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "image-source",
				"version": s.version,
			},
		},
	}
}
