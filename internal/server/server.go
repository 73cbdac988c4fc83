package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/ar-anchor-mcp/internal/anchor"
	"github.com/ironsheep/ar-anchor-mcp/internal/app"
	"github.com/ironsheep/ar-anchor-mcp/internal/render"
	"github.com/ironsheep/ar-anchor-mcp/internal/session"
)

// Version is reported in the initialize handshake.
var Version = "0.1.0"

// Server answers MCP requests against one shared scene.
type Server struct {
	app   *app.Components
	log   *logrus.Entry
	scene *anchor.Scene
	loop  *render.Loop

	ctx  context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session.Session

	// keepFinished bounds how many finished sessions stay listable.
	keepFinished int
}

// DefaultKeepFinished is the number of finished sessions a server retains.
// Older finished sessions are evicted when a new one starts; running
// sessions are never evicted.
const DefaultKeepFinished = 32

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolFailed     = -32000
)

// protocolVersion is the MCP revision spoken by this server.
const protocolVersion = "2024-11-05"

// MCPRequest is a JSON-RPC request or notification. Notifications carry no ID.
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse carries either Result or Error.
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError is the JSON-RPC error object.
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func resultResponse(id interface{}, result interface{}) *MCPResponse {
	return &MCPResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: message, Data: data},
	}
}

// New creates a server around components built at startup. The server owns
// one scene and one render loop shared by all of its sessions; call Close to
// stop them.
func New(c *app.Components) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		app:      c,
		log:      c.Log.WithField("component", "mcp"),
		scene:    anchor.NewScene(),
		loop:     render.NewLoop(),
		ctx:      ctx,
		stop:     stop,
		sessions: make(map[string]*session.Session),

		keepFinished: DefaultKeepFinished,
	}
	go s.loop.Run(ctx)
	return s
}

// Close cancels every running session and stops the render loop.
func (s *Server) Close() {
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.Cancel()
	}
	s.mu.Unlock()
	s.stop()
	<-s.loop.Done()
}

// Run serves MCP on stdin and stdout until stdin closes.
func (s *Server) Run() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC message per line from r and writes responses to
// w, one per line. Lines that are not JSON get a parse error with a null ID.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Frames arrive as paths, but tool arguments can still be long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp *MCPResponse
		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("Failed to parse request")
			resp = errorResponse(nil, codeParseError, "Parse error", err.Error())
		} else {
			resp = s.handleRequest(&req)
		}
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

// handleRequest routes a request to its method handler. Notifications
// never get a response.
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	s.log.WithField("method", req.Method).Debug("Request")
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return resultResponse(req.ID, map[string]interface{}{})
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found: "+req.Method, nil)
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return resultResponse(req.ID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		"serverInfo":      map[string]interface{}{"name": "ar-anchor-mcp", "version": Version},
	})
}
