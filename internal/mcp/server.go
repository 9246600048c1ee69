// Package mcp serves the note search over the Model Context Protocol on
// stdin/stdout. Only protocol messages are written to the output stream.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/law-makers/rednote/internal/engine"
	"github.com/rs/zerolog/log"
)

// ServerName is reported to clients in initialize
const ServerName = "rednote"

// Server handles MCP protocol requests
type Server struct {
	searcher engine.Searcher
	login    engine.LoginChecker
	version  string
}

// NewServer creates a new MCP server. login may be nil, in which case the
// login tool reports an error.
func NewServer(searcher engine.Searcher, login engine.LoginChecker, version string) *Server {
	return &Server{searcher: searcher, login: login, version: version}
}

// HandleRequest processes an MCP request and returns a response.
// Returns nil for notifications (requests without ID).
func (s *Server) HandleRequest(ctx context.Context, req *Request) *Response {
	id := req.ID

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(id)
	case "tools/list":
		resp = s.handleToolsList(id)
	case "tools/call":
		resp = s.handleToolsCall(ctx, req, id)
	case "ping":
		resp = s.resultResponse(id, map[string]any{})
	default:
		resp = s.errorResponse(id, MethodNotFound, "Method not found: "+req.Method)
	}

	if id == nil {
		return nil
	}
	return resp
}

func (s *Server) handleInitialize(id any) *Response {
	return s.resultResponse(id, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": s.version,
		},
	})
}

func (s *Server) handleToolsList(id any) *Response {
	return s.resultResponse(id, map[string]any{"tools": getAllTools()})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request, id any) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(id, InvalidParams, "Invalid parameters")
	}

	log.Debug().Str("tool", params.Name).Msg("Tool call")
	switch params.Name {
	case "search_note":
		return s.handleSearchNote(ctx, id, params.Arguments)
	case "login":
		return s.handleLogin(ctx, id, params.Arguments)
	default:
		return s.errorResponse(id, MethodNotFound, "Unknown tool: "+params.Name)
	}
}

// Serve reads newline-delimited requests from r and writes responses to w
// until r is exhausted or ctx is cancelled. Requests are handled one at a time.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	// MCP clients expect compact JSON
	encoder := json.NewEncoder(w)

	type line struct {
		data []byte
		err  error
	}
	lines := make(chan line)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(r)
		for {
			data, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(data)) > 0 {
				select {
				case lines <- line{data: data}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					select {
					case lines <- line{err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()

	log.Debug().Str("server", ServerName).Msg("MCP server listening on stdio")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			if l.err != nil {
				return fmt.Errorf("read request: %w", l.err)
			}

			resp := s.handleLine(ctx, l.data)
			if resp == nil {
				continue
			}
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

func (s *Server) handleLine(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			// JSON-RPC requires ID to be string or number, not null
			return s.errorResponse(0, ParseError, "Failed to parse request")
		}
		return s.errorResponse(0, InvalidRequest, "Invalid request: "+err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.ID == nil {
			return nil
		}
		return s.errorResponse(req.ID, InvalidRequest, "Invalid request")
	}
	return s.HandleRequest(ctx, &req)
}

func (s *Server) resultResponse(id, result any) *Response {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return s.errorResponse(id, InternalError, fmt.Sprintf("Failed to marshal result: %v", err))
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  json.RawMessage(resultJSON),
	}
}

func (s *Server) toolResponse(id any, result ToolResult) *Response {
	return s.resultResponse(id, result)
}

func (s *Server) successResponse(id, data any) *Response {
	return s.toolResponse(id, ToolResult{
		Content: []Content{{Type: "text", Text: formatResult(data)}},
	})
}

func (s *Server) errorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &ErrorObject{
			Code:    code,
			Message: message,
		},
	}
}

func formatResult(data any) string {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(jsonData)
}
