// server.go — the MCP surface: tool registration on an mcp.Server (the
// official MCP go-sdk), plus the JSON-RPC envelope that serves those tools
// over POST /mcp (initialize, tools/list, tools/call, resources/list,
// resources/read, notifications/initialized).
package mcprpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/dispatch"
)

// protocolVersion is the MCP wire version this bridge speaks. Pinned: the
// initialize response always advertises this version regardless of what the
// client offers.
const protocolVersion = "2024-11-05"

// serverName/serverVersion identify this bridge in the initialize handshake.
const (
	serverName    = "browser-mcp-rust-server"
	serverVersion = "1.0.0"
)

// toolHandler is the SDK's low-level handler shape. Returning a non-nil
// error from one is a JSON-RPC protocol failure; tool failures go through
// CallToolResult.SetError instead.
type toolHandler func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Server owns the MCP surface: an mcp.Server carrying the registered tool
// set, and the JSON-RPC envelope that serves it over POST /mcp.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	Cache      *cache.Cache

	mcp      *mcp.Server
	tools    []*mcp.Tool
	handlers map[string]toolHandler
}

// New creates a Server with every tool registered on its mcp.Server.
func New(d *dispatch.Dispatcher, c *cache.Cache) *Server {
	s := &Server{
		Dispatcher: d,
		Cache:      c,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		handlers: make(map[string]toolHandler),
	}
	for _, tool := range Tools() {
		s.register(tool)
	}
	return s
}

// MCP exposes the underlying mcp.Server so alternative transports can serve
// the same tool set.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// register adds one tool to the mcp.Server and records its handler for the
// envelope's tools/call path, so both share a single registration.
func (s *Server) register(tool *mcp.Tool) {
	h := s.dispatchHandler(tool.Name)
	s.mcp.AddTool(tool, mcp.ToolHandler(h))
	s.tools = append(s.tools, tool)
	s.handlers[tool.Name] = h
}

// dispatchHandler adapts the dispatcher to the SDK handler shape: decode
// req.Params.Arguments, dispatch, and wrap the result (or error) into a
// CallToolResult.
func (s *Server) dispatchHandler(name string) toolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if req.Params.Arguments != nil {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		result, err := s.Dispatcher.Dispatch(ctx, name, dispatch.Args(args))
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal result: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	}
}

// Handle decodes and serves a single JSON-RPC request or notification. It
// returns nil for notifications (per JSON-RPC 2.0 §4, no response is sent)
// and the encoded response body otherwise.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := newErrorResponse(nil, CodeParseError, "invalid JSON: "+err.Error())
		return encode(resp)
	}
	if req.HasInvalidID() {
		resp := newErrorResponse(nil, CodeInvalidRequest, "id must be a string, number, or absent")
		return encode(resp)
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		resp := newErrorResponse(req.ID, CodeInvalidRequest, "unsupported jsonrpc version "+req.JSONRPC)
		return encode(resp)
	}
	if req.Method == "" {
		resp := newErrorResponse(req.ID, CodeInvalidRequest, "method is required")
		return encode(resp)
	}

	resp := s.dispatchMethod(ctx, req)
	if req.IsNotification() {
		return nil
	}
	return encode(resp)
}

func (s *Server) dispatchMethod(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return Response{} // no response sent; IsNotification short-circuits Handle
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(req)
	case "resources/templates/list":
		return newResultResponse(req.ID, map[string]any{"resourceTemplates": []any{}})
	default:
		return newErrorResponse(req.ID, CodeMethodNotFound, "unknown method "+req.Method)
	}
}

func (s *Server) handleInitialize(req Request) Response {
	return newResultResponse(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      &mcp.Implementation{Name: serverName, Version: serverVersion},
		Capabilities:    Capabilities{},
	})
}

func (s *Server) handleToolsList(req Request) Response {
	return newResultResponse(req.ID, ToolsListResult{Tools: s.tools})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newErrorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
		}
	}

	h, ok := s.handlers[params.Name]
	if !ok {
		var res mcp.CallToolResult
		res.SetError(fmt.Errorf("unknown tool %q", params.Name))
		return newResultResponse(req.ID, &res)
	}

	result, err := h(ctx, &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: params.Name, Arguments: params.Arguments},
	})
	if err != nil {
		return newErrorResponse(req.ID, CodeInternalError, err.Error())
	}
	return newResultResponse(req.ID, result)
}

func (s *Server) handleResourcesList(req Request) Response {
	var resources []Resource
	for _, tab := range s.Cache.GetAllTabs() {
		logs, _ := s.Cache.GetConsoleLogs(tab.TabID)
		for _, uri := range dispatch.ResourceURIsForTab(tab.TabID, tab, len(logs) > 0) {
			resources = append(resources, Resource{URI: uri, Name: uri, MimeType: "application/json"})
		}
	}
	return newResultResponse(req.ID, ResourcesListResult{Resources: resources})
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(req Request) Response {
	var params resourcesReadParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newErrorResponse(req.ID, CodeInvalidParams, "invalid resources/read params: "+err.Error())
		}
	}

	content, err := s.Dispatcher.ResourceContent(params.URI)
	if err != nil {
		return newErrorResponse(req.ID, CodeInvalidParams, err.Error())
	}
	body, marshalErr := json.Marshal(content)
	if marshalErr != nil {
		return newErrorResponse(req.ID, CodeInternalError, "failed to marshal resource: "+marshalErr.Error())
	}
	return newResultResponse(req.ID, ResourcesReadResult{
		Contents: []ResourceContent{{URI: params.URI, MimeType: "application/json", Text: string(body)}},
	})
}

func encode(resp Response) []byte {
	resp.JSONRPC = "2.0"
	body, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"failed to marshal response"}}`)
	}
	return body
}
