package mcprpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/codec"
	"github.com/gasoline-mcp/browser-bridge/internal/dispatch"
	"github.com/gasoline-mcp/browser-bridge/internal/pending"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
)

func newTestServer() *Server {
	reg := registry.New()
	tbl := pending.New()
	c := cache.New()
	d := dispatch.New(reg, tbl, c)
	return New(d, c)
}

// toolResultProbe mirrors the wire shape of mcp.CallToolResult.
type toolResultProbe struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func TestHandleInitializeReturnsServerInfo(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))

	var decoded Response
	if err := json.Unmarshal(resp, &decoded); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatalf("invalid initialize result: %v", err)
	}
	if result.ProtocolVersion != protocolVersion {
		t.Fatalf("unexpected protocol version %q", result.ProtocolVersion)
	}
	if result.ServerInfo == nil || result.ServerInfo.Name != serverName {
		t.Fatalf("unexpected server info %+v", result.ServerInfo)
	}
}

func TestHandleNotificationInitializedReturnsNoResponse(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if resp != nil {
		t.Fatalf("expected no response for a notification, got %s", resp)
	}
}

func TestHandleToolsListIncludesAllTools(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	var decoded Response
	_ = json.Unmarshal(resp, &decoded)
	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatalf("invalid tools/list result: %v", err)
	}
	if len(result.Tools) != len(dispatch.ToolNames) {
		t.Fatalf("expected %d tools, got %d", len(dispatch.ToolNames), len(result.Tools))
	}
	for i, name := range dispatch.ToolNames {
		if result.Tools[i].Name != name {
			t.Fatalf("tool %d: expected %q, got %q", i, name, result.Tools[i].Name)
		}
		if result.Tools[i].InputSchema["type"] != "object" {
			t.Fatalf("tool %q: input schema missing object type", name)
		}
	}
}

func TestHandleToolsCallUnknownConnectionReturnsIsError(t *testing.T) {
	s := newTestServer()
	params := `{"name":"get_page_content","arguments":{"tabId":5}}`
	raw := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":` + params + `}`
	resp := s.Handle(context.Background(), []byte(raw))

	var decoded Response
	_ = json.Unmarshal(resp, &decoded)
	var result toolResultProbe
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatalf("invalid tools/call result: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError true with no bound connection, got %+v", result)
	}
}

func TestHandleToolsCallFastPathFromCache(t *testing.T) {
	s := newTestServer()
	s.Cache.UpdatePageContent(11, &codec.PageContent{URL: "https://x", Title: "x", Text: "body"})

	params := `{"name":"get_page_content","arguments":{"tabId":11}}`
	raw := `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":` + params + `}`
	resp := s.Handle(context.Background(), []byte(raw))

	var decoded Response
	_ = json.Unmarshal(resp, &decoded)
	var result toolResultProbe
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatalf("invalid tools/call result: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("expected one text content block, got %+v", result.Content)
	}
	var payload struct {
		URL       string `json:"url"`
		FromCache bool   `json:"from_cache"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		t.Fatalf("content text is not the tool payload: %v", err)
	}
	if payload.URL != "https://x" || !payload.FromCache {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleToolsCallUnknownToolReturnsIsError(t *testing.T) {
	s := newTestServer()
	raw := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"bogus_tool"}}`
	resp := s.Handle(context.Background(), []byte(raw))

	var decoded Response
	_ = json.Unmarshal(resp, &decoded)
	var result toolResultProbe
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatalf("invalid tools/call result: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError true for unknown tool, got %+v", result)
	}
}

func TestHandleResourcesReadNotFound(t *testing.T) {
	s := newTestServer()
	raw := `{"jsonrpc":"2.0","id":5,"method":"resources/read","params":{"uri":"browser://tab/9/content"}}`
	resp := s.Handle(context.Background(), []byte(raw))

	var decoded Response
	_ = json.Unmarshal(resp, &decoded)
	if decoded.Error == nil || decoded.Error.Code != CodeInvalidParams {
		t.Fatalf("expected invalid params error for missing resource, got %+v", decoded)
	}
}

func TestHandleUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":6,"method":"bogus"}`))

	var decoded Response
	_ = json.Unmarshal(resp, &decoded)
	if decoded.Error == nil || decoded.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", decoded)
	}
}

func TestHandleInvalidJSONReturnsParseError(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{not json`))

	var decoded Response
	_ = json.Unmarshal(resp, &decoded)
	if decoded.Error == nil || decoded.Error.Code != CodeParseError {
		t.Fatalf("expected ParseError, got %+v", decoded)
	}
}
