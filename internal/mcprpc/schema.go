// schema.go — MCP tool definitions for tools/list: one mcp.Tool literal
// per operation, describing its JSON Schema input shape.
package mcprpc

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gasoline-mcp/browser-bridge/internal/dispatch"
)

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Tools lists every tool definition in the stable order of dispatch.ToolNames.
func Tools() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        dispatch.ToolGetPageContent,
			Description: "Read the current page's URL, title, visible text, and HTML for a tab. Served from cache when fresh (30s).",
			InputSchema: inputSchema(map[string]any{
				"tabId":            map[string]any{"type": "number", "description": "Target tab id; defaults to tab 1 when omitted (no current-tab tracking)"},
				"include_metadata": map[string]any{"type": "boolean", "description": "Include extra page metadata"},
			}, nil),
		},
		{
			Name:        dispatch.ToolGetDomSnapshot,
			Description: "Read a serialized DOM snapshot for a tab.",
			InputSchema: inputSchema(map[string]any{
				"tabId":          map[string]any{"type": "number"},
				"max_depth":      map[string]any{"type": "number", "description": "Maximum DOM tree depth to serialize"},
				"include_styles": map[string]any{"type": "boolean"},
			}, nil),
		},
		{
			Name:        dispatch.ToolExecuteJavascript,
			Description: "Execute JavaScript in the context of a tab and return its result.",
			InputSchema: inputSchema(map[string]any{
				"tabId":           map[string]any{"type": "number"},
				"code":            map[string]any{"type": "string", "description": "JavaScript source to evaluate"},
				"return_by_value": map[string]any{"type": "boolean"},
			}, []string{"code"}),
		},
		{
			Name:        dispatch.ToolGetConsoleMessages,
			Description: "Read recent console log entries for a tab (bounded to the last 1000).",
			InputSchema: inputSchema(map[string]any{
				"tabId":        map[string]any{"type": "number"},
				"level_filter": map[string]any{"type": "string", "description": "Exact level to filter by (e.g. error)"},
				"limit":        map[string]any{"type": "number", "description": "Max entries to return"},
			}, nil),
		},
		{
			Name:        dispatch.ToolGetNetworkRequests,
			Description: "Read recent network requests for a tab (bounded to the last 500).",
			InputSchema: inputSchema(map[string]any{
				"tabId":          map[string]any{"type": "number"},
				"include_bodies": map[string]any{"type": "boolean", "description": "Include request/response bodies"},
				"limit":          map[string]any{"type": "number"},
			}, nil),
		},
		{
			Name:        dispatch.ToolCaptureScreenshot,
			Description: "Capture a screenshot of a tab. Defaults to PNG.",
			InputSchema: inputSchema(map[string]any{
				"tabId":   map[string]any{"type": "number"},
				"format":  map[string]any{"type": "string", "enum": []string{"png", "jpeg"}},
				"quality": map[string]any{"type": "number", "description": "JPEG quality 0-100"},
			}, nil),
		},
		{
			Name:        dispatch.ToolGetPerformanceMetrics,
			Description: "Read page performance metrics (load time, DOM content time, memory) for a tab.",
			InputSchema: inputSchema(map[string]any{
				"tabId": map[string]any{"type": "number"},
			}, nil),
		},
		{
			Name:        dispatch.ToolGetAccessibilityTree,
			Description: "Read the accessibility tree for a tab.",
			InputSchema: inputSchema(map[string]any{
				"tabId":     map[string]any{"type": "number"},
				"max_depth": map[string]any{"type": "number"},
			}, nil),
		},
		{
			Name:        dispatch.ToolGetBrowserTabs,
			Description: "List open browser tabs known to the connected extension.",
			InputSchema: inputSchema(map[string]any{}, nil),
		},
		{
			Name:        dispatch.ToolAttachDebugger,
			Description: "Attach the Chrome DevTools Protocol debugger to a tab. tabId is required.",
			InputSchema: inputSchema(map[string]any{
				"tabId": map[string]any{"type": "number"},
			}, []string{"tabId"}),
		},
		{
			Name:        dispatch.ToolDetachDebugger,
			Description: "Detach the Chrome DevTools Protocol debugger from a tab. tabId is required.",
			InputSchema: inputSchema(map[string]any{
				"tabId": map[string]any{"type": "number"},
			}, []string{"tabId"}),
		},
	}
}
