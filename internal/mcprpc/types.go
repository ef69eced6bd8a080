// types.go — typed results for the JSON-RPC envelope. Tool and content
// shapes come from the MCP go-sdk (mcp.Tool, mcp.CallToolResult); the
// envelope-level wrappers below exist for the handshake literal and the
// resource surface.
package mcprpc

import "github.com/modelcontextprotocol/go-sdk/mcp"

// InitializeResult is the result of an MCP initialize request.
type InitializeResult struct {
	ProtocolVersion string              `json:"protocolVersion"`
	ServerInfo      *mcp.Implementation `json:"serverInfo"`
	Capabilities    Capabilities        `json:"capabilities"`
}

// Capabilities declares the server's MCP capabilities.
type Capabilities struct {
	Tools     ToolsCapability     `json:"tools"`
	Resources ResourcesCapability `json:"resources"`
}

// ToolsCapability declares tool support (empty object per the MCP wire format).
type ToolsCapability struct{}

// ResourcesCapability declares resource support.
type ResourcesCapability struct{}

// ToolsListResult is the result of a tools/list request.
type ToolsListResult struct {
	Tools []*mcp.Tool `json:"tools"`
}

// Resource describes one addressable resource for resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourcesListResult is the result of a resources/list request.
type ResourcesListResult struct {
	Resources []Resource `json:"resources"`
}

// ResourceContent is one entry of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ResourcesReadResult is the result of a resources/read request.
type ResourcesReadResult struct {
	Contents []ResourceContent `json:"contents"`
}
