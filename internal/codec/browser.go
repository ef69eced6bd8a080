// browser.go — BrowserRequest/BrowserResponse/BrowserEvent payload shapes.
package codec

import "encoding/json"

// BrowserRequest action names (the "action" field of a request envelope).
const (
	ActionGetPageContent        = "get_page_content"
	ActionGetDomSnapshot        = "get_dom_snapshot"
	ActionExecuteJavascript     = "execute_javascript"
	ActionGetConsoleMessages    = "get_console_messages"
	ActionGetNetworkRequests    = "get_network_requests"
	ActionCaptureScreenshot     = "capture_screenshot"
	ActionGetPerformanceMetrics = "get_performance_metrics"
	ActionGetAccessibilityTree  = "get_accessibility_tree"
	ActionGetBrowserTabs        = "get_browser_tabs"
	ActionAttachDebugger        = "attach_debugger"
	ActionDetachDebugger        = "detach_debugger"
)

// Per-action param shapes.

type GetPageContentParams struct {
	IncludeMetadata bool `json:"include_metadata,omitempty"`
}

type GetDomSnapshotParams struct {
	MaxDepth      int  `json:"max_depth,omitempty"`
	IncludeStyles bool `json:"include_styles,omitempty"`
}

type ExecuteJavascriptParams struct {
	Code          string `json:"code"`
	ReturnByValue bool   `json:"return_by_value,omitempty"`
}

type GetConsoleMessagesParams struct {
	LevelFilter string `json:"level_filter,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type GetNetworkRequestsParams struct {
	IncludeBodies bool `json:"include_bodies,omitempty"`
	Limit         int  `json:"limit,omitempty"`
}

type CaptureScreenshotParams struct {
	Format  string      `json:"format,omitempty"`
	Quality int         `json:"quality,omitempty"`
	Clip    *ClipRegion `json:"clip,omitempty"`
}

type ClipRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type GetAccessibilityTreeParams struct {
	MaxDepth int `json:"max_depth,omitempty"`
}

// BrowserResponse is a flat tagged union over every response family plus
// the two debugger acks and the extension-side error shape.
type BrowserResponse struct {
	Type string `json:"type"`

	PageContent        *PageContent        `json:"page_content,omitempty"`
	DomSnapshot        *DomSnapshot        `json:"dom_snapshot,omitempty"`
	ConsoleMessages    []ConsoleMessage    `json:"console_messages,omitempty"`
	NetworkRequests    []NetworkRequest    `json:"network_requests,omitempty"`
	Screenshot         *Screenshot         `json:"screenshot,omitempty"`
	PerformanceMetrics *PerformanceMetrics `json:"performance_metrics,omitempty"`
	AccessibilityTree  *AccessibilityTree  `json:"accessibility_tree,omitempty"`
	Tabs               []TabInfo           `json:"tabs,omitempty"`
	JavascriptResult   json.RawMessage     `json:"javascript_result,omitempty"`
	DebuggerAttached   *bool               `json:"success,omitempty"`
	Message            string              `json:"message,omitempty"`
}

// Response type tags, mirroring the request action they answer.
const (
	RespPageContent        = "page_content"
	RespDomSnapshot        = "dom_snapshot"
	RespConsoleMessages    = "console_messages"
	RespNetworkRequests    = "network_requests"
	RespScreenshot         = "screenshot"
	RespPerformanceMetrics = "performance_metrics"
	RespAccessibilityTree  = "accessibility_tree"
	RespTabs               = "tabs"
	RespJavascriptResult   = "javascript_result"
	RespDebuggerAttached   = "debugger_attached"
	RespDebuggerDetached   = "debugger_detached"
	RespError              = "error"
)

// PageContent is the cacheable snapshot of a tab's rendered content.
// Freshness is a property of the cache entry that holds it, not of this
// payload — see cache.Entry.IsFresh.
type PageContent struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
	HTML  string `json:"html,omitempty"`
}

type DomSnapshot struct {
	HTML     string `json:"html"`
	MaxDepth int    `json:"max_depth,omitempty"`
}

type ConsoleMessage struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp"`
}

type NetworkRequest struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	Status    int    `json:"status,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Body      string `json:"body,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Screenshot struct {
	Format string `json:"format"`
	Data   string `json:"data"` // base64
}

type PerformanceMetrics struct {
	LoadTimeMs      float64 `json:"load_time_ms,omitempty"`
	DomContentMs    float64 `json:"dom_content_ms,omitempty"`
	FirstPaintMs    float64 `json:"first_paint_ms,omitempty"`
	MemoryUsedBytes int64   `json:"memory_used_bytes,omitempty"`
}

type AccessibilityTree struct {
	Root     json.RawMessage `json:"root"`
	MaxDepth int             `json:"max_depth,omitempty"`
}

type TabInfo struct {
	TabID  uint32 `json:"tab_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active,omitempty"`
}

// BrowserEvent type tags (the "type" field of a notification's event).
const (
	EventTabCreated            = "tab_created"
	EventTabUpdated            = "tab_updated"
	EventTabRemoved            = "tab_removed"
	EventPageLoaded            = "page_loaded"
	EventConsoleMessage        = "console_message"
	EventNetworkRequest        = "network_request"
	EventConnectionEstablished = "connection_established"
	EventConnectionLost        = "connection_lost"
)
