// tools.go — per-tool specifics: the MCP tool names, their
// parameter/response shapes, and the resource URI surface.
package dispatch

import (
	"context"
	"encoding/base64"
	"regexp"
	"strconv"
	"time"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/codec"
)

// Tool names exposed via tools/list.
const (
	ToolGetPageContent        = "get_page_content"
	ToolGetDomSnapshot        = "get_dom_snapshot"
	ToolExecuteJavascript     = "execute_javascript"
	ToolGetConsoleMessages    = "get_console_messages"
	ToolGetNetworkRequests    = "get_network_requests"
	ToolCaptureScreenshot     = "capture_screenshot"
	ToolGetPerformanceMetrics = "get_performance_metrics"
	ToolGetAccessibilityTree  = "get_accessibility_tree"
	ToolGetBrowserTabs        = "get_browser_tabs"
	ToolAttachDebugger        = "attach_debugger"
	ToolDetachDebugger        = "detach_debugger"
)

// ToolNames lists every tool in a stable order, for tools/list.
var ToolNames = []string{
	ToolGetPageContent,
	ToolGetDomSnapshot,
	ToolExecuteJavascript,
	ToolGetConsoleMessages,
	ToolGetNetworkRequests,
	ToolCaptureScreenshot,
	ToolGetPerformanceMetrics,
	ToolGetAccessibilityTree,
	ToolGetBrowserTabs,
	ToolAttachDebugger,
	ToolDetachDebugger,
}

// PageContentResult is returned by get_page_content.
type PageContentResult struct {
	TabID  uint32 `json:"tab_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	HTML   string `json:"html,omitempty"`
	Cached bool   `json:"from_cache"`
}

func (d *Dispatcher) getPageContent(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}

	if entry, ok := d.Cache.GetTabData(tab); ok && entry.PageContent != nil {
		if isFresh(entry.LastUpdated, pageContentFreshness) {
			pc := entry.PageContent
			return PageContentResult{TabID: tab, URL: pc.URL, Title: pc.Title, Text: pc.Text, HTML: pc.HTML, Cached: true}, nil
		}
	}

	includeMetadata, _ := args["include_metadata"].(bool)
	resp, err := d.sendRequest(ctx, tab, codec.ActionGetPageContent, codec.GetPageContentParams{IncludeMetadata: includeMetadata})
	if err != nil {
		return nil, err
	}
	if resp.Type != codec.RespPageContent || resp.PageContent == nil {
		return nil, errInternal("unexpected response type for get_page_content")
	}
	d.Cache.UpdatePageContent(tab, resp.PageContent)
	pc := resp.PageContent
	return PageContentResult{TabID: tab, URL: pc.URL, Title: pc.Title, Text: pc.Text, HTML: pc.HTML, Cached: false}, nil
}

// isFresh checks a cache entry's last_updated against the freshness window.
func isFresh(lastUpdated time.Time, maxAge time.Duration) bool {
	now := time.Now()
	if now.Before(lastUpdated) {
		return false // future timestamp (clock skew) is never fresh
	}
	return now.Sub(lastUpdated) <= maxAge
}

type DomSnapshotResult struct {
	TabID uint32 `json:"tab_id"`
	HTML  string `json:"html"`
}

func (d *Dispatcher) getDomSnapshot(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}
	maxDepth, _ := args["max_depth"].(float64)
	includeStyles, _ := args["include_styles"].(bool)

	resp, err := d.sendRequest(ctx, tab, codec.ActionGetDomSnapshot, codec.GetDomSnapshotParams{MaxDepth: int(maxDepth), IncludeStyles: includeStyles})
	if err != nil {
		return nil, err
	}
	if resp.Type != codec.RespDomSnapshot || resp.DomSnapshot == nil {
		return nil, errInternal("unexpected response type for get_dom_snapshot")
	}
	d.Cache.UpdateDomSnapshot(tab, resp.DomSnapshot)
	return DomSnapshotResult{TabID: tab, HTML: resp.DomSnapshot.HTML}, nil
}

type JavascriptResult struct {
	TabID  uint32 `json:"tab_id"`
	Result any    `json:"result"`
}

func (d *Dispatcher) executeJavascript(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}
	code, _ := args["code"].(string)
	if code == "" {
		return nil, errInvalidParameters("code is required")
	}
	returnByValue, _ := args["return_by_value"].(bool)

	resp, err := d.sendRequest(ctx, tab, codec.ActionExecuteJavascript, codec.ExecuteJavascriptParams{Code: code, ReturnByValue: returnByValue})
	if err != nil {
		return nil, err
	}
	if resp.Type != codec.RespJavascriptResult {
		return nil, errInternal("unexpected response type for execute_javascript")
	}
	return JavascriptResult{TabID: tab, Result: resp.JavascriptResult}, nil
}

type ConsoleMessagesResult struct {
	TabID    uint32                 `json:"tab_id"`
	Messages []codec.ConsoleMessage `json:"messages"`
}

func (d *Dispatcher) getConsoleMessages(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}
	limit, _ := args["limit"].(float64)
	levelFilter, _ := args["level_filter"].(string)

	logs, ok := d.Cache.GetConsoleLogs(tab)
	if !ok {
		resp, err := d.sendRequest(ctx, tab, codec.ActionGetConsoleMessages, codec.GetConsoleMessagesParams{Limit: int(limit), LevelFilter: levelFilter})
		if err != nil {
			return nil, err
		}
		if resp.Type != codec.RespConsoleMessages {
			return nil, errInternal("unexpected response type for get_console_messages")
		}
		for _, msg := range resp.ConsoleMessages {
			d.Cache.AddConsoleMessage(tab, msg)
		}
		logs = resp.ConsoleMessages
	}

	logs = filterConsoleMessages(logs, levelFilter, int(limit))
	return ConsoleMessagesResult{TabID: tab, Messages: logs}, nil
}

func filterConsoleMessages(logs []codec.ConsoleMessage, levelFilter string, limit int) []codec.ConsoleMessage {
	out := logs
	if levelFilter != "" {
		out = make([]codec.ConsoleMessage, 0, len(logs))
		for _, m := range logs {
			if m.Level == levelFilter {
				out = append(out, m)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

type NetworkRequestsResult struct {
	TabID    uint32                 `json:"tab_id"`
	Requests []codec.NetworkRequest `json:"requests"`
}

func (d *Dispatcher) getNetworkRequests(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}
	limit, _ := args["limit"].(float64)
	includeBodies, _ := args["include_bodies"].(bool)

	reqs, ok := d.Cache.GetNetworkRequests(tab)
	if !ok {
		resp, err := d.sendRequest(ctx, tab, codec.ActionGetNetworkRequests, codec.GetNetworkRequestsParams{IncludeBodies: includeBodies, Limit: int(limit)})
		if err != nil {
			return nil, err
		}
		if resp.Type != codec.RespNetworkRequests {
			return nil, errInternal("unexpected response type for get_network_requests")
		}
		for _, r := range resp.NetworkRequests {
			d.Cache.AddNetworkRequest(tab, r)
		}
		reqs = resp.NetworkRequests
	}

	if int(limit) > 0 && len(reqs) > int(limit) {
		reqs = reqs[len(reqs)-int(limit):]
	}
	if !includeBodies {
		stripped := make([]codec.NetworkRequest, len(reqs))
		copy(stripped, reqs)
		for i := range stripped {
			stripped[i].Body = ""
		}
		reqs = stripped
	}
	return NetworkRequestsResult{TabID: tab, Requests: reqs}, nil
}

type ScreenshotResult struct {
	TabID    uint32 `json:"tab_id"`
	MimeType string `json:"mime_type"`
	DataB64  string `json:"data"`
}

func (d *Dispatcher) captureScreenshot(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}
	format, _ := args["format"].(string)
	if format == "" {
		format = "png"
	}
	quality, _ := args["quality"].(float64)

	resp, err := d.sendRequest(ctx, tab, codec.ActionCaptureScreenshot, codec.CaptureScreenshotParams{Format: format, Quality: int(quality)})
	if err != nil {
		return nil, err
	}
	if resp.Type != codec.RespScreenshot || resp.Screenshot == nil {
		return nil, errInternal("unexpected response type for capture_screenshot")
	}
	d.Cache.UpdateScreenshot(tab, resp.Screenshot)

	mime := "image/png"
	if format == "jpeg" || format == "jpg" {
		mime = "image/jpeg"
	}
	data := resp.Screenshot.Data
	// Defensive check: ensure the payload really is base64 before handing
	// it back unchanged, since the extension is an untrusted peer.
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return nil, errInternal("screenshot payload was not valid base64")
	}
	return ScreenshotResult{TabID: tab, MimeType: mime, DataB64: data}, nil
}

func (d *Dispatcher) getPerformanceMetrics(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}
	resp, err := d.sendRequest(ctx, tab, codec.ActionGetPerformanceMetrics, struct{}{})
	if err != nil {
		return nil, err
	}
	if resp.Type != codec.RespPerformanceMetrics || resp.PerformanceMetrics == nil {
		return nil, errInternal("unexpected response type for get_performance_metrics")
	}
	d.Cache.UpdatePerformanceMetrics(tab, resp.PerformanceMetrics)
	return resp.PerformanceMetrics, nil
}

func (d *Dispatcher) getAccessibilityTree(ctx context.Context, args Args) (any, error) {
	tab, err := tabID(args, true)
	if err != nil {
		return nil, err
	}
	maxDepth, _ := args["max_depth"].(float64)
	resp, err := d.sendRequest(ctx, tab, codec.ActionGetAccessibilityTree, codec.GetAccessibilityTreeParams{MaxDepth: int(maxDepth)})
	if err != nil {
		return nil, err
	}
	if resp.Type != codec.RespAccessibilityTree || resp.AccessibilityTree == nil {
		return nil, errInternal("unexpected response type for get_accessibility_tree")
	}
	d.Cache.UpdateAccessibilityTree(tab, resp.AccessibilityTree)
	return resp.AccessibilityTree, nil
}

// getBrowserTabs is a global operation: dispatched via any active
// connection, not a specific tab binding. A fuller design would broadcast
// to all bound connections and merge; the single-connection dispatch is a
// documented limitation (see DESIGN.md).
func (d *Dispatcher) getBrowserTabs(ctx context.Context) (any, error) {
	conn, ok := d.Registry.AnyConnection()
	if !ok {
		return nil, errConnectionNotAvailable(defaultTabID)
	}
	tab, _ := conn.BoundTab()
	if tab == 0 {
		tab = defaultTabID
	}

	resp, err := d.sendOn(ctx, conn, tab, codec.ActionGetBrowserTabs, struct{}{})
	if err != nil {
		return nil, err
	}
	if resp.Type != codec.RespTabs {
		return nil, errInternal("unexpected response type for get_browser_tabs")
	}
	return resp.Tabs, nil
}

// setDebugger implements both attach_debugger and detach_debugger: tabId is
// required (no fallback), and on success the cache's debugger flag is set.
func (d *Dispatcher) setDebugger(ctx context.Context, args Args, attach bool) (any, error) {
	tab, err := tabID(args, false)
	if err != nil {
		return nil, err
	}

	action := codec.ActionAttachDebugger
	wantType := codec.RespDebuggerAttached
	if !attach {
		action = codec.ActionDetachDebugger
		wantType = codec.RespDebuggerDetached
	}

	resp, err := d.sendRequest(ctx, tab, action, struct{}{})
	if err != nil {
		return nil, err
	}
	if resp.Type != wantType {
		return nil, errInternal("unexpected response type for debugger toggle")
	}
	d.Cache.SetDebuggerAttached(tab, attach)
	return map[string]bool{"success": true}, nil
}

// resourceURIPattern matches browser://tab/{id}/(content|dom|console).
var resourceURIPattern = regexp.MustCompile(`^browser://tab/(\d+)/(content|dom|console)$`)

// ResourceContent reads a resource URI, returning ResourceNotFound when the
// addressed slot is empty.
func (d *Dispatcher) ResourceContent(uri string) (any, error) {
	m := resourceURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, errResourceNotFound(uri)
	}
	parsed, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return nil, errResourceNotFound(uri)
	}
	tab := uint32(parsed)

	switch m[2] {
	case "content":
		pc, ok := d.Cache.GetPageContent(tab)
		if !ok {
			return nil, errResourceNotFound(uri)
		}
		return pc, nil
	case "dom":
		dom, ok := d.Cache.GetDomSnapshot(tab)
		if !ok {
			return nil, errResourceNotFound(uri)
		}
		return dom, nil
	case "console":
		logs, ok := d.Cache.GetConsoleLogs(tab)
		if !ok || len(logs) == 0 {
			return nil, errResourceNotFound(uri)
		}
		return logs, nil
	default:
		return nil, errResourceNotFound(uri)
	}
}

// ResourceURIsForTab lists the resource URIs populated for tab, for
// resources/list.
func ResourceURIsForTab(tab uint32, v cache.View, hasConsole bool) []string {
	var uris []string
	if v.PageContent != nil {
		uris = append(uris, resourceURI(tab, "content"))
	}
	if v.DomSnapshot != nil {
		uris = append(uris, resourceURI(tab, "dom"))
	}
	if hasConsole {
		uris = append(uris, resourceURI(tab, "console"))
	}
	return uris
}

func resourceURI(tab uint32, kind string) string {
	return "browser://tab/" + strconv.FormatUint(uint64(tab), 10) + "/" + kind
}
