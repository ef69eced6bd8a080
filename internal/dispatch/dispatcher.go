// dispatcher.go — tool dispatcher: fast/slow path logic that serves MCP
// tool calls from cache when fresh, or via a correlated request to a live
// extension.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/codec"
	"github.com/gasoline-mcp/browser-bridge/internal/pending"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
)

// defaultTabID is the hard-coded stand-in used when no tab_id is supplied.
// There is no current-tab tracking; see DESIGN.md.
const defaultTabID = 1

// pageContentFreshness is the freshness window used for the page-content
// fast path.
const pageContentFreshness = 30 * time.Second

// Recorder observes tool-call outcomes for metrics; nil-safe (Dispatcher
// checks before calling). Implemented by internal/metrics.
type Recorder interface {
	ObserveToolCall(tool string, duration time.Duration, err error)
}

// Dispatcher wires the registry, pending-request table, and cache behind a
// uniform per-tool call shape.
type Dispatcher struct {
	Registry       *registry.Registry
	Pending        *pending.Table
	Cache          *cache.Cache
	RequestTimeout time.Duration
	Recorder       Recorder
}

// New creates a Dispatcher wired to the given components.
func New(reg *registry.Registry, pend *pending.Table, c *cache.Cache) *Dispatcher {
	return &Dispatcher{
		Registry:       reg,
		Pending:        pend,
		Cache:          c,
		RequestTimeout: pending.DefaultTimeout,
	}
}

// Args is the loosely-typed argument bag tools/call hands the dispatcher —
// mirrors the JSON object of the MCP request's "arguments" field.
type Args map[string]any

// tabID extracts tab_id, accepting either "tabId" or "tab_id", coercing to
// u32. Falls back to defaultTabID when absent and fallback is true.
func tabID(args Args, allowFallback bool) (uint32, error) {
	for _, key := range []string{"tabId", "tab_id"} {
		v, ok := args[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n <= 0 {
				return 0, errTabNotFound(uint32(n))
			}
			return uint32(n), nil
		case string:
			var parsed uint32
			if _, err := fmt.Sscanf(n, "%d", &parsed); err != nil {
				return 0, errInvalidParameters("tab_id must be a non-zero integer")
			}
			if parsed == 0 {
				return 0, errTabNotFound(0)
			}
			return parsed, nil
		default:
			return 0, errInvalidParameters("tab_id has an unsupported type")
		}
	}
	if !allowFallback {
		return 0, errInvalidParameters("tabId is required")
	}
	return defaultTabID, nil
}

// Dispatch runs the MCP tool named by toolName with args. The returned
// value is tool-specific and JSON-serialisable; callers (internal/mcprpc)
// wrap it into an MCP content block.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, args Args) (any, error) {
	start := time.Now()
	result, err := d.dispatch(ctx, toolName, args)
	if d.Recorder != nil {
		d.Recorder.ObserveToolCall(toolName, time.Since(start), err)
	}
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, toolName string, args Args) (any, error) {
	switch toolName {
	case ToolGetPageContent:
		return d.getPageContent(ctx, args)
	case ToolGetDomSnapshot:
		return d.getDomSnapshot(ctx, args)
	case ToolExecuteJavascript:
		return d.executeJavascript(ctx, args)
	case ToolGetConsoleMessages:
		return d.getConsoleMessages(ctx, args)
	case ToolGetNetworkRequests:
		return d.getNetworkRequests(ctx, args)
	case ToolCaptureScreenshot:
		return d.captureScreenshot(ctx, args)
	case ToolGetPerformanceMetrics:
		return d.getPerformanceMetrics(ctx, args)
	case ToolGetAccessibilityTree:
		return d.getAccessibilityTree(ctx, args)
	case ToolGetBrowserTabs:
		return d.getBrowserTabs(ctx)
	case ToolAttachDebugger:
		return d.setDebugger(ctx, args, true)
	case ToolDetachDebugger:
		return d.setDebugger(ctx, args, false)
	default:
		return nil, errInvalidParameters("unknown tool " + toolName)
	}
}

// sendRequest implements the slow-path plumbing shared by every tool:
// resolve the bound connection, mint and register a request id, serialise
// onto the outbound queue, and await completion.
func (d *Dispatcher) sendRequest(ctx context.Context, tab uint32, action string, params any) (*codec.BrowserResponse, error) {
	conn, ok := d.Registry.FindConnectionForTab(tab)
	if !ok {
		return nil, errConnectionNotAvailable(tab)
	}
	return d.sendOn(ctx, conn, tab, action, params)
}

// sendOn issues a correlated request on an already-resolved connection —
// the global get_browser_tabs path picks its connection without a tab
// binding and so cannot go through FindConnectionForTab.
func (d *Dispatcher) sendOn(ctx context.Context, conn *registry.Connection, tab uint32, action string, params any) (*codec.BrowserResponse, error) {
	requestID := uuid.NewString()
	deadline := time.Now().Add(d.RequestTimeout)
	d.Pending.Register(requestID, deadline)

	env, err := codec.NewRequest(requestID, action, &tab, params)
	if err != nil {
		d.Pending.Forget(requestID)
		return nil, errInternal(err.Error())
	}
	frame, err := codec.Encode(env)
	if err != nil {
		d.Pending.Forget(requestID)
		return nil, errInternal(err.Error())
	}

	if !conn.Enqueue(registry.Frame(frame)) {
		d.Pending.Forget(requestID)
		return nil, errConnectionClosed()
	}
	d.Registry.RecordSent()

	result := d.Pending.Await(ctx, requestID)
	switch {
	case result.TimedOut:
		return nil, errRequestTimeout(d.RequestTimeout.Seconds())
	case result.ExtensionErr != "":
		return nil, errBrowserExtension(result.ExtensionErr)
	case result.Err != nil:
		return nil, errConnectionClosed()
	default:
		return result.Response, nil
	}
}
