package codec

import (
	"encoding/json"
	"testing"
)

func TestParseFrameStrictRequest(t *testing.T) {
	raw := []byte(`{"type":"request","request_id":"r1","action":"get_page_content","params":{"include_metadata":true},"tab_id":7}`)
	res, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if res.Envelope == nil {
		t.Fatalf("expected strict envelope, fell back to lenient")
	}
	if res.Envelope.Type != TypeRequest || res.Envelope.Action != ActionGetPageContent {
		t.Fatalf("unexpected envelope: %+v", res.Envelope)
	}
	var params GetPageContentParams
	if err := json.Unmarshal(res.Envelope.Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if !params.IncludeMetadata {
		t.Fatalf("expected include_metadata true")
	}
}

func TestParseFrameStrictResponse(t *testing.T) {
	raw := []byte(`{"type":"response","request_id":"r1","result":{"Ok":{"type":"page_content","page_content":{"url":"https://x","title":"t","text":"body"}}}}`)
	res, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if res.Envelope == nil || res.Envelope.Result == nil {
		t.Fatalf("expected strict response envelope")
	}
	if res.Envelope.Result.Err != nil {
		t.Fatalf("expected Ok variant")
	}
	var resp BrowserResponse
	if err := json.Unmarshal(res.Envelope.Result.Ok, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.PageContent == nil || resp.PageContent.URL != "https://x" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestParseFrameLenientUnknownType(t *testing.T) {
	raw := []byte(`{"type":"unknown","tabId":5,"foo":"bar"}`)
	res, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame must not error on unknown-but-valid JSON: %v", err)
	}
	if res.Envelope != nil {
		t.Fatalf("expected lenient fallback, got strict envelope")
	}
	typ, ok := LenientType(res.Lenient)
	if !ok || typ != "unknown" {
		t.Fatalf("expected lenient type 'unknown', got %q ok=%v", typ, ok)
	}
	tabID, ok := LenientTabID(res.Lenient)
	if !ok || tabID != 5 {
		t.Fatalf("expected lenient tab_id 5, got %d ok=%v", tabID, ok)
	}
}

func TestParseFrameInvalidJSON(t *testing.T) {
	_, err := ParseFrame([]byte(`not json at all`))
	if err == nil {
		t.Fatalf("expected error for non-JSON frame")
	}
}

func TestEncodeRequestRoundTrip(t *testing.T) {
	tabID := uint32(9)
	env, err := NewRequest("req-1", ActionGetConsoleMessages, &tabID, GetConsoleMessagesParams{Limit: 50})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	res, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame round trip: %v", err)
	}
	if res.Envelope == nil || res.Envelope.RequestID != "req-1" || *res.Envelope.TabID != 9 {
		t.Fatalf("round trip mismatch: %+v", res.Envelope)
	}
}
