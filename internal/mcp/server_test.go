package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/intake/internal/catalog"
	"github.com/hurttlocker/intake/internal/intake"
	"github.com/hurttlocker/intake/internal/record"
	"github.com/hurttlocker/intake/internal/store"
)

// setupTestServer builds a server over an in-memory store holding one
// interview session and a catalog with one job.
func setupTestServer(t *testing.T) (*server.MCPServer, store.Store) {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	for i, msg := range []string{"Quiero el puesto de Recepcionista", "Me llamo Ana Torres"} {
		writes := map[string]record.Value{}
		if i == 0 {
			writes["position_applied"] = record.Text("Recepcionista")
		}
		_, err := st.CommitTurn(ctx, &record.Turn{
			Kind: record.KindInterview, SessionID: "s1",
			UserMessage: msg, AssistantResponse: "Gracias.",
		}, store.RecordUpdate{Writes: writes})
		if err != nil {
			t.Fatalf("seeding turn: %v", err)
		}
	}

	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening catalog: %v", err)
	}
	if _, err := cat.Create("Recepcionista", "Atención a visitantes y manejo de conmutador."); err != nil {
		t.Fatalf("creating job: %v", err)
	}

	eng, err := intake.New(intake.Config{Store: st, Catalog: cat})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	return NewServer(ServerConfig{Engine: eng, Store: st, Catalog: cat, Version: "test"}), st
}

// callTool invokes an MCP tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func decodeText(t *testing.T, result *mcplib.CallToolResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &out); err != nil {
		t.Fatalf("tool output is not JSON: %v", err)
	}
	return out
}

func TestNewServer(t *testing.T) {
	srv, _ := setupTestServer(t)
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestRecordTool(t *testing.T) {
	srv, _ := setupTestServer(t)

	result := callTool(t, srv, "intake_record", map[string]interface{}{"session_id": "s1"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}
	out := decodeText(t, result)
	if out["progress"] != float64(12) {
		t.Errorf("progress = %v, want 12", out["progress"])
	}
	rec, _ := out["record"].(map[string]interface{})
	fields, _ := rec["fields"].(map[string]interface{})
	if fields["position_applied"] != "Recepcionista" {
		t.Errorf("position_applied = %v", fields["position_applied"])
	}

	result = callTool(t, srv, "intake_record", map[string]interface{}{"session_id": "s1", "kind": "survey"})
	if !result.IsError {
		t.Fatal("expected error for survey session that does not exist")
	}
	if !strings.Contains(getTextContent(t, result), "no survey session") {
		t.Errorf("unexpected message: %s", getTextContent(t, result))
	}

	result = callTool(t, srv, "intake_record", map[string]interface{}{"session_id": "s1", "kind": "poll"})
	if !result.IsError {
		t.Fatal("expected error for unknown kind")
	}

	result = callTool(t, srv, "intake_record", map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected error without session_id")
	}
}

func TestHistoryTool(t *testing.T) {
	srv, _ := setupTestServer(t)

	out := decodeText(t, callTool(t, srv, "intake_history", map[string]interface{}{"session_id": "s1"}))
	if out["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", out["count"])
	}

	out = decodeText(t, callTool(t, srv, "intake_history", map[string]interface{}{"session_id": "s1", "last": 1}))
	turns, _ := out["turns"].([]interface{})
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	turn, _ := turns[0].(map[string]interface{})
	if turn["user_message"] != "Me llamo Ana Torres" {
		t.Errorf("last turn = %v", turn["user_message"])
	}
}

func TestProgressTool(t *testing.T) {
	srv, _ := setupTestServer(t)

	out := decodeText(t, callTool(t, srv, "intake_progress", map[string]interface{}{"limit": 500}))
	records, _ := out["records"].([]interface{})
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	stats, _ := out["stats"].(map[string]interface{})
	if stats["in_progress"] != float64(1) || stats["completed"] != float64(0) {
		t.Errorf("stats = %v", stats)
	}

	out = decodeText(t, callTool(t, srv, "intake_progress", map[string]interface{}{"kind": "survey"}))
	records, _ = out["records"].([]interface{})
	if len(records) != 0 {
		t.Errorf("survey records = %d, want 0", len(records))
	}
}

func TestSettingTool(t *testing.T) {
	srv, st := setupTestServer(t)

	out := decodeText(t, callTool(t, srv, "intake_setting", map[string]interface{}{"kind": "survey"}))
	if out["enabled"] != true {
		t.Fatalf("enabled = %v, want true", out["enabled"])
	}

	out = decodeText(t, callTool(t, srv, "intake_setting", map[string]interface{}{"kind": "survey", "enabled": false}))
	if out["enabled"] != false {
		t.Fatalf("enabled = %v, want false", out["enabled"])
	}
	v, err := st.GetSetting(context.Background(), "survey_chat_enabled")
	if err != nil || v != "false" {
		t.Fatalf("stored setting = %q, %v", v, err)
	}

	out = decodeText(t, callTool(t, srv, "intake_setting", map[string]interface{}{}))
	if out["kind"] != "interview" || out["enabled"] != true {
		t.Errorf("interview switch = %v", out)
	}
}

func TestJobsTool(t *testing.T) {
	srv, _ := setupTestServer(t)

	out := decodeText(t, callTool(t, srv, "intake_jobs", map[string]interface{}{}))
	if out["total"] != float64(1) {
		t.Fatalf("total = %v, want 1", out["total"])
	}

	out = decodeText(t, callTool(t, srv, "intake_jobs", map[string]interface{}{"filename": "recepcionista.txt"}))
	if out["title"] != "Recepcionista" {
		t.Errorf("title = %v", out["title"])
	}

	result := callTool(t, srv, "intake_jobs", map[string]interface{}{"filename": "../secret.txt"})
	if !result.IsError {
		t.Error("expected error for path traversal")
	}
}
