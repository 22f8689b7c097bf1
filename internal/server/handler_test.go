package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/leontalbot/caribou/internal/config"
	"github.com/leontalbot/caribou/internal/instrument"
	"github.com/leontalbot/caribou/internal/model"
	"github.com/leontalbot/caribou/internal/server"
	"github.com/leontalbot/caribou/internal/store"
)

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	ctx := context.Background()
	st, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Name:   ":memory:",
	}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)

	eng, err := model.New(st, model.Options{
		Recorder: instrument.NewRecorder(32),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return server.New(eng, nil).App()
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("parse response %s: %v", body, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	app := testApp(t)
	resp := doRequest(t, app, "GET", "/health", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := decode(t, readBody(t, resp))["status"]; got != "ok" {
		t.Fatalf("expected ok, got %v", got)
	}
}

func TestContentLifecycle(t *testing.T) {
	app := testApp(t)

	// 1. Declare a model over the API
	resp := doRequest(t, app, "POST", "/api/model", map[string]any{
		"name": "yellow",
		"fields": []any{
			map[string]any{"name": "gogon", "type": "string"},
			map[string]any{"name": "wibib", "type": "boolean"},
		},
	})
	body := readBody(t, resp)
	if resp.StatusCode != 201 {
		t.Fatalf("create model: expected 201, got %d: %s", resp.StatusCode, body)
	}
	data := decode(t, body)["data"].(map[string]any)
	if data["slug"] != "yellow" {
		t.Fatalf("expected slug yellow, got %v", data["slug"])
	}

	// 2. The model shows up in the catalog
	resp = doRequest(t, app, "GET", "/_models", nil)
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("list models: expected 200, got %d: %s", resp.StatusCode, body)
	}
	models := decode(t, body)["data"].([]any)
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(models))
	}
	found := false
	for _, m := range models {
		if m.(map[string]any)["slug"] == "yellow" {
			found = true
		}
	}
	if !found {
		t.Fatalf("yellow missing from catalog: %s", body)
	}

	// 3. Create content on the new model
	resp = doRequest(t, app, "POST", "/api/yellow", map[string]any{"gogon": "obobo"})
	body = readBody(t, resp)
	if resp.StatusCode != 201 {
		t.Fatalf("create content: expected 201, got %d: %s", resp.StatusCode, body)
	}
	data = decode(t, body)["data"].(map[string]any)
	if data["id"].(float64) != 1 || data["gogon"] != "obobo" {
		t.Fatalf("unexpected created row: %s", body)
	}

	// 4. Read it back, single and listed
	resp = doRequest(t, app, "GET", "/api/yellow/1", nil)
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("get: expected 200, got %d: %s", resp.StatusCode, body)
	}
	if decode(t, body)["data"].(map[string]any)["gogon"] != "obobo" {
		t.Fatalf("unexpected row: %s", body)
	}

	resp = doRequest(t, app, "GET", "/api/yellow", nil)
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("list: expected 200, got %d: %s", resp.StatusCode, body)
	}
	listResp := decode(t, body)
	if listResp["meta"].(map[string]any)["count"].(float64) != 1 {
		t.Fatalf("expected count 1, got %s", body)
	}

	// 5. Update; the body id is ignored in favor of the path
	resp = doRequest(t, app, "PUT", "/api/yellow/1", map[string]any{
		"id":    999,
		"gogon": "ibibi",
	})
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("update: expected 200, got %d: %s", resp.StatusCode, body)
	}
	data = decode(t, body)["data"].(map[string]any)
	if data["id"].(float64) != 1 || data["gogon"] != "ibibi" {
		t.Fatalf("unexpected updated row: %s", body)
	}

	// 6. Delete returns the destroyed row; a re-read is a 404
	resp = doRequest(t, app, "DELETE", "/api/yellow/1", nil)
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("delete: expected 200, got %d: %s", resp.StatusCode, body)
	}
	if decode(t, body)["data"].(map[string]any)["gogon"] != "ibibi" {
		t.Fatalf("expected destroyed row back, got %s", body)
	}

	resp = doRequest(t, app, "GET", "/api/yellow/1", nil)
	body = readBody(t, resp)
	if resp.StatusCode != 404 {
		t.Fatalf("get deleted: expected 404, got %d: %s", resp.StatusCode, body)
	}
	var errResp server.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if errResp.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", errResp.Error.Code)
	}
}

func TestUnknownModelIs404(t *testing.T) {
	app := testApp(t)
	resp := doRequest(t, app, "GET", "/api/absent", nil)
	body := readBody(t, resp)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}
	var errResp server.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if errResp.Error.Code != "UNKNOWN_MODEL" {
		t.Fatalf("expected UNKNOWN_MODEL, got %s", errResp.Error.Code)
	}
}

func TestBadRequests(t *testing.T) {
	app := testApp(t)

	resp := doRequest(t, app, "GET", "/api/model/abc", nil)
	body := readBody(t, resp)
	if resp.StatusCode != 400 {
		t.Fatalf("bad id: expected 400, got %d: %s", resp.StatusCode, body)
	}
	var errResp server.ErrorResponse
	json.Unmarshal(body, &errResp)
	if errResp.Error.Code != "INVALID_ID" {
		t.Fatalf("expected INVALID_ID, got %s", errResp.Error.Code)
	}

	req, _ := http.NewRequest("POST", "/api/model", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	body = readBody(t, resp)
	if resp.StatusCode != 400 {
		t.Fatalf("bad payload: expected 400, got %d: %s", resp.StatusCode, body)
	}
	json.Unmarshal(body, &errResp)
	if errResp.Error.Code != "INVALID_PAYLOAD" {
		t.Fatalf("expected INVALID_PAYLOAD, got %s", errResp.Error.Code)
	}
}

func TestIncludeExpansionOverHTTP(t *testing.T) {
	app := testApp(t)

	// 1. Two models and a collection between them
	resp := doRequest(t, app, "POST", "/api/model", map[string]any{
		"name":   "zap",
		"fields": []any{map[string]any{"name": "gogon", "type": "string"}},
	})
	body := readBody(t, resp)
	if resp.StatusCode != 201 {
		t.Fatalf("create zap: expected 201, got %d: %s", resp.StatusCode, body)
	}
	zapID := decode(t, body)["data"].(map[string]any)["id"].(float64)

	resp = doRequest(t, app, "POST", "/api/model", map[string]any{
		"name":   "yellow",
		"fields": []any{map[string]any{"name": "bobo", "type": "string"}},
	})
	body = readBody(t, resp)
	if resp.StatusCode != 201 {
		t.Fatalf("create yellow: expected 201, got %d: %s", resp.StatusCode, body)
	}
	yellowID := decode(t, body)["data"].(map[string]any)["id"].(float64)

	resp = doRequest(t, app, "POST", "/api/field", map[string]any{
		"name":      "yellows",
		"type":      "collection",
		"model_id":  zapID,
		"target_id": yellowID,
	})
	body = readBody(t, resp)
	if resp.StatusCode != 201 {
		t.Fatalf("create collection: expected 201, got %d: %s", resp.StatusCode, body)
	}

	// 2. A parent with nested children in one request
	resp = doRequest(t, app, "POST", "/api/zap", map[string]any{
		"gogon": "obobo",
		"yellows": []any{
			map[string]any{"bobo": "one"},
			map[string]any{"bobo": "two"},
		},
	})
	body = readBody(t, resp)
	if resp.StatusCode != 201 {
		t.Fatalf("create parent: expected 201, got %d: %s", resp.StatusCode, body)
	}
	parent := decode(t, body)["data"].(map[string]any)
	parentID := int(parent["id"].(float64))

	// 3. Includes expand; without them the slot stays flat
	resp = doRequest(t, app, "GET", fmt.Sprintf("/api/zap/%d?include=yellows", parentID), nil)
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("get with include: expected 200, got %d: %s", resp.StatusCode, body)
	}
	kids := decode(t, body)["data"].(map[string]any)["yellows"].([]any)
	if len(kids) != 2 {
		t.Fatalf("expected 2 included children, got %s", body)
	}

	resp = doRequest(t, app, "GET", fmt.Sprintf("/api/zap/%d", parentID), nil)
	body = readBody(t, resp)
	bare := decode(t, body)["data"].(map[string]any)["yellows"].([]any)
	if len(bare) != 0 {
		t.Fatalf("expected empty slot without include, got %s", body)
	}
}

func TestAncestryEndpoints(t *testing.T) {
	app := testApp(t)

	resp := doRequest(t, app, "POST", "/api/model", map[string]any{
		"name":   "tree",
		"nested": true,
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create model: expected 201, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	resp = doRequest(t, app, "POST", "/api/tree", map[string]any{})
	body := readBody(t, resp)
	rootID := int(decode(t, body)["data"].(map[string]any)["id"].(float64))

	resp = doRequest(t, app, "POST", "/api/tree", map[string]any{"parent_id": rootID})
	body = readBody(t, resp)
	childID := int(decode(t, body)["data"].(map[string]any)["id"].(float64))

	resp = doRequest(t, app, "GET", fmt.Sprintf("/api/tree/%d/progenitors", childID), nil)
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("progenitors: expected 200, got %d: %s", resp.StatusCode, body)
	}
	chain := decode(t, body)["data"].([]any)
	if len(chain) != 2 {
		t.Fatalf("expected 2 ancestors, got %s", body)
	}
	if int(chain[0].(map[string]any)["id"].(float64)) != rootID {
		t.Fatalf("expected root first, got %s", body)
	}

	resp = doRequest(t, app, "GET", fmt.Sprintf("/api/tree/%d/descendents", rootID), nil)
	body = readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("descendents: expected 200, got %d: %s", resp.StatusCode, body)
	}
	if len(decode(t, body)["data"].([]any)) != 2 {
		t.Fatalf("expected 2 descendents, got %s", body)
	}
}

func TestOpsEndpoint(t *testing.T) {
	app := testApp(t)

	resp := doRequest(t, app, "GET", "/_ops", nil)
	body := readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if len(decode(t, body)["data"].([]any)) != 0 {
		t.Fatalf("expected no ops yet, got %s", body)
	}

	doRequest(t, app, "POST", "/api/model", map[string]any{"name": "thing"})

	resp = doRequest(t, app, "GET", "/_ops?limit=5", nil)
	body = readBody(t, resp)
	ops := decode(t, body)["data"].([]any)
	if len(ops) == 0 {
		t.Fatalf("expected recorded ops, got %s", body)
	}
	first := ops[0].(map[string]any)
	if first["model"] != "model" || first["action"] != "create" {
		t.Fatalf("unexpected op: %s", body)
	}
}
