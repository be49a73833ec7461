package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rcliao/mnemosyne/internal/auth"
	"github.com/rcliao/mnemosyne/internal/engine"
	"github.com/rcliao/mnemosyne/internal/space"
	"github.com/rcliao/mnemosyne/internal/store"
)

var testSecret = []byte(strings.Repeat("s", 32))

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is closed") }

func newTestApp(t *testing.T, headers bool) (*fiber.App, *auth.Authenticator) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(s, engine.Options{Logger: log})
	a := auth.New(auth.Config{Secret: testSecret, Issuer: "mnemosyne", TTL: time.Hour, HeaderIdentity: headers})

	app := NewApp(HTTPDeps{
		MCP:    NewMCPServer(eng, space.NewResolver(s), engine.DefaultBootstrapRequest()),
		Auth:   a,
		Health: s,
		Logger: log,
	})
	return app, a
}

func rpc(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, MCPPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestHealthz(t *testing.T) {
	app, _ := newTestApp(t, false)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(fiber.HeaderXRequestID) == "" {
		t.Error("missing request id header")
	}

	down := NewApp(HTTPDeps{
		MCP:    NewMCPServer(nil, nil, engine.DefaultBootstrapRequest()),
		Auth:   auth.New(auth.Config{}),
		Health: failingPinger{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	resp, err = down.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestMCP_RequiresIdentity(t *testing.T) {
	app, _ := newTestApp(t, false)

	resp, err := app.Test(rpc(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req := rpc(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req.Header.Set(auth.HeaderUser, "alice")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("header identity disabled: status = %d, want 401", resp.StatusCode)
	}
}

func TestMCP_ToolsOverHTTP(t *testing.T) {
	app, a := newTestApp(t, false)
	tok, err := a.Issue("alice", "")
	if err != nil {
		t.Fatal(err)
	}

	req := rpc(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "mnemosyne_bootstrap") {
		t.Fatalf("tools/list: %d %s", resp.StatusCode, body)
	}

	req = rpc(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"mnemosyne_write",` +
		`"arguments":{"kind":"note","title":"over http","content":"hello"}}}`)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	body = readBody(t, resp)
	if !strings.Contains(body, "personal:alice") || !strings.Contains(body, "created") {
		t.Errorf("tools/call: %d %s", resp.StatusCode, body)
	}
}

func TestMCP_HeaderIdentity(t *testing.T) {
	app, _ := newTestApp(t, true)

	req := rpc(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"mnemosyne_last_session","arguments":{}}}`)
	req.Header.Set(auth.HeaderUser, "bob")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "count") {
		t.Errorf("header identity call: %d %s", resp.StatusCode, body)
	}
}
