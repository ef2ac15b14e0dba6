package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/replbox/replbox/pkg/types"
)

func (h *apiHarness) streamURL(id string) string {
	return "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/sandbox/" + id + "/execute/stream"
}

func dialStream(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func TestServer_ExecuteStream(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	ws := dialStream(t, h.streamURL(id))
	if err := ws.WriteJSON(types.ExecuteRequest{Code: "print(1)"}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	var ev types.StreamEvent
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read first event: %v", err)
	}
	if ev.Type != "stdout" || ev.Text != "streamed: print(1)\n" {
		t.Errorf("first event = %+v", ev)
	}

	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read final event: %v", err)
	}
	if ev.Type != "done" {
		t.Fatalf("final event type = %q", ev.Type)
	}
	if ev.Record == nil || ev.Record.ExecutionCount != 1 {
		t.Errorf("final record = %+v", ev.Record)
	}

	// The server closes the stream cleanly after the final frame.
	err := ws.ReadJSON(&ev)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}
}

func TestServer_ExecuteStreamFailure(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)
	h.sess.setExecErr(errors.New("kernel exploded"))

	ws := dialStream(t, h.streamURL(id))
	if err := ws.WriteJSON(types.ExecuteRequest{Code: "1"}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	var ev types.StreamEvent
	err := ws.ReadJSON(&ev)
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a close error, got %v", err)
	}
	if ce.Code != websocket.CloseInternalServerErr {
		t.Errorf("close code = %d, want %d", ce.Code, websocket.CloseInternalServerErr)
	}
	if ce.Text != "kernel exploded" {
		t.Errorf("close reason = %q", ce.Text)
	}
}

func TestServer_ExecuteStreamBadFirstFrame(t *testing.T) {
	h := newAPIHarness(t, "")
	id := h.createSandbox(t)

	ws := dialStream(t, h.streamURL(id))
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	var ev types.StreamEvent
	err := ws.ReadJSON(&ev)
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Errorf("expected unsupported data closure, got %v", err)
	}
}

func TestServer_ExecuteStreamUnknownSandbox(t *testing.T) {
	h := newAPIHarness(t, "")

	_, resp, err := websocket.DefaultDialer.Dial(h.streamURL("nope"), nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected handshake failure, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v", resp)
	}
	resp.Body.Close()
}

func TestServer_ExecuteStreamQueryAuth(t *testing.T) {
	h := newAPIHarness(t, "stream-key")

	// Create over REST with the header form of the key.
	req, _ := http.NewRequest(http.MethodPost, h.ts.URL+"/sandbox/create", nil)
	req.Header.Set("X-API-Key", "stream-key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var out types.CreateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	// No key: the handshake is refused before the upgrade.
	_, wsResp, err := websocket.DefaultDialer.Dial(h.streamURL(out.SandboxID), nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected handshake failure, got %v", err)
	}
	if wsResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("keyless handshake status = %d", wsResp.StatusCode)
	}
	wsResp.Body.Close()

	// Browser websocket clients cannot set headers; the query form works.
	ws := dialStream(t, h.streamURL(out.SandboxID)+"?api_key=stream-key")
	if err := ws.WriteJSON(types.ExecuteRequest{Code: "2"}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	var ev types.StreamEvent
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "stdout" {
		t.Errorf("event = %+v", ev)
	}
}
