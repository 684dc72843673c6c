package display

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"
)

func newTestPreview(t *testing.T) (*previewService, *websocket.Conn) {
	t.Helper()

	svc, err := NewPreview("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewPreview: %v", err)
	}
	preview := svc.(*previewService)

	server := httptest.NewServer(preview.server)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		ws.Close()
		preview.Close()
		server.Close()
	})

	deadline := time.Now().Add(time.Second)
	for {
		preview.mu.Lock()
		n := len(preview.clients)
		preview.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return preview, ws
}

func TestPreviewPushesJPEGFrames(t *testing.T) {
	preview, ws := newTestPreview(t)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 128, 255, 0), 8, 8, gocv.MatTypeCV8UC3)
	if err := preview.Show("preview", frame); err != nil {
		t.Fatalf("Show: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", kind)
	}
	if len(msg) < 2 || msg[0] != 0xFF || msg[1] != 0xD8 {
		t.Errorf("message is not a JPEG image")
	}
}

func TestPreviewKeysReachPollKey(t *testing.T) {
	preview, ws := newTestPreview(t)

	if _, ok := preview.PollKey(0); ok {
		t.Fatal("no key was pressed yet")
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("q")); err != nil {
		t.Fatalf("write: %v", err)
	}

	key, ok := preview.PollKey(1000)
	if !ok || key != KeyQuit {
		t.Errorf("PollKey = %d, %v, want %d", key, ok, KeyQuit)
	}
}

func TestPreviewServesIndexPage(t *testing.T) {
	preview, _ := newTestPreview(t)

	rec := httptest.NewRecorder()
	preview.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/ws") {
		t.Error("index page does not open the websocket")
	}
}
