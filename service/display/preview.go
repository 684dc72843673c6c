package display

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/service/lgr"
)

const previewShutdownTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type previewClient struct {
	conn *websocket.Conn
	// latest encoded frame only, stale frames are dropped
	send chan []byte
}

// previewService broadcasts JPEG-encoded composites to browsers over a
// websocket and turns key presses typed in the page into PollKey results.
type previewService struct {
	addr   string
	server *echo.Echo

	mu      sync.Mutex
	clients map[*previewClient]struct{}
	keys    chan int
}

func NewPreview(addr string) (IService, error) {
	svc := &previewService{
		addr:    addr,
		clients: map[*previewClient]struct{}{},
		keys:    make(chan int, 16),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/", func(c echo.Context) error {
		return c.HTML(http.StatusOK, previewPage)
	})
	e.GET("/ws", svc.handleWS)
	svc.server = e

	started := make(chan error, 1)
	go func() {
		err := e.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Logger.Error("preview server exited", slog.Any("error", err))
			started <- err
		}
	}()

	// Surface bind failures at startup
	select {
	case err := <-started:
		return nil, xerrors.Errorf("error starting preview server on %s: %w", addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	lgr.Logger.Info("preview server listening", slog.String("addr", addr))
	return svc, nil
}

func (svc *previewService) handleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &previewClient{
		conn: conn,
		send: make(chan []byte, 1),
	}

	svc.mu.Lock()
	svc.clients[client] = struct{}{}
	svc.mu.Unlock()

	lgr.Logger.Info("preview client connected", slog.String("remote", c.RealIP()))

	go func() {
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				lgr.Logger.Debug("preview client write failed", slog.Any("error", err))
				return
			}
		}
	}()

	defer svc.unregister(client)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}

		if len(data) == 0 {
			continue
		}

		select {
		case svc.keys <- int(data[0]):
		default:
			lgr.Logger.Warn("preview key buffer full, dropping key")
		}
	}
}

func (svc *previewService) unregister(client *previewClient) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, ok := svc.clients[client]; !ok {
		return
	}
	delete(svc.clients, client)
	close(client.send)
	client.conn.Close()
}

func (svc *previewService) Show(_ string, frame gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	frame.Close()
	if err != nil {
		return xerrors.Errorf("error encoding preview frame: %w", err)
	}
	defer buf.Close()

	// buf memory is owned by OpenCV
	encoded := append([]byte(nil), buf.GetBytes()...)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	for client := range svc.clients {
		select {
		case <-client.send:
		default:
		}
		client.send <- encoded
	}
	return nil
}

func (svc *previewService) PollKey(timeoutMs int) (int, bool) {
	if timeoutMs <= 0 {
		select {
		case key := <-svc.keys:
			return key, true
		default:
			return 0, false
		}
	}

	select {
	case key := <-svc.keys:
		return key, true
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return 0, false
	}
}

func (svc *previewService) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), previewShutdownTimeout)
	defer cancel()

	svc.mu.Lock()
	clients := make([]*previewClient, 0, len(svc.clients))
	for client := range svc.clients {
		clients = append(clients, client)
	}
	svc.mu.Unlock()

	for _, client := range clients {
		svc.unregister(client)
	}

	return svc.server.Shutdown(ctx)
}

const previewPage = `<!doctype html>
<html>
<head><title>Virtual Background Preview</title></head>
<body style="margin:0;background:#111;color:#ddd;font-family:sans-serif">
<img id="frame" style="display:block;max-width:100vw;max-height:95vh;margin:auto">
<p style="text-align:center">keys: 1 solid, 2 gradient, 3 blur, 4 desaturate, 5 image, q quit</p>
<script>
const img = document.getElementById("frame");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.binaryType = "blob";
ws.onmessage = (ev) => {
  const url = URL.createObjectURL(ev.data);
  img.onload = () => URL.revokeObjectURL(url);
  img.src = url;
};
document.addEventListener("keydown", (ev) => {
  if (ev.key.length === 1) ws.send(ev.key);
});
</script>
</body>
</html>`
