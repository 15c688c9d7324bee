package sensor

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
)

// hello is the first frame sent to a connecting tracker
type hello struct {
	Type string `json:"type"`
	Options
}

// WebSocket receives gaze samples from a single browser tracker that
// connects to its ServeHTTP handler
type WebSocket struct {
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	opts      Options
	conn      *websocket.Conn
	stopped   bool
	connected chan struct{}
	samples   chan *dwell.Sample
	once      sync.Once
	onConnect []func()
}

// NewWebSocket creates a tracker endpoint
func NewWebSocket(logger *zap.SugaredLogger) *WebSocket {
	return &WebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:    logger,
		connected: make(chan struct{}),
		samples:   make(chan *dwell.Sample, 64),
	}
}

// Start waits for a tracker to connect
func (w *WebSocket) Start(ctx context.Context, opts Options) error {
	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.opts = opts
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.connected:
		return nil
	case <-timer.C:
		return ErrStartTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnConnect registers fn to run whenever a tracker connects
func (w *WebSocket) OnConnect(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onConnect = append(w.onConnect, fn)
}

// Samples returns the sample stream. It is closed by Stop.
func (w *WebSocket) Samples() <-chan *dwell.Sample {
	return w.samples
}

// Stop disconnects the tracker and closes the sample stream
func (w *WebSocket) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.conn != nil {
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stopping"),
			time.Now().Add(time.Second))
		_ = w.conn.Close()
	}
	close(w.samples)
	return nil
}

// ServeHTTP accepts the tracker connection and pumps its samples
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	busy := w.conn != nil || w.stopped
	w.mu.Unlock()
	if busy {
		http.Error(rw, "tracker already connected", http.StatusConflict)
		return
	}

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warnw("gaze tracker upgrade failed", "error", err)
		return
	}

	w.mu.Lock()
	if w.conn != nil || w.stopped {
		w.mu.Unlock()
		_ = conn.Close()
		return
	}
	w.conn = conn
	opts := w.opts
	hooks := slices.Clone(w.onConnect)
	w.mu.Unlock()

	if err := conn.WriteJSON(hello{Type: "hello", Options: opts}); err != nil {
		w.logger.Warnw("failed to greet gaze tracker", "error", err)
		w.disconnect(conn)
		return
	}

	for _, fn := range hooks {
		fn()
	}
	w.once.Do(func() { close(w.connected) })
	w.logger.Infow("gaze tracker connected", "remote", r.RemoteAddr)

	w.readLoop(conn)
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	defer w.disconnect(conn)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				w.logger.Debugw("gaze tracker read ended", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !w.publish(DecodeSample(data)) {
			return
		}
	}
}

// publish forwards one sample, dropping it when the consumer lags
func (w *WebSocket) publish(s *dwell.Sample) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.samples <- s:
	default:
		w.logger.Debugw("gaze sample dropped, consumer is behind")
	}
	return true
}

func (w *WebSocket) disconnect(conn *websocket.Conn) {
	_ = conn.Close()
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	w.logger.Infow("gaze tracker disconnected")
}
