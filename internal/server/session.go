package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/input"
	"github.com/pleimann/gazeboard/internal/keyboard"
	"github.com/pleimann/gazeboard/internal/sensor"
)

// clientEvent is one message from a browser keyboard. Coordinates are
// relative to the keyboard center.
type clientEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Key  string  `json:"key"`
}

type stateMessage struct {
	Type string `json:"type"`
	keyboard.State
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("session upgrade failed", "error", err)
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	sess := s.sessions()
	defer sess.Close()

	s.logger.Infow("session connected", "remote", r.RemoteAddr)
	newSessionClient(conn, sess, s.logger).run()
	s.logger.Infow("session disconnected", "remote", r.RemoteAddr)
}

type sessionClient struct {
	conn   *websocket.Conn
	sess   *keyboard.Session
	mouse  *input.Mouse
	keys   *input.Keyboard
	gaze   *input.Gaze
	logger *zap.SugaredLogger
	dirty  chan struct{}
}

func newSessionClient(conn *websocket.Conn, sess *keyboard.Session, logger *zap.SugaredLogger) *sessionClient {
	engine := sess.Engine()
	return &sessionClient{
		conn:   conn,
		sess:   sess,
		mouse:  input.NewMouse(engine, sess),
		keys:   input.NewKeyboard(engine, sess.Board()),
		gaze:   input.NewGaze(engine, sess, dwell.DefaultFilterConfig(), logger),
		logger: logger,
		dirty:  make(chan struct{}, 1),
	}
}

func (c *sessionClient) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *sessionClient) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.sess.Subscribe(func(keyboard.Update) { c.markDirty() })
	c.markDirty()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	wg.Wait()
}

// writeLoop pushes the latest state whenever something changed. Bursts of
// changes coalesce into one message.
func (c *sessionClient) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.dirty:
			if err := c.conn.WriteJSON(stateMessage{Type: "state", State: c.sess.State()}); err != nil {
				c.logger.Debugw("session write failed", "error", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *sessionClient) readLoop(ctx context.Context) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Debugw("session read ended", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debugw("malformed session event", "error", err)
			continue
		}
		c.handle(ctx, ev, data)
	}
}

func (c *sessionClient) handle(ctx context.Context, ev clientEvent, raw []byte) {
	switch ev.Type {
	case "hover":
		c.mouse.Hover(ev.X, ev.Y)
	case "out":
		c.mouse.Out(ev.X, ev.Y)
	case "click":
		c.mouse.Click(ev.X, ev.Y)
	case "key":
		c.keys.Press(ev.Key)
	case "gaze":
		c.gaze.Feed(sensor.DecodeSample(raw))
	case "clear":
		c.sess.Clear()
	case "finalize":
		// Saving outlives the connection
		c.sess.Finalize(context.WithoutCancel(ctx))
	default:
		c.logger.Debugw("unknown session event", "type", ev.Type)
	}
}
