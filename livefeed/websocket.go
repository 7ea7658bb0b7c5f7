package livefeed

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	checkOrigin func(r *http.Request) bool
	pongWait    time.Duration
}

// WithCheckOrigin overrides the upgrader origin check. The default accepts
// same-host requests only.
func WithCheckOrigin(check func(r *http.Request) bool) HandlerOption {
	return func(c *handlerConfig) {
		c.checkOrigin = check
	}
}

func WithPongWait(wait time.Duration) HandlerOption {
	return func(c *handlerConfig) {
		if wait > 0 {
			c.pongWait = wait
		}
	}
}

// Handler upgrades the request and streams frames until the client goes
// away or the broadcaster stops.
func (b *Broadcaster) Handler(opts ...HandlerOption) http.Handler {
	cfg := handlerConfig{pongWait: 2 * b.heartbeat}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     cfg.checkOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("live feed upgrade failed", "error", err)
			return
		}
		sub := newWSSubscriber(conn)
		go sub.writeLoop(cfg.pongWait)
		if err := b.Register(sub); err != nil {
			b.logger.Warn("live feed registration failed", "error", err)
			return
		}
		sub.readLoop(cfg.pongWait)
		b.Unregister(sub)
	})
}

// wsSubscriber owns one connection. writeLoop is the only writer.
type wsSubscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (s *wsSubscriber) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return errSlowSubscriber
	}
}

func (s *wsSubscriber) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *wsSubscriber) readLoop(pongWait time.Duration) {
	defer func() { _ = s.Close() }()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsSubscriber) writeLoop(pongWait time.Duration) {
	pingPeriod := pongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

var errSlowSubscriber = errors.New("livefeed: subscriber send buffer full")
