package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// WebSocketSource reads push frames from the backend's socket endpoint and
// reconnects with backoff when the connection drops.
type WebSocketSource struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	backoff Backoff
	now     func() time.Time
	logger  *logging.Logger
}

// NewWebSocketSource creates a source for url. header is sent on every
// handshake and may carry a bearer token.
func NewWebSocketSource(url string, header http.Header, backoff Backoff, logger *logging.Logger) *WebSocketSource {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebSocketSource{
		url:     url,
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff: backoff,
		now:     time.Now,
		logger:  logger.Component("notify.websocket"),
	}
}

func (s *WebSocketSource) Name() string { return "websocket" }

// Run keeps a connection open until ctx is done.
func (s *WebSocketSource) Run(ctx context.Context, pub Publisher) error {
	var delay time.Duration
	for {
		connected, err := s.session(ctx, pub)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = 0
		}
		delay = s.backoff.next(delay)
		s.logger.Warn("push socket disconnected", "url", s.url, "error", err, "retry_in", delay.String())
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

// session dials once and reads until the connection fails. connected is
// true when the handshake succeeded.
func (s *WebSocketSource) session(ctx context.Context, pub Publisher) (connected bool, err error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("notify: dial %s: %w", s.url, err)
	}
	s.logger.Info("push socket connected", "url", s.url)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("notify: socket closed by server")
			}
			return true, fmt.Errorf("notify: read: %w", err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if reply := HandshakeReply(data); reply != nil {
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return true, fmt.Errorf("notify: write: %w", err)
			}
			continue
		}
		evt, err := ParseEvent(data, s.Name(), s.now())
		if err != nil {
			s.logger.Debug("ignoring push frame", "error", err)
			continue
		}
		pub.Publish(evt)
	}
}
