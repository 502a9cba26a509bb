package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256

	// Subscribers only send control frames.
	maxMessageSize = 4 * 1024
)

// newUpgrader accepts any origin when origins is empty. Otherwise the request's
// Origin host must match one of them; requests without an Origin header pass.
func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(strings.ToLower(o)); o != "" {
			allowed[o] = true
		}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return allowed[strings.ToLower(u.Host)]
		},
	}
}

// Subscriber is one websocket watching the class setup changes of an offering.
type Subscriber struct {
	hub  *Hub
	conn *websocket.Conn

	// Encoded change events; closed by the hub on removal.
	send chan []byte

	managerID  int64
	offeringID int64

	logger zerolog.Logger
}

func newSubscriber(hub *Hub, conn *websocket.Conn, managerID, offeringID int64, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		managerID:  managerID,
		offeringID: offeringID,
		logger: logger.With().
			Int64("managerID", managerID).
			Int64("offeringID", offeringID).
			Logger(),
	}
}

// readLoop keeps control frames flowing and unregisters the subscriber once the
// peer goes away. Data frames from the peer are discarded.
func (s *Subscriber) readLoop() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("Unexpected WebSocket close")
			}
			return
		}
	}
}

// writeLoop sends every queued event as its own text frame and pings the peer
// while idle.
func (s *Subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "change feed closed"))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to write change event")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
