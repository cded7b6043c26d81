package server

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"livecast/internal/coordinator"
	"livecast/internal/models"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = 10 * time.Second
	wsMaxMsgSize = 512
)

// wsRequest is a client frame: join or leave a session's room.
type wsRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
}

// wsAck is a direct reply to a client frame. Bus events are delivered as
// models.Event frames on the same connection.
type wsAck struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Count     int    `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) wsUpgrader() websocket.Upgrader {
	origin := s.corsOrigin
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if origin == "" {
				return true
			}
			return r.Header.Get("Origin") == origin
		},
	}
}

func (s *Server) handleViewerWS(w http.ResponseWriter, r *http.Request) {
	upgrader := s.wsUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	s.logViewerConnect(connID, r)

	sub := s.coord.Subscribe(connID)
	defer s.coord.Disconnect(connID)

	acks := make(chan wsAck, 8)
	writerDone := make(chan struct{})
	go s.wsWriter(conn, sub, acks, writerDone)

	s.wsReader(conn, connID, acks, writerDone)
}

// wsReader processes join/leave frames until the connection dies. A
// per-connection rate limiter bounds how fast a client may churn rooms.
func (s *Server) wsReader(conn *websocket.Conn, connID string, acks chan<- wsAck, writerDone <-chan struct{}) {
	limiter := rate.NewLimiter(rate.Limit(20), 40)

	conn.SetReadLimit(wsMaxMsgSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if !limiter.Allow() {
			s.sendAck(acks, writerDone, wsAck{Type: "error", Error: "too many requests"})
			return
		}

		switch req.Action {
		case "join":
			count, err := s.coord.Join(req.SessionID, connID)
			if errors.Is(err, models.ErrNotFound) {
				s.sendAck(acks, writerDone, wsAck{Type: "error", SessionID: req.SessionID, Error: "stream not found"})
				continue
			}
			s.sendAck(acks, writerDone, wsAck{Type: "joined", SessionID: req.SessionID, Count: count})
		case "leave":
			count, _ := s.coord.Leave(req.SessionID, connID)
			s.sendAck(acks, writerDone, wsAck{Type: "left", SessionID: req.SessionID, Count: count})
		default:
			s.sendAck(acks, writerDone, wsAck{Type: "error", Error: "unknown action"})
		}
	}
}

// wsWriter owns all writes on the connection: acks, bus events, pings. It
// exits when the subscription channel closes, which also happens when the
// bus drops the connection for falling behind.
func (s *Server) wsWriter(conn *websocket.Conn, sub *coordinator.Subscriber, acks <-chan wsAck, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.writeWSJSON(conn, ev); err != nil {
				return
			}
		case ack := <-acks:
			if err := s.writeWSJSON(conn, ack); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeWSJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// sendAck queues a direct reply, dropping it if the writer is gone or
// saturated. Acks are conveniences; the authoritative counts flow through
// the bus.
func (s *Server) sendAck(acks chan<- wsAck, writerDone <-chan struct{}, ack wsAck) {
	select {
	case acks <- ack:
	case <-writerDone:
	default:
	}
}

func (s *Server) logViewerConnect(connID string, r *http.Request) {
	if s.geoResolver == nil {
		return
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if loc := s.geoResolver.Lookup(net.ParseIP(host)); loc != nil {
		log.Printf("viewer %s connected from %s, %s", connID, loc.City, loc.Country)
	}
}
