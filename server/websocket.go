package main

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"orrery.space/shared/celestial"
)

const (
	writeWait      = 10 * time.Second
	maxStreamSpeed = 1e9
)

// Snapshots are public data, so any origin may subscribe.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamParams controls a snapshot stream. Simulated time starts at start
// and advances speed times faster than the wall clock.
type streamParams struct {
	start    float64
	speed    float64
	interval time.Duration
}

func (s *Server) parseStreamParams(r *http.Request) (streamParams, error) {
	start, err := s.requestTime(r)
	if err != nil {
		return streamParams{}, err
	}
	p := streamParams{start: start, speed: 1, interval: s.cfg.Server.StreamInterval}

	q := r.URL.Query()
	if v := q.Get("speed"); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil || speed < 0 || speed > maxStreamSpeed {
			return streamParams{}, fmt.Errorf("invalid speed %q: want 0 to %g", v, float64(maxStreamSpeed))
		}
		p.speed = speed
	}
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			ms, perr := strconv.Atoi(v)
			if perr != nil {
				return streamParams{}, fmt.Errorf("invalid interval %q", v)
			}
			d = time.Duration(ms) * time.Millisecond
		}
		if d < minStreamInterval {
			return streamParams{}, fmt.Errorf("interval %v is below %v", d, minStreamInterval)
		}
		p.interval = d
	}
	return p, nil
}

// simulated returns the stream's clock after elapsed wall time.
func (p streamParams) simulated(elapsed time.Duration) float64 {
	return p.start + float64(elapsed.Milliseconds())*p.speed
}

// handleWebSocket pushes a snapshot immediately and then once per interval
// until the client disconnects or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseStreamParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", s.clientIP(r), err)
		return
	}
	defer conn.Close()

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()
	log.Printf("Snapshot stream opened for %s (speed %g, interval %v)", s.clientIP(r), params.speed, params.interval)

	// Reading is only needed to notice the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()

	began := time.Now()
	for {
		at := params.simulated(time.Since(began))
		if err := celestial.CheckTimestamp(at); err != nil {
			log.Printf("Snapshot stream to %s ran out of range: %v", s.clientIP(r), err)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulated time out of range"),
				time.Now().Add(writeWait))
			return
		}
		if err := s.sendSnapshot(conn, s.calc.Snapshot(at)); err != nil {
			log.Printf("Snapshot stream to %s ended: %v", s.clientIP(r), err)
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn, snap celestial.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}
