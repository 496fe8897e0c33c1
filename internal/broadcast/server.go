// Package broadcast fans decoded snapshots out to websocket
// subscribers. Delivery is best-effort: a subscriber that cannot keep
// up with the producer's tick rate loses frames, never stalls the
// decode loop.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pitlane/simtap/internal/client"
	"github.com/pitlane/simtap/utils"
)

const (
	writeTimeout   = 5 * time.Second
	sendQueueDepth = 16
)

// Frame is the JSON envelope sent to subscribers, one per snapshot.
type Frame struct {
	Tick        int32      `json:"tick"`
	TickRate    int32      `json:"tick_rate"`
	SessionInfo string     `json:"session_info,omitempty"`
	Vars        []FrameVar `json:"vars"`
}

// FrameVar carries one variable's descriptor and, when the loop
// decodes values, its samples coerced to float64.
type FrameVar struct {
	Name   string    `json:"name"`
	Unit   string    `json:"unit,omitempty"`
	Type   string    `json:"type"`
	Values []float64 `json:"values,omitempty"`
}

// FrameFromSnapshot flattens a decoded snapshot into its wire frame.
func FrameFromSnapshot(snap *client.Snapshot) Frame {
	frame := Frame{
		Tick:        snap.Header.VarBufs[snap.BufIndex].TickCount,
		TickRate:    snap.Header.TickRate,
		SessionInfo: string(snap.SessionInfo),
		Vars:        make([]FrameVar, len(snap.Vars)),
	}
	for i, vh := range snap.Vars {
		fv := FrameVar{Name: vh.Name, Unit: vh.Unit, Type: vh.Type.String()}
		if i < len(snap.Values) {
			v := snap.Values[i]
			fv.Values = make([]float64, v.Len())
			for j := range fv.Values {
				fv.Values[j] = v.Float64At(j)
			}
		}
		frame.Vars[i] = fv
	}
	return frame
}

// Server is the subscriber registry plus the upgrade handler.
type Server struct {
	upgrader websocket.Upgrader
	logger   *utils.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]*subscriber
}

type subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewServer creates an empty broadcast server.
func NewServer(logger *utils.Logger) *Server {
	if logger == nil {
		logger = utils.DefaultLogger("broadcast")
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
		},
		logger: logger,
		subs:   make(map[uuid.UUID]*subscriber),
	}
}

// ServeHTTP upgrades the request and registers the subscriber until
// its connection drops.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", utils.Err(err))
		return
	}

	sub := &subscriber{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendQueueDepth),
	}

	s.mu.Lock()
	s.subs[sub.id] = sub
	count := len(s.subs)
	s.mu.Unlock()
	s.logger.Info("Subscriber connected", utils.String("id", sub.id.String()), utils.Int("subscribers", count))

	go s.writePump(sub)
	s.readPump(sub)
}

// Publish sends one frame to every subscriber. Slow subscribers drop
// the frame rather than applying backpressure upstream.
func (s *Server) Publish(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("Frame marshal failed", utils.Err(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		select {
		case sub.send <- payload:
		default:
			// Queue full: subscriber keeps its place, loses this frame.
		}
	}
}

// Subscribers reports the current subscriber count.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close drops every subscriber.
func (s *Server) Close() error {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[uuid.UUID]*subscriber)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
	return nil
}

func (s *Server) writePump(sub *subscriber) {
	for payload := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(sub, err)
			return
		}
	}
}

func (s *Server) readPump(sub *subscriber) {
	// Subscribers send nothing meaningful; the read loop only surfaces
	// disconnects and control frames.
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			s.drop(sub, err)
			return
		}
	}
}

func (s *Server) drop(sub *subscriber, cause error) {
	s.mu.Lock()
	_, present := s.subs[sub.id]
	delete(s.subs, sub.id)
	s.mu.Unlock()

	sub.shutdown()
	if present {
		s.logger.Info("Subscriber disconnected", utils.String("id", sub.id.String()), utils.Err(cause))
	}
}

func (sub *subscriber) shutdown() {
	sub.once.Do(func() {
		close(sub.send)
		_ = sub.conn.Close()
	})
}
