// Package preview serves a running stabilization to a browser or any HTTP
// client: the pipeline status as JSON, stage and progress events over a
// websocket, and individual frames as PNG, rendered from frame snapshots
// so a frame being analyzed is never shown half written.
package preview

import (
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab"
	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/render"
	"github.com/opd-ai/vidstab/video"
)

// clientBuffer is the number of events queued per websocket client before
// further events are dropped for it.
const clientBuffer = 64

// Event types.
const (
	EventStatus   = "status"
	EventStage    = "stage"
	EventProgress = "progress"
)

// Event is one message on the events websocket.
type Event struct {
	Type     string  `json:"type"`
	Stage    string  `json:"stage"`
	Status   string  `json:"status,omitempty"`
	Fraction float64 `json:"fraction"`
}

// Status is the pipeline state served at /status.
type Status struct {
	Stage    string  `json:"stage"`
	State    string  `json:"state"`
	Fraction float64 `json:"fraction"`
	Video    string  `json:"video,omitempty"`
	Frames   int     `json:"frames"`
	Clients  int     `json:"clients"`
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub tracks pipeline state as a vidstab.Observer and fans it out to HTTP
// clients.
type Hub struct {
	source func() *video.Video

	mu       sync.Mutex
	active   bool
	stage    vidstab.Stage
	status   vidstab.Status
	fraction float64
	clients  map[*client]struct{}
	closed   bool

	upgrader websocket.Upgrader
}

// NewHub returns a hub serving frames of the video returned by source,
// typically Stabilizer.Video.
func NewHub(source func() *video.Video) *Hub {
	return &Hub{
		source:  source,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// StageChanged implements vidstab.Observer.
func (h *Hub) StageChanged(stage vidstab.Stage, status vidstab.Status) {
	h.mu.Lock()
	h.active = true
	h.stage, h.status = stage, status
	if status == vidstab.StatusStarted {
		h.fraction = 0
	}
	h.broadcastLocked(Event{Type: EventStage, Stage: stage.String(), Status: status.String(), Fraction: h.fraction})
	h.mu.Unlock()
}

// ProgressChanged implements vidstab.Observer.
func (h *Hub) ProgressChanged(stage vidstab.Stage, fraction float64) {
	h.mu.Lock()
	h.active = true
	h.stage, h.fraction = stage, fraction
	h.broadcastLocked(Event{Type: EventProgress, Stage: stage.String(), Fraction: fraction})
	h.mu.Unlock()
}

func (h *Hub) broadcastLocked(ev Event) {
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			logrus.WithFields(logrus.Fields{
				"function": "Hub.broadcast",
				"remote":   c.conn.RemoteAddr().String(),
				"type":     ev.Type,
			}).Debug("Client queue full, event dropped")
		}
	}
}

// Status returns the current pipeline state. Before the first
// notification the state is "idle".
func (h *Hub) Status() Status {
	h.mu.Lock()
	s := Status{State: "idle", Clients: len(h.clients)}
	if h.active {
		s.Stage, s.State, s.Fraction = h.stage.String(), h.status.String(), h.fraction
	}
	h.mu.Unlock()
	if v := h.source(); v != nil {
		s.Video, s.Frames = v.Name(), v.Len()
	}
	return s
}

// Close disconnects every websocket client. Later connections are
// refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Handler returns the HTTP routes:
//
//	GET /status          pipeline state as JSON
//	GET /events          websocket of Event messages
//	GET /frames/{index}  frame as PNG; ?mode=original|stabilized|crop-only|annotated
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /events", h.handleEvents)
	mux.HandleFunc("GET /frames/{index}", h.handleFrame)
	return mux
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Status()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Hub.handleStatus",
			"error":    err.Error(),
		}).Warn("Failed to write status")
	}
}

func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Hub.handleEvents",
		"remote":   r.RemoteAddr,
	})
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientBuffer)}
	st := h.Status()
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	c.send <- Event{Type: EventStatus, Stage: st.Stage, Status: st.State, Fraction: st.Fraction}
	h.mu.Unlock()
	logger.Info("Preview client connected")

	go h.writeLoop(c)

	// Reads only detect the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
	logger.Info("Preview client disconnected")
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			h.unregister(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) handleFrame(w http.ResponseWriter, r *http.Request) {
	v := h.source()
	if v == nil {
		http.Error(w, "no video loaded", http.StatusServiceUnavailable)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "frame index must be an integer", http.StatusBadRequest)
		return
	}

	img, err := frameImage(v, index, r.URL.Query().Get("mode"))
	switch {
	case errors.Is(err, video.ErrFrameIndex):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, geometry.ErrOutOfBounds):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, render.ErrUnknownMode):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Hub.handleFrame",
			"frame":    index,
			"error":    err.Error(),
		}).Warn("Failed to write frame")
	}
}

// frameImage renders frame index of v in the named mode. The empty mode
// and "original" return the decoded frame.
func frameImage(v *video.Video, index int, mode string) (image.Image, error) {
	if mode == "" || mode == "original" {
		f, err := v.Frame(index)
		if err != nil {
			return nil, err
		}
		return f.Snapshot().Image, nil
	}
	var m render.Mode
	if err := m.UnmarshalText([]byte(mode)); err != nil {
		return nil, err
	}
	tr := render.NewTransformer(render.Options{
		Mode:    m,
		Overlay: render.Overlay{Features: true, Tracks: true, Outliers: true},
	})
	return tr.RenderFrame(v, index)
}
