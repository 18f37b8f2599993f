// Package web exposes the tracker and the playback engine to a browser
// dashboard over HTTP and WebSocket.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/agrosmart/fieldtrack/dataset"
	"github.com/agrosmart/fieldtrack/location"
	"github.com/agrosmart/fieldtrack/playback"
)

// defaultWriteTimeout bounds writing a response once the handler has its result.
const defaultWriteTimeout = 15 * time.Second

// Event types
const (
	EventLocation = "location"
	EventPlayback = "playback"
	EventMarker   = "marker"
)

// Event is one message pushed to WebSocket clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// LocationView is the body of /api/location and of location events.
type LocationView struct {
	Status       location.StatusView   `json:"status"`
	LastPosition *location.GeoPosition `json:"last_position,omitempty"`
	Popup        string                `json:"popup,omitempty"`
}

// PathView is the body of /api/path.
type PathView struct {
	Waypoints []playback.Waypoint `json:"waypoints"`
	SafeIndex int                 `json:"safe_index"`
}

// Server serves the dashboard API.
type Server struct {
	tracker      *location.Tracker
	engine       *playback.Engine
	data         *dataset.Dataset
	safeIndex    int
	logger       *log.Logger
	publisher    Publisher
	upgrader     websocket.Upgrader
	router       *mux.Router
	writeTimeout time.Duration

	mu        sync.Mutex
	marker    *location.Marker
	clients   map[*websocket.Conn]bool
	broadcast chan Event
}

// NewServer wires the routes and subscribes to tracker and engine changes.
func NewServer(tracker *location.Tracker, engine *playback.Engine, data *dataset.Dataset, safeIndex int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		tracker:   tracker,
		engine:    engine,
		data:      data,
		safeIndex: safeIndex,
		logger:    logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true // dashboard is served from another origin during development
			},
		},
		clients:      make(map[*websocket.Conn]bool),
		broadcast:    make(chan Event, 64),
		writeTimeout: defaultWriteTimeout,
	}

	tracker.OnStatus(func(location.Status) { s.Notify(Event{Type: EventLocation, Data: s.locationView()}) })
	engine.OnChange(func(st playback.State) { s.Notify(Event{Type: EventPlayback, Data: st}) })

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/location", s.handleGetLocation).Methods("GET")
	api.HandleFunc("/location/geojson", s.handleGetLocationGeoJSON).Methods("GET")
	api.HandleFunc("/location/refresh", s.handleRefreshLocation).Methods("POST")
	api.HandleFunc("/location/cancel", s.handleCancelLocation).Methods("POST")
	api.HandleFunc("/playback", s.handleGetPlayback).Methods("GET")
	api.HandleFunc("/playback/{action}", s.handlePlaybackCommand).Methods("POST")
	api.HandleFunc("/path", s.handleGetPath).Methods("GET")
	api.HandleFunc("/readings", s.handleGetReadings).Methods("GET")
	api.HandleFunc("/readings/latest", s.handleGetLatestReading).Methods("GET")
	api.HandleFunc("/dataset", s.handleGetDataset).Methods("GET")
	api.HandleFunc("/ws", s.handleWebSocket)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	s.router = r
	return s
}

// SetPublisher forwards location and playback events to p as well.
func (s *Server) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// AttachMarker adds the marker popup to location views.
func (s *Server) AttachMarker(m *location.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = m
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MarkerFrame streams marker animation frames to clients. Pass it to
// location.NewMarker.
func (s *Server) MarkerFrame(f location.Frame) {
	s.Notify(Event{Type: EventMarker, Data: f})
}

// Notify queues ev for broadcast. Events are dropped when the queue is full.
func (s *Server) Notify(ev Event) {
	select {
	case s.broadcast <- ev:
	default:
		s.logger.Printf("web: broadcast queue full, dropping %s event", ev.Type)
	}
}

// Run delivers queued events until ctx is done.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.broadcast:
			s.deliver(ctx, ev)
		}
	}
}

func (s *Server) deliver(ctx context.Context, ev Event) {
	s.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	publisher := s.publisher
	s.mu.Unlock()

	for _, client := range clients {
		if err := client.WriteJSON(ev); err != nil {
			s.logger.Printf("WebSocket write error: %v", err)
			s.removeClient(client)
		}
	}

	if publisher != nil && ev.Type != EventMarker {
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := publisher.Publish(pubCtx, ev); err != nil {
			s.logger.Printf("web: publish %s event: %v", ev.Type, err)
		}
		cancel()
	}
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Printf("Starting dashboard API on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.writeTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("web: shutdown: %v", err)
		}
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects every WebSocket client.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
	return nil
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) removeClient(c *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c] {
		c.Close()
		delete(s.clients, c)
	}
}

func (s *Server) locationView() LocationView {
	v := LocationView{Status: location.View(s.tracker.Status())}
	if pos, ok := s.tracker.LastPosition(); ok {
		v.LastPosition = &pos
	}
	s.mu.Lock()
	marker := s.marker
	s.mu.Unlock()
	if marker != nil {
		v.Popup = marker.Popup()
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.locationView())
}

func (s *Server) handleGetLocationGeoJSON(w http.ResponseWriter, r *http.Request) {
	pos, ok := s.tracker.LastPosition()
	if !ok {
		http.Error(w, "no position yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	json.NewEncoder(w).Encode(pos.Feature())
}

// handleRefreshLocation waits for the one-shot request, which may outlast
// the server's write timeout, so the deadline restarts once it settles.
func (s *Server) handleRefreshLocation(w http.ResponseWriter, r *http.Request) {
	s.tracker.RequestOnce(r.Context())
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Printf("web: refresh write deadline: %v", err)
	}
	writeJSON(w, http.StatusOK, s.locationView())
}

func (s *Server) handleCancelLocation(w http.ResponseWriter, r *http.Request) {
	s.tracker.CancelPendingRequest()
	writeJSON(w, http.StatusOK, s.locationView())
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handlePlaybackCommand(w http.ResponseWriter, r *http.Request) {
	if !s.playbackCommand(mux.Vars(r)["action"]) {
		http.Error(w, "unknown playback action", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) playbackCommand(action string) bool {
	switch action {
	case "pause":
		s.engine.Pause()
	case "resume":
		s.engine.Resume()
	case "toggle":
		s.engine.Toggle()
	case "reset":
		s.engine.Reset()
	case "safe":
		s.engine.JumpToSafe()
	default:
		return false
	}
	return true
}

func (s *Server) handleGetPath(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PathView{
		Waypoints: s.engine.Path().Waypoints(),
		SafeIndex: s.safeIndex,
	})
}

func (s *Server) handleGetReadings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.Readings)
}

func (s *Server) handleGetLatestReading(w http.ResponseWriter, r *http.Request) {
	reading, ok := s.data.LatestReading()
	if !ok {
		http.Error(w, "no readings", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data)
}

// command is a client message on the WebSocket
type command struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer s.removeClient(conn)

	// the HTTP server deadlines do not apply to the upgraded stream
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	// send current state before registering so writes never interleave
	for _, ev := range []Event{
		{Type: EventLocation, Data: s.locationView()},
		{Type: EventPlayback, Data: s.engine.State()},
	} {
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Printf("Error sending %s snapshot: %v", ev.Type, err)
			conn.Close()
			return
		}
	}

	s.mu.Lock()
	s.clients[conn] = true
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Printf("Client connected. Total clients: %d", n)

	for {
		var msg command
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("WebSocket read error: %v", err)
			}
			break
		}
		switch msg.Type {
		case EventPlayback:
			if !s.playbackCommand(msg.Action) {
				s.logger.Printf("WebSocket: unknown playback action %q", msg.Action)
			}
		case EventLocation:
			switch msg.Action {
			case "refresh":
				go s.tracker.RequestOnce(context.Background())
			case "cancel":
				s.tracker.CancelPendingRequest()
			}
		default:
			s.logger.Printf("Received message: %+v", msg)
		}
	}

	s.logger.Printf("Client disconnected. Total clients: %d", s.ClientCount()-1)
}
