// Package dashboard serves rolls and charts over HTTP and streams every
// engine event to websocket clients.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chosenoffset/roll/internal/random"
	"github.com/chosenoffset/roll/pkg/roll"
	"github.com/chosenoffset/roll/pkg/roll/actions"
	"github.com/chosenoffset/roll/pkg/roll/metrics"
	"github.com/chosenoffset/roll/pkg/roll/parser"
	"github.com/chosenoffset/roll/pkg/roll/render"
)

const (
	maxRollCount  = 1000
	eventBuffer   = 50
	pingInterval  = 30 * time.Second
	readTimeout   = 60 * time.Second
	writeTimeout  = 10 * time.Second
	shutdownGrace = 5 * time.Second
)

type Server struct {
	addr         string
	engine       *roll.Engine
	logger       *slog.Logger
	httpMetrics  *metrics.HTTPMetrics
	chartSamples int
	workers      int

	server       *http.Server
	serverMutex  sync.Mutex
	upgrader     websocket.Upgrader
	clients      map[*client]bool
	clientsMutex sync.RWMutex
	maxClients   int

	events    chan actions.Event
	stop      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	eventBuffer []actions.Event
	eventIndex  int
	eventCount  int
	mutex       sync.RWMutex
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithMaxClients caps concurrent websocket clients. 0 means unlimited.
func WithMaxClients(n int) Option {
	return func(s *Server) { s.maxClients = n }
}

// WithOriginCheck replaces the default same-origin websocket check.
func WithOriginCheck(check func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = check }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithHTTPMetrics(m *metrics.HTTPMetrics) Option {
	return func(s *Server) { s.httpMetrics = m }
}

// WithChartDefaults sets the sample count used when /api/chart is called
// without one, and the number of sampling workers.
func WithChartDefaults(samples, workers int) Option {
	return func(s *Server) {
		if samples > 0 {
			s.chartSamples = samples
		}
		s.workers = workers
	}
}

// NewServer creates a dashboard backed by engine and registers it for
// every event type on the engine's registry.
func NewServer(engine *roll.Engine, opts ...Option) *Server {
	s := &Server{
		addr:   ":9090",
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:      make(map[*client]bool),
		maxClients:   100,
		chartSamples: 10000,
		events:       make(chan actions.Event, 100),
		stop:         make(chan struct{}),
		eventBuffer:  make([]actions.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpMetrics == nil {
		s.httpMetrics = metrics.NewHTTPMetrics(1000)
	}
	s.logger = s.logger.With("component", "dashboard")

	handler := s.EventHandler()
	for _, t := range []actions.EventType{actions.RollEvent, actions.HistogramEvent, actions.FailureEvent} {
		engine.Registry().Register(t, handler)
	}
	return s
}

// Handler returns the dashboard routes and starts the broadcast loop.
func (s *Server) Handler() http.Handler {
	s.startOnce.Do(func() { go s.broadcast() })

	mux := http.NewServeMux()
	mux.HandleFunc("/api/roll", s.httpMetrics.Middleware(s.handleRoll))
	mux.HandleFunc("/api/chart", s.httpMetrics.Middleware(s.handleChart))
	mux.HandleFunc("/api/metrics", s.httpMetrics.Middleware(s.handleMetrics))
	mux.HandleFunc("/api/events", s.httpMetrics.Middleware(s.handleEvents))
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start listens on the configured address until Stop is called.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMutex.Lock()
	s.server = srv
	s.serverMutex.Unlock()

	s.logger.Info("starting roll dashboard", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard listen: %w", err)
	}
	return nil
}

// Stop closes websocket clients and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.serverMutex.Lock()
	srv := s.server
	s.serverMutex.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.logger.Info("stopping roll dashboard")
	return srv.Shutdown(ctx)
}

// Publish queues an event for websocket clients. Events are dropped when
// the queue is full.
func (s *Server) Publish(event actions.Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Debug("event queue full, dropping event", "type", event.Type)
	}
}

// EventHandler adapts Publish to the engine's handler registry.
func (s *Server) EventHandler() actions.Handler {
	return actions.HandlerFunc(func(_ context.Context, event actions.Event) error {
		s.Publish(event)
		return nil
	})
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

type RollResponse struct {
	Expression string        `json:"expression"`
	Remaining  string        `json:"remaining,omitempty"`
	Seed       int64         `json:"seed"`
	Rolls      []*roll.Value `json:"rolls"`
	Text       string        `json:"text"`
	Errors     []string      `json:"errors,omitempty"`
}

type ChartResponse struct {
	Expression string        `json:"expression"`
	Remaining  string        `json:"remaining,omitempty"`
	Seed       int64         `json:"seed"`
	Samples    int           `json:"samples"`
	Mean       float64       `json:"mean"`
	Buckets    []roll.Bucket `json:"buckets"`
	Text       string        `json:"text"`
}

type MetricsResponse struct {
	Rolls   metrics.RollStats    `json:"rolls"`
	Recent  []int                `json:"recent"`
	HTTP    metrics.HTTPStats    `json:"http"`
	Runtime metrics.RuntimeStats `json:"runtime"`
	Clients int                  `json:"clients"`
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	q := r.URL.Query()

	res, ok := parseQuery(w, q.Get("expr"))
	if !ok {
		return
	}
	count, err := intParam(q.Get("count"), 1)
	if err != nil || count < 1 || count > maxRollCount {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 1 and %d", maxRollCount))
		return
	}
	seed, ok := seedParam(w, q.Get("seed"))
	if !ok {
		return
	}

	values, err := s.engine.Run(r.Context(), res.Expression, roll.NewSource(seed), count)
	if len(values) == 0 && err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	var text bytes.Buffer
	render.Full(&text, res.Expression, values)
	resp := RollResponse{
		Expression: res.Expression.String(),
		Remaining:  res.Remaining,
		Seed:       seed,
		Rolls:      values,
		Text:       text.String(),
	}
	if err != nil {
		resp.Errors = splitErrors(err)
	}
	writeOK(w, resp)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	q := r.URL.Query()

	res, ok := parseQuery(w, q.Get("expr"))
	if !ok {
		return
	}
	samples, err := intParam(q.Get("samples"), s.chartSamples)
	if err != nil || samples < 1 {
		writeError(w, http.StatusBadRequest, "samples must be a positive integer")
		return
	}
	seed, ok := seedParam(w, q.Get("seed"))
	if !ok {
		return
	}

	var h *roll.Histogram
	if s.workers > 0 {
		h, err = s.engine.SampleParallel(r.Context(), res.Expression, samples, s.workers, seed)
	} else {
		h, err = s.engine.Histogram(r.Context(), res.Expression, roll.NewSource(seed), samples)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	var text bytes.Buffer
	render.Chart(&text, h)
	writeOK(w, ChartResponse{
		Expression: res.Expression.String(),
		Remaining:  res.Remaining,
		Seed:       seed,
		Samples:    h.Samples,
		Mean:       h.Mean(),
		Buckets:    h.Buckets,
		Text:       text.String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	counters := s.engine.Counters()
	writeOK(w, MetricsResponse{
		Rolls:   counters.GetStats(),
		Recent:  counters.Recent(),
		HTTP:    s.httpMetrics.GetStats(),
		Runtime: metrics.ReadRuntime(),
		Clients: s.ClientCount(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeOK(w, s.RecentEvents())
}

// RecentEvents returns the buffered events, oldest first.
func (s *Server) RecentEvents() []actions.Event {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	events := make([]actions.Event, s.eventCount)
	if s.eventCount == len(s.eventBuffer) {
		for i := range events {
			events[i] = s.eventBuffer[(s.eventIndex+i)%len(s.eventBuffer)]
		}
	} else {
		copy(events, s.eventBuffer[:s.eventCount])
	}
	return events
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.maxClients > 0 && s.ClientCount() >= s.maxClients {
		http.Error(w, "Maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	s.clientsMutex.Lock()
	s.clients[c] = true
	s.clientsMutex.Unlock()
	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	defer func() {
		s.clientsMutex.Lock()
		delete(s.clients, c)
		s.clientsMutex.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	// reads detect disconnects; clients never send anything meaningful
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Warn("websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-s.stop:
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Server) broadcast() {
	for {
		select {
		case event := <-s.events:
			s.mutex.Lock()
			s.eventBuffer[s.eventIndex] = event
			s.eventIndex = (s.eventIndex + 1) % len(s.eventBuffer)
			if s.eventCount < len(s.eventBuffer) {
				s.eventCount++
			}
			s.mutex.Unlock()

			s.broadcastMessage(map[string]any{
				"type": "event",
				"data": event,
			})
		case <-s.stop:
			return
		}
	}
}

func (s *Server) broadcastMessage(message any) {
	s.clientsMutex.RLock()
	if len(s.clients) == 0 {
		s.clientsMutex.RUnlock()
		return
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMutex.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("marshal broadcast", "error", err)
		return
	}

	var failed []*client
	for _, c := range clients {
		if err := c.write(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			failed = append(failed, c)
		}
	}

	if len(failed) > 0 {
		s.clientsMutex.Lock()
		for _, c := range failed {
			delete(s.clients, c)
		}
		s.clientsMutex.Unlock()
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// parseQuery accepts a partial parse; the unparsed rest is reported in
// the response.
func parseQuery(w http.ResponseWriter, expr string) (*parser.Result, bool) {
	if expr == "" {
		writeError(w, http.StatusBadRequest, "missing expr parameter")
		return nil, false
	}
	res := parser.Parse(expr)
	if res.Expression == nil {
		writeError(w, http.StatusBadRequest, render.Partial(res))
		return nil, false
	}
	return res, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func seedParam(w http.ResponseWriter, raw string) (int64, bool) {
	var seed int64
	if raw != "" {
		var err error
		if seed, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "seed must be an integer")
			return 0, false
		}
	}
	seed, err := random.Resolve(seed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return 0, false
	}
	return seed, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, roll.ErrLimitExceeded):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusUnprocessableEntity
	}
}

func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status": "error",
		"error":  message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
