// Copyright 2025 Joseph Cumines
//
// HTTP/SSE transport for JSON-RPC 2.0 communication

package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// maxBodySize bounds a POSTed message.
const maxBodySize = 16 << 20

// HTTPTransportConfig holds configuration for HTTP transport.
// SocketPath, when set, takes precedence over Address. WriteTimeout defaults
// to zero because SSE streams are long-lived. An empty APIKey disables
// authentication; TLS is served when both TLS files are set.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type HTTPTransportConfig struct {
	Address           string
	SocketPath        string
	CORSOrigin        string
	APIKey            string
	TLSCertFile       string
	TLSKeyFile        string
	RateLimit         float64
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	Metrics           *MetricsRegistry
}

// HTTPTransport serves JSON-RPC over POST /message, mirrors every response to
// SSE subscribers on GET /events, and exposes /health and /metrics.
type HTTPTransport struct {
	config     HTTPTransportConfig
	server     *http.Server
	handler    atomic.Pointer[Handler]
	clients    *ClientRegistry
	listener   net.Listener
	ready      chan struct{}
	shutdownCh chan struct{}
	eventID    atomic.Uint64
	closed     atomic.Bool
	readyOnce  sync.Once
}

// NewHTTPTransport creates a new HTTP/SSE transport. A nil config uses the
// defaults.
func NewHTTPTransport(config *HTTPTransportConfig) *HTTPTransport {
	var cfg HTTPTransportConfig
	if config != nil {
		cfg = *config
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetricsRegistry()
	}

	t := &HTTPTransport{
		config:     cfg,
		clients:    NewClientRegistry(1000),
		ready:      make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/message", t.handleMessage)
	mux.HandleFunc("/events", t.handleSSE)
	mux.HandleFunc("/health", t.handleHealth)
	mux.HandleFunc("/metrics", t.handleMetrics)

	var h http.Handler = mux
	h = authMiddleware(cfg.APIKey, h)
	h = RateLimitMiddleware(NewRateLimiter(cfg.RateLimit, nil), h)
	h = t.corsMiddleware(h)

	t.server = &http.Server{
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return t
}

// Metrics returns the registry served at /metrics.
func (t *HTTPTransport) Metrics() *MetricsRegistry { return t.config.Metrics }

// Handler installs handler and returns the complete HTTP handler chain,
// for embedding or tests.
func (t *HTTPTransport) Handler(handler Handler) http.Handler {
	t.handler.Store(&handler)
	return t.server.Handler
}

// Addr returns the bound address once Serve is listening.
func (t *HTTPTransport) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-t.ready:
		return t.listener.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *HTTPTransport) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", t.config.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Last-Event-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires "Authorization: Bearer <key>" on everything but
// /health. An empty key disables the check.
func authMiddleware(key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	want := []byte(key)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="xcodebuild-mcp"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// handleMessage handles POST /message
func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, NewError(json.RawMessage("null"), ErrCodeParseError, "Parse error"))
		return
	}

	handler := t.handler.Load()
	if handler == nil {
		http.Error(w, "Handler not set", http.StatusServiceUnavailable)
		return
	}

	response := respond(r.Context(), *handler, &msg)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, response)

	if err := t.WriteMessage(response); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("Error broadcasting response: %v", err)
	}
}

// handleSSE handles GET /events
func (t *HTTPTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client, missed := t.clients.Add(r.Header.Get("Last-Event-ID"))
	t.config.Metrics.SetSSEConnections(t.clients.Count())
	defer func() {
		t.clients.Remove(client.ID)
		t.config.Metrics.SetSSEConnections(t.clients.Count())
	}()

	for _, event := range missed {
		if err := writeSSEEvent(w, event); err != nil {
			return
		}
		t.config.Metrics.RecordSSEEvent()
	}
	flusher.Flush()

	heartbeat := time.NewTicker(t.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-t.shutdownCh:
			_, _ = io.WriteString(w, "event: complete\ndata: server shutdown\n\n")
			flusher.Flush()
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event := <-client.events:
			if err := writeSSEEvent(w, event); err != nil {
				log.Printf("SSE client %s: write error: %v", client.ID, err)
				return
			}
			t.config.Metrics.RecordSSEEvent()
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event, prefixing every data line.
func writeSSEEvent(w io.Writer, event *SSEEvent) error {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\nevent: %s\n", event.ID, event.Event)
	for _, line := range strings.Split(event.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"clients":     t.clients.Count(),
		"server_time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (t *HTTPTransport) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := t.config.Metrics.WritePrometheus(w); err != nil {
		log.Printf("Error writing metrics: %v", err)
	}
}

// Serve listens and serves until ctx is done or Close is called.
func (t *HTTPTransport) Serve(ctx context.Context, handler Handler) error {
	t.Handler(handler)

	network, address := "tcp", t.config.Address
	if t.config.SocketPath != "" {
		network, address = "unix", t.config.SocketPath
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove stale socket %s: %v", address, err)
		}
	}
	listener, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	t.listener = listener
	t.readyOnce.Do(func() { close(t.ready) })

	scheme := "http"
	if t.config.TLSCertFile != "" {
		scheme = "https"
	}
	log.Printf("HTTP/SSE transport listening on %s://%s", scheme, listener.Addr())

	stop := context.AfterFunc(ctx, func() {
		if err := t.Close(); err != nil {
			log.Printf("Error closing HTTP transport: %v", err)
		}
	})
	defer stop()

	if t.config.TLSCertFile != "" {
		err = t.server.ServeTLS(listener, t.config.TLSCertFile, t.config.TLSKeyFile)
	} else {
		err = t.server.Serve(listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// WriteMessage broadcasts a message to all connected SSE clients.
func (t *HTTPTransport) WriteMessage(msg *Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	t.clients.Broadcast(&SSEEvent{
		ID:    strconv.FormatUint(t.eventID.Add(1), 10),
		Event: "message",
		Data:  string(data),
	})
	return nil
}

// Close stops the server, ending SSE streams with a completion event.
func (t *HTTPTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.shutdownCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if t.config.SocketPath != "" {
		if err := os.Remove(t.config.SocketPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove socket file %s: %v", t.config.SocketPath, err)
		}
	}
	return nil
}

// IsClosed returns whether the transport is closed
func (t *HTTPTransport) IsClosed() bool {
	return t.closed.Load()
}
