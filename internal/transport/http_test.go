// Copyright 2025 Joseph Cumines
//
// HTTP/SSE transport unit tests

package transport

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, cfg *HTTPTransportConfig) (*HTTPTransport, *httptest.Server) {
	t.Helper()
	tr := NewHTTPTransport(cfg)
	srv := httptest.NewServer(tr.Handler(echoHandler))
	t.Cleanup(func() {
		_ = tr.Close()
		srv.Close()
	})
	return tr, srv
}

func do(t *testing.T, method, url, key, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(data)
}

func TestHTTPMessage(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/message", "", `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatal(err)
	}
	if string(msg.ID) != "7" || string(msg.Result) != `"tools/list"` {
		t.Errorf("response = %+v", msg)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/message", "", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp.StatusCode != http.StatusAccepted || body != "" {
		t.Errorf("notification: status = %d, body = %q", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/message", "", `{"jsonrpc":`)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "-32700") {
		t.Errorf("invalid JSON: status = %d, body = %s", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/message", "", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /message status = %d", resp.StatusCode)
	}
}

func TestHTTPAuth(t *testing.T) {
	_, srv := newTestServer(t, &HTTPTransportConfig{APIKey: "s3cret"})
	const ping = `{"jsonrpc":"2.0","id":1,"method":"ping"}`

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		status int
	}{
		{"missing key", http.MethodPost, "/message", "", http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "/message", "nope", http.StatusUnauthorized},
		{"valid key", http.MethodPost, "/message", "s3cret", http.StatusOK},
		{"health is open", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics needs key", http.MethodGet, "/metrics", "", http.StatusUnauthorized},
		{"metrics with key", http.MethodGet, "/metrics", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, tt.key, ping)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (body %q)", resp.StatusCode, tt.status, body)
			}
			if tt.status == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestHTTPCORSPreflight(t *testing.T) {
	_, srv := newTestServer(t, &HTTPTransportConfig{APIKey: "k", CORSOrigin: "https://example.com"})
	resp, _ := do(t, http.MethodOptions, srv.URL+"/message", "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestHTTPRateLimit(t *testing.T) {
	_, srv := newTestServer(t, &HTTPTransportConfig{RateLimit: 0.001})
	const ping = `{"jsonrpc":"2.0","id":1,"method":"ping"}`

	resp, _ := do(t, http.MethodPost, srv.URL+"/message", "", ping)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/message", "", ping)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want exempt", resp.StatusCode)
	}
}

func waitClients(t *testing.T, tr *HTTPTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for tr.clients.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", tr.clients.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readEvent reads lines up to the next blank line, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	event := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			if len(event) == 0 {
				continue
			}
			return event
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		k, v, _ := strings.Cut(line, ": ")
		event[k] = v
	}
}

func TestHTTPSSE(t *testing.T) {
	tr, srv := newTestServer(t, &HTTPTransportConfig{HeartbeatInterval: time.Hour})

	if err := tr.WriteMessage(&Message{JSONRPC: Version, Method: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.WriteMessage(&Message{JSONRPC: Version, Method: "second"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	reader := bufio.NewReader(resp.Body)

	replayed := readEvent(t, reader)
	if replayed["id"] != "2" || !strings.Contains(replayed["data"], `"second"`) {
		t.Errorf("replayed event = %v", replayed)
	}

	waitClients(t, tr, 1)
	if got := tr.Metrics().Gauge(MetricSSEConnections, ""); got != 1 {
		t.Errorf("connections gauge = %g, want 1", got)
	}

	do(t, http.MethodPost, srv.URL+"/message", "", `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	live := readEvent(t, reader)
	if live["event"] != "message" || !strings.Contains(live["data"], `"id":9`) {
		t.Errorf("live event = %v", live)
	}

	cancel()
	waitClients(t, tr, 0)
	if got := tr.Metrics().Counter(MetricSSEEvents, ""); got != 2 {
		t.Errorf("events counter = %d, want 2", got)
	}
}

func TestWriteSSEEvent_Multiline(t *testing.T) {
	var b strings.Builder
	if err := writeSSEEvent(&b, &SSEEvent{ID: "3", Event: "message", Data: "a\nb"}); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "id: 3\nevent: message\ndata: a\ndata: b\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func writeSelfSignedCert(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	certFile, keyFile = filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestHTTPServe(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t)

	tests := []struct {
		name   string
		config HTTPTransportConfig
		scheme string
	}{
		{"plain", HTTPTransportConfig{Address: "127.0.0.1:0"}, "http"},
		{"tls", HTTPTransportConfig{Address: "127.0.0.1:0", TLSCertFile: certFile, TLSKeyFile: keyFile}, "https"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewHTTPTransport(&tt.config)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- tr.Serve(ctx, echoHandler) }()

			addrCtx, addrCancel := context.WithTimeout(ctx, 5*time.Second)
			defer addrCancel()
			addr, err := tr.Addr(addrCtx)
			if err != nil {
				t.Fatal(err)
			}

			client := &http.Client{Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}}
			resp, err := client.Get(tt.scheme + "://" + addr.String() + "/health")
			if err != nil {
				t.Fatal(err)
			}
			var health map[string]any
			err = json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
			if err != nil || health["status"] != "ok" {
				t.Errorf("health = %v, err = %v", health, err)
			}
			if (resp.TLS != nil) != (tt.scheme == "https") {
				t.Errorf("TLS state = %v, want scheme %s", resp.TLS != nil, tt.scheme)
			}

			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Serve() error = %v", err)
				}
			case <-time.After(10 * time.Second):
				t.Fatal("Serve did not return after cancel")
			}
			if !tr.IsClosed() {
				t.Error("transport not closed after cancel")
			}
		})
	}
}
