package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"workload-orchestrator/pkg/cloudevent"
)

// HeartbeatReceiver accepts heartbeat CloudEvents. Tokens marked expired are
// answered with 410 Gone; with a signing key set, unsigned or mis-signed
// events are answered with 401.
type HeartbeatReceiver struct {
	Server   *httptest.Server
	Received atomic.Int64

	mu         sync.Mutex
	signingKey string
	expired    map[string]bool
	tokens     []string
}

// NewHeartbeatReceiver starts a receiver.
func NewHeartbeatReceiver(tb testing.TB) *HeartbeatReceiver {
	tb.Helper()

	h := &HeartbeatReceiver{expired: make(map[string]bool)}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var event cloudevent.CloudEvent
		if err := json.Unmarshal(body, &event); err != nil || event.Validate() != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		h.mu.Lock()
		key := h.signingKey
		h.mu.Unlock()
		if key != "" && !cloudevent.Verify(body, r.Header.Get(cloudevent.SignatureHeader), key) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		h.mu.Lock()
		h.tokens = append(h.tokens, event.Subject)
		expired := h.expired[event.Subject]
		h.mu.Unlock()
		h.Received.Add(1)

		if expired {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	tb.Cleanup(h.Server.Close)
	return h
}

// RequireSignature rejects events not signed with key.
func (h *HeartbeatReceiver) RequireSignature(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signingKey = key
}

// Expire makes heartbeats for token answer 410 Gone.
func (h *HeartbeatReceiver) Expire(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expired[token] = true
}

// Tokens returns the subjects received, in arrival order.
func (h *HeartbeatReceiver) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens...)
}
