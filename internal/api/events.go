package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/unhackeddev/nfury/internal/stream"
)

// sseKeepaliveInterval is how often a comment line is written to keep idle
// SSE connections from being reaped by proxies.
const sseKeepaliveInterval = 15 * time.Second

// HandleEvents streams live run events as Server-Sent Events.
//
// On connect the client receives a Connected greeting; after that, every
// event published on the hub (metric samples, auth lifecycle, terminal
// events) is forwarded until the client disconnects, the max connection
// duration is reached, or the subscriber falls so far behind that the hub
// drops its metric events. There is no replay: a client connecting
// mid-run only sees events from that point on.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		errorJSON(w, "event stream not available", "UNAVAILABLE", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r)
	if s.SSELimiter != nil && !s.SSELimiter.Acquire(ip) {
		errorJSON(w, "too many SSE connections", "RESOURCE_EXHAUSTED", http.StatusTooManyRequests)
		return
	}
	if s.SSELimiter != nil {
		defer s.SSELimiter.Release(ip)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		errorJSON(w, "streaming unsupported", "UNAVAILABLE", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(MaxSSEDurationSeconds)*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	sendEvent := func(name string, payload []byte) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
		flusher.Flush()
	}

	sendEvent(stream.EventConnected, []byte(`{"message":"connected"}`))

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			sendEvent(ev.Name, ev.Payload)
		}
	}
}
