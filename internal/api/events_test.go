package api_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/stream"
)

// readSSEEvent scans the stream until it finds the next "event:" line and
// returns the event name.
func readSSEEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		}
	}
}

func TestEventsStreamSendsConnectedGreeting(t *testing.T) {
	h, deps := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, stream.EventConnected, readSSEEvent(t, reader))

	// A metric published after connect is forwarded on the same stream.
	go func() {
		for i := 0; i < 100; i++ {
			if deps.hub.SubscriberCount() > 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		deps.hub.Publish(stream.EventMetricReceived, domain.MetricSample{
			RunToken:   "tok-1",
			StatusCode: 200,
		})
	}()

	assert.Equal(t, stream.EventMetricReceived, readSSEEvent(t, reader))
}

func TestEventsStreamForwardsTerminalEvent(t *testing.T) {
	h, deps := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	require.Equal(t, stream.EventConnected, readSSEEvent(t, reader))

	go func() {
		for i := 0; i < 100; i++ {
			if deps.hub.SubscriberCount() > 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		deps.hub.PublishReliable(stream.EventTestCompleted, domain.RunAggregate{RunToken: "tok-1"})
	}()

	assert.Equal(t, stream.EventTestCompleted, readSSEEvent(t, reader))
}
