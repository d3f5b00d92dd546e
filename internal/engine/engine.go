// Package engine executes one load run: U workers issuing requests against
// a single target through a shared HTTP client, recording per-request
// latency and status into an accumulator, and emitting a live sample after
// every response.
package engine

import (
	"context"
	"crypto/tls"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/stats"
)

// Config is the effective input of one run, resolved by the lifecycle
// manager. Exactly one of Requests and DurationSeconds is set.
type Config struct {
	URL             string
	Method          domain.HTTPMethod
	Users           int
	Requests        *int
	DurationSeconds *int
	Body            string
	ContentType     string
	Headers         map[string]string
	Insecure        bool

	// Bearer credential injected into every request when set.
	AuthHeaderName  string
	AuthHeaderValue string
}

// SampleFunc receives every recorded sample, carrying running totals. It is
// called from worker goroutines and must not block.
type SampleFunc func(domain.MetricSample)

// Engine drives the worker pool for a single run. One Engine per run.
type Engine struct {
	token    string
	cfg      Config
	client   *http.Client
	onSample SampleFunc

	mu         sync.Mutex
	samples    []stats.Sample
	elapsedSum float64

	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	window  rpsWindow
	peakRps atomic.Uint64 // float64 bits, compare-and-swap on every sample
}

// New builds an engine for the given run token and config. onSample may be
// nil for headless runs.
func New(token string, cfg Config, onSample SampleFunc) *Engine {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.Users
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Engine{
		token:    token,
		cfg:      cfg,
		client:   &http.Client{Transport: transport},
		onSample: onSample,
	}
}

// Run executes the load and returns the final aggregate. Cancelling ctx
// stops workers cooperatively: the check happens at the top of each loop
// iteration and the in-flight request is aborted, so cancellation is
// observed within one request's worth of time. The partial aggregate is
// still returned.
func (e *Engine) Run(ctx context.Context) domain.RunAggregate {
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, start)
		}()
	}
	wg.Wait()

	return e.aggregate(time.Since(start))
}

// worker runs one user's request loop until the stop criterion or
// cancellation.
func (e *Engine) worker(ctx context.Context, start time.Time) {
	if e.cfg.Requests != nil {
		// Budget mode: floor(R/U) requests per worker. The R mod U
		// stragglers are deliberately not redistributed so workers stay
		// symmetric; the effective total may undershoot R by up to U-1.
		budget := *e.cfg.Requests / e.cfg.Users
		for i := 0; i < budget; i++ {
			if ctx.Err() != nil {
				return
			}
			e.doRequest(ctx)
		}
		return
	}

	deadline := start.Add(time.Duration(*e.cfg.DurationSeconds) * time.Second)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		e.doRequest(ctx)
	}
}

// doRequest issues one request, timing send-to-headers only. The response
// body is closed unread: draining it would add transfer time the latency
// figure is not supposed to include. A transport failure records a 503
// sample with the elapsed time up to the failure.
func (e *Engine) doRequest(ctx context.Context) {
	var body io.Reader
	if e.cfg.Body != "" {
		body = strings.NewReader(e.cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, string(e.cfg.Method), e.cfg.URL, body)
	if err != nil {
		e.record(0, http.StatusServiceUnavailable)
		return
	}
	if e.cfg.Body != "" && e.cfg.ContentType != "" {
		req.Header.Set("Content-Type", e.cfg.ContentType)
	}
	for name, value := range e.cfg.Headers {
		req.Header.Set(name, value)
	}
	if e.cfg.AuthHeaderName != "" {
		req.Header.Set(e.cfg.AuthHeaderName, e.cfg.AuthHeaderValue)
	}

	begin := time.Now()
	resp, err := e.client.Do(req)
	elapsed := time.Since(begin)

	// Whole milliseconds, rounded toward zero.
	elapsedMs := float64(elapsed.Milliseconds())

	if err != nil {
		e.record(elapsedMs, http.StatusServiceUnavailable)
		return
	}
	status := resp.StatusCode
	_ = resp.Body.Close()
	e.record(elapsedMs, status)
}

// record appends the sample, updates the RPS window and peak, and emits the
// live metric sample with running totals.
func (e *Engine) record(elapsedMs float64, status int) {
	sample := stats.Sample{ResponseTimeMs: elapsedMs, StatusCode: status}

	total := e.total.Add(1)
	var succeeded, failed int64
	if sample.IsSuccess() {
		succeeded = e.succeeded.Add(1)
		failed = e.failed.Load()
	} else {
		failed = e.failed.Add(1)
		succeeded = e.succeeded.Load()
	}

	currentRps := e.window.observe(time.Now())
	e.updatePeak(currentRps)

	e.mu.Lock()
	e.samples = append(e.samples, sample)
	e.elapsedSum += elapsedMs
	avg := e.elapsedSum / float64(len(e.samples))
	e.mu.Unlock()

	if e.onSample != nil {
		e.onSample(domain.MetricSample{
			RunToken:            e.token,
			Timestamp:           time.Now().UTC(),
			ResponseTimeMs:      elapsedMs,
			StatusCode:          status,
			IsSuccess:           sample.IsSuccess(),
			TotalRequests:       total,
			SuccessfulRequests:  succeeded,
			FailedRequests:      failed,
			CurrentRps:          currentRps,
			AverageResponseTime: avg,
		})
	}
}

func (e *Engine) updatePeak(rps float64) {
	for {
		old := e.peakRps.Load()
		if rps <= math.Float64frombits(old) {
			return
		}
		if e.peakRps.CompareAndSwap(old, math.Float64bits(rps)) {
			return
		}
	}
}

// aggregate folds the accumulator into the final wire aggregate. The
// reported RequestsPerSecond is the observed peak windowed rate, not an
// average over the run.
func (e *Engine) aggregate(elapsed time.Duration) domain.RunAggregate {
	e.mu.Lock()
	samples := make([]stats.Sample, len(e.samples))
	copy(samples, e.samples)
	e.mu.Unlock()

	agg := stats.Aggregate(samples)
	agg.RunToken = e.token
	agg.RequestsPerSecond = math.Float64frombits(e.peakRps.Load())
	agg.TotalElapsedTime = elapsed.Milliseconds()
	agg.StatusCodes = stats.PerStatus(samples)
	return agg
}

// rpsWindow is a sliding 1-second window of request timestamps. Stale
// entries are evicted lazily on observe. The eviction step may race with
// concurrent observes; the rate is a statistic and a ±1 error is fine, but
// the slice itself is guarded.
type rpsWindow struct {
	mu    sync.Mutex
	times []time.Time
}

func (w *rpsWindow) observe(now time.Time) float64 {
	cutoff := now.Add(-time.Second)

	w.mu.Lock()
	defer w.mu.Unlock()

	keep := 0
	for keep < len(w.times) && w.times[keep].Before(cutoff) {
		keep++
	}
	if keep > 0 {
		w.times = append(w.times[:0], w.times[keep:]...)
	}
	w.times = append(w.times, now)
	return float64(len(w.times))
}
