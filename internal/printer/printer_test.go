package printer_test

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/printer"
)

func sampleAggregate() domain.RunAggregate {
	return domain.RunAggregate{
		RunToken:            "tok-1",
		TotalRequests:       100,
		SuccessfulRequests:  97,
		FailedRequests:      3,
		RequestsPerSecond:   42.5,
		AverageResponseTime: 12.34,
		MinResponseTime:     1.2,
		MaxResponseTime:     99.9,
		Percentile50:        10,
		Percentile95:        50,
		Percentile99:        90,
		TotalElapsedTime:    2500,
		StatusCodes: map[int]domain.StatusAggregate{
			200: {Count: 97, Avg: 11.8, P95: 48},
			500: {Count: 3, Avg: 30.1, P95: 80},
		},
	}
}

func render(agg domain.RunAggregate) string {
	// Force plain output so assertions don't fight ANSI escapes.
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	printer.NewTerminal(&buf).WriteResults(agg)
	return buf.String()
}

func TestWriteResultsRendersSummary(t *testing.T) {
	out := render(sampleAggregate())

	assert.Contains(t, out, "Results")
	assert.Contains(t, out, "Total requests   100")
	assert.Contains(t, out, "Succeeded        97")
	assert.Contains(t, out, "Failed           3")
	assert.Contains(t, out, "Elapsed          2.5s")
	assert.Contains(t, out, "Peak req/sec     42.50")
	assert.Contains(t, out, "P95              50.00")
}

func TestWriteResultsRendersStatusCodesSorted(t *testing.T) {
	out := render(sampleAggregate())

	assert.Contains(t, out, "200: 97 requests (avg 11.80 ms, p95 48.00 ms)")
	assert.Contains(t, out, "500: 3 requests (avg 30.10 ms, p95 80.00 ms)")
	assert.Less(t, indexOf(out, "200:"), indexOf(out, "500:"))
}

func TestWriteResultsOmitsStatusBlockWhenEmpty(t *testing.T) {
	agg := sampleAggregate()
	agg.StatusCodes = nil

	out := render(agg)
	assert.NotContains(t, out, "Status codes")
}

func indexOf(s, sub string) int {
	return bytes.Index([]byte(s), []byte(sub))
}
