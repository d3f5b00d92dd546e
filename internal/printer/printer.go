// Package printer renders run results for the terminal.
package printer

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/unhackeddev/nfury/internal/domain"
)

// Printer writes a finished run's aggregate somewhere a human will read it.
type Printer interface {
	WriteResults(agg domain.RunAggregate)
}

// Terminal is an ANSI terminal Printer. Colors degrade to plain text when
// the destination is not a TTY (fatih/color handles the detection).
type Terminal struct {
	out io.Writer
}

// NewTerminal creates a Terminal printer writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// WriteResults renders the aggregate as an aligned summary block followed
// by a per-status breakdown.
func (p *Terminal) WriteResults(agg domain.RunAggregate) {
	header := color.New(color.Bold, color.FgCyan)
	label := color.New(color.FgWhite)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	fmt.Fprintln(p.out)
	header.Fprintln(p.out, "Results")
	header.Fprintln(p.out, "=======")

	elapsed := time.Duration(agg.TotalElapsedTime) * time.Millisecond
	p.row(label, "Total requests", "%d", agg.TotalRequests)
	p.row(good, "Succeeded", "%d", agg.SuccessfulRequests)
	if agg.FailedRequests > 0 {
		p.row(bad, "Failed", "%d", agg.FailedRequests)
	} else {
		p.row(label, "Failed", "%d", agg.FailedRequests)
	}
	p.row(label, "Elapsed", "%s", elapsed)
	p.row(label, "Peak req/sec", "%.2f", agg.RequestsPerSecond)

	fmt.Fprintln(p.out)
	header.Fprintln(p.out, "Response times (ms)")
	p.row(label, "Average", "%.2f", agg.AverageResponseTime)
	p.row(label, "Min", "%.2f", agg.MinResponseTime)
	p.row(label, "Max", "%.2f", agg.MaxResponseTime)
	p.row(label, "P50", "%.2f", agg.Percentile50)
	p.row(label, "P75", "%.2f", agg.Percentile75)
	p.row(label, "P90", "%.2f", agg.Percentile90)
	p.row(label, "P95", "%.2f", agg.Percentile95)
	p.row(label, "P99", "%.2f", agg.Percentile99)

	if len(agg.StatusCodes) > 0 {
		fmt.Fprintln(p.out)
		header.Fprintln(p.out, "Status codes")
		codes := make([]int, 0, len(agg.StatusCodes))
		for code := range agg.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			s := agg.StatusCodes[code]
			line := label
			if code < 200 || code >= 300 {
				line = bad
			}
			line.Fprintf(p.out, "  %d: %d requests (avg %.2f ms, p95 %.2f ms)\n",
				code, s.Count, s.Avg, s.P95)
		}
	}
	fmt.Fprintln(p.out)
}

func (p *Terminal) row(c *color.Color, name, format string, v any) {
	c.Fprintf(p.out, "  %-16s "+format+"\n", name, v)
}
