// Package stats computes response-time aggregates for load test runs.
// All functions are pure; callers pass the full sample set collected by
// the engine.
package stats

import (
	"errors"
	"math"
	"sort"

	"github.com/unhackeddev/nfury/internal/domain"
)

// ErrEmptyInput is returned when a percentile is requested over no values.
var ErrEmptyInput = errors.New("percentile of empty input")

// ErrInvalidPercentile is returned for p outside [0, 100].
var ErrInvalidPercentile = errors.New("percentile must be in [0, 100]")

// Sample is one recorded response: elapsed milliseconds and status code.
type Sample struct {
	ResponseTimeMs float64
	StatusCode     int
}

// IsSuccess reports whether the sample's status code is in [200, 300).
func (s Sample) IsSuccess() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// Percentile computes the interpolated-rank percentile of values.
//
// The convention is fixed: sort ascending, position = (n+1)*p/100,
// index = position - 1 split into integer part k and fraction f; clamp to
// the first/last element at the edges, otherwise interpolate linearly
// between values[k] and values[k+1]. Other percentile conventions disagree
// on small samples, so this exact formula is load-bearing.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	if p < 0 || p > 100 {
		return 0, ErrInvalidPercentile
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	position := float64(n+1) * p / 100
	index := position - 1
	k := int(math.Floor(index))
	f := index - float64(k)

	switch {
	case k < 0:
		return sorted[0], nil
	case k >= n-1:
		return sorted[n-1], nil
	default:
		return sorted[k] + f*(sorted[k+1]-sorted[k]), nil
	}
}

// Aggregate summarizes the given samples: counts, min/avg/max, and the
// five standard percentiles. Zero samples produce an all-zero aggregate,
// not an error.
func Aggregate(samples []Sample) domain.RunAggregate {
	agg := domain.RunAggregate{}
	if len(samples) == 0 {
		return agg
	}

	values := make([]float64, 0, len(samples))
	var sum float64
	min := samples[0].ResponseTimeMs
	max := samples[0].ResponseTimeMs
	for _, s := range samples {
		agg.TotalRequests++
		if s.IsSuccess() {
			agg.SuccessfulRequests++
		} else {
			agg.FailedRequests++
		}
		sum += s.ResponseTimeMs
		if s.ResponseTimeMs < min {
			min = s.ResponseTimeMs
		}
		if s.ResponseTimeMs > max {
			max = s.ResponseTimeMs
		}
		values = append(values, s.ResponseTimeMs)
	}

	agg.AverageResponseTime = sum / float64(len(samples))
	agg.MinResponseTime = min
	agg.MaxResponseTime = max
	agg.Percentile50, _ = Percentile(values, 50)
	agg.Percentile75, _ = Percentile(values, 75)
	agg.Percentile90, _ = Percentile(values, 90)
	agg.Percentile95, _ = Percentile(values, 95)
	agg.Percentile99, _ = Percentile(values, 99)
	return agg
}

// PerStatus groups samples by status code and summarizes each group.
func PerStatus(samples []Sample) map[int]domain.StatusAggregate {
	byCode := make(map[int][]float64)
	for _, s := range samples {
		byCode[s.StatusCode] = append(byCode[s.StatusCode], s.ResponseTimeMs)
	}

	result := make(map[int]domain.StatusAggregate, len(byCode))
	for code, values := range byCode {
		var sum float64
		min := values[0]
		max := values[0]
		for _, v := range values {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		sa := domain.StatusAggregate{
			Count: int64(len(values)),
			Min:   min,
			Avg:   sum / float64(len(values)),
			Max:   max,
		}
		sa.P50, _ = Percentile(values, 50)
		sa.P75, _ = Percentile(values, 75)
		sa.P90, _ = Percentile(values, 90)
		sa.P95, _ = Percentile(values, 95)
		sa.P99, _ = Percentile(values, 99)
		result[code] = sa
	}
	return result
}
