package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/engine"
	"github.com/unhackeddev/nfury/internal/printer"
)

type runFlags struct {
	url         string
	method      string
	users       int
	requests    int
	duration    int
	body        string
	contentType string
	headers     []string
	insecure    bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a one-shot load test against a URL",
		Example: `  nfury run --url http://localhost:8080/api/items --users 25 --requests 5000
  nfury run --url https://staging.example.com/health --duration 60 --insecure`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "", "target URL (required)")
	fl.StringVarP(&f.method, "method", "m", "GET", "HTTP method")
	fl.IntVarP(&f.users, "users", "u", 10, "concurrent virtual users")
	fl.IntVarP(&f.requests, "requests", "r", 0, "total request budget (default 100; mutually exclusive with --duration)")
	fl.IntVarP(&f.duration, "duration", "d", 0, "run duration in seconds (mutually exclusive with --requests)")
	fl.StringVar(&f.body, "body", "", "request body")
	fl.StringVar(&f.contentType, "content-type", "application/json", "request content type")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, `extra request header as "Name: value" (repeatable)`)
	fl.BoolVar(&f.insecure, "insecure", false, "skip TLS certificate verification")
	cmd.MarkFlagRequired("url")

	return cmd
}

func runOnce(parent context.Context, f runFlags) error {
	req := domain.RunRequest{
		URL:         f.url,
		Method:      f.method,
		Users:       f.users,
		Body:        f.body,
		ContentType: f.contentType,
		Insecure:    f.insecure,
	}
	if f.requests > 0 {
		req.Requests = &f.requests
	}
	if f.duration > 0 {
		req.DurationSeconds = &f.duration
	}
	headers, err := parseHeaderFlags(f.headers)
	if err != nil {
		return err
	}
	req.Headers = headers

	if err := req.Validate(); err != nil {
		return err
	}

	// Ctrl+C cancels the workers; the partial aggregate still prints.
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := engine.Config{
		URL:             req.URL,
		Method:          domain.HTTPMethod(req.Method),
		Users:           req.Users,
		Requests:        req.Requests,
		DurationSeconds: req.DurationSeconds,
		Body:            req.Body,
		ContentType:     req.ContentType,
		Headers:         req.Headers,
		Insecure:        req.Insecure,
	}

	fmt.Printf("nfury: %s %s, %d users\n", req.Method, req.URL, req.Users)
	agg := engine.New(uuid.NewString(), cfg, nil).Run(ctx)
	printer.NewTerminal(os.Stdout).WriteResults(agg)

	if ctx.Err() != nil {
		return errors.New("run cancelled")
	}
	if agg.TotalRequests > 0 && agg.SuccessfulRequests == 0 {
		return errors.New("run failed: no request succeeded")
	}
	return nil
}

// parseHeaderFlags turns repeated "Name: value" flags into a header map.
func parseHeaderFlags(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
