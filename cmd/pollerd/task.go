package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/ahmed-com/poller"
	"github.com/ahmed-com/poller/config"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits shared by every poller
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response is the outcome of one successful poll
type Response struct {
	StatusCode int           `json:"status_code"`
	Bytes      int           `json:"bytes"`
	Latency    time.Duration `json:"latency"`
}

// StatusError reports a response outside the 2xx range
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		// per-request timeouts come from the task context
		Transport: &http.Transport{
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		},
	}
}

// httpTask issues the configured request; any non-2xx status is a failure
func httpTask(client *http.Client, pc config.PollerConfig) poller.Task[Response] {
	return func(ctx context.Context) (Response, error) {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, pc.Method, pc.URL, nil)
		if err != nil {
			return Response{}, fmt.Errorf("failed to create request: %w", err)
		}
		for key, value := range pc.Headers {
			req.Header.Set(key, value)
		}

		resp, err := client.Do(req)
		if err != nil {
			return Response{}, fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		if err != nil {
			return Response{}, fmt.Errorf("failed to read body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return Response{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return Response{StatusCode: resp.StatusCode, Bytes: int(n), Latency: time.Since(start)}, nil
	}
}

// errorDecision stops the poller on the configured status codes and keeps
// retrying on everything else
func errorDecision(stopOn []int) func(error) poller.ErrorDecision {
	return func(err error) poller.ErrorDecision {
		var se *StatusError
		if errors.As(err, &se) && slices.Contains(stopOn, se.StatusCode) {
			return poller.ForceStop
		}
		return poller.Continue
	}
}
