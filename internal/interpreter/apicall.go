package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/botforge/internal/expressions"
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/pkg/schema"
)

// callAPI performs an api node's collaborator request. The url, headers
// and body are rendered against the current variable set before sending.
// On failure it retries up to RetryCount times with exponential backoff,
// but only for errors that plausibly clear up on their own.
func (it *Interpreter) callAPI(ctx context.Context, p *graph.APIPayload, vars map[string]any) (any, error) {
	rawURL := expressions.Render(p.URL, vars)
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCollaborator,
			"invalid collaborator url %q", rawURL).WithCause(err)
	}
	host := parsed.Host

	var lastErr error
	for attempt := 0; attempt <= p.RetryCount; attempt++ {
		if attempt > 0 {
			delay := it.config.RetryBaseDelay * (1 << (attempt - 1))
			it.logger.DebugContext(ctx, "retrying collaborator request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := it.breakers.allowRequest(host); err != nil {
			return nil, err
		}
		result, err := it.doRequest(ctx, p, rawURL, vars)
		if err == nil {
			it.breakers.recordSuccess(host)
			return it.applyFilter(ctx, p, result)
		}
		it.breakers.recordFailure(host)
		lastErr = err
		if !retryable(err) {
			break
		}
	}

	return nil, schema.NewErrorf(schema.ErrCodeCollaborator,
		"collaborator request failed after %d attempts", p.RetryCount+1).
		WithCause(lastErr).
		WithDetails(map[string]any{"url": rawURL, "method": p.Method})
}

func (it *Interpreter) doRequest(ctx context.Context, p *graph.APIPayload, rawURL string, vars map[string]any) (any, error) {
	var bodyReader io.Reader
	if p.Body != "" {
		bodyReader = strings.NewReader(expressions.Render(p.Body, vars))
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, rawURL, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range p.Headers {
		req.Header.Set(k, expressions.Render(v, vars))
	}
	if p.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := it.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, it.config.MaxResponseBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	// JSON responses bind as structured values so dotted variable paths
	// and jq filters can reach into them; everything else binds as text.
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw), nil
	}
	return parsed, nil
}

func (it *Interpreter) applyFilter(ctx context.Context, p *graph.APIPayload, result any) (any, error) {
	if p.ResultFilter == "" {
		return result, nil
	}
	filtered, err := it.jq.Apply(ctx, p.ResultFilter, result)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"result filter failed: %v", err).WithCause(err)
	}
	return filtered, nil
}

// statusError marks a non-2xx collaborator response.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string { return "collaborator returned " + e.status }

// retryable classifies whether a collaborator error should be retried.
// Network errors, timeouts and server-side statuses are; client errors
// and cancellation are not.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sErr *statusError
	if errors.As(err, &sErr) {
		return sErr.code >= 500 || sErr.code == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
