package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
	"github.com/rohmanhakim/saas-intel/pkg/retry"
)

/*
Responsibilities

- Perform API requests for the discovery and extraction clients
- Apply headers and timeouts
- Classify responses

Fetch Semantics

- Network failures and 5xx are transient and retried here
- 429 is returned at once with any Retry-After hint, for the limiter
- Other 4xx are final
- Every call is logged with metadata, with query strings redacted

The fetcher never interprets payloads; it only returns bytes and metadata.
*/

const maxErrorSnippet = 300

type HTTPFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
	now          func() time.Time
}

func NewHTTPFetcher(
	metadataSink metadata.MetadataSink,
	timeout time.Duration,
	userAgent string,
) *HTTPFetcher {
	return &HTTPFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{Timeout: timeout},
		userAgent:    userAgent,
		now:          time.Now,
	}
}

func (h *HTTPFetcher) Do(
	ctx context.Context,
	request Request,
	retryParam retry.RetryParam,
) (Response, failure.ClassifiedError) {
	callerMethod := "HTTPFetcher.Do"
	startTime := time.Now()

	result := retry.Retry(ctx, retryParam, func() (Response, failure.ClassifiedError) {
		return h.perform(ctx, request)
	})

	duration := time.Since(startTime)
	resp := result.Value()
	statusCode := resp.Code()
	if result.IsFailure() {
		var fetchErr *FetchError
		if errors.As(result.Err(), &fetchErr) {
			statusCode = fetchErr.StatusCode
		}
	}
	h.metadataSink.RecordFetch(
		request.RedactedURL(),
		statusCode,
		duration,
		resp.Headers()["Content-Type"],
		result.Attempts()-1,
	)

	if result.IsFailure() {
		err := result.Err()
		h.recordError(callerMethod, request, err)
		var fetchErr *FetchError
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) && errors.As(err, &fetchErr) && retryErr.Cause == retry.ErrExhaustedAttempts {
			// Hand back the last transient failure so callers can classify it.
			return Response{}, fetchErr
		}
		return Response{}, err
	}
	return resp, nil
}

func (h *HTTPFetcher) recordError(callerMethod string, request Request, err failure.ClassifiedError) {
	cause := metadata.CauseUnknown
	var retryErr *retry.RetryError
	var fetchErr *FetchError
	switch {
	case errors.As(err, &retryErr):
		cause = metadata.CauseRetryFailure
	case errors.As(err, &fetchErr):
		cause = mapFetchErrorToMetadataCause(fetchErr)
	}
	h.metadataSink.RecordError(
		h.now(),
		"fetcher",
		callerMethod,
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, request.RedactedURL()),
		},
	)
}

func (h *HTTPFetcher) perform(ctx context.Context, request Request) (Response, failure.ClassifiedError) {
	var body io.Reader
	if request.body != nil {
		body = bytes.NewReader(request.body)
	}
	req, err := http.NewRequestWithContext(ctx, request.method, request.url, body)
	if err != nil {
		return Response{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseBadRequest,
		}
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "application/json")
	for key, values := range request.header {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		// Network/transport errors are retryable unless the run was cancelled
		return Response{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: ctx.Err() == nil,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &FetchError{
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Retryable:  true,
			Cause:      ErrCauseReadResponseBodyError,
			StatusCode: resp.StatusCode,
		}
	}

	if classified := classifyStatus(resp, payload, h.now()); classified != nil {
		return Response{}, classified
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return Response{
		url:        request.url,
		body:       payload,
		statusCode: resp.StatusCode,
		headers:    headers,
	}, nil
}

func classifyStatus(resp *http.Response, payload []byte, now time.Time) *FetchError {
	code := resp.StatusCode
	snippet := strings.TrimSpace(string(payload))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet]
	}

	switch {
	case code >= 500:
		return &FetchError{
			Message:    fmt.Sprintf("server error %d: %s", code, snippet),
			Retryable:  true,
			Cause:      ErrCauseRequest5xx,
			StatusCode: code,
		}
	case code == http.StatusTooManyRequests:
		return &FetchError{
			Message:    fmt.Sprintf("rate limited (429): %s", snippet),
			Retryable:  false,
			Cause:      ErrCauseRequestTooMany,
			StatusCode: code,
			Wait:       ParseRetryAfter(resp.Header.Get("Retry-After"), now),
		}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &FetchError{
			Message:    fmt.Sprintf("access denied (%d): %s", code, snippet),
			Retryable:  false,
			Cause:      ErrCauseUnauthorized,
			StatusCode: code,
		}
	case code == http.StatusNotFound:
		return &FetchError{
			Message:    fmt.Sprintf("not found (404): %s", snippet),
			Retryable:  false,
			Cause:      ErrCauseNotFound,
			StatusCode: code,
		}
	case code >= 400:
		return &FetchError{
			Message:    fmt.Sprintf("client error %d: %s", code, snippet),
			Retryable:  false,
			Cause:      ErrCauseBadRequest,
			StatusCode: code,
		}
	}
	return nil
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Missing or unparsable values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
