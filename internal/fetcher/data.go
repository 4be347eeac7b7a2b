package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

// HTTP boundary

type Request struct {
	method string
	url    string
	header http.Header
	body   []byte
}

func NewGetRequest(url string) Request {
	return Request{method: http.MethodGet, url: url, header: http.Header{}}
}

// NewJSONRequest builds a POST carrying payload encoded as JSON.
func NewJSONRequest(url string, payload any) (Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode request body: %w", err)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return Request{method: http.MethodPost, url: url, header: h, body: body}, nil
}

// WithHeader returns a copy of r with key set to value.
func (r Request) WithHeader(key, value string) Request {
	h := r.header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(key, value)
	r.header = h
	return r
}

// WithBearer sets the Authorization header.
func (r Request) WithBearer(token string) Request {
	return r.WithHeader("Authorization", "Bearer "+token)
}

func (r Request) Method() string { return r.method }
func (r Request) URL() string    { return r.url }

// RedactedURL hides query values such as api_key before logging.
func (r Request) RedactedURL() string {
	i := strings.IndexByte(r.url, '?')
	if i < 0 {
		return r.url
	}
	return r.url[:i] + "?<redacted>"
}

type Response struct {
	url        string
	body       []byte
	statusCode int
	headers    map[string]string
}

func (r *Response) URL() string {
	return r.url
}

func (r *Response) Body() []byte {
	return r.body
}

func (r *Response) Code() int {
	return r.statusCode
}

func (r *Response) Headers() map[string]string {
	return r.headers
}

// DecodeJSON unmarshals the body into v. A body that is not valid JSON is a
// malformed response and is not retried.
func (r *Response) DecodeJSON(v any) failure.ClassifiedError {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &FetchError{
			Message:    fmt.Sprintf("decode %s: %v", r.url, err),
			Retryable:  false,
			Cause:      ErrCauseMalformedBody,
			StatusCode: r.statusCode,
		}
	}
	return nil
}

// NewResponseForTest builds a Response for other packages' tests.
func NewResponseForTest(url string, body []byte, statusCode int, headers map[string]string) Response {
	return Response{url: url, body: body, statusCode: statusCode, headers: headers}
}
