package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rohmanhakim/saas-intel/pkg/limiter"
)

type Kind string

const (
	KindSuccess         Kind = "success"
	KindStructuredError Kind = "structured_error"
	KindParseFailure    Kind = "parse_failure"
	KindFetchFailure    Kind = "fetch_failure"
)

// Outcome is the single classification of one extraction attempt. Info is
// set only for KindSuccess. RetryAfter carries the provider's hint, zero
// when it sent none.
type Outcome struct {
	Kind        Kind
	Info        *ProductInfo
	Message     string
	IsRateLimit bool
	RetryAfter  time.Duration
}

func (o Outcome) Success() bool {
	return o.Kind == KindSuccess
}

// Reason is the message persisted against the product on failure.
func (o Outcome) Reason() string {
	if o.Message == "" {
		return string(o.Kind)
	}
	return o.Message
}

// errorEnvelope is the error shape the collaborator returns in place of
// data: a list whose first element carries error=true.
type errorEnvelope struct {
	Error   bool   `json:"error"`
	Content string `json:"content"`
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	// seconds
	RetryAfter float64 `json:"retry_after,omitempty"`
}

// RateLimitPredicate recognises the throttling vocabulary of LLM
// providers on top of the generic HTTP signals.
var RateLimitPredicate = limiter.SignalPredicate("rate_limit_exceeded", "ratelimiterror", "quota", "throttl")

// Classify turns a collaborator response into exactly one Outcome. err is
// the collaborator's own error, raw its payload.
func Classify(raw []byte, err error, isRateLimit limiter.Predicate) Outcome {
	if isRateLimit == nil {
		isRateLimit = RateLimitPredicate
	}
	if err != nil {
		var pageErr *PageError
		if errors.As(err, &pageErr) {
			return Outcome{Kind: KindFetchFailure, Message: pageErr.Error(), IsRateLimit: isRateLimit(err)}
		}
		return Outcome{Kind: KindFetchFailure, Message: err.Error(), IsRateLimit: isRateLimit(err)}
	}

	payload := stripFence(bytes.TrimSpace(raw))
	if len(payload) == 0 {
		return Outcome{Kind: KindParseFailure, Message: "no content extracted"}
	}

	// A throttled provider sometimes answers with prose instead of JSON.
	throttled := isRateLimit(errors.New(string(payload)))

	var decoded any
	if jsonErr := json.Unmarshal(payload, &decoded); jsonErr != nil {
		return Outcome{Kind: KindParseFailure, Message: fmt.Sprintf("JSON parse error: %v", jsonErr), IsRateLimit: throttled}
	}

	var object json.RawMessage
	switch v := decoded.(type) {
	case []any:
		if len(v) == 0 {
			return Outcome{Kind: KindParseFailure, Message: "empty result list"}
		}
		var items []json.RawMessage
		_ = json.Unmarshal(payload, &items)
		object = items[0]
	case map[string]any:
		object = payload
	default:
		return Outcome{Kind: KindParseFailure, Message: fmt.Sprintf("unexpected content type %T", v), IsRateLimit: throttled}
	}

	var env errorEnvelope
	if json.Unmarshal(object, &env) == nil && env.Error {
		msg := env.Content
		if msg == "" {
			msg = "unknown error"
		}
		rateLimited := env.Status == 429 || isRateLimit(errors.New(msg+" "+env.Code))
		out := Outcome{Kind: KindStructuredError, Message: msg, IsRateLimit: rateLimited}
		if rateLimited && env.RetryAfter > 0 {
			out.RetryAfter = time.Duration(env.RetryAfter * float64(time.Second))
		}
		return out
	}

	var info ProductInfo
	if jsonErr := json.Unmarshal(object, &info); jsonErr != nil {
		return Outcome{Kind: KindParseFailure, Message: fmt.Sprintf("schema mismatch: %v", jsonErr)}
	}
	if strings.TrimSpace(info.Name) == "" {
		return Outcome{Kind: KindParseFailure, Message: "schema mismatch: missing product name"}
	}
	info.Normalize()
	return Outcome{Kind: KindSuccess, Info: &info}
}

// stripFence removes a ```json ... ``` wrapper some models add.
func stripFence(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	} else {
		return nil
	}
	b = bytes.TrimSpace(b)
	b = bytes.TrimSuffix(b, []byte("```"))
	return bytes.TrimSpace(b)
}
