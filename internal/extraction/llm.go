package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/fetcher"
	"github.com/rohmanhakim/saas-intel/internal/mdconvert"
	"github.com/rohmanhakim/saas-intel/internal/render"
	"github.com/rohmanhakim/saas-intel/pkg/retry"
)

// Collaborator fetches a page and asks a model to fill schema from it.
// Provider failures come back as an error envelope in the payload, not as
// err; err is reserved for the page itself.
type Collaborator interface {
	Extract(ctx context.Context, pageURL, schema, instruction string) ([]byte, error)
}

/*
LLMCollaborator

  - Renders the homepage with the configured backend
  - Reduces it to sanitized markdown
  - Sends it to an OpenAI-compatible chat completions endpoint in JSON mode
  - Returns the model's message content untouched
*/
type LLMCollaborator struct {
	renderer   render.Renderer
	rule       mdconvert.ConvertRule
	fetcher    fetcher.Fetcher
	baseURL    string
	apiKey     string
	model      string
	retryParam retry.RetryParam
}

func NewLLMCollaborator(
	renderer render.Renderer,
	rule mdconvert.ConvertRule,
	f fetcher.Fetcher,
	baseURL string,
	apiKey string,
	model string,
	retryParam retry.RetryParam,
) *LLMCollaborator {
	return &LLMCollaborator{
		renderer:   renderer,
		rule:       rule,
		fetcher:    f,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		retryParam: retryParam,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *LLMCollaborator) Extract(ctx context.Context, pageURL, schema, instruction string) ([]byte, error) {
	page := c.renderer.Fetch(ctx, pageURL, render.Options{WaitDOMReady: true})
	if !page.Success {
		msg := page.Error
		if msg == "" {
			msg = "crawl failed"
		}
		return nil, &PageError{URL: pageURL, Status: page.Status, Message: msg}
	}

	converted, convErr := c.rule.Convert(page.URL, []byte(page.HTML))
	if convErr != nil {
		return nil, &PageError{URL: pageURL, Status: page.Status, Message: convErr.Error()}
	}

	var user strings.Builder
	fmt.Fprintf(&user, "URL: %s\n", pageURL)
	if title := converted.GetTitle(); title != "" {
		fmt.Fprintf(&user, "Title: %s\n", title)
	}
	user.WriteString("\n")
	user.Write(converted.GetMarkdownContent())

	req, err := fetcher.NewJSONRequest(c.baseURL+"/chat/completions", chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction + "\n\nRespond with a single JSON object of this shape:\n" + schema},
			{Role: "user", Content: user.String()},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return envelope(err.Error(), 0, "", 0), nil
	}

	resp, fetchErr := c.fetcher.Do(ctx, req.WithBearer(c.apiKey), c.retryParam)
	if fetchErr != nil {
		status, wait := 0, time.Duration(0)
		var fe *fetcher.FetchError
		if errors.As(fetchErr, &fe) {
			status, wait = fe.StatusCode, fe.RetryAfter()
		}
		return envelope(fetchErr.Error(), status, "", wait), nil
	}

	var out chatResponse
	if decodeErr := resp.DecodeJSON(&out); decodeErr != nil {
		return envelope(decodeErr.Error(), resp.Code(), "", 0), nil
	}
	if len(out.Choices) == 0 {
		return nil, nil
	}
	return []byte(out.Choices[0].Message.Content), nil
}

func envelope(msg string, status int, code string, retryAfter time.Duration) []byte {
	b, _ := json.Marshal([]errorEnvelope{{
		Error:      true,
		Content:    msg,
		Status:     status,
		Code:       code,
		RetryAfter: retryAfter.Seconds(),
	}})
	return b
}
