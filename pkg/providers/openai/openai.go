// Package openai provides a Completer implementation for OpenAI-compatible
// Chat Completions endpoints (hosted OpenAI, local gateways, vLLM, Ollama).
package openai

import (
	"context"
	"fmt"

	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
)

const completionsPath = "/v1/chat/completions"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter

	Temperature float64
	Stop        []string
}

// New creates an Adapter configured for the OpenAI API.
// The baseURL should be "https://api.openai.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.MaxTokens = 4096

	return a
}

// Complete sends the prompt as a single user message (preceded by a system
// message when req.System is set) and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	body := a.buildRequest(req)

	var resp apiResponse
	if err := a.PostJSON(ctx, completionsPath, body, &resp); err != nil {
		return modeladapter.Response{}, fmt.Errorf("openai: %w", err)
	}

	tc := usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	a.Usage.Add(tc)

	if len(resp.Choices) == 0 {
		return modeladapter.Response{}, fmt.Errorf("openai: empty choices in response")
	}

	choice := resp.Choices[0]
	text := ""
	if choice.Message.Content != nil {
		text = *choice.Message.Content
	}

	return modeladapter.Response{
		Text:       text,
		StopReason: choice.FinishReason,
		Usage:      tc,
	}, nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stop        []string     `json:"stop,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (a *Adapter) buildRequest(req modeladapter.Request) apiRequest {
	out := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
		Stop:      a.Stop,
	}

	if a.Temperature != 0 {
		t := a.Temperature
		out.Temperature = &t
	}

	if req.System != "" {
		out.Messages = append(out.Messages, apiMessage{Role: "system", Content: req.System})
	}
	out.Messages = append(out.Messages, apiMessage{Role: "user", Content: req.Prompt})

	return out
}
