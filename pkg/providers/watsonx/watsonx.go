// Package watsonx provides a Completer for the IBM watsonx.ai text generation API.
package watsonx

import (
	"context"
	"fmt"
	"net/url"

	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
)

// DefaultVersion is the API version date sent with every request.
const DefaultVersion = "2023-05-29"

const generationPath = "/ml/v1/text/generation"

// Decoding methods understood by the service.
const (
	DecodingGreedy = "greedy"
	DecodingSample = "sample"
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Parameters are the generation parameters sent with every request.
// Zero-valued optional fields are omitted from the payload.
type Parameters struct {
	DecodingMethod    string   `json:"decoding_method,omitempty"`
	MinNewTokens      int      `json:"min_new_tokens,omitempty"`
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
	Temperature       float64  `json:"temperature,omitempty"`
	TopP              float64  `json:"top_p,omitempty"`
	TopK              int      `json:"top_k,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
}

// Adapter implements modeladapter.Completer for watsonx.ai.
type Adapter struct {
	modeladapter.ModelAdapter

	ProjectID  string
	Version    string
	Parameters Parameters
}

// New creates an Adapter. The baseURL is the regional service URL, e.g.
// "https://us-south.ml.cloud.ibm.com" (no trailing slash). Authentication is
// configured by setting TokenSource (see NewIAMTokenSource).
func New(baseURL, projectID, model string, params Parameters) *Adapter {
	a := &Adapter{
		ProjectID:  projectID,
		Version:    DefaultVersion,
		Parameters: params,
	}
	a.BaseURL = baseURL
	a.Name = model
	a.MaxTokens = params.MaxNewTokens

	return a
}

// Complete sends the prompt to the text generation endpoint and returns the
// first generated result.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request) (modeladapter.Response, error) {
	input := req.Prompt
	if req.System != "" {
		input = req.System + "\n\n" + req.Prompt
	}

	body := apiRequest{
		ModelID:    a.Name,
		Input:      input,
		ProjectID:  a.ProjectID,
		Parameters: a.Parameters,
	}

	var resp apiResponse
	if err := a.PostJSON(ctx, a.path(), body, &resp); err != nil {
		return modeladapter.Response{}, fmt.Errorf("watsonx: %w", err)
	}

	if len(resp.Results) == 0 {
		return modeladapter.Response{}, fmt.Errorf("watsonx: empty results in response")
	}

	r := resp.Results[0]
	tc := usage.TokenCount{
		InputTokens:  r.InputTokenCount,
		OutputTokens: r.GeneratedTokenCount,
	}
	a.Usage.Add(tc)

	return modeladapter.Response{
		Text:       r.GeneratedText,
		StopReason: r.StopReason,
		Usage:      tc,
	}, nil
}

func (a *Adapter) path() string {
	v := a.Version
	if v == "" {
		v = DefaultVersion
	}
	return generationPath + "?version=" + url.QueryEscape(v)
}

// --- wire types ---

type apiRequest struct {
	ModelID    string     `json:"model_id"`
	Input      string     `json:"input"`
	ProjectID  string     `json:"project_id,omitempty"`
	Parameters Parameters `json:"parameters"`
}

type apiResponse struct {
	ModelID string      `json:"model_id"`
	Results []apiResult `json:"results"`
}

type apiResult struct {
	GeneratedText       string `json:"generated_text"`
	GeneratedTokenCount int    `json:"generated_token_count"`
	InputTokenCount     int    `json:"input_token_count"`
	StopReason          string `json:"stop_reason"`
}
