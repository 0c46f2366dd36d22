package watsonx_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/providers/watsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	return req
}

func defaultParams() watsonx.Parameters {
	return watsonx.Parameters{
		DecodingMethod: watsonx.DecodingGreedy,
		MinNewTokens:   1,
		MaxNewTokens:   100,
		StopSequences:  []string{"<|endoftext|>"},
	}
}

func TestComplete_SendsGenerationRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ml/v1/text/generation", r.URL.Path)
		assert.Equal(t, watsonx.DefaultVersion, r.URL.Query().Get("version"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		req := readBody(t, r)
		assert.Equal(t, "ibm/granite-13b-chat-v2", req["model_id"])
		assert.Equal(t, "proj-1", req["project_id"])
		assert.Equal(t, "Persona\n\nWhat is GST?", req["input"])

		params, ok := req["parameters"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "greedy", params["decoding_method"])
		assert.InDelta(t, 1, params["min_new_tokens"], 0)
		assert.InDelta(t, 100, params["max_new_tokens"], 0)
		assert.Equal(t, []any{"<|endoftext|>"}, params["stop_sequences"])
		assert.NotContains(t, params, "temperature")

		writeJSON(t, w, map[string]any{
			"model_id": "ibm/granite-13b-chat-v2",
			"results": []map[string]any{{
				"generated_text":        "GST is a tax.",
				"generated_token_count": 5,
				"input_token_count":     12,
				"stop_reason":           "eos_token",
			}},
		})
	}))
	t.Cleanup(srv.Close)

	a := watsonx.New(srv.URL, "proj-1", "ibm/granite-13b-chat-v2", defaultParams())
	a.Auth = modeladapter.Auth{Key: "test-token"}

	resp, err := a.Complete(context.Background(), modeladapter.Request{System: "Persona", Prompt: "What is GST?"})
	require.NoError(t, err)

	assert.Equal(t, "GST is a tax.", resp.Text)
	assert.Equal(t, "eos_token", resp.StopReason)
	assert.Equal(t, 12, resp.Usage.InputTokens)

	last, ok := a.Usage.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last.OutputTokens)
	assert.Equal(t, 100, a.ModelMaxTokens())
}

func TestComplete_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"results": []any{}})
	}))
	t.Cleanup(srv.Close)

	a := watsonx.New(srv.URL, "p", "m", defaultParams())

	_, err := a.Complete(context.Background(), modeladapter.Request{Prompt: "hi"})
	assert.ErrorContains(t, err, "watsonx: empty results")
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"code":"authorization_rejected"}]}`))
	}))
	t.Cleanup(srv.Close)

	a := watsonx.New(srv.URL, "p", "m", defaultParams())

	_, err := a.Complete(context.Background(), modeladapter.Request{Prompt: "hi"})
	assert.ErrorContains(t, err, "watsonx: unexpected status 403")
}

func TestComplete_UsesIAMToken(t *testing.T) {
	var iamCalls atomic.Int32

	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		iamCalls.Add(1)
		assert.Equal(t, "/identity/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ibm:params:oauth:grant-type:apikey", r.PostForm.Get("grant_type"))
		assert.Equal(t, "my-api-key", r.PostForm.Get("apikey"))

		writeJSON(t, w, map[string]any{
			"access_token": "iam-abc",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"expiration":   time.Now().Add(time.Hour).Unix(),
		})
	}))
	t.Cleanup(iam.Close)

	gen := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer iam-abc", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{"results": []map[string]any{{"generated_text": "ok"}}})
	}))
	t.Cleanup(gen.Close)

	a := watsonx.New(gen.URL, "p", "m", defaultParams())
	a.TokenSource = watsonx.NewIAMTokenSource(iam.URL, "my-api-key", iam.Client())

	for range 3 {
		resp, err := a.Complete(context.Background(), modeladapter.Request{Prompt: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text)
	}

	assert.Equal(t, int32(1), iamCalls.Load(), "token should be cached until expiry")
}

func TestIAMTokenSource_Error(t *testing.T) {
	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorMessage":"Provided API key could not be found"}`))
	}))
	t.Cleanup(iam.Close)

	src := watsonx.NewIAMTokenSource(iam.URL, "bad", iam.Client())

	_, err := src.Token()
	assert.ErrorContains(t, err, "iam: unexpected status 400")
}

func TestComplete_CancelDuringSlowIAM(t *testing.T) {
	release := make(chan struct{})

	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(iam.Close)
	t.Cleanup(func() { close(release) })

	gen := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("generation endpoint must not be reached without a token")
	}))
	t.Cleanup(gen.Close)

	a := watsonx.New(gen.URL, "p", "m", defaultParams())
	a.TokenSource = watsonx.NewIAMTokenSource(iam.URL, "my-api-key", &http.Client{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Complete(ctx, modeladapter.Request{Prompt: "hi"})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIAMTokenSource_RetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32

	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, map[string]any{
			"access_token": "second",
			"expiration":   time.Now().Add(time.Hour).Unix(),
		})
	}))
	t.Cleanup(iam.Close)

	src := watsonx.NewIAMTokenSource(iam.URL, "key", iam.Client())

	_, err := src.TokenContext(context.Background())
	require.Error(t, err)

	tok, err := src.TokenContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", tok.AccessToken)

	_, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
