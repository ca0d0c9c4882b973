package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"health-agent/internal/domain"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"https://api.opentyphoon.ai/v1", "https://api.opentyphoon.ai/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_RequiresKeySource(t *testing.T) {
	_, err := NewClient()
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")

	_, err = NewClient(WithParamStore(&fakeGetter{}, " "))
	require.Error(t, err)
	require.Contains(t, err.Error(), "prefix")
}

func TestNewClient_Valid(t *testing.T) {
	c, err := NewClient(WithParamStore(&fakeGetter{}, "/health-agent/"))
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.Equal(t, "/health-agent/open-ai-token", c.tokenParameterName())

	c, err = NewClient(WithAPIKey("sk-static"))
	require.NoError(t, err)
	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-static", key)
}

// ---------------------------------------------------------------------------
// resolveAPIKey: SSM caching behaviour
// ---------------------------------------------------------------------------

func TestResolveAPIKey_FetchedOnFirstCall(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`}
	g.onCall = func() { calls++ }
	c, err := NewClient(WithParamStore(g, "/health-agent"))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", key)
	require.Equal(t, 1, calls)

	_, _ = c.resolveAPIKey(context.Background())
	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, calls, "SSM must only be called once per process lifetime")
}

func TestResolveAPIKey_TokenNameIsRooted(t *testing.T) {
	for _, prefix := range []string{"health", "/health", "/health/"} {
		g := &fakeGetter{val: `{"token":"sk"}`}
		c, err := NewClient(WithParamStore(g, prefix))
		require.NoError(t, err)

		_, err = c.resolveAPIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "/health/open-ai-token", g.name, prefix)
	}
}

// ---------------------------------------------------------------------------
// fetchAPIKeyFromParamStore
// ---------------------------------------------------------------------------

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	onCall func()
	name   string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.name = name
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		getter  Getter
		param   string
		want    string
		errText string
	}{
		{name: "json token", getter: &fakeGetter{val: `{"token":"sk-from-json"}`}, param: "/p/open-ai-token", want: "sk-from-json"},
		{name: "missing field", getter: &fakeGetter{val: `{"other":"value"}`}, param: "/p/open-ai-token", errText: "API token is empty"},
		{name: "malformed", getter: &fakeGetter{val: `{"broken`}, param: "/p/open-ai-token", errText: "unmarshal"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, param: "/p/open-ai-token", errText: "ssm unavailable"},
		{name: "nil getter", getter: nil, param: "/p/open-ai-token", errText: "nil"},
		{name: "empty name", getter: &fakeGetter{val: `{"token":"x"}`}, param: " ", errText: "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := fetchAPIKeyFromParamStore(context.Background(), tc.getter, tc.param)
			if tc.errText != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errText)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, key)
		})
	}
}

// ---------------------------------------------------------------------------
// Client.Chat / Client.ChatStructured
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithParamStore(&fakeGetter{val: `{"token":"sk-test"}`}, "/health-agent"),
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
		WithRetry(0, time.Millisecond),
	}
	c, err := NewClient(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1670000000,
		"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestClient_Chat_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NotContains(t, string(reqBody), "response_format")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("  สวัสดีค่ะ  ")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Chat(context.Background(), "gpt-mock", []domain.ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "สวัสดีค่ะ", resp)
}

func TestClient_ChatStructured_SendsStrictSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		require.Equal(t, "json_schema", req.ResponseFormat.Type)
		require.Equal(t, "severity_rate", req.ResponseFormat.JSONSchema.Name)
		require.True(t, req.ResponseFormat.JSONSchema.Strict)
		require.JSONEq(t, `{"type":"object"}`, string(req.ResponseFormat.JSONSchema.Schema))
		_, _ = w.Write([]byte(completion(`{"rate":2}`)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.ChatStructured(context.Background(), "gpt-mock", nil, domain.ResponseSchema{
		Name:   "severity_rate",
		Schema: json.RawMessage(`{"type":"object"}`),
	})
	require.NoError(t, err)
	require.Equal(t, `{"rate":2}`, resp)
}

func TestClient_ChatStructured_RejectsIncompleteSchema(t *testing.T) {
	c, err := NewClient(WithAPIKey("sk"))
	require.NoError(t, err)
	_, err = c.ChatStructured(context.Background(), "gpt-mock", nil, domain.ResponseSchema{Name: "x"})
	require.Error(t, err)
}

func TestClient_Chat_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.HTTPStatusCode())
}

func TestClient_Chat_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Chat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestClient_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
}

func TestClient_Chat_EmptyModel(t *testing.T) {
	c, err := NewClient(WithAPIKey("sk-test"))
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

func TestClient_Chat_NetworkError(t *testing.T) {
	c, err := NewClient(WithAPIKey("sk-test"), WithRetry(0, time.Millisecond))
	require.NoError(t, err)
	c.baseURL = "http://127.0.0.1:1"
	c.httpClient = &http.Client{Timeout: 100 * time.Millisecond}

	_, err = c.Chat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestClient_Chat_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(completion("ok")))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithRetry(2, time.Millisecond))
	resp, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_Chat_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithRetry(2, time.Millisecond))
	_, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_Chat_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithRetry(3, time.Millisecond))
	_, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Chat_SendsGenerationOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 1200, req.MaxTokens)
		require.NotNil(t, req.Temperature)
		require.InDelta(t, 0.2, *req.Temperature, 1e-9)
		_, _ = w.Write([]byte(completion("ok")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithMaxTokens(1200), WithTemperature(0.2))
	_, err := c.Chat(context.Background(), "gpt-mock", nil)
	require.NoError(t, err)
}
