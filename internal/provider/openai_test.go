package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

const okBody = `{"model":"gpt-3.5-turbo-0125","choices":[{"message":{"role":"assistant","content":"  A short summary.  "},"finish_reason":"stop"}],"usage":{"prompt_tokens":42,"completion_tokens":7}}`

func newTestClient(t *testing.T, maxRetries int, rt roundTripperFunc) (*OpenAI, *[]time.Duration) {
	t.Helper()
	c, err := NewOpenAIWithHTTPClient(OpenAIConfig{
		BaseURL:    "http://upstream/",
		APIKey:     "sk-test",
		Model:      "gpt-3.5-turbo",
		MaxRetries: maxRetries,
	}, nil, &http.Client{Transport: rt})
	if err != nil {
		t.Fatalf("NewOpenAIWithHTTPClient: %v", err)
	}
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}

func TestComplete_RequestShape(t *testing.T) {
	c, _ := newTestClient(t, 0, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization=%q", got)
		}

		var in chatCompletionRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		if in.Model != "gpt-3.5-turbo" {
			t.Fatalf("model=%q", in.Model)
		}
		if len(in.Messages) != 2 || in.Messages[0].Role != RoleSystem {
			t.Fatalf("messages=%+v", in.Messages)
		}
		if in.MaxTokens != 300 {
			t.Fatalf("max_tokens=%d", in.MaxTokens)
		}
		if in.Temperature == nil || *in.Temperature != 0.3 {
			t.Fatalf("temperature=%v", in.Temperature)
		}
		if in.ResponseFormat != nil {
			t.Fatalf("unexpected response_format %+v", in.ResponseFormat)
		}
		return jsonResponse(http.StatusOK, okBody, nil), nil
	})

	out, err := c.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "You summarize."},
			{Role: RoleUser, Content: "Some text"},
			{Role: RoleUser, Content: "   "},
		},
		MaxTokens:   300,
		Temperature: Temperature(0.3),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "A short summary." {
		t.Errorf("text=%q", out.Text)
	}
	if out.Model != "gpt-3.5-turbo-0125" || out.PromptTokens != 42 || out.CompletionTokens != 7 {
		t.Errorf("unexpected completion %+v", out)
	}
}

func TestComplete_JSONModeAndModelOverride(t *testing.T) {
	c, _ := newTestClient(t, 0, func(req *http.Request) (*http.Response, error) {
		var in chatCompletionRequest
		_ = json.NewDecoder(req.Body).Decode(&in)
		if in.ResponseFormat == nil || in.ResponseFormat.Type != "json_object" {
			t.Fatalf("expected json_object response format, got %+v", in.ResponseFormat)
		}
		if in.Model != "gpt-4o-mini" {
			t.Fatalf("model=%q", in.Model)
		}
		return jsonResponse(http.StatusOK, okBody, nil), nil
	})

	_, err := c.Complete(context.Background(), Request{
		Model:    "gpt-4o-mini",
		JSON:     true,
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestComplete_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	c, sleeps := newTestClient(t, 3, func(req *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			return jsonResponse(http.StatusTooManyRequests,
				`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
				http.Header{"Retry-After": []string{"2"}}), nil
		case 2:
			return jsonResponse(http.StatusBadGateway, `upstream down`, nil), nil
		default:
			return jsonResponse(http.StatusOK, okBody, nil), nil
		}
	})

	out, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text == "" {
		t.Fatal("expected text")
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps=%v", *sleeps)
	}
	// Retry-After of 2s with ±20% jitter
	first := (*sleeps)[0]
	if first < 1600*time.Millisecond || first > 2400*time.Millisecond {
		t.Errorf("first sleep %v not near Retry-After", first)
	}
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      error
		wantCalls int32
	}{
		{
			name:      "invalid key",
			status:    http.StatusUnauthorized,
			body:      `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:      ErrAuthentication,
			wantCalls: 1,
		},
		{
			name:      "quota",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			want:      ErrQuotaExceeded,
			wantCalls: 1,
		},
		{
			name:      "rate limited after retries",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"slow down","type":"requests","code":null}}`,
			want:      ErrRateLimited,
			wantCalls: 3,
		},
		{
			name:      "bad request",
			status:    http.StatusBadRequest,
			body:      `{"error":{"message":"maximum context length exceeded","type":"invalid_request_error","code":"context_length_exceeded"}}`,
			want:      ErrBadRequest,
			wantCalls: 1,
		},
		{
			name:      "server error after retries",
			status:    http.StatusServiceUnavailable,
			body:      `<html>overloaded</html>`,
			want:      ErrUnavailable,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c, _ := newTestClient(t, 2, func(req *http.Request) (*http.Response, error) {
				atomic.AddInt32(&calls, 1)
				return jsonResponse(tt.status, tt.body, nil), nil
			})

			_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls=%d, want %d", calls, tt.wantCalls)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.HTTPStatusCode() != tt.status {
				t.Errorf("expected APIError with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestComplete_EmptyCompletion(t *testing.T) {
	c, _ := newTestClient(t, 0, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, nil), nil
	})
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestComplete_TransportErrorWrapped(t *testing.T) {
	c, _ := newTestClient(t, 0, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if strings.Contains(err.Error(), "sk-test") {
		t.Fatal("error leaks API key")
	}
}

func TestComplete_NoMessages(t *testing.T) {
	c, _ := newTestClient(t, 0, func(req *http.Request) (*http.Response, error) {
		t.Fatal("unexpected request")
		return nil, nil
	})
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: " "}}})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestComplete_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	c, _ := newTestClient(t, 5, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return jsonResponse(http.StatusServiceUnavailable, `busy`, nil), nil
	})

	_, err := c.Complete(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls=%d", calls)
	}
}

func TestNewOpenAI_Validation(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{APIKey: "k"}, nil); err == nil {
		t.Error("expected error without base URL")
	}
	if _, err := NewOpenAI(OpenAIConfig{BaseURL: "http://x"}, nil); err == nil {
		t.Error("expected error without API key")
	}
	c, err := NewOpenAI(OpenAIConfig{BaseURL: "http://x", APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	if c.Model() != "gpt-3.5-turbo" {
		t.Errorf("default model=%q", c.Model())
	}
}
