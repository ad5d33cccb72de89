package mailjet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/digest-cli/internal/resilience"
)

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

func testRequest() SendRequest {
	return SendRequest{Messages: []Message{{
		From:     Address{Email: "digest@example.com", Name: "Digest"},
		To:       []Address{{Email: "reader@example.com"}},
		Subject:  "Hello",
		HTMLPart: "<p>Hi</p>",
		TextPart: "Hi",
	}}}
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3.1/send", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var got SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "reader@example.com", got.Messages[0].To[0].Email)
		assert.Equal(t, "Hi", got.Messages[0].TextPart)

		w.Write([]byte(`{"Messages":[{"Status":"success","To":[{"Email":"reader@example.com","MessageID":42}]}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("key", "secret", WithBaseURL(srv.URL), fastRetry())
	resp, err := c.Send(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.Messages[0].To[0].MessageID)
}

func TestSend_MessageRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Messages":[{"Status":"error","Errors":[{"ErrorCode":"mj-0013","StatusCode":400,"ErrorMessage":"invalid email"}]}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("key", "secret", WithBaseURL(srv.URL), fastRetry()).Send(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email")
}

func TestSend_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"Messages":[{"Status":"success"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("key", "secret", WithBaseURL(srv.URL), fastRetry()).Send(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestSend_Unauthorized(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("key", "bad", WithBaseURL(srv.URL), fastRetry()).Send(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), attempts.Load())
}
