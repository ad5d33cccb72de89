package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/digest-cli/internal/mail"
	"github.com/sells-group/digest-cli/internal/mail/mocks"
	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/store"
	"github.com/sells-group/digest-cli/internal/subscription"
	"github.com/sells-group/digest-cli/internal/topic"
)

var codePattern = regexp.MustCompile(`\d{6}`)

// testAPI wires the real subscription service over a temp SQLite store.
// Topics named "gibberish" are rejected. Mailed codes are sent to codes.
func testAPI(t *testing.T, sendErr error) (http.Handler, *mocks.MockSender, chan string) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	verdict := func(_ context.Context, name string) (string, error) {
		if name == "gibberish" {
			return "INVALID", nil
		}
		return "VALID", nil
	}

	codes := make(chan string, 4)
	sender := mocks.NewMockSender(t)
	sender.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		msg := args.Get(1).(mail.Message)
		codes <- codePattern.FindString(msg.Text)
	}).Return(sendErr).Maybe()

	machine := subscription.NewMachine(st, subscription.DefaultOTPTTL)
	svc := subscription.NewService(machine, topic.NewValidator(verdict), sender, 3)
	return buildMux(svc, []string{"*"}), sender, codes
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func TestBuildMux_Health(t *testing.T) {
	rr, body := doJSON(t, buildMux(nil, nil), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_SubscribeVerifyFlow(t *testing.T) {
	h, _, codes := testAPI(t, nil)

	rr, body := doJSON(t, h, http.MethodGet, "/subscriptions/a@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(model.StateUnregistered), body["state"])

	rr, body = doJSON(t, h, http.MethodPost, "/subscribe", subscribeRequest{
		Email:  "A@Example.com",
		Topics: []string{"AI", "Climate"},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "otp_sent", body["status"])
	code := <-codes
	require.Len(t, code, 6)

	rr, body = doJSON(t, h, http.MethodGet, "/subscriptions/a@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(model.StatePendingVerification), body["state"])

	rr, _ = doJSON(t, h, http.MethodPost, "/verify", verifyRequest{Email: "a@example.com", OTP: code})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body = doJSON(t, h, http.MethodGet, "/subscriptions/a@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(model.StateVerified), body["state"])
}

func TestAPI_SubscribeInvalidTopics(t *testing.T) {
	h, sender, _ := testAPI(t, nil)

	rr, body := doJSON(t, h, http.MethodPost, "/subscribe", subscribeRequest{
		Email:  "a@example.com",
		Topics: []string{"AI", "gibberish"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "invalid topics", body["error"])
	assert.Equal(t, []any{"gibberish"}, body["invalid_topics"])
	assert.NotEmpty(t, body["hint"])
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestAPI_SubscribeValidation(t *testing.T) {
	h, _, _ := testAPI(t, nil)

	tests := []struct {
		name string
		req  subscribeRequest
		want string
	}{
		{"no email", subscribeRequest{Topics: []string{"AI"}}, "email is required"},
		{"bad email", subscribeRequest{Email: "nope", Topics: []string{"AI"}}, "email must be a valid email address"},
		{"no topics", subscribeRequest{Email: "a@example.com"}, "at least one topic is required"},
		{"too many", subscribeRequest{Email: "a@example.com", Topics: []string{"a1", "b2", "c3", "d4"}}, "at most 3 topics allowed, got 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := doJSON(t, h, http.MethodPost, "/subscribe", tt.req)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Equal(t, tt.want, body["error"])
		})
	}
}

func TestAPI_SubscribeBadBody(t *testing.T) {
	h, _, _ := testAPI(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/subscribe", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestAPI_SubscribeMailFailure(t *testing.T) {
	h, _, _ := testAPI(t, errors.New("mailjet down"))

	rr, body := doJSON(t, h, http.MethodPost, "/subscribe", subscribeRequest{
		Email:  "a@example.com",
		Topics: []string{"AI"},
	})

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "could not send email", body["error"])
}

func TestAPI_VerifyWrongCode(t *testing.T) {
	h, _, codes := testAPI(t, nil)

	rr, _ := doJSON(t, h, http.MethodPost, "/subscribe", subscribeRequest{Email: "a@example.com", Topics: []string{"AI"}})
	require.Equal(t, http.StatusAccepted, rr.Code)
	code := <-codes

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rr, body := doJSON(t, h, http.MethodPost, "/verify", verifyRequest{Email: "a@example.com", OTP: wrong})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid code", body["error"])

	rr, body = doJSON(t, h, http.MethodGet, "/subscriptions/a@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(model.StatePendingVerification), body["state"])
}

func TestAPI_VerifyUnknownUser(t *testing.T) {
	h, _, _ := testAPI(t, nil)

	rr, body := doJSON(t, h, http.MethodPost, "/verify", verifyRequest{Email: "ghost@example.com", OTP: "123456"})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "user not found", body["error"])
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"expired", model.NewFailure(model.KindAuth, "a@example.com", subscription.ErrExpired), http.StatusUnauthorized},
		{"mismatch", model.NewFailure(model.KindAuth, "a@example.com", subscription.ErrMismatch), http.StatusUnauthorized},
		{"not found", model.NewFailure(model.KindAuth, "a@example.com", subscription.ErrNotFound), http.StatusNotFound},
		{"validation", &subscription.ValidationError{Reason: "email is required"}, http.StatusUnprocessableEntity},
		{"delivery", model.NewFailure(model.KindDelivery, "send", errors.New("boom")), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestBuildMux_CORS(t *testing.T) {
	h := buildMux(nil, []string{"https://digest.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://digest.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://digest.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, buildMux(nil, nil), port)
	}()

	var ready bool
	for range 50 {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			resp.Body.Close()
			ready = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
