package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willianribas/bots/internal/config"
)

type flakyTransport struct {
	failures int32
	calls    atomic.Int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if n := f.calls.Add(1); n <= f.failures {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	return f.next.RoundTrip(r)
}

func newTestTelegram(t *testing.T, handler http.HandlerFunc) (*Telegram, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tg := NewTelegram(config.TelegramConfig{
		Token:         "TOKEN",
		ChatID:        42,
		APIURL:        srv.URL,
		MaxRetries:    3,
		RetryBackoff:  time.Millisecond,
		RatePerMinute: 60000,
	})
	return tg, srv
}

func TestSendDeliversMessage(t *testing.T) {
	var got sendMessageRequest
	tg, _ := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"result":{"message_id":1}}`)
	})

	require.NoError(t, tg.Notify(context.Background(), "hello"))
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "hello", got.Text)
}

func TestSendRetriesConnectivityErrors(t *testing.T) {
	tg, _ := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"result":{}}`)
	})
	ft := &flakyTransport{failures: 2, next: http.DefaultTransport}
	tg.Client().SetTransport(ft)

	require.NoError(t, tg.Notify(context.Background(), "retry me"))
	assert.EqualValues(t, 3, ft.calls.Load())
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	tg, _ := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {})
	ft := &flakyTransport{failures: 10, next: http.DefaultTransport}
	tg.Client().SetTransport(ft)

	err := tg.Notify(context.Background(), "lost")
	require.Error(t, err)
	assert.EqualValues(t, 3, ft.calls.Load())
}

func TestSendDoesNotRetryAPIErrors(t *testing.T) {
	var calls atomic.Int32
	tg, _ := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	})

	err := tg.Notify(context.Background(), "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Description, "chat not found")
	assert.EqualValues(t, 1, calls.Load())
}

func TestAlertIsAsync(t *testing.T) {
	var calls atomic.Int32
	tg, _ := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"result":{}}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	tg.Alert(ctx, "background")
	cancel()
	tg.Wait()
	assert.EqualValues(t, 1, calls.Load(), "cancelled caller context does not drop the alert")
}

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.telegram.org"}, true},
		{"reset", fmt.Errorf("post: %w", syscall.ECONNRESET), true},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"dial", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"api error", &APIError{Code: 403, Description: "Forbidden"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectivityError(tt.err))
		})
	}
}
