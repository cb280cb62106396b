// Package notify delivers operational alerts to the Telegram chat.
package notify

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Notifier sends a text message and reports whether it was delivered.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Alerter sends without blocking the caller. Failures are logged, never returned.
type Alerter interface {
	Alert(ctx context.Context, text string)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
func (Nop) Alert(context.Context, string)        {}

// IsConnectivityError reports whether err is a transient network failure
// worth retrying: DNS lookups, refused or reset connections, timeouts and
// connections closed mid-response.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
