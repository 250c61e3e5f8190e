package resilience

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"syscall"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"classified busy", status(503), true},
		{"classified missing", status(404), false},
		{"wrapped classified", fmt.Errorf("download nbac: %w", status(429)), true},
		{"plain", errors.New("invalid zip header"), false},
		{"connection reset", fmt.Errorf("read tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"truncated body", fmt.Errorf("copy: %w", io.ErrUnexpectedEOF), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"ftp busy", &textproto.Error{Code: 421, Msg: "Service not available"}, true},
		{"ftp data connection", fmt.Errorf("retr: %w", &textproto.Error{Code: 425, Msg: "Can't open data connection"}), true},
		{"ftp missing file", &textproto.Error{Code: 550, Msg: "No such file"}, false},
		{"ftp bad login", &textproto.Error{Code: 530, Msg: "Login incorrect"}, false},
		{"broken pipe text", errors.New("write: broken pipe"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !RetryableHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be retryable", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 410, 501} {
		if RetryableHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be permanent", code)
		}
	}
}
