package resilience

import (
	"errors"
	"io"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// Classifier is implemented by errors that know whether they are worth
// retrying, such as a download server's status reply.
type Classifier interface {
	Retryable() bool
}

// retryableMessages catch transport failures that reach us only as text,
// after a client library has flattened the cause.
var retryableMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"server closed idle connection",
}

// Retryable reports whether err is a transient download failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var c Classifier
	if errors.As(err, &c) {
		return c.Retryable()
	}

	var reply *textproto.Error
	if errors.As(err, &reply) {
		return RetryableFTPCode(reply.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED, io.ErrUnexpectedEOF} {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RetryableHTTPStatus reports whether a download server's status means
// "try again later".
func RetryableHTTPStatus(code int) bool {
	return code == 408 || code == 429 || (code >= 500 && code != 501 && code != 505)
}

// RetryableFTPCode reports whether an FTP reply is a transient negative
// completion (4yz): service busy, data connection failed, file locked.
func RetryableFTPCode(code int) bool {
	return code >= 400 && code < 500
}
