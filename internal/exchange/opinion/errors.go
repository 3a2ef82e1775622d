package opinion

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Failure classes the engine keys retry decisions off. Everything except
// ErrCredential is retried on the next cycle; ErrCredential kills the
// owning account's session only.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderRejected       = errors.New("order rejected")
	ErrTimeout             = errors.New("request timed out")
	ErrUnavailable         = errors.New("exchange unavailable")
	ErrCredential          = errors.New("invalid credentials")
)

// APIError carries the exchange's own error envelope.
type APIError struct {
	Errno  int
	Errmsg string
	kind   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("opinion: errno=%d %s", e.Errno, e.Errmsg)
}

func (e *APIError) Unwrap() error { return e.kind }

// classifyAPI maps an exchange error envelope onto the failure classes.
func classifyAPI(errno int, errmsg string) error {
	msg := strings.ToLower(errmsg)
	kind := ErrOrderRejected
	switch {
	case strings.Contains(msg, "insufficient"):
		kind = ErrInsufficientBalance
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "signature"):
		kind = ErrCredential
	}
	return &APIError{Errno: errno, Errmsg: errmsg, kind: kind}
}

// classifyTransport maps transport-level failures. Timeouts and connection
// errors are recoverable; callers retry them next cycle.
func classifyTransport(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Terminal reports whether err should end the owning account's session
// rather than be retried.
func Terminal(err error) bool {
	return errors.Is(err, ErrCredential)
}
