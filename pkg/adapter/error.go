package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// AdapterError is a failed model call, tagged with the provider and the HTTP
// status it answered with.
type AdapterError struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	provider := e.Provider
	if provider == "" {
		provider = "adapter"
	}
	if e.Status == 0 {
		return provider + " error"
	}
	return fmt.Sprintf("%s error (status=%d %s)", provider, e.Status, http.StatusText(e.Status))
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RateLimited reports whether the provider rejected the call for quota or
// rate reasons.
func (e *AdapterError) RateLimited() bool {
	return e != nil && e.Status == http.StatusTooManyRequests
}

// ServerSide reports a 5xx answer.
func (e *AdapterError) ServerSide() bool {
	return e != nil && e.Status >= 500 && e.Status <= 599
}

// AsAdapterError returns the AdapterError in err's chain, if any.
func AsAdapterError(err error) (*AdapterError, bool) {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr, true
	}
	return nil, false
}

// IsTransient reports whether a model call that failed with err may succeed
// when retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if adapterErr, ok := AsAdapterError(err); ok {
		return adapterErr.Temporary || adapterErr.RateLimited() || adapterErr.ServerSide()
	}
	return false
}
