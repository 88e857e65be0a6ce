package llm

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a failed model call for the retry policy.
type Kind int

const (
	KindPermanent Kind = iota
	KindTransient
	KindModelUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindModelUnavailable:
		return "model_unavailable"
	default:
		return "permanent"
	}
}

// CallError is returned by generators so that the retry policy does not need
// to know about provider-specific error types.
type CallError struct {
	Kind  Kind
	Model string
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s error calling model %s: %v", e.Kind, e.Model, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Classify decides whether err is worth retrying. Quota exhaustion is
// permanent.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.StatusCode)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyHTTPStatus(gErr.Code)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return classifyGRPCCode(st.Code())
	}

	if isNetworkError(err) {
		return KindTransient
	}
	return KindPermanent
}

func classifyHTTPStatus(code int) Kind {
	switch code {
	case http.StatusNotFound:
		return KindModelUnavailable
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return KindTransient
	default:
		// 400, 401, 403 and 429 (quota) are not retried.
		return KindPermanent
	}
}

func classifyGRPCCode(code codes.Code) Kind {
	switch code {
	case codes.NotFound:
		return KindModelUnavailable
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return KindTransient
	default:
		// Unauthenticated, PermissionDenied, InvalidArgument, ResourceExhausted.
		return KindPermanent
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
