package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindPermanent},
		{"plain error", errors.New("boom"), KindPermanent},
		{"context cancelled", context.Canceled, KindPermanent},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), KindTransient},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindTransient},
		{"grpc unavailable", status.Error(codes.Unavailable, "try later"), KindTransient},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), KindTransient},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "bad key"), KindPermanent},
		{"grpc quota", status.Error(codes.ResourceExhausted, "quota"), KindPermanent},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad request"), KindPermanent},
		{"grpc model not found", status.Error(codes.NotFound, "model"), KindModelUnavailable},
		{"googleapi 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, KindTransient},
		{"googleapi 401", &googleapi.Error{Code: http.StatusUnauthorized}, KindPermanent},
		{"googleapi 429", &googleapi.Error{Code: http.StatusTooManyRequests}, KindPermanent},
		{"googleapi 404", &googleapi.Error{Code: http.StatusNotFound}, KindModelUnavailable},
		{"call error keeps kind", &CallError{Kind: KindModelUnavailable, Model: "m", Err: errors.New("x")}, KindModelUnavailable},
		{"wrapped call error", fmt.Errorf("page 2: %w", &CallError{Kind: KindTransient, Err: io.EOF}), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "model_unavailable", KindModelUnavailable.String())
	assert.Equal(t, "permanent", KindPermanent.String())
}
