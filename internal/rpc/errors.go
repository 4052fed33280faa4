package rpc

import (
	"errors"

	"github.com/matheus3301/rentchat/internal/backend"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ErrRateLimited is returned to callers that exceed the daemon write budget.
var ErrRateLimited = errors.New("rate limited")

// ToStatus maps backend errors to gRPC status errors.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, backend.ErrConflict):
		return grpcstatus.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, backend.ErrInvalidQuery), errors.Is(err, errMalformed):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRateLimited):
		return grpcstatus.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}

// statusError keeps the server message while matching a backend sentinel.
type statusError struct {
	sentinel error
	msg      string
}

func (e *statusError) Error() string { return e.msg }
func (e *statusError) Unwrap() error { return e.sentinel }

// FromStatus maps gRPC status errors back to backend sentinels so callers
// can use errors.Is across the wire.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = backend.ErrNotFound
	case codes.AlreadyExists:
		sentinel = backend.ErrConflict
	case codes.InvalidArgument:
		sentinel = backend.ErrInvalidQuery
	case codes.ResourceExhausted:
		sentinel = ErrRateLimited
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		sentinel = backend.ErrUnavailable
	default:
		return err
	}
	return &statusError{sentinel: sentinel, msg: st.Message()}
}
