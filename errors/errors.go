package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Encoder
	ErrInvalidImage     = fmt.Errorf("invalid image")
	ErrInvalidPixelSize = fmt.Errorf("pixel size must be at least 1")
	ErrFetchDenied      = fmt.Errorf("remote image retrieval refused")
	ErrEncodeFailed     = fmt.Errorf("image encoding produced no output")

	// Transfer
	ErrUploadFailed     = fmt.Errorf("upload failed")
	ErrOffsetMismatch   = fmt.Errorf("chunk offset does not match upload offset")
	ErrIncompleteUpload = fmt.Errorf("upload is missing bytes")
	ErrInvalidUpload    = fmt.Errorf("invalid upload request")

	// Input validation
	ErrEmptyMessage     = fmt.Errorf("message is empty")
	ErrNoSource         = fmt.Errorf("neither photo data nor locator provided")
	ErrNotAuthenticated = fmt.Errorf("no authenticated participant")

	// Store
	ErrSyncStream       = fmt.Errorf("message stream failed")
	ErrStoreWrite       = fmt.Errorf("store rejected write")
	ErrNotFound         = fmt.Errorf("not found")
	ErrPermissionDenied = fmt.Errorf("permission denied")
)

// Is forwards to the standard library so callers only import this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isDomainError(err) {
		return err
	}
	switch {
	case Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case Is(err, ErrNotAuthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case Is(err, ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case Is(err, ErrEmptyMessage), Is(err, ErrNoSource), Is(err, ErrInvalidPixelSize):
		return status.Error(codes.InvalidArgument, err.Error())
	case Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromGRPCError is the client side of MapToGRPCError.
// Errors without a known mapping are returned untouched.
func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return err
	}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrNotAuthenticated, ErrPermissionDenied,
		ErrEmptyMessage, ErrNoSource, ErrInvalidPixelSize,
	} {
		if Is(err, target) {
			return true
		}
	}
	return false
}
