package migration

import (
	"context"
	"errors"

	mig "github.com/flarebyte/datamove/internal/migration"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mapError converts engine errors into gRPC status errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, mig.ErrConfirmationRequired):
		code = codes.FailedPrecondition
	case errors.Is(err, mig.ErrInvalidFormat),
		errors.Is(err, mig.ErrInvalidMode),
		errors.Is(err, mig.ErrUnknownModel),
		errors.Is(err, mig.ErrMissingOrInvalidModel):
		code = codes.InvalidArgument
	case errors.Is(err, mig.ErrImportInProgress):
		code = codes.Aborted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

// connectCode is the Connect protocol name of a gRPC code.
func connectCode(c codes.Code) string {
	switch c {
	case codes.InvalidArgument:
		return "invalid_argument"
	case codes.FailedPrecondition:
		return "failed_precondition"
	case codes.Aborted:
		return "aborted"
	case codes.Unauthenticated:
		return "unauthenticated"
	case codes.PermissionDenied:
		return "permission_denied"
	case codes.Canceled:
		return "canceled"
	case codes.DeadlineExceeded:
		return "deadline_exceeded"
	case codes.Unimplemented:
		return "unimplemented"
	default:
		return "internal"
	}
}
