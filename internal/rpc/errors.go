// ABOUTME: Maps gateway errors onto gRPC status codes
// ABOUTME: Messages keep the original error text; execution failures keep their diagnostic id

package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/diag"
	"github.com/2389/wallet-gateway/internal/pending"
	"github.com/2389/wallet-gateway/internal/pipeline"
	"github.com/2389/wallet-gateway/internal/store"
	"github.com/2389/wallet-gateway/internal/wallet"
)

// toStatus converts err to a gRPC status error. Errors that already carry
// a status are returned unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, wallet.ErrValidation),
		errors.Is(err, wallet.ErrUnknownCommand),
		errors.Is(err, capability.ErrInvalidAppID),
		errors.Is(err, capability.ErrInvalidKey),
		errors.Is(err, errBadRequest):
		return codes.InvalidArgument
	case errors.Is(err, authz.ErrDenied):
		return codes.PermissionDenied
	case errors.Is(err, authz.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, pipeline.ErrMissingApprovalPayload):
		return codes.FailedPrecondition
	case errors.Is(err, pending.ErrFull):
		return codes.ResourceExhausted
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, diag.ErrNotRetained):
		return codes.NotFound
	default:
		return codes.Internal
	}
}

var errBadRequest = errors.New("bad request")
