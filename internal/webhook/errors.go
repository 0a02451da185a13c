package webhook

import (
	"errors"

	"primos/internal/types"
)

// SignatureError reports why an inbound delivery was rejected before
// dispatch. All kinds are terminal for the request.
type SignatureError struct {
	code types.ErrorCode
	msg  string
	err  error
}

func (e *SignatureError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *SignatureError) Unwrap() error { return e.err }

// Is matches on the error kind so wrapped instances compare equal to the
// package sentinels.
func (e *SignatureError) Is(target error) bool {
	t, ok := target.(*SignatureError)
	return ok && t.code == e.code
}

// Code returns the application error code for the rejection.
func (e *SignatureError) Code() types.ErrorCode { return e.code }

// Message is the client-facing text.
func (e *SignatureError) Message() string { return e.msg }

// Rejection kinds returned by Verifier.Verify and Decode.
var (
	ErrMissingSignature  = &SignatureError{code: types.ErrCodeWebhookMissingSignature, msg: "No Stripe signature header"}
	ErrInvalidPayload    = &SignatureError{code: types.ErrCodeWebhookInvalidPayload, msg: "Invalid payload"}
	ErrSignatureMismatch = &SignatureError{code: types.ErrCodeWebhookSignatureMismatch, msg: "Invalid signature"}
)

func wrapSignatureError(sentinel *SignatureError, cause error) *SignatureError {
	return &SignatureError{code: sentinel.code, msg: sentinel.msg, err: cause}
}

// AsAppError converts a SignatureError into a types.AppError for the HTTP
// layer. Other errors return nil.
func AsAppError(err error) *types.AppError {
	var sigErr *SignatureError
	if !errors.As(err, &sigErr) {
		return nil
	}
	return types.NewAppError(sigErr.code, sigErr.msg, sigErr.err)
}
