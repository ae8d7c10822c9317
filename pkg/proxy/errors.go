package proxy

import (
	"context"
	"errors"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/proxy/types"
)

// HandleError converts a turn or request error to an OpenAI-compatible
// error response.
//
// Upstream details stay in the logs; clients get a classification and a
// short message.
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var invalidErr *backends.InvalidRequestError
	if errors.As(err, &invalidErr) {
		if invalidErr.Code == backends.CodeUnknownModel {
			return types.NewInvalidRequestError(invalidErr.Message, "model", types.CodeModelNotFound)
		}
		return types.NewInvalidRequestError(invalidErr.Message, invalidErr.Field, types.CodeInvalidValue)
	}

	var (
		authErr    *backends.AuthError
		sessErr    *backends.SessionError
		timeoutErr *backends.TimeoutError
		streamErr  *backends.StreamError
		parseErr   *backends.ParseError
		upErr      *backends.UpstreamError
	)
	switch {
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return types.NewGatewayTimeoutError("The upstream model did not answer in time.")
	case errors.As(err, &authErr):
		return types.NewUpstreamAuthError("The gateway could not authenticate with the upstream model.")
	case errors.As(err, &sessErr):
		return types.NewBadGatewayError("The upstream model rejected the conversation session.", types.CodeSessionError)
	case errors.As(err, &streamErr), errors.As(err, &parseErr), errors.As(err, &upErr):
		return types.NewBadGatewayError("The upstream model returned an error.", types.CodeUpstreamError)
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}
