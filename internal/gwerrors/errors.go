// Package gwerrors defines the gateway's error taxonomy (spec §7).
//
// Every component returns a *Error so that HTTP handlers at the transport
// boundary can translate it into the correct OAuth error body or HTTP
// problem response without leaking internal detail.
package gwerrors

import "errors"

// Error type constants. These double as the OAuth `error` response value
// for the OAuth-surface errors (RFC 6749 §5.2).
const (
	ErrInvalidRequest       = "invalid_request"
	ErrInvalidGrant         = "invalid_grant"
	ErrInvalidClient        = "invalid_client"
	ErrUnsupportedGrantType = "unsupported_grant_type"
	ErrAuthorizationPending = "authorization_pending"
	ErrAccessDenied         = "access_denied"
	ErrExpiredToken         = "expired_token"
	ErrSlowDown             = "slow_down"
	ErrServerError          = "server_error"

	ErrUnauthorized        = "unauthorized"
	ErrForbidden           = "forbidden"
	ErrRateLimited         = "rate_limited"
	ErrUpstreamUnavailable = "upstream_unavailable"
	ErrInternal            = "internal"
	ErrNotFound            = "not_found"
)

// Error is the gateway's canonical error envelope.
type Error struct {
	Type    string
	Message string
	Cause   error
}

// NewError creates an Error of the given type.
func NewError(errType, message string, cause error) *Error {
	return &Error{Type: errType, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Type + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Type + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func is(err error, errType string) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Type == errType
	}
	return false
}

// Constructors, one per taxonomy branch (spec §7).
func NewInvalidRequestError(message string, cause error) *Error {
	return NewError(ErrInvalidRequest, message, cause)
}
func NewInvalidGrantError(message string, cause error) *Error {
	return NewError(ErrInvalidGrant, message, cause)
}
func NewInvalidClientError(message string, cause error) *Error {
	return NewError(ErrInvalidClient, message, cause)
}
func NewUnsupportedGrantTypeError(message string, cause error) *Error {
	return NewError(ErrUnsupportedGrantType, message, cause)
}
func NewAuthorizationPendingError(message string, cause error) *Error {
	return NewError(ErrAuthorizationPending, message, cause)
}
func NewAccessDeniedError(message string, cause error) *Error {
	return NewError(ErrAccessDenied, message, cause)
}
func NewExpiredTokenError(message string, cause error) *Error {
	return NewError(ErrExpiredToken, message, cause)
}
func NewSlowDownError(message string, cause error) *Error {
	return NewError(ErrSlowDown, message, cause)
}
func NewServerError(message string, cause error) *Error {
	return NewError(ErrServerError, message, cause)
}
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(ErrUnauthorized, message, cause)
}
func NewForbiddenError(message string, cause error) *Error {
	return NewError(ErrForbidden, message, cause)
}
func NewRateLimitedError(message string, cause error) *Error {
	return NewError(ErrRateLimited, message, cause)
}
func NewUpstreamUnavailableError(message string, cause error) *Error {
	return NewError(ErrUpstreamUnavailable, message, cause)
}
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// Is* predicates, mirroring the constructors.
func IsInvalidRequest(err error) bool       { return is(err, ErrInvalidRequest) }
func IsInvalidGrant(err error) bool         { return is(err, ErrInvalidGrant) }
func IsInvalidClient(err error) bool        { return is(err, ErrInvalidClient) }
func IsUnsupportedGrantType(err error) bool { return is(err, ErrUnsupportedGrantType) }
func IsAuthorizationPending(err error) bool { return is(err, ErrAuthorizationPending) }
func IsAccessDenied(err error) bool         { return is(err, ErrAccessDenied) }
func IsExpiredToken(err error) bool         { return is(err, ErrExpiredToken) }
func IsSlowDown(err error) bool             { return is(err, ErrSlowDown) }
func IsServerError(err error) bool          { return is(err, ErrServerError) }
func IsUnauthorized(err error) bool         { return is(err, ErrUnauthorized) }
func IsForbidden(err error) bool            { return is(err, ErrForbidden) }
func IsRateLimited(err error) bool          { return is(err, ErrRateLimited) }
func IsUpstreamUnavailable(err error) bool  { return is(err, ErrUpstreamUnavailable) }
func IsInternal(err error) bool             { return is(err, ErrInternal) }
func IsNotFound(err error) bool             { return is(err, ErrNotFound) }

// OAuthBody is the RFC 6749 §5.2 error response shape.
type OAuthBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AsOAuthBody converts an Error into the RFC 6749 wire shape. Non-OAuth
// error types are mapped to "server_error" so the OAuth surface never emits
// an error code outside the RFC's vocabulary.
func (e *Error) AsOAuthBody() OAuthBody {
	switch e.Type {
	case ErrInvalidRequest, ErrInvalidGrant, ErrInvalidClient, ErrUnsupportedGrantType,
		ErrAuthorizationPending, ErrAccessDenied, ErrExpiredToken, ErrSlowDown, ErrServerError:
		return OAuthBody{Error: e.Type, ErrorDescription: e.Message}
	default:
		return OAuthBody{Error: ErrServerError, ErrorDescription: e.Message}
	}
}

// HTTPStatus maps the error type to the HTTP status code the transport layer
// should use (spec §7 taxonomy).
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrInvalidRequest:
		return 400
	case ErrUnauthorized, ErrExpiredToken:
		return 401
	case ErrForbidden, ErrAccessDenied:
		return 403
	case ErrNotFound:
		return 404
	case ErrRateLimited:
		return 429
	case ErrUpstreamUnavailable:
		return 503
	case ErrInvalidGrant, ErrInvalidClient, ErrUnsupportedGrantType, ErrAuthorizationPending, ErrSlowDown:
		return 400
	default:
		return 500
	}
}
