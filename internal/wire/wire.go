// Package wire holds the JSON shapes and error codes shared by the HTTP API and its client adapter.
package wire

// Error is the error envelope returned by every endpoint.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Credentials is the body of sign-up and password grant requests.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of the refresh_token grant.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Grant types accepted by the token endpoint.
const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

// Auth error codes.
const (
	CodeValidationFailed     = "validation_failed"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeUserAlreadyExists    = "user_already_exists"
	CodeOverRequestRateLimit = "over_request_rate_limit"
	CodeBadJWT               = "bad_jwt"
	CodeRefreshTokenNotFound = "refresh_token_not_found"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeUnexpectedFailure    = "unexpected_failure"
)

// Table error codes. PostgREST/Postgres compatible.
const (
	CodeNoRows           = "PGRST116" // single-row query matched zero rows
	CodeJWTInvalid       = "PGRST301"
	CodeUniqueViolation  = "23505"
	CodeInsufficientPriv = "42501"
	CodeCheckViolation   = "23514"
	CodeInvalidTextRepr  = "22P02"
	CodeInternal         = "XX000"
)
