package model

// Stable wire error tokens. These are the public contract of the API
// and must not drift across refactors.
const (
	// Identification.
	ErrAgentNotFound    = "agent_not_found"
	ErrAgentKeyNotFound = "agent_key_not_found"
	ErrAgentIDTaken     = "agent_id_taken"

	// Authentication.
	ErrMissingBearerToken    = "missing_bearer_token"
	ErrJWTExpired            = "jwt_expired"
	ErrJWTInvalid            = "jwt_invalid"
	ErrInvalidOrExpiredNonce = "invalid_or_expired_nonce"
	ErrBadSignature          = "bad_signature"

	// Authorization.
	ErrTokenAgentMismatch = "token_agent_mismatch"
	ErrDenied             = "denied"

	// Validation.
	ErrArgsSchemaInvalid        = "args_schema_invalid"
	ErrInvalidVerificationLevel = "invalid_verification_level"

	// Resource.
	ErrToolNotFoundOrDisabled = "tool_not_found_or_disabled"

	// Registration policy.
	ErrRegistrationRejected = "registration_rejected"
)
