// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, snake_case and returned in the `code` field of every
// error envelope (see fail()). Clients branch on them; messages are for humans.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "generation_limit",
//	  "message": "next meal plan available in 12 day(s)"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Funnel:
	ErrCodeEmailRequired     = "email_required"
	ErrCodeNotEntitled       = "not_entitled"
	ErrCodeGenerationLimit   = "generation_limit"
	ErrCodeAlreadyGenerated  = "already_generated"
	ErrCodeGenerationFailed  = "generation_failed"
	ErrCodeUpstreamFailed    = "upstream_failed"
	ErrCodeEmailFailed       = "email_failed"
	ErrCodeUnknownPlan       = "unknown_plan"
	ErrCodeProviderDisabled  = "provider_unavailable"
	ErrCodeCheckoutFailed    = "checkout_failed"
	ErrCodeInvalidSignature  = "invalid_signature"
	ErrCodeMalformedEvent    = "malformed_event"
	ErrCodeUnresolvedSession = "session_not_resolved"
	ErrCodeAmountMismatch    = "amount_mismatch"
	ErrCodeLoginDisabled     = "login_disabled"
)
