// Package handlers provides the HTTP handlers of the funnel API.
//
// This file holds the response helpers shared by every endpoint. Errors are
// always written as an ErrorResponse envelope carrying a stable code from
// errors.go; 5xx responses are logged through the request-scoped logger.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/http/middleware"
	"github.com/tbourn/mealplan-funnel/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_entitled"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"payment required"`
}

// fail aborts the request with a structured error. Server errors are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// failService maps a service error onto the envelope. Unknown errors are
// reported as 500 without leaking their text; the cause goes to the log.
func failService(c *gin.Context, err error) {
	failServiceOr(c, err, http.StatusInternalServerError, ErrCodeInternal, "internal error")
}

// failServiceOr is failService with a caller-chosen fallback for errors that
// are not service sentinels.
func failServiceOr(c *gin.Context, err error, status int, code, msg string) {
	if st, cd, m, known := classify(err); known {
		var limit *services.LimitError
		if errors.As(err, &limit) {
			c.Header("Retry-After", strconv.Itoa(limit.DaysLeft*24*3600))
		}
		fail(c, st, cd, m)
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("service error")
	fail(c, status, code, msg)
}

// classify returns the status, code and message for a service sentinel.
func classify(err error) (status int, code, msg string, known bool) {
	var limit *services.LimitError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "session not found", true
	case errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrEmptyAnswers),
		errors.Is(err, services.ErrTooManyAnswers),
		errors.Is(err, services.ErrTooManyOptions),
		errors.Is(err, services.ErrIdentityRequired):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error(), true
	case errors.Is(err, services.ErrEmailRequired):
		return http.StatusConflict, ErrCodeEmailRequired, "capture an email address first", true
	case errors.Is(err, services.ErrNotEntitled):
		return http.StatusPaymentRequired, ErrCodeNotEntitled, "payment required", true
	case errors.As(err, &limit):
		return http.StatusTooManyRequests, ErrCodeGenerationLimit,
			fmt.Sprintf("next meal plan available in %d day(s)", limit.DaysLeft), true
	case errors.Is(err, services.ErrAlreadyGenerated):
		return http.StatusConflict, ErrCodeAlreadyGenerated, "meal plan already generated", true
	case errors.Is(err, services.ErrGenerationFailed):
		return http.StatusBadGateway, ErrCodeGenerationFailed, "could not generate a meal plan, please try again", true
	case errors.Is(err, services.ErrEmailFailed):
		return http.StatusBadGateway, ErrCodeEmailFailed, "meal plan saved but the email could not be sent", true
	case errors.Is(err, services.ErrUnknownPlan):
		return http.StatusBadRequest, ErrCodeUnknownPlan, "unknown plan", true
	case errors.Is(err, services.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, ErrCodeProviderDisabled, "payment provider unavailable", true
	}
	return 0, "", "", false
}
