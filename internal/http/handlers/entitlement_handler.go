package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CheckEntitlement godoc
// @ID          checkEntitlement
// @Summary     Entitlement gate
// @Description Reports whether the most recent session for the identity may pass the payment wall and whether a new plan can be generated this period. Read-only.
// @Tags        Entitlements
// @Produce     json
// @Param       email       query  string  false  "Email address"
// @Param       session_id  query  string  false  "Session ID (UUID)"  format(uuid)
// @Success     200  {object}  services.Access
// @Failure     400  {object}  handlers.ErrorResponse  "Neither email nor session_id given"
// @Failure     404  {object}  handlers.ErrorResponse  "No session for identity"
// @Router      /entitlements [get]
func (h *Handlers) CheckEntitlement(c *gin.Context) {
	ctx := c.Request.Context()
	if id := strings.TrimSpace(c.Query("session_id")); id != "" {
		access, err := h.entitlements.CheckBySession(ctx, id)
		if err != nil {
			failService(c, err)
			return
		}
		ok(c, http.StatusOK, access)
		return
	}
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email or session_id required")
		return
	}
	access, err := h.entitlements.CheckByEmail(ctx, email)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, access)
}
