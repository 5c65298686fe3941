// Admin dashboard handlers.
//
//   - POST /admin/login    (password → bearer token)
//   - GET  /admin/metrics  (funnel counts, token required)
//   - GET  /admin/leads    (paginated leads, weak ETag, token required)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/auth"
	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// AdminLoginRequest is the dashboard login payload.
type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLoginResponse carries the bearer token for the admin endpoints.
type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ListLeadsResponse wraps a page of leads and pagination information.
type ListLeadsResponse struct {
	Leads      []domain.Lead `json:"leads"`
	Pagination Pagination    `json:"pagination"`
}

// AdminLogin godoc
// @ID          adminLogin
// @Summary     Admin login
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.AdminLoginRequest  true  "Credentials"
// @Success     200  {object}  handlers.AdminLoginResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Wrong password"
// @Failure     503  {object}  handlers.ErrorResponse  "Admin login disabled"
// @Router      /admin/login [post]
func (h *Handlers) AdminLogin(c *gin.Context) {
	if h.tokens == nil || h.adminPassword == "" {
		fail(c, http.StatusServiceUnavailable, ErrCodeLoginDisabled, "admin login disabled")
		return
	}
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "password required")
		return
	}
	if !auth.CheckPassword(h.adminPassword, req.Password) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
		return
	}
	token, exp, err := h.tokens.Issue()
	if errors.Is(err, auth.ErrDisabled) {
		fail(c, http.StatusServiceUnavailable, ErrCodeLoginDisabled, "admin login disabled")
		return
	}
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, AdminLoginResponse{Token: token, ExpiresAt: exp})
}

// AdminMetrics godoc
// @ID          adminMetrics
// @Summary     Funnel metrics
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.FunnelStats
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /admin/metrics [get]
func (h *Handlers) AdminMetrics(c *gin.Context) {
	stats, err := h.admin.Metrics(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}

// ListLeads godoc
// @ID          listLeads
// @Summary     List leads (paginated)
// @Description Sessions that captured an email, newest first. Supports weak ETag via If-None-Match.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListLeadsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /admin/leads [get]
func (h *Handlers) ListLeads(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, latest, err := h.admin.LeadsVersion(ctx); err == nil {
		var ts int64
		if latest != nil {
			ts = latest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"leads:%d:%d:%d:%d"`, page, pageSize, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	leads, total, err := h.admin.Leads(ctx, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListLeadsResponse{Leads: leads, Pagination: newPagination(page, pageSize, total)})
}
