// Session HTTP handlers.
//
//   - POST  /sessions               (start a funnel session)
//   - GET   /sessions/{id}          (read the session)
//   - PATCH /sessions/{id}/answers  (merge quiz answers)
//   - PUT   /sessions/{id}/email    (capture the email)
//   - GET   /sessions/{id}/preview  (teaser plan, email-gated)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

//
// DTOs
//

// SessionView is the client-facing projection of a session. Provider ids
// and the stored plan body are not exposed here.
type SessionView struct {
	ID                      string             `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Email                   string             `json:"email,omitempty" example:"jane@example.com"`
	QuizAnswers             domain.QuizAnswers `json:"quiz_answers"`
	PaymentStatus           bool               `json:"payment_status"`
	IsSubscriber            bool               `json:"is_subscriber"`
	SubscriptionActiveUntil *time.Time         `json:"subscription_active_until,omitempty"`
	SelectedPlan            string             `json:"selected_plan,omitempty" example:"monthly"`
	HasMealPlan             bool               `json:"has_meal_plan"`
	LastMealPlanAt          *time.Time         `json:"last_meal_plan_at,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
}

func sessionView(s *domain.Session) SessionView {
	return SessionView{
		ID:                      s.ID,
		Email:                   s.EmailAddress(),
		QuizAnswers:             s.Answers(),
		PaymentStatus:           s.PaymentStatus,
		IsSubscriber:            s.IsSubscriber,
		SubscriptionActiveUntil: s.SubscriptionActiveUntil,
		SelectedPlan:            s.SelectedPlan,
		HasMealPlan:             s.HasMealPlan(),
		LastMealPlanAt:          s.LastMealPlanAt,
		CreatedAt:               s.CreatedAt,
	}
}

// SaveAnswersRequest carries answers keyed by question id. Each listed
// question replaces its stored selection.
type SaveAnswersRequest struct {
	Answers domain.QuizAnswers `json:"answers" binding:"required"`
}

// CaptureEmailRequest is the email-capture payload.
type CaptureEmailRequest struct {
	Email string `json:"email" binding:"required" example:"jane@example.com"`
}

// PreviewResponse wraps the teaser text.
type PreviewResponse struct {
	Preview string `json:"preview"`
}

// sessionParam returns the :id path parameter, or aborts with 400.
func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// StartSession godoc
// @ID          startSession
// @Summary     Start a funnel session
// @Tags        Sessions
// @Produce     json
// @Success     201  {object}  handlers.SessionView
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) StartSession(c *gin.Context) {
	s, err := h.sessions.Start(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, sessionView(s))
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a funnel session
// @Tags        Sessions
// @Produce     json
// @Param       id   path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.SessionView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	s, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, sessionView(s))
}

// SaveAnswers godoc
// @ID          saveAnswers
// @Summary     Save quiz answers
// @Description Merges answers into the session; each question listed replaces its stored selection.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Session ID (UUID)"  format(uuid)
// @Param       body  body  handlers.SaveAnswersRequest  true  "Answers"
// @Success     200  {object}  handlers.SessionView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/answers [patch]
func (h *Handlers) SaveAnswers(c *gin.Context) {
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	var req SaveAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	s, err := h.sessions.SaveAnswers(c.Request.Context(), id, req.Answers)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, sessionView(s))
}

// CaptureEmail godoc
// @ID          captureEmail
// @Summary     Capture the lead email
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Session ID (UUID)"  format(uuid)
// @Param       body  body  handlers.CaptureEmailRequest  true  "Email"
// @Success     200  {object}  handlers.SessionView
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid email"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/email [put]
func (h *Handlers) CaptureEmail(c *gin.Context) {
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	var req CaptureEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	s, err := h.sessions.CaptureEmail(c.Request.Context(), id, req.Email)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, sessionView(s))
}

// Preview godoc
// @ID          previewMealPlan
// @Summary     Teaser meal plan
// @Description Short, unsaved teaser generated from the quiz answers. Requires a captured email.
// @Tags        Sessions
// @Produce     json
// @Param       id   path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.PreviewResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Email required"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream failure"
// @Router      /sessions/{id}/preview [get]
func (h *Handlers) Preview(c *gin.Context) {
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	text, err := h.gen.Preview(c.Request.Context(), id)
	if err != nil {
		failServiceOr(c, err, http.StatusBadGateway, ErrCodeUpstreamFailed, "could not generate a preview, please try again")
		return
	}
	ok(c, http.StatusOK, PreviewResponse{Preview: text})
}
