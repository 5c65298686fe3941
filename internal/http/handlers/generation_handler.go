// Meal plan generation handlers.
//
//   - POST /sessions/{id}/meal-plan         (generate, store, email; one response)
//   - GET  /sessions/{id}/meal-plan/stream  (same, streamed as server-sent events)
//
// The stream only switches to text/event-stream once the first fragment is
// ready, so gate failures still get a regular JSON error envelope. A client
// disconnect cancels the request context, which aborts the generation before
// anything is stored.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/http/middleware"
	"github.com/tbourn/mealplan-funnel/internal/services"
)

// MealPlanResponse wraps a generated plan.
type MealPlanResponse struct {
	MealPlan *domain.MealPlan `json:"meal_plan"`
}

// SSE event names.
const (
	eventDelta = "delta"
	eventDone  = "done"
	eventError = "error"
)

// GenerateMealPlan godoc
// @ID          generateMealPlan
// @Summary     Generate the meal plan
// @Description Generates, stores and emails the plan. One-time buyers get one plan; subscribers one per billing period.
// @Tags        Meal plans
// @Produce     json
// @Param       id   path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     201  {object}  handlers.MealPlanResponse
// @Failure     402  {object}  handlers.ErrorResponse  "Not entitled"
// @Failure     409  {object}  handlers.ErrorResponse  "Already generated"
// @Failure     429  {object}  handlers.ErrorResponse  "Generation limit reached"
// @Failure     502  {object}  handlers.ErrorResponse  "Generation or email failed"
// @Router      /sessions/{id}/meal-plan [post]
func (h *Handlers) GenerateMealPlan(c *gin.Context) {
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	plan, err := h.gen.Generate(c.Request.Context(), id)
	if err != nil {
		failServiceOr(c, err, http.StatusBadGateway, ErrCodeUpstreamFailed, "could not generate a meal plan, please try again")
		return
	}
	ok(c, http.StatusCreated, MealPlanResponse{MealPlan: plan})
}

// StreamMealPlan godoc
// @ID          streamMealPlan
// @Summary     Generate the meal plan (SSE)
// @Description Streams `delta` events with model output, then a `done` event carrying the stored plan, or an `error` event. Gate failures are returned as JSON before the stream starts.
// @Tags        Meal plans
// @Produce     text/event-stream
// @Param       id   path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {string}  string  "event stream"
// @Failure     402  {object}  handlers.ErrorResponse  "Not entitled"
// @Failure     409  {object}  handlers.ErrorResponse  "Already generated"
// @Failure     429  {object}  handlers.ErrorResponse  "Generation limit reached"
// @Router      /sessions/{id}/meal-plan/stream [get]
func (h *Handlers) StreamMealPlan(c *gin.Context) {
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	plan, err := h.gen.Stream(ctx, id, func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start()
		c.SSEvent(eventDelta, delta)
		c.Writer.Flush()
		return nil
	})

	switch {
	case err == nil:
		start()
		c.SSEvent(eventDone, MealPlanResponse{MealPlan: plan})
	case !started:
		failServiceOr(c, err, http.StatusBadGateway, ErrCodeUpstreamFailed, "could not generate a meal plan, please try again")
		return
	case ctx.Err() != nil:
		// Client is gone; nothing was stored.
		return
	default:
		if plan != nil {
			// Stored but not emailed.
			c.SSEvent(eventDone, MealPlanResponse{MealPlan: plan})
		}
		status, code, msg, known := classify(err)
		if !known {
			status, code, msg = http.StatusBadGateway, ErrCodeUpstreamFailed, "could not generate a meal plan, please try again"
		}
		if status >= http.StatusInternalServerError && !errors.Is(err, services.ErrGenerationFailed) {
			middleware.LoggerFrom(c).Error().Err(err).Int("status", status).Msg("meal plan stream failed")
		}
		c.SSEvent(eventError, ErrorResponse{
			RequestID: c.Writer.Header().Get("X-Request-ID"),
			Code:      code,
			Message:   msg,
		})
	}
	c.Writer.Flush()
}

// GetMealPlan godoc
// @ID          getMealPlan
// @Summary     Read the stored meal plan
// @Tags        Meal plans
// @Produce     json
// @Param       id   path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.MealPlanResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session or plan not found"
// @Router      /sessions/{id}/meal-plan [get]
func (h *Handlers) GetMealPlan(c *gin.Context) {
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	s, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	plan, err := s.Plan()
	if err != nil {
		failService(c, err)
		return
	}
	if plan == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no meal plan generated yet")
		return
	}
	ok(c, http.StatusOK, MealPlanResponse{MealPlan: plan})
}
