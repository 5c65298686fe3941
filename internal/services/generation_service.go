// Package services – GenerationService
//
// This file implements GenerationService, which turns a session's quiz
// answers into a meal plan. A plan is stored, together with the generation
// timestamp that drives the subscriber cap, only once the complete model
// output parsed and validated. A stream cancelled before completion stores
// nothing. The stored plan is then emailed to the session address.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/llm"
	"github.com/tbourn/mealplan-funnel/internal/observability"
	"github.com/tbourn/mealplan-funnel/internal/repo"
)

// Completer is the generative-text client.
type Completer interface {
	Complete(ctx context.Context, p llm.Prompt) (string, error)
	Stream(ctx context.Context, p llm.Prompt, onDelta func(string) error) (string, error)
}

// PlanMailer delivers a generated plan.
type PlanMailer interface {
	SendMealPlan(ctx context.Context, to string, plan *domain.MealPlan) error
}

// GenerationService produces previews and meal plans.
type GenerationService struct {
	DB          *gorm.DB
	LLM         Completer
	Mailer      PlanMailer
	Entitlement *EntitlementService
	Now         func() time.Time

	// PreviewTokens caps the teaser length.
	PreviewTokens int64
}

func (s *GenerationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Preview returns a short teaser for a session that captured its email. The
// teaser is not stored and does not count against any cap.
func (s *GenerationService) Preview(ctx context.Context, sessionID string) (string, error) {
	ctx, span := otel.Tracer("services/GenerationService").Start(ctx, "Preview",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.EmailAddress() == "" {
		return "", ErrEmailRequired
	}
	if len(sess.Answers()) == 0 {
		return "", ErrEmptyAnswers
	}

	text, err := s.LLM.Complete(ctx, llm.Prompt{
		System:    previewSystemPrompt,
		User:      quizPrompt(sess.Answers()),
		MaxTokens: s.PreviewTokens,
	})
	if err != nil {
		observability.Generations.WithLabelValues("preview", "upstream_error").Inc()
		log.Error().Err(err).Str("session_id", sessionID).Msg("preview generation failed")
		return "", err
	}
	observability.Generations.WithLabelValues("preview", "ok").Inc()
	return strings.TrimSpace(text), nil
}

// Generate produces, stores and emails a plan in one call.
func (s *GenerationService) Generate(ctx context.Context, sessionID string) (*domain.MealPlan, error) {
	ctx, span := otel.Tracer("services/GenerationService").Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, prompt, err := s.authorize(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := s.LLM.Complete(ctx, prompt)
	if err != nil {
		observability.Generations.WithLabelValues("sync", "upstream_error").Inc()
		log.Error().Err(err).Str("session_id", sessionID).Msg("meal plan generation failed")
		return nil, err
	}
	return s.finish(ctx, sess, raw, "sync")
}

// Stream is Generate with incremental output: onDelta receives each fragment
// as the model writes it. An error from onDelta (typically a client
// disconnect) aborts the generation and nothing is stored.
func (s *GenerationService) Stream(ctx context.Context, sessionID string, onDelta func(string) error) (*domain.MealPlan, error) {
	ctx, span := otel.Tracer("services/GenerationService").Start(ctx, "Stream",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, prompt, err := s.authorize(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := s.LLM.Stream(ctx, prompt, onDelta)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		result := "upstream_error"
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			result = "cancelled"
		}
		observability.Generations.WithLabelValues("stream", result).Inc()
		log.Warn().Err(err).Str("session_id", sessionID).Str("result", result).Msg("meal plan stream ended early")
		return nil, err
	}
	return s.finish(ctx, sess, raw, "stream")
}

func (s *GenerationService) session(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// authorize loads the session and applies the entitlement gate.
func (s *GenerationService) authorize(ctx context.Context, id string) (*domain.Session, llm.Prompt, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, llm.Prompt{}, err
	}
	access := s.Entitlement.Evaluate(sess, s.now())
	switch {
	case !access.Entitled:
		return nil, llm.Prompt{}, ErrNotEntitled
	case access.CanGenerate:
	case access.Subscriber:
		return nil, llm.Prompt{}, &LimitError{DaysLeft: access.DaysUntilEligible}
	default:
		return nil, llm.Prompt{}, ErrAlreadyGenerated
	}
	return sess, llm.Prompt{System: mealPlanSystemPrompt, User: quizPrompt(sess.Answers())}, nil
}

// finish parses, stores and emails the plan. Email failure is reported as
// ErrEmailFailed alongside the stored plan.
func (s *GenerationService) finish(ctx context.Context, sess *domain.Session, raw, mode string) (*domain.MealPlan, error) {
	plan, err := parseMealPlan(raw)
	if err != nil {
		observability.Generations.WithLabelValues(mode, "invalid").Inc()
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("model output rejected")
		return nil, err
	}
	body, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	if err := repo.SaveMealPlan(ctx, s.DB, sess.ID, datatypes.JSON(body), s.now()); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("save meal plan failed")
		return nil, err
	}
	observability.Generations.WithLabelValues(mode, "ok").Inc()

	if to := sess.EmailAddress(); to != "" && s.Mailer != nil {
		err := s.Mailer.SendMealPlan(ctx, to, plan)
		observability.EmailsSent.WithLabelValues("meal_plan", observability.Result(err)).Inc()
		if err != nil {
			log.Error().Err(err).Str("session_id", sess.ID).Msg("meal plan email failed")
			return plan, fmt.Errorf("%w: %v", ErrEmailFailed, err)
		}
	}
	return plan, nil
}
