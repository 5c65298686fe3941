// Package services – SessionService
//
// This file implements SessionService, which owns the client-driven part of a
// funnel journey: starting a session, saving quiz answers and capturing the
// email address. Billing-owned and generation-owned fields are never written
// here.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// SessionRepo defines the repository contract required by SessionService.
type SessionRepo interface {
	// CreateSession inserts an empty session.
	CreateSession(ctx context.Context, db *gorm.DB) (*domain.Session, error)

	// GetSession fetches a session by id.
	GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error)

	// MergeQuizAnswers applies an answers update and returns the session.
	MergeQuizAnswers(ctx context.Context, db *gorm.DB, id string, update domain.QuizAnswers) (*domain.Session, error)

	// AttachEmail sets the session email.
	AttachEmail(ctx context.Context, db *gorm.DB, id, email string) error
}

// SessionService manages the quiz part of a funnel session.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the session repository used by this service.
	Repo SessionRepo

	// MaxQuestions caps the number of distinct questions in one update.
	MaxQuestions int
	// MaxOptions caps the number of options selected for one question.
	MaxOptions int
}

// NewSessionService constructs a SessionService with default limits.
func NewSessionService(db *gorm.DB, r SessionRepo) *SessionService {
	return &SessionService{DB: db, Repo: r, MaxQuestions: 50, MaxOptions: 20}
}

// Start creates a new session with no email.
func (s *SessionService) Start(ctx context.Context) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Start")
	defer span.End()
	return s.Repo.CreateSession(ctx, s.DB)
}

// Get returns the session or ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	sess, err := s.Repo.GetSession(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// SaveAnswers merges answers into the session. Each question in answers
// replaces the stored selection; an empty selection clears the question.
func (s *SessionService) SaveAnswers(ctx context.Context, id string, answers domain.QuizAnswers) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "SaveAnswers",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.Int("answers.count", len(answers)),
		))
	defer span.End()

	clean, err := s.cleanAnswers(answers)
	if err != nil {
		return nil, err
	}
	sess, err := s.Repo.MergeQuizAnswers(ctx, s.DB, id, clean)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// CaptureEmail validates, normalizes and attaches the address.
func (s *SessionService) CaptureEmail(ctx context.Context, id, email string) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "CaptureEmail",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	normalized, err := ParseEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.AttachEmail(ctx, s.DB, id, normalized); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// ParseEmail validates a bare address and returns it normalized.
func ParseEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 320 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return domain.NormalizeEmail(addr.Address), nil
}

func (s *SessionService) cleanAnswers(in domain.QuizAnswers) (domain.QuizAnswers, error) {
	if len(in) == 0 {
		return nil, ErrEmptyAnswers
	}
	if s.MaxQuestions > 0 && len(in) > s.MaxQuestions {
		return nil, ErrTooManyAnswers
	}
	out := make(domain.QuizAnswers, len(in))
	for q, opts := range in {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if s.MaxOptions > 0 && len(opts) > s.MaxOptions {
			return nil, fmt.Errorf("%w: question %q", ErrTooManyOptions, q)
		}
		kept := make([]string, 0, len(opts))
		for _, o := range opts {
			if o = strings.TrimSpace(o); o != "" {
				kept = append(kept, o)
			}
		}
		out[q] = kept
	}
	if len(out) == 0 {
		return nil, ErrEmptyAnswers
	}
	return out, nil
}
