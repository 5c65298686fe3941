// Package services – AdminService
//
// This file implements the read-only queries behind the admin dashboard.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/repo"
	"github.com/tbourn/mealplan-funnel/internal/utils"
)

// AdminService aggregates funnel metrics and lists leads.
type AdminService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Metrics returns exact counts for each funnel stage.
func (s *AdminService) Metrics(ctx context.Context) (domain.FunnelStats, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Metrics")
	defer span.End()

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	return repo.FunnelStats(ctx, s.DB, now)
}

// Leads returns a page of leads, newest first, and the total count.
func (s *AdminService) Leads(ctx context.Context, page, pageSize int) ([]domain.Lead, int64, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Leads",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	total, err := repo.CountLeads(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Lead{}, 0, nil
	}
	rows, err := repo.ListLeadsPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.Lead, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Lead{
			SessionID:     r.ID,
			Email:         r.EmailAddress(),
			PaymentStatus: r.PaymentStatus,
			IsSubscriber:  r.IsSubscriber,
			SelectedPlan:  r.SelectedPlan,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, total, nil
}

// LeadsVersion returns the lead count and the latest update time, used to
// answer conditional requests on the leads listing.
func (s *AdminService) LeadsVersion(ctx context.Context) (int64, *time.Time, error) {
	return repo.LeadsStats(ctx, s.DB)
}
