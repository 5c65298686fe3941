// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries behind the admin
// dashboard and the conditional (ETag) response on the leads listing.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// LeadsStats returns the number of leads and the greatest UpdatedAt among
// them. When there are no leads, count is 0 and maxUpdatedAt is nil.
func LeadsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Session{}).Where("email IS NOT NULL AND email <> ''")

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// FunnelStats computes exact counts for each funnel stage at now.
func FunnelStats(ctx context.Context, db *gorm.DB, now time.Time) (domain.FunnelStats, error) {
	var st domain.FunnelStats
	base := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.Session{}) }

	if err := base().Count(&st.Sessions).Error; err != nil {
		return st, err
	}
	if err := base().Where("email IS NOT NULL AND email <> ''").Count(&st.Leads).Error; err != nil {
		return st, err
	}
	if err := base().Where("payment_status = ? OR is_subscriber = ?", true, true).Count(&st.Paid).Error; err != nil {
		return st, err
	}
	if err := base().
		Where("is_subscriber = ? AND subscription_active_until > ?", true, now).
		Count(&st.ActiveSubscribers).Error; err != nil {
		return st, err
	}
	if err := base().Where("last_meal_plan_at IS NOT NULL AND meal_plan IS NOT NULL").Count(&st.MealPlans).Error; err != nil {
		return st, err
	}

	if st.Sessions > 0 {
		st.LeadRate = float64(st.Leads) / float64(st.Sessions)
	}
	if st.Leads > 0 {
		st.ConversionRate = float64(st.Paid) / float64(st.Leads)
	}
	return st, nil
}
