package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// DefaultCatalog is used when PLANS_PATH is unset: a one-time plan and a
// monthly subscription.
func DefaultCatalog() domain.Catalog {
	return domain.Catalog{Plans: []domain.Plan{
		{
			ID:          "one_time",
			Name:        "Personal meal plan",
			Mode:        domain.PlanModeOneTime,
			AmountMinor: 1900,
			Currency:    "usd",
		},
		{
			ID:          "monthly",
			Name:        "Monthly meal plans",
			Mode:        domain.PlanModeSubscription,
			PeriodDays:  30,
			AmountMinor: 999,
			Currency:    "usd",
		},
	}}
}

// LoadCatalog reads the plan catalog from path, or returns DefaultCatalog
// when path is empty.
func LoadCatalog(path string) (domain.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read plans: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a YAML plan catalog.
func ParseCatalog(raw []byte) (domain.Catalog, error) {
	var c domain.Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode plans: %w", err)
	}
	if len(c.Plans) == 0 {
		return domain.Catalog{}, errors.New("plans: catalog is empty")
	}
	seen := make(map[string]struct{}, len(c.Plans))
	for i := range c.Plans {
		p := &c.Plans[i]
		p.ID = strings.TrimSpace(p.ID)
		p.Currency = strings.ToLower(strings.TrimSpace(p.Currency))
		if p.ID == "" {
			return domain.Catalog{}, fmt.Errorf("plans[%d]: id is required", i)
		}
		key := strings.ToLower(p.ID)
		if _, dup := seen[key]; dup {
			return domain.Catalog{}, fmt.Errorf("plans[%d]: duplicate id %q", i, p.ID)
		}
		seen[key] = struct{}{}
		switch p.Mode {
		case domain.PlanModeOneTime, domain.PlanModeSubscription:
		default:
			return domain.Catalog{}, fmt.Errorf("plans[%d]: mode must be one_time or subscription", i)
		}
		if p.AmountMinor <= 0 || p.Currency == "" {
			return domain.Catalog{}, fmt.Errorf("plans[%d]: amount and currency are required", i)
		}
		if p.PeriodDays < 0 {
			return domain.Catalog{}, fmt.Errorf("plans[%d]: period_days must be >= 0", i)
		}
	}
	return c, nil
}
