package domain

import (
	"errors"
	"strings"
)

// MealPlan is the generated deliverable stored on a session and emailed to
// the buyer.
type MealPlan struct {
	Title         string        `json:"title"`
	Summary       string        `json:"summary"`
	DailyCalories int           `json:"daily_calories"`
	Days          []MealPlanDay `json:"days"`
	ShoppingList  []string      `json:"shopping_list"`
}

// MealPlanDay groups the meals of one day.
type MealPlanDay struct {
	Day   int    `json:"day"`
	Meals []Meal `json:"meals"`
}

// Meal is a single dish within a day.
type Meal struct {
	Type        string `json:"type"` // breakfast|lunch|dinner|snack
	Name        string `json:"name"`
	Description string `json:"description"`
	Calories    int    `json:"calories"`
}

// ErrInvalidMealPlan is returned by Validate for structurally unusable plans.
var ErrInvalidMealPlan = errors.New("invalid meal plan")

// Validate checks the minimum shape a plan needs before it is stored:
// a title and at least one day containing at least one named meal.
func (p *MealPlan) Validate() error {
	if p == nil || strings.TrimSpace(p.Title) == "" {
		return ErrInvalidMealPlan
	}
	if len(p.Days) == 0 {
		return ErrInvalidMealPlan
	}
	for _, d := range p.Days {
		if len(d.Meals) == 0 {
			return ErrInvalidMealPlan
		}
		for _, m := range d.Meals {
			if strings.TrimSpace(m.Name) == "" {
				return ErrInvalidMealPlan
			}
		}
	}
	return nil
}
