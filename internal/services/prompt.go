package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

const mealPlanSystemPrompt = `You are a nutritionist writing a 7-day meal plan.
Answer with a single JSON object and nothing else, using this shape:
{"title": string, "summary": string, "daily_calories": number,
 "days": [{"day": number, "meals": [{"type": "breakfast|lunch|dinner|snack",
 "name": string, "description": string, "calories": number}]}],
 "shopping_list": [string]}`

const previewSystemPrompt = `You are a nutritionist. In at most three short
paragraphs of plain text, describe the meal plan you would write for this
person and why it fits them. Do not list full recipes.`

// quizPrompt renders the answers as "question: option, option" lines in a
// stable order.
func quizPrompt(a domain.QuizAnswers) string {
	var b strings.Builder
	b.WriteString("Quiz answers:\n")
	for _, q := range a.QuestionIDs() {
		fmt.Fprintf(&b, "- %s: %s\n", q, strings.Join(a[q], ", "))
	}
	return b.String()
}

// parseMealPlan extracts the JSON object from raw model output, tolerating
// code fences or prose around it, and validates the result.
func parseMealPlan(raw string) (*domain.MealPlan, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json object in output", ErrGenerationFailed)
	}
	var plan domain.MealPlan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return &plan, nil
}
