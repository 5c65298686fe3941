// Package mailer renders and sends the funnel's transactional emails: the
// generated meal plan and the renewal notice that invites a subscriber to
// request a new plan.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// ErrNoRecipient is returned when a message has no address to go to.
var ErrNoRecipient = errors.New("no recipient")

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender builds a Resend-backed sender.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// LogSender only logs messages. Used when no email provider is configured.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, msg Message) error {
	log.Info().Str("subject", msg.Subject).Int("html_bytes", len(msg.HTML)).Msg("email not sent: no provider configured")
	return nil
}

// Mailer renders the funnel templates and hands them to a Sender.
type Mailer struct {
	sender  Sender
	baseURL string
}

// New returns a Mailer. publicBaseURL is the frontend origin used for links.
func New(sender Sender, publicBaseURL string) *Mailer {
	return &Mailer{sender: sender, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// SendMealPlan emails the generated plan.
func (m *Mailer) SendMealPlan(ctx context.Context, to string, plan *domain.MealPlan) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	html, err := render(mealPlanTmpl, mealPlanView(plan))
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{To: to, Subject: "Your meal plan: " + plan.Title, HTML: html})
}

// SendRenewalNotice tells a subscriber that a new billing period started and
// links back to the session so a new plan can be requested.
func (m *Mailer) SendRenewalNotice(ctx context.Context, to, sessionID string) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	link := m.baseURL + "/plan?session_id=" + url.QueryEscape(sessionID)
	html, err := render(renewalTmpl, struct{ Link string }{Link: link})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{To: to, Subject: "Your new meal plan is ready to generate", HTML: html})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

type mealView struct {
	Label       string
	Name        string
	Description string
	Calories    int
}

type dayView struct {
	Day   int
	Meals []mealView
}

type planView struct {
	Title         string
	Summary       string
	DailyCalories int
	Days          []dayView
	ShoppingList  []string
}

func mealPlanView(p *domain.MealPlan) planView {
	title := cases.Title(language.English)
	v := planView{
		Title:         p.Title,
		Summary:       p.Summary,
		DailyCalories: p.DailyCalories,
		ShoppingList:  p.ShoppingList,
	}
	for _, d := range p.Days {
		dv := dayView{Day: d.Day}
		for _, meal := range d.Meals {
			dv.Meals = append(dv.Meals, mealView{
				Label:       title.String(meal.Type),
				Name:        meal.Name,
				Description: meal.Description,
				Calories:    meal.Calories,
			})
		}
		v.Days = append(v.Days, dv)
	}
	return v
}

var mealPlanTmpl = template.Must(template.New("meal_plan").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h1>{{.Title}}</h1>
{{if .Summary}}<p>{{.Summary}}</p>{{end}}
{{if .DailyCalories}}<p>Target: {{.DailyCalories}} kcal per day</p>{{end}}
{{range .Days}}<h2>Day {{.Day}}</h2>
<ul>{{range .Meals}}
<li>{{if .Label}}<strong>{{.Label}}:</strong> {{end}}{{.Name}}{{if .Calories}} ({{.Calories}} kcal){{end}}{{if .Description}}<br>{{.Description}}{{end}}</li>{{end}}
</ul>
{{end}}{{if .ShoppingList}}<h2>Shopping list</h2>
<ul>{{range .ShoppingList}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body></html>`))

var renewalTmpl = template.Must(template.New("renewal").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<p>Your subscription renewed and a new meal plan is waiting for you.</p>
<p><a href="{{.Link}}">Generate my new plan</a></p>
</body></html>`))
