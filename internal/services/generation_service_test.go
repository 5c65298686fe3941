package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/datatypes"

	"github.com/tbourn/mealplan-funnel/internal/config"
	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/llm"
)

const validPlanJSON = `{"title":"Lean week","summary":"High protein","daily_calories":1800,
"days":[{"day":1,"meals":[{"type":"breakfast","name":"Oats","description":"with berries","calories":400}]}],
"shopping_list":["oats","berries"]}`

type stubLLM struct {
	out    string
	err    error
	chunks []string

	prompts []llm.Prompt
}

func (s *stubLLM) Complete(_ context.Context, p llm.Prompt) (string, error) {
	s.prompts = append(s.prompts, p)
	return s.out, s.err
}

func (s *stubLLM) Stream(ctx context.Context, p llm.Prompt, onDelta func(string) error) (string, error) {
	s.prompts = append(s.prompts, p)
	var b strings.Builder
	for _, c := range s.chunks {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		if err := onDelta(c); err != nil {
			return b.String(), err
		}
		b.WriteString(c)
	}
	return b.String(), s.err
}

type stubPlanMailer struct {
	to    []string
	plans []*domain.MealPlan
	err   error
}

func (m *stubPlanMailer) SendMealPlan(_ context.Context, to string, plan *domain.MealPlan) error {
	m.to = append(m.to, to)
	m.plans = append(m.plans, plan)
	return m.err
}

func newGen(t *testing.T, l *stubLLM, m *stubPlanMailer) (*GenerationService, *clock) {
	t.Helper()
	db := newSvcDB(t)
	clk := &clock{t: t0}
	ent := &EntitlementService{DB: db, Catalog: config.DefaultCatalog(), Now: clk.Now}
	svc := &GenerationService{DB: db, LLM: l, Entitlement: ent, Now: clk.Now, PreviewTokens: 120}
	if m != nil {
		svc.Mailer = m
	}
	return svc, clk
}

func answers() datatypes.JSONType[domain.QuizAnswers] {
	return datatypes.NewJSONType(domain.QuizAnswers{"goal": {"lose weight"}, "diet": {"vegetarian", "no nuts"}})
}

func TestGenerate_OneTimeBuyerGetsOnePlan(t *testing.T) {
	l := &stubLLM{out: "```json\n" + validPlanJSON + "\n```"}
	m := &stubPlanMailer{}
	svc, _ := newGen(t, l, m)
	ctx := context.Background()
	seed(t, svc.DB, domain.Session{ID: "s1", Email: strp("a@b.com"), PaymentStatus: true, QuizAnswers: answers()})

	plan, err := svc.Generate(ctx, "s1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if plan.Title != "Lean week" || len(plan.Days) != 1 {
		t.Fatalf("plan = %+v", plan)
	}
	if len(l.prompts) != 1 || !strings.Contains(l.prompts[0].User, "- diet: vegetarian, no nuts\n- goal: lose weight") {
		t.Fatalf("prompt = %+v", l.prompts)
	}
	if len(m.to) != 1 || m.to[0] != "a@b.com" {
		t.Fatalf("mailed to %v", m.to)
	}

	s := reload(t, svc.DB, "s1")
	if !s.HasMealPlan() || s.LastMealPlanAt == nil || !s.LastMealPlanAt.Equal(t0) {
		t.Fatalf("stored = %s at %v", s.MealPlan, s.LastMealPlanAt)
	}
	stored, err := s.Plan()
	if err != nil || stored.Title != "Lean week" {
		t.Fatalf("stored plan = %+v err=%v", stored, err)
	}

	if _, err := svc.Generate(ctx, "s1"); !errors.Is(err, ErrAlreadyGenerated) {
		t.Fatalf("second generation: %v", err)
	}
}

func TestGenerate_SubscriberCap(t *testing.T) {
	l := &stubLLM{out: validPlanJSON}
	svc, clk := newGen(t, l, &stubPlanMailer{})
	ctx := context.Background()
	until := t0.Add(60 * day)
	seed(t, svc.DB, domain.Session{
		ID: "s1", Email: strp("a@b.com"), QuizAnswers: answers(),
		IsSubscriber: true, SubscriptionID: strp("SUB1"), SubscriptionActiveUntil: &until, SelectedPlan: "monthly",
	})

	if _, err := svc.Generate(ctx, "s1"); err != nil {
		t.Fatalf("first: %v", err)
	}

	clk.t = t0.Add(12 * day)
	_, err := svc.Generate(ctx, "s1")
	var le *LimitError
	if !errors.As(err, &le) || !errors.Is(err, ErrGenerationLimit) || le.DaysLeft != 18 {
		t.Fatalf("expected limit error with 18 days, got %v", err)
	}

	clk.t = t0.Add(31 * day)
	if _, err := svc.Generate(ctx, "s1"); err != nil {
		t.Fatalf("after period: %v", err)
	}
	if s := reload(t, svc.DB, "s1"); !s.LastMealPlanAt.Equal(t0.Add(31 * day)) {
		t.Fatalf("last_meal_plan_at = %v", s.LastMealPlanAt)
	}
}

func TestGenerate_RejectsWithoutStoring(t *testing.T) {
	ctx := context.Background()

	t.Run("not entitled", func(t *testing.T) {
		l := &stubLLM{out: validPlanJSON}
		svc, _ := newGen(t, l, nil)
		seed(t, svc.DB, domain.Session{ID: "s1", QuizAnswers: answers()})
		if _, err := svc.Generate(ctx, "s1"); !errors.Is(err, ErrNotEntitled) {
			t.Fatalf("got %v", err)
		}
		if len(l.prompts) != 0 {
			t.Fatalf("model called for unentitled session")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		svc, _ := newGen(t, &stubLLM{}, nil)
		if _, err := svc.Generate(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("got %v", err)
		}
	})

	for name, out := range map[string]string{
		"prose":       "Here is your plan, enjoy!",
		"broken json": `{"title": "x", "days": [`,
		"no meals":    `{"title":"x","days":[{"day":1,"meals":[]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc, _ := newGen(t, &stubLLM{out: out}, &stubPlanMailer{})
			seed(t, svc.DB, domain.Session{ID: "s1", PaymentStatus: true, QuizAnswers: answers()})
			if _, err := svc.Generate(ctx, "s1"); !errors.Is(err, ErrGenerationFailed) {
				t.Fatalf("got %v", err)
			}
			if s := reload(t, svc.DB, "s1"); s.HasMealPlan() || s.LastMealPlanAt != nil {
				t.Fatalf("invalid output stored")
			}
		})
	}

	t.Run("upstream error", func(t *testing.T) {
		boom := errors.New("upstream 500")
		svc, _ := newGen(t, &stubLLM{err: boom}, nil)
		seed(t, svc.DB, domain.Session{ID: "s1", PaymentStatus: true})
		if _, err := svc.Generate(ctx, "s1"); !errors.Is(err, boom) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestGenerate_EmailFailureKeepsPlan(t *testing.T) {
	m := &stubPlanMailer{err: errors.New("smtp down")}
	svc, _ := newGen(t, &stubLLM{out: validPlanJSON}, m)
	seed(t, svc.DB, domain.Session{ID: "s1", Email: strp("a@b.com"), PaymentStatus: true})

	plan, err := svc.Generate(context.Background(), "s1")
	if !errors.Is(err, ErrEmailFailed) || plan == nil {
		t.Fatalf("plan=%v err=%v", plan, err)
	}
	if !reload(t, svc.DB, "s1").HasMealPlan() {
		t.Fatalf("plan must be stored even when email fails")
	}
}

func TestStream_DeliversDeltasAndStores(t *testing.T) {
	chunks := []string{validPlanJSON[:20], validPlanJSON[20:70], validPlanJSON[70:]}
	svc, _ := newGen(t, &stubLLM{chunks: chunks}, &stubPlanMailer{})
	seed(t, svc.DB, domain.Session{ID: "s1", PaymentStatus: true})

	var got []string
	plan, err := svc.Stream(context.Background(), "s1", func(d string) error {
		got = append(got, d)
		return nil
	})
	if err != nil || plan == nil {
		t.Fatalf("stream: plan=%v err=%v", plan, err)
	}
	if strings.Join(got, "") != validPlanJSON {
		t.Fatalf("deltas do not reassemble the output")
	}
	if !reload(t, svc.DB, "s1").HasMealPlan() {
		t.Fatalf("completed stream not stored")
	}
}

func TestStream_CancelledStoresNothing(t *testing.T) {
	chunks := []string{validPlanJSON[:20], validPlanJSON[20:70], validPlanJSON[70:]}
	svc, _ := newGen(t, &stubLLM{chunks: chunks}, &stubPlanMailer{})
	seed(t, svc.DB, domain.Session{ID: "s1", PaymentStatus: true})

	t.Run("client disconnect", func(t *testing.T) {
		gone := errors.New("client gone")
		n := 0
		_, err := svc.Stream(context.Background(), "s1", func(string) error {
			n++
			if n == 2 {
				return gone
			}
			return nil
		})
		if !errors.Is(err, gone) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		_, err := svc.Stream(ctx, "s1", func(string) error {
			cancel()
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v", err)
		}
	})

	s := reload(t, svc.DB, "s1")
	if s.HasMealPlan() || s.LastMealPlanAt != nil {
		t.Fatalf("cancelled stream stored a plan")
	}
	// Still eligible because nothing was consumed.
	if a := svc.Entitlement.Evaluate(s, t0); !a.CanGenerate {
		t.Fatalf("access after cancel = %+v", a)
	}
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	l := &stubLLM{out: "  A gentle vegetarian week.  "}
	svc, _ := newGen(t, l, nil)
	seed(t, svc.DB, domain.Session{ID: "anon", QuizAnswers: answers()})
	seed(t, svc.DB, domain.Session{ID: "lead", Email: strp("a@b.com"), QuizAnswers: answers()})
	seed(t, svc.DB, domain.Session{ID: "blank", Email: strp("c@d.com")})

	if _, err := svc.Preview(ctx, "anon"); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("anon: %v", err)
	}
	if _, err := svc.Preview(ctx, "blank"); !errors.Is(err, ErrEmptyAnswers) {
		t.Fatalf("blank: %v", err)
	}
	text, err := svc.Preview(ctx, "lead")
	if err != nil || text != "A gentle vegetarian week." {
		t.Fatalf("text=%q err=%v", text, err)
	}
	if l.prompts[0].MaxTokens != 120 || l.prompts[0].System != previewSystemPrompt {
		t.Fatalf("prompt = %+v", l.prompts[0])
	}
	if s := reload(t, svc.DB, "lead"); s.HasMealPlan() || s.LastMealPlanAt != nil {
		t.Fatalf("preview must not be stored")
	}
}
