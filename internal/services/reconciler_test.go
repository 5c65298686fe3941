package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/mealplan-funnel/internal/config"
	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Same single-writer pool as production SQLite.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *gorm.DB, s domain.Session) *domain.Session {
	t.Helper()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	}
	s.UpdatedAt = s.CreatedAt
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed %s: %v", s.ID, err)
	}
	return &s
}

func reload(t *testing.T, db *gorm.DB, id string) *domain.Session {
	t.Helper()
	s, err := repo.GetSession(context.Background(), db, id)
	if err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return s
}

func strp(s string) *string { return &s }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type stubNotifier struct {
	calls []string
	err   error
}

func (n *stubNotifier) SendRenewalNotice(_ context.Context, to, sessionID string) error {
	n.calls = append(n.calls, to+"|"+sessionID)
	return n.err
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func newReconciler(db *gorm.DB, clk *clock, n *stubNotifier) *Reconciler {
	r := &Reconciler{DB: db, Catalog: config.DefaultCatalog(), Now: clk.Now}
	if n != nil {
		r.Notifier = n
	}
	return r
}

func envelope(id string, ev domain.BillingEvent) domain.Envelope {
	return domain.Envelope{Provider: domain.ProviderStripe, ID: id, VendorType: "test", Event: ev}
}

func receiptCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.WebhookReceipt{}).Count(&n).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	return n
}

// ---------- scenarios ----------

func TestReconciler_SubscriptionLifecycle(t *testing.T) {
	db := newSvcDB(t)
	clk := &clock{t: t0}
	n := &stubNotifier{}
	r := newReconciler(db, clk, n)
	ent := &EntitlementService{DB: db, Catalog: r.Catalog, Now: clk.Now}
	ctx := context.Background()

	seed(t, db, domain.Session{ID: "s-sub", Email: strp("a@b.com")})

	res, err := r.Apply(ctx, envelope("evt_act", domain.SubscriptionActivated{
		SessionID: "s-sub", SubscriptionID: "SUB1", Plan: "monthly",
	}))
	if err != nil || res.Outcome != OutcomeApplied || res.SessionID != "s-sub" {
		t.Fatalf("activate: res=%+v err=%v", res, err)
	}
	s := reload(t, db, "s-sub")
	if !s.IsSubscriber || s.SubscriptionID == nil || *s.SubscriptionID != "SUB1" || s.SelectedPlan != "monthly" {
		t.Fatalf("after activation: %+v", s)
	}
	if s.SubscriptionActiveUntil == nil || !s.SubscriptionActiveUntil.Equal(t0.Add(30*day)) {
		t.Fatalf("until = %v; want %v", s.SubscriptionActiveUntil, t0.Add(30*day))
	}
	if s.LastMealPlanAt == nil || !s.LastMealPlanAt.Equal(t0) {
		t.Fatalf("last_meal_plan_at = %v", s.LastMealPlanAt)
	}

	clk.t = t0.Add(31 * day)
	res, err = r.Apply(ctx, envelope("evt_renew", domain.SubscriptionRenewed{SubscriptionID: "SUB1"}))
	if err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("renew: res=%+v err=%v", res, err)
	}
	s = reload(t, db, "s-sub")
	if !s.SubscriptionActiveUntil.Equal(t0.Add(61 * day)) {
		t.Fatalf("until after renewal = %v; want %v", s.SubscriptionActiveUntil, t0.Add(61*day))
	}
	if len(n.calls) != 1 || n.calls[0] != "a@b.com|s-sub" {
		t.Fatalf("renewal notices = %v", n.calls)
	}

	clk.t = t0.Add(40 * day)
	if res, err = r.Apply(ctx, envelope("evt_cancel", domain.SubscriptionCancelled{SubscriptionID: "SUB1"})); err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("cancel: res=%+v err=%v", res, err)
	}
	s = reload(t, db, "s-sub")
	if s.IsSubscriber || s.SubscriptionActiveUntil != nil {
		t.Fatalf("after cancel: subscriber=%v until=%v", s.IsSubscriber, s.SubscriptionActiveUntil)
	}

	clk.t = t0.Add(45 * day)
	acc, err := ent.CheckByEmail(ctx, "A@B.com")
	if err != nil {
		t.Fatalf("CheckByEmail: %v", err)
	}
	if acc.Entitled || acc.Subscriber {
		t.Fatalf("cancelled subscriber must not be entitled: %+v", acc)
	}
	if got := receiptCount(t, db); got != 3 {
		t.Fatalf("receipts = %d; want 3", got)
	}
}

func TestReconciler_DuplicateRenewalExtendsOnce(t *testing.T) {
	db := newSvcDB(t)
	clk := &clock{t: t0}
	n := &stubNotifier{}
	r := newReconciler(db, clk, n)
	ctx := context.Background()

	seed(t, db, domain.Session{ID: "s1", Email: strp("a@b.com")})
	if _, err := r.Apply(ctx, envelope("evt_act", domain.SubscriptionActivated{SessionID: "s1", SubscriptionID: "SUB1", Plan: "monthly"})); err != nil {
		t.Fatalf("activate: %v", err)
	}

	renewal := envelope("evt_renew", domain.SubscriptionRenewed{SubscriptionID: "SUB1"})
	clk.t = t0.Add(29 * day)
	if res, err := r.Apply(ctx, renewal); err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("first delivery: res=%+v err=%v", res, err)
	}
	want := t0.Add(59 * day)

	// Redeliveries arrive later; without replay suppression each would push
	// the expiry further out.
	for i := 1; i <= 3; i++ {
		clk.t = t0.Add(time.Duration(29+i*2) * day)
		res, err := r.Apply(ctx, renewal)
		if err != nil || res.Outcome != OutcomeDuplicate {
			t.Fatalf("redelivery %d: res=%+v err=%v", i, res, err)
		}
	}
	s := reload(t, db, "s1")
	if !s.SubscriptionActiveUntil.Equal(want) {
		t.Fatalf("until = %v; want %v", s.SubscriptionActiveUntil, want)
	}
	if len(n.calls) != 1 {
		t.Fatalf("renewal notice sent %d times", len(n.calls))
	}
}

func TestReconciler_RenewalNeverMovesExpiryBack(t *testing.T) {
	db := newSvcDB(t)
	clk := &clock{t: t0}
	r := newReconciler(db, clk, nil)
	ctx := context.Background()

	far := t0.Add(90 * day)
	seed(t, db, domain.Session{ID: "s1", IsSubscriber: true, SubscriptionID: strp("SUB1"), SubscriptionActiveUntil: &far})

	if _, err := r.Apply(ctx, envelope("evt_r", domain.SubscriptionRenewed{SubscriptionID: "SUB1", FirstInvoice: true})); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if s := reload(t, db, "s1"); !s.SubscriptionActiveUntil.Equal(far) {
		t.Fatalf("until = %v; want %v", s.SubscriptionActiveUntil, far)
	}
}

func TestReconciler_OneTimePayment(t *testing.T) {
	db := newSvcDB(t)
	clk := &clock{t: t0}
	r := newReconciler(db, clk, nil)
	ent := &EntitlementService{DB: db, Catalog: r.Catalog, Now: clk.Now}
	ctx := context.Background()

	seed(t, db, domain.Session{ID: "S1", Email: strp("buyer@example.com")})
	if acc, _ := ent.CheckByEmail(ctx, "buyer@example.com"); acc.Entitled {
		t.Fatalf("unpaid session entitled")
	}

	res, err := r.Apply(ctx, envelope("checkout:cs_1", domain.PaymentCompleted{
		SessionID: "S1", TransactionID: "pi_1", Plan: "one_time", AmountMinor: 1900, Currency: "usd",
	}))
	if err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("pay: res=%+v err=%v", res, err)
	}
	s := reload(t, db, "S1")
	if !s.PaymentStatus || s.PaymentTxID == nil || *s.PaymentTxID != "pi_1" || s.SelectedPlan != "one_time" {
		t.Fatalf("after payment: %+v", s)
	}
	acc, err := ent.CheckByEmail(ctx, "buyer@example.com")
	if err != nil || !acc.Entitled || !acc.CanGenerate {
		t.Fatalf("access = %+v err=%v", acc, err)
	}
}

func TestReconciler_PaymentMustMatchCatalogPrice(t *testing.T) {
	db := newSvcDB(t)
	r := newReconciler(db, &clock{t: t0}, nil)
	ctx := context.Background()
	seed(t, db, domain.Session{ID: "S1"})

	cases := []domain.PaymentCompleted{
		{SessionID: "S1", Plan: "one_time", AmountMinor: 1, Currency: "usd"},
		{SessionID: "S1", Plan: "one_time", AmountMinor: 1900, Currency: "eur"},
		{SessionID: "S1", Plan: "monthly", AmountMinor: 999, Currency: "usd"},
		{SessionID: "S1", Plan: "ghost", AmountMinor: 1900, Currency: "usd"},
		{SessionID: "S1", AmountMinor: 500, Currency: "usd"},
	}
	for i, ev := range cases {
		if _, err := r.Apply(ctx, envelope(fmt.Sprintf("e%d", i), ev)); !errors.Is(err, ErrAmountMismatch) {
			t.Fatalf("case %d: expected ErrAmountMismatch, got %v", i, err)
		}
	}
	if s := reload(t, db, "S1"); s.PaymentStatus {
		t.Fatalf("mismatched payment must not open the wall")
	}
	if receiptCount(t, db) != 0 {
		t.Fatalf("rejected events must not leave receipts")
	}

	// Tax and coupons change the charged total, not the list amount.
	for i, total := range []int64{2090, 1520} {
		seed(t, db, domain.Session{ID: fmt.Sprintf("T%d", i)})
		ev := domain.PaymentCompleted{SessionID: fmt.Sprintf("T%d", i), Plan: "one_time", AmountMinor: 1900, TotalMinor: total, Currency: "usd"}
		if res, err := r.Apply(ctx, envelope(fmt.Sprintf("t%d", i), ev)); err != nil || res.Outcome != OutcomeApplied {
			t.Fatalf("total %d: res=%+v err=%v", total, res, err)
		}
		if s := reload(t, db, fmt.Sprintf("T%d", i)); !s.PaymentStatus {
			t.Fatalf("total %d: payment wall still closed", total)
		}
	}

	// Unnamed plan matching a one-time price is accepted.
	if _, err := r.Apply(ctx, envelope("ok", domain.PaymentCompleted{SessionID: "S1", AmountMinor: 1900, Currency: "USD"})); err != nil {
		t.Fatalf("unnamed matching payment: %v", err)
	}
	if s := reload(t, db, "S1"); !s.PaymentStatus || s.SelectedPlan != "one_time" {
		t.Fatalf("after payment: %+v", s)
	}
}

func TestReconciler_ActivationResolvesMostRecentByEmail(t *testing.T) {
	db := newSvcDB(t)
	r := newReconciler(db, &clock{t: t0}, nil)
	ctx := context.Background()

	t1 := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	seed(t, db, domain.Session{ID: "old", Email: strp("a@b.com"), CreatedAt: t1})
	seed(t, db, domain.Session{ID: "new", Email: strp("a@b.com"), CreatedAt: t2})

	res, err := r.Apply(ctx, envelope("evt", domain.SubscriptionActivated{Email: "A@b.com", SubscriptionID: "SUB9"}))
	if err != nil || res.SessionID != "new" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if reload(t, db, "old").IsSubscriber {
		t.Fatalf("older session must not be touched")
	}

	// An unknown session id falls back to the email as well.
	res, err = r.Apply(ctx, envelope("evt2", domain.SubscriptionActivated{SessionID: "gone", Email: "a@b.com", SubscriptionID: "SUB10"}))
	if err != nil || res.SessionID != "new" {
		t.Fatalf("fallback: res=%+v err=%v", res, err)
	}
}

func TestReconciler_UnresolvableEventsChangeNothing(t *testing.T) {
	db := newSvcDB(t)
	r := newReconciler(db, &clock{t: t0}, nil)
	ctx := context.Background()
	seed(t, db, domain.Session{ID: "s1", Email: strp("a@b.com")})

	cases := []struct {
		ev   domain.BillingEvent
		want error
	}{
		{domain.SubscriptionActivated{Email: "nobody@x.com", SubscriptionID: "S"}, ErrSessionNotResolved},
		{domain.SubscriptionActivated{SessionID: "s1"}, ErrSubscriptionNotFound},
		{domain.SubscriptionRenewed{SubscriptionID: "nope"}, ErrSubscriptionNotFound},
		{domain.SubscriptionCancelled{SubscriptionID: "nope"}, ErrSubscriptionNotFound},
		{domain.PaymentCompleted{SessionID: "nope", Plan: "one_time", AmountMinor: 1900, Currency: "usd"}, ErrSessionNotResolved},
		{domain.PaymentCompleted{Plan: "one_time", AmountMinor: 1900, Currency: "usd"}, ErrSessionNotResolved},
	}
	for i, tc := range cases {
		if _, err := r.Apply(ctx, envelope(fmt.Sprintf("e%d", i), tc.ev)); !errors.Is(err, tc.want) {
			t.Fatalf("case %d (%s): expected %v, got %v", i, tc.ev.Kind(), tc.want, err)
		}
	}
	var n int64
	db.Model(&domain.Session{}).Count(&n)
	if n != 1 {
		t.Fatalf("webhooks must never create sessions; have %d", n)
	}
	if s := reload(t, db, "s1"); s.IsSubscriber || s.PaymentStatus {
		t.Fatalf("session mutated: %+v", s)
	}
}

func TestReconciler_IgnoredEvents(t *testing.T) {
	db := newSvcDB(t)
	r := newReconciler(db, &clock{t: t0}, nil)
	ctx := context.Background()

	res, err := r.Apply(ctx, envelope("u", domain.Unrecognized{}))
	if err != nil || res.Outcome != OutcomeIgnored {
		t.Fatalf("unrecognized: res=%+v err=%v", res, err)
	}

	// First invoice before activation is acknowledged.
	res, err = r.Apply(ctx, envelope("f", domain.SubscriptionRenewed{SubscriptionID: "SUBX", FirstInvoice: true}))
	if err != nil || res.Outcome != OutcomeIgnored {
		t.Fatalf("early first invoice: res=%+v err=%v", res, err)
	}

	// A late invoice for a cancelled subscription does not reopen it.
	seed(t, db, domain.Session{ID: "c", SubscriptionID: strp("SUBC")})
	res, err = r.Apply(ctx, envelope("late", domain.SubscriptionRenewed{SubscriptionID: "SUBC"}))
	if err != nil || res.Outcome != OutcomeIgnored {
		t.Fatalf("late invoice: res=%+v err=%v", res, err)
	}
	if s := reload(t, db, "c"); s.IsSubscriber || s.SubscriptionActiveUntil != nil {
		t.Fatalf("cancelled subscription reopened: %+v", s)
	}
	if receiptCount(t, db) != 0 {
		t.Fatalf("ignored events must not leave receipts")
	}
}

func TestReconciler_RenewalNoticeFailureDoesNotFailEvent(t *testing.T) {
	db := newSvcDB(t)
	clk := &clock{t: t0}
	n := &stubNotifier{err: errors.New("mail down")}
	r := newReconciler(db, clk, n)
	until := t0.Add(day)
	seed(t, db, domain.Session{ID: "s1", Email: strp("a@b.com"), IsSubscriber: true, SubscriptionID: strp("SUB1"), SubscriptionActiveUntil: &until})

	res, err := r.Apply(context.Background(), envelope("r", domain.SubscriptionRenewed{SubscriptionID: "SUB1"}))
	if err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(n.calls) != 1 {
		t.Fatalf("notice attempts = %d", len(n.calls))
	}
}

func TestReconciler_StorageFailureSurfaces(t *testing.T) {
	db := newSvcDB(t)
	r := newReconciler(db, &clock{t: t0}, nil)
	if err := db.Migrator().DropTable(&domain.WebhookReceipt{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err := r.Apply(context.Background(), envelope("x", domain.SubscriptionCancelled{SubscriptionID: "S"}))
	if err == nil || errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
