package businessflow

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/amirphl/marketplace-settlement/app/services"
	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	"gorm.io/gorm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// snapshotter copies a fake store; the returned func puts the copy back
type snapshotter interface {
	snapshot() (restore func())
}

// fakeTx marks ctx the way the real transaction manager does and restores stores when fn fails.
// A ctx that already carries a transaction joins it.
type fakeTx struct {
	stores []snapshotter
}

func inTx(ctx context.Context) bool {
	tx, ok := ctx.Value(repository.TxContextKey).(*gorm.DB)
	return ok && tx != nil
}

func (t fakeTx) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	restores := make([]func(), 0, len(t.stores))
	for _, s := range t.stores {
		restores = append(restores, s.snapshot())
	}
	if err := fn(context.WithValue(ctx, repository.TxContextKey, &gorm.DB{})); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// memRepo keeps copies of rows in memory so callers never share state with the store
type memRepo[T any, F any] struct {
	mu      sync.Mutex
	rows    []*T
	next    uint
	id      func(*T) *uint
	saveErr error
}

func newMemRepo[T any, F any](id func(*T) *uint) *memRepo[T, F] {
	return &memRepo[T, F]{id: id}
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func (r *memRepo[T, F]) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]*T, 0, len(r.rows))
	for _, row := range r.rows {
		rows = append(rows, clone(row))
	}
	next := r.next
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.rows = rows
		r.next = next
	}
}

func (r *memRepo[T, F]) find(pred func(*T) bool) *T {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if pred(row) {
			return clone(row)
		}
	}
	return nil
}

func (r *memRepo[T, F]) filter(pred func(*T) bool) []*T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*T
	for _, row := range r.rows {
		if pred(row) {
			out = append(out, clone(row))
		}
	}
	return out
}

func (r *memRepo[T, F]) all() []*T {
	return r.filter(func(*T) bool { return true })
}

func (r *memRepo[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	return r.find(func(row *T) bool { return *r.id(row) == id }), nil
}

func (r *memRepo[T, F]) ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error) {
	rows := r.all()
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *memRepo[T, F]) Save(ctx context.Context, entity *T) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if hook, ok := any(entity).(interface{ BeforeCreate(*gorm.DB) error }); ok {
		if err := hook.BeforeCreate(nil); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	*r.id(entity) = r.next
	r.rows = append(r.rows, clone(entity))
	return nil
}

func (r *memRepo[T, F]) SaveBatch(ctx context.Context, entities []*T) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *memRepo[T, F]) Update(ctx context.Context, entity *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if *r.id(row) == *r.id(entity) {
			r.rows[i] = clone(entity)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memRepo[T, F]) Count(ctx context.Context, filter F) (int64, error) {
	return int64(len(r.all())), nil
}

func (r *memRepo[T, F]) Exists(ctx context.Context, filter F) (bool, error) {
	return len(r.all()) > 0, nil
}

type fakePaymentRepo struct {
	*memRepo[models.SplitOrderPayment, models.SplitOrderPaymentFilter]
	updates int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{memRepo: newMemRepo[models.SplitOrderPayment, models.SplitOrderPaymentFilter](
		func(p *models.SplitOrderPayment) *uint { return &p.ID },
	)}
}

func (r *fakePaymentRepo) ByUUID(ctx context.Context, id string) (*models.SplitOrderPayment, error) {
	return r.find(func(p *models.SplitOrderPayment) bool { return p.UUID.String() == id }), nil
}

func (r *fakePaymentRepo) ByOrderID(ctx context.Context, orderID string) (*models.SplitOrderPayment, error) {
	return r.find(func(p *models.SplitOrderPayment) bool { return p.OrderID == orderID }), nil
}

func (r *fakePaymentRepo) ByPaymentIntentID(ctx context.Context, intentID string) (*models.SplitOrderPayment, error) {
	return r.find(func(p *models.SplitOrderPayment) bool {
		return p.PaymentIntentID != nil && *p.PaymentIntentID == intentID
	}), nil
}

func (r *fakePaymentRepo) ListByPaymentCollectionID(ctx context.Context, paymentCollectionID string) ([]*models.SplitOrderPayment, error) {
	return r.filter(func(p *models.SplitOrderPayment) bool { return p.PaymentCollectionID == paymentCollectionID }), nil
}

func (r *fakePaymentRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.SplitOrderPayment, error) {
	return r.ByID(ctx, id)
}

func (r *fakePaymentRepo) Update(ctx context.Context, p *models.SplitOrderPayment) error {
	r.mu.Lock()
	r.updates++
	r.mu.Unlock()
	return r.memRepo.Update(ctx, p)
}

// seed stores p as is and returns the stored copy
func (r *fakePaymentRepo) seed(p *models.SplitOrderPayment) *models.SplitOrderPayment {
	if err := r.Save(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}

func (r *fakePaymentRepo) get(id uint) *models.SplitOrderPayment {
	p, _ := r.ByID(context.Background(), id)
	return p
}

type fakeRuleRepo struct {
	*memRepo[models.CommissionRule, models.CommissionRuleFilter]
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{memRepo: newMemRepo[models.CommissionRule, models.CommissionRuleFilter](
		func(r *models.CommissionRule) *uint { return &r.ID },
	)}
}

func (r *fakeRuleRepo) live(rule *models.CommissionRule) bool {
	return !rule.DeletedAt.Valid
}

func (r *fakeRuleRepo) ByUUID(ctx context.Context, id string) (*models.CommissionRule, error) {
	return r.find(func(rule *models.CommissionRule) bool { return r.live(rule) && rule.UUID.String() == id }), nil
}

func (r *fakeRuleRepo) ByScope(ctx context.Context, scope models.RuleScope) (*models.CommissionRule, error) {
	return r.find(func(rule *models.CommissionRule) bool {
		return r.live(rule) && rule.Reference == scope.Kind && rule.ReferenceID == scope.ReferenceID()
	}), nil
}

func (r *fakeRuleRepo) ActiveByScopes(ctx context.Context, scopes []models.RuleScope) ([]*models.CommissionRule, error) {
	return r.filter(func(rule *models.CommissionRule) bool {
		if !r.live(rule) || !rule.IsActive {
			return false
		}
		for _, s := range scopes {
			if rule.Reference == s.Kind && rule.ReferenceID == s.ReferenceID() {
				return true
			}
		}
		return false
	}), nil
}

func (r *fakeRuleRepo) SoftDelete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.DeletedAt = gorm.DeletedAt{Valid: true}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRuleRepo) ByFilter(ctx context.Context, filter models.CommissionRuleFilter, orderBy string, limit, offset int) ([]*models.CommissionRule, error) {
	return r.filter(func(rule *models.CommissionRule) bool {
		if !r.live(rule) {
			return false
		}
		if filter.Reference != nil && rule.Reference != *filter.Reference {
			return false
		}
		return filter.IsActive == nil || rule.IsActive == *filter.IsActive
	}), nil
}

func (r *fakeRuleRepo) Count(ctx context.Context, filter models.CommissionRuleFilter) (int64, error) {
	rules, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rules)), nil
}

// addRule stores an active rule with its rate for scope
func (r *fakeRuleRepo) addRule(scope models.RuleScope, rate *models.CommissionRate) *models.CommissionRule {
	rule := &models.CommissionRule{Name: scope.String(), IsActive: true, Rate: rate}
	rule.SetScope(scope)
	if err := r.Save(context.Background(), rule); err != nil {
		panic(err)
	}
	return rule
}

type fakeRateRepo struct {
	*memRepo[models.CommissionRate, models.CommissionRateFilter]
}

func newFakeRateRepo() *fakeRateRepo {
	return &fakeRateRepo{memRepo: newMemRepo[models.CommissionRate, models.CommissionRateFilter](
		func(r *models.CommissionRate) *uint { return &r.ID },
	)}
}

func (r *fakeRateRepo) ByUUID(ctx context.Context, id string) (*models.CommissionRate, error) {
	return r.find(func(rate *models.CommissionRate) bool { return rate.UUID.String() == id }), nil
}

type fakeLineRepo struct {
	*memRepo[models.CommissionLine, models.CommissionLineFilter]
}

func newFakeLineRepo() *fakeLineRepo {
	return &fakeLineRepo{memRepo: newMemRepo[models.CommissionLine, models.CommissionLineFilter](
		func(l *models.CommissionLine) *uint { return &l.ID },
	)}
}

func (r *fakeLineRepo) ByOrderID(ctx context.Context, orderID string) ([]*models.CommissionLine, error) {
	return r.filter(func(l *models.CommissionLine) bool { return l.OrderID == orderID }), nil
}

func (r *fakeLineRepo) ByItemLineIDs(ctx context.Context, itemLineIDs []string) ([]*models.CommissionLine, error) {
	return r.filter(func(l *models.CommissionLine) bool {
		for _, id := range itemLineIDs {
			if l.ItemLineID == id {
				return true
			}
		}
		return false
	}), nil
}

type fakeEventRepo struct {
	*memRepo[models.GatewayEvent, models.GatewayEventFilter]
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{memRepo: newMemRepo[models.GatewayEvent, models.GatewayEventFilter](
		func(e *models.GatewayEvent) *uint { return &e.ID },
	)}
}

func (r *fakeEventRepo) ByIntentAndType(ctx context.Context, intentID, eventType string) (*models.GatewayEvent, error) {
	return r.find(func(e *models.GatewayEvent) bool { return e.IntentID == intentID && e.EventType == eventType }), nil
}

type fakeAuditRepo struct {
	*memRepo[models.AuditLog, models.AuditLogFilter]
	txWrites int
	queries  []string
}

func (r *fakeAuditRepo) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.queries = append(r.queries, "filter")
	return r.filter(func(a *models.AuditLog) bool {
		switch {
		case filter.Action != nil && a.Action != *filter.Action:
			return false
		case filter.EntityType != nil && a.EntityType != *filter.EntityType:
			return false
		case filter.EntityID != nil && a.EntityID != *filter.EntityID:
			return false
		case filter.Success != nil && a.IsFailed() == *filter.Success:
			return false
		}
		return true
	}), nil
}

func (r *fakeAuditRepo) Save(ctx context.Context, a *models.AuditLog) error {
	if inTx(ctx) {
		r.mu.Lock()
		r.txWrites++
		r.mu.Unlock()
	}
	return r.memRepo.Save(ctx, a)
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{memRepo: newMemRepo[models.AuditLog, models.AuditLogFilter](
		func(a *models.AuditLog) *uint { return &a.ID },
	)}
}

func (r *fakeAuditRepo) ListByEntity(ctx context.Context, entityType string, entityID uint, limit, offset int) ([]*models.AuditLog, error) {
	r.queries = append(r.queries, "entity")
	return r.filter(func(a *models.AuditLog) bool { return a.EntityType == entityType && a.EntityID == entityID }), nil
}

func (r *fakeAuditRepo) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	r.queries = append(r.queries, "action")
	return r.filter(func(a *models.AuditLog) bool { return a.Action == action }), nil
}

func (r *fakeAuditRepo) ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	r.queries = append(r.queries, "failed")
	return r.filter(func(a *models.AuditLog) bool { return a.IsFailed() }), nil
}

// fakePrices resolves price sets from a map keyed by "price_set|currency"
type fakePrices map[string]int64

func (p fakePrices) AmountFor(ctx context.Context, priceSetID, currencyCode string) (int64, bool, error) {
	amount, ok := p[priceSetID+"|"+currencyCode]
	return amount, ok, nil
}

// fakeGateway records calls and parses webhooks the way the real client does
type fakeGateway struct {
	mu         sync.Mutex
	parser     *services.StripeConnectClient
	nextIntent string

	initiateErr error
	captureErr  error
	refundErr   error

	captureAmounts map[string]int64

	initiated []services.InitiateInput
	captured  []string
	refunds   []services.RefundInput
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		parser:         services.NewStripeConnectClient("http://gateway.invalid", "sk_test", 0),
		nextIntent:     "pi_test",
		captureAmounts: map[string]int64{},
	}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Initiate(ctx context.Context, in services.InitiateInput) (*services.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiated = append(g.initiated, in)
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	return &services.Intent{ID: g.nextIntent, Status: "requires_payment_method", Amount: in.Amount, ClientSecret: g.nextIntent + "_secret"}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, intentID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captured = append(g.captured, intentID)
	if g.captureErr != nil {
		return 0, g.captureErr
	}
	return g.captureAmounts[intentID], nil
}

func (g *fakeGateway) Refund(ctx context.Context, in services.RefundInput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, in)
	return g.refundErr
}

func (g *fakeGateway) ParseWebhook(payload []byte) services.WebhookResult {
	return g.parser.ParseWebhook(payload)
}

// compile time checks
var (
	_ repository.SplitOrderPaymentRepository = (*fakePaymentRepo)(nil)
	_ repository.CommissionRuleRepository    = (*fakeRuleRepo)(nil)
	_ repository.CommissionRateRepository    = (*fakeRateRepo)(nil)
	_ repository.CommissionLineRepository    = (*fakeLineRepo)(nil)
	_ repository.GatewayEventRepository      = (*fakeEventRepo)(nil)
	_ repository.AuditLogRepository          = (*fakeAuditRepo)(nil)
	_ services.SettlementGateway             = (*fakeGateway)(nil)
	_ repository.TxManager                   = fakeTx{}
)
