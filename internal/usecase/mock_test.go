//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
	"resource-marketplace/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu    sync.Mutex
	data  map[string]*model.Payment // by id
	byExt map[string]string         // external id -> id
	byRef map[string]string         // customer ref -> id

	SaveFunc           func(ctx context.Context, qx repository.Tx, p *model.Payment) error
	FindByIDFunc       func(ctx context.Context, qx repository.Tx, id string) (*model.Payment, error)
	UpdateStatusIfFunc func(ctx context.Context, qx repository.Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, paidAt *time.Time) (bool, error)
	SetIntentFunc      func(ctx context.Context, qx repository.Tx, id, externalID, paymentURL string) error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{
		data:  map[string]*model.Payment{},
		byExt: map[string]string{},
		byRef: map[string]string{},
	}
}

func (r *MockPaymentRepo) Save(ctx context.Context, qx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, qx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.data[p.ID] = &cp
	if p.ExternalID != "" {
		r.byExt[p.ExternalID] = p.ID
	}
	if p.CustomerRef != "" {
		r.byRef[p.CustomerRef] = p.ID
	}
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Payment, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, qx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByExternalID(ctx context.Context, qx repository.Tx, externalID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byExt[externalID]; ok {
		cp := *r.data[id]
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByCustomerRef(ctx context.Context, qx repository.Tx, ref string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byRef[ref]; ok {
		cp := *r.data[id]
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) SetIntent(ctx context.Context, qx repository.Tx, id, externalID, paymentURL string) error {
	if r.SetIntentFunc != nil {
		return r.SetIntentFunc(ctx, qx, id, externalID, paymentURL)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.ExternalID != "" {
		// write-once, mirroring the SQL guard
		return nil
	}
	p.ExternalID = externalID
	p.PaymentURL = paymentURL
	r.byExt[externalID] = id
	return nil
}

func (r *MockPaymentRepo) ReplaceIntent(ctx context.Context, qx repository.Tx, id, externalID, paymentURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.ExternalID != "" {
		delete(r.byExt, p.ExternalID)
	}
	p.ExternalID = externalID
	p.PaymentURL = paymentURL
	r.byExt[externalID] = id
	return nil
}

func (r *MockPaymentRepo) UpdateStatusIf(ctx context.Context, qx repository.Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, paidAt *time.Time) (bool, error) {
	if r.UpdateStatusIfFunc != nil {
		return r.UpdateStatusIfFunc(ctx, qx, id, from, to, paidAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			if paidAt != nil {
				t := *paidAt
				p.PaidAt = &t
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, qx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Get returns the stored payment without the copy-on-read, for assertions.
func (r *MockPaymentRepo) Get(id string) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[id]
}

// ---- Mock PaymentEventRepository ----

type MockEventRepo struct {
	mu     sync.Mutex
	events []*model.PaymentEvent

	AppendFunc func(ctx context.Context, qx repository.Tx, ev *model.PaymentEvent) error
}

var _ repository.PaymentEventRepository = (*MockEventRepo)(nil)

func NewMockEventRepo() *MockEventRepo { return &MockEventRepo{} }

func (r *MockEventRepo) Append(ctx context.Context, qx repository.Tx, ev *model.PaymentEvent) error {
	if r.AppendFunc != nil {
		return r.AppendFunc(ctx, qx, ev)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	r.events = append(r.events, &cp)
	return nil
}

func (r *MockEventRepo) ListByPayment(ctx context.Context, qx repository.Tx, paymentID string) ([]*model.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentEvent
	for _, ev := range r.events {
		if ev.PaymentID == paymentID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CountKind counts logged events of one kind for a payment.
func (r *MockEventRepo) CountKind(paymentID, kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.PaymentID == paymentID && ev.Kind == kind {
			n++
		}
	}
	return n
}

// ---- Mock PurchaseRepository ----

type MockPurchaseRepo struct {
	mu   sync.Mutex
	data map[string]*model.Purchase // by id

	UpsertFunc            func(ctx context.Context, qx repository.Tx, pu *model.Purchase) error
	SetLicenseIfEmptyFunc func(ctx context.Context, qx repository.Tx, id, key string) (string, error)
	SetDownloadFunc       func(ctx context.Context, qx repository.Tx, id, url string, expires time.Time) error
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{data: map[string]*model.Purchase{}}
}

func (r *MockPurchaseRepo) Upsert(ctx context.Context, qx repository.Tx, pu *model.Purchase) error {
	if r.UpsertFunc != nil {
		return r.UpsertFunc(ctx, qx, pu)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Converge on the existing row for the same (user, resource, payment)
	// triple, as the unique constraint does.
	for _, existing := range r.data {
		if existing.UserID == pu.UserID && existing.ResourceID == pu.ResourceID && existing.PaymentID == pu.PaymentID {
			existing.Status = pu.Status
			*pu = *existing
			return nil
		}
	}
	if pu.ID == "" {
		pu.ID = uuid.NewString()
	}
	cp := *pu
	r.data[pu.ID] = &cp
	return nil
}

func (r *MockPurchaseRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pu, ok := r.data[id]; ok {
		cp := *pu
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPurchaseRepo) FindByPayment(ctx context.Context, qx repository.Tx, paymentID string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pu := range r.data {
		if pu.PaymentID == paymentID {
			cp := *pu
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPurchaseRepo) FindCompletedByUserResource(ctx context.Context, qx repository.Tx, userID, resourceID string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pu := range r.data {
		if pu.UserID == userID && pu.ResourceID == resourceID && pu.Status == model.PurchaseStatusCompleted {
			cp := *pu
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPurchaseRepo) UpdateStatus(ctx context.Context, qx repository.Tx, id string, status model.PurchaseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pu, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	pu.Status = status
	return nil
}

func (r *MockPurchaseRepo) SetLicenseIfEmpty(ctx context.Context, qx repository.Tx, id, key string) (string, error) {
	if r.SetLicenseIfEmptyFunc != nil {
		return r.SetLicenseIfEmptyFunc(ctx, qx, id, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pu, ok := r.data[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	if pu.LicenseKey == "" {
		pu.LicenseKey = key
	}
	return pu.LicenseKey, nil
}

func (r *MockPurchaseRepo) SetDownload(ctx context.Context, qx repository.Tx, id, url string, expires time.Time) error {
	if r.SetDownloadFunc != nil {
		return r.SetDownloadFunc(ctx, qx, id, url, expires)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pu, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	pu.DownloadURL = url
	t := expires
	pu.DownloadExpires = &t
	return nil
}

func (r *MockPurchaseRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string) ([]*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Purchase
	for _, pu := range r.data {
		if pu.UserID == userID {
			cp := *pu
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Count reports how many purchase rows exist.
func (r *MockPurchaseRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// Seed stores a purchase directly.
func (r *MockPurchaseRepo) Seed(pu *model.Purchase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pu.ID == "" {
		pu.ID = uuid.NewString()
	}
	cp := *pu
	r.data[pu.ID] = &cp
}

// ---- Mock PaymentMethodRepository ----

type MockMethodRepo struct {
	mu   sync.Mutex
	data map[string]*model.SavedPaymentMethod
}

var _ repository.PaymentMethodRepository = (*MockMethodRepo)(nil)

func NewMockMethodRepo() *MockMethodRepo {
	return &MockMethodRepo{data: map[string]*model.SavedPaymentMethod{}}
}

func (r *MockMethodRepo) Save(ctx context.Context, qx repository.Tx, m *model.SavedPaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.data[m.ID] = &cp
	return nil
}

func (r *MockMethodRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.SavedPaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.data[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockMethodRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string) ([]*model.SavedPaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SavedPaymentMethod
	for _, m := range r.data {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockMethodRepo) Delete(ctx context.Context, qx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// ---- Mock GatewaySettingsRepository ----

type MockSettingsRepo struct {
	Cfg *model.GatewayConfig
	Err error
}

var _ repository.GatewaySettingsRepository = (*MockSettingsRepo)(nil)

func NewMockSettingsRepo() *MockSettingsRepo {
	return &MockSettingsRepo{Cfg: &model.GatewayConfig{APIKey: "test-key", WebhookSecret: "test-secret"}}
}

func (r *MockSettingsRepo) Load(ctx context.Context, qx repository.Tx) (*model.GatewayConfig, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Cfg, nil
}

// ---- Mock NotificationLogRepository ----

type MockNotificationLog struct {
	mu   sync.Mutex
	sent map[string]bool // purchaseID|kind

	ExistsFunc func(ctx context.Context, qx repository.Tx, purchaseID, kind string) (bool, error)
	RecordFunc func(ctx context.Context, qx repository.Tx, purchaseID, userID, kind string) error
}

var _ repository.NotificationLogRepository = (*MockNotificationLog)(nil)

func NewMockNotificationLog() *MockNotificationLog {
	return &MockNotificationLog{sent: map[string]bool{}}
}

func (r *MockNotificationLog) Exists(ctx context.Context, qx repository.Tx, purchaseID, kind string) (bool, error) {
	if r.ExistsFunc != nil {
		return r.ExistsFunc(ctx, qx, purchaseID, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[purchaseID+"|"+kind], nil
}

func (r *MockNotificationLog) Record(ctx context.Context, qx repository.Tx, purchaseID, userID, kind string) error {
	if r.RecordFunc != nil {
		return r.RecordFunc(ctx, qx, purchaseID, userID, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[purchaseID+"|"+kind] = true
	return nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu sync.Mutex

	CreateIntentFunc func(ctx context.Context, cfg *model.GatewayConfig, req adapter.IntentRequest) (*adapter.Intent, error)
	QueryStatusFunc  func(ctx context.Context, cfg *model.GatewayConfig, externalID string) (*adapter.GatewayStatus, error)

	CreateCalls int
	QueryCalls  int
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) CreateIntent(ctx context.Context, cfg *model.GatewayConfig, req adapter.IntentRequest) (*adapter.Intent, error) {
	g.mu.Lock()
	g.CreateCalls++
	g.mu.Unlock()
	if g.CreateIntentFunc != nil {
		return g.CreateIntentFunc(ctx, cfg, req)
	}
	return &adapter.Intent{ExternalID: "ext-" + req.CustomerRef, PaymentURL: "https://gw.test/pay/" + req.CustomerRef}, nil
}

func (g *MockGateway) QueryStatus(ctx context.Context, cfg *model.GatewayConfig, externalID string) (*adapter.GatewayStatus, error) {
	g.mu.Lock()
	g.QueryCalls++
	g.mu.Unlock()
	if g.QueryStatusFunc != nil {
		return g.QueryStatusFunc(ctx, cfg, externalID)
	}
	return &adapter.GatewayStatus{Status: "Pending", TransactionID: externalID}, nil
}

// ---- Mock ResourceCatalog / UserDirectory ----

type MockCatalog struct {
	mu   sync.Mutex
	data map[string]*model.Resource
}

var _ adapter.ResourceCatalog = (*MockCatalog)(nil)

func NewMockCatalog() *MockCatalog { return &MockCatalog{data: map[string]*model.Resource{}} }

func (c *MockCatalog) Add(res *model.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[res.ID] = res
}

func (c *MockCatalog) Lookup(ctx context.Context, resourceID string) (*model.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.data[resourceID]; ok {
		cp := *res
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

type MockDirectory struct {
	mu   sync.Mutex
	data map[string]*model.User
	Fail error // returned by Lookup while set, simulating an outage
}

var _ adapter.UserDirectory = (*MockDirectory)(nil)

func NewMockDirectory() *MockDirectory { return &MockDirectory{data: map[string]*model.User{}} }

func (d *MockDirectory) Add(u *model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[u.ID] = u
}

func (d *MockDirectory) Lookup(ctx context.Context, userID string) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		return nil, d.Fail
	}
	if u, ok := d.data[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

// ---- Mock LicenseKeyGenerator / DownloadTokenIssuer / Notifier ----

type MockKeygen struct {
	GenerateFunc func(seed adapter.LicenseSeed) string
}

var _ adapter.LicenseKeyGenerator = (*MockKeygen)(nil)

func (k *MockKeygen) Generate(seed adapter.LicenseSeed) string {
	if k.GenerateFunc != nil {
		return k.GenerateFunc(seed)
	}
	return "KEY-" + seed.ResourceID + "-" + seed.UserID
}

type MockTokenIssuer struct {
	IssueFunc  func(purchaseID, userID string, ttl time.Duration) (string, time.Time, error)
	VerifyFunc func(token string) (*adapter.DownloadClaims, error)
}

var _ adapter.DownloadTokenIssuer = (*MockTokenIssuer)(nil)

func (t *MockTokenIssuer) Issue(purchaseID, userID string, ttl time.Duration) (string, time.Time, error) {
	if t.IssueFunc != nil {
		return t.IssueFunc(purchaseID, userID, ttl)
	}
	return "tok-" + purchaseID, time.Now().Add(ttl), nil
}

func (t *MockTokenIssuer) Verify(token string) (*adapter.DownloadClaims, error) {
	if t.VerifyFunc != nil {
		return t.VerifyFunc(token)
	}
	return nil, domain.ErrTokenInvalid
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent int

	SendFunc func(ctx context.Context, to *model.User, res *model.Resource, licenseKey, downloadURL string, expires time.Time) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (n *MockNotifier) SendEntitlement(ctx context.Context, to *model.User, res *model.Resource, licenseKey, downloadURL string, expires time.Time) error {
	if n.SendFunc != nil {
		if err := n.SendFunc(ctx, to, res, licenseKey, downloadURL, expires); err != nil {
			return err
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent++
	return nil
}

func (n *MockNotifier) SentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Sent
}

// =============================
// Infrastructure
// =============================

// ---- Mock TransactionManager ----

// MockTxManager runs the function inline; the mocks themselves are the
// "database", so there is nothing to commit or roll back.
type MockTxManager struct{}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// ---- Mock Locker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return "", domain.ErrLockBusy
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
