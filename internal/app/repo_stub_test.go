package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
	"github.com/Soundar1309/ispb-membership-service/internal/store"
)

// membershipRepoStub is an in-memory Repository with the same guarded-update
// semantics as the Postgres implementation: a state-transition method whose
// precondition does not hold returns the NotFound sentinel, exactly like a
// guarded UPDATE matching zero rows.
type membershipRepoStub struct {
	memberships map[uuid.UUID]*domain.MembershipRecord
	orders      map[uuid.UUID]*domain.OrderRecord
	codes       map[string]uuid.UUID
	codeSeq     int64
}

func newMembershipRepoStub() *membershipRepoStub {
	return &membershipRepoStub{
		memberships: make(map[uuid.UUID]*domain.MembershipRecord),
		orders:      make(map[uuid.UUID]*domain.OrderRecord),
		codes:       make(map[string]uuid.UUID),
	}
}

func cloneMembership(rec *domain.MembershipRecord) *domain.MembershipRecord {
	c := *rec
	return &c
}

func cloneOrder(order *domain.OrderRecord) *domain.OrderRecord {
	c := *order
	return &c
}

func (r *membershipRepoStub) CreateMembership(ctx context.Context, rec *domain.MembershipRecord) error {
	for _, existing := range r.memberships {
		if existing.UserID == rec.UserID &&
			(existing.Status == domain.StatusPending || existing.Status == domain.StatusActive) {
			return store.ErrActiveMembershipExists
		}
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	r.memberships[rec.ID] = cloneMembership(rec)
	return nil
}

func (r *membershipRepoStub) FindMembershipByID(ctx context.Context, id uuid.UUID) (*domain.MembershipRecord, error) {
	rec, ok := r.memberships[id]
	if !ok {
		return nil, store.ErrMembershipNotFound
	}
	return cloneMembership(rec), nil
}

func (r *membershipRepoStub) FindLiveMembershipByUserID(ctx context.Context, userID uuid.UUID) (*domain.MembershipRecord, error) {
	for _, rec := range r.memberships {
		if rec.UserID == userID &&
			(rec.Status == domain.StatusPending || rec.Status == domain.StatusActive) {
			return cloneMembership(rec), nil
		}
	}
	return nil, store.ErrMembershipNotFound
}

func (r *membershipRepoStub) ListMemberships(ctx context.Context, opts domain.MembershipListOptions) ([]domain.MembershipRecord, error) {
	var out []domain.MembershipRecord
	for _, rec := range r.memberships {
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		if opts.ApplicationStatus != "" && rec.ApplicationStatus != opts.ApplicationStatus {
			continue
		}
		if opts.MembershipType != "" && rec.MembershipType != opts.MembershipType {
			continue
		}
		out = append(out, *cloneMembership(rec))
	}
	return out, nil
}

func (r *membershipRepoStub) ApplyReviewDecision(ctx context.Context, id uuid.UUID, approved bool, notes *string) (*domain.MembershipRecord, error) {
	rec, ok := r.memberships[id]
	if !ok || rec.ApplicationStatus != domain.ApplicationSubmitted {
		return nil, store.ErrMembershipNotFound
	}
	if approved {
		rec.ApplicationStatus = domain.ApplicationApproved
	} else {
		rec.ApplicationStatus = domain.ApplicationRejected
		rec.Status = domain.StatusCancelled
		rec.PaymentStatus = domain.PaymentCancelled
	}
	if notes != nil {
		rec.AdminReviewNotes = notes
	}
	rec.UpdatedAt = time.Now().UTC()
	return cloneMembership(rec), nil
}

func (r *membershipRepoStub) ActivateMembership(ctx context.Context, id uuid.UUID, params store.ActivateMembershipParams) (*domain.MembershipRecord, error) {
	rec, ok := r.memberships[id]
	if !ok || rec.Status != domain.StatusPending || rec.PaymentStatus != domain.PaymentPending {
		return nil, store.ErrMembershipNotFound
	}
	rec.Status = domain.StatusActive
	rec.PaymentStatus = params.PaymentStatus
	validFrom := params.ValidFrom
	rec.ValidFrom = &validFrom
	rec.ValidUntil = params.ValidUntil
	rec.IsManual = rec.IsManual || params.IsManual
	rec.UpdatedAt = time.Now().UTC()
	return cloneMembership(rec), nil
}

func (r *membershipRepoStub) AssignMemberCode(ctx context.Context, id uuid.UUID, code string) (*domain.MembershipRecord, error) {
	if owner, taken := r.codes[code]; taken && owner != id {
		return nil, store.ErrDuplicateMemberCode
	}
	rec, ok := r.memberships[id]
	if !ok || rec.MemberCode != nil {
		return nil, store.ErrMembershipNotFound
	}
	rec.MemberCode = &code
	rec.UpdatedAt = time.Now().UTC()
	r.codes[code] = id
	return cloneMembership(rec), nil
}

func (r *membershipRepoStub) UpdateMembershipNotes(ctx context.Context, id uuid.UUID, notes string) (*domain.MembershipRecord, error) {
	rec, ok := r.memberships[id]
	if !ok {
		return nil, store.ErrMembershipNotFound
	}
	rec.AdminReviewNotes = &notes
	rec.UpdatedAt = time.Now().UTC()
	return cloneMembership(rec), nil
}

func (r *membershipRepoStub) UpdateMembershipTerms(ctx context.Context, id uuid.UUID, params store.UpdateMembershipTermsParams) (*domain.MembershipRecord, error) {
	rec, ok := r.memberships[id]
	if !ok || rec.Status == domain.StatusActive {
		return nil, store.ErrMembershipNotFound
	}
	from, until := rec.ValidFrom, rec.ValidUntil
	if params.ValidFrom != nil {
		from = params.ValidFrom
	}
	if params.ValidUntil != nil {
		until = params.ValidUntil
	}
	if from != nil && until != nil && until.Before(*from) {
		return nil, store.ErrMembershipNotFound
	}
	if params.Amount != nil {
		rec.Amount = *params.Amount
	}
	if params.ValidFrom != nil {
		rec.ValidFrom = params.ValidFrom
	}
	if params.ValidUntil != nil {
		rec.ValidUntil = params.ValidUntil
	}
	if params.Notes != nil {
		rec.AdminReviewNotes = params.Notes
	}
	rec.UpdatedAt = time.Now().UTC()
	return cloneMembership(rec), nil
}

func (r *membershipRepoStub) CancelMembership(ctx context.Context, id uuid.UUID) (*domain.MembershipRecord, error) {
	rec, ok := r.memberships[id]
	if !ok || rec.Status != domain.StatusActive {
		return nil, store.ErrMembershipNotFound
	}
	rec.Status = domain.StatusCancelled
	rec.UpdatedAt = time.Now().UTC()
	return cloneMembership(rec), nil
}

func (r *membershipRepoStub) ExpireMemberships(ctx context.Context, now time.Time) ([]domain.MembershipRecord, error) {
	var expired []domain.MembershipRecord
	for _, rec := range r.memberships {
		if rec.Status == domain.StatusActive && rec.ValidUntil != nil && rec.ValidUntil.Before(now) {
			rec.Status = domain.StatusExpired
			rec.UpdatedAt = time.Now().UTC()
			expired = append(expired, *cloneMembership(rec))
		}
	}
	return expired, nil
}

func (r *membershipRepoStub) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.memberships[id]; !ok {
		return store.ErrMembershipNotFound
	}
	delete(r.memberships, id)
	for orderID, order := range r.orders {
		if order.MembershipID == id {
			delete(r.orders, orderID)
		}
	}
	return nil
}

func (r *membershipRepoStub) CreateOrder(ctx context.Context, order *domain.OrderRecord) error {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *membershipRepoStub) FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.OrderRecord, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *membershipRepoStub) FindOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.OrderRecord, error) {
	for _, order := range r.orders {
		if order.GatewayOrderID != nil && *order.GatewayOrderID == gatewayOrderID {
			return cloneOrder(order), nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (r *membershipRepoStub) ListOrdersByMembershipID(ctx context.Context, membershipID uuid.UUID) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	for _, order := range r.orders {
		if order.MembershipID == membershipID {
			out = append(out, *cloneOrder(order))
		}
	}
	return out, nil
}

func (r *membershipRepoStub) ListOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	for _, order := range r.orders {
		if order.UserID == userID {
			out = append(out, *cloneOrder(order))
		}
	}
	return out, nil
}

func (r *membershipRepoStub) MarkOrderPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (*domain.OrderRecord, error) {
	order, ok := r.orders[id]
	if !ok || order.Status != domain.OrderPending {
		return nil, store.ErrOrderNotFound
	}
	order.Status = domain.OrderPaid
	order.GatewayPaymentID = &gatewayPaymentID
	order.UpdatedAt = time.Now().UTC()
	return cloneOrder(order), nil
}

func (r *membershipRepoStub) MarkOrderFailed(ctx context.Context, id uuid.UUID, gatewayPaymentID string) error {
	order, ok := r.orders[id]
	if !ok || order.Status != domain.OrderPending {
		return store.ErrOrderNotFound
	}
	order.Status = domain.OrderFailed
	if gatewayPaymentID != "" {
		order.GatewayPaymentID = &gatewayPaymentID
	}
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *membershipRepoStub) SetOrderInvoiceURL(ctx context.Context, id uuid.UUID, url string) error {
	order, ok := r.orders[id]
	if !ok {
		return store.ErrOrderNotFound
	}
	order.InvoiceURL = &url
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *membershipRepoStub) NextMemberCodeNumber(ctx context.Context) (int64, error) {
	r.codeSeq++
	return r.codeSeq, nil
}

// capturePublisher records every event handed to it.
type capturePublisher struct {
	published []publishedEvent
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *capturePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) routingKeys() []string {
	keys := make([]string, 0, len(p.published))
	for _, e := range p.published {
		keys = append(keys, e.routingKey)
	}
	return keys
}

func (p *capturePublisher) countKey(key string) int {
	n := 0
	for _, e := range p.published {
		if e.routingKey == key {
			n++
		}
	}
	return n
}

// stubGateway returns canned order ids and a fixed signature verdict.
type stubGateway struct {
	nextOrderID string
	createErr   error
	valid       bool

	createCalls int
}

func (g *stubGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	g.createCalls++
	if g.createErr != nil {
		return "", g.createErr
	}
	if g.nextOrderID != "" {
		return g.nextOrderID, nil
	}
	return fmt.Sprintf("order_stub_%d", g.createCalls), nil
}

func (g *stubGateway) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return g.valid
}

// stubDocStore keeps stored documents in memory.
type stubDocStore struct {
	objects map[string][]byte
	puts    int
}

func newStubDocStore() *stubDocStore {
	return &stubDocStore{objects: make(map[string][]byte)}
}

func (d *stubDocStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	d.puts++
	d.objects[path] = data
	return "https://docs.test/" + path, nil
}

func ptrString(value string) *string {
	return &value
}

func ptrInt64(value int64) *int64 {
	return &value
}

func testFees() Fees {
	return Fees{
		domain.MembershipAnnual:        150000,
		domain.MembershipLifetime:      1500000,
		domain.MembershipStudent:       75000,
		domain.MembershipInstitutional: 500000,
	}
}

// newTestService wires a Service against the in-memory stubs and returns the
// collaborators for assertions.
func newTestService() (*Service, *membershipRepoStub, *stubGateway, *stubDocStore, *capturePublisher) {
	repo := newMembershipRepoStub()
	gateway := &stubGateway{valid: true}
	docs := newStubDocStore()
	events := &capturePublisher{}
	svc := NewService(repo, gateway, docs, events, testFees(), "INR", "LM", 4)
	return svc, repo, gateway, docs, events
}
