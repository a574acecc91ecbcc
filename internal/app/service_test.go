package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BlockApex/bundl-controller-service/internal/domain"
	"github.com/BlockApex/bundl-controller-service/internal/store"
	"github.com/BlockApex/bundl-controller-service/pkg/ledgerclient"
)

type bundleKey struct {
	owner    string
	bundleID uint64
}

type repoStub struct {
	controllers map[string]*domain.Controller
	bundles     map[bundleKey]*domain.Bundle
	payments    []domain.Payment

	recordPaymentErr error
}

func newRepoStub() *repoStub {
	return &repoStub{
		controllers: make(map[string]*domain.Controller),
		bundles:     make(map[bundleKey]*domain.Bundle),
	}
}

func (r *repoStub) GetController(ctx context.Context, owner string) (*domain.Controller, error) {
	c, ok := r.controllers[owner]
	if !ok {
		return nil, store.ErrControllerNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *repoStub) CreateControllerIfAbsent(ctx context.Context, c *domain.Controller) (*domain.Controller, error) {
	if existing, ok := r.controllers[c.Owner]; ok {
		copied := *existing
		return &copied, nil
	}
	created := *c
	created.BundleCounter = 0
	r.controllers[c.Owner] = &created
	copied := created
	return &copied, nil
}

func (r *repoStub) CreateBundle(ctx context.Context, owner string, amountPerInterval, intervalSeconds int64, recipientAccount string) (*domain.Bundle, error) {
	c, ok := r.controllers[owner]
	if !ok {
		return nil, store.ErrControllerNotFound
	}
	bundle := &domain.Bundle{
		Owner:             owner,
		BundleID:          c.BundleCounter,
		AmountPerInterval: amountPerInterval,
		IntervalSeconds:   intervalSeconds,
		RecipientAccount:  recipientAccount,
	}
	r.bundles[bundleKey{owner, bundle.BundleID}] = bundle
	c.BundleCounter++
	copied := *bundle
	return &copied, nil
}

func (r *repoStub) GetBundle(ctx context.Context, owner string, bundleID uint64) (*domain.Bundle, error) {
	b, ok := r.bundles[bundleKey{owner, bundleID}]
	if !ok {
		return nil, store.ErrBundleNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *repoStub) ListBundles(ctx context.Context, owner string) ([]domain.Bundle, error) {
	var out []domain.Bundle
	for _, b := range r.bundles {
		if b.Owner == owner {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *repoStub) ListDueBundles(ctx context.Context, now int64) ([]domain.Bundle, error) {
	var out []domain.Bundle
	for _, b := range r.bundles {
		if b.IsDue(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *repoStub) RecordPayment(ctx context.Context, payment *domain.Payment) error {
	if r.recordPaymentErr != nil {
		return r.recordPaymentErr
	}
	b, ok := r.bundles[bundleKey{payment.Owner, payment.BundleID}]
	if !ok {
		return store.ErrBundleNotFound
	}
	b.LastPaid = payment.ExecutedAt
	r.payments = append(r.payments, *payment)
	return nil
}

func (r *repoStub) ListPayments(ctx context.Context, owner string, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range r.payments {
		if p.Owner == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

type ledgerAccount struct {
	balance         int64
	delegate        string
	delegatedAmount int64
	mint            string
}

type transferCall struct {
	source, dest, authority string
	amount                  int64
}

type ledgerStub struct {
	accounts    map[string]ledgerAccount
	transfers   []transferCall
	transferErr error
}

func (l *ledgerStub) GetAccount(ctx context.Context, accountID string) (*ledgerclient.TokenAccount, error) {
	acct, ok := l.accounts[accountID]
	if !ok {
		return nil, errors.New("account not found on ledger")
	}
	var resp ledgerclient.TokenAccount
	resp.Data.ID = accountID
	resp.Data.Attributes.Balance = acct.balance
	resp.Data.Attributes.Delegate = acct.delegate
	resp.Data.Attributes.DelegatedAmount = acct.delegatedAmount
	resp.Data.Attributes.Mint = acct.mint
	return &resp, nil
}

func (l *ledgerStub) Transfer(ctx context.Context, sourceAccountID, destAccountID, authority string, amount int64) (*ledgerclient.TransferResponse, error) {
	if l.transferErr != nil {
		return nil, l.transferErr
	}
	l.transfers = append(l.transfers, transferCall{sourceAccountID, destAccountID, authority, amount})
	var resp ledgerclient.TransferResponse
	resp.Data.ID = "transfer-1"
	resp.Data.Attributes.Status = "completed"
	return &resp, nil
}

type publisherStub struct {
	published []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, routingKey)
	return nil
}

func (p *publisherStub) Close() {}

type deniedLock struct{}

func (deniedLock) Acquire(ctx context.Context, owner string, bundleID uint64) (func(), bool, error) {
	return nil, false, nil
}

const (
	testAuthority = "ops-trigger"
	testOwner     = "user_1"
	testFunding   = "acct-funding"
	testRecipient = "acct-merchant"
	testMint      = "mint-usdx"
)

func newTestService(repo *repoStub, ledger *ledgerStub) (*Service, *publisherStub) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := &publisherStub{}
	svc := NewService(repo, ledger, NewAuthorityGate(testAuthority), NoopTriggerLock{}, events, logger)
	return svc, events
}

func newFundedLedger(balance int64) *ledgerStub {
	return &ledgerStub{
		accounts: map[string]ledgerAccount{
			testFunding: {
				balance:         balance,
				delegate:        domain.DelegateID(testOwner),
				delegatedAmount: balance,
				mint:            testMint,
			},
		},
	}
}

func TestInitializeController_CreatesRecord(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo, newFundedLedger(100))

	controller, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint)
	if err != nil {
		t.Fatalf("InitializeController returned error: %v", err)
	}
	if controller.BundleCounter != 0 {
		t.Fatalf("expected new controller counter 0, got %d", controller.BundleCounter)
	}
	if controller.FundingAccount != testFunding {
		t.Fatalf("expected funding account %q, got %q", testFunding, controller.FundingAccount)
	}
}

func TestInitializeController_IsIdempotent(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo, newFundedLedger(100))

	if _, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint); err != nil {
		t.Fatalf("first InitializeController returned error: %v", err)
	}
	if _, err := svc.AddBundle(context.Background(), testOwner, 10, 86400, testRecipient); err != nil {
		t.Fatalf("AddBundle returned error: %v", err)
	}

	controller, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint)
	if err != nil {
		t.Fatalf("re-initialization returned error: %v", err)
	}
	if controller.BundleCounter != 1 {
		t.Fatalf("re-initialization must preserve existing state, counter = %d", controller.BundleCounter)
	}
}

func TestInitializeController_InvalidDelegate(t *testing.T) {
	repo := newRepoStub()
	ledger := newFundedLedger(100)
	acct := ledger.accounts[testFunding]
	acct.delegate = "somebody-else"
	ledger.accounts[testFunding] = acct
	svc, _ := newTestService(repo, ledger)

	_, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint)
	if !errors.Is(err, ErrInvalidDelegate) {
		t.Fatalf("expected ErrInvalidDelegate, got %v", err)
	}
	if _, ok := repo.controllers[testOwner]; ok {
		t.Fatal("no controller record should be created on delegate mismatch")
	}
}

func TestInitializeController_LowAllowance(t *testing.T) {
	repo := newRepoStub()
	ledger := newFundedLedger(100)
	acct := ledger.accounts[testFunding]
	acct.delegatedAmount = 99
	ledger.accounts[testFunding] = acct
	svc, _ := newTestService(repo, ledger)

	_, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint)
	if !errors.Is(err, ErrLowAllowance) {
		t.Fatalf("expected ErrLowAllowance, got %v", err)
	}
}

func TestAddBundle_AssignsSequentialIDs(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo, newFundedLedger(100))

	if _, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint); err != nil {
		t.Fatalf("InitializeController returned error: %v", err)
	}

	first, err := svc.AddBundle(context.Background(), testOwner, 10, 86400, testRecipient)
	if err != nil {
		t.Fatalf("first AddBundle returned error: %v", err)
	}
	second, err := svc.AddBundle(context.Background(), testOwner, 25, 3600, testRecipient)
	if err != nil {
		t.Fatalf("second AddBundle returned error: %v", err)
	}

	if first.BundleID != 0 || second.BundleID != 1 {
		t.Fatalf("expected bundle ids 0 and 1, got %d and %d", first.BundleID, second.BundleID)
	}
	if first.LastPaid != 0 {
		t.Fatalf("new bundle must start never-paid, last_paid = %d", first.LastPaid)
	}
	if repo.controllers[testOwner].BundleCounter != 2 {
		t.Fatalf("expected counter 2 after two bundles, got %d", repo.controllers[testOwner].BundleCounter)
	}
}

func TestAddBundle_WithoutController(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo, newFundedLedger(100))

	_, err := svc.AddBundle(context.Background(), "stranger", 10, 86400, testRecipient)
	if !errors.Is(err, store.ErrControllerNotFound) {
		t.Fatalf("expected ErrControllerNotFound, got %v", err)
	}
}

func TestAddBundle_RejectsNonPositiveParameters(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo, newFundedLedger(100))

	if _, err := svc.AddBundle(context.Background(), testOwner, 0, 86400, testRecipient); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := svc.AddBundle(context.Background(), testOwner, 10, 0, testRecipient); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

// setupTriggerFixture creates a controller with one bundle (amount 10,
// interval one day) against a funded ledger account.
func setupTriggerFixture(t *testing.T, balance int64) (*Service, *repoStub, *ledgerStub, *publisherStub) {
	t.Helper()
	repo := newRepoStub()
	ledger := newFundedLedger(balance)
	svc, events := newTestService(repo, ledger)

	if _, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint); err != nil {
		t.Fatalf("InitializeController returned error: %v", err)
	}
	if _, err := svc.AddBundle(context.Background(), testOwner, 10, 86400, testRecipient); err != nil {
		t.Fatalf("AddBundle returned error: %v", err)
	}
	return svc, repo, ledger, events
}

func TestTrigger_RejectsUnknownCaller(t *testing.T) {
	svc, repo, ledger, _ := setupTriggerFixture(t, 100)

	_, err := svc.Trigger(context.Background(), "not-the-authority", testOwner, 0, "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(ledger.transfers) != 0 {
		t.Fatal("no transfer may be attempted for an unauthorized caller")
	}
	if repo.bundles[bundleKey{testOwner, 0}].LastPaid != 0 {
		t.Fatal("bundle state must be untouched on unauthorized trigger")
	}
}

func TestTrigger_PaysOnceThenGates(t *testing.T) {
	svc, repo, ledger, events := setupTriggerFixture(t, 100)

	payment, err := svc.Trigger(context.Background(), testAuthority, testOwner, 0, "")
	if err != nil {
		t.Fatalf("first trigger returned error: %v", err)
	}
	if payment.Amount != 10 {
		t.Fatalf("expected payment amount 10, got %d", payment.Amount)
	}
	if len(ledger.transfers) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(ledger.transfers))
	}
	call := ledger.transfers[0]
	if call.source != testFunding || call.dest != testRecipient || call.amount != 10 {
		t.Fatalf("unexpected transfer call %+v", call)
	}
	if call.authority != domain.DelegateID(testOwner) {
		t.Fatalf("transfer must be authorized by the controller delegate, got %q", call.authority)
	}

	paidAt := repo.bundles[bundleKey{testOwner, 0}].LastPaid
	if paidAt == 0 {
		t.Fatal("last_paid must advance after a successful trigger")
	}

	// Immediate second call falls inside the interval window.
	_, err = svc.Trigger(context.Background(), testAuthority, testOwner, 0, "")
	if !errors.Is(err, ErrIntervalNotPassed) {
		t.Fatalf("expected ErrIntervalNotPassed, got %v", err)
	}
	if repo.bundles[bundleKey{testOwner, 0}].LastPaid != paidAt {
		t.Fatal("gated trigger must leave last_paid unchanged")
	}
	if len(ledger.transfers) != 1 {
		t.Fatal("gated trigger must not attempt a transfer")
	}

	var executed int
	for _, key := range events.published {
		if key == RoutingKeyPaymentExecuted {
			executed++
		}
	}
	if executed != 1 {
		t.Fatalf("expected one payment.executed event, got %d", executed)
	}
}

func TestTrigger_PaysAgainAfterInterval(t *testing.T) {
	svc, repo, _, _ := setupTriggerFixture(t, 100)

	// Simulate a payment made exactly one interval ago.
	repo.bundles[bundleKey{testOwner, 0}].LastPaid = time.Now().Unix() - 86400

	if _, err := svc.Trigger(context.Background(), testAuthority, testOwner, 0, ""); err != nil {
		t.Fatalf("trigger after interval elapsed returned error: %v", err)
	}
}

func TestTrigger_InsufficientFunds(t *testing.T) {
	svc, repo, ledger, events := setupTriggerFixture(t, 5)

	_, err := svc.Trigger(context.Background(), testAuthority, testOwner, 0, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(ledger.transfers) != 0 {
		t.Fatal("no transfer may be attempted with insufficient funds")
	}
	if repo.bundles[bundleKey{testOwner, 0}].LastPaid != 0 {
		t.Fatal("last_paid must remain the never-paid sentinel")
	}

	var failed int
	for _, key := range events.published {
		if key == RoutingKeyPaymentFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected one payment.failed event, got %d", failed)
	}
}

func TestTrigger_TransferFailureLeavesStateUnchanged(t *testing.T) {
	svc, repo, ledger, _ := setupTriggerFixture(t, 100)
	ledger.transferErr = errors.New("ledger rejected the transfer")

	_, err := svc.Trigger(context.Background(), testAuthority, testOwner, 0, "")
	if err == nil {
		t.Fatal("expected trigger to fail when the transfer fails")
	}
	if repo.bundles[bundleKey{testOwner, 0}].LastPaid != 0 {
		t.Fatal("last_paid must not advance when the transfer fails")
	}
	if len(repo.payments) != 0 {
		t.Fatal("no payment row may be recorded when the transfer fails")
	}
}

func TestTrigger_UnknownBundle(t *testing.T) {
	svc, _, _, _ := setupTriggerFixture(t, 100)

	_, err := svc.Trigger(context.Background(), testAuthority, testOwner, 42, "")
	if !errors.Is(err, store.ErrBundleNotFound) {
		t.Fatalf("expected ErrBundleNotFound, got %v", err)
	}
}

func TestTrigger_ExplicitRecipientOverridesBundleDefault(t *testing.T) {
	svc, _, ledger, _ := setupTriggerFixture(t, 100)

	if _, err := svc.Trigger(context.Background(), testAuthority, testOwner, 0, "acct-other"); err != nil {
		t.Fatalf("trigger returned error: %v", err)
	}
	if ledger.transfers[0].dest != "acct-other" {
		t.Fatalf("expected explicit recipient to win, transfer went to %q", ledger.transfers[0].dest)
	}
}

func TestTrigger_LockContention(t *testing.T) {
	repo := newRepoStub()
	ledger := newFundedLedger(100)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, ledger, NewAuthorityGate(testAuthority), deniedLock{}, &publisherStub{}, logger)

	if _, err := svc.InitializeController(context.Background(), testOwner, testFunding, testMint); err != nil {
		t.Fatalf("InitializeController returned error: %v", err)
	}
	if _, err := svc.AddBundle(context.Background(), testOwner, 10, 86400, testRecipient); err != nil {
		t.Fatalf("AddBundle returned error: %v", err)
	}

	_, err := svc.Trigger(context.Background(), testAuthority, testOwner, 0, "")
	if !errors.Is(err, ErrTriggerInFlight) {
		t.Fatalf("expected ErrTriggerInFlight, got %v", err)
	}
}

func TestListBundles_ComputesNextEligibility(t *testing.T) {
	svc, repo, _, _ := setupTriggerFixture(t, 100)
	paidAt := time.Now().Unix() - 100
	repo.bundles[bundleKey{testOwner, 0}].LastPaid = paidAt

	views, err := svc.ListBundles(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("ListBundles returned error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one bundle, got %d", len(views))
	}
	if views[0].NextEligibleAt != paidAt+86400 {
		t.Fatalf("expected next_eligible_at %d, got %d", paidAt+86400, views[0].NextEligibleAt)
	}
}
