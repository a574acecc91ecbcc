/**
 * @description
 * This file contains the core business logic for the bundl controller service:
 * the authorization engine behind controller setup, bundle registration, and
 * trigger execution. The `Service` struct orchestrates the database repository,
 * the token ledger client, the per-bundle trigger lock, and the event producer.
 *
 * Key features:
 * - InitializeController verifies the delegation on the funding account and
 *   performs a retry-safe conditional create.
 * - AddBundle assigns sequence-numbered bundle ids from the controller's
 *   counter.
 * - Trigger enforces the authority gate, the interval gate and the balance
 *   gate in order, executes the delegated ledger transfer, and only then
 *   advances the bundle's last-paid marker.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/google/uuid: For payment record IDs.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/ledgerclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BlockApex/bundl-controller-service/internal/domain"
	"github.com/BlockApex/bundl-controller-service/internal/store"
	"github.com/BlockApex/bundl-controller-service/pkg/ledgerclient"
	"github.com/BlockApex/bundl-controller-service/pkg/rabbitmq"
)

const (
	// EventsExchange is the durable topic exchange all service events go to.
	EventsExchange = "bundl.events"

	RoutingKeyPaymentExecuted = "payment.executed"
	RoutingKeyPaymentFailed   = "payment.failed"
)

// Ledger defines the token ledger operations the engine needs. It is satisfied
// by *ledgerclient.Client.
type Ledger interface {
	GetAccount(ctx context.Context, accountID string) (*ledgerclient.TokenAccount, error)
	Transfer(ctx context.Context, sourceAccountID, destAccountID, authority string, amount int64) (*ledgerclient.TransferResponse, error)
}

// Service provides the core business logic for controllers, bundles and triggers.
type Service struct {
	repo   store.Repository
	ledger Ledger
	gate   *AuthorityGate
	lock   TriggerLock
	events rabbitmq.Publisher
	logger *slog.Logger
}

// NewService creates a new controller service instance.
func NewService(repo store.Repository, ledger Ledger, gate *AuthorityGate, lock TriggerLock, events rabbitmq.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		gate:   gate,
		lock:   lock,
		events: events,
		logger: logger,
	}
}

// InitializeController sets up the per-user controller record. The funding
// account must already have designated the controller as its delegate, with an
// allowance covering at least the current balance. Re-initialization is a
// no-op success that returns the existing record.
func (s *Service) InitializeController(ctx context.Context, owner, fundingAccount, mint string) (*domain.Controller, error) {
	if owner == "" || fundingAccount == "" || mint == "" {
		return nil, errors.New("owner, funding account and mint are required")
	}

	account, err := s.ledger.GetAccount(ctx, fundingAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to read funding account: %w", err)
	}

	if account.Data.Attributes.Mint != mint {
		return nil, fmt.Errorf("funding account holds mint %s, not %s", account.Data.Attributes.Mint, mint)
	}
	if account.Data.Attributes.Delegate != domain.DelegateID(owner) {
		return nil, ErrInvalidDelegate
	}
	if account.Data.Attributes.DelegatedAmount < account.Data.Attributes.Balance {
		return nil, ErrLowAllowance
	}

	controller, err := s.repo.CreateControllerIfAbsent(ctx, &domain.Controller{
		Owner:          owner,
		FundingAccount: fundingAccount,
		Mint:           mint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist controller: %w", err)
	}

	s.logger.Info("controller initialized", "owner", owner, "funding_account", fundingAccount)
	return controller, nil
}

// AddBundle registers a new recurring-payment schedule under the caller's
// controller. The bundle id comes from the controller's counter, which
// increments by exactly one per call; ids are never reused.
func (s *Service) AddBundle(ctx context.Context, owner string, amountPerInterval, intervalSeconds int64, recipientAccount string) (*domain.Bundle, error) {
	if amountPerInterval <= 0 {
		return nil, errors.New("amount per interval must be positive")
	}
	if intervalSeconds <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if recipientAccount == "" {
		return nil, errors.New("recipient account is required")
	}

	// Ownership is structural: the controller lookup is keyed by the caller's
	// identity, so a caller without a controller simply fails to resolve one.
	bundle, err := s.repo.CreateBundle(ctx, owner, amountPerInterval, intervalSeconds, recipientAccount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("bundle added", "owner", owner, "bundle_id", bundle.BundleID, "amount", amountPerInterval, "interval_seconds", intervalSeconds)
	return bundle, nil
}

// Trigger attempts to execute one recurring payment for the given bundle. The
// caller must be a configured trigger authority. The gates run in order and
// fail fast: authority, record resolution, interval, balance. Only a fully
// successful ledger transfer advances the bundle's last-paid marker.
//
// When recipientAccount is empty, the bundle's registered recipient is used;
// this is how the scheduler invokes payments.
func (s *Service) Trigger(ctx context.Context, caller, owner string, bundleID uint64, recipientAccount string) (*domain.Payment, error) {
	if !s.gate.Permits(caller) {
		return nil, ErrUnauthorized
	}

	release, ok, err := s.lock.Acquire(ctx, owner, bundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire trigger lock: %w", err)
	}
	if !ok {
		return nil, ErrTriggerInFlight
	}
	defer release()

	controller, err := s.repo.GetController(ctx, owner)
	if err != nil {
		return nil, err
	}
	bundle, err := s.repo.GetBundle(ctx, owner, bundleID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	if bundle.LastPaid != 0 && now-bundle.LastPaid < bundle.IntervalSeconds {
		return nil, ErrIntervalNotPassed
	}

	recipient := recipientAccount
	if recipient == "" {
		recipient = bundle.RecipientAccount
	}
	if recipient == "" {
		return nil, errors.New("no recipient account for bundle")
	}

	account, err := s.ledger.GetAccount(ctx, controller.FundingAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to read funding account: %w", err)
	}
	if account.Data.Attributes.Balance < bundle.AmountPerInterval {
		s.publishFailure(ctx, owner, bundleID, "insufficient funds")
		return nil, ErrInsufficientFunds
	}

	// The transfer is authorized by the controller acting as the funding
	// account's delegate, not by the owner. The ledger either moves the full
	// amount or fails with nothing moved.
	_, err = s.ledger.Transfer(ctx, controller.FundingAccount, recipient, domain.DelegateID(owner), bundle.AmountPerInterval)
	if err != nil {
		s.publishFailure(ctx, owner, bundleID, "ledger transfer failed")
		return nil, fmt.Errorf("ledger transfer failed: %w", err)
	}

	payment := &domain.Payment{
		ID:               uuid.New(),
		Owner:            owner,
		BundleID:         bundleID,
		Amount:           bundle.AmountPerInterval,
		RecipientAccount: recipient,
		ExecutedAt:       now,
	}
	if err := s.repo.RecordPayment(ctx, payment); err != nil {
		// The funds have moved but our gating state did not advance; the next
		// trigger would double-pay. Surface loudly for reconciliation.
		s.logger.Error("CRITICAL: transfer executed but payment record failed", "owner", owner, "bundle_id", bundleID, "error", err)
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.logger.Info("payment executed", "owner", owner, "bundle_id", bundleID, "amount", payment.Amount, "recipient", recipient)

	if s.events != nil {
		if err := s.events.Publish(ctx, EventsExchange, RoutingKeyPaymentExecuted, domain.PaymentExecutedPayload{
			Owner:            owner,
			BundleID:         bundleID,
			Amount:           payment.Amount,
			RecipientAccount: recipient,
			ExecutedAt:       now,
		}); err != nil {
			s.logger.Warn("failed to publish payment executed event", "owner", owner, "bundle_id", bundleID, "error", err)
		}
	}

	return payment, nil
}

// publishFailure emits a payment.failed event. Event delivery is best-effort
// and never fails the trigger itself.
func (s *Service) publishFailure(ctx context.Context, owner string, bundleID uint64, reason string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, EventsExchange, RoutingKeyPaymentFailed, domain.PaymentFailedPayload{
		Owner:    owner,
		BundleID: bundleID,
		Reason:   reason,
	}); err != nil {
		s.logger.Warn("failed to publish payment failed event", "owner", owner, "bundle_id", bundleID, "error", err)
	}
}

// GetControllerStatus returns the controller record along with a live snapshot
// of the funding account's balance and remaining delegated allowance.
func (s *Service) GetControllerStatus(ctx context.Context, owner string) (*domain.ControllerStatus, error) {
	controller, err := s.repo.GetController(ctx, owner)
	if err != nil {
		return nil, err
	}

	status := &domain.ControllerStatus{Controller: *controller}
	account, err := s.ledger.GetAccount(ctx, controller.FundingAccount)
	if err != nil {
		// The record itself is still useful when the ledger is unreachable.
		s.logger.Warn("failed to read funding account for status", "owner", owner, "error", err)
		return status, nil
	}
	status.Balance = account.Data.Attributes.Balance
	status.Allowance = account.Data.Attributes.DelegatedAmount
	return status, nil
}

// ListBundles returns the caller's bundles with their computed next
// eligibility times.
func (s *Service) ListBundles(ctx context.Context, owner string) ([]domain.BundleView, error) {
	bundles, err := s.repo.ListBundles(ctx, owner)
	if err != nil {
		return nil, err
	}

	views := make([]domain.BundleView, 0, len(bundles))
	for _, b := range bundles {
		views = append(views, domain.BundleView{Bundle: b, NextEligibleAt: b.NextEligibleAt()})
	}
	return views, nil
}

// ListPayments returns the caller's most recent executed payments.
func (s *Service) ListPayments(ctx context.Context, owner string, limit int) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, owner, limit)
}
