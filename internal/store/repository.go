/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the controller service. Defining an
 * interface decouples the authorization engine from the PostgreSQL
 * implementation and lets tests substitute in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/BlockApex/bundl-controller-service/internal/domain"
)

var (
	ErrControllerNotFound = errors.New("controller not found")
	ErrBundleNotFound     = errors.New("bundle not found")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Controller methods
	GetController(ctx context.Context, owner string) (*domain.Controller, error)
	// CreateControllerIfAbsent inserts the controller record unless one already
	// exists for the owner, in which case the existing record is returned
	// untouched. This is what makes InitializeController retry-safe.
	CreateControllerIfAbsent(ctx context.Context, c *domain.Controller) (*domain.Controller, error)

	// Bundle methods
	// CreateBundle assigns the next bundle id from the controller's counter and
	// increments the counter, both inside one database transaction.
	CreateBundle(ctx context.Context, owner string, amountPerInterval, intervalSeconds int64, recipientAccount string) (*domain.Bundle, error)
	GetBundle(ctx context.Context, owner string, bundleID uint64) (*domain.Bundle, error)
	ListBundles(ctx context.Context, owner string) ([]domain.Bundle, error)
	// ListDueBundles returns every bundle whose interval gate would pass at the
	// given unix timestamp, for the scheduler's periodic scan.
	ListDueBundles(ctx context.Context, now int64) ([]domain.Bundle, error)

	// Payment methods
	// RecordPayment advances the bundle's last_paid marker and inserts the
	// payment row in one transaction, so history and gating state cannot drift.
	RecordPayment(ctx context.Context, payment *domain.Payment) error
	ListPayments(ctx context.Context, owner string, limit int) ([]domain.Payment, error)
}
