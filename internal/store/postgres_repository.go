/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL for the controllers, bundles and payments
 * tables.
 *
 * Schema (managed by migrations):
 *   controllers(owner PK, bundle_counter, funding_account, mint)
 *   bundles(owner, bundle_id, amount_per_interval, interval_seconds,
 *           recipient_account, last_paid, PRIMARY KEY (owner, bundle_id))
 *   payments(id PK, owner, bundle_id, amount, recipient_account, executed_at)
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BlockApex/bundl-controller-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetController retrieves the controller record for an owner.
func (r *PostgresRepository) GetController(ctx context.Context, owner string) (*domain.Controller, error) {
	var c domain.Controller
	query := `
        SELECT owner, bundle_counter, funding_account, mint
        FROM controllers
        WHERE owner = $1
    `
	err := r.db.QueryRow(ctx, query, owner).Scan(&c.Owner, &c.BundleCounter, &c.FundingAccount, &c.Mint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrControllerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateControllerIfAbsent inserts a new controller or returns the existing one.
// ON CONFLICT DO NOTHING paired with a follow-up read keeps re-initialization
// idempotent without ever overwriting an existing record's counter.
func (r *PostgresRepository) CreateControllerIfAbsent(ctx context.Context, c *domain.Controller) (*domain.Controller, error) {
	query := `
        INSERT INTO controllers (owner, bundle_counter, funding_account, mint)
        VALUES ($1, 0, $2, $3)
        ON CONFLICT (owner) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, query, c.Owner, c.FundingAccount, c.Mint); err != nil {
		return nil, err
	}
	return r.GetController(ctx, c.Owner)
}

// CreateBundle creates a bundle with the controller's current counter value as
// its id, then increments the counter. The controller row is locked FOR UPDATE
// so two concurrent AddBundle calls cannot be assigned the same id.
func (r *PostgresRepository) CreateBundle(ctx context.Context, owner string, amountPerInterval, intervalSeconds int64, recipientAccount string) (*domain.Bundle, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var counter uint64
	err = tx.QueryRow(ctx, `SELECT bundle_counter FROM controllers WHERE owner = $1 FOR UPDATE`, owner).Scan(&counter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrControllerNotFound
		}
		return nil, err
	}

	bundle := &domain.Bundle{
		Owner:             owner,
		BundleID:          counter,
		AmountPerInterval: amountPerInterval,
		IntervalSeconds:   intervalSeconds,
		RecipientAccount:  recipientAccount,
		LastPaid:          0,
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO bundles (owner, bundle_id, amount_per_interval, interval_seconds, recipient_account, last_paid)
        VALUES ($1, $2, $3, $4, $5, 0)
    `, bundle.Owner, bundle.BundleID, bundle.AmountPerInterval, bundle.IntervalSeconds, bundle.RecipientAccount)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE controllers SET bundle_counter = bundle_counter + 1 WHERE owner = $1`, owner)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return bundle, nil
}

// GetBundle retrieves a single bundle by its composite key.
func (r *PostgresRepository) GetBundle(ctx context.Context, owner string, bundleID uint64) (*domain.Bundle, error) {
	var b domain.Bundle
	query := `
        SELECT owner, bundle_id, amount_per_interval, interval_seconds, recipient_account, last_paid
        FROM bundles
        WHERE owner = $1 AND bundle_id = $2
    `
	err := r.db.QueryRow(ctx, query, owner, bundleID).Scan(
		&b.Owner, &b.BundleID, &b.AmountPerInterval, &b.IntervalSeconds, &b.RecipientAccount, &b.LastPaid,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBundleNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListBundles returns all bundles for an owner, oldest first.
func (r *PostgresRepository) ListBundles(ctx context.Context, owner string) ([]domain.Bundle, error) {
	query := `
        SELECT owner, bundle_id, amount_per_interval, interval_seconds, recipient_account, last_paid
        FROM bundles
        WHERE owner = $1
        ORDER BY bundle_id
    `
	rows, err := r.db.Query(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bundles []domain.Bundle
	for rows.Next() {
		var b domain.Bundle
		if err := rows.Scan(&b.Owner, &b.BundleID, &b.AmountPerInterval, &b.IntervalSeconds, &b.RecipientAccount, &b.LastPaid); err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, rows.Err()
}

// ListDueBundles returns every bundle whose interval has elapsed (or that has
// never paid) as of the given unix timestamp.
func (r *PostgresRepository) ListDueBundles(ctx context.Context, now int64) ([]domain.Bundle, error) {
	query := `
        SELECT owner, bundle_id, amount_per_interval, interval_seconds, recipient_account, last_paid
        FROM bundles
        WHERE last_paid = 0 OR last_paid + interval_seconds <= $1
        ORDER BY owner, bundle_id
    `
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bundles []domain.Bundle
	for rows.Next() {
		var b domain.Bundle
		if err := rows.Scan(&b.Owner, &b.BundleID, &b.AmountPerInterval, &b.IntervalSeconds, &b.RecipientAccount, &b.LastPaid); err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, rows.Err()
}

// RecordPayment advances the bundle's last_paid marker and writes the payment
// history row inside a single transaction.
func (r *PostgresRepository) RecordPayment(ctx context.Context, payment *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE bundles SET last_paid = $1 WHERE owner = $2 AND bundle_id = $3
    `, payment.ExecutedAt, payment.Owner, payment.BundleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBundleNotFound
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO payments (id, owner, bundle_id, amount, recipient_account, executed_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, payment.ID, payment.Owner, payment.BundleID, payment.Amount, payment.RecipientAccount, payment.ExecutedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListPayments returns the most recent payments for an owner.
func (r *PostgresRepository) ListPayments(ctx context.Context, owner string, limit int) ([]domain.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
        SELECT id, owner, bundle_id, amount, recipient_account, executed_at
        FROM payments
        WHERE owner = $1
        ORDER BY executed_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.Owner, &p.BundleID, &p.Amount, &p.RecipientAccount, &p.ExecutedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
