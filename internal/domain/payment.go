/**
 * @description
 * This file defines the Payment domain model. One row is recorded for every
 * successful trigger, in the same database transaction that advances the
 * bundle's last-paid marker.
 */
package domain

import "github.com/google/uuid"

// Payment is the durable record of one executed recurring payment.
type Payment struct {
	ID               uuid.UUID `json:"id"`
	Owner            string    `json:"owner"`
	BundleID         uint64    `json:"bundle_id"`
	Amount           int64     `json:"amount"`
	RecipientAccount string    `json:"recipient_account"`
	ExecutedAt       int64     `json:"executed_at"`
}
