/**
 * @description
 * Event payloads published to RabbitMQ after trigger attempts. Downstream
 * consumers (notifications, analytics) subscribe to these on the bundl.events
 * topic exchange.
 */
package domain

// PaymentExecutedPayload is published on routing key "payment.executed".
type PaymentExecutedPayload struct {
	Owner            string `json:"owner"`
	BundleID         uint64 `json:"bundle_id"`
	Amount           int64  `json:"amount"`
	RecipientAccount string `json:"recipient_account"`
	ExecutedAt       int64  `json:"executed_at"`
}

// PaymentFailedPayload is published on routing key "payment.failed" when a
// trigger attempt fails one of the gates or the ledger transfer itself.
type PaymentFailedPayload struct {
	Owner    string `json:"owner"`
	BundleID uint64 `json:"bundle_id"`
	Reason   string `json:"reason"`
}
