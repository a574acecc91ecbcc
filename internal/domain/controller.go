/**
 * @description
 * This file defines the core domain models for the bundl controller service.
 * A Controller is the per-user record that authorizes the service to spend from
 * the user's funding account on the token ledger, acting as its delegate.
 */
package domain

import "fmt"

// Controller represents a user's subscription controller record.
// All bundles created by the user hang off this record and draw from the
// same funding account via the same delegated allowance.
type Controller struct {
	Owner          string `json:"owner"`
	BundleCounter  uint64 `json:"bundle_counter"`
	FundingAccount string `json:"funding_account"`
	Mint           string `json:"mint"`
}

// DelegateID returns the ledger identity under which this controller acts as
// the funding account's delegate. The identity is derived deterministically
// from the owner so it is known before the controller record exists, which is
// what lets InitializeController verify the delegation up front.
func DelegateID(owner string) string {
	return fmt.Sprintf("controller:%s", owner)
}

// ControllerStatus is the API response shape for a controller, enriched with a
// live snapshot of the funding account read from the token ledger.
type ControllerStatus struct {
	Controller
	Balance   int64 `json:"balance"`
	Allowance int64 `json:"allowance"`
}
