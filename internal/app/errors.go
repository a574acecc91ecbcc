/**
 * @description
 * Sentinel errors for the authorization engine. Every failure path names the
 * invariant that was violated; handlers and callers branch on these with
 * errors.Is.
 */
package app

import "errors"

var (
	// ErrInvalidDelegate means the funding account has not designated this
	// controller as its delegate. Setup-time misconfiguration.
	ErrInvalidDelegate = errors.New("funding account delegate is not the controller")

	// ErrLowAllowance means the delegated allowance is below the funding
	// account's current balance at initialization time.
	ErrLowAllowance = errors.New("delegated allowance is below the account balance")

	// ErrUnauthorized means the trigger caller is not a configured trigger
	// authority. Callers should stop retrying until reconfigured.
	ErrUnauthorized = errors.New("caller is not a trigger authority")

	// ErrIntervalNotPassed means the bundle's interval has not yet elapsed
	// since the last successful payment. Expected steady-state outcome for a
	// scheduler that polls faster than the interval; retry on a later tick.
	ErrIntervalNotPassed = errors.New("required interval has not passed since the last payment")

	// ErrInsufficientFunds means the funding account balance is below the
	// bundle's per-interval amount. Recoverable once the account is funded.
	ErrInsufficientFunds = errors.New("insufficient funds in the funding account")

	// ErrTriggerInFlight means another trigger for the same bundle currently
	// holds the execution lock.
	ErrTriggerInFlight = errors.New("a trigger for this bundle is already in flight")
)
