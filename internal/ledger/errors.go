package ledger

import (
	"errors"
	"fmt"
	"math/big"
)

// AuthorizationError means the caller does not hold the role required for
// the target field. The message names the role class that was checked,
// never the role that would have succeeded.
type AuthorizationError struct {
	msg string
}

func (e *AuthorizationError) Error() string { return e.msg }

// Role-check failures carry the protocol's canonical diagnostics.
var (
	ErrOnlyPlatform     = &AuthorizationError{msg: "Only Platform"}
	ErrNotAdministrator = &AuthorizationError{msg: "Caller is not the Administrator"}
	ErrNotGovernance    = &AuthorizationError{msg: "Caller is not the Governance Contract"}
	ErrNotBridge        = &AuthorizationError{msg: "Caller is not the Bridge"}
)

// ErrPaused is returned when a Platform-level mutation arrives while the
// ledger is paused. Distinct from the authorization outcome so that a
// correctly-authorized caller can tell the two apart.
var ErrPaused = errors.New("Contract paused, aborting")

// InsufficientBalanceError means a burn would take a balance negative.
type InsufficientBalanceError struct {
	Addr    Address
	Balance *big.Int
	Amount  *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: have %s, burn %s",
		e.Addr.Hex(), e.Balance.String(), e.Amount.String())
}

// RangeError means a configuration value falls outside its accepted domain.
type RangeError struct {
	Field string
	Value string
	Max   string
}

func (e *RangeError) Error() string {
	if e.Max != "" {
		return fmt.Sprintf("%s out of range: %s exceeds maximum %s", e.Field, e.Value, e.Max)
	}
	return fmt.Sprintf("%s out of range: %s", e.Field, e.Value)
}

// IsAuthorization reports whether err is a role-check failure.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsInsufficientBalance reports whether err is a balance underflow.
func IsInsufficientBalance(err error) bool {
	var ie *InsufficientBalanceError
	return errors.As(err, &ie)
}

// IsRange reports whether err is a domain violation on a config value.
func IsRange(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}
