package auth

import "fmt"

// UnauthorizedError indicates the caller lacks the role a call requires.
type UnauthorizedError struct {
	Role string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("caller must be %s", e.Role)
}

// StateError indicates an entity is not in a state that permits the call.
type StateError struct {
	Entity string
	From   string
	Reason string
}

func (e StateError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("%s in state %s: %s", e.Entity, e.From, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

// ArgumentError indicates a structurally invalid input.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InsufficientFundsError indicates a withdrawal or payment exceeds the
// treasury balance.
type InsufficientFundsError struct {
	Balance   int64
	Requested int64
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, requested %d", e.Balance, e.Requested)
}

// DownstreamError indicates a gate-dispatched call failed after the operation
// was marked executed; the transaction carrying both is rolled back.
type DownstreamError struct {
	Op  string
	Err error
}

func (e DownstreamError) Error() string {
	return fmt.Sprintf("downstream call %s failed: %v", e.Op, e.Err)
}

func (e DownstreamError) Unwrap() error { return e.Err }
