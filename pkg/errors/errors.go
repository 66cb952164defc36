// Package errors defines error types and utilities for the payment routing engine
package errors

import (
	"errors"
	"fmt"
)

// Common errors that can occur during payment routing and webhook ingestion
var (
	// ErrValidation is returned when a request is malformed and rejected
	// before any state is created
	ErrValidation = errors.New("validation failed")

	// ErrTransactionNotFound is returned when a transaction id is unknown
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrGatewayNotFound is returned when a gateway configuration is unknown
	ErrGatewayNotFound = errors.New("gateway not found")

	// ErrRiskBlocked is returned when a risk assessment forces a transaction
	// into BLOCKED before any gateway is contacted
	ErrRiskBlocked = errors.New("transaction blocked by risk assessment")

	// ErrNoEligibleGateway is returned when routing finds no gateway that
	// can carry the transaction
	ErrNoEligibleGateway = errors.New("no suitable gateway available")

	// ErrGatewayFailure is returned when a gateway submission fails
	ErrGatewayFailure = errors.New("gateway submission failed")

	// ErrRetryExhausted is returned when a retry is requested for a
	// transaction that already used its retry budget
	ErrRetryExhausted = errors.New("retry limit reached")

	// ErrNotRetryable is returned when a retry is requested for a
	// transaction that is not in a retryable state
	ErrNotRetryable = errors.New("transaction cannot be retried")

	// ErrSignatureInvalid is returned when a webhook signature does not
	// match the expected value for the configured secret
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrEventNotFound is returned when a webhook event id is unknown
	ErrEventNotFound = errors.New("webhook event not found")

	// ErrDuplicateEvent is returned when a webhook event id was already
	// processed to completion
	ErrDuplicateEvent = errors.New("webhook event already processed")

	// ErrInvalidTransition is returned when a state transition violates the
	// transaction state machine
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrQueueClosed is returned when an event is enqueued after shutdown
	ErrQueueClosed = errors.New("queue closed")
)

// EngineError represents a detailed error with operation context
type EngineError struct {
	Op      string         // Operation that failed
	Entity  string         // Entity id involved (transaction, event, gateway)
	Err     error          // Underlying error
	Context map[string]any // Additional context
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("routepay: %s failed for %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("routepay: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *EngineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new EngineError
func NewError(op, entity string, err error) *EngineError {
	return &EngineError{
		Op:     op,
		Entity: entity,
		Err:    err,
	}
}

// NewErrorWithContext creates a new EngineError with context
func NewErrorWithContext(op, entity string, err error, context map[string]any) *EngineError {
	return &EngineError{
		Op:      op,
		Entity:  entity,
		Err:     err,
		Context: context,
	}
}

// IsValidation checks if an error indicates a malformed request
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRiskBlocked checks if an error indicates a risk block
func IsRiskBlocked(err error) bool {
	return errors.Is(err, ErrRiskBlocked)
}

// IsNoEligibleGateway checks if an error indicates routing found nothing
func IsNoEligibleGateway(err error) bool {
	return errors.Is(err, ErrNoEligibleGateway)
}

// IsSignatureInvalid checks if an error indicates a rejected webhook
func IsSignatureInvalid(err error) bool {
	return errors.Is(err, ErrSignatureInvalid)
}

// IsNotFound checks if an error indicates a missing transaction or event
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrGatewayNotFound)
}
