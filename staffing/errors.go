/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Services convert every failure into an *Error carrying one of the Codes
  below before it leaves their boundary; storage errors never escape raw.

ERROR CATEGORIES:
  1. Validation errors - field-level input problems (VALIDATION_ERROR)
  2. Business rule errors - conflicts, missing salary, double settlement
  3. Referential errors - caregiver/order not found
  4. Server errors - anything unexpected (SERVER_ERROR)

USAGE:
  if errors.Is(err, staffing.ErrSchedulingConflict) { ... }

  e := staffing.AsError(err)
  log(e.Code, e.Message)

SEE ALSO:
  - orders/service.go: Wraps failures at the operation boundary
  - api/handlers.go: Maps codes to HTTP status
*/
package staffing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// CODES - Stable identifiers surfaced to callers
// =============================================================================

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeSchedulingConflict  Code = "SCHEDULING_CONFLICT"
	CodeCaregiverNotFound   Code = "CAREGIVER_NOT_FOUND"
	CodeOrderNotFound       Code = "ORDER_NOT_FOUND"
	CodeMissingSalaryConfig Code = "MISSING_SALARY_CONFIG"
	CodeAlreadySettled      Code = "ALREADY_SETTLED"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeServer              Code = "SERVER_ERROR"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrSchedulingConflict  = errors.New("scheduling conflict")
	ErrCaregiverNotFound   = errors.New("caregiver not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrMissingSalaryConfig = errors.New("missing salary configuration")
	ErrAlreadySettled      = errors.New("month already settled for order")
	ErrInvalidTransition   = errors.New("invalid order status transition")
)

var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrValidation, CodeValidation},
	{ErrSchedulingConflict, CodeSchedulingConflict},
	{ErrCaregiverNotFound, CodeCaregiverNotFound},
	{ErrOrderNotFound, CodeOrderNotFound},
	{ErrMissingSalaryConfig, CodeMissingSalaryConfig},
	{ErrAlreadySettled, CodeAlreadySettled},
	{ErrInvalidTransition, CodeInvalidTransition},
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Error is the boundary error returned by every service operation.
type Error struct {
	Code    Code
	Message string
	Fields  map[string][]string // only for VALIDATION_ERROR
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationErrors collects field-level messages.
type ValidationErrors map[string][]string

func (v ValidationErrors) Add(field, msg string) { v[field] = append(v[field], msg) }

func (v ValidationErrors) Empty() bool { return len(v) == 0 }

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v[k], ", "))
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error { return ErrValidation }

// ConflictError names the order that already occupies the requested days.
type ConflictError struct {
	CaregiverName string
	Existing      Period
	OrderNo       string
}

func (e *ConflictError) Error() string {
	suffix := e.OrderNo
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("caregiver %s already has an order from %s to %s (order ...%s)",
		e.CaregiverName, e.Existing.Start, e.Existing.End, suffix)
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }

// MissingSalaryError names the caregiver without a usable rate.
type MissingSalaryError struct {
	CaregiverName string
}

func (e *MissingSalaryError) Error() string {
	if e.CaregiverName == "" {
		return "no daily or monthly salary configured"
	}
	return fmt.Sprintf("caregiver %s has no daily or monthly salary configured", e.CaregiverName)
}

func (e *MissingSalaryError) Unwrap() error { return ErrMissingSalaryConfig }

// AlreadySettledError is returned when a month is settled twice for an order.
type AlreadySettledError struct {
	OrderNo string
	Month   Month
}

func (e *AlreadySettledError) Error() string {
	if e.OrderNo == "" {
		return fmt.Sprintf("month %s is already settled", e.Month)
	}
	return fmt.Sprintf("order %s is already settled for %s", e.OrderNo, e.Month)
}

func (e *AlreadySettledError) Unwrap() error { return ErrAlreadySettled }

// TransitionError describes a rejected status change.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// CodeOf maps any error to its Code. Unknown errors are SERVER_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return CodeServer
}

// AsError converts err into a boundary *Error. Server errors get a generic
// message; the cause stays available through Unwrap for logging.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	code := CodeOf(err)
	out := &Error{Code: code, Message: err.Error(), Err: err}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		out.Message = "invalid input"
		out.Fields = verrs
	}
	if code == CodeServer {
		out.Message = "internal server error"
	}
	return out
}

// IsClientError returns true if the error is due to invalid client input
// or a business rule the caller can act on.
func IsClientError(err error) bool {
	return err != nil && CodeOf(err) != CodeServer
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	c := CodeOf(err)
	return c == CodeOrderNotFound || c == CodeCaregiverNotFound
}

// IsConflict returns true for errors caused by existing state.
func IsConflict(err error) bool {
	c := CodeOf(err)
	return c == CodeSchedulingConflict || c == CodeAlreadySettled || c == CodeInvalidTransition
}
