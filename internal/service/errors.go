package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/pricing"
)

var (
	ErrSaleNotFound = errors.New("sale not found")
	ErrSaleVoided   = errors.New("sale is voided")
	// ErrApprovalRequired is returned when a trade-in exceeds the sale total
	// and the caller did not supply an approval they are allowed to give.
	ErrApprovalRequired = errors.New("net-negative sale requires manager approval")
)

// ValidationError carries one reason per offending field. It is raised
// before anything is persisted.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// fromPricing converts a calculator rejection into a ValidationError and
// passes any other error through. The calculator names cart lines
// "lines[i]"; linePrefix renames them to the caller's field.
func fromPricing(err error, linePrefix string) error {
	var fe *pricing.FieldError
	if errors.As(err, &fe) {
		field := fe.Field
		if linePrefix != "" && strings.HasPrefix(field, "lines[") {
			field = linePrefix + strings.TrimPrefix(field, "lines")
		}
		return invalid(field, fe.Reason)
	}
	return err
}

type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

// ConcurrentModificationError means the sale changed after the caller read
// it. Nothing was written; reload and retry.
type ConcurrentModificationError struct {
	SaleID int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("sale %d was modified by another session", e.SaleID)
}

type PermissionError struct {
	Capability authz.Capability
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("missing capability %s", e.Capability)
}

// CommitFailure wraps anything that went wrong once the commit transaction
// had begun. The transaction has been rolled back.
type CommitFailure struct {
	Err error
}

func (e *CommitFailure) Error() string { return "commit failed: " + e.Err.Error() }

func (e *CommitFailure) Unwrap() error { return e.Err }

func require(a authz.Authorizer, actor authz.Actor, c authz.Capability) error {
	if !a.Can(actor, c) {
		return &PermissionError{Capability: c}
	}
	return nil
}
