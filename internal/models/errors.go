package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username taken")
	ErrBadCredential     = errors.New("incorrect password")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidSort       = errors.New("invalid sort field")
	ErrInvalidPagination = errors.New("invalid pagination")
	ErrEmptySearch       = errors.New("search string is required")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrCartConflict      = errors.New("cart was modified concurrently")
	ErrDuplicateRequest  = errors.New("duplicate request in progress")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError carries the product identity and what is left.
type InsufficientStockError struct {
	ProductID int64
	Title     string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("only %d left for %s", e.Available, e.Title)
	}
	return fmt.Sprintf("only %d items left in stock for product %d", e.Available, e.ProductID)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidSortError reports a sort key outside the allow-list.
type InvalidSortError struct {
	Field   string
	Allowed []string
}

func (e *InvalidSortError) Error() string {
	return fmt.Sprintf("invalid sort field '%s'. Allowed: [%s]", e.Field, strings.Join(e.Allowed, ", "))
}

func (e *InvalidSortError) Is(target error) bool { return target == ErrInvalidSort }
