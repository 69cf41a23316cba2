package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestProductNotFoundError_Is(t *testing.T) {
	err := fmt.Errorf("resolve products: %w", &ProductNotFoundError{ProductID: "P9"})

	if !errors.Is(err, ErrProductNotFound) {
		t.Fatal("expected errors.Is to match ErrProductNotFound")
	}

	var pnf *ProductNotFoundError
	if !errors.As(err, &pnf) {
		t.Fatal("expected errors.As to extract ProductNotFoundError")
	}
	if pnf.ProductID != "P9" {
		t.Fatalf("expected product id P9, got %s", pnf.ProductID)
	}
}

func TestInsufficientStockError_Is(t *testing.T) {
	err := fmt.Errorf("reserve stock: %w", &InsufficientStockError{
		ProductID: "P1",
		Requested: 5,
		Available: 2,
	})

	if !IsInsufficientStock(err) {
		t.Fatal("expected IsInsufficientStock to match")
	}

	var ise *InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatal("expected errors.As to extract InsufficientStockError")
	}
	if ise.Requested != 5 || ise.Available != 2 {
		t.Fatalf("unexpected error payload: %+v", ise)
	}
}

func TestIsStockConflict(t *testing.T) {
	wrapped := fmt.Errorf("update quantities: %w", ErrStockConflict)

	if !IsStockConflict(wrapped) {
		t.Fatal("expected IsStockConflict to match wrapped error")
	}
	if IsStockConflict(ErrInsufficientStock) {
		t.Fatal("IsStockConflict should not match unrelated error")
	}
}

func TestIdempotencyStatusValid(t *testing.T) {
	for _, status := range []IdempotencyStatus{
		IdempotencyStatusProcessing,
		IdempotencyStatusDone,
		IdempotencyStatusFailed,
	} {
		if !status.Valid() {
			t.Fatalf("expected status %s to be valid", status)
		}
	}
	if IdempotencyStatus("unknown").Valid() {
		t.Fatal("unexpected valid status")
	}
}
