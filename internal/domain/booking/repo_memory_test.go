package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/genelab/dnabooking/internal/domain/catalog"
)

func memRecord(code, customer string, created time.Time) *Record {
	return &Record{
		Draft:       Draft{CustomerID: customer, ServiceType: catalog.NonLegal, PaymentMethod: PaymentCash},
		PaymentCode: code,
		Status:      StatusSubmitted,
		CreatedAt:   created,
	}
}

func TestMemoryRepo_CreateAndGet(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	r := memRecord("DNAAAAAAAAA", "c1", testNow)
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if r.ID == uuid.Nil {
		t.Fatal("expected id")
	}

	got, err := repo.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	got.Status = StatusCancelled
	again, _ := repo.GetByID(ctx, r.ID)
	if again.Status != StatusSubmitted {
		t.Error("returned records must be copies")
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByPaymentCode(ctx, "DNAZZZZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepo_DuplicatePaymentCode(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, memRecord("DNAAAAAAAAA", "c1", testNow)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	err := repo.Create(ctx, memRecord("DNAAAAAAAAA", "c2", testNow))
	if !errors.Is(err, ErrDuplicatePaymentCode) {
		t.Errorf("expected ErrDuplicatePaymentCode, got %v", err)
	}
}

func TestMemoryRepo_ListPagination(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		customer := "c1"
		if i%2 == 1 {
			customer = "c2"
		}
		r := memRecord(fmt.Sprintf("DNA%08d", i), customer, testNow.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	items, total, err := repo.List(ctx, nil, 2, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(items), total)
	}
	if items[0].PaymentCode != "DNA00000004" {
		t.Errorf("expected newest first, got %s", items[0].PaymentCode)
	}

	items, total, _ = repo.ListByCustomer(ctx, "c1", 10, 0)
	if total != 3 || len(items) != 3 {
		t.Errorf("expected 3 bookings for c1, got %d", total)
	}

	items, _, _ = repo.List(ctx, nil, 10, 10)
	if len(items) != 0 {
		t.Errorf("expected empty page, got %d", len(items))
	}

	_, total, _ = repo.List(ctx, map[string]string{"payment_method": "bank-transfer"}, 10, 0)
	if total != 0 {
		t.Errorf("expected no bank transfers, got %d", total)
	}
}
