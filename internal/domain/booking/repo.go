package booking

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByPaymentCode(ctx context.Context, code string) (*Record, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*Record, int, error)
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Record, int, error)
}
