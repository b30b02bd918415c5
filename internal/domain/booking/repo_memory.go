package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewMemoryRepo returns a Repository kept in process memory, used when the
// server runs without PostgreSQL and in tests.
func NewMemoryRepo() Repository {
	return &memoryRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *memoryRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.PaymentCode == r.PaymentCode {
			return fmt.Errorf("%w: %s", ErrDuplicatePaymentCode, r.PaymentCode)
		}
	}
	r.ID = uuid.New()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) GetByPaymentCode(_ context.Context, code string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.PaymentCode == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*Record, int, error) {
	return m.List(ctx, map[string]string{"customer_id": customerID}, limit, offset)
}

func (m *memoryRepo) List(_ context.Context, params map[string]string, limit, offset int) ([]*Record, int, error) {
	m.mu.RLock()
	var matched []*Record
	for _, r := range m.records {
		if matches(r, params) {
			cp := *r
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if offset >= total {
		return []*Record{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func matches(r *Record, params map[string]string) bool {
	for k, v := range params {
		if v == "" {
			continue
		}
		switch k {
		case "customer_id":
			if r.CustomerID != v {
				return false
			}
		case "service_type":
			if string(r.ServiceType) != v {
				return false
			}
		case "status":
			if r.Status != v {
				return false
			}
		case "payment_method":
			if string(r.PaymentMethod) != v {
				return false
			}
		case "appointment_date":
			if r.AppointmentDate == nil || *r.AppointmentDate != v {
				return false
			}
		}
	}
	return true
}
