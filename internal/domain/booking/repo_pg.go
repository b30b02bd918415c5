package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const bookingCols = `id, customer_id, service_type, service, collection_method,
	transport_method, express, kit, appointment_date, time_slot, participants,
	cost_breakdown, total_cost, payment_method, payment_code, home_address,
	signature, signed_at, submitted_at, status, created_at`

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

func (r *repoPG) scan(row pgx.Row) (*Record, error) {
	var rec Record
	var service, method, kit, participants, breakdown []byte
	var apptDate *time.Time
	var slot *string
	err := row.Scan(&rec.ID, &rec.CustomerID, &rec.ServiceType, &service, &method,
		&rec.Transport, &rec.Express, &kit, &apptDate, &slot, &participants,
		&breakdown, &rec.TotalCost, &rec.PaymentMethod, &rec.PaymentCode, &rec.HomeAddress,
		&rec.Signature, &rec.SignedAt, &rec.SubmittedAt, &rec.Status, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst interface{}
	}{
		{service, &rec.Service},
		{method, &rec.CollectionMethod},
		{kit, &rec.Kit},
		{participants, &rec.Participants},
		{breakdown, &rec.CostBreakdown},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode booking %s: %w", rec.ID, err)
		}
	}
	rec.AppointmentDate, rec.TimeSlot = fromAppointmentColumns(apptDate, slot)
	return &rec, nil
}

// appointmentColumns maps the draft's appointment to the nullable
// appointment_date and time_slot columns. Postal bookings store NULL in both.
func appointmentColumns(d *Draft) (*time.Time, *string, error) {
	var date *time.Time
	if d.AppointmentDate != nil && *d.AppointmentDate != "" {
		t, err := time.Parse(DateLayout, *d.AppointmentDate)
		if err != nil {
			return nil, nil, fmt.Errorf("appointment date: %w", err)
		}
		date = &t
	}
	var slot *string
	if d.TimeSlot != nil && *d.TimeSlot != "" {
		s := *d.TimeSlot
		slot = &s
	}
	return date, slot, nil
}

// fromAppointmentColumns is the inverse of appointmentColumns. Empty slots
// written before the column became nullable read back as nil.
func fromAppointmentColumns(date *time.Time, slot *string) (*string, *string) {
	var d, s *string
	if date != nil {
		v := date.Format(DateLayout)
		d = &v
	}
	if slot != nil && *slot != "" {
		v := *slot
		s = &v
	}
	return d, s
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	apptDate, slot, err := appointmentColumns(&rec.Draft)
	if err != nil {
		return err
	}
	enc := func(v interface{}) []byte {
		b, _ := json.Marshal(v)
		return b
	}

	id := uuid.New()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO bookings (id, customer_id, service_type, service, collection_method,
			transport_method, express, kit, appointment_date, time_slot, participants,
			cost_breakdown, total_cost, payment_method, payment_code, home_address,
			signature, signed_at, submitted_at, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		id, rec.CustomerID, rec.ServiceType, enc(rec.Service), enc(rec.CollectionMethod),
		rec.Transport, rec.Express, enc(rec.Kit), apptDate, slot, enc(rec.Participants),
		enc(rec.CostBreakdown), rec.TotalCost, rec.PaymentMethod, rec.PaymentCode, rec.HomeAddress,
		rec.Signature, rec.SignedAt, rec.SubmittedAt, rec.Status, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicatePaymentCode, rec.PaymentCode)
		}
		return err
	}
	rec.ID = id
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
}

func (r *repoPG) GetByPaymentCode(ctx context.Context, code string) (*Record, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE payment_code = $1`, code))
}

func (r *repoPG) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*Record, int, error) {
	return r.List(ctx, map[string]string{"customer_id": customerID}, limit, offset)
}

var searchColumns = map[string]string{
	"customer_id":      "customer_id",
	"service_type":     "service_type",
	"status":           "status",
	"payment_method":   "payment_method",
	"appointment_date": "appointment_date",
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Record, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	idx := 1
	for key, col := range searchColumns {
		v, ok := params[key]
		if !ok || v == "" {
			continue
		}
		if key == "appointment_date" {
			d, err := time.Parse(DateLayout, v)
			if err != nil {
				return nil, 0, fmt.Errorf("appointment_date: %w", err)
			}
			args = append(args, d)
		} else {
			args = append(args, v)
		}
		where = append(where, fmt.Sprintf("%s = $%d", col, idx))
		idx++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingCols, cond, idx, idx+1)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
