package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/genelab/dnabooking/internal/domain/catalog"
	"github.com/genelab/dnabooking/internal/domain/pricing"
	"github.com/genelab/dnabooking/internal/domain/relationship"
)

// DateLayout is the ISO date format used for appointment dates and birth
// dates on the wire.
const DateLayout = "2006-01-02"

// PaymentMethod is how the customer settles the booking.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank-transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool { return m == PaymentCash || m == PaymentBankTransfer }

// Label is the human readable name.
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCash:
		return "Cash"
	case PaymentBankTransfer:
		return "Bank transfer"
	}
	return string(m)
}

// Record statuses.
const (
	StatusSubmitted = "submitted"
	StatusCancelled = "cancelled"
)

// Participant is one of the two test subjects. Phone and email are only
// collected for the representative (participant 1).
type Participant struct {
	FullName     string              `json:"full_name"`
	DateOfBirth  string              `json:"date_of_birth,omitempty"`
	Gender       relationship.Gender `json:"gender"`
	Phone        string              `json:"phone,omitempty"`
	Email        string              `json:"email,omitempty"`
	Relationship relationship.Label  `json:"relationship"`
	SampleType   string              `json:"sample_type"`
	NationalID   string              `json:"national_id,omitempty"`
}

// FormState is a serialisable snapshot of every wizard field. It is what
// clients post and what FormFromState replays into a Form.
type FormState struct {
	ServiceType      catalog.ServiceType     `json:"service_type"`
	ServiceID        string                  `json:"service_id"`
	CollectionMethod string                  `json:"collection_method"`
	Transport        pricing.TransportMethod `json:"transport_method"`
	Express          bool                    `json:"express"`
	KitID            string                  `json:"kit_id"`
	AppointmentDate  string                  `json:"appointment_date,omitempty"`
	TimeSlot         string                  `json:"time_slot,omitempty"`
	HomeAddress      string                  `json:"home_address,omitempty"`
	PaymentMethod    PaymentMethod           `json:"payment_method,omitempty"`
	Participants     [2]Participant          `json:"participants"`
}

// Draft is a fully validated booking, produced by Form.Submit. It references
// catalog entries by copy so later catalog reloads do not change it.
type Draft struct {
	CustomerID       string                   `json:"customer_id"`
	ServiceType      catalog.ServiceType      `json:"service_type"`
	Service          catalog.ServiceEntry     `json:"service"`
	CollectionMethod catalog.CollectionMethod `json:"collection_method"`
	Transport        pricing.TransportMethod  `json:"transport_method"`
	Express          bool                     `json:"express"`
	Kit              catalog.Kit              `json:"kit"`
	AppointmentDate  *string                  `json:"appointment_date"`
	TimeSlot         *string                  `json:"time_slot"`
	Participants     [2]Participant           `json:"participants"`
	CostBreakdown    pricing.Breakdown        `json:"cost_breakdown"`
	TotalCost        int64                    `json:"total_cost"`
	PaymentMethod    PaymentMethod            `json:"payment_method,omitempty"`
	HomeAddress      string                   `json:"home_address,omitempty"`
}

// IsPostal reports whether the sample is sent by post, in which case the
// draft carries no appointment.
func (d *Draft) IsPostal() bool { return d.Transport == pricing.TransportPostalDelivery }

// State returns the form state the draft was built from, for editing.
func (d *Draft) State() FormState {
	st := FormState{
		ServiceType:      d.ServiceType,
		ServiceID:        d.Service.ID,
		CollectionMethod: d.CollectionMethod.Name,
		Transport:        d.Transport,
		Express:          d.Express,
		KitID:            d.Kit.ID,
		HomeAddress:      d.HomeAddress,
		PaymentMethod:    d.PaymentMethod,
		Participants:     d.Participants,
	}
	if d.AppointmentDate != nil {
		st.AppointmentDate = *d.AppointmentDate
	}
	if d.TimeSlot != nil {
		st.TimeSlot = *d.TimeSlot
	}
	return st
}

// Record is a finalized, submitted booking.
type Record struct {
	ID uuid.UUID `json:"id"`
	Draft
	PaymentCode string     `json:"payment_code"`
	Signature   string     `json:"signature,omitempty"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Finalize freezes a draft into a record ready for submission. The draft is
// copied so later edits to it do not leak into the record.
func Finalize(d *Draft, paymentCode string) *Record {
	cp := *d
	cp.CostBreakdown.Lines = append([]pricing.Line(nil), d.CostBreakdown.Lines...)
	return &Record{Draft: cp, PaymentCode: paymentCode}
}
