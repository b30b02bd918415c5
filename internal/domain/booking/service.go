package booking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/genelab/dnabooking/internal/domain/catalog"
	"github.com/genelab/dnabooking/internal/domain/pricing"
	"github.com/genelab/dnabooking/internal/platform/blobstore"
	"github.com/genelab/dnabooking/internal/platform/document"
	"github.com/genelab/dnabooking/internal/platform/events"
	"github.com/genelab/dnabooking/internal/platform/reminder"
)

// DefaultReminderLead is how long before the appointment the reminder fires.
const DefaultReminderLead = 24 * time.Hour

// postalReminderDelay is when customers who post their samples are reminded
// to send them.
const postalReminderDelay = 24 * time.Hour

// Deps wires the Service. Only Repo and Catalogs are required.
type Deps struct {
	Repo         Repository
	Catalogs     *catalog.Set
	Renderer     *document.Renderer
	Documents    blobstore.Store
	Publisher    events.Publisher
	Reminders    reminder.Scheduler
	Location     *time.Location
	ReminderLead time.Duration
	Now          func() time.Time
	Logger       zerolog.Logger
}

type Service struct {
	repo      Repository
	catalogs  *catalog.Set
	renderer  *document.Renderer
	documents blobstore.Store
	publisher events.Publisher
	reminders reminder.Scheduler
	loc       *time.Location
	lead      time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:      d.Repo,
		catalogs:  d.Catalogs,
		renderer:  d.Renderer,
		documents: d.Documents,
		publisher: d.Publisher,
		reminders: d.Reminders,
		loc:       d.Location,
		lead:      d.ReminderLead,
		now:       d.Now,
		logger:    d.Logger.With().Str("component", "booking").Logger(),
	}
	if s.renderer == nil {
		s.renderer = document.NewRenderer("", "")
	}
	if s.documents == nil {
		s.documents = blobstore.NewInMemoryBlobStore()
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.reminders == nil {
		s.reminders = reminder.Noop{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.lead <= 0 {
		s.lead = DefaultReminderLead
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Catalogs() *catalog.Set   { return s.catalogs }
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current time in the booking time zone.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// NewForm starts an empty wizard form.
func (s *Service) NewForm() *Form { return NewForm(s.catalogs, s.loc) }

// Form replays a client supplied state into a Form.
func (s *Service) Form(st FormState) *Form { return FormFromState(s.catalogs, s.loc, st) }

// Validate runs the full submission validation over st and returns the draft.
func (s *Service) Validate(st FormState) (*Draft, error) {
	return s.Form(st).Submit(s.Now())
}

// Quote prices st without validating it.
func (s *Service) Quote(st FormState) pricing.Breakdown { return s.Form(st).Quote() }

// DocumentInput maps a record to what the consent document prints.
func DocumentInput(rec *Record) document.Input {
	in := document.Input{
		PaymentCode:      rec.PaymentCode,
		PaymentMethod:    rec.PaymentMethod.Label(),
		ServiceName:      rec.Service.Name,
		Legal:            rec.ServiceType == catalog.Legal,
		CollectionMethod: rec.CollectionMethod.Name,
		Transport:        rec.Transport.Label(),
		PostalDelivery:   rec.IsPostal(),
		Express:          rec.Express,
		KitName:          rec.Kit.Name,
		HomeAddress:      rec.HomeAddress,
		CostLines:        rec.CostBreakdown.Lines,
		TotalCost:        rec.TotalCost,
		Signature:        rec.Signature,
	}
	if rec.AppointmentDate != nil {
		in.AppointmentDate = *rec.AppointmentDate
	}
	if rec.TimeSlot != nil {
		in.TimeSlot = *rec.TimeSlot
	}
	if rec.SignedAt != nil {
		in.SignedAt = *rec.SignedAt
	}
	for _, p := range rec.Participants {
		in.Participants = append(in.Participants, document.Person{
			FullName:     p.FullName,
			DateOfBirth:  p.DateOfBirth,
			Gender:       string(p.Gender),
			Relationship: string(p.Relationship),
			SampleType:   p.SampleType,
			NationalID:   p.NationalID,
			Phone:        p.Phone,
			Email:        p.Email,
		})
	}
	return in
}

// RenderDocument builds and renders the consent document for rec.
func (s *Service) RenderDocument(ctx context.Context, rec *Record) ([]byte, error) {
	def, err := document.Build(DocumentInput(rec))
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(ctx, def)
}

// Submit persists rec. rec is only updated once it has been stored, so a
// failed submission can be retried with the same record. The rendered
// document, when given, is kept for later download. Event publishing and
// notification scheduling are best effort.
func (s *Service) Submit(ctx context.Context, rec *Record, pdf []byte) error {
	if rec.PaymentCode == "" {
		return errors.New("payment code is required")
	}
	now := s.Now()
	cp := *rec
	cp.Status = StatusSubmitted
	cp.SubmittedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if err := s.repo.Create(ctx, &cp); err != nil {
		return fmt.Errorf("submit booking: %w", err)
	}
	*rec = cp

	log := s.logger.With().Str("booking_id", rec.ID.String()).Str("payment_code", rec.PaymentCode).Logger()
	log.Info().Int64("total_cost", rec.TotalCost).Msg("booking submitted")

	if len(pdf) > 0 {
		if err := s.storeDocument(ctx, rec, pdf); err != nil {
			log.Warn().Err(err).Msg("document not stored")
		}
	}
	if err := s.publisher.PublishJSON(ctx, events.KeyBookingSubmitted, submittedEvent(rec)); err != nil {
		log.Warn().Err(err).Msg("booking event not published")
	}
	s.schedule(ctx, rec, log)
	return nil
}

func (s *Service) storeDocument(ctx context.Context, rec *Record, pdf []byte) error {
	_, err := s.documents.Upload(ctx, blobstore.BlobMetadata{
		FileName:    document.FileName(rec.PaymentCode),
		ContentType: "application/pdf",
		BookingID:   rec.ID.String(),
		Category:    blobstore.CategoryConsentForm,
	}, bytes.NewReader(pdf))
	return err
}

func submittedEvent(rec *Record) events.BookingSubmitted {
	return events.BookingSubmitted{
		BookingID:       rec.ID.String(),
		PaymentCode:     rec.PaymentCode,
		CustomerID:      rec.CustomerID,
		ServiceType:     string(rec.ServiceType),
		ServiceID:       rec.Service.ID,
		ServiceName:     rec.Service.Name,
		PaymentMethod:   string(rec.PaymentMethod),
		TotalCost:       rec.TotalCost,
		AppointmentDate: rec.AppointmentDate,
		TimeSlot:        rec.TimeSlot,
		SubmittedAt:     rec.SubmittedAt,
	}
}

func (s *Service) schedule(ctx context.Context, rec *Record, log zerolog.Logger) {
	p := reminder.Payload{
		BookingID:   rec.ID.String(),
		PaymentCode: rec.PaymentCode,
		ServiceName: rec.Service.Name,
		FullName:    rec.Participants[0].FullName,
		Email:       rec.Participants[0].Email,
		Phone:       rec.Participants[0].Phone,
		Postal:      rec.IsPostal(),
		Total:       document.FormatVND(rec.TotalCost),
	}
	if rec.AppointmentDate != nil {
		p.AppointmentDate = *rec.AppointmentDate
	}
	if rec.TimeSlot != nil {
		p.TimeSlot = *rec.TimeSlot
	}
	if err := s.reminders.ScheduleConfirmation(ctx, p); err != nil {
		log.Warn().Err(err).Msg("confirmation not scheduled")
	}

	at, ok := s.reminderTime(rec)
	if !ok {
		return
	}
	if err := s.reminders.ScheduleReminder(ctx, p, at); err != nil {
		log.Warn().Err(err).Msg("reminder not scheduled")
		return
	}
	log.Debug().Time("fire_at", at).Msg("reminder scheduled")
}

// reminderTime returns when to remind the customer, or false when the
// reminder would already be due.
func (s *Service) reminderTime(rec *Record) (time.Time, bool) {
	now := s.Now()
	if rec.IsPostal() {
		return now.Add(postalReminderDelay), true
	}
	if rec.AppointmentDate == nil || rec.TimeSlot == nil {
		return time.Time{}, false
	}
	d, err := ParseDate(*rec.AppointmentDate, s.loc)
	if err != nil {
		return time.Time{}, false
	}
	slot, ok := LookupSlot(*rec.TimeSlot)
	if !ok {
		return time.Time{}, false
	}
	at := slot.StartOn(d).Add(-s.lead)
	if !at.After(now) {
		return time.Time{}, false
	}
	return at, true
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByPaymentCode(ctx context.Context, code string) (*Record, error) {
	return s.repo.GetByPaymentCode(ctx, code)
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Record, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByCustomer(ctx, customerID, limit, offset)
}

// Document returns the consent document of a submitted booking. The stored
// copy is served when present; otherwise the document is rendered again from
// the record and stored.
func (s *Service) Document(ctx context.Context, rec *Record) ([]byte, string, error) {
	name := document.FileName(rec.PaymentCode)
	if meta, err := s.documents.Latest(ctx, rec.ID.String(), blobstore.CategoryConsentForm); err == nil {
		data, _, err := blobstore.ReadAll(ctx, s.documents, meta.ID)
		if err == nil {
			return data, name, nil
		}
		s.logger.Warn().Err(err).Str("booking_id", rec.ID.String()).Msg("stored document unreadable, regenerating")
	}
	pdf, err := s.RenderDocument(ctx, rec)
	if err != nil {
		return nil, "", err
	}
	if err := s.storeDocument(ctx, rec, pdf); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", rec.ID.String()).Msg("document not stored")
	}
	return pdf, name, nil
}
