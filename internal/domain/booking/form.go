// Package booking implements the booking wizard's form controller and the
// submission flow for finalized bookings.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/genelab/dnabooking/internal/domain/catalog"
	"github.com/genelab/dnabooking/internal/domain/pricing"
	"github.com/genelab/dnabooking/internal/domain/relationship"
)

var (
	ErrNoServiceType        = errors.New("select a service type first")
	ErrNoCollectionMethod   = errors.New("select a collection method first")
	ErrTransportUnavailable = errors.New("transport method is not available for this selection")
	ErrUnknownPayment       = errors.New("unknown payment method")
	ErrParticipantIndex     = errors.New("participant index must be 0 or 1")
)

var validate = validator.New()

// Form owns the state of one booking wizard. Setters keep dependent fields
// consistent; Submit runs the full validation and produces a Draft. A Form is
// not safe for concurrent use.
type Form struct {
	set *catalog.Set
	loc *time.Location

	state   FormState
	catalog *catalog.Catalog
	service *catalog.ServiceEntry
	method  *catalog.CollectionMethod
	kit     *catalog.Kit

	// selections rejected while replaying a FormState
	invalid ValidationErrors
}

// NewForm returns an empty form over the given catalogs. Dates are
// interpreted in loc.
func NewForm(set *catalog.Set, loc *time.Location) *Form {
	if loc == nil {
		loc = time.UTC
	}
	return &Form{set: set, loc: loc}
}

// FormFromState replays a snapshot into a new Form. Selections that no longer
// resolve against the catalogs are dropped and reported by Submit. Unlike the
// interactive setters, replay never fills in a transport the state left empty.
func FormFromState(set *catalog.Set, loc *time.Location, st FormState) *Form {
	f := NewForm(set, loc)
	if st.ServiceType != "" {
		f.reject("service_type", f.SetServiceType(st.ServiceType))
	}
	if st.ServiceID != "" && f.catalog != nil {
		f.reject("service", f.SelectService(st.ServiceID))
	}
	if st.CollectionMethod != "" && f.catalog != nil {
		f.reject("collection_method", f.SelectCollectionMethod(st.CollectionMethod))
	}
	f.SetExpress(st.Express)
	if st.Transport == "" && !st.Express {
		// a posted state must name its transport; Submit reports it missing
		f.state.Transport = ""
	}
	if st.Transport != "" && st.Transport != f.state.Transport && f.method != nil {
		f.reject("transport_method", f.SetTransport(st.Transport))
	}
	if st.KitID != "" {
		f.reject("kit", f.SetKit(st.KitID))
	}
	f.SetAppointment(st.AppointmentDate, st.TimeSlot)
	f.SetHomeAddress(st.HomeAddress)
	f.state.PaymentMethod = st.PaymentMethod
	for i, p := range st.Participants {
		f.reject(fmt.Sprintf("participants[%d]", i), f.SetParticipant(i, p))
	}
	return f
}

func (f *Form) reject(field string, err error) {
	if err != nil {
		f.invalid.add(field, err.Error())
	}
}

// State returns a snapshot of the current field values.
func (f *Form) State() FormState { return f.state }

// Location is the time zone appointment dates are read in.
func (f *Form) Location() *time.Location { return f.loc }

// Catalog returns the catalog of the selected service type, or nil.
func (f *Form) Catalog() *catalog.Catalog { return f.catalog }

// Kits lists the selectable kits.
func (f *Form) Kits() []catalog.Kit { return f.set.Kits }

// SampleTypes lists the selectable sample types.
func (f *Form) SampleTypes() []string { return f.set.SampleTypes }

// SetServiceType switches between the legal and non-legal catalogs. The
// selected service is cleared; the collection method is kept when the new
// catalog offers it.
func (f *Form) SetServiceType(t catalog.ServiceType) error {
	c, err := f.set.For(t)
	if err != nil {
		return err
	}
	f.state.ServiceType = t
	f.catalog = c
	f.service = nil
	f.state.ServiceID = ""
	if f.method != nil {
		if m, err := c.CollectionMethod(f.method.Name); err == nil {
			f.method = &m
		} else {
			f.method = nil
			f.state.CollectionMethod = ""
		}
	}
	f.normalizeTransport()
	f.resetRelationships()
	return nil
}

// SelectService picks a service from the current catalog and drops any
// relationship that is no longer valid for it.
func (f *Form) SelectService(id string) error {
	if f.catalog == nil {
		return ErrNoServiceType
	}
	s, err := f.catalog.Service(id)
	if err != nil {
		return err
	}
	f.service = &s
	f.state.ServiceID = s.ID
	f.resetRelationships()
	return nil
}

// SelectCollectionMethod picks a collection method and moves the transport to
// one the method allows.
func (f *Form) SelectCollectionMethod(name string) error {
	if f.catalog == nil {
		return ErrNoServiceType
	}
	m, err := f.catalog.CollectionMethod(name)
	if err != nil {
		return err
	}
	f.method = &m
	f.state.CollectionMethod = m.Name
	f.normalizeTransport()
	return nil
}

// SetTransport selects one of TransportOptions.
func (f *Form) SetTransport(t pricing.TransportMethod) error {
	if f.method == nil {
		return ErrNoCollectionMethod
	}
	if !containsTransport(f.TransportOptions(), t) {
		return fmt.Errorf("%w: %s", ErrTransportUnavailable, t)
	}
	f.state.Transport = t
	return nil
}

// SetExpress toggles express processing. Turning it on selects the express
// transport; turning it off restores the collection method's default.
func (f *Form) SetExpress(on bool) {
	f.state.Express = on
	if on {
		f.state.Transport = pricing.TransportExpress
		return
	}
	f.state.Transport = f.defaultTransport()
}

// SetKit selects the sample collection kit.
func (f *Form) SetKit(id string) error {
	k, err := f.set.Kit(id)
	if err != nil {
		return err
	}
	f.kit = &k
	f.state.KitID = k.ID
	return nil
}

// SetAppointment records the appointment date (YYYY-MM-DD) and slot label.
// Both are checked on Submit.
func (f *Form) SetAppointment(date, slot string) {
	f.state.AppointmentDate = strings.TrimSpace(date)
	f.state.TimeSlot = strings.TrimSpace(slot)
}

func (f *Form) SetHomeAddress(addr string) { f.state.HomeAddress = strings.TrimSpace(addr) }

// SetPaymentMethod records how the customer intends to pay.
func (f *Form) SetPaymentMethod(m PaymentMethod) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPayment, m)
	}
	f.state.PaymentMethod = m
	return nil
}

// SetParticipant replaces participant i (0 = representative). Changing the
// representative's relationship drops an incompatible participant 2
// relationship.
func (f *Form) SetParticipant(i int, p Participant) error {
	if i < 0 || i > 1 {
		return ErrParticipantIndex
	}
	p = trimParticipant(p)
	prev := f.state.Participants[0].Relationship
	f.state.Participants[i] = p
	if i == 0 && p.Relationship != prev {
		f.reconcileParticipant2()
		return nil
	}
	f.forceSampleType()
	return nil
}

// Participant1Options lists the relationships the representative may take for
// the selected service.
func (f *Form) Participant1Options() []relationship.Label {
	return relationship.Participant1Options(f.serviceName())
}

// Participant2Options lists the relationships that pair with the
// representative's.
func (f *Form) Participant2Options() []relationship.Label {
	return relationship.Participant2Options(f.serviceName(), f.state.Participants[0].Relationship)
}

// TransportOptions lists the transports allowed for the current collection
// method. Express is only offered while the express flag is set, which also
// hides postal delivery. Legal services are never sent by post.
func (f *Form) TransportOptions() []pricing.TransportMethod {
	if f.method == nil {
		return nil
	}
	var opts []pricing.TransportMethod
	if f.state.Express {
		opts = append(opts, pricing.TransportExpress)
	}
	if !f.method.IsHome() {
		return append(opts, pricing.TransportWalkIn)
	}
	opts = append(opts, pricing.TransportStaffCollection)
	if f.state.ServiceType != catalog.Legal && !f.state.Express {
		opts = append(opts, pricing.TransportPostalDelivery)
	}
	return opts
}

// SlotOptions returns the time slots for the selected date.
func (f *Form) SlotOptions(now time.Time) ([]SlotOption, error) {
	if f.state.AppointmentDate == "" {
		return nil, errors.New("select an appointment date first")
	}
	d, err := ParseDate(f.state.AppointmentDate, f.loc)
	if err != nil {
		return nil, err
	}
	return SlotAvailability(d, now), nil
}

// Quote returns the cost breakdown of the current selection.
func (f *Form) Quote() pricing.Breakdown { return pricing.BreakdownOf(f.pricingInput()) }

// Warnings reports problems the user should fix before submitting that do not
// block editing, such as a relationship that contradicts the gender.
func (f *Form) Warnings() []FieldError {
	var out []FieldError
	for i, p := range f.state.Participants {
		if p.Relationship == "" || p.Gender == "" {
			continue
		}
		if err := relationship.CheckGender(p.Relationship, p.Gender); err != nil {
			out = append(out, FieldError{Field: fmt.Sprintf("participants[%d].gender", i), Message: err.Error()})
		}
	}
	return out
}

// Submit validates every field and returns the resulting Draft, or
// ValidationErrors naming each failure.
func (f *Form) Submit(now time.Time) (*Draft, error) {
	now = now.In(f.loc)
	today := truncateDay(now)
	errs := append(ValidationErrors(nil), f.invalid...)

	if !f.state.ServiceType.Valid() && !errs.Has("service_type") {
		errs.add("service_type", "Please select a service type")
	}
	if f.service == nil && !errs.Has("service") {
		errs.add("service", "Please select a service")
	}
	if f.method == nil && !errs.Has("collection_method") {
		errs.add("collection_method", "Please select a collection method")
	}
	switch {
	case f.state.Transport == "":
		if !errs.Has("transport_method") {
			errs.add("transport_method", "Please select a transport method")
		}
	case f.method != nil && !containsTransport(f.TransportOptions(), f.state.Transport):
		errs.add("transport_method", fmt.Sprintf("Transport method %s is not available for this selection", f.state.Transport.Label()))
	}
	if f.kit == nil && !errs.Has("kit") {
		errs.add("kit", "Please select a kit type")
	}

	postal := f.state.Transport == pricing.TransportPostalDelivery
	var apptDate, apptSlot *string
	if !postal {
		apptDate, apptSlot = f.validateAppointment(&errs, now, today)
	}

	needsAddress := postal || (f.method != nil && f.method.IsHome())
	if needsAddress && f.state.HomeAddress == "" {
		errs.add("home_address", "Home address is required for home collection or postal delivery")
	}

	f.validateParticipants(&errs, today)

	if f.state.PaymentMethod != "" && !f.state.PaymentMethod.Valid() {
		errs.add("payment_method", fmt.Sprintf("Unknown payment method %q", f.state.PaymentMethod))
	}

	if len(errs) > 0 {
		return nil, errs
	}

	in := f.pricingInput()
	d := &Draft{
		ServiceType:      f.state.ServiceType,
		Service:          *f.service,
		CollectionMethod: *f.method,
		Transport:        f.state.Transport,
		Express:          f.state.Express,
		Kit:              *f.kit,
		AppointmentDate:  apptDate,
		TimeSlot:         apptSlot,
		Participants:     f.state.Participants,
		CostBreakdown:    pricing.BreakdownOf(in),
		TotalCost:        pricing.Calculate(in),
		PaymentMethod:    f.state.PaymentMethod,
		HomeAddress:      f.state.HomeAddress,
	}
	d.Participants[1].Phone = ""
	d.Participants[1].Email = ""
	return d, nil
}

func (f *Form) validateAppointment(errs *ValidationErrors, now, today time.Time) (*string, *string) {
	var day time.Time
	dateOK := false
	switch {
	case f.state.AppointmentDate == "":
		errs.add("appointment_date", "Please select an appointment date")
	default:
		d, err := ParseDate(f.state.AppointmentDate, f.loc)
		switch {
		case err != nil:
			errs.add("appointment_date", err.Error())
		case d.Before(today):
			errs.add("appointment_date", "Appointment date cannot be in the past")
		case d.Equal(today) && AllSlotsPast(d, now):
			errs.add("appointment_date", "All time slots for today have passed, please come back another day")
		default:
			day, dateOK = d, true
		}
	}

	var slot TimeSlot
	slotOK := false
	switch {
	case f.state.TimeSlot == "":
		errs.add("time_slot", "Please select a time slot")
	default:
		s, ok := LookupSlot(f.state.TimeSlot)
		switch {
		case !ok:
			errs.add("time_slot", fmt.Sprintf("Unknown time slot %q", f.state.TimeSlot))
		case dateOK && day.Equal(today) && !now.Before(s.StartOn(day)):
			errs.add("time_slot", "The selected time slot has already started, please choose a later one")
		default:
			slot, slotOK = s, true
		}
	}

	if !dateOK || !slotOK {
		return nil, nil
	}
	date := day.Format(DateLayout)
	label := slot.Label
	return &date, &label
}

func (f *Form) validateParticipants(errs *ValidationErrors, today time.Time) {
	for i, p := range f.state.Participants {
		prefix := fmt.Sprintf("participants[%d].", i)
		who := "Participant 2"
		if i == 0 {
			who = "Representative"
		}

		if p.FullName == "" {
			errs.add(prefix+"full_name", who+" full name is required")
		}
		switch p.Gender {
		case "":
			errs.add(prefix+"gender", who+" gender is required")
		case relationship.Male, relationship.Female, relationship.Other:
			if err := relationship.CheckGender(p.Relationship, p.Gender); err != nil {
				errs.add(prefix+"gender", err.Error())
			}
		default:
			errs.add(prefix+"gender", fmt.Sprintf("Unknown gender %q", p.Gender))
		}
		switch {
		case p.Relationship == "":
			errs.add(prefix+"relationship", who+" relationship is required")
		case !relationship.Known(p.Relationship):
			errs.add(prefix+"relationship", fmt.Sprintf("Unknown relationship %q", p.Relationship))
		}
		switch {
		case p.SampleType == "":
			errs.add(prefix+"sample_type", who+" sample type is required")
		case !f.set.HasSampleType(p.SampleType):
			errs.add(prefix+"sample_type", fmt.Sprintf("Unknown sample type %q", p.SampleType))
		}

		if i == 0 {
			if p.Email == "" {
				errs.add(prefix+"email", "Representative email is required")
			} else if err := validate.Var(p.Email, "email"); err != nil {
				errs.add(prefix+"email", fmt.Sprintf("Invalid email address %q", p.Email))
			}
			if p.NationalID == "" {
				errs.add(prefix+"national_id", "Representative national ID is required")
			}
		}

		f.validateBirthDate(errs, i, p, today)
	}

	p1, p2 := f.state.Participants[0], f.state.Participants[1]
	if f.service == nil || p1.Relationship == "" || p2.Relationship == "" ||
		!relationship.Known(p1.Relationship) || !relationship.Known(p2.Relationship) {
		return
	}
	if !containsLabel(f.Participant1Options(), p1.Relationship) {
		errs.add("participants[0].relationship",
			fmt.Sprintf("%s is not a valid relationship for %s", p1.Relationship, f.service.Name))
		return
	}
	if err := relationship.ValidPair(f.service.Name, p1.Relationship, p2.Relationship); err != nil {
		errs.add("participants[1].relationship", err.Error())
		return
	}
	if forced, ok := relationship.ForcedSampleType(f.service.Name, p2.Relationship); ok &&
		!strings.EqualFold(p2.SampleType, forced) {
		errs.add("participants[1].sample_type", fmt.Sprintf("Sample type must be %s for this test", forced))
	}
}

func (f *Form) validateBirthDate(errs *ValidationErrors, i int, p Participant, today time.Time) {
	field := fmt.Sprintf("participants[%d].date_of_birth", i)
	child := i == 1 && p.Relationship == relationship.Child
	if p.DateOfBirth == "" {
		switch {
		case i == 0:
			errs.add(field, "Representative date of birth is required")
		case !child:
			errs.add(field, "Participant 2 date of birth is required to check their age")
		}
		return
	}
	birth, err := ParseDate(p.DateOfBirth, f.loc)
	if err != nil {
		errs.add(field, err.Error())
		return
	}
	switch {
	case i == 0:
		if err := ValidateRepresentativeAge(birth, today); err != nil {
			errs.add(field, "Representative "+err.Error())
		}
	case birth.After(today):
		errs.add(field, "Date of birth cannot be in the future")
	case !child && AgeOn(birth, today) < AdultAge:
		errs.add(field, fmt.Sprintf("Participant 2 must be at least %d years old unless tested as the child", AdultAge))
	}
}

func (f *Form) serviceName() string {
	if f.service == nil {
		return ""
	}
	return f.service.Name
}

func (f *Form) pricingInput() pricing.Input {
	var in pricing.Input
	if f.service != nil {
		in.ServiceBase = f.service.BasePrice
		in.ExpressPrice = f.service.ExpressAmount()
	}
	if f.method != nil {
		in.CollectionPrice = f.method.Price
	}
	in.Transport = f.state.Transport
	in.Express = f.state.Express
	return in
}

func (f *Form) defaultTransport() pricing.TransportMethod {
	switch {
	case f.method == nil:
		return ""
	case f.method.IsHome():
		return pricing.TransportStaffCollection
	default:
		return pricing.TransportWalkIn
	}
}

func (f *Form) normalizeTransport() {
	if f.method == nil {
		if !f.state.Express {
			f.state.Transport = ""
		}
		return
	}
	if f.state.Express && f.state.Transport == "" {
		f.state.Transport = pricing.TransportExpress
		return
	}
	if !containsTransport(f.TransportOptions(), f.state.Transport) {
		f.state.Transport = f.defaultTransport()
	}
}

func (f *Form) resetRelationships() {
	p1 := &f.state.Participants[0]
	if p1.Relationship != "" && !containsLabel(f.Participant1Options(), p1.Relationship) {
		p1.Relationship = ""
	}
	f.reconcileParticipant2()
}

func (f *Form) reconcileParticipant2() {
	p2 := &f.state.Participants[1]
	if p2.Relationship != "" && !containsLabel(f.Participant2Options(), p2.Relationship) {
		p2.Relationship = ""
	}
	f.forceSampleType()
}

func (f *Form) forceSampleType() {
	p2 := &f.state.Participants[1]
	if forced, ok := relationship.ForcedSampleType(f.serviceName(), p2.Relationship); ok {
		p2.SampleType = forced
	}
}

func trimParticipant(p Participant) Participant {
	p.FullName = strings.TrimSpace(p.FullName)
	p.DateOfBirth = strings.TrimSpace(p.DateOfBirth)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
	p.SampleType = strings.TrimSpace(p.SampleType)
	p.NationalID = strings.TrimSpace(p.NationalID)
	return p
}

func containsTransport(opts []pricing.TransportMethod, t pricing.TransportMethod) bool {
	for _, o := range opts {
		if o == t {
			return true
		}
	}
	return false
}

func containsLabel(opts []relationship.Label, l relationship.Label) bool {
	for _, o := range opts {
		if o == l {
			return true
		}
	}
	return false
}
