package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/genelab/dnabooking/internal/domain/booking"
	"github.com/genelab/dnabooking/internal/domain/catalog"
	"github.com/genelab/dnabooking/internal/domain/pricing"
	"github.com/genelab/dnabooking/internal/domain/relationship"
	"github.com/genelab/dnabooking/internal/platform/auth"
	"github.com/genelab/dnabooking/internal/platform/document"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// defaultAPITimeout bounds the whole confirmation request, body included.
const defaultAPITimeout = 15 * time.Second

func newAPIClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	return &http.Client{Timeout: timeout}
}

func bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Fill in a DNA test booking in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("catalog")
			tz, _ := cmd.Flags().GetString("timezone")
			server, _ := cmd.Flags().GetString("server")
			user, _ := cmd.Flags().GetString("user")
			token, _ := cmd.Flags().GetString("token")
			timeout, _ := cmd.Flags().GetDuration("api-timeout")

			set, err := loadCatalogs(file)
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("timezone %q: %w", tz, err)
			}

			w := newWizard(booking.NewForm(set, loc), time.Now)
			draft, err := w.Run()
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Booking cancelled."))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(draft))

			if server == "" {
				return nil
			}
			id, err := startConfirmation(cmd.Context(), newAPIClient(timeout), server, user, token, w.form.State())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Confirmation %s opened. Continue at %s/api/v1/confirmations/%s\n", id, strings.TrimSuffix(server, "/"), id)
			return nil
		},
	}
	cmd.Flags().String("catalog", "", "YAML catalog overriding the built-in prices")
	cmd.Flags().String("timezone", "Asia/Ho_Chi_Minh", "Zone appointment dates are given in")
	cmd.Flags().String("server", "", "Booking API base URL; when set the booking is sent for confirmation")
	cmd.Flags().String("user", "", "Customer id sent as "+auth.HeaderDevUser+" to a development server")
	cmd.Flags().String("token", "", "Bearer token for the booking API")
	cmd.Flags().Duration("api-timeout", defaultAPITimeout, "Give up on the booking API after this long")
	return cmd
}

// wizard walks a booking.Form through one huh form per step. Every answer is
// applied to the Form so its options and resets drive the next step.
type wizard struct {
	form *booking.Form
	now  func() time.Time
}

func newWizard(f *booking.Form, now func() time.Time) *wizard {
	return &wizard{form: f, now: now}
}

// Run asks every step and submits. Validation failures are printed and the
// participant and appointment steps asked again.
func (w *wizard) Run() (*booking.Draft, error) {
	steps := []func() error{w.askService, w.askCollection, w.askKit, w.askAppointment, w.askParticipant(0), w.askParticipant(1), w.askPayment}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	for {
		draft, err := w.form.Submit(w.now())
		if err == nil {
			return draft, nil
		}
		ve, ok := booking.AsValidation(err)
		if !ok {
			return nil, err
		}
		fmt.Println(renderErrors(ve))
		retry := true
		if err := huh.NewConfirm().Title("Fix the booking?").Value(&retry).Run(); err != nil {
			return nil, err
		}
		if !retry {
			return nil, huh.ErrUserAborted
		}
		for _, step := range []func() error{w.askAppointment, w.askParticipant(0), w.askParticipant(1)} {
			if err := step(); err != nil {
				return nil, err
			}
		}
	}
}

func (w *wizard) askService() error {
	var kind string
	err := huh.NewSelect[string]().
		Title("Service type").
		Options(
			huh.NewOption("Legal (court, immigration, civil records)", string(catalog.Legal)),
			huh.NewOption("Non-legal (personal knowledge)", string(catalog.NonLegal)),
		).
		Value(&kind).
		Run()
	if err != nil {
		return err
	}
	if err := w.form.SetServiceType(catalog.ServiceType(kind)); err != nil {
		return err
	}

	var id string
	if err := huh.NewSelect[string]().Title("Service").Options(serviceOptions(w.form.Catalog())...).Value(&id).Run(); err != nil {
		return err
	}
	return w.form.SelectService(id)
}

func (w *wizard) askCollection() error {
	var method string
	var express bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title("Collection method").Options(methodOptions(w.form.Catalog())...).Value(&method),
		huh.NewConfirm().Title("Express results?").Value(&express),
	)).Run()
	if err != nil {
		return err
	}
	if err := w.form.SelectCollectionMethod(method); err != nil {
		return err
	}
	w.form.SetExpress(express)

	transport := string(w.form.State().Transport)
	err = huh.NewSelect[string]().
		Title("Transport").
		Options(transportOptions(w.form.TransportOptions())...).
		Value(&transport).
		Run()
	if err != nil {
		return err
	}
	return w.form.SetTransport(pricing.TransportMethod(transport))
}

func (w *wizard) askKit() error {
	var id string
	if err := huh.NewSelect[string]().Title("Sample kit").Options(kitOptions(w.form.Kits())...).Value(&id).Run(); err != nil {
		return err
	}
	return w.form.SetKit(id)
}

func (w *wizard) askAppointment() error {
	st := w.form.State()
	needsAddress := st.Transport == pricing.TransportPostalDelivery || st.CollectionMethod == catalog.AtHome

	if needsAddress {
		addr := st.HomeAddress
		err := huh.NewInput().Title("Home address").Value(&addr).Validate(required("home address")).Run()
		if err != nil {
			return err
		}
		w.form.SetHomeAddress(addr)
	}
	if st.Transport == pricing.TransportPostalDelivery {
		// the kit is posted, no appointment
		w.form.SetAppointment("", "")
		return nil
	}

	date := st.AppointmentDate
	err := huh.NewInput().
		Title("Appointment date").
		Description("YYYY-MM-DD").
		Value(&date).
		Validate(func(s string) error {
			_, err := booking.ParseDate(s, w.form.Location())
			return err
		}).
		Run()
	if err != nil {
		return err
	}
	w.form.SetAppointment(date, "")

	slots, err := w.form.SlotOptions(w.now())
	if err != nil {
		return err
	}
	opts := slotOptions(slots)
	if len(opts) == 0 {
		fmt.Println(errorStyle.Render("No time slots are left on " + date + ". Please choose another day."))
		return w.askAppointment()
	}
	var slot string
	if err := huh.NewSelect[string]().Title("Time slot").Options(opts...).Value(&slot).Run(); err != nil {
		return err
	}
	w.form.SetAppointment(date, slot)
	return nil
}

func (w *wizard) askParticipant(i int) func() error {
	return func() error {
		p := w.form.State().Participants[i]
		labels := w.form.Participant1Options()
		if i == 1 {
			labels = w.form.Participant2Options()
		}
		gender := string(p.Gender)
		rel := string(p.Relationship)

		fields := []huh.Field{
			huh.NewInput().Title("Full name").Value(&p.FullName).Validate(required("full name")),
			huh.NewInput().Title("Date of birth").Description("YYYY-MM-DD").Value(&p.DateOfBirth),
			huh.NewSelect[string]().Title("Gender").Options(huh.NewOptions(
				string(relationship.Male), string(relationship.Female), string(relationship.Other))...).Value(&gender),
			huh.NewSelect[string]().Title("Relationship").Options(labelOptions(labels)...).Value(&rel),
			huh.NewSelect[string]().Title("Sample type").Options(huh.NewOptions(w.form.SampleTypes()...)...).Value(&p.SampleType),
		}
		if i == 0 {
			fields = append(fields,
				huh.NewInput().Title("Phone").Value(&p.Phone),
				huh.NewInput().Title("Email").Value(&p.Email),
			)
			if w.form.State().ServiceType == catalog.Legal {
				fields = append(fields, huh.NewInput().Title("National ID number").Value(&p.NationalID))
			}
		}

		title := "Representative (participant 1)"
		if i == 1 {
			title = "Participant 2"
		}
		if err := huh.NewForm(huh.NewGroup(fields...).Title(title)).Run(); err != nil {
			return err
		}
		p.Gender = relationship.Gender(gender)
		p.Relationship = relationship.Label(rel)
		if err := w.form.SetParticipant(i, p); err != nil {
			return err
		}
		for _, warn := range w.form.Warnings() {
			fmt.Println(errorStyle.Render(warn.Message))
		}
		return nil
	}
}

func (w *wizard) askPayment() error {
	method := string(booking.PaymentCash)
	err := huh.NewSelect[string]().
		Title("Payment method").
		Options(
			huh.NewOption(booking.PaymentCash.Label(), string(booking.PaymentCash)),
			huh.NewOption(booking.PaymentBankTransfer.Label(), string(booking.PaymentBankTransfer)),
		).
		Value(&method).
		Run()
	if err != nil {
		return err
	}
	return w.form.SetPaymentMethod(booking.PaymentMethod(method))
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func serviceOptions(c *catalog.Catalog) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(c.Services))
	for _, s := range c.Services {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", s.Name, document.FormatVND(s.BasePrice)), s.ID))
	}
	return opts
}

func methodOptions(c *catalog.Catalog) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(c.CollectionMethods))
	for _, m := range c.CollectionMethods {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", m.Name, document.FormatVND(m.Price)), m.Name))
	}
	return opts
}

func transportOptions(ts []pricing.TransportMethod) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(ts))
	for _, t := range ts {
		label := t.Label()
		if cost := pricing.TransportCost(t); cost > 0 {
			label += " (+" + document.FormatVND(cost) + ")"
		}
		opts = append(opts, huh.NewOption(label, string(t)))
	}
	return opts
}

func kitOptions(kits []catalog.Kit) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(kits))
	for _, k := range kits {
		opts = append(opts, huh.NewOption(k.ID+" "+k.Name, k.ID))
	}
	return opts
}

// slotOptions lists the slots that can still be booked.
func slotOptions(slots []booking.SlotOption) []huh.Option[string] {
	var opts []huh.Option[string]
	for _, s := range slots {
		if !s.Disabled {
			opts = append(opts, huh.NewOption(s.Label, s.Label))
		}
	}
	return opts
}

func labelOptions(labels []relationship.Label) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(labels))
	for _, l := range labels {
		opts = append(opts, huh.NewOption(string(l), string(l)))
	}
	return opts
}

func renderErrors(ve booking.ValidationErrors) string {
	lines := make([]string, 0, len(ve)+1)
	lines = append(lines, errorStyle.Bold(true).Render("The booking cannot be submitted yet:"))
	for _, fe := range ve {
		lines = append(lines, errorStyle.Render("  "+fe.Field+": "+fe.Message))
	}
	return strings.Join(lines, "\n")
}

// renderSummary prints the draft the way the confirmation step shows it.
func renderSummary(d *booking.Draft) string {
	appointment := "Kit sent by post"
	if d.AppointmentDate != nil {
		appointment = *d.AppointmentDate
		if d.TimeSlot != nil {
			appointment += " " + *d.TimeSlot
		}
	}

	details := table.New().
		Border(lipgloss.HiddenBorder()).
		Row("Service", fmt.Sprintf("%s (%s)", d.Service.Name, d.ServiceType)).
		Row("Collection", d.CollectionMethod.Name+", "+d.Transport.Label()).
		Row("Kit", d.Kit.Name).
		Row("Appointment", appointment).
		Row("Participant 1", fmt.Sprintf("%s (%s)", d.Participants[0].FullName, d.Participants[0].Relationship)).
		Row("Participant 2", fmt.Sprintf("%s (%s)", d.Participants[1].FullName, d.Participants[1].Relationship))
	if d.PaymentMethod != "" {
		details.Row("Payment", d.PaymentMethod.Label())
	}

	costs := table.New().Border(lipgloss.NormalBorder()).Headers("ITEM", "AMOUNT")
	for _, l := range d.CostBreakdown.Lines {
		if l.Amount != 0 {
			costs.Row(l.Label, document.FormatVND(l.Amount))
		}
	}
	costs.Row("Total", document.FormatVND(d.TotalCost))

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render("Booking summary"),
		details.Render(),
		costs.Render(),
	))
}

// startConfirmation posts the form state to the booking API and returns the
// confirmation session id.
func startConfirmation(ctx context.Context, client *http.Client, server, user, token string, st booking.FormState) (string, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/api/v1/confirmations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if user != "" {
		req.Header.Set(auth.HeaderDevUser, user)
		req.Header.Set(auth.HeaderDevRoles, auth.RoleCustomer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post booking: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &msg)
		if msg.Message == "" {
			msg.Message = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("booking api returned %d: %s", resp.StatusCode, msg.Message)
	}
	var sess struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &sess); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return sess.ID, nil
}
