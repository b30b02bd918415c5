package confirmation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/genelab/dnabooking/internal/domain/booking"
	"github.com/genelab/dnabooking/internal/platform/document"
	"github.com/genelab/dnabooking/internal/platform/payment"
	"github.com/genelab/dnabooking/internal/platform/signature"
)

var (
	ErrNotDone    = errors.New("booking has not been submitted yet")
	ErrSubmission = errors.New("booking could not be submitted, please try again")
)

type Deps struct {
	Bookings   *booking.Service
	Store      SessionStore
	QR         *payment.QR
	Signatures signature.Validator
	// NewCode generates payment codes; defaults to payment.NewCode.
	NewCode func() (string, error)
	Logger  zerolog.Logger
}

type Service struct {
	bookings   *booking.Service
	store      SessionStore
	qr         *payment.QR
	signatures signature.Validator
	newCode    func() (string, error)
	logger     zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		bookings:   d.Bookings,
		store:      d.Store,
		qr:         d.QR,
		signatures: d.Signatures,
		newCode:    d.NewCode,
		logger:     d.Logger.With().Str("component", "confirmation").Logger(),
	}
	if s.store == nil {
		s.store = NewMemoryStore(DefaultSessionTTL)
	}
	if s.qr == nil {
		s.qr = payment.NewQR(payment.Account{}, 0)
	}
	if s.newCode == nil {
		s.newCode = payment.NewCode
	}
	return s
}

func (s *Service) log(sess *Session) *zerolog.Logger {
	l := s.logger.With().
		Str("session_id", sess.ID).
		Str("payment_code", sess.PaymentCode).
		Int("step", sess.Step()).
		Logger()
	return &l
}

// Start validates the form and opens a confirmation on the resulting draft.
func (s *Service) Start(ctx context.Context, customerID string, st booking.FormState) (*Session, error) {
	draft, err := s.bookings.Validate(st)
	if err != nil {
		return nil, err
	}
	draft.CustomerID = customerID
	now := s.bookings.Now()
	sess := &Session{
		ID:            uuid.New().String(),
		CustomerID:    customerID,
		State:         StateConfirm,
		PaymentMethod: draft.PaymentMethod,
		Draft:         draft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save confirmation session: %w", err)
	}
	s.log(sess).Info().Int64("total_cost", draft.TotalCost).Msg("confirmation started")
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// step runs fn on the session while holding its processing mark. Changes
// are saved only when fn succeeds; on failure, including a failed save, the
// mark is cleared and the stored session keeps its previous step.
func (s *Service) step(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	sess, err := s.store.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		s.release(ctx, sess)
		s.log(sess).Warn().Err(err).Msg("confirmation step failed")
		return nil, err
	}
	sess.Processing = false
	sess.UpdatedAt = s.bookings.Now()
	if err := s.store.Save(ctx, sess); err != nil {
		s.release(ctx, sess)
		s.log(sess).Error().Err(err).Str("state", string(sess.State)).Msg("confirmation session not saved")
		return nil, fmt.Errorf("save confirmation session: %w", err)
	}
	return sess, nil
}

func (s *Service) release(ctx context.Context, sess *Session) {
	if err := s.store.Release(ctx, sess.ID); err != nil {
		s.log(sess).Error().Err(err).Msg("confirmation session not released")
	}
}

// Confirm fixes the payment method, generates the payment code and, for bank
// transfers, the QR code the customer pays with. An empty method keeps the
// one chosen in the form.
func (s *Service) Confirm(ctx context.Context, id string, method booking.PaymentMethod) (*Session, error) {
	return s.step(ctx, id, func(sess *Session) error {
		if method == "" {
			method = sess.PaymentMethod
		}
		if !method.Valid() {
			return booking.ErrUnknownPayment
		}
		next, err := Next(sess.State, EventConfirm, method)
		if err != nil {
			return err
		}
		code, err := s.newCode()
		if err != nil {
			return err
		}
		rec := booking.Finalize(sess.Draft, code)
		rec.PaymentMethod = method
		if method == booking.PaymentBankTransfer {
			url, err := s.qr.DataURL(code, rec.TotalCost)
			if err != nil {
				return err
			}
			sess.QRCodeURL = url
		}
		sess.PaymentMethod = method
		sess.PaymentCode = code
		sess.Record = rec
		sess.State = next
		s.log(sess).Info().Str("payment_method", string(method)).Msg("booking confirmed")
		return nil
	})
}

// ConfirmPayment records that the customer says the transfer was made.
func (s *Service) ConfirmPayment(ctx context.Context, id string) (*Session, error) {
	return s.step(ctx, id, func(sess *Session) error {
		next, err := Next(sess.State, EventConfirmPayment, sess.PaymentMethod)
		if err != nil {
			return err
		}
		sess.State = next
		return nil
	})
}

// Sign validates and attaches the signature. Bank transfer bookings are
// then rendered and submitted; cash bookings move on to the document step.
func (s *Service) Sign(ctx context.Context, id, dataURL string) (*Session, error) {
	return s.step(ctx, id, func(sess *Session) error {
		next, err := Next(sess.State, EventSign, sess.PaymentMethod)
		if err != nil {
			return err
		}
		sig, err := s.signatures.Normalize(dataURL)
		if err != nil {
			return err
		}
		signedAt := s.bookings.Now()
		sess.Signature = sig
		sess.SignedAt = &signedAt
		sess.Record.Signature = sig
		sess.Record.SignedAt = &signedAt
		if next == StateDone {
			if _, err := s.submit(ctx, sess); err != nil {
				return err
			}
		}
		sess.State = next
		return nil
	})
}

// FinishPDF renders the document and submits the cash booking. The document
// is returned when download is set.
func (s *Service) FinishPDF(ctx context.Context, id string, download bool) (*Session, []byte, error) {
	var pdf []byte
	sess, err := s.step(ctx, id, func(sess *Session) error {
		next, err := Next(sess.State, EventFinishPDF, sess.PaymentMethod)
		if err != nil {
			return err
		}
		doc, err := s.submit(ctx, sess)
		if err != nil {
			return err
		}
		if download {
			pdf = doc
		}
		sess.State = next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, pdf, nil
}

// submit renders the consent document and hands the record to the booking
// service. Nothing is submitted when rendering fails.
func (s *Service) submit(ctx context.Context, sess *Session) ([]byte, error) {
	pdf, err := s.bookings.RenderDocument(ctx, sess.Record)
	if err != nil {
		return nil, err
	}
	sess.PDFGenerated = true
	if err := s.bookings.Submit(ctx, sess.Record, pdf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	return pdf, nil
}

// Document returns the consent document of a finished confirmation.
func (s *Service) Document(ctx context.Context, id string) ([]byte, string, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if sess.State != StateDone || sess.Record == nil {
		return nil, "", ErrNotDone
	}
	return s.bookings.Document(ctx, sess.Record)
}

// Cancel closes the dialog and discards the session. A session that is
// being processed cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Processing {
		return ErrBusy
	}
	s.log(sess).Info().Msg("confirmation closed")
	return s.store.Delete(ctx, id)
}

// Edit discards the session and returns the form state of its draft so the
// customer can continue editing. Only possible before confirming.
func (s *Service) Edit(ctx context.Context, id string) (booking.FormState, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return booking.FormState{}, err
	}
	if sess.State != StateConfirm {
		return booking.FormState{}, fmt.Errorf("%w: edit from %s", ErrIllegalTransition, sess.State)
	}
	if sess.Processing {
		return booking.FormState{}, ErrBusy
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return booking.FormState{}, err
	}
	return sess.Draft.State(), nil
}

// Message is the success text shown once the booking is submitted.
func Message(sess *Session) string {
	if sess.State != StateDone || sess.Record == nil {
		return ""
	}
	total := document.FormatVND(sess.Record.TotalCost)
	if sess.PaymentMethod == booking.PaymentBankTransfer {
		return fmt.Sprintf("Thank you! Your transfer of %s with reference %s has been noted. "+
			"Your booking is confirmed once the payment is verified.", total, sess.PaymentCode)
	}
	return fmt.Sprintf("Your booking is confirmed. Please pay %s in cash and quote payment code %s.",
		total, sess.PaymentCode)
}
