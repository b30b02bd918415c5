// Package confirmation drives a finalized booking draft through payment,
// signature and document generation until it is submitted.
package confirmation

import (
	"errors"
	"fmt"

	"github.com/genelab/dnabooking/internal/domain/booking"
)

// State is a step of the confirmation flow.
type State string

const (
	StateConfirm    State = "confirm"
	StateQRPayment  State = "qr-payment"
	StateSignature  State = "signature"
	StatePDFConfirm State = "pdf-confirm"
	StateDone       State = "done"
)

// Event is a user action that moves the flow forward.
type Event string

const (
	EventConfirm        Event = "confirm"
	EventConfirmPayment Event = "confirm-payment"
	EventSign           Event = "sign"
	EventFinishPDF      Event = "finish-pdf"
)

var ErrIllegalTransition = errors.New("action not allowed at this step")

type transitionKey struct {
	from   State
	event  Event
	method booking.PaymentMethod
}

// Cash: confirm -> signature -> pdf-confirm -> done.
// Bank transfer: confirm -> qr-payment -> signature -> done.
var transitions = map[transitionKey]State{
	{StateConfirm, EventConfirm, booking.PaymentCash}:                  StateSignature,
	{StateConfirm, EventConfirm, booking.PaymentBankTransfer}:          StateQRPayment,
	{StateQRPayment, EventConfirmPayment, booking.PaymentBankTransfer}: StateSignature,
	{StateSignature, EventSign, booking.PaymentCash}:                   StatePDFConfirm,
	{StateSignature, EventSign, booking.PaymentBankTransfer}:           StateDone,
	{StatePDFConfirm, EventFinishPDF, booking.PaymentCash}:             StateDone,
}

// Next returns the state reached from from on ev for payment method m.
func Next(from State, ev Event, m booking.PaymentMethod) (State, error) {
	to, ok := transitions[transitionKey{from, ev, m}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s (%s)", ErrIllegalTransition, ev, from, m)
	}
	return to, nil
}

// StepNumber is the step shown to the customer. The cash pdf-confirm step is
// a sub-step between signature (2) and done (4) and is numbered 3.
func StepNumber(s State, m booking.PaymentMethod) int {
	switch s {
	case StateConfirm:
		return 1
	case StateQRPayment:
		return 2
	case StateSignature:
		if m == booking.PaymentBankTransfer {
			return 3
		}
		return 2
	case StatePDFConfirm:
		return 3
	case StateDone:
		return 4
	}
	return 0
}
