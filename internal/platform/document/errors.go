package document

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies a document failure for the message shown to the user.
type Category string

const (
	CategoryFont        Category = "font"
	CategoryTimeout     Category = "timeout"
	CategoryMissingInfo Category = "missing-info"
	CategorySignature   Category = "signature"
	CategoryGeneric     Category = "generic"
)

// Error is a categorised document failure.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("document (%s): %v", e.Category, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func newError(c Category, format string, args ...interface{}) *Error {
	return &Error{Category: c, Err: fmt.Errorf(format, args...)}
}

// CategoryOf returns the category of err. Context deadlines count as
// timeouts; anything unrecognised is generic.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryGeneric
}

// UserMessage maps err to the message shown to the customer.
func UserMessage(err error) string {
	switch CategoryOf(err) {
	case "":
		return ""
	case CategoryFont:
		return "The document could not be created because its fonts failed to load. Please try again later."
	case CategoryTimeout:
		return "Creating the document took too long. Please check your connection and try again."
	case CategoryMissingInfo:
		var de *Error
		errors.As(err, &de)
		return "The document is missing required information: " + de.Err.Error() + "."
	case CategorySignature:
		return "Your signature could not be added to the document. Please sign again."
	default:
		return "The document could not be created. Please try again."
	}
}
