// Package payment generates booking payment codes and the bank transfer QR
// image customers scan to pay.
package payment

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

// CodePrefix starts every payment code.
const CodePrefix = "DNA"

const codeLength = 8

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewCode returns a random payment code such as DNA7KQ2M4XA.
func NewCode() (string, error) {
	buf := make([]byte, (codeLength*5+7)/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate payment code: %w", err)
	}
	return CodePrefix + encoding.EncodeToString(buf)[:codeLength], nil
}

// ValidCode reports whether code has the shape NewCode produces.
func ValidCode(code string) bool {
	if len(code) != len(CodePrefix)+codeLength || !strings.HasPrefix(code, CodePrefix) {
		return false
	}
	_, err := encoding.DecodeString(code[len(CodePrefix):])
	return err == nil
}

// Account is the bank account transfers are made to.
type Account struct {
	BankName    string
	Number      string
	AccountName string
}

var ErrNoAccount = errors.New("bank account is not configured")

// QR builds transfer QR codes for one account.
type QR struct {
	Account Account
	Size    int
}

// NewQR returns a QR builder producing size x size images.
func NewQR(acct Account, size int) *QR {
	if size <= 0 {
		size = 256
	}
	return &QR{Account: acct, Size: size}
}

// Payload is the text encoded in the QR code. The payment code doubles as the
// transfer description so the transfer can be matched to the booking.
func (q *QR) Payload(code string, amount int64) string {
	return fmt.Sprintf("BANK:%s|ACC:%s|NAME:%s|AMOUNT:%d|DESC:%s",
		q.Account.BankName, q.Account.Number, q.Account.AccountName, amount, code)
}

// DataURL renders the QR code for a transfer as a PNG data URL.
func (q *QR) DataURL(code string, amount int64) (string, error) {
	if q.Account.Number == "" {
		return "", ErrNoAccount
	}
	png, err := qrcode.Encode(q.Payload(code, amount), qrcode.Medium, q.Size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
