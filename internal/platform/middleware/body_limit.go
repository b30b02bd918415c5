package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit = 1 << 20

// BodyLimits caps request bodies. Sizes are written like "256K", "2M" or
// "512"; anything unparseable falls back to 1 MB.
type BodyLimits struct {
	// Default applies to quote, validation, booking and step payloads.
	Default string
	// Signature applies to POST .../signature, whose body is a PNG data URL.
	Signature string
}

// BodyLimit rejects bodies over the configured size with a 413. Declared
// lengths are checked up front; chunked bodies are cut off while they are read.
func BodyLimit(limits BodyLimits) echo.MiddlewareFunc {
	general := parseLimit(limits.Default)
	signature := parseLimit(limits.Signature)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := general
			if isSignatureUpload(req) {
				limit = signature
			}
			if req.ContentLength > limit {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
					"message": fmt.Sprintf("Request body is larger than %s.", formatSize(limit)),
				})
			}

			req.Body = &cappedBody{ReadCloser: req.Body, left: limit}
			return next(c)
		}
	}
}

func isSignatureUpload(req *http.Request) bool {
	return req.Method == http.MethodPost &&
		strings.HasSuffix(strings.TrimSuffix(req.URL.Path, "/"), "/signature")
}

// cappedBody fails every read once more than left bytes have come through.
type cappedBody struct {
	io.ReadCloser
	left int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, echo.ErrStatusRequestEntityTooLarge
	}
	// one byte past the cap is enough to notice the overflow
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return 0, echo.ErrStatusRequestEntityTooLarge
	}
	return n, err
}

var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
	{"B", 1},
}

func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	unit := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			unit = u.bytes
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n * unit
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
