package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
)

const (
	margin      = 15.0
	pageHeight  = 297.0
	lineHeight  = 5.5
	rowHeight   = 7.0
	sigWidth    = 60.0
	defaultFont = "DejaVuSans"
)

// Renderer renders definitions to PDF. Without a font directory the PDF core
// fonts are used, which cannot print characters outside Windows-1252.
type Renderer struct {
	FontDir    string
	FontFamily string
}

// NewRenderer returns a Renderer that loads <family>.ttf and
// <family>-Bold.ttf from fontDir when fontDir is set.
func NewRenderer(fontDir, family string) *Renderer {
	if family == "" {
		family = defaultFont
	}
	return &Renderer{FontDir: fontDir, FontFamily: family}
}

type writer struct {
	pdf    *fpdf.Fpdf
	family string
	tr     func(string) string
	images int
}

// Render produces the PDF bytes for def. It gives up between pages once ctx
// is done.
func (r *Renderer) Render(ctx context.Context, def *Definition) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(def.Title, true)
	pdf.SetCreator("dnabooking", true)

	w := &writer{pdf: pdf}
	if err := r.setupFont(w); err != nil {
		return nil, err
	}

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(w.family, "", 8)
		pdf.CellFormat(0, 6, w.tr(fmt.Sprintf("%s - page %d/{nb}", def.FileName, pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	for _, page := range def.Pages {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		pdf.AddPage()
		for _, b := range page.Blocks {
			if err := w.block(b); err != nil {
				return nil, err
			}
		}
		if pdf.Err() {
			return nil, &Error{Category: CategoryGeneric, Err: pdf.Error()}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &Error{Category: CategoryGeneric, Err: err}
	}
	return buf.Bytes(), nil
}

func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Category: CategoryTimeout, Err: err}
	default:
		return &Error{Category: CategoryGeneric, Err: err}
	}
}

func (r *Renderer) setupFont(w *writer) error {
	if r.FontDir == "" {
		w.family = "Helvetica"
		w.tr = w.pdf.UnicodeTranslatorFromDescriptor("")
		return nil
	}
	regular, err := os.ReadFile(filepath.Join(r.FontDir, r.FontFamily+".ttf"))
	if err != nil {
		return &Error{Category: CategoryFont, Err: err}
	}
	bold, err := os.ReadFile(filepath.Join(r.FontDir, r.FontFamily+"-Bold.ttf"))
	if err != nil {
		bold = regular
	}
	w.pdf.AddUTF8FontFromBytes(r.FontFamily, "", regular)
	w.pdf.AddUTF8FontFromBytes(r.FontFamily, "B", bold)
	if w.pdf.Err() {
		return &Error{Category: CategoryFont, Err: w.pdf.Error()}
	}
	w.family = r.FontFamily
	w.tr = func(s string) string { return s }
	return nil
}

// block draws b. Only signature blocks report their own failures; other
// fpdf errors are picked up after the page.
func (w *writer) block(b Block) error {
	pdf := w.pdf
	switch b.Kind {
	case BlockHeading:
		pdf.SetFont(w.family, "B", 14)
		pdf.CellFormat(0, 10, w.tr(b.Text), "", 1, "C", false, 0, "")
		pdf.Ln(2)
	case BlockSubheading:
		pdf.Ln(2)
		pdf.SetFont(w.family, "B", 11)
		pdf.CellFormat(0, 8, w.tr(b.Text), "", 1, "L", false, 0, "")
	case BlockText:
		pdf.SetFont(w.family, "", 10)
		pdf.MultiCell(0, lineHeight, w.tr(b.Text), "", "J", false)
		pdf.Ln(2)
	case BlockTable:
		w.table(b)
	case BlockSignature:
		return w.signature(b)
	}
	return nil
}

func (w *writer) table(b Block) {
	pdf := w.pdf
	if len(b.Header) > 0 {
		pdf.SetFont(w.family, "B", 10)
		pdf.SetFillColor(230, 236, 245)
		for i, h := range b.Header {
			pdf.CellFormat(colWidth(b.Widths, i), rowHeight, w.tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.SetFont(w.family, "", 10)
	for _, row := range b.Rows {
		for i, cell := range row {
			align := "L"
			if i > 0 && len(b.Header) == 2 {
				align = "R"
			}
			pdf.CellFormat(colWidth(b.Widths, i), rowHeight, w.tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(2)
}

func colWidth(widths []float64, i int) float64 {
	if i < len(widths) {
		return widths[i]
	}
	return 40
}

func (w *writer) signature(b Block) error {
	pdf := w.pdf
	if pdf.Err() {
		return nil
	}
	w.images++
	name := fmt.Sprintf("signature-%d", w.images)
	opts := fpdf.ImageOptions{ImageType: b.ImageType}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(b.Image))
	if pdf.Err() || info == nil {
		err := pdf.Error()
		if err == nil {
			err = errors.New("signature image was not registered")
		}
		return &Error{Category: CategorySignature, Err: err}
	}
	h := sigWidth
	if info.Width() > 0 {
		h = sigWidth * info.Height() / info.Width()
	}
	if pdf.GetY()+h+rowHeight > pageHeight-margin {
		pdf.AddPage()
	}
	x, y := pdf.GetX(), pdf.GetY()
	pdf.ImageOptions(name, x, y, sigWidth, h, false, opts, 0, "")
	if pdf.Err() {
		return &Error{Category: CategorySignature, Err: pdf.Error()}
	}
	pdf.SetY(y + h + 1)
	pdf.SetFont(w.family, "", 9)
	pdf.CellFormat(0, lineHeight, w.tr(b.Text), "T", 1, "L", false, 0, "")
	pdf.Ln(2)
	return nil
}
