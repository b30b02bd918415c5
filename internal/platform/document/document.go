// Package document builds the booking consent document and renders it to
// PDF. Build produces a renderer-independent Definition; Renderer turns it
// into bytes.
package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/genelab/dnabooking/internal/domain/pricing"
	"github.com/genelab/dnabooking/internal/platform/signature"
)

// Person is one participant as printed on the form.
type Person struct {
	FullName     string
	DateOfBirth  string
	Gender       string
	Relationship string
	SampleType   string
	NationalID   string
	Phone        string
	Email        string
}

// Input is everything the document shows about a finalized booking.
type Input struct {
	PaymentCode      string
	PaymentMethod    string
	ServiceName      string
	Legal            bool
	CollectionMethod string
	Transport        string
	PostalDelivery   bool
	Express          bool
	KitName          string
	AppointmentDate  string
	TimeSlot         string
	HomeAddress      string
	Participants     []Person
	CostLines        []pricing.Line
	TotalCost        int64
	Signature        string
	SignedAt         time.Time
}

// BlockKind is the type of a content block.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockSubheading
	BlockText
	BlockTable
	BlockSignature
)

// Block is one piece of page content.
type Block struct {
	Kind   BlockKind
	Text   string
	Header []string
	Rows   [][]string
	Widths []float64
	// Image holds the decoded signature for BlockSignature.
	Image     []byte
	ImageType string
}

// Page is one page of the document.
type Page struct {
	Title  string
	Blocks []Block
}

// Definition is a complete document ready for rendering.
type Definition struct {
	Title    string
	FileName string
	Pages    []Page
}

// Build validates in and lays out the document: the request and consent
// form, two pages of terms and, for legal services, the sample collection
// affidavit.
func Build(in Input) (*Definition, error) {
	if len(in.Participants) < 2 {
		return nil, newError(CategoryMissingInfo, "participant details")
	}
	for i, p := range in.Participants[:2] {
		if strings.TrimSpace(p.FullName) == "" {
			return nil, newError(CategoryMissingInfo, "name of participant %d", i+1)
		}
	}
	if !in.PostalDelivery && strings.TrimSpace(in.AppointmentDate) == "" {
		return nil, newError(CategoryMissingInfo, "appointment date")
	}
	if in.TotalCost <= 0 {
		return nil, newError(CategoryMissingInfo, "total cost")
	}

	var lines []pricing.Line
	var sum int64
	for _, l := range in.CostLines {
		if l.Amount <= 0 {
			continue
		}
		lines = append(lines, l)
		sum += l.Amount
	}
	if sum != in.TotalCost {
		return nil, newError(CategoryMissingInfo, "cost breakdown (%s) does not match total (%s)",
			FormatVND(sum), FormatVND(in.TotalCost))
	}

	if strings.TrimSpace(in.Signature) == "" {
		return nil, newError(CategorySignature, "signature image is missing")
	}
	mime, img, err := signature.Decode(in.Signature)
	if err != nil {
		return nil, &Error{Category: CategorySignature, Err: err}
	}
	imgType := map[string]string{"image/png": "PNG", "image/jpeg": "JPG"}[mime]
	if imgType == "" {
		return nil, newError(CategorySignature, "signature format %s cannot be embedded", mime)
	}

	def := &Definition{
		Title:    "DNA Test Request and Consent Form",
		FileName: FileName(in.PaymentCode),
	}
	def.Pages = append(def.Pages, consentPage(in, lines, img, imgType))
	def.Pages = append(def.Pages, termsPages()...)
	if in.Legal {
		def.Pages = append(def.Pages, affidavitPage(in, img, imgType))
	}
	return def, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName is the download name for a booking's document.
func FileName(paymentCode string) string {
	code := unsafeName.ReplaceAllString(paymentCode, "")
	if code == "" {
		return "dna-booking.pdf"
	}
	return "dna-booking-" + code + ".pdf"
}

// FormatVND formats an amount with dot thousands separators, e.g.
// 1.500.000 VND.
func FormatVND(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String() + " VND"
	}
	return b.String() + " VND"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func consentPage(in Input, lines []pricing.Line, img []byte, imgType string) Page {
	serviceType := "Non-legal (personal knowledge)"
	if in.Legal {
		serviceType = "Legal (court admissible)"
	}
	appointment := "Sample sent by postal delivery"
	if !in.PostalDelivery {
		appointment = strings.TrimSpace(in.AppointmentDate + " " + in.TimeSlot)
	}

	details := [][]string{
		{"Booking code", in.PaymentCode},
		{"Service", in.ServiceName},
		{"Service type", serviceType},
		{"Collection method", in.CollectionMethod},
		{"Transport", in.Transport},
		{"Express processing", yesNo(in.Express)},
		{"Kit", orDash(in.KitName)},
		{"Appointment", appointment},
		{"Payment method", orDash(in.PaymentMethod)},
	}
	if in.HomeAddress != "" {
		details = append(details, []string{"Home address", in.HomeAddress})
	}

	p1, p2 := in.Participants[0], in.Participants[1]
	people := [][]string{
		{"Full name", p1.FullName, p2.FullName},
		{"Date of birth", orDash(p1.DateOfBirth), orDash(p2.DateOfBirth)},
		{"Gender", orDash(p1.Gender), orDash(p2.Gender)},
		{"Relationship", orDash(p1.Relationship), orDash(p2.Relationship)},
		{"Sample type", orDash(p1.SampleType), orDash(p2.SampleType)},
		{"National ID", orDash(p1.NationalID), orDash(p2.NationalID)},
		{"Phone", orDash(p1.Phone), "-"},
		{"Email", orDash(p1.Email), "-"},
	}

	costs := make([][]string, 0, len(lines)+1)
	for _, l := range lines {
		costs = append(costs, []string{l.Label, FormatVND(l.Amount)})
	}
	costs = append(costs, []string{"Total", FormatVND(in.TotalCost)})

	return Page{
		Title: "Request and consent",
		Blocks: []Block{
			{Kind: BlockHeading, Text: "DNA TEST REQUEST AND CONSENT FORM"},
			{Kind: BlockTable, Rows: details, Widths: []float64{50, 130}},
			{Kind: BlockSubheading, Text: "Participants"},
			{Kind: BlockTable, Header: []string{"", "Participant 1 (Representative)", "Participant 2"},
				Rows: people, Widths: []float64{40, 70, 70}},
			{Kind: BlockSubheading, Text: "Cost"},
			{Kind: BlockTable, Header: []string{"Item", "Amount"}, Rows: costs, Widths: []float64{120, 60}},
			{Kind: BlockText, Text: "I request the DNA test described above, confirm that the information provided " +
				"is accurate and consent to the collection and analysis of the samples listed. I have read and " +
				"accept the terms on the following pages."},
			{Kind: BlockSignature, Image: img, ImageType: imgType,
				Text: fmt.Sprintf("Signed by %s on %s", p1.FullName, in.SignedAt.Format(time.RFC3339))},
		},
	}
}

var terms = [][]string{
	{
		"1. Purpose of testing. The laboratory performs DNA relationship analysis on the samples supplied for the " +
			"participants named in this form. Results state the probability of the tested relationship and are " +
			"issued only for the participants and relationship named.",
		"2. Sample collection. Samples must be collected with the supplied kit following its instructions. Samples " +
			"that are contaminated, insufficient or received more than seven days after collection may be rejected " +
			"and a new collection may be required.",
		"3. Identity of participants. The representative confirms the identity of every participant. For legal " +
			"testing, identity documents are checked at collection and copies are kept with the case file.",
		"4. Minors and prenatal samples. Samples from a child are collected with the consent of a parent or legal " +
			"guardian. Prenatal samples are collected by qualified medical staff only.",
		"5. Turnaround. Standard results are issued within the period stated for the service. Express processing " +
			"shortens this period but does not change the analysis performed.",
	},
	{
		"6. Confidentiality. Results and personal data are disclosed only to the representative, or to a person " +
			"or authority they authorise in writing, unless disclosure is required by law.",
		"7. Non-legal results. Results of non-legal tests are for personal knowledge and cannot be used in court, " +
			"for civil registration or for immigration purposes.",
		"8. Retention. Samples are kept for ninety days after results are issued and then destroyed. Records are " +
			"kept for the period required by law.",
		"9. Payment and cancellation. The booking is confirmed once payment is received. A booking may be cancelled " +
			"free of charge before sample collection; after collection, fees are not refundable.",
		"10. Liability. The laboratory is not liable for results that are affected by incorrect information or " +
			"samples supplied by the participants.",
	},
}

func termsPages() []Page {
	pages := make([]Page, 0, len(terms))
	for i, paras := range terms {
		blocks := []Block{{Kind: BlockHeading, Text: fmt.Sprintf("TERMS AND CONDITIONS (%d/%d)", i+1, len(terms))}}
		for _, p := range paras {
			blocks = append(blocks, Block{Kind: BlockText, Text: p})
		}
		pages = append(pages, Page{Title: "Terms and conditions", Blocks: blocks})
	}
	return pages
}

func affidavitPage(in Input, img []byte, imgType string) Page {
	rows := make([][]string, 0, len(in.Participants))
	for _, p := range in.Participants {
		rows = append(rows, []string{p.FullName, orDash(p.Relationship), orDash(p.SampleType), orDash(p.NationalID)})
	}
	where := "at the facility"
	if in.CollectionMethod != "" && strings.Contains(strings.ToLower(in.CollectionMethod), "home") {
		where = "at the address " + orDash(in.HomeAddress)
	}
	return Page{
		Title: "Sample collection affidavit",
		Blocks: []Block{
			{Kind: BlockHeading, Text: "SAMPLE COLLECTION AFFIDAVIT"},
			{Kind: BlockText, Text: fmt.Sprintf("Booking code %s. The samples listed below were collected %s in the "+
				"presence of the undersigned, from the persons identified, and sealed in the kit in their presence.",
				in.PaymentCode, where)},
			{Kind: BlockTable, Header: []string{"Name", "Relationship", "Sample", "National ID"},
				Rows: rows, Widths: []float64{60, 40, 40, 40}},
			{Kind: BlockText, Text: "I declare that the persons who gave samples are the persons named above and that " +
				"no sample was substituted or altered."},
			{Kind: BlockSignature, Image: img, ImageType: imgType,
				Text: fmt.Sprintf("Representative: %s", in.Participants[0].FullName)},
			{Kind: BlockText, Text: "Collector: ______________________    Witness: ______________________"},
		},
	}
}
