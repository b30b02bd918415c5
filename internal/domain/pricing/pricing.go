// Package pricing computes the total cost of a DNA test booking from the
// selected service, collection method, transport method and express flag.
package pricing

import "math"

// TransportMethod is how the sample reaches the laboratory.
type TransportMethod string

const (
	TransportWalkIn          TransportMethod = "walk-in"
	TransportStaffCollection TransportMethod = "staff-collection"
	TransportPostalDelivery  TransportMethod = "postal-delivery"
	TransportExpress         TransportMethod = "express"
)

// Fixed surcharges in VND.
const (
	StaffCollectionFee  int64 = 500_000
	PostalDeliveryFee   int64 = 250_000
	DefaultExpressPrice int64 = 1_500_000
)

var validTransports = map[TransportMethod]bool{
	TransportWalkIn: true, TransportStaffCollection: true,
	TransportPostalDelivery: true, TransportExpress: true,
}

// Valid reports whether t is a known transport method.
func (t TransportMethod) Valid() bool { return validTransports[t] }

// Label is the human readable name used in summaries and documents.
func (t TransportMethod) Label() string {
	switch t {
	case TransportWalkIn:
		return "Walk-in"
	case TransportStaffCollection:
		return "Staff Collection"
	case TransportPostalDelivery:
		return "Postal Delivery"
	case TransportExpress:
		return "Express"
	}
	return string(t)
}

// Input holds everything the price depends on. ExpressPrice is the selected
// service's express price; zero means "use DefaultExpressPrice".
type Input struct {
	ServiceBase     int64           `json:"service_base"`
	CollectionPrice int64           `json:"collection_price"`
	Transport       TransportMethod `json:"transport"`
	Express         bool            `json:"express"`
	ExpressPrice    int64           `json:"express_price,omitempty"`
}

// Line is one non-zero component of a cost breakdown.
type Line struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// Breakdown lists the non-zero cost components and their sum.
type Breakdown struct {
	Lines []Line `json:"lines"`
	Total int64  `json:"total"`
}

// TransportCost returns the surcharge for t. It does not depend on the
// express flag.
func TransportCost(t TransportMethod) int64 {
	switch t {
	case TransportStaffCollection:
		return StaffCollectionFee
	case TransportPostalDelivery:
		return PostalDeliveryFee
	}
	return 0
}

// ExpressCost returns the express surcharge for the given flag and price.
func ExpressCost(express bool, expressPrice int64) int64 {
	if !express {
		return 0
	}
	if p := nonNegative(expressPrice); p > 0 {
		return p
	}
	return DefaultExpressPrice
}

// Calculate returns serviceBase + collection + transport + express.
func Calculate(in Input) int64 {
	return nonNegative(in.ServiceBase) +
		nonNegative(in.CollectionPrice) +
		TransportCost(in.Transport) +
		ExpressCost(in.Express, in.ExpressPrice)
}

// BreakdownOf returns the cost lines for in, omitting zero components.
func BreakdownOf(in Input) Breakdown {
	candidates := []Line{
		{Code: "service", Label: "Service fee", Amount: nonNegative(in.ServiceBase)},
		{Code: "collection", Label: "Collection method", Amount: nonNegative(in.CollectionPrice)},
		{Code: "transport", Label: "Transport (" + in.Transport.Label() + ")", Amount: TransportCost(in.Transport)},
		{Code: "express", Label: "Express service", Amount: ExpressCost(in.Express, in.ExpressPrice)},
	}
	b := Breakdown{Lines: make([]Line, 0, len(candidates))}
	for _, l := range candidates {
		if l.Amount == 0 {
			continue
		}
		b.Lines = append(b.Lines, l)
		b.Total += l.Amount
	}
	return b
}

// MaxAmount is the largest single price accepted, in VND. Summing a
// breakdown of capped lines cannot overflow int64.
const MaxAmount int64 = 1_000_000_000_000

// SanitizeAmount converts an externally supplied amount to VND. NaN,
// infinities and negative values become 0; finite amounts above MaxAmount
// are clamped to it. Fractions are truncated.
func SanitizeAmount(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v >= float64(MaxAmount) {
		return MaxAmount
	}
	return int64(v)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
