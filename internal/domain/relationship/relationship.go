// Package relationship holds the static table of relationship pairs that are
// valid for each DNA test service, and the checks derived from it.
package relationship

import (
	"errors"
	"fmt"
	"strings"
)

// Label is a participant's relationship within the tested pair.
type Label string

const (
	Father      Label = "Father"
	Mother      Label = "Mother"
	Child       Label = "Child"
	Grandparent Label = "Grandparent"
	Grandchild  Label = "Grandchild"
	Sibling     Label = "Sibling"
	UncleAunt   Label = "Uncle/Aunt"
	NephewNiece Label = "Nephew/Niece"
)

// priority is the global display order for relationship options.
var priority = []Label{Father, Mother, Child, Grandparent, Grandchild, Sibling, UncleAunt, NephewNiece}

// Gender as recorded on a participant.
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
	Other  Gender = "Other"
)

// AmnioticFluid is the sample type forced for the child in prenatal tests.
const AmnioticFluid = "Amniotic Fluid"

var (
	ErrUnknownService     = errors.New("unknown service")
	ErrInvalidPair        = errors.New("relationship pair is not valid for this service")
	ErrSameRelationship   = errors.New("both participants cannot have the same relationship")
	ErrGenderIncompatible = errors.New("relationship is incompatible with gender")
)

// Kind identifies a family of services that share relationship rules.
type Kind string

const (
	KindPaternity         Kind = "paternity"
	KindMaternity         Kind = "maternity"
	KindNIPT              Kind = "nipt"
	KindSibling           Kind = "sibling"
	KindBirthRegistration Kind = "birth-registration"
	KindInheritance       Kind = "inheritance"
	KindImmigration       Kind = "immigration"
)

// Pair is an unordered pair of relationship labels.
type Pair struct {
	A Label
	B Label
}

func (p Pair) has(l Label) bool { return p.A == l || p.B == l }

func (p Pair) other(l Label) Label {
	if p.A == l {
		return p.B
	}
	return p.A
}

var (
	fatherChild      = Pair{Father, Child}
	motherChild      = Pair{Mother, Child}
	grandparentChild = Pair{Grandparent, Grandchild}
	siblings         = Pair{Sibling, Sibling}
	uncleNephew      = Pair{UncleAunt, NephewNiece}
)

// rules lists the valid pairs per kind in priority order.
var rules = map[Kind][]Pair{
	KindPaternity:         {fatherChild},
	KindMaternity:         {motherChild},
	KindNIPT:              {fatherChild},
	KindSibling:           {siblings},
	KindBirthRegistration: {fatherChild, motherChild},
	KindInheritance:       {fatherChild, motherChild, grandparentChild, siblings},
	KindImmigration:       {fatherChild, motherChild, grandparentChild, siblings, uncleNephew},
}

// keywords resolve a service display name to its kind. Order matters:
// prenatal paternity tests must resolve to NIPT before the paternity keyword.
var keywords = []struct {
	kind  Kind
	words []string
}{
	{KindNIPT, []string{"nipt", "prenatal", "non-invasive"}},
	{KindBirthRegistration, []string{"birth registration", "birth-registration", "birth certificate"}},
	{KindInheritance, []string{"inheritance", "asset"}},
	{KindImmigration, []string{"immigration", "visa"}},
	{KindPaternity, []string{"paternity"}},
	{KindMaternity, []string{"maternity"}},
	{KindSibling, []string{"sibling"}},
}

// Resolve maps a service name to its relationship kind.
func Resolve(serviceName string) (Kind, bool) {
	name := strings.ToLower(strings.TrimSpace(serviceName))
	if name == "" {
		return "", false
	}
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(name, w) {
				return k.kind, true
			}
		}
	}
	return "", false
}

// Pairs returns the valid pairs for a service in priority order.
func Pairs(serviceName string) ([]Pair, error) {
	kind, ok := Resolve(serviceName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, serviceName)
	}
	return rules[kind], nil
}

// Participant1Options returns the labels participant 1 may choose for the
// service, in global priority order.
func Participant1Options(serviceName string) []Label {
	pairs, err := Pairs(serviceName)
	if err != nil {
		return nil
	}
	present := make(map[Label]bool)
	for _, p := range pairs {
		present[p.A] = true
		present[p.B] = true
	}
	return ordered(present)
}

// Participant2Options returns the labels that complete a valid pair with
// participant 1's label.
func Participant2Options(serviceName string, p1 Label) []Label {
	pairs, err := Pairs(serviceName)
	if err != nil || p1 == "" {
		return nil
	}
	present := make(map[Label]bool)
	for _, p := range pairs {
		if p.has(p1) {
			present[p.other(p1)] = true
		}
	}
	return ordered(present)
}

// ValidPair checks that a and b form a valid pair for the service. The check
// is symmetric; identical labels are only accepted for Sibling.
func ValidPair(serviceName string, a, b Label) error {
	if a == b && a != Sibling {
		return fmt.Errorf("%w (%s)", ErrSameRelationship, a)
	}
	pairs, err := Pairs(serviceName)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if (p.A == a && p.B == b) || (p.A == b && p.B == a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s - %s", ErrInvalidPair, a, b)
}

// CheckGender reports whether a relationship label is compatible with the
// participant's gender. An empty gender is not checked.
func CheckGender(l Label, g Gender) error {
	switch {
	case l == Father && g == Female:
		return fmt.Errorf("%w: %s cannot be %s", ErrGenderIncompatible, l, g)
	case l == Mother && g == Male:
		return fmt.Errorf("%w: %s cannot be %s", ErrGenderIncompatible, l, g)
	}
	return nil
}

// ForcedSampleType returns the sample type participant 2 must use for the
// given service and relationship, if any.
func ForcedSampleType(serviceName string, l Label) (string, bool) {
	kind, ok := Resolve(serviceName)
	if ok && kind == KindNIPT && l == Child {
		return AmnioticFluid, true
	}
	return "", false
}

// Known reports whether l is one of the defined labels.
func Known(l Label) bool {
	for _, p := range priority {
		if p == l {
			return true
		}
	}
	return false
}

func ordered(present map[Label]bool) []Label {
	out := make([]Label, 0, len(present))
	for _, l := range priority {
		if present[l] {
			out = append(out, l)
		}
	}
	return out
}
