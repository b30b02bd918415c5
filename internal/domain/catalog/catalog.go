// Package catalog holds the static reference data the booking wizard is built
// on: the services offered per service type, their collection methods and the
// sample collection kits. A Set is immutable once loaded and safe for
// concurrent reads.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceType separates legally admissible tests from personal ones.
type ServiceType string

const (
	Legal    ServiceType = "legal"
	NonLegal ServiceType = "non-legal"
)

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool { return t == Legal || t == NonLegal }

// Collection method names.
const (
	AtHome     = "At Home"
	AtFacility = "At Facility"
)

var (
	ErrUnknownServiceType = errors.New("unknown service type")
	ErrServiceNotFound    = errors.New("service not found")
	ErrMethodNotFound     = errors.New("collection method not found")
	ErrKitNotFound        = errors.New("kit not found")
)

// ServiceEntry is one bookable test. Prices are in VND.
type ServiceEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BasePrice    int64  `json:"base_price"`
	ExpressPrice *int64 `json:"express_price,omitempty"`
}

// ExpressAmount returns the configured express price or 0 when unset.
func (s ServiceEntry) ExpressAmount() int64 {
	if s.ExpressPrice == nil {
		return 0
	}
	return *s.ExpressPrice
}

// CollectionMethod is how the sample is collected.
type CollectionMethod struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// IsHome reports whether the method is a home collection.
func (m CollectionMethod) IsHome() bool { return m.Name == AtHome }

// Kit is a sample collection kit.
type Kit struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Catalog is the service list and collection methods for one service type.
type Catalog struct {
	Type              ServiceType        `json:"service_type"`
	Services          []ServiceEntry     `json:"services"`
	CollectionMethods []CollectionMethod `json:"collection_methods"`
}

// Service looks up a service by id.
func (c *Catalog) Service(id string) (ServiceEntry, error) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, nil
		}
	}
	return ServiceEntry{}, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
}

// ServiceByName looks up a service by display name, case-insensitively.
func (c *Catalog) ServiceByName(name string) (ServiceEntry, error) {
	for _, s := range c.Services {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return ServiceEntry{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
}

// CollectionMethod looks up a collection method by name.
func (c *Catalog) CollectionMethod(name string) (CollectionMethod, error) {
	for _, m := range c.CollectionMethods {
		if strings.EqualFold(m.Name, strings.TrimSpace(name)) {
			return m, nil
		}
	}
	return CollectionMethod{}, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
}

// Set bundles both catalogs with the kit list and sample types.
type Set struct {
	Legal       *Catalog `json:"legal"`
	NonLegal    *Catalog `json:"non_legal"`
	Kits        []Kit    `json:"kits"`
	SampleTypes []string `json:"sample_types"`
}

// For returns the catalog for a service type.
func (s *Set) For(t ServiceType) (*Catalog, error) {
	switch t {
	case Legal:
		return s.Legal, nil
	case NonLegal:
		return s.NonLegal, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownServiceType, t)
}

// Kit looks up a kit by id.
func (s *Set) Kit(id string) (Kit, error) {
	for _, k := range s.Kits {
		if k.ID == id {
			return k, nil
		}
	}
	return Kit{}, fmt.Errorf("%w: %s", ErrKitNotFound, id)
}

// HasSampleType reports whether name is a known sample type.
func (s *Set) HasSampleType(name string) bool {
	for _, st := range s.SampleTypes {
		if strings.EqualFold(st, name) {
			return true
		}
	}
	return false
}
