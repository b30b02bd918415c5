package catalog

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/genelab/dnabooking/internal/domain/pricing"
)

type fileService struct {
	ID           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	BasePrice    float64  `mapstructure:"base_price"`
	ExpressPrice *float64 `mapstructure:"express_price"`
}

type fileMethod struct {
	Name  string  `mapstructure:"name"`
	Price float64 `mapstructure:"price"`
}

type fileCatalog struct {
	Services          []fileService `mapstructure:"services"`
	CollectionMethods []fileMethod  `mapstructure:"collection_methods"`
}

type fileSet struct {
	Legal       fileCatalog `mapstructure:"legal"`
	NonLegal    fileCatalog `mapstructure:"non_legal"`
	Kits        []Kit       `mapstructure:"kits"`
	SampleTypes []string    `mapstructure:"sample_types"`
}

// Load reads a catalog file (YAML, JSON or TOML, by extension). Sections
// missing from the file fall back to the built-in defaults. Negative prices
// count as 0; a price above pricing.MaxAmount is rejected.
func Load(path string) (*Set, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var raw fileSet
	err := v.Unmarshal(&raw)
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	set := Default()
	if len(raw.Legal.Services) > 0 {
		if set.Legal, err = raw.Legal.toCatalog(Legal); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	if len(raw.NonLegal.Services) > 0 {
		if set.NonLegal, err = raw.NonLegal.toCatalog(NonLegal); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	if len(raw.Kits) > 0 {
		set.Kits = raw.Kits
	}
	if len(raw.SampleTypes) > 0 {
		set.SampleTypes = raw.SampleTypes
	}
	if err := set.validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return set, nil
}

func (fc fileCatalog) toCatalog(t ServiceType) (*Catalog, error) {
	c := &Catalog{Type: t}
	for _, s := range fc.Services {
		base, err := amount(s.BasePrice, fmt.Sprintf("%s service %s base_price", t, s.ID))
		if err != nil {
			return nil, err
		}
		e := ServiceEntry{ID: s.ID, Name: s.Name, BasePrice: base}
		if s.ExpressPrice != nil {
			express, err := amount(*s.ExpressPrice, fmt.Sprintf("%s service %s express_price", t, s.ID))
			if err != nil {
				return nil, err
			}
			e.ExpressPrice = price(express)
		}
		c.Services = append(c.Services, e)
	}
	for _, m := range fc.CollectionMethods {
		p, err := amount(m.Price, fmt.Sprintf("%s collection method %q price", t, m.Name))
		if err != nil {
			return nil, err
		}
		c.CollectionMethods = append(c.CollectionMethods, CollectionMethod{Name: m.Name, Price: p})
	}
	if len(c.CollectionMethods) == 0 {
		c.CollectionMethods = Default().NonLegal.CollectionMethods
	}
	return c, nil
}

// amount sanitises a price read from a catalog file. Values too large to be
// a real price are an error rather than being clamped.
func amount(v float64, field string) (int64, error) {
	if v > float64(pricing.MaxAmount) {
		return 0, fmt.Errorf("%s %.0f exceeds %d", field, v, pricing.MaxAmount)
	}
	return pricing.SanitizeAmount(v), nil
}

func (s *Set) validate() error {
	for _, c := range []*Catalog{s.Legal, s.NonLegal} {
		seen := make(map[string]bool)
		for _, e := range c.Services {
			if e.ID == "" || e.Name == "" {
				return fmt.Errorf("%s service entries need an id and a name", c.Type)
			}
			if seen[e.ID] {
				return fmt.Errorf("duplicate %s service id %s", c.Type, e.ID)
			}
			seen[e.ID] = true
		}
		for _, m := range c.CollectionMethods {
			if m.Name != AtHome && m.Name != AtFacility {
				return fmt.Errorf("%s collection method %q must be %q or %q", c.Type, m.Name, AtHome, AtFacility)
			}
		}
	}
	return nil
}
