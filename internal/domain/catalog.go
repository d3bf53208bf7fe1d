package domain

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Province is one of the ten Tuscan provinces covered by the service.
type Province string

const (
	Arezzo       Province = "Arezzo"
	Firenze      Province = "Firenze"
	Grosseto     Province = "Grosseto"
	Livorno      Province = "Livorno"
	Lucca        Province = "Lucca"
	MassaCarrara Province = "Massa-Carrara"
	Pisa         Province = "Pisa"
	Pistoia      Province = "Pistoia"
	Prato        Province = "Prato"
	Siena        Province = "Siena"
)

// Comune is a municipality belonging to exactly one Province.
type Comune struct {
	Name     string   `json:"nome"`
	Province Province `json:"provincia"`
	Code     string   `json:"sigla"`
}

//go:embed comuni.yaml
var catalogYAML []byte

type catalogFile struct {
	Provinces []struct {
		Name   string   `yaml:"name"`
		Code   string   `yaml:"code"`
		Comuni []string `yaml:"comuni"`
	} `yaml:"provinces"`
}

// catalog is immutable after init.
var catalog = mustLoadCatalog(catalogYAML)

type provinceCatalog struct {
	order  []Province
	comuni map[Province][]Comune
	index  map[string]Province // lowercased comune name -> province
}

func mustLoadCatalog(data []byte) provinceCatalog {
	c, err := loadCatalog(data)
	if err != nil {
		panic(fmt.Sprintf("load comuni catalog: %v", err))
	}
	return c
}

func loadCatalog(data []byte) (provinceCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return provinceCatalog{}, fmt.Errorf("decode catalog: %w", err)
	}

	c := provinceCatalog{
		comuni: make(map[Province][]Comune, len(file.Provinces)),
		index:  make(map[string]Province),
	}
	for _, p := range file.Provinces {
		if p.Name == "" || p.Code == "" {
			return provinceCatalog{}, fmt.Errorf("province entry missing name or code")
		}
		if len(p.Comuni) == 0 {
			return provinceCatalog{}, fmt.Errorf("province %s has no comuni", p.Name)
		}
		prov := Province(p.Name)
		if _, dup := c.comuni[prov]; dup {
			return provinceCatalog{}, fmt.Errorf("duplicate province %s", p.Name)
		}
		list := make([]Comune, 0, len(p.Comuni))
		for _, name := range p.Comuni {
			key := strings.ToLower(name)
			if other, dup := c.index[key]; dup {
				return provinceCatalog{}, fmt.Errorf("comune %s listed under %s and %s", name, other, prov)
			}
			c.index[key] = prov
			list = append(list, Comune{Name: name, Province: prov, Code: p.Code})
		}
		c.order = append(c.order, prov)
		c.comuni[prov] = list
	}
	return c, nil
}

// Provinces returns every province in cycle order.
func Provinces() []Province {
	out := make([]Province, len(catalog.order))
	copy(out, catalog.order)
	return out
}

// ComuniOf returns the static comune list for a province, or nil if the
// province is unknown.
func ComuniOf(p Province) []Comune {
	list := catalog.comuni[p]
	if list == nil {
		return nil
	}
	out := make([]Comune, len(list))
	copy(out, list)
	return out
}

// ParseProvince resolves user input such as "massa carrara" to a Province.
func ParseProvince(s string) (Province, error) {
	norm := normalizeProvince(s)
	for _, p := range catalog.order {
		if normalizeProvince(string(p)) == norm {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvince, s)
}

func normalizeProvince(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", " ", "").Replace(s)
}

// LookupComune finds a comune by name within a province.
func LookupComune(name string, p Province) (Comune, bool) {
	for _, c := range catalog.comuni[p] {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Comune{}, false
}

// ValidateComune checks that the comune exists and claims the province it
// belongs to in the catalog.
func ValidateComune(c Comune) error {
	owner, ok := catalog.index[strings.ToLower(c.Name)]
	if !ok {
		return fmt.Errorf("%w: unknown comune %q", ErrInconsistentComune, c.Name)
	}
	if owner != c.Province {
		return fmt.Errorf("%w: %s belongs to %s, not %s", ErrInconsistentComune, c.Name, owner, c.Province)
	}
	return nil
}
