package celestial

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SunName is the identifier of the sentinel record that always sits at the
// origin.
const SunName = "sun"

// Period markers understood by ParsePeriod.
const (
	EarthYearMarker = "地球年"
	EarthDayMarker  = "地球日"
)

var (
	ErrEmptyIdentifier = errors.New("planet identifier is empty")
	ErrDuplicatePlanet = errors.New("duplicate planet identifier")
	ErrInvalidRadius   = errors.New("invalid orbital radius")
	ErrInvalidPeriod   = errors.New("invalid orbital period")
	ErrEmptyTable      = errors.New("planet table is empty")
)

// PlanetRecord is one row of the static planet table.
type PlanetRecord struct {
	Name          string  `json:"name" yaml:"name" toml:"name"`
	DisplayName   string  `json:"displayName" yaml:"display_name" toml:"display_name"`
	OrbitalRadius float64 `json:"orbitalRadius" yaml:"orbital_radius" toml:"orbital_radius"`
	// Year is the orbital period, e.g. "1.88 地球年" or "88 地球日". Empty
	// means one Earth-year.
	Year string `json:"year,omitempty" yaml:"year,omitempty" toml:"year,omitempty"`
}

// IsSun reports whether r is the sentinel sun record.
func (r PlanetRecord) IsSun() bool {
	return r.Name == SunName
}

// DefaultPlanets is the built-in table used when no planets file is
// configured. Radii are scene units.
var DefaultPlanets = []PlanetRecord{
	{Name: "sun", DisplayName: "太阳", OrbitalRadius: 0, Year: "0"},
	{Name: "mercury", DisplayName: "水星", OrbitalRadius: 10, Year: "88 地球日"},
	{Name: "venus", DisplayName: "金星", OrbitalRadius: 15, Year: "225 地球日"},
	{Name: "earth", DisplayName: "地球", OrbitalRadius: 20, Year: "1 地球年"},
	{Name: "mars", DisplayName: "火星", OrbitalRadius: 25, Year: "1.88 地球年"},
	{Name: "jupiter", DisplayName: "木星", OrbitalRadius: 35, Year: "11.86 地球年"},
	{Name: "saturn", DisplayName: "土星", OrbitalRadius: 45, Year: "29.46 地球年"},
	{Name: "uranus", DisplayName: "天王星", OrbitalRadius: 55, Year: "84.01 地球年"},
	{Name: "neptune", DisplayName: "海王星", OrbitalRadius: 65, Year: "164.8 地球年"},
}

var leadingNumber = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParsePeriod converts an orbital period string to milliseconds. A string
// carrying neither the Earth-year nor the Earth-day marker is one Earth-year.
// A marker whose amount is not a number is rejected.
func ParsePeriod(year string) (float64, error) {
	var unit float64
	switch {
	case strings.Contains(year, EarthYearMarker):
		unit = MillisPerYear
	case strings.Contains(year, EarthDayMarker):
		unit = MillisPerDay
	default:
		return MillisPerYear, nil
	}

	m := leadingNumber.FindString(year)
	if m == "" {
		return 0, fmt.Errorf("%w: %q has no leading amount", ErrInvalidPeriod, year)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidPeriod, year, err)
	}
	return amount * unit, nil
}

// Table is a validated, immutable planet table.
type Table struct {
	records []PlanetRecord
	periods []float64 // ms; zero for the sun
	index   map[string]int
}

// NewTable validates records and returns a Table preserving their order.
// Every record except the sun needs a positive radius and a positive period.
func NewTable(records []PlanetRecord) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}

	t := &Table{
		records: make([]PlanetRecord, len(records)),
		periods: make([]float64, len(records)),
		index:   make(map[string]int, len(records)),
	}
	copy(t.records, records)

	for i, r := range t.records {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("celestial: record %d: %w", i, ErrEmptyIdentifier)
		}
		// Identifiers that collapse to one DNS label would share a subdomain.
		key := FormatDomainName(r.Name)
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("celestial: %q: %w", r.Name, ErrDuplicatePlanet)
		}
		t.index[key] = i

		if r.IsSun() {
			if r.OrbitalRadius != 0 {
				return nil, fmt.Errorf("celestial: sun radius %v: %w", r.OrbitalRadius, ErrInvalidRadius)
			}
			continue
		}
		if !(r.OrbitalRadius > 0) {
			return nil, fmt.Errorf("celestial: %q radius %v: %w", r.Name, r.OrbitalRadius, ErrInvalidRadius)
		}
		period, err := ParsePeriod(r.Year)
		if err != nil {
			return nil, fmt.Errorf("celestial: %q: %w", r.Name, err)
		}
		if !(period > 0) {
			return nil, fmt.Errorf("celestial: %q period %q: %w", r.Name, r.Year, ErrInvalidPeriod)
		}
		t.periods[i] = period
	}
	return t, nil
}

// MustDefaultTable returns the built-in table. It panics only if
// DefaultPlanets itself is invalid.
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultPlanets)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of records, sun included.
func (t *Table) Len() int {
	return len(t.records)
}

// Records returns a copy of the records in table order.
func (t *Table) Records() []PlanetRecord {
	out := make([]PlanetRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Lookup finds a record by identifier, ignoring case. The subdomain label
// ("planet-nine" for "Planet Nine") finds the record too.
func (t *Table) Lookup(name string) (PlanetRecord, bool) {
	i, ok := t.index[FormatDomainName(name)]
	if !ok {
		return PlanetRecord{}, false
	}
	return t.records[i], true
}

// Period returns the parsed orbital period of the named planet in
// milliseconds.
func (t *Table) Period(name string) (float64, bool) {
	i, ok := t.index[FormatDomainName(name)]
	if !ok {
		return 0, false
	}
	return t.periods[i], true
}
