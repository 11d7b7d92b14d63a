package celestial

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Defaults for Options.
const (
	DefaultConjunctionThreshold = 10.0 // degrees
	DefaultTrigramOffset        = 22.5 // degrees
	DefaultZodiacReferenceYear  = 1984 // a 甲子 year
)

var ErrInvalidOptions = errors.New("invalid calculator options")

// Options holds the tunable constants of a Calculator.
type Options struct {
	// ConjunctionThreshold is the separation, in degrees, below which a pair
	// of planets is reported as a conjunction.
	ConjunctionThreshold float64
	// TrigramOffset shifts the eight 45 degree trigram sectors; the first
	// sector spans [360-offset, offset).
	TrigramOffset float64
	// ZodiacReferenceYear is a year whose stem and branch are both index 0.
	ZodiacReferenceYear int
	// Location decides which calendar year a timestamp falls in. Nil is UTC.
	Location *time.Location
}

// DefaultOptions returns the stock constants.
func DefaultOptions() Options {
	return Options{
		ConjunctionThreshold: DefaultConjunctionThreshold,
		TrigramOffset:        DefaultTrigramOffset,
		ZodiacReferenceYear:  DefaultZodiacReferenceYear,
		Location:             time.UTC,
	}
}

// PlanetState is a PlanetRecord evaluated at one instant.
type PlanetState struct {
	PlanetRecord
	CurrentPosition Vector3 `json:"currentPosition"`
	// Velocity is the constant orbital speed in radius units per second.
	Velocity float64 `json:"velocity"`
	Distance float64 `json:"distance"`
}

// Calculator evaluates a Table. It is immutable and safe for concurrent use.
type Calculator struct {
	table *Table
	opts  Options
}

// New returns a Calculator for table using opts.
func New(table *Table, opts Options) (*Calculator, error) {
	if table == nil {
		return nil, fmt.Errorf("celestial: nil table: %w", ErrInvalidOptions)
	}
	if !(opts.ConjunctionThreshold > 0 && opts.ConjunctionThreshold <= 180) {
		return nil, fmt.Errorf("celestial: conjunction threshold %v: %w", opts.ConjunctionThreshold, ErrInvalidOptions)
	}
	if !(opts.TrigramOffset >= 0 && opts.TrigramOffset < 45) {
		return nil, fmt.Errorf("celestial: trigram offset %v: %w", opts.TrigramOffset, ErrInvalidOptions)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Calculator{table: table, opts: opts}, nil
}

// Table returns the table the calculator evaluates.
func (c *Calculator) Table() *Table {
	return c.table
}

// Options returns the calculator's constants.
func (c *Calculator) Options() Options {
	return c.opts
}

// Timestamp converts t to the calculator's time unit: milliseconds since the
// Unix epoch.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixMilli()) + float64(t.Nanosecond()%int(time.Millisecond))/float64(time.Millisecond)
}

// Bounds of the timestamps Time converts faithfully: years 0 through 9999,
// the range time.Time can also render as RFC 3339.
const (
	MinTimestamp = -62167219200000.0 // 0000-01-01T00:00:00Z
	MaxTimestamp = 253402300799999.0 // 9999-12-31T23:59:59.999Z
)

// ErrTimestampRange is returned for timestamps outside [MinTimestamp, MaxTimestamp].
var ErrTimestampRange = errors.New("timestamp out of range")

// CheckTimestamp rejects NaN, infinities and values outside the supported
// range.
func CheckTimestamp(ms float64) error {
	if math.IsNaN(ms) || ms < MinTimestamp || ms > MaxTimestamp {
		return fmt.Errorf("celestial: %v: %w", ms, ErrTimestampRange)
	}
	return nil
}

// Time converts a millisecond timestamp back to a time.Time. The whole
// milliseconds are split off before scaling so sub-millisecond error stays
// in the fraction.
func Time(ms float64) time.Time {
	whole, frac := math.Modf(ms)
	return time.UnixMilli(int64(whole)).Add(time.Duration(math.Round(frac * float64(time.Millisecond))))
}

// Positions evaluates every planet at ms (milliseconds since the Unix epoch)
// using uniform circular motion. The result follows table order.
func (c *Calculator) Positions(ms float64) []PlanetState {
	states := make([]PlanetState, len(c.table.records))
	for i, r := range c.table.records {
		states[i] = c.state(r, c.table.periods[i], ms)
	}
	return states
}

// PositionsAt is Positions for a time.Time.
func (c *Calculator) PositionsAt(t time.Time) []PlanetState {
	return c.Positions(Timestamp(t))
}

// PositionOf evaluates a single planet.
func (c *Calculator) PositionOf(name string, ms float64) (PlanetState, bool) {
	i, ok := c.table.index[FormatDomainName(name)]
	if !ok {
		return PlanetState{}, false
	}
	return c.state(c.table.records[i], c.table.periods[i], ms), true
}

func (c *Calculator) state(r PlanetRecord, period, ms float64) PlanetState {
	if r.IsSun() {
		return PlanetState{PlanetRecord: r}
	}

	meanAnomaly := 2 * math.Pi * floorModFloat(ms, period) / period
	pos := Vector3{
		X: r.OrbitalRadius * math.Cos(meanAnomaly),
		Y: r.OrbitalRadius * math.Sin(meanAnomaly),
	}

	return PlanetState{
		PlanetRecord:    r,
		CurrentPosition: pos,
		Velocity:        2 * math.Pi * r.OrbitalRadius / (period / MillisPerSecond),
		Distance:        pos.Magnitude(),
	}
}

// floorModFloat keeps timestamps before the epoch on the same orbit phase as
// their positive counterparts.
func floorModFloat(a, m float64) float64 {
	r := math.Mod(a, m)
	if r < 0 {
		r += m
	}
	return r
}
