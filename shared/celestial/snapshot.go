package celestial

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// Snapshot bundles every computation for one instant.
type Snapshot struct {
	Timestamp float64             `json:"timestamp"` // ms since the Unix epoch
	Time      time.Time           `json:"time"`
	JulianDay float64             `json:"julianDay"`
	Planets   []PlanetState       `json:"planets"`
	Angles    []AngleRecord       `json:"angles"`
	Events    []ConjunctionEvent  `json:"events"`
	Zodiac    ZodiacLabel         `json:"zodiac"`
	Trigrams  []TrigramAssignment `json:"trigrams"`
}

// Snapshot evaluates the table at ms. Angles, events and trigrams are all
// derived from the same set of positions.
func (c *Calculator) Snapshot(ms float64) Snapshot {
	t := Time(ms).UTC()
	states := c.Positions(ms)
	return Snapshot{
		Timestamp: ms,
		Time:      t,
		JulianDay: julian.TimeToJD(t),
		Planets:   states,
		Angles:    c.PhaseAngles(states),
		Events:    c.CelestialEvents(states),
		Zodiac:    c.ChineseZodiac(ms),
		Trigrams:  c.TrigramPositions(states),
	}
}
