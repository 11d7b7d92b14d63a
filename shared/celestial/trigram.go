package celestial

import "math"

// TrigramProperties is the constant metadata attached to a trigram.
type TrigramProperties struct {
	Element   string `json:"element"`
	Nature    string `json:"nature"`
	Direction string `json:"direction"`
}

// TrigramAssignment places one planet in a trigram sector.
type TrigramAssignment struct {
	Planet     string            `json:"planet"` // display name
	Trigram    string            `json:"trigram"`
	Properties TrigramProperties `json:"properties"`
}

// trigramSectors lists the trigrams counter-clockwise from the sector
// centred on azimuth 0.
var trigramSectors = [8]string{"坎", "艮", "震", "巽", "离", "坤", "兑", "乾"}

// Trigrams maps each trigram to its metadata.
var Trigrams = map[string]TrigramProperties{
	"乾": {Element: "金", Nature: "天", Direction: "西北"},
	"兑": {Element: "金", Nature: "泽", Direction: "西"},
	"离": {Element: "火", Nature: "火", Direction: "南"},
	"震": {Element: "木", Nature: "雷", Direction: "东"},
	"巽": {Element: "木", Nature: "风", Direction: "东南"},
	"坎": {Element: "水", Nature: "水", Direction: "北"},
	"艮": {Element: "土", Nature: "山", Direction: "东北"},
	"坤": {Element: "土", Nature: "地", Direction: "西南"},
}

// TrigramFor returns the trigram whose sector contains azimuth (degrees).
// Sector lower bounds are inclusive.
func (c *Calculator) TrigramFor(azimuth float64) string {
	shifted := normalizeDegrees(normalizeDegrees(azimuth) + c.opts.TrigramOffset)
	sector := int(math.Floor(shifted/45.0)) % len(trigramSectors)
	return trigramSectors[sector]
}

// TrigramPositions assigns a trigram to every non-sun planet in states.
func (c *Calculator) TrigramPositions(states []PlanetState) []TrigramAssignment {
	planets := withoutSun(states)
	out := make([]TrigramAssignment, 0, len(planets))
	for _, p := range planets {
		t := c.TrigramFor(p.CurrentPosition.Azimuth())
		out = append(out, TrigramAssignment{
			Planet:     p.DisplayName,
			Trigram:    t,
			Properties: Trigrams[t],
		})
	}
	return out
}
