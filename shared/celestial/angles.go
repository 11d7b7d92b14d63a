package celestial

// EventConjunction labels a pair closer than the conjunction threshold.
const EventConjunction = "合相"

// AngleRecord is the separation between two planets as seen from the sun.
type AngleRecord struct {
	Planets [2]string `json:"planets"` // display names
	Angle   float64   `json:"angle"`   // degrees, [0, 180]
}

// ConjunctionEvent is an AngleRecord below the conjunction threshold.
type ConjunctionEvent struct {
	Type string `json:"type"`
	AngleRecord
}

// PhaseAngles returns the separation of every unordered pair of non-sun
// planets in states, pairs ordered by their position in states.
func (c *Calculator) PhaseAngles(states []PlanetState) []AngleRecord {
	planets := withoutSun(states)
	if len(planets) < 2 {
		return []AngleRecord{}
	}

	angles := make([]AngleRecord, 0, len(planets)*(len(planets)-1)/2)
	for i := 0; i < len(planets); i++ {
		for j := i + 1; j < len(planets); j++ {
			angles = append(angles, AngleRecord{
				Planets: [2]string{planets[i].DisplayName, planets[j].DisplayName},
				Angle:   planets[i].CurrentPosition.AngleTo(planets[j].CurrentPosition),
			})
		}
	}
	return angles
}

// CelestialEvents returns the phase angles strictly below the conjunction
// threshold, tagged as conjunctions.
func (c *Calculator) CelestialEvents(states []PlanetState) []ConjunctionEvent {
	events := []ConjunctionEvent{}
	for _, a := range c.PhaseAngles(states) {
		if a.Angle < c.opts.ConjunctionThreshold {
			events = append(events, ConjunctionEvent{Type: EventConjunction, AngleRecord: a})
		}
	}
	return events
}

func withoutSun(states []PlanetState) []PlanetState {
	out := make([]PlanetState, 0, len(states))
	for _, s := range states {
		if !s.IsSun() {
			out = append(out, s)
		}
	}
	return out
}
