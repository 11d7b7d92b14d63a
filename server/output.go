package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"orrery.space/shared/celestial"
)

const tableRule = "--------------------------------------------------------------------------------------"

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPositions(w io.Writer, states []celestial.PlanetState) {
	fmt.Fprintf(w, "\n--- Positions ---\n")
	fmt.Fprintf(w, "%-10s | %-8s | %12s | %12s | %10s | %10s | %8s\n",
		"Name", "Body", "X", "Y", "Distance", "Velocity", "Azimuth")
	fmt.Fprintln(w, tableRule)

	for _, s := range states {
		fmt.Fprintf(w, "%-10s | %-8s | %12.3f | %12.3f | %10.2f | %10.6f | %8.2f\n",
			s.Name,
			s.DisplayName,
			s.CurrentPosition.X,
			s.CurrentPosition.Y,
			s.Distance,
			s.Velocity,
			s.CurrentPosition.Azimuth())
	}
}

// printAngles lists pairs from the narrowest angle up.
func printAngles(w io.Writer, angles []celestial.AngleRecord) {
	sorted := make([]celestial.AngleRecord, len(angles))
	copy(sorted, angles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Angle < sorted[j].Angle
	})

	fmt.Fprintf(w, "\n--- Phase Angles ---\n")
	fmt.Fprintf(w, "%-8s | %-8s | %10s\n", "Planet", "Planet", "Angle (°)")
	fmt.Fprintln(w, tableRule)
	for _, a := range sorted {
		fmt.Fprintf(w, "%-8s | %-8s | %10.2f\n", a.Planets[0], a.Planets[1], a.Angle)
	}
}

func printEvents(w io.Writer, events []celestial.ConjunctionEvent, threshold float64) {
	fmt.Fprintf(w, "\n--- Events (angle < %g°) ---\n", threshold)
	if len(events) == 0 {
		fmt.Fprintln(w, "No conjunctions")
		return
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s: %s - %s (%.2f°)\n", e.Type, e.Planets[0], e.Planets[1], e.Angle)
	}
}

func printZodiac(w io.Writer, z celestial.ZodiacLabel) {
	fmt.Fprintf(w, "%s  stem %s  branch %s  element %s\n", z.Year, z.Stem, z.Branch, z.Element)
}

func printTrigrams(w io.Writer, assignments []celestial.TrigramAssignment) {
	fmt.Fprintf(w, "\n--- Trigrams ---\n")
	fmt.Fprintf(w, "%-8s | %-4s | %-4s | %-4s | %s\n", "Planet", "Gua", "Elem", "Dir", "Nature")
	fmt.Fprintln(w, tableRule)
	for _, a := range assignments {
		fmt.Fprintf(w, "%-8s | %-4s | %-4s | %-4s | %s\n",
			a.Planet, a.Trigram, a.Properties.Element, a.Properties.Direction, a.Properties.Nature)
	}
}
