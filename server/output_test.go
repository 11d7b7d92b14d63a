package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"orrery.space/shared/celestial"
)

func TestPrintAngles_SortedByAngle(t *testing.T) {
	var buf bytes.Buffer
	printAngles(&buf, []celestial.AngleRecord{
		{Planets: [2]string{"火星", "木星"}, Angle: 120},
		{Planets: [2]string{"水星", "金星"}, Angle: 3.5},
		{Planets: [2]string{"地球", "土星"}, Angle: 45},
	})

	out := buf.String()
	first := strings.Index(out, "水星")
	second := strings.Index(out, "地球")
	third := strings.Index(out, "火星")
	if first < 0 || !(first < second && second < third) {
		t.Errorf("angles not sorted ascending:\n%s", out)
	}
	if !strings.Contains(out, "3.50") {
		t.Errorf("angle not formatted to two places:\n%s", out)
	}
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	printEvents(&buf, nil, 10)
	if !strings.Contains(buf.String(), "No conjunctions") {
		t.Errorf("empty events output = %q", buf.String())
	}

	buf.Reset()
	printEvents(&buf, []celestial.ConjunctionEvent{{
		Type:        celestial.EventConjunction,
		AngleRecord: celestial.AngleRecord{Planets: [2]string{"木星", "土星"}, Angle: 2.25},
	}}, 10)
	if want := "合相: 木星 - 土星 (2.25°)"; !strings.Contains(buf.String(), want) {
		t.Errorf("events output = %q, want %q", buf.String(), want)
	}
}

func TestPrintPositionsAndTrigrams(t *testing.T) {
	calc, err := celestial.New(celestial.MustDefaultTable(), celestial.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	states := calc.Positions(0)

	var buf bytes.Buffer
	printPositions(&buf, states)
	for _, st := range states {
		if !strings.Contains(buf.String(), st.Name) {
			t.Errorf("positions table missing %s", st.Name)
		}
	}

	buf.Reset()
	printTrigrams(&buf, calc.TrigramPositions(states))
	// the +x axis falls in the 坎 sector
	if got := strings.Count(buf.String(), "坎"); got != len(states)-1 {
		t.Errorf("坎 appears %d times, want %d:\n%s", got, len(states)-1, buf.String())
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	z := celestial.ZodiacLabel{Year: "甲子年", Stem: "甲", Branch: "子", Element: "木"}
	if err := printJSON(&buf, z); err != nil {
		t.Fatal(err)
	}
	var got celestial.ZodiacLabel
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got != z {
		t.Errorf("printJSON round trip = %+v, %v", got, err)
	}
}
