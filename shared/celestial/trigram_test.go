package celestial

import (
	"math"
	"reflect"
	"testing"
)

func TestTrigramFor(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		azimuth float64
		want    string
	}{
		{0, "坎"},
		{22.4, "坎"},
		{22.5, "艮"},
		{45, "艮"},
		{67.5, "震"},
		{90, "震"},
		{112.5, "巽"},
		{157.5, "离"},
		{180, "离"},
		{202.5, "坤"},
		{247.5, "兑"},
		{270, "兑"},
		{292.5, "乾"},
		{337.4, "乾"},
		{337.5, "坎"},
		{359.99, "坎"},
		{-90, "兑"},
		{720 + 45, "艮"},
	}

	for _, tt := range tests {
		if got := calc.TrigramFor(tt.azimuth); got != tt.want {
			t.Errorf("TrigramFor(%v) = %s, want %s", tt.azimuth, got, tt.want)
		}
	}
}

func TestTrigramFor_ZeroOffset(t *testing.T) {
	opts := DefaultOptions()
	opts.TrigramOffset = 0
	calc, err := New(MustDefaultTable(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := calc.TrigramFor(44.9); got != "坎" {
		t.Errorf("TrigramFor(44.9) = %s, want 坎", got)
	}
	if got := calc.TrigramFor(45); got != "艮" {
		t.Errorf("TrigramFor(45) = %s, want 艮", got)
	}
}

func TestAzimuth(t *testing.T) {
	tests := []struct {
		v    Vector3
		want float64
	}{
		{Vector3{X: 1}, 0},
		{Vector3{Y: 1}, 90},
		{Vector3{X: -1}, 180},
		{Vector3{Y: -1}, 270},
		{Vector3{X: 1, Y: -1}, 315},
	}
	for _, tt := range tests {
		if got := tt.v.Azimuth(); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Azimuth(%+v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestTrigramPositions(t *testing.T) {
	calc := newTestCalculator(t)
	states := calc.Positions(MillisPerYear / 4)

	got := calc.TrigramPositions(states)
	if len(got) != len(states)-1 {
		t.Fatalf("got %d assignments, want %d", len(got), len(states)-1)
	}
	for _, a := range got {
		if a.Planet == "太阳" {
			t.Error("sun received a trigram")
		}
		if a.Properties != Trigrams[a.Trigram] {
			t.Errorf("%s: properties %+v do not match %s", a.Planet, a.Properties, a.Trigram)
		}
	}

	// earth is a quarter orbit along: azimuth 90
	earth := got[2]
	if earth.Planet != "地球" || earth.Trigram != "震" || earth.Properties.Direction != "东" {
		t.Errorf("earth assignment = %+v", earth)
	}

	if again := calc.TrigramPositions(states); !reflect.DeepEqual(again, got) {
		t.Error("TrigramPositions is not deterministic")
	}
}

func TestTrigrams_TableComplete(t *testing.T) {
	if len(Trigrams) != len(trigramSectors) {
		t.Fatalf("Trigrams has %d entries, want %d", len(Trigrams), len(trigramSectors))
	}
	for _, name := range trigramSectors {
		if _, ok := Trigrams[name]; !ok {
			t.Errorf("sector trigram %s missing metadata", name)
		}
	}
}
