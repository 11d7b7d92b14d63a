package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"orrery.space/shared/celestial"
)

const (
	statusLines  = 3
	orbitDots    = 96
	watchRefresh = 100 * time.Millisecond
	maxSpeed     = 1e9
)

var (
	styleOrbit  = tcell.StyleDefault.Foreground(tcell.ColorDarkSlateGray)
	styleSun    = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	stylePlanet = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	styleEvent  = tcell.StyleDefault.Foreground(tcell.ColorOrangeRed)
	styleStatus = tcell.StyleDefault.Foreground(tcell.ColorSilver)
)

// watchView draws a top-down view of the orbits. Simulated time advances
// speed times faster than the wall clock.
type watchView struct {
	calc   *celestial.Calculator
	screen tcell.Screen
	speed  float64
	paused bool
}

// viewport maps orbit-plane coordinates onto a w by h cell grid with the
// sun at the center. Terminal cells are roughly twice as tall as wide, so
// x is stretched to keep orbits round.
type viewport struct {
	cx, cy float64
	sx, sy float64
}

func newViewport(maxRadius float64, w, h int) viewport {
	if maxRadius <= 0 {
		maxRadius = 1
	}
	sx := (float64(w)/2 - 1) / maxRadius
	sy := (float64(h)/2 - 1) / maxRadius
	if sx > 2*sy {
		sx = 2 * sy
	} else {
		sy = sx / 2
	}
	return viewport{cx: float64(w / 2), cy: float64(h / 2), sx: sx, sy: sy}
}

func (v viewport) project(p celestial.Vector3) (int, int) {
	return int(math.Round(v.cx + p.X*v.sx)), int(math.Round(v.cy - p.Y*v.sy))
}

func maxOrbit(table *celestial.Table) float64 {
	var r float64
	for _, rec := range table.Records() {
		r = math.Max(r, rec.OrbitalRadius)
	}
	return r
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
}

// draw renders the system at ms without calling Show.
func (v *watchView) draw(ms float64) {
	s := v.screen
	s.Clear()

	w, h := s.Size()
	mapHeight := h - statusLines
	if w <= 0 || mapHeight <= 0 {
		return
	}
	vp := newViewport(maxOrbit(v.calc.Table()), w, mapHeight)

	for _, rec := range v.calc.Table().Records() {
		if rec.IsSun() {
			continue
		}
		for i := 0; i < orbitDots; i++ {
			a := 2 * math.Pi * float64(i) / orbitDots
			x, y := vp.project(celestial.Vector3{X: rec.OrbitalRadius * math.Cos(a), Y: rec.OrbitalRadius * math.Sin(a)})
			s.SetContent(x, y, '·', nil, styleOrbit)
		}
	}

	states := v.calc.Positions(ms)
	for _, st := range states {
		x, y := vp.project(st.CurrentPosition)
		style := stylePlanet
		if st.IsSun() {
			style = styleSun
		}
		glyph, _ := firstRune(st.DisplayName, st.Name)
		s.SetContent(x, y, glyph, nil, style)
	}

	z := v.calc.ChineseZodiac(ms)
	speed := fmt.Sprintf("x%g", v.speed)
	if v.paused {
		speed = "paused"
	}
	drawText(s, 0, h-3, styleStatus, fmt.Sprintf("%s  %s  %s", celestial.Time(ms).In(v.calc.Options().Location).Format("2006-01-02 15:04:05"), z.Year, speed))

	events := v.calc.CelestialEvents(states)
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, fmt.Sprintf("%s-%s %.1f°", e.Planets[0], e.Planets[1], e.Angle))
	}
	if len(parts) > 0 {
		drawText(s, 0, h-2, styleEvent, celestial.EventConjunction+": "+strings.Join(parts, "  "))
	}
	drawText(s, 0, h-1, styleStatus, "q quit  space pause  + faster  - slower")
}

func firstRune(names ...string) (rune, bool) {
	for _, n := range names {
		for _, r := range n {
			return r, true
		}
	}
	return '?', false
}

// handleKey applies a key press and reports whether the view should close.
func (v *watchView) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return true
		case ' ':
			v.paused = !v.paused
		case '+', '=':
			v.speed = math.Min(v.speed*2, maxSpeed)
		case '-', '_':
			v.speed = math.Max(v.speed/2, 1)
		}
	}
	return false
}

// run owns the screen until the user quits.
func (v *watchView) run(start float64) error {
	if err := v.screen.Init(); err != nil {
		return fmt.Errorf("watch: init screen: %w", err)
	}
	defer v.screen.Fini()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(watchRefresh)
	defer ticker.Stop()

	sim := start
	last := time.Now()
	for {
		now := time.Now()
		if !v.paused {
			sim += float64(now.Sub(last).Milliseconds()) * v.speed
		}
		last = now

		v.draw(sim)
		v.screen.Show()

		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if v.handleKey(ev) {
					return nil
				}
			case *tcell.EventResize:
				v.screen.Sync()
			}
		case <-ticker.C:
		}
	}
}

func runWatch(calc *celestial.Calculator, start, speed float64) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("watch: create screen: %w", err)
	}
	v := &watchView{calc: calc, screen: screen, speed: speed}
	return v.run(start)
}
