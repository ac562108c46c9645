package watch

import (
	"strings"
	"time"
)

// Ticker rotates through frames on every UI tick. A frozen frame means the
// program stopped ticking.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"◴", "◷", "◶", "◵"}}
}

func (t *Ticker) Advance() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Frame() string {
	return t.frames[t.index]
}

// Activity is the event meter in the header: all five dots light up when a
// delivery arrives and fade as the stream goes quiet.
type Activity struct {
	lastEvent time.Time
}

func (a *Activity) Mark() {
	a.lastEvent = time.Now()
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}

func (a Activity) Render(theme Theme) string {
	dots := 0
	if !a.lastEvent.IsZero() {
		switch elapsed := time.Since(a.lastEvent); {
		case elapsed < 2*time.Second:
			dots = 5
		case elapsed < 4*time.Second:
			dots = 4
		case elapsed < 6*time.Second:
			dots = 3
		case elapsed < 8*time.Second:
			dots = 2
		case elapsed < 10*time.Second:
			dots = 1
		}
	}

	var meter strings.Builder
	for i := 0; i < 5; i++ {
		if i < dots {
			meter.WriteString(theme.TickerActive.Render("●"))
		} else {
			meter.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return meter.String()
}
